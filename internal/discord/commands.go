package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"rosterbot/internal/schedule"
	"rosterbot/internal/store"
	"rosterbot/pkg/logx"
)

// Commands registers and serves the /attendance slash command.
//
// `/attendance run action:<name>` executes one scheduled action immediately
// through the same body the scheduler uses; `/attendance stats [days:n]`
// summarizes the archived tallies. Both are gated to server managers and
// configured owner users.
type Commands struct {
	adapter *Adapter
	runner  *schedule.Runner
	archive *store.Store
	owners  func() []string
	log     logx.Logger
}

func NewCommands(adapter *Adapter, runner *schedule.Runner, archive *store.Store, owners func() []string, log logx.Logger) *Commands {
	return &Commands{
		adapter: adapter,
		runner:  runner,
		archive: archive,
		owners:  owners,
		log:     log,
	}
}

func attendanceCommand() *discordgo.ApplicationCommand {
	actionChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, 5)
	for _, name := range []string{
		schedule.ActionPost,
		schedule.ActionMidday,
		schedule.ActionClose,
		schedule.ActionWeekly,
		schedule.ActionNickSync,
	} {
		actionChoices = append(actionChoices, &discordgo.ApplicationCommandOptionChoice{
			Name:  name,
			Value: name,
		})
	}
	return &discordgo.ApplicationCommand{
		Name:        "attendance",
		Description: "Attendance tracking controls",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "run",
				Description: "Run a scheduled action now",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "action",
						Description: "Action to run",
						Required:    true,
						Choices:     actionChoices,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "stats",
				Description: "Show archived miss counts",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "days",
						Description: "Lookback window in days (default 7)",
						Required:    false,
					},
				},
			},
		},
	}
}

// Register installs the handler and creates the guild command in every
// configured guild. Guild commands propagate immediately, unlike global ones.
func (c *Commands) Register(guildIDs []string) error {
	c.adapter.Session().AddHandler(c.handle)
	appID := c.adapter.BotUserID()
	cmd := attendanceCommand()
	for _, gid := range guildIDs {
		if _, err := c.adapter.Session().ApplicationCommandCreate(appID, gid, cmd); err != nil {
			return fmt.Errorf("register command in guild %s: %w", gid, err)
		}
		c.log.Info("slash command registered", logx.String("guild", gid))
	}
	return nil
}

func (c *Commands) handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != "attendance" || i.Member == nil || i.GuildID == "" {
		return
	}

	log := c.log.With(
		logx.String("guild", i.GuildID),
		logx.String("user", i.Member.User.ID))

	if !c.authorized(i) {
		c.respondText(i, "You need the Manage Server permission to use this.")
		return
	}
	if len(data.Options) == 0 {
		return
	}

	// Defer first: action bodies can take longer than the 3s interaction
	// deadline (member pagination, history scans).
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}); err != nil {
		log.Warn("interaction defer failed", logx.Err(err))
		return
	}

	sub := data.Options[0]
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		var reply string
		switch sub.Name {
		case "run":
			reply = c.runAction(ctx, i.GuildID, sub, log)
		case "stats":
			reply = c.stats(ctx, i.GuildID, sub, log)
		default:
			reply = "Unknown subcommand."
		}
		c.followUp(i, reply)
	}()
}

// authorized allows guild members with Manage Server plus configured owner
// user IDs.
func (c *Commands) authorized(i *discordgo.InteractionCreate) bool {
	if i.Member.Permissions&discordgo.PermissionManageServer != 0 {
		return true
	}
	for _, id := range c.owners() {
		if id == i.Member.User.ID {
			return true
		}
	}
	return false
}

func (c *Commands) runAction(ctx context.Context, guildID string, sub *discordgo.ApplicationCommandInteractionDataOption, log logx.Logger) string {
	action := ""
	for _, opt := range sub.Options {
		if opt.Name == "action" {
			action = opt.StringValue()
		}
	}
	log.Info("manual action requested", logx.String("action", action))

	err := c.runner.RunAction(ctx, guildID, action)
	switch {
	case err == nil:
		return fmt.Sprintf("✅ `%s` finished.", action)
	case errors.Is(err, schedule.ErrGuildNotConfigured):
		return "This server is not configured."
	case errors.Is(err, schedule.ErrUnknownAction):
		return fmt.Sprintf("Unknown action `%s`.", action)
	default:
		log.Warn("manual action failed", logx.String("action", action), logx.Err(err))
		return fmt.Sprintf("⚠️ `%s` failed: %v", action, err)
	}
}

func (c *Commands) stats(ctx context.Context, guildID string, sub *discordgo.ApplicationCommandInteractionDataOption, log logx.Logger) string {
	if c.archive == nil {
		return "The attendance archive is disabled."
	}
	days := 7
	for _, opt := range sub.Options {
		if opt.Name == "days" {
			if v := int(opt.IntValue()); v > 0 {
				days = v
			}
		}
	}
	sinceDay := time.Now().AddDate(0, 0, -days).Format(time.DateOnly)

	st, err := c.archive.MissTotals(ctx, guildID, sinceDay)
	if err != nil {
		log.Warn("stats query failed", logx.Err(err))
		return "⚠️ Could not read the archive."
	}
	if st.Days == 0 {
		return fmt.Sprintf("No archived polls in the last %d day(s).", days)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%d** archived poll(s) in the last %d day(s).\n", st.Days, days)
	if len(st.Misses) == 0 {
		b.WriteString("Everyone responded to every poll. 🎉")
		return b.String()
	}
	const maxRows = 10
	for i, mm := range st.Misses {
		if i == maxRows {
			fmt.Fprintf(&b, "… and %d more", len(st.Misses)-maxRows)
			break
		}
		fmt.Fprintf(&b, "%d. <@%s> — %d missed\n", i+1, mm.MemberID, mm.Misses)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) respondText(i *discordgo.InteractionCreate, msg string) {
	err := c.adapter.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		c.log.Warn("interaction respond failed", logx.Err(err))
	}
}

func (c *Commands) followUp(i *discordgo.InteractionCreate, msg string) {
	_, err := c.adapter.Session().FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: msg,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		c.log.Warn("interaction follow-up failed", logx.Err(err))
	}
}
