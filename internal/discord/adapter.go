// Package discord binds the scheduler's Messenger port to a discordgo
// session: REST pagination, embed conversion, and the permission check for
// nickname management all live here so the scheduler stays platform-free.
package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"rosterbot/internal/roster"
	"rosterbot/internal/schedule"
	"rosterbot/pkg/logx"
)

const (
	memberPageSize   = 1000
	reactionPageSize = 100

	rolesCacheTTL = time.Minute
)

// Adapter wraps one gateway session. It implements schedule.Messenger and,
// for the log relay, logx.Sink.
type Adapter struct {
	s   *discordgo.Session
	log logx.Logger

	mu           sync.Mutex
	logChannelID string
	roleInfo     map[string]*guildRoleInfo
}

func New(token string, log logx.Logger) (*Adapter, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.ShouldRetryOnRateLimit = true
	s.MaxRestRetries = 3
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions

	return &Adapter{
		s:        s,
		log:      log,
		roleInfo: map[string]*guildRoleInfo{},
	}, nil
}

// Session exposes the underlying session for handler registration.
func (a *Adapter) Session() *discordgo.Session { return a.s }

func (a *Adapter) Open() error {
	if err := a.s.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	a.log.Info("gateway connected", logx.String("user", a.BotUserID()))
	return nil
}

func (a *Adapter) Close() error { return a.s.Close() }

// SetStatus sets the presence text under the bot's name. Best effort.
func (a *Adapter) SetStatus(status string) {
	if status == "" {
		return
	}
	if err := a.s.UpdateGameStatus(0, status); err != nil {
		a.log.Warn("could not set presence", logx.Err(err))
	}
}

func (a *Adapter) BotUserID() string {
	if a.s.State == nil || a.s.State.User == nil {
		return ""
	}
	return a.s.State.User.ID
}

// SetLogChannel points the log relay at a channel; empty disables it.
func (a *Adapter) SetLogChannel(channelID string) {
	a.mu.Lock()
	a.logChannelID = channelID
	a.mu.Unlock()
}

// Relay implements logx.Sink. Failures are swallowed on purpose: logging a
// failed relay through the same service would feed the relay forever.
func (a *Adapter) Relay(level, msg string) {
	a.mu.Lock()
	ch := a.logChannelID
	a.mu.Unlock()
	if ch == "" {
		return
	}
	_, _ = a.s.ChannelMessageSend(ch, fmt.Sprintf("`%s` %s", level, msg))
}

func (a *Adapter) ChannelMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]schedule.Message, error) {
	msgs, err := a.s.ChannelMessages(channelID, limit, beforeID, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]schedule.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessage(m))
	}
	return out, nil
}

func (a *Adapter) ReactionUsers(ctx context.Context, channelID, messageID, marker string) ([]roster.User, error) {
	var out []roster.User
	afterID := ""
	for {
		users, err := a.s.MessageReactions(channelID, messageID, marker, reactionPageSize, "", afterID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			out = append(out, toUser(u))
		}
		if len(users) < reactionPageSize {
			return out, nil
		}
		afterID = users[len(users)-1].ID
	}
}

func (a *Adapter) GuildMembers(ctx context.Context, guildID string) ([]roster.Member, error) {
	var out []roster.Member
	afterID := ""
	for {
		members, err := a.s.GuildMembers(guildID, afterID, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			out = append(out, toMember(m))
		}
		if len(members) < memberPageSize {
			return out, nil
		}
		afterID = members[len(members)-1].User.ID
	}
}

func (a *Adapter) Send(ctx context.Context, channelID, content string) error {
	_, err := a.s.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) SendEmbed(ctx context.Context, channelID string, embed schedule.Embed) (string, error) {
	m, err := a.s.ChannelMessageSendEmbed(channelID, fromEmbed(embed), discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func (a *Adapter) EditEmbed(ctx context.Context, channelID, messageID string, embed schedule.Embed) error {
	_, err := a.s.ChannelMessageEditEmbed(channelID, messageID, fromEmbed(embed), discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) AddReaction(ctx context.Context, channelID, messageID, marker string) error {
	return a.s.MessageReactionAdd(channelID, messageID, marker, discordgo.WithContext(ctx))
}

func (a *Adapter) ClearReactions(ctx context.Context, channelID, messageID string) error {
	return a.s.MessageReactionsRemoveAll(channelID, messageID, discordgo.WithContext(ctx))
}

func (a *Adapter) SetNickname(ctx context.Context, guildID, userID, nick string) error {
	return a.s.GuildMemberNickname(guildID, userID, nick, discordgo.WithContext(ctx))
}

// guildRoleInfo caches role positions for the CanManage check; role edits
// are rare, so a short TTL keeps the nickname sweep from hammering the API.
type guildRoleInfo struct {
	fetchedAt time.Time
	ownerID   string
	positions map[string]int
	botTop    int
}

func (a *Adapter) guildRoleInfo(ctx context.Context, guildID string) (*guildRoleInfo, error) {
	a.mu.Lock()
	cached := a.roleInfo[guildID]
	a.mu.Unlock()
	if cached != nil && time.Since(cached.fetchedAt) < rolesCacheTTL {
		return cached, nil
	}

	roles, err := a.s.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch roles: %w", err)
	}
	g, err := a.s.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch guild: %w", err)
	}
	bot, err := a.s.GuildMember(guildID, a.BotUserID(), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch bot member: %w", err)
	}

	info := &guildRoleInfo{
		fetchedAt: time.Now(),
		ownerID:   g.OwnerID,
		positions: make(map[string]int, len(roles)),
	}
	for _, r := range roles {
		info.positions[r.ID] = r.Position
	}
	for _, id := range bot.Roles {
		if p := info.positions[id]; p > info.botTop {
			info.botTop = p
		}
	}

	a.mu.Lock()
	a.roleInfo[guildID] = info
	a.mu.Unlock()
	return info, nil
}

// CanManage reports whether the bot may rename the member: never the guild
// owner, never the bot itself, and only members whose highest role sits
// below the bot's highest role.
func (a *Adapter) CanManage(ctx context.Context, guildID string, m roster.Member) bool {
	if m.ID == a.BotUserID() {
		return false
	}
	info, err := a.guildRoleInfo(ctx, guildID)
	if err != nil {
		a.log.Debug("role hierarchy unavailable, skipping member",
			logx.String("guild", guildID), logx.String("member", m.ID), logx.Err(err))
		return false
	}
	if m.ID == info.ownerID {
		return false
	}
	memberTop := 0
	for _, id := range m.Roles {
		if p := info.positions[id]; p > memberTop {
			memberTop = p
		}
	}
	return info.botTop > memberTop
}

func toUser(u *discordgo.User) roster.User {
	if u == nil {
		return roster.User{}
	}
	return roster.User{
		ID:         u.ID,
		Username:   u.Username,
		GlobalName: u.GlobalName,
		Bot:        u.Bot,
	}
}

func toMember(m *discordgo.Member) roster.Member {
	return roster.Member{
		User:  toUser(m.User),
		Nick:  m.Nick,
		Roles: m.Roles,
	}
}

func toMessage(m *discordgo.Message) schedule.Message {
	out := schedule.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.AuthorBot = m.Author.Bot
	}
	for _, e := range m.Embeds {
		out.Embeds = append(out.Embeds, toEmbed(e))
	}
	return out
}

func toEmbed(e *discordgo.MessageEmbed) schedule.Embed {
	out := schedule.Embed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.Footer != nil {
		out.Footer = e.Footer.Text
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, schedule.EmbedField{Name: f.Name, Value: f.Value})
	}
	return out
}

func fromEmbed(e schedule.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value})
	}
	return out
}
