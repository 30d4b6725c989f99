package schedule

import (
	"context"
	"time"

	"rosterbot/internal/config"
	"rosterbot/internal/roster"
)

// Message is the slice of a platform message the scheduler cares about.
type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	AuthorBot bool
	Timestamp time.Time
	Embeds    []Embed
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Footer      string
	Fields      []EmbedField
}

type EmbedField struct {
	Name  string
	Value string
}

// Messenger is the external messaging collaborator. Implementations wrap
// the platform SDK; the orchestrator only ever talks through this surface,
// which is what makes the action bodies testable with fakes.
//
// All calls take a context and fail fast; the orchestrator treats failures
// as "no data" rather than propagating them across guilds.
type Messenger interface {
	// ReactionUsers returns every account that applied marker, bots included;
	// the tally filters bots itself.
	ReactionUsers(ctx context.Context, channelID, messageID, marker string) ([]roster.User, error)
	GuildMembers(ctx context.Context, guildID string) ([]roster.Member, error)
	// ChannelMessages pages backwards from beforeID (newest first).
	ChannelMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]Message, error)

	// Send must accept arbitrary-length content; oversized content is the
	// caller's problem (reminders are pre-chunked upstream).
	Send(ctx context.Context, channelID, content string) error
	SendEmbed(ctx context.Context, channelID string, embed Embed) (messageID string, err error)
	EditEmbed(ctx context.Context, channelID, messageID string, embed Embed) error
	AddReaction(ctx context.Context, channelID, messageID, marker string) error
	ClearReactions(ctx context.Context, channelID, messageID string) error

	SetNickname(ctx context.Context, guildID, userID, nick string) error
	// CanManage reports whether the bot's top role outranks the member's
	// (and the member is not the guild owner).
	CanManage(ctx context.Context, guildID string, m roster.Member) bool

	// BotUserID identifies the bot's own account, used to recognize its
	// previously posted polls and reports when scanning history.
	BotUserID() string
}

// ConfigSource is the config repository contract: a fresh snapshot on
// every call, defaults instead of errors. *config.Manager satisfies it.
type ConfigSource interface {
	Guilds() []config.GuildConfig
	GuildByID(id string) *config.GuildConfig
	Interval() time.Duration
}

// Archiver records closed tallies into the attendance archive. Optional;
// a nil Archiver disables recording.
type Archiver interface {
	RecordTally(ctx context.Context, guildID, day string, t Tally) error
}
