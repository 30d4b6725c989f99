package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"
)

// Config is the full on-disk configuration. The file may be JSON or YAML
// (YAML is coerced to JSON bytes before the strict decode, see yaml.go).
//
// The Discord bot token is deliberately NOT part of this file; it comes from
// the DISCORD_TOKEN environment variable so the config can be committed.
type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Store     *StoreConfig    `json:"store,omitempty"`
	Guilds    []GuildConfig   `json:"guilds"`
}

type DiscordConfig struct {
	// OwnerUserIDs may run admin-only slash commands in addition to
	// members with the Manage Server permission.
	OwnerUserIDs []string `json:"owner_user_ids,omitempty"`
	// Status is the presence text shown under the bot's name.
	Status string `json:"status,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Discord LoggingDiscord `json:"discord"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingDiscord relays WARN+ log lines to a Discord channel, rate limited.
type LoggingDiscord struct {
	Enabled    bool   `json:"enabled"`
	ChannelID  string `json:"channel_id"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Interval is a Go duration string (e.g. "15s"). Defaults to 15s.
	Interval string `json:"interval,omitempty"`
}

// StoreConfig controls the optional attendance archive (sqlite).
type StoreConfig struct {
	Enabled       bool   `json:"enabled"`
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days,omitempty"`
}

// GuildConfig is one independently scheduled community.
type GuildConfig struct {
	ID       string         `json:"id"`
	Timezone string         `json:"timezone,omitempty"`
	Roles    RolesConfig    `json:"roles"`
	Channels ChannelsConfig `json:"channels"`
	Markers  MarkersConfig  `json:"markers,omitempty"`
	Actions  ActionsConfig  `json:"actions"`
}

// RolesConfig names the two membership roles whose union forms the
// eligible member set.
type RolesConfig struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
}

type ChannelsConfig struct {
	Poll   string `json:"poll"`
	Report string `json:"report"`
	Log    string `json:"log,omitempty"`
}

// MarkersConfig is the pair of reaction emoji recognized as vote signals.
type MarkersConfig struct {
	Yes string `json:"yes,omitempty"`
	No  string `json:"no,omitempty"`
}

const (
	DefaultYesMarker = "✅" // ✅
	DefaultNoMarker  = "❌" // ❌
)

func (m MarkersConfig) YesOrDefault() string {
	if s := strings.TrimSpace(m.Yes); s != "" {
		return s
	}
	return DefaultYesMarker
}

func (m MarkersConfig) NoOrDefault() string {
	if s := strings.TrimSpace(m.No); s != "" {
		return s
	}
	return DefaultNoMarker
}

type ActionsConfig struct {
	Post     ActionConfig   `json:"post,omitempty"`
	Midday   ActionConfig   `json:"midday,omitempty"`
	Close    CloseConfig    `json:"close,omitempty"`
	Weekly   WeeklyConfig   `json:"weekly,omitempty"`
	NickSync NickSyncConfig `json:"nick_sync,omitempty"`
}

// ActionConfig is the shared per-action schedule block.
//
// At is "HH:MM" in the guild timezone. A malformed value falls back to the
// action's documented default rather than failing the guild (schedule.ParseClock).
// Grace is a pointer so "omitted" (default 10) is distinguishable from an
// explicit 0 (fire only within the target minute).
type ActionConfig struct {
	Enabled bool   `json:"enabled"`
	At      string `json:"at,omitempty"`
	Grace   *int   `json:"grace_minutes,omitempty"`
}

const DefaultGraceMinutes = 10

func (a ActionConfig) GraceOrDefault() int {
	if a.Grace == nil {
		return DefaultGraceMinutes
	}
	if *a.Grace < 0 {
		return 0
	}
	return *a.Grace
}

type CloseConfig struct {
	ActionConfig
	// ClearReactions strips all reactions from the poll when it closes.
	ClearReactions bool `json:"clear_reactions,omitempty"`
	// Notice, when non-empty, is posted to the poll channel after closing.
	Notice string `json:"notice,omitempty"`
}

type WeeklyConfig struct {
	ActionConfig
	// Weekday the rollup runs on ("Sunday".."Saturday"). Defaults to Sunday.
	Weekday string `json:"weekday,omitempty"`
	// LookbackDays bounds the report-history scan. Defaults to 7.
	LookbackDays int `json:"lookback_days,omitempty"`
	// MaxEntries caps the ranked summary. Defaults to 20.
	MaxEntries int `json:"max_entries,omitempty"`
}

func (w WeeklyConfig) LookbackOrDefault() int {
	if w.LookbackDays <= 0 {
		return 7
	}
	return w.LookbackDays
}

func (w WeeklyConfig) MaxEntriesOrDefault() int {
	if w.MaxEntries <= 0 {
		return 20
	}
	return w.MaxEntries
}

// WeekdayOrDefault parses Weekday case-insensitively; unknown values
// fall back to Sunday.
func (w WeeklyConfig) WeekdayOrDefault() time.Weekday {
	switch strings.ToLower(strings.TrimSpace(w.Weekday)) {
	case "monday":
		return time.Monday
	case "tuesday":
		return time.Tuesday
	case "wednesday":
		return time.Wednesday
	case "thursday":
		return time.Thursday
	case "friday":
		return time.Friday
	case "saturday":
		return time.Saturday
	default:
		return time.Sunday
	}
}

type NickSyncConfig struct {
	ActionConfig
	// Labels maps role IDs to nickname tags; order is priority order and the
	// first role the member holds wins.
	Labels []RoleLabel `json:"labels,omitempty"`
	// UpdatesPerMin paces nickname edits to stay under the platform rate
	// limit. Defaults to 30.
	UpdatesPerMin int `json:"updates_per_min,omitempty"`
}

type RoleLabel struct {
	RoleID string `json:"role_id"`
	Label  string `json:"label"`
}

func (n NickSyncConfig) UpdatesPerMinOrDefault() int {
	if n.UpdatesPerMin <= 0 {
		return 30
	}
	return n.UpdatesPerMin
}

// Guild returns the config block for id, or nil when the guild is not configured.
func (c *Config) Guild(id string) *GuildConfig {
	if c == nil {
		return nil
	}
	for i := range c.Guilds {
		if c.Guilds[i].ID == id {
			return &c.Guilds[i]
		}
	}
	return nil
}

// decodeStrict decodes JSON bytes rejecting unknown fields and trailing data,
// so typos in the config surface at load time instead of silently defaulting.
func decodeStrict(jb []byte, into *Config) error {
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return err
	}
	// reject trailing tokens (e.g. concatenated JSON documents)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("invalid config: trailing data")
		}
		return err
	}
	return nil
}
