package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

const sampleJSON = `{
  "discord": {"owner_user_ids": ["42"]},
  "logging": {"level": "debug", "console": true,
    "file": {"enabled": false, "path": ""},
    "discord": {"enabled": true, "channel_id": "900", "min_level": "warn"}},
  "scheduler": {"enabled": true, "interval": "20s"},
  "guilds": [
    {
      "id": "100",
      "timezone": "Europe/Berlin",
      "roles": {"primary": "200", "secondary": "201"},
      "channels": {"poll": "300", "report": "301", "log": "302"},
      "actions": {
        "midday": {"enabled": true, "at": "12:30", "grace_minutes": 5},
        "close": {"enabled": true, "at": "17:00", "clear_reactions": true},
        "weekly": {"enabled": true, "at": "21:00", "weekday": "sunday", "lookback_days": 7}
      }
    }
  ]
}`

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.json", sampleJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	g := cfg.Guild("100")
	if g == nil {
		t.Fatal("guild 100 not found")
	}
	if !g.Actions.Midday.Enabled || g.Actions.Midday.At != "12:30" {
		t.Fatalf("unexpected midday action: %+v", g.Actions.Midday)
	}
	if got := g.Actions.Midday.GraceOrDefault(); got != 5 {
		t.Fatalf("GraceOrDefault = %d, want 5", got)
	}
	// close omits grace_minutes, so the default applies
	if got := g.Actions.Close.GraceOrDefault(); got != DefaultGraceMinutes {
		t.Fatalf("GraceOrDefault = %d, want %d", got, DefaultGraceMinutes)
	}
	if got := m.Interval(); got != 20*time.Second {
		t.Fatalf("Interval = %v, want 20s", got)
	}
	if cfg.Guild("999") != nil {
		t.Fatal("unknown guild should resolve to nil")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	const y = `
discord:
  owner_user_ids: ["42"]
logging:
  level: info
  console: true
  file: {enabled: false, path: ""}
  discord: {enabled: false, channel_id: ""}
scheduler:
  enabled: true
guilds:
  - id: "100"
    roles: {primary: "200"}
    channels: {poll: "300", report: "301"}
    actions:
      nick_sync:
        enabled: true
        at: "04:00"
        labels:
          - {role_id: "200", label: "CPT"}
`
	m := NewManager(writeFile(t, "config.yaml", y))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	g := cfg.Guild("100")
	if g == nil {
		t.Fatal("guild 100 not found")
	}
	if len(g.Actions.NickSync.Labels) != 1 || g.Actions.NickSync.Labels[0].Label != "CPT" {
		t.Fatalf("unexpected labels: %+v", g.Actions.NickSync.Labels)
	}
	// interval omitted -> default
	if got := m.Interval(); got != 15*time.Second {
		t.Fatalf("Interval = %v, want 15s", got)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.json", `{"schedulerr": {}}`))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestTrailingDataRejected(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.json", `{"guilds": []}{"guilds": []}`))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestMarkerAndWeeklyDefaults(t *testing.T) {
	t.Parallel()
	var g GuildConfig
	if g.Markers.YesOrDefault() != DefaultYesMarker || g.Markers.NoOrDefault() != DefaultNoMarker {
		t.Fatal("marker defaults not applied")
	}
	var w WeeklyConfig
	if w.LookbackOrDefault() != 7 || w.MaxEntriesOrDefault() != 20 {
		t.Fatal("weekly defaults not applied")
	}
	if w.WeekdayOrDefault() != time.Sunday {
		t.Fatal("weekday default should be Sunday")
	}
	w.Weekday = "Friday"
	if w.WeekdayOrDefault() != time.Friday {
		t.Fatal("weekday parse failed")
	}
}
