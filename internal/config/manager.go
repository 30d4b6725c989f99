package config

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"rosterbot/pkg/logx"
)

// Manager is the config repository handed to the orchestrator: Load once at
// startup, Get a snapshot on every evaluation tick, Watch for live edits.
//
// A failed reload keeps the last good config; the scheduler never sees a
// half-written or invalid file.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	// lastHash tracks the last committed content so editor write storms
	// don't cause redundant reload churn.
	lastHash uint64

	onReload func(*Config)

	log logx.Logger
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetOnReload installs a hook invoked after a successful Watch reload.
// Must be set before Watch starts.
func (m *Manager) SetOnReload(fn func(*Config)) { m.onReload = fn }

// Guilds returns the configured guild list from the current snapshot.
func (m *Manager) Guilds() []GuildConfig {
	if cfg := m.Get(); cfg != nil {
		return cfg.Guilds
	}
	return nil
}

// GuildByID returns one guild's config, or nil when not configured.
func (m *Manager) GuildByID(id string) *GuildConfig { return m.Get().Guild(id) }

// Owners returns the user IDs allowed to run admin commands regardless of
// their guild permissions.
func (m *Manager) Owners() []string {
	if cfg := m.Get(); cfg != nil {
		return cfg.Discord.OwnerUserIDs
	}
	return nil
}

// Parse reads and strictly decodes the file without committing it.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, _, err := coerceToJSONBytes(m.path, b)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := decodeStrict(jb, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load parses and commits the file. Used once at startup.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.commit(cfg)
	return cfg, nil
}

// Get returns the current committed config. The returned pointer is shared;
// callers must treat it as read-only.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Interval resolves the scheduler tick interval with its default.
func (m *Manager) Interval() time.Duration {
	cfg := m.Get()
	if cfg == nil {
		return 15 * time.Second
	}
	raw := strings.TrimSpace(cfg.Scheduler.Interval)
	if raw == "" {
		return 15 * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < time.Second {
		return 15 * time.Second
	}
	return d
}

func (m *Manager) commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// Watch reloads the file on change until ctx is done. Reloads are debounced
// (editors often emit several events per save) and skipped when the content
// hash is unchanged. A broken watcher is recreated with a short backoff.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	base := filepath.Base(m.path)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		cfg, err := m.Parse()
		if err != nil {
			if !m.log.IsZero() {
				m.log.Warn("config reload rejected", logx.String("path", m.path), logx.Err(err))
			}
			return
		}
		h := hashConfig(cfg)
		m.mu.RLock()
		unchanged := h != 0 && h == m.lastHash
		m.mu.RUnlock()
		if unchanged {
			return
		}
		m.commit(cfg)
		if !m.log.IsZero() {
			m.log.Info("config reloaded", logx.String("path", m.path), logx.Int("guilds", len(cfg.Guilds)))
		}
		if m.onReload != nil {
			m.onReload(cfg)
		}
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, reload)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		w, err := fsnotify.NewWatcher()
		if err == nil {
			err = w.Add(dir)
			if err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			if !m.log.IsZero() {
				m.log.Warn("config watch unavailable", logx.String("dir", dir), logx.Err(err))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(2 * time.Second):
				continue
			}
		}

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				// Compare by basename; some editors replace the file via rename.
				if strings.EqualFold(filepath.Base(ev.Name), base) {
					if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
						debounce()
					}
				}
			case werr, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if werr != nil && !m.log.IsZero() {
					m.log.Warn("config watch error", logx.String("dir", dir), logx.Err(werr))
				}
			}
		}
		_ = w.Close()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}
