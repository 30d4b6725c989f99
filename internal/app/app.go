// Package app wires the pieces together: config manager, logging service,
// gateway adapter, archive, scheduler, and the slash-command layer.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"rosterbot/internal/config"
	"rosterbot/internal/discord"
	"rosterbot/internal/schedule"
	"rosterbot/internal/store"
	"rosterbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	adapter *discord.Adapter
	archive *store.Store
	runner  *schedule.Runner
	cmds    *discord.Commands

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads the config and constructs every component without touching the
// network; Start opens the gateway.
func New(cfgPath, token string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	// Bootstrap with the relay disabled: the sink target isn't known until
	// the adapter exists, and enabling first would warn into the void.
	logCfg := mapLogConfig(cfg)
	logCfg.Relay.Enabled = false
	logs, log := logx.New(logCfg)
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))

	adapter, err := discord.New(token, logs.Logger().With(logx.String("comp", "discord")))
	if err != nil {
		logs.Close()
		return nil, err
	}
	adapter.SetLogChannel(cfg.Logging.Discord.ChannelID)
	logs.SetSink(adapter)
	logs.Apply(mapLogConfig(cfg))

	archive, err := store.Open(cfg.Store, logs.Logger().With(logx.String("comp", "store")))
	if err != nil {
		logs.Close()
		return nil, err
	}
	var archiver schedule.Archiver
	if archive != nil {
		archiver = archive
	}

	runner := schedule.NewRunner(cfgm, adapter, archiver,
		logs.Logger().With(logx.String("comp", "schedule")))

	cmds := discord.NewCommands(adapter, runner, archive, cfgm.Owners,
		logs.Logger().With(logx.String("comp", "commands")))

	a := &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		adapter: adapter,
		archive: archive,
		runner:  runner,
		cmds:    cmds,
	}
	cfgm.SetOnReload(a.onReload)
	return a, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Relay: logx.RelayConfig{
			Enabled:    cfg.Logging.Discord.Enabled,
			MinLevel:   cfg.Logging.Discord.MinLevel,
			RatePerSec: cfg.Logging.Discord.RatePerSec,
		},
	}
}

// onReload runs after the config watcher commits a new snapshot. The
// scheduler reads config fresh every tick on its own; logging and presence
// need an explicit re-apply.
func (a *App) onReload(cfg *config.Config) {
	a.adapter.SetLogChannel(cfg.Logging.Discord.ChannelID)
	a.logs.Apply(mapLogConfig(cfg))
	a.adapter.SetStatus(cfg.Discord.Status)
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	if err := a.adapter.Open(); err != nil {
		return err
	}
	a.adapter.SetStatus(cfg.Discord.Status)

	guildIDs := make([]string, 0, len(cfg.Guilds))
	for _, g := range cfg.Guilds {
		if g.ID != "" {
			guildIDs = append(guildIDs, g.ID)
		}
	}
	if err := a.cmds.Register(guildIDs); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	if cfg.Scheduler.Enabled {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			_ = a.runner.Run(runCtx)
		}()
	} else {
		a.log.Warn("scheduler disabled; only manual commands will run actions")
	}

	a.archive.StartPruner(runCtx)

	// no-op outside a systemd unit
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	a.log.Info("started",
		logx.Int("guilds", len(guildIDs)),
		logx.Bool("scheduler", cfg.Scheduler.Enabled),
		logx.Bool("archive", a.archive != nil))
	return nil
}

// Stop shuts everything down, posting a best-effort offline notice to each
// guild's log channel first so operators can tell a deploy from a crash.
func (a *App) Stop(ctx context.Context) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	noticeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	for _, g := range a.cfgm.Guilds() {
		if g.Channels.Log == "" {
			continue
		}
		_ = a.adapter.Send(noticeCtx, g.Channels.Log, "🛑 Going offline for a restart.")
	}
	cancel()

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if err := a.archive.Close(); err != nil {
		a.log.Warn("archive close failed", logx.Err(err))
	}
	if err := a.adapter.Close(); err != nil {
		a.log.Warn("gateway close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	a.logs.Close()
}
