package schedule

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"rosterbot/internal/config"
	"rosterbot/pkg/logx"
)

// Action names. Also used as slash-command choices and guard namespaces.
const (
	ActionPost     = "post"
	ActionMidday   = "midday"
	ActionClose    = "close"
	ActionWeekly   = "weekly"
	ActionNickSync = "nicksync"
)

var (
	ErrUnknownAction      = errors.New("unknown action")
	ErrGuildNotConfigured = errors.New("guild not configured")

	// errNoPoll: today's poll message is missing (never posted, or deleted).
	// The action is skipped for this guild this cycle with a warning.
	errNoPoll = errors.New("no poll message for today")
	// errNoEligible: the configured roles resolve to zero members; tracking
	// is a no-op for the guild.
	errNoEligible = errors.New("no eligible members")
)

// Runner is the action orchestrator: one polling loop over all configured
// guilds. Config is read fresh on every tick, so edits take effect within
// one interval; fire-once semantics come from the Guard, not from timer
// bookkeeping.
type Runner struct {
	cfg     ConfigSource
	msgr    Messenger
	archive Archiver
	guard   *Guard
	log     logx.Logger

	// now is swappable for tests.
	now func() time.Time

	// inFlight skips (never queues) a tick while the previous one runs.
	inFlight atomic.Bool
}

func NewRunner(cfg ConfigSource, msgr Messenger, archive Archiver, log logx.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		msgr:    msgr,
		archive: archive,
		guard:   NewGuard(),
		log:     log,
		now:     time.Now,
	}
}

// Run evaluates on the configured interval until ctx is done. The interval
// is re-read every cycle so a config edit applies without restart.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("scheduler started", logx.Duration("interval", r.cfg.Interval()))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("scheduler stopped")
			return nil
		case <-time.After(r.cfg.Interval()):
			r.Tick(ctx)
		}
	}
}

// Tick runs one evaluation pass over every configured guild. Guilds are
// processed sequentially; one guild's failure never reaches the next.
func (r *Runner) Tick(ctx context.Context) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.log.Debug("previous tick still running, skipping")
		return
	}
	defer r.inFlight.Store(false)

	guilds := r.cfg.Guilds()
	for i := range guilds {
		if guilds[i].ID == "" {
			continue
		}
		r.evalGuild(ctx, &guilds[i])
	}
}

func (r *Runner) evalGuild(ctx context.Context, g *config.GuildConfig) {
	loc := Location(g.Timezone, r.log.With(logx.String("guild", g.ID)))
	now := r.now().In(loc)

	for _, spec := range r.actionSpecs(g) {
		if !spec.enabled {
			continue
		}
		if spec.weekday != nil && now.Weekday() != *spec.weekday {
			continue
		}
		if !spec.at.Within(now, spec.grace) {
			continue
		}
		slot := SlotFor(now, spec.at)
		if !r.guard.ShouldFire(g.ID, spec.name, slot) {
			continue
		}
		// Mark before the body runs: a slow or failing body must not be
		// re-entered on later ticks of the same slot.
		r.guard.MarkFired(g.ID, spec.name, slot)
		r.execute(ctx, g, spec.name, now, spec.run)
	}
}

type actionFunc func(ctx context.Context, g *config.GuildConfig, now time.Time) error

type actionSpec struct {
	name    string
	enabled bool
	at      Clock
	grace   int
	weekday *time.Weekday
	run     actionFunc
}

func (r *Runner) actionSpecs(g *config.GuildConfig) []actionSpec {
	a := g.Actions
	wd := a.Weekly.WeekdayOrDefault()
	return []actionSpec{
		{
			name:    ActionPost,
			enabled: a.Post.Enabled,
			at:      ParseClock(a.Post.At, DefaultPostClock),
			grace:   a.Post.GraceOrDefault(),
			run:     r.runPost,
		},
		{
			name:    ActionMidday,
			enabled: a.Midday.Enabled,
			at:      ParseClock(a.Midday.At, DefaultMiddayClock),
			grace:   a.Midday.GraceOrDefault(),
			run:     r.runMidday,
		},
		{
			name:    ActionClose,
			enabled: a.Close.Enabled,
			at:      ParseClock(a.Close.At, DefaultCloseClock),
			grace:   a.Close.GraceOrDefault(),
			run:     r.runClose,
		},
		{
			name:    ActionWeekly,
			enabled: a.Weekly.Enabled,
			at:      ParseClock(a.Weekly.At, DefaultWeeklyClock),
			grace:   a.Weekly.GraceOrDefault(),
			weekday: &wd,
			run:     r.runWeekly,
		},
		{
			name:    ActionNickSync,
			enabled: a.NickSync.Enabled,
			at:      ParseClock(a.NickSync.At, DefaultNickSyncClock),
			grace:   a.NickSync.GraceOrDefault(),
			run:     r.runNickSync,
		},
	}
}

// execute runs one action body with full containment: a panic or error in
// one guild's action is logged (and mirrored to the guild's log channel
// when configured) and never stops the tick loop.
func (r *Runner) execute(ctx context.Context, g *config.GuildConfig, name string, now time.Time, fn actionFunc) {
	log := r.log.With(logx.String("guild", g.ID), logx.String("action", name))
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("action panicked", logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
			r.notifyFailure(ctx, g, name, fmt.Errorf("panic: %v", rec))
		}
	}()

	err := fn(ctx, g, now)
	switch {
	case err == nil:
		log.Info("action done", logx.Duration("took", time.Since(start)))
	case errors.Is(err, errNoPoll):
		log.Warn("today's poll message not found, skipping")
	case errors.Is(err, errNoEligible):
		log.Debug("no eligible members, nothing to do")
	default:
		log.Warn("action failed", logx.Err(err))
		r.notifyFailure(ctx, g, name, err)
	}
}

func (r *Runner) notifyFailure(ctx context.Context, g *config.GuildConfig, name string, err error) {
	if g.Channels.Log == "" {
		return
	}
	// best-effort; a failing log channel must not cascade
	_ = r.msgr.Send(ctx, g.Channels.Log, fmt.Sprintf("⚠️ scheduled %s failed: %v", name, err))
}

// RunAction executes one action immediately for one guild, bypassing the
// window and guard checks. The manual slash-command path goes through here
// so scheduled and manual execution share the exact same bodies.
func (r *Runner) RunAction(ctx context.Context, guildID, action string) error {
	g := r.cfg.GuildByID(guildID)
	if g == nil {
		return ErrGuildNotConfigured
	}
	now := r.now().In(Location(g.Timezone, r.log))
	for _, spec := range r.actionSpecs(g) {
		if spec.name == action {
			return spec.run(ctx, g, now)
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, action)
}
