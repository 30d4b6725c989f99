package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"rosterbot/internal/config"
	"rosterbot/internal/roster"
	"rosterbot/pkg/logx"
)

// runID tags report footers so a specific send can be traced back from the
// channel to the logs (and makes the history-scan marker unambiguous).
func runID() string { return uuid.NewString()[:8] }

// collectTally locates today's poll and computes the live tally.
//
// Degradation rules:
//   - poll missing           -> errNoPoll, caller skips with a warning
//   - member fetch fails     -> error, caller skips this cycle
//   - zero eligible members  -> errNoEligible (poll still returned so close
//     can lock it)
//   - a marker's user fetch fails -> that marker counts as zero votes
func (r *Runner) collectTally(ctx context.Context, g *config.GuildConfig, now time.Time) (Tally, *Message, error) {
	date := now.Format(time.DateOnly)
	poll, err := FindTodayPoll(ctx, r.msgr, g.Channels.Poll, date)
	if err != nil {
		return Tally{}, nil, err
	}
	if poll == nil {
		return Tally{}, nil, errNoPoll
	}

	members, err := r.msgr.GuildMembers(ctx, g.ID)
	if err != nil {
		return Tally{}, poll, fmt.Errorf("fetch guild members: %w", err)
	}
	eligible := roster.Eligible(members, g.Roles.Primary, g.Roles.Secondary)
	if len(eligible) == 0 {
		return Tally{}, poll, errNoEligible
	}

	log := r.log.With(logx.String("guild", g.ID))
	yes, err := r.msgr.ReactionUsers(ctx, poll.ChannelID, poll.ID, g.Markers.YesOrDefault())
	if err != nil {
		log.Warn("yes-marker fetch failed, counting as empty", logx.Err(err))
		yes = nil
	}
	no, err := r.msgr.ReactionUsers(ctx, poll.ChannelID, poll.ID, g.Markers.NoOrDefault())
	if err != nil {
		log.Warn("no-marker fetch failed, counting as empty", logx.Err(err))
		no = nil
	}
	return ComputeTally(eligible, yes, no), poll, nil
}

// runPost publishes the day's attendance poll and seeds both markers.
// Idempotent per day: if today's poll already exists (e.g. posted via the
// manual command) nothing is sent.
func (r *Runner) runPost(ctx context.Context, g *config.GuildConfig, now time.Time) error {
	date := now.Format(time.DateOnly)
	existing, err := FindTodayPoll(ctx, r.msgr, g.Channels.Poll, date)
	if err != nil {
		return err
	}
	if existing != nil {
		r.log.Debug("poll already posted today", logx.String("guild", g.ID))
		return nil
	}

	id, err := r.msgr.SendEmbed(ctx, g.Channels.Poll, BuildPollEmbed(date, g.Markers.YesOrDefault(), g.Markers.NoOrDefault()))
	if err != nil {
		return fmt.Errorf("post poll: %w", err)
	}
	for _, marker := range []string{g.Markers.YesOrDefault(), g.Markers.NoOrDefault()} {
		if err := r.msgr.AddReaction(ctx, g.Channels.Poll, id, marker); err != nil {
			// members can still react on their own; not fatal
			r.log.Warn("could not seed reaction", logx.String("guild", g.ID), logx.String("marker", marker), logx.Err(err))
		}
	}
	return nil
}

// runMidday reminds the non-responders and posts the interim report.
func (r *Runner) runMidday(ctx context.Context, g *config.GuildConfig, now time.Time) error {
	t, _, err := r.collectTally(ctx, g, now)
	if err != nil {
		return err
	}

	if len(t.NonResponding) > 0 {
		header := fmt.Sprintf("⏰ Attendance reminder — %d member(s) have not voted on today's poll:", len(t.NonResponding))
		for _, chunk := range ChunkMentions(header, t.NonResponding, MaxContentLen) {
			if err := r.msgr.Send(ctx, g.Channels.Poll, chunk); err != nil {
				return fmt.Errorf("send reminder: %w", err)
			}
		}
	}

	date := now.Format(time.DateOnly)
	if _, err := r.msgr.SendEmbed(ctx, g.Channels.Report, BuildReportEmbed(t, date, runID())); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	return nil
}

// runClose posts the final report, archives the tally, and locks the poll.
// With zero eligible members the report is skipped but the poll is still
// closed, so an unconfigured roles block can't leave polls open forever.
func (r *Runner) runClose(ctx context.Context, g *config.GuildConfig, now time.Time) error {
	t, poll, err := r.collectTally(ctx, g, now)
	if err != nil && !errors.Is(err, errNoEligible) {
		return err
	}
	date := now.Format(time.DateOnly)

	if err == nil {
		if _, serr := r.msgr.SendEmbed(ctx, g.Channels.Report, BuildReportEmbed(t, date, runID())); serr != nil {
			return fmt.Errorf("send final report: %w", serr)
		}
		if r.archive != nil {
			if aerr := r.archive.RecordTally(ctx, g.ID, date, t); aerr != nil {
				r.log.Warn("archive write failed", logx.String("guild", g.ID), logx.Err(aerr))
			}
		}
	}

	if len(poll.Embeds) > 0 {
		closed := AppendClosedNotice(poll.Embeds[0], now.Format("15:04"))
		if eerr := r.msgr.EditEmbed(ctx, poll.ChannelID, poll.ID, closed); eerr != nil {
			return fmt.Errorf("close poll: %w", eerr)
		}
	}
	if g.Actions.Close.ClearReactions {
		if cerr := r.msgr.ClearReactions(ctx, poll.ChannelID, poll.ID); cerr != nil {
			r.log.Warn("could not clear poll reactions", logx.String("guild", g.ID), logx.Err(cerr))
		}
	}
	if notice := g.Actions.Close.Notice; notice != "" {
		if nerr := r.msgr.Send(ctx, g.Channels.Poll, notice); nerr != nil {
			r.log.Warn("could not post closing notice", logx.String("guild", g.ID), logx.Err(nerr))
		}
	}
	return nil
}

// runWeekly re-reads the daily reports posted over the lookback window and
// posts the ranked miss-count summary.
func (r *Runner) runWeekly(ctx context.Context, g *config.GuildConfig, now time.Time) error {
	w := g.Actions.Weekly
	lookback := w.LookbackOrDefault()
	since := now.AddDate(0, 0, -lookback)

	reports, err := RecentReports(ctx, r.msgr, g.Channels.Report, since)
	if err != nil {
		return err
	}
	misses := Rollup(reports)

	date := now.Format(time.DateOnly)
	embed := BuildRollupEmbed(misses, lookback, w.MaxEntriesOrDefault(), date, runID())
	if _, err := r.msgr.SendEmbed(ctx, g.Channels.Report, embed); err != nil {
		return fmt.Errorf("send rollup: %w", err)
	}
	r.log.Info("weekly rollup posted",
		logx.String("guild", g.ID),
		logx.Int("reports", len(reports)),
		logx.Int("members", len(misses)))
	return nil
}

// runNickSync reconciles every member's nickname with the role-label rule.
// Per-member failures are swallowed so one unmanageable member can't abort
// the batch; updates are paced to stay clear of the platform rate limit.
func (r *Runner) runNickSync(ctx context.Context, g *config.GuildConfig, _ time.Time) error {
	members, err := r.msgr.GuildMembers(ctx, g.ID)
	if err != nil {
		return fmt.Errorf("fetch guild members: %w", err)
	}

	cfgLabels := g.Actions.NickSync.Labels
	labels := make([]roster.RoleLabel, 0, len(cfgLabels))
	for _, l := range cfgLabels {
		labels = append(labels, roster.RoleLabel{RoleID: l.RoleID, Label: l.Label})
	}

	perMin := g.Actions.NickSync.UpdatesPerMinOrDefault()
	limiter := rate.NewLimiter(rate.Limit(float64(perMin)/60.0), 1)

	log := r.log.With(logx.String("guild", g.ID), logx.String("action", ActionNickSync))
	var updated, skipped, failed int
	for _, m := range members {
		if m.Bot {
			continue
		}
		target := roster.FormatNickname(roster.FactsFor(m, labels))
		if target == "" || target == m.DisplayName() {
			continue
		}
		if !r.msgr.CanManage(ctx, g.ID, m) {
			skipped++
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if err := r.msgr.SetNickname(ctx, g.ID, m.ID, target); err != nil {
			failed++
			log.Debug("nickname update failed", logx.String("member", m.ID), logx.Err(err))
			continue
		}
		updated++
	}
	log.Info("nickname sync finished",
		logx.Int("updated", updated),
		logx.Int("skipped", skipped),
		logx.Int("failed", failed))
	return nil
}
