package schedule

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"rosterbot/internal/roster"
)

const (
	// MaxContentLen is the platform's message content limit. Reminder
	// mention lists are split across sends to stay under it; nothing is
	// ever truncated away.
	MaxContentLen = 2000

	// maxFieldLen is the embed field value limit. Report member lists are
	// clipped with an explicit "+N more" so counts stay truthful.
	maxFieldLen = 1024

	pageSize     = 100
	maxScanPages = 10

	// Footer markers let the bot recognize its own polls and daily reports
	// when reading channel history back. The weekly rollup depends on the
	// report marker; both carry the poll date.
	pollFooterPrefix   = "attendance-poll"
	reportFooterPrefix = "attendance-report"

	colorPoll   = 0x5865F2
	colorReport = 0x57F287
	colorRollup = 0xFEE75C
)

func PollFooter(date string) string { return pollFooterPrefix + " • " + date }

func ReportFooter(date, runID string) string {
	return reportFooterPrefix + " • " + date + " • " + runID
}

// BuildPollEmbed renders the daily attendance poll.
func BuildPollEmbed(date string, yesMarker, noMarker string) Embed {
	return Embed{
		Title: "Attendance — " + date,
		Description: fmt.Sprintf("React %s if you will attend today, %s if you won't.",
			yesMarker, noMarker),
		Color:  colorPoll,
		Footer: PollFooter(date),
	}
}

// BuildReportEmbed renders the daily tally summary.
func BuildReportEmbed(t Tally, date, runID string) Embed {
	return Embed{
		Title: "Attendance report — " + date,
		Color: colorReport,
		Fields: []EmbedField{
			{Name: fmt.Sprintf("Present (%d)", len(t.Affirmative)), Value: memberField(t.Affirmative)},
			{Name: fmt.Sprintf("Absent (%d)", len(t.Negative)), Value: memberField(t.Negative)},
			{Name: fmt.Sprintf("No response (%d)", len(t.NonResponding)), Value: memberField(t.NonResponding)},
		},
		Footer: ReportFooter(date, runID),
	}
}

// AppendClosedNotice marks a poll embed as closed, idempotently.
func AppendClosedNotice(e Embed, closedAt string) Embed {
	const notice = "\n\n🔒 Poll closed"
	if strings.Contains(e.Description, "🔒 Poll closed") {
		return e
	}
	e.Description += notice + " (" + closedAt + ")."
	return e
}

func memberField(members []roster.Member) string {
	if len(members) == 0 {
		return "—"
	}
	sorted := append([]roster.Member(nil), members...)
	SortByDisplayName(sorted)

	var b strings.Builder
	for i, m := range sorted {
		tok := m.Mention()
		sep := 0
		if i > 0 {
			sep = 2
		}
		// leave room for a worst-case overflow suffix
		if b.Len()+sep+len(tok) > maxFieldLen-20 {
			fmt.Fprintf(&b, " +%d more", len(sorted)-i)
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tok)
	}
	return b.String()
}

// ChunkMentions packs member mentions into messages no longer than limit,
// splitting the list rather than truncating it. The first chunk starts with
// header; every mention appears exactly once across the returned slice.
func ChunkMentions(header string, members []roster.Member, limit int) []string {
	if len(members) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = MaxContentLen
	}
	sorted := append([]roster.Member(nil), members...)
	SortByDisplayName(sorted)

	var out []string
	cur := header
	for _, m := range sorted {
		tok := m.Mention()
		sep := " "
		if cur == header && header != "" {
			sep = "\n"
		}
		if cur == "" {
			sep = ""
		}
		if cur != "" && len(cur)+len(sep)+len(tok) > limit {
			out = append(out, cur)
			cur = tok
			continue
		}
		cur += sep + tok
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

var mentionRe = regexp.MustCompile(`<@!?(\d+)>`)

// ParseMentions extracts user IDs from mention tokens, deduplicated,
// in order of first appearance.
func ParseMentions(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range mentionRe.FindAllStringSubmatch(s, -1) {
		id := m[1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func embedFooter(m Message) string {
	if len(m.Embeds) == 0 {
		return ""
	}
	return m.Embeds[0].Footer
}

// IsDailyReport recognizes one of the bot's own daily report messages.
func IsDailyReport(m Message, botID string) bool {
	return m.AuthorID == botID && strings.HasPrefix(embedFooter(m), reportFooterPrefix)
}

func isPollFor(m Message, botID, date string) bool {
	return m.AuthorID == botID && embedFooter(m) == PollFooter(date)
}

// FindTodayPoll scans the poll channel backwards for the bot's poll embed
// carrying today's date marker. This is "read back what I previously
// wrote": the poll is identified by its footer, not by a stored ID, so a
// restarted process still finds it.
func FindTodayPoll(ctx context.Context, msgr Messenger, channelID, date string) (*Message, error) {
	botID := msgr.BotUserID()
	before := ""
	// the poll is at most a day old; a few pages are plenty
	for page := 0; page < 4; page++ {
		msgs, err := msgr.ChannelMessages(ctx, channelID, pageSize, before)
		if err != nil {
			return nil, fmt.Errorf("fetch poll channel history: %w", err)
		}
		if len(msgs) == 0 {
			return nil, nil
		}
		for i := range msgs {
			if isPollFor(msgs[i], botID, date) {
				return &msgs[i], nil
			}
		}
		before = msgs[len(msgs)-1].ID
	}
	return nil, nil
}

// RecentReports collects the bot's daily report messages newer than since,
// oldest first. The scan is paginated newest-first with a hard page cap so
// a busy channel bounds both memory and API time.
func RecentReports(ctx context.Context, msgr Messenger, channelID string, since time.Time) ([]Message, error) {
	botID := msgr.BotUserID()
	var collected []Message
	before := ""
scan:
	for page := 0; page < maxScanPages; page++ {
		msgs, err := msgr.ChannelMessages(ctx, channelID, pageSize, before)
		if err != nil {
			return nil, fmt.Errorf("fetch report channel history: %w", err)
		}
		if len(msgs) == 0 {
			break
		}
		for i := range msgs {
			if msgs[i].Timestamp.Before(since) {
				break scan
			}
			if IsDailyReport(msgs[i], botID) {
				collected = append(collected, msgs[i])
			}
		}
		before = msgs[len(msgs)-1].ID
	}
	// reverse newest-first into chronological order
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}

// MemberMisses is one row of the weekly rollup.
type MemberMisses struct {
	MemberID string
	Misses   int
}

// Rollup accumulates per-member no-response counts across daily reports.
// A member's count is the number of reports whose "No response" field
// mentions them. Ranking is by count descending; ties keep first-encounter
// order (stable sort), so the output is reproducible.
func Rollup(reports []Message) []MemberMisses {
	counts := make(map[string]int)
	var order []string
	for _, rep := range reports {
		for _, e := range rep.Embeds {
			for _, f := range e.Fields {
				if !strings.HasPrefix(f.Name, "No response") {
					continue
				}
				for _, id := range ParseMentions(f.Value) {
					if _, ok := counts[id]; !ok {
						order = append(order, id)
					}
					counts[id]++
				}
			}
		}
	}

	out := make([]MemberMisses, 0, len(order))
	for _, id := range order {
		out = append(out, MemberMisses{MemberID: id, Misses: counts[id]})
	}
	// stable: equal counts keep encounter order
	sort.SliceStable(out, func(i, j int) bool { return out[i].Misses > out[j].Misses })
	return out
}

// BuildRollupEmbed renders the ranked weekly summary, capped to maxEntries.
func BuildRollupEmbed(misses []MemberMisses, lookbackDays, maxEntries int, date, runID string) Embed {
	var b strings.Builder
	if len(misses) == 0 {
		b.WriteString("Everyone responded to every poll. 🎉")
	}
	shown := misses
	if maxEntries > 0 && len(shown) > maxEntries {
		shown = shown[:maxEntries]
	}
	for i, mm := range shown {
		fmt.Fprintf(&b, "%d. <@%s> — %d missed\n", i+1, mm.MemberID, mm.Misses)
	}
	if len(misses) > len(shown) {
		fmt.Fprintf(&b, "… and %d more", len(misses)-len(shown))
	}
	return Embed{
		Title:       fmt.Sprintf("Weekly attendance rollup (last %d days)", lookbackDays),
		Description: b.String(),
		Color:       colorRollup,
		Footer:      reportFooterPrefix + "-weekly • " + date + " • " + runID,
	}
}
