package schedule

import (
	"sync"
	"time"
)

// Slot identifies one calendar date + target time combination: the unit of
// "fire at most once". The date component is what makes yesterday's 12:00
// and today's 12:00 different slots.
type Slot struct {
	Date string // "2006-01-02" in the guild's timezone
	At   Clock
}

// SlotFor builds the slot for a target clock on now's calendar date.
func SlotFor(now time.Time, at Clock) Slot {
	return Slot{Date: now.Format(time.DateOnly), At: at}
}

type guardKey struct {
	GuildID string
	Action  string
}

// Guard is the in-memory run-once ledger. One entry per (guild, action)
// holds the last fired slot; an action fires only when the computed slot
// differs from the stored one.
//
// State is process-lifetime only. A restart inside a firing window makes
// the next tick treat the slot as unfired and may duplicate a send; the
// sends are harmless when repeated, so this is accepted rather than
// persisted (see DESIGN.md).
type Guard struct {
	mu    sync.Mutex
	fired map[guardKey]Slot
}

func NewGuard() *Guard {
	return &Guard{fired: make(map[guardKey]Slot)}
}

// ShouldFire reports whether slot has not been fired yet for (guildID, action).
func (g *Guard) ShouldFire(guildID, action string, slot Slot) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.fired[guardKey{GuildID: guildID, Action: action}]
	return !ok || last != slot
}

// MarkFired records slot as fired. Callers mark BEFORE running the action
// body: a slow or partially failing body must not be re-entered on the
// next tick of the same slot.
func (g *Guard) MarkFired(guildID, action string, slot Slot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fired[guardKey{GuildID: guildID, Action: action}] = slot
}
