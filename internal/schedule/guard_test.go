package schedule

import (
	"testing"
	"time"
)

func TestGuardFiresOncePerSlot(t *testing.T) {
	t.Parallel()
	g := NewGuard()
	slot := Slot{Date: "2026-08-24", At: Clock{Hour: 12}}

	if !g.ShouldFire("guild", ActionMidday, slot) {
		t.Fatal("fresh slot should fire")
	}
	g.MarkFired("guild", ActionMidday, slot)
	if g.ShouldFire("guild", ActionMidday, slot) {
		t.Fatal("marked slot must not fire again")
	}
}

func TestGuardActionsAreIndependent(t *testing.T) {
	t.Parallel()
	g := NewGuard()
	slot := Slot{Date: "2026-08-24", At: Clock{Hour: 12}}

	g.MarkFired("guild", ActionMidday, slot)
	if !g.ShouldFire("guild", ActionClose, slot) {
		t.Fatal("close must not collide with midday on the same slot")
	}
	if !g.ShouldFire("other", ActionMidday, slot) {
		t.Fatal("guilds must not collide")
	}
}

// The slot key includes the calendar date: the same HH:MM is eligible
// again the next day.
func TestGuardResetsAcrossDates(t *testing.T) {
	t.Parallel()
	g := NewGuard()
	at := Clock{Hour: 12}
	day1 := time.Date(2026, 8, 24, 12, 3, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	g.MarkFired("guild", ActionMidday, SlotFor(day1, at))
	if g.ShouldFire("guild", ActionMidday, SlotFor(day1, at)) {
		t.Fatal("same day must not refire")
	}
	if !g.ShouldFire("guild", ActionMidday, SlotFor(day2, at)) {
		t.Fatal("next day must be a fresh slot")
	}
}

// A changed target time on the same date is a different slot: editing the
// config mid-day reschedules the action instead of suppressing it.
func TestGuardDistinguishesTargetTimes(t *testing.T) {
	t.Parallel()
	g := NewGuard()
	now := time.Date(2026, 8, 24, 12, 3, 0, 0, time.UTC)

	g.MarkFired("guild", ActionMidday, SlotFor(now, Clock{Hour: 12}))
	if !g.ShouldFire("guild", ActionMidday, SlotFor(now, Clock{Hour: 14})) {
		t.Fatal("new target time should be a fresh slot")
	}
}
