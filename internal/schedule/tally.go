package schedule

import (
	"sort"

	"rosterbot/internal/roster"
)

// Tally partitions the eligible member set by poll response. The three
// slices are pairwise disjoint and their union is exactly the eligible set.
type Tally struct {
	Affirmative   []roster.Member
	Negative      []roster.Member
	NonResponding []roster.Member
}

func (t Tally) EligibleCount() int {
	return len(t.Affirmative) + len(t.Negative) + len(t.NonResponding)
}

// ComputeTally classifies each eligible member by reaction state.
//
// Tie-break: a member who reacted with both markers counts as affirmative.
// The affirmative check runs first on purpose and a test pins it, so the
// order can't drift by accident. Bot accounts in the voter lists are
// ignored; they can't be eligible.
func ComputeTally(eligible []roster.Member, yesVoters, noVoters []roster.User) Tally {
	yes := voterSet(yesVoters)
	no := voterSet(noVoters)

	var t Tally
	for _, m := range eligible {
		switch {
		case yes[m.ID]:
			t.Affirmative = append(t.Affirmative, m)
		case no[m.ID]:
			t.Negative = append(t.Negative, m)
		default:
			t.NonResponding = append(t.NonResponding, m)
		}
	}
	return t
}

func voterSet(users []roster.User) map[string]bool {
	set := make(map[string]bool, len(users))
	for _, u := range users {
		if u.Bot {
			continue
		}
		set[u.ID] = true
	}
	return set
}

// SortByDisplayName orders members alphabetically by what the guild sees.
// Member sets carry no ordering; this is applied only when rendering so
// summaries come out deterministic.
func SortByDisplayName(members []roster.Member) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i].DisplayName(), members[j].DisplayName()
		if a == b {
			return members[i].ID < members[j].ID
		}
		return a < b
	})
}
