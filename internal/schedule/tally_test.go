package schedule

import (
	"testing"

	"rosterbot/internal/roster"
)

func member(id, name string) roster.Member {
	return roster.Member{User: roster.User{ID: id, Username: name}}
}

func user(id string) roster.User { return roster.User{ID: id} }

func idsOf(members []roster.Member) map[string]bool {
	out := make(map[string]bool, len(members))
	for _, m := range members {
		out[m.ID] = true
	}
	return out
}

// Partition law: the three buckets are pairwise disjoint and their union
// is exactly the eligible set.
func TestComputeTallyPartition(t *testing.T) {
	t.Parallel()
	eligible := []roster.Member{
		member("1", "a"), member("2", "b"), member("3", "c"),
		member("4", "d"), member("5", "e"),
	}
	yes := []roster.User{user("1"), user("2"), user("99")}          // 99 not eligible
	no := []roster.User{user("3"), {ID: "7", Bot: true}, user("8")} // bot + non-eligible

	got := ComputeTally(eligible, yes, no)

	if len(got.Affirmative) != 2 || len(got.Negative) != 1 || len(got.NonResponding) != 2 {
		t.Fatalf("unexpected bucket sizes: %d/%d/%d",
			len(got.Affirmative), len(got.Negative), len(got.NonResponding))
	}
	if got.EligibleCount() != len(eligible) {
		t.Fatalf("union size = %d, want %d", got.EligibleCount(), len(eligible))
	}

	aff, neg, non := idsOf(got.Affirmative), idsOf(got.Negative), idsOf(got.NonResponding)
	for id := range aff {
		if neg[id] || non[id] {
			t.Fatalf("member %s appears in more than one bucket", id)
		}
	}
	for id := range neg {
		if non[id] {
			t.Fatalf("member %s appears in more than one bucket", id)
		}
	}
	for _, m := range eligible {
		if !aff[m.ID] && !neg[m.ID] && !non[m.ID] {
			t.Fatalf("member %s missing from all buckets", m.ID)
		}
	}
}

// Pinned tie-break: a member who reacted with both markers is affirmative.
func TestComputeTallyBothMarkersAffirmativeWins(t *testing.T) {
	t.Parallel()
	eligible := []roster.Member{member("1", "a")}
	got := ComputeTally(eligible, []roster.User{user("1")}, []roster.User{user("1")})
	if len(got.Affirmative) != 1 || len(got.Negative) != 0 {
		t.Fatalf("double-voter should land in Affirmative, got %+v", got)
	}
}

func TestComputeTallyNoReactions(t *testing.T) {
	t.Parallel()
	eligible := []roster.Member{member("1", "a"), member("2", "b"), member("3", "c")}
	got := ComputeTally(eligible, nil, nil)
	if len(got.NonResponding) != 3 || len(got.Affirmative) != 0 || len(got.Negative) != 0 {
		t.Fatalf("expected everyone non-responding, got %+v", got)
	}
}

func TestSortByDisplayName(t *testing.T) {
	t.Parallel()
	ms := []roster.Member{
		{User: roster.User{ID: "2", Username: "zed"}},
		{User: roster.User{ID: "1", Username: "anna"}, Nick: "Queen"},
		{User: roster.User{ID: "3", Username: "bob"}},
	}
	SortByDisplayName(ms)
	// byte order: "Queen" < "bob" < "zed" (uppercase sorts first)
	if ms[0].ID != "1" || ms[1].ID != "3" || ms[2].ID != "2" {
		t.Fatalf("unexpected order: %s %s %s", ms[0].ID, ms[1].ID, ms[2].ID)
	}
}
