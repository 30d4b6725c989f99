package roster

import "testing"

func TestFormatNickname(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		f    Facts
		want string
	}{
		{
			name: "kept nickname base wins over global name",
			f:    Facts{NickBase: "Shadow", GlobalName: "Paul", Username: "paul_x", Label: "CPT"},
			want: "[CPT] Shadow",
		},
		{
			name: "global name when no nickname",
			f:    Facts{GlobalName: "Paul", Username: "paul_x", Label: "CPT"},
			want: "[CPT] Paul",
		},
		{
			name: "normalized username as last resort",
			f:    Facts{Username: "dark_knight.77"},
			want: "Dark Knight",
		},
		{
			name: "no label",
			f:    Facts{NickBase: "Shadow"},
			want: "Shadow",
		},
		{
			name: "clipped to 32 runes",
			f:    Facts{NickBase: "abcdefghijklmnopqrstuvwxyz0123456789", Label: "X"},
			want: "[X] abcdefghijklmnopqrstuvwxyz01",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatNickname(tt.f); got != tt.want {
				t.Fatalf("FormatNickname(%+v) = %q, want %q", tt.f, got, tt.want)
			}
		})
	}
}

func TestSplitLabel(t *testing.T) {
	t.Parallel()
	label, base := SplitLabel("[CPT] Shadow")
	if label != "CPT" || base != "Shadow" {
		t.Fatalf("SplitLabel = (%q, %q), want (CPT, Shadow)", label, base)
	}
	label, base = SplitLabel("Shadow")
	if label != "" || base != "Shadow" {
		t.Fatalf("SplitLabel without tag = (%q, %q)", label, base)
	}
	label, base = SplitLabel("")
	if label != "" || base != "" {
		t.Fatalf("SplitLabel empty = (%q, %q)", label, base)
	}
}

func TestFactsForStripsExistingTag(t *testing.T) {
	t.Parallel()
	m := Member{
		User:  User{ID: "1", Username: "paul_x", GlobalName: "Paul"},
		Nick:  "[OLD] Shadow",
		Roles: []string{"r2"},
	}
	labels := []RoleLabel{{RoleID: "r1", Label: "CPT"}, {RoleID: "r2", Label: "SGT"}}
	f := FactsFor(m, labels)
	if f.NickBase != "Shadow" {
		t.Fatalf("NickBase = %q, want Shadow", f.NickBase)
	}
	if f.Label != "SGT" {
		t.Fatalf("Label = %q, want SGT", f.Label)
	}
	if got := FormatNickname(f); got != "[SGT] Shadow" {
		t.Fatalf("FormatNickname = %q", got)
	}
}

func TestLabelPriorityOrder(t *testing.T) {
	t.Parallel()
	m := Member{User: User{ID: "1"}, Roles: []string{"r1", "r2"}}
	labels := []RoleLabel{{RoleID: "r2", Label: "SGT"}, {RoleID: "r1", Label: "CPT"}}
	// first entry in the table that the member holds wins
	if got := labelFor(m, labels); got != "SGT" {
		t.Fatalf("labelFor = %q, want SGT", got)
	}
}

func TestEligible(t *testing.T) {
	t.Parallel()
	members := []Member{
		{User: User{ID: "1"}, Roles: []string{"p"}},
		{User: User{ID: "2"}, Roles: []string{"s"}},
		{User: User{ID: "3"}, Roles: []string{"other"}},
		{User: User{ID: "4", Bot: true}, Roles: []string{"p"}},
	}
	got := Eligible(members, "p", "s")
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "2" {
		t.Fatalf("Eligible = %+v", got)
	}
	if Eligible(members, "", "") != nil {
		t.Fatal("no configured roles should yield no eligible members")
	}
}

func TestNormalizeUsername(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"dark_knight.77", "Dark Knight"},
		{"paul", "Paul"},
		{"a-b_c", "A B C"},
		{"1234", ""},
	}
	for _, tt := range tests {
		if got := NormalizeUsername(tt.in); got != tt.want {
			t.Fatalf("NormalizeUsername(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
