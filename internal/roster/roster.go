// Package roster holds the platform-independent member model: who a member
// is, whether they count as eligible for attendance tracking, and how their
// nickname should look. Nothing here touches the Discord SDK, so all of it
// is testable without a live session.
package roster

// User is the platform-agnostic account behind a guild member.
type User struct {
	ID         string
	Username   string
	GlobalName string // platform-wide display name; may be empty
	Bot        bool
}

// Member is a user inside one guild.
type Member struct {
	User
	Nick  string // per-guild nickname; may be empty
	Roles []string
}

func (m Member) HasRole(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range m.Roles {
		if r == id {
			return true
		}
	}
	return false
}

// DisplayName is what other members see, in Discord's precedence order.
func (m Member) DisplayName() string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.GlobalName != "" {
		return m.GlobalName
	}
	return m.Username
}

func (m Member) Mention() string { return "<@" + m.ID + ">" }

// Eligible filters members down to the non-bot holders of at least one of
// the two membership roles. With both role IDs empty nobody is eligible,
// which upstream treats as "tracking not configured" for the guild.
func Eligible(members []Member, primaryRole, secondaryRole string) []Member {
	if primaryRole == "" && secondaryRole == "" {
		return nil
	}
	var out []Member
	for _, m := range members {
		if m.Bot {
			continue
		}
		if m.HasRole(primaryRole) || m.HasRole(secondaryRole) {
			out = append(out, m)
		}
	}
	return out
}
