package roster

import (
	"regexp"
	"strings"
	"unicode"
)

// Discord caps nicknames at 32 characters.
const maxNickLen = 32

// RoleLabel pairs a role ID with the nickname tag it confers. Order in a
// label list is priority order: the first role a member holds wins.
type RoleLabel struct {
	RoleID string
	Label  string
}

// Facts is the structured input to nickname formatting: the identifier
// chain plus the role-derived tag, decoupled from any SDK type.
type Facts struct {
	// NickBase is the member's current nickname with any existing
	// "[TAG] " prefix stripped. A manually chosen name survives resyncs;
	// only the tag is corrected.
	NickBase string
	// GlobalName is the platform-wide display name.
	GlobalName string
	// Username is the fallback, normalized before use.
	Username string
	// Label is the role-derived tag, empty when no labeled role is held.
	Label string
}

// FactsFor assembles Facts for one member against a guild's label table.
func FactsFor(m Member, labels []RoleLabel) Facts {
	_, base := SplitLabel(m.Nick)
	return Facts{
		NickBase:   base,
		GlobalName: m.GlobalName,
		Username:   m.Username,
		Label:      labelFor(m, labels),
	}
}

func labelFor(m Member, labels []RoleLabel) string {
	for _, rl := range labels {
		if m.HasRole(rl.RoleID) {
			return rl.Label
		}
	}
	return ""
}

// FormatNickname renders the target nickname: "[LABEL] base" or just the
// base when no labeled role applies. Base precedence: kept nickname base,
// then global display name, then the normalized username. The result is
// clipped to the platform's 32-character limit, label included.
func FormatNickname(f Facts) string {
	base := f.NickBase
	if base == "" {
		base = f.GlobalName
	}
	if base == "" {
		base = NormalizeUsername(f.Username)
	}
	out := base
	if f.Label != "" {
		out = "[" + f.Label + "] " + base
	}
	return clip(out, maxNickLen)
}

var labelPrefix = regexp.MustCompile(`^\[([^\[\]]+)\]\s*`)

// SplitLabel separates an existing "[TAG] rest" nickname into its tag and
// base. Nicknames without a tag return ("", nick).
func SplitLabel(nick string) (label, base string) {
	m := labelPrefix.FindStringSubmatch(nick)
	if m == nil {
		return "", nick
	}
	return m[1], strings.TrimSpace(nick[len(m[0]):])
}

// NormalizeUsername turns a machine-flavored username ("dark_knight.77")
// into something presentable: separators become spaces, trailing digit runs
// are dropped, words are title-cased.
func NormalizeUsername(u string) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case '_', '.', '-':
			return ' '
		}
		return r
	}, u)
	words := strings.Fields(s)
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimRightFunc(w, unicode.IsDigit)
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		out = append(out, string(r))
	}
	return strings.Join(out, " ")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
