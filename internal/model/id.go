package model

import "strings"

type IDKind uint8

const (
	IDUnknown IDKind = iota
	IDPlayer
	IDNonPlayer
)

func (k IDKind) String() string {
	switch k {
	case IDPlayer:
		return "Player"
	case IDNonPlayer:
		return "NonPlayer"
	default:
		return "Unknown"
	}
}

// InternalID is the split form of an identifier such as
// "P[12345@67890 Alice@alice]" or "C[123 Space_Borg_Cube]".
type InternalID struct {
	Kind   IDKind
	Number string
	Name   string
}

func IsBlankID(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == "*"
}

func IsPlayerID(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "P[")
}

// ParseInternalID splits a bracketed internal identifier. Identifiers that do
// not follow the bracket convention return ok=false.
func ParseInternalID(s string) (InternalID, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 4 || s[1] != '[' || s[len(s)-1] != ']' {
		return InternalID{}, false
	}
	var id InternalID
	switch s[0] {
	case 'P':
		id.Kind = IDPlayer
	case 'C':
		id.Kind = IDNonPlayer
	default:
		return InternalID{}, false
	}
	body := s[2 : len(s)-1]
	num, name, found := strings.Cut(body, " ")
	id.Number = num
	if found {
		id.Name = strings.TrimSpace(name)
	}
	return id, true
}

// StrippedName returns the name portion of an internal id, or s unchanged
// when it has no bracketed form.
func StrippedName(s string) string {
	id, ok := ParseInternalID(s)
	if !ok || id.Name == "" {
		return s
	}
	return id.Name
}
