// Package conversation derives canonical identifiers for direct and group
// conversations. Everything here is pure.
package conversation

import (
	"sort"
	"strings"

	"go-chat-engine/internal/apperr"
)

const (
	directPrefix = "dm:"
	groupPrefix  = "grp:"
	pairSep      = "__"
)

// Fold is the case-folding rule used for every username comparison.
func Fold(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidUsername rejects names that cannot take part in a direct id.
func ValidUsername(name string) error {
	if strings.Contains(name, pairSep) {
		return apperr.New(apperr.InvalidArgument, "username must not contain "+pairSep)
	}
	return nil
}

// DirectID returns the id of the 1:1 conversation between a and b.
// The result does not depend on argument order or case, and distinct pairs
// never share an id.
func DirectID(a, b string) (string, error) {
	x, y := Fold(a), Fold(b)
	if x == "" || y == "" {
		return "", apperr.New(apperr.InvalidArgument, "both participants are required")
	}
	if err := ValidUsername(x); err != nil {
		return "", err
	}
	if err := ValidUsername(y); err != nil {
		return "", err
	}
	if y < x {
		x, y = y, x
	}
	return directPrefix + x + pairSep + y, nil
}

// GroupID returns the conversation id for a stored group identifier.
func GroupID(groupID string) string {
	return groupPrefix + groupID
}

// IsSelfChat reports whether a and b name the same participant.
func IsSelfChat(a, b string) bool {
	return Fold(a) == Fold(b)
}

// Participants returns the folded, sorted participant pair of a direct chat.
func Participants(a, b string) []string {
	out := []string{Fold(a), Fold(b)}
	sort.Strings(out)
	return out
}

// IsGroup reports whether id names a group conversation.
func IsGroup(id string) bool {
	return strings.HasPrefix(id, groupPrefix)
}
