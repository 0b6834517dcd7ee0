package shared

import (
	"strings"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════
// Identifiers
// ═══════════════════════════════════════════════════════════════════════════

// UserID identifies the owner of a progress record. Users live in the
// account service; only the identifier crosses into this domain.
type UserID string

// IsValid checks if the user ID is a well-formed UUID.
func (u UserID) IsValid() bool {
	_, err := uuid.Parse(string(u))
	return err == nil
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID normalizes and validates a user ID.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.ToLower(strings.TrimSpace(id)))
	if !uid.IsValid() {
		return "", ErrInvalidUserID
	}
	return uid, nil
}

// NewID returns a fresh random identifier for tasks, sessions and ledger entries.
func NewID() string {
	return uuid.NewString()
}

// ParseID validates an entity identifier and returns it normalized.
func ParseID(id string, invalid error) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", invalid
	}
	return parsed.String(), nil
}
