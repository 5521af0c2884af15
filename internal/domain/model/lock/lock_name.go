package lock

import (
	"fmt"
	"strings"
)

// LockName is a value object identifying the resource a lock protects
// (e.g., the "issue-sync" operation). Exactly one unexpired holder may
// exist per name.
type LockName struct {
	value string
}

// NewLockName creates a lock name. Names must be non-empty and must not
// contain path separators, since they map to files in the lock store.
func NewLockName(value string) (LockName, error) {
	if value == "" {
		return LockName{}, fmt.Errorf("lock name cannot be empty")
	}
	if strings.ContainsAny(value, "/\\") {
		return LockName{}, fmt.Errorf("lock name cannot contain path separators: %q", value)
	}
	return LockName{value: value}, nil
}

// String returns the string representation of the lock name
func (n LockName) String() string {
	return n.value
}

// Equals checks if two lock names are equal
func (n LockName) Equals(other LockName) bool {
	return n.value == other.value
}
