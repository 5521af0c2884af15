package lock

import (
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
)

// Lock is a named, time-bounded mutual-exclusion token. A lock whose
// expiry has passed is considered abandoned and may be stolen by the next
// acquirer, so a crashed holder never wedges the system permanently.
type Lock struct {
	name       LockName
	holderID   string
	pid        int
	hostname   string
	acquiredAt time.Time
	expiresAt  time.Time
}

// New creates a lock held by the current process for the given TTL.
// The holder id is a fresh ULID so release can verify ownership even if
// the same process re-acquires the same name later.
func New(name LockName, ttl time.Duration) (*Lock, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("get hostname: %w", err)
	}

	entropy := ulid.Monotonic(rand.Reader, 0)
	holderID := ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()

	now := time.Now().UTC()
	return &Lock{
		name:       name,
		holderID:   holderID,
		pid:        os.Getpid(),
		hostname:   hostname,
		acquiredAt: now,
		expiresAt:  now.Add(ttl),
	}, nil
}

// Reconstruct rebuilds a Lock from persisted data.
// Used by the lock repository when loading lock files.
func Reconstruct(name LockName, holderID string, pid int, hostname string, acquiredAt, expiresAt time.Time) *Lock {
	return &Lock{
		name:       name,
		holderID:   holderID,
		pid:        pid,
		hostname:   hostname,
		acquiredAt: acquiredAt,
		expiresAt:  expiresAt,
	}
}

// IsExpired checks if the lock TTL has elapsed
func (l *Lock) IsExpired() bool {
	return time.Now().UTC().After(l.expiresAt)
}

// Getters
func (l *Lock) Name() LockName               { return l.name }
func (l *Lock) HolderID() string             { return l.holderID }
func (l *Lock) PID() int                     { return l.pid }
func (l *Lock) Hostname() string             { return l.hostname }
func (l *Lock) AcquiredAt() time.Time        { return l.acquiredAt }
func (l *Lock) ExpiresAt() time.Time         { return l.expiresAt }
func (l *Lock) RemainingTime() time.Duration { return time.Until(l.expiresAt) }
