// Package repository defines the persistence and gateway interfaces the
// engine depends on. Implementations live under internal/infra and
// internal/interface/external.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tkoike/issuegate/internal/domain/model/attempt"
	"github.com/tkoike/issuegate/internal/domain/model/history"
	"github.com/tkoike/issuegate/internal/domain/model/lock"
	"github.com/tkoike/issuegate/internal/domain/model/record"
)

// ErrCorruptState marks registry or log state that cannot be parsed.
// The invocation must surface it and refuse to mutate; nothing is
// silently dropped or overwritten.
var ErrCorruptState = errors.New("corrupt state")

// RegistryRepository owns the fingerprint -> TrackingRecord map.
type RegistryRepository interface {
	// Lookup returns the record for a fingerprint, or (nil, nil) when
	// absent. Reads are unlocked; callers re-validate through Upsert
	// before acting on the result.
	Lookup(ctx context.Context, fingerprint string) (*record.TrackingRecord, error)

	// Upsert creates a record with update_count=0 when the fingerprint is
	// absent, otherwise refreshes the snapshot and increments the count.
	// The returned bool reports creation. Two concurrent upserts on the
	// same fingerprint never both report creation.
	Upsert(ctx context.Context, fingerprint, externalID, title, bodyHash string, labels []string, kind string) (*record.TrackingRecord, bool, error)

	// Finalize attaches the external issue id to a provisional record
	// without counting an update.
	Finalize(ctx context.Context, fingerprint, externalID string) (*record.TrackingRecord, error)

	// Discard removes a provisional record. It exists solely to roll back
	// a provisional entry after a failed tracker create; finalized records
	// are never deleted.
	Discard(ctx context.Context, fingerprint string) error
}

// LockRepository manages named TTL locks in the shared store.
type LockRepository interface {
	// Acquire returns the granted lock, or (nil, nil) when an unexpired
	// holder exists. An expired holder is stolen atomically.
	Acquire(ctx context.Context, name lock.LockName, ttl time.Duration) (*lock.Lock, error)

	// Release removes the lock if it is still held by l's holder.
	// Releasing an already released or stolen lock is not an error.
	Release(ctx context.Context, l *lock.Lock) error

	// List returns all persisted locks, expired ones included.
	List(ctx context.Context) ([]*lock.Lock, error)

	// CleanupExpired removes expired lock files and reports how many.
	CleanupExpired(ctx context.Context) (int, error)
}

// AttemptLogRepository keeps the rolling operation-attempt logs consulted
// by the rate-limit, loop-detection and cooldown checks.
type AttemptLogRepository interface {
	// Record appends a granted attempt to the per-operation and the
	// per-(actor, operation) logs, pruning entries outside the retention
	// windows.
	Record(ctx context.Context, a attempt.OperationAttempt) error

	// CountOperationSince counts attempts for an operation, any actor,
	// strictly after since.
	CountOperationSince(ctx context.Context, operation string, since time.Time) (int, error)

	// CountActorSince counts attempts for one (actor, operation) pair
	// strictly after since.
	CountActorSince(ctx context.Context, actorID, operation string, since time.Time) (int, error)

	// LastActorAttempt returns the most recent attempt for the pair, or
	// (nil, nil) when the pair has never been granted.
	LastActorAttempt(ctx context.Context, actorID, operation string) (*attempt.OperationAttempt, error)
}

// HistoryRepository is the best-effort decision audit store.
type HistoryRepository interface {
	Record(ctx context.Context, e history.Entry) error
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
	Close() error
}

// TrackerGateway is the narrow interface to the external issue tracker.
// Both calls are fallible remote operations; any returned error is
// treated as transient.
type TrackerGateway interface {
	// CreateIssue files a new issue and returns its external id.
	CreateIssue(ctx context.Context, title, body string, labels []string) (string, error)

	// UpdateIssue appends a new body fragment to an existing issue.
	UpdateIssue(ctx context.Context, externalID, fragment string) error
}
