// Package safety gates every mutating operation behind four independent
// checks: the concurrency lock, the actor cooldown, the sliding-window
// rate limit and the loop detector. All four must pass before the caller
// may touch the registry or the tracker.
package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/tkoike/issuegate/internal/domain/model/attempt"
	"github.com/tkoike/issuegate/internal/domain/model/lock"
	"github.com/tkoike/issuegate/internal/domain/repository"
)

// Reason identifies which gate denied an attempt.
type Reason string

const (
	ReasonLockHeld       Reason = "lock-held"
	ReasonCooldownActive Reason = "cooldown-active"
	ReasonRateLimited    Reason = "rate-limited"
	ReasonLoopDetected   Reason = "loop-detected"
)

// Denial is the structured outcome of a failed gate check. Denials are
// expected, non-exceptional values; they are never raised as errors.
type Denial struct {
	Reason Reason
	Detail string
}

// Config holds the safety knobs. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	LockTTL          time.Duration // max lock hold before it is stealable
	RateLimitMaxOps  int           // granted ops per operation per window
	RateLimitWindow  time.Duration
	LoopThreshold    int // identical (actor, op) attempts within the window
	LoopWindow       time.Duration
	CooldownInterval time.Duration // min interval between an actor's attempts
}

// DefaultConfig returns the documented defaults: a 5 minute lock TTL
// (long enough for a full create/update cycle, short enough to bound
// crash impact), 10 ops per rolling hour, loop threshold 3 per hour, and
// a 30 minute actor cooldown.
func DefaultConfig() Config {
	return Config{
		LockTTL:          5 * time.Minute,
		RateLimitMaxOps:  10,
		RateLimitWindow:  time.Hour,
		LoopThreshold:    3,
		LoopWindow:       time.Hour,
		CooldownInterval: 30 * time.Minute,
	}
}

// Coordinator runs the gate checks in a fixed order so the reported
// denial reason is reproducible: Lock, Cooldown, Rate limit, Loop. The
// first failing check determines the reason; when the lock is denied no
// other check runs or logs.
type Coordinator struct {
	locks    repository.LockRepository
	attempts repository.AttemptLogRepository
	cfg      Config
}

// NewCoordinator creates a coordinator over the given stores.
func NewCoordinator(locks repository.LockRepository, attempts repository.AttemptLogRepository, cfg Config) *Coordinator {
	return &Coordinator{locks: locks, attempts: attempts, cfg: cfg}
}

// Gate checks all four policies for one attempt of operation by actorID.
// On success it records the attempt and returns the granted lock; the
// caller must Release it exactly once on every path, or let the TTL
// expire. On denial it returns (nil, denial, nil) with no lock held and
// nothing recorded. A non-nil error means the shared store itself failed.
func (c *Coordinator) Gate(ctx context.Context, operation, actorID string) (*lock.Lock, *Denial, error) {
	name, err := lock.NewLockName(operation)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid operation name: %w", err)
	}

	held, err := c.locks.Acquire(ctx, name, c.cfg.LockTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire %s lock: %w", operation, err)
	}
	if held == nil {
		return nil, &Denial{
			Reason: ReasonLockHeld,
			Detail: fmt.Sprintf("operation %q is already in flight", operation),
		}, nil
	}

	denial, err := c.checkPolicies(ctx, operation, actorID)
	if err != nil {
		c.releaseQuietly(ctx, held)
		return nil, nil, err
	}
	if denial != nil {
		// The denied caller exits without the lock; holding it would block
		// the next legitimate attempt for a full TTL.
		c.releaseQuietly(ctx, held)
		return nil, denial, nil
	}

	now := time.Now().UTC()
	if err := c.attempts.Record(ctx, attempt.New(actorID, operation, now)); err != nil {
		c.releaseQuietly(ctx, held)
		return nil, nil, fmt.Errorf("record attempt: %w", err)
	}

	return held, nil, nil
}

// Release returns the lock to the store. Safe to call with a lock that
// already expired and was stolen.
func (c *Coordinator) Release(ctx context.Context, l *lock.Lock) error {
	return c.locks.Release(ctx, l)
}

// checkPolicies runs the three log-backed checks in order. The lock is
// already held, so reads of the attempt logs are race-free for this
// operation.
func (c *Coordinator) checkPolicies(ctx context.Context, operation, actorID string) (*Denial, error) {
	now := time.Now().UTC()

	last, err := c.attempts.LastActorAttempt(ctx, actorID, operation)
	if err != nil {
		return nil, fmt.Errorf("read cooldown log: %w", err)
	}
	if last != nil {
		if elapsed := now.Sub(last.Timestamp); elapsed < c.cfg.CooldownInterval {
			return &Denial{
				Reason: ReasonCooldownActive,
				Detail: fmt.Sprintf("actor %q attempted %q %s ago (cooldown %s)", actorID, operation, elapsed.Round(time.Second), c.cfg.CooldownInterval),
			}, nil
		}
	}

	opCount, err := c.attempts.CountOperationSince(ctx, operation, now.Add(-c.cfg.RateLimitWindow))
	if err != nil {
		return nil, fmt.Errorf("read rate-limit log: %w", err)
	}
	if opCount >= c.cfg.RateLimitMaxOps {
		return &Denial{
			Reason: ReasonRateLimited,
			Detail: fmt.Sprintf("%d ops for %q in the last %s (max %d)", opCount, operation, c.cfg.RateLimitWindow, c.cfg.RateLimitMaxOps),
		}, nil
	}

	actorCount, err := c.attempts.CountActorSince(ctx, actorID, operation, now.Add(-c.cfg.LoopWindow))
	if err != nil {
		return nil, fmt.Errorf("read loop log: %w", err)
	}
	// This attempt would be identical op number actorCount+1 inside the
	// window; at the threshold it is treated as a probable feedback loop.
	if actorCount+1 >= c.cfg.LoopThreshold {
		return &Denial{
			Reason: ReasonLoopDetected,
			Detail: fmt.Sprintf("actor %q repeated %q %d times in the last %s", actorID, operation, actorCount, c.cfg.LoopWindow),
		}, nil
	}

	return nil, nil
}

func (c *Coordinator) releaseQuietly(ctx context.Context, l *lock.Lock) {
	// Release failure here is not fatal: the TTL bounds the damage.
	_ = c.locks.Release(ctx, l)
}
