package safety

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/tkoike/issuegate/internal/domain/model/attempt"
	"github.com/tkoike/issuegate/internal/domain/model/lock"
	"github.com/tkoike/issuegate/internal/infra/repository/attemptlog"
	"github.com/tkoike/issuegate/internal/infra/repository/lockrepo"
)

const op = "issue-sync"

type fixture struct {
	coord    *Coordinator
	locks    *lockrepo.FileLockRepository
	attempts *attemptlog.FileAttemptLog
}

func newFixture(cfg Config) *fixture {
	fs := afero.NewMemMapFs()
	locks := lockrepo.NewFileLockRepository(fs, "/var/lock")
	// Generous retention so seeded history survives every write
	attempts := attemptlog.NewFileAttemptLog(fs, "/var/attempts", 24*time.Hour, 24*time.Hour)
	return &fixture{
		coord:    NewCoordinator(locks, attempts, cfg),
		locks:    locks,
		attempts: attempts,
	}
}

func (f *fixture) seed(t *testing.T, actorID string, age time.Duration) {
	t.Helper()
	a := attempt.New(actorID, op, time.Now().UTC().Add(-age))
	if err := f.attempts.Record(context.Background(), a); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
}

func mustGrant(t *testing.T, f *fixture, actorID string) *lock.Lock {
	t.Helper()
	held, denial, err := f.coord.Gate(context.Background(), op, actorID)
	if err != nil {
		t.Fatalf("Gate: %v", err)
	}
	if denial != nil {
		t.Fatalf("Gate denied: %s (%s)", denial.Reason, denial.Detail)
	}
	if held == nil {
		t.Fatal("granted gate must return the lock")
	}
	return held
}

func mustDeny(t *testing.T, f *fixture, actorID string, want Reason) {
	t.Helper()
	held, denial, err := f.coord.Gate(context.Background(), op, actorID)
	if err != nil {
		t.Fatalf("Gate: %v", err)
	}
	if denial == nil {
		t.Fatalf("Gate granted, want denial %s", want)
	}
	if denial.Reason != want {
		t.Errorf("denial reason = %s, want %s", denial.Reason, want)
	}
	if held != nil {
		t.Error("denied gate must not return a lock")
	}
}

func TestGate_FreshStateGrants(t *testing.T) {
	f := newFixture(DefaultConfig())
	held := mustGrant(t, f, "ci-bot")
	defer f.coord.Release(context.Background(), held)

	// The grant itself is logged
	n, err := f.attempts.CountActorSince(context.Background(), "ci-bot", op, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("granted attempt count = %d, want 1", n)
	}
}

func TestGate_LockHeld(t *testing.T) {
	f := newFixture(DefaultConfig())

	name, err := lock.NewLockName(op)
	if err != nil {
		t.Fatal(err)
	}
	held, err := f.locks.Acquire(context.Background(), name, 5*time.Minute)
	if err != nil || held == nil {
		t.Fatalf("pre-acquire: %v", err)
	}

	mustDeny(t, f, "ci-bot", ReasonLockHeld)

	// A lock denial logs nothing
	n, err := f.attempts.CountOperationSince(context.Background(), op, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("lock-held denial recorded %d attempts, want 0", n)
	}
}

func TestGate_Cooldown(t *testing.T) {
	f := newFixture(DefaultConfig())

	f.seed(t, "ci-bot", 29*time.Minute)
	mustDeny(t, f, "ci-bot", ReasonCooldownActive)
}

func TestGate_CooldownElapsed(t *testing.T) {
	f := newFixture(DefaultConfig())

	f.seed(t, "ci-bot", 31*time.Minute)
	held := mustGrant(t, f, "ci-bot")
	f.coord.Release(context.Background(), held)
}

func TestGate_CooldownIsPerActor(t *testing.T) {
	f := newFixture(DefaultConfig())

	f.seed(t, "ci-bot", 5*time.Minute)
	held := mustGrant(t, f, "cron")
	f.coord.Release(context.Background(), held)
}

func TestGate_RateLimit(t *testing.T) {
	f := newFixture(DefaultConfig())

	// Nine distinct actors inside the window; the tenth grant still fits
	for i := 0; i < 9; i++ {
		f.seed(t, "actor-"+string(rune('a'+i)), time.Duration(50-i)*time.Minute)
	}
	held := mustGrant(t, f, "fresh-actor")
	f.coord.Release(context.Background(), held)

	// Now ten attempts fill the window; the eleventh is refused
	mustDeny(t, f, "another-actor", ReasonRateLimited)
}

func TestGate_RateLimitWindowRollsOff(t *testing.T) {
	f := newFixture(DefaultConfig())

	// Ten attempts, all older than the one-hour window
	for i := 0; i < 10; i++ {
		f.seed(t, "actor-"+string(rune('a'+i)), 2*time.Hour)
	}
	held := mustGrant(t, f, "fresh-actor")
	f.coord.Release(context.Background(), held)
}

func TestGate_LoopDetected(t *testing.T) {
	f := newFixture(DefaultConfig())

	// Two identical attempts inside the loop window, both past cooldown.
	// The third identical attempt trips the detector.
	f.seed(t, "ci-bot", 50*time.Minute)
	f.seed(t, "ci-bot", 35*time.Minute)
	mustDeny(t, f, "ci-bot", ReasonLoopDetected)
}

func TestGate_LoopWindowRollsOff(t *testing.T) {
	f := newFixture(DefaultConfig())

	// Identical attempts spread out so only one is inside the window
	f.seed(t, "ci-bot", 3*time.Hour)
	f.seed(t, "ci-bot", 2*time.Hour)
	f.seed(t, "ci-bot", 45*time.Minute)
	held := mustGrant(t, f, "ci-bot")
	f.coord.Release(context.Background(), held)
}

func TestGate_CooldownReportedBeforeRateLimit(t *testing.T) {
	f := newFixture(DefaultConfig())

	// Both gates would deny; the fixed check order makes cooldown win
	for i := 0; i < 10; i++ {
		f.seed(t, "actor-"+string(rune('a'+i)), time.Duration(50-i)*time.Minute)
	}
	f.seed(t, "ci-bot", 10*time.Minute)
	mustDeny(t, f, "ci-bot", ReasonCooldownActive)
}

func TestGate_RateLimitReportedBeforeLoop(t *testing.T) {
	f := newFixture(DefaultConfig())

	for i := 0; i < 10; i++ {
		f.seed(t, "actor-"+string(rune('a'+i)), time.Duration(55-i)*time.Minute)
	}
	// ci-bot would also trip the loop detector, but rate limit checks first
	f.seed(t, "ci-bot", 50*time.Minute)
	f.seed(t, "ci-bot", 35*time.Minute)
	mustDeny(t, f, "ci-bot", ReasonRateLimited)
}

func TestGate_DenialReleasesLock(t *testing.T) {
	f := newFixture(DefaultConfig())

	f.seed(t, "ci-bot", 5*time.Minute)
	mustDeny(t, f, "ci-bot", ReasonCooldownActive)

	// The lock must be free again for the next caller
	held := mustGrant(t, f, "cron")
	f.coord.Release(context.Background(), held)
}

func TestGate_ReleaseAllowsNextInvocation(t *testing.T) {
	f := newFixture(DefaultConfig())

	held := mustGrant(t, f, "ci-bot")
	if err := f.coord.Release(context.Background(), held); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// Different actor so no policy interferes
	next := mustGrant(t, f, "cron")
	f.coord.Release(context.Background(), next)
}

func TestGate_InvalidOperationName(t *testing.T) {
	f := newFixture(DefaultConfig())
	_, _, err := f.coord.Gate(context.Background(), "bad/name", "ci-bot")
	if err == nil {
		t.Error("operation names with path separators must be rejected")
	}
}
