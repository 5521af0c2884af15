package issuesync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkoike/issuegate/internal/domain/model/decision"
	"github.com/tkoike/issuegate/internal/domain/model/history"
	"github.com/tkoike/issuegate/internal/domain/model/lock"
	"github.com/tkoike/issuegate/internal/domain/model/report"
	"github.com/tkoike/issuegate/internal/domain/service/fingerprint"
	"github.com/tkoike/issuegate/internal/domain/service/safety"
	"github.com/tkoike/issuegate/internal/infra/repository/attemptlog"
	"github.com/tkoike/issuegate/internal/infra/repository/lockrepo"
	"github.com/tkoike/issuegate/internal/infra/repository/registryrepo"
)

// fakeTracker scripts the remote tracker per test.
type fakeTracker struct {
	createFn   func(ctx context.Context, title, body string, labels []string) (string, error)
	updateFn   func(ctx context.Context, externalID, fragment string) error
	creates    int
	updates    int
	lastUpdate string
}

func (f *fakeTracker) CreateIssue(ctx context.Context, title, body string, labels []string) (string, error) {
	f.creates++
	if f.createFn != nil {
		return f.createFn(ctx, title, body, labels)
	}
	return "ISSUE-1", nil
}

func (f *fakeTracker) UpdateIssue(ctx context.Context, externalID, fragment string) error {
	f.updates++
	f.lastUpdate = fragment
	if f.updateFn != nil {
		return f.updateFn(ctx, externalID, fragment)
	}
	return nil
}

// memHistory records audit entries in memory.
type memHistory struct {
	entries []history.Entry
}

func (m *memHistory) Record(ctx context.Context, e history.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memHistory) Recent(ctx context.Context, limit int) ([]history.Entry, error) {
	return m.entries, nil
}

func (m *memHistory) Close() error { return nil }

type harness struct {
	uc       *ProcessUseCase
	tracker  *fakeTracker
	registry *registryrepo.FileRegistryRepository
	locks    *lockrepo.FileLockRepository
	history  *memHistory
	fp       *fingerprint.Fingerprinter
}

// permissiveConfig disables the policy gates so the dedup flow can be
// exercised with back-to-back invocations; the lock gate stays real.
func permissiveConfig() safety.Config {
	return safety.Config{
		LockTTL:          5 * time.Minute,
		RateLimitMaxOps:  1000,
		RateLimitWindow:  time.Hour,
		LoopThreshold:    1000,
		LoopWindow:       time.Hour,
		CooldownInterval: 0,
	}
}

func newHarness(cfg safety.Config) *harness {
	fs := afero.NewMemMapFs()
	locks := lockrepo.NewFileLockRepository(fs, "/var/lock")
	attempts := attemptlog.NewFileAttemptLog(fs, "/var/attempts", 24*time.Hour, 24*time.Hour)
	registry := registryrepo.NewFileRegistryRepository(fs, "/var/registry/records.json")
	tracker := &fakeTracker{}
	hist := &memHistory{}
	fper := fingerprint.New(fingerprint.DefaultLength)

	return &harness{
		uc:       NewProcessUseCase(safety.NewCoordinator(locks, attempts, cfg), fper, registry, tracker, hist),
		tracker:  tracker,
		registry: registry,
		locks:    locks,
		history:  hist,
		fp:       fper,
	}
}

var sampleReport = report.CandidateReport{
	Title:  "Disk full on ci-worker",
	Body:   "No space left on device",
	Labels: []string{"ops", "ci"},
	Kind:   "bug",
}

func TestProcess_FirstReportCreates(t *testing.T) {
	h := newHarness(permissiveConfig())

	d, err := h.uc.Process(context.Background(), sampleReport, "ci-bot")
	require.NoError(t, err)
	assert.Equal(t, decision.ActionCreated, d.Action)
	assert.Equal(t, "ISSUE-1", d.ExternalID)
	assert.Equal(t, 1, h.tracker.creates)
	assert.Zero(t, h.tracker.updates)

	rec, err := h.registry.Lookup(context.Background(), h.fp.Fingerprint(sampleReport))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.IsProvisional())
	assert.Equal(t, 0, rec.UpdateCount)
}

func TestProcess_DuplicateReportUpdates(t *testing.T) {
	h := newHarness(permissiveConfig())
	ctx := context.Background()

	_, err := h.uc.Process(ctx, sampleReport, "ci-bot")
	require.NoError(t, err)

	// Same incident, different run: timestamps and refs differ
	dup := sampleReport
	dup.Body = "No space left on device"
	d, err := h.uc.Process(ctx, dup, "cron")
	require.NoError(t, err)

	assert.Equal(t, decision.ActionUpdated, d.Action)
	assert.Equal(t, "ISSUE-1", d.ExternalID)
	assert.Equal(t, 1, d.UpdateCount)
	assert.Equal(t, 1, h.tracker.creates, "duplicate must not create a second issue")
	assert.Equal(t, 1, h.tracker.updates)
	assert.Contains(t, h.tracker.lastUpdate, "cron", "update fragment names the reporting actor")
}

func TestProcess_ThirdDuplicateIncrementsCount(t *testing.T) {
	h := newHarness(permissiveConfig())
	ctx := context.Background()

	_, err := h.uc.Process(ctx, sampleReport, "actor-1")
	require.NoError(t, err)
	_, err = h.uc.Process(ctx, sampleReport, "actor-2")
	require.NoError(t, err)

	d, err := h.uc.Process(ctx, sampleReport, "actor-3")
	require.NoError(t, err)
	assert.Equal(t, decision.ActionUpdated, d.Action)
	assert.Equal(t, 2, d.UpdateCount)
}

func TestProcess_LockHeldSuppresses(t *testing.T) {
	h := newHarness(permissiveConfig())
	ctx := context.Background()

	name, err := lock.NewLockName(OperationIssueSync)
	require.NoError(t, err)
	held, err := h.locks.Acquire(ctx, name, 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, held)

	d, err := h.uc.Process(ctx, sampleReport, "ci-bot")
	require.NoError(t, err)
	assert.Equal(t, decision.ActionSuppressed, d.Action)
	assert.Equal(t, string(safety.ReasonLockHeld), d.Reason)
	assert.Zero(t, h.tracker.creates, "suppressed invocation must not reach the tracker")

	// Registry untouched
	rec, err := h.registry.Lookup(ctx, h.fp.Fingerprint(sampleReport))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestProcess_CooldownSuppresses(t *testing.T) {
	cfg := permissiveConfig()
	cfg.CooldownInterval = 30 * time.Minute
	h := newHarness(cfg)
	ctx := context.Background()

	_, err := h.uc.Process(ctx, sampleReport, "ci-bot")
	require.NoError(t, err)

	d, err := h.uc.Process(ctx, sampleReport, "ci-bot")
	require.NoError(t, err)
	assert.Equal(t, decision.ActionSuppressed, d.Action)
	assert.Equal(t, string(safety.ReasonCooldownActive), d.Reason)
	assert.Equal(t, 1, h.tracker.creates)
}

func TestProcess_TrackerCreateFailureRollsBack(t *testing.T) {
	h := newHarness(permissiveConfig())
	ctx := context.Background()
	h.tracker.createFn = func(ctx context.Context, title, body string, labels []string) (string, error) {
		return "", errors.New("tracker unreachable")
	}

	d, err := h.uc.Process(ctx, sampleReport, "ci-bot")
	require.NoError(t, err, "tracker failure is a decision, not an error")
	assert.Equal(t, decision.ActionSuppressed, d.Action)
	assert.Equal(t, decision.ReasonTrackerError, d.Reason)

	// The provisional record was rolled back
	rec, err := h.registry.Lookup(ctx, h.fp.Fingerprint(sampleReport))
	require.NoError(t, err)
	assert.Nil(t, rec)

	// And the lock was released, so a later retry can create
	h.tracker.createFn = nil
	d, err = h.uc.Process(ctx, sampleReport, "ci-bot")
	require.NoError(t, err)
	assert.Equal(t, decision.ActionCreated, d.Action)
}

func TestProcess_TrackerUpdateFailureCommitsNothing(t *testing.T) {
	h := newHarness(permissiveConfig())
	ctx := context.Background()

	_, err := h.uc.Process(ctx, sampleReport, "ci-bot")
	require.NoError(t, err)

	h.tracker.updateFn = func(ctx context.Context, externalID, fragment string) error {
		return errors.New("tracker unreachable")
	}
	d, err := h.uc.Process(ctx, sampleReport, "cron")
	require.NoError(t, err)
	assert.Equal(t, decision.ActionSuppressed, d.Action)
	assert.Equal(t, decision.ReasonTrackerError, d.Reason)

	rec, err := h.registry.Lookup(ctx, h.fp.Fingerprint(sampleReport))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 0, rec.UpdateCount, "failed update must not advance the count")
}

func TestProcess_FinishesProvisionalLeftover(t *testing.T) {
	h := newHarness(permissiveConfig())
	ctx := context.Background()
	fp := h.fp.Fingerprint(sampleReport)

	// Simulate a crash between the provisional write and the create
	_, created, err := h.registry.Upsert(ctx, fp, "", sampleReport.Title, "hash", nil, sampleReport.Kind)
	require.NoError(t, err)
	require.True(t, created)

	d, err := h.uc.Process(ctx, sampleReport, "ci-bot")
	require.NoError(t, err)
	assert.Equal(t, decision.ActionCreated, d.Action)
	assert.Equal(t, "ISSUE-1", d.ExternalID)
	assert.Zero(t, h.tracker.updates, "a provisional record is retried as a create")

	rec, err := h.registry.Lookup(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.IsProvisional())
}

func TestProcess_ProvisionalRetryFailureKeepsRecord(t *testing.T) {
	h := newHarness(permissiveConfig())
	ctx := context.Background()
	fp := h.fp.Fingerprint(sampleReport)

	_, _, err := h.registry.Upsert(ctx, fp, "", sampleReport.Title, "hash", nil, sampleReport.Kind)
	require.NoError(t, err)

	h.tracker.createFn = func(ctx context.Context, title, body string, labels []string) (string, error) {
		return "", errors.New("still unreachable")
	}
	d, err := h.uc.Process(ctx, sampleReport, "ci-bot")
	require.NoError(t, err)
	assert.Equal(t, decision.ActionSuppressed, d.Action)

	// The leftover record was not this invocation's to discard
	rec, err := h.registry.Lookup(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.IsProvisional())
}

func TestProcess_AuditsEveryDecision(t *testing.T) {
	h := newHarness(permissiveConfig())
	ctx := context.Background()

	_, err := h.uc.Process(ctx, sampleReport, "ci-bot")
	require.NoError(t, err)
	_, err = h.uc.Process(ctx, sampleReport, "cron")
	require.NoError(t, err)

	require.Len(t, h.history.entries, 2)
	assert.Equal(t, "created", h.history.entries[0].Action)
	assert.Equal(t, "ci-bot", h.history.entries[0].ActorID)
	assert.Equal(t, "updated", h.history.entries[1].Action)
	assert.NotEmpty(t, h.history.entries[0].InvocationID)
	assert.NotEqual(t, h.history.entries[0].InvocationID, h.history.entries[1].InvocationID)
}

func TestProcess_NilHistoryIsFine(t *testing.T) {
	h := newHarness(permissiveConfig())
	h.uc.history = nil

	d, err := h.uc.Process(context.Background(), sampleReport, "ci-bot")
	require.NoError(t, err)
	assert.Equal(t, decision.ActionCreated, d.Action)
}

func TestProcess_DecisionsValidate(t *testing.T) {
	h := newHarness(permissiveConfig())
	ctx := context.Background()

	for _, actor := range []string{"a", "b", "c"} {
		d, err := h.uc.Process(ctx, sampleReport, actor)
		require.NoError(t, err)
		assert.NoError(t, d.Validate())
	}
}
