// Package issuesync is the engine entry point: it gates each candidate
// report through the safety coordinator, deduplicates it against the
// tracking registry, calls the external tracker and returns exactly one
// Decision.
package issuesync

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tkoike/issuegate/internal/app"
	"github.com/tkoike/issuegate/internal/domain/model/decision"
	"github.com/tkoike/issuegate/internal/domain/model/history"
	"github.com/tkoike/issuegate/internal/domain/model/report"
	"github.com/tkoike/issuegate/internal/domain/repository"
	"github.com/tkoike/issuegate/internal/domain/service/fingerprint"
	"github.com/tkoike/issuegate/internal/domain/service/safety"
)

// OperationIssueSync names the single mutating operation the engine
// performs; the concurrency lock, rate limit, loop detector and cooldown
// are all scoped to it.
const OperationIssueSync = "issue-sync"

// ProcessUseCase wires the coordinator, fingerprinter, registry, tracker
// and the optional history store into the process flow.
type ProcessUseCase struct {
	coordinator   *safety.Coordinator
	fingerprinter *fingerprint.Fingerprinter
	registry      repository.RegistryRepository
	tracker       repository.TrackerGateway
	history       repository.HistoryRepository // nil disables auditing
}

// NewProcessUseCase creates the orchestrator. history may be nil.
func NewProcessUseCase(
	coordinator *safety.Coordinator,
	fingerprinter *fingerprint.Fingerprinter,
	registry repository.RegistryRepository,
	tracker repository.TrackerGateway,
	history repository.HistoryRepository,
) *ProcessUseCase {
	return &ProcessUseCase{
		coordinator:   coordinator,
		fingerprinter: fingerprinter,
		registry:      registry,
		tracker:       tracker,
		history:       history,
	}
}

// Process decides what to do with one candidate report. Every policy
// denial and tracker failure comes back as a Suppressed decision, not an
// error; a non-nil error means the shared state itself is unusable and
// nothing was mutated.
func (u *ProcessUseCase) Process(ctx context.Context, r report.CandidateReport, actorID string) (decision.Decision, error) {
	log := app.GetLogger()
	invocationID := newInvocationID()

	held, denial, err := u.coordinator.Gate(ctx, OperationIssueSync, actorID)
	if err != nil {
		return decision.Decision{}, err
	}
	if denial != nil {
		log.Info("suppressed: %s (%s)", denial.Reason, denial.Detail)
		d := decision.Suppressed(string(denial.Reason))
		u.audit(ctx, invocationID, actorID, "", d)
		return d, nil
	}
	defer func() {
		if err := u.coordinator.Release(ctx, held); err != nil {
			log.Warn("release %s lock: %v", OperationIssueSync, err)
		}
	}()

	fp := u.fingerprinter.Fingerprint(r)
	bodyHash := fingerprint.BodyHash(r.Body)
	labels := r.NormalizedLabels()

	existing, err := u.registry.Lookup(ctx, fp)
	if err != nil {
		return decision.Decision{}, err
	}

	var d decision.Decision
	switch {
	case existing == nil:
		d, err = u.createNew(ctx, r, fp, bodyHash, labels)
	case existing.IsProvisional():
		// A previous invocation crashed between the registry write and the
		// create confirmation; retry the create and finalize.
		d, err = u.finishProvisional(ctx, r, fp)
	default:
		d, err = u.updateExisting(ctx, r, existing.ExternalIssueID, fp, bodyHash, labels, actorID)
	}
	if err != nil {
		return decision.Decision{}, err
	}

	u.audit(ctx, invocationID, actorID, fp, d)
	return d, nil
}

// createNew commits a provisional record before the remote create, so a
// crash after the tracker call cannot leave a remotely created issue
// without a local fingerprint mapping. A failed create rolls the
// provisional record back.
func (u *ProcessUseCase) createNew(ctx context.Context, r report.CandidateReport, fp, bodyHash string, labels []string) (decision.Decision, error) {
	log := app.GetLogger()

	if _, _, err := u.registry.Upsert(ctx, fp, "", r.Title, bodyHash, labels, r.Kind); err != nil {
		return decision.Decision{}, err
	}

	externalID, terr := u.tracker.CreateIssue(ctx, r.Title, r.Body, labels)
	if terr != nil {
		log.Warn("tracker create failed: %v", terr)
		if derr := u.registry.Discard(ctx, fp); derr != nil {
			log.Error("roll back provisional record %s: %v", fp, derr)
		}
		return decision.Suppressed(decision.ReasonTrackerError), nil
	}

	if _, err := u.registry.Finalize(ctx, fp, externalID); err != nil {
		// The issue exists remotely; surfacing the error without retrying
		// leaves the provisional record for the next invocation to finish.
		return decision.Decision{}, fmt.Errorf("finalize record for %s: %w", externalID, err)
	}
	log.Info("created issue %s for fingerprint %s", externalID, fp)
	return decision.Created(externalID), nil
}

// finishProvisional retries the remote create for a provisional record
// left by a crashed invocation. The record is kept on failure; it was not
// created by this invocation.
func (u *ProcessUseCase) finishProvisional(ctx context.Context, r report.CandidateReport, fp string) (decision.Decision, error) {
	log := app.GetLogger()

	externalID, terr := u.tracker.CreateIssue(ctx, r.Title, r.Body, r.NormalizedLabels())
	if terr != nil {
		log.Warn("tracker create (provisional retry) failed: %v", terr)
		return decision.Suppressed(decision.ReasonTrackerError), nil
	}
	if _, err := u.registry.Finalize(ctx, fp, externalID); err != nil {
		return decision.Decision{}, fmt.Errorf("finalize record for %s: %w", externalID, err)
	}
	log.Info("finalized provisional fingerprint %s as issue %s", fp, externalID)
	return decision.Created(externalID), nil
}

// updateExisting refreshes a tracked issue. The tracker is called before
// the registry mutation so a failed update commits nothing locally.
func (u *ProcessUseCase) updateExisting(ctx context.Context, r report.CandidateReport, externalID, fp, bodyHash string, labels []string, actorID string) (decision.Decision, error) {
	log := app.GetLogger()

	fragment := fmt.Sprintf("Recurred at %s (reported by %s)\n\n%s",
		time.Now().UTC().Format(time.RFC3339), actorID, r.Body)
	if terr := u.tracker.UpdateIssue(ctx, externalID, fragment); terr != nil {
		log.Warn("tracker update of %s failed: %v", externalID, terr)
		return decision.Suppressed(decision.ReasonTrackerError), nil
	}

	rec, _, err := u.registry.Upsert(ctx, fp, externalID, r.Title, bodyHash, labels, r.Kind)
	if err != nil {
		return decision.Decision{}, err
	}
	log.Info("updated issue %s (update %d) for fingerprint %s", externalID, rec.UpdateCount, fp)
	return decision.Updated(externalID, rec.UpdateCount), nil
}

// audit records the outcome best-effort; a failed history write never
// changes the decision.
func (u *ProcessUseCase) audit(ctx context.Context, invocationID, actorID, fp string, d decision.Decision) {
	if u.history == nil {
		return
	}
	err := u.history.Record(ctx, history.Entry{
		InvocationID: invocationID,
		ActorID:      actorID,
		Fingerprint:  fp,
		Action:       string(d.Action),
		ExternalID:   d.ExternalID,
		Reason:       d.Reason,
		DecidedAt:    time.Now().UTC(),
	})
	if err != nil {
		app.GetLogger().Warn("record decision history: %v", err)
	}
}

func newInvocationID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
