// Package registryrepo persists the fingerprint -> TrackingRecord map as
// one JSON document, written via temp+rename so readers never observe a
// torn write. Mutations hold a short-lived guard so two concurrent
// upserts on the same fingerprint never both believe they created it.
package registryrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/tkoike/issuegate/internal/domain/model/record"
	"github.com/tkoike/issuegate/internal/domain/repository"
	"github.com/tkoike/issuegate/internal/infra/persistence/file"
)

const documentVersion = 1

// document is the on-disk shape of the registry.
type document struct {
	Version int                               `json:"version"`
	Records map[string]*record.TrackingRecord `json:"records"`
}

func newDocument() *document {
	return &document{Version: documentVersion, Records: map[string]*record.TrackingRecord{}}
}

// FileRegistryRepository implements repository.RegistryRepository over a
// single JSON document.
type FileRegistryRepository struct {
	fs    afero.Fs
	path  string
	guard *file.Guard
}

// NewFileRegistryRepository creates a registry stored at path. The guard
// file lives next to the document.
func NewFileRegistryRepository(fs afero.Fs, path string) *FileRegistryRepository {
	return &FileRegistryRepository{
		fs:    fs,
		path:  path,
		guard: file.NewGuard(fs, path+".guard"),
	}
}

// Lookup reads the current record for a fingerprint without locking.
// Staleness is acceptable: callers re-validate through Upsert before
// acting.
func (r *FileRegistryRepository) Lookup(ctx context.Context, fingerprint string) (*record.TrackingRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	rec, ok := doc.Records[fingerprint]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

// Upsert creates or updates the record for a fingerprint under the guard.
func (r *FileRegistryRepository) Upsert(ctx context.Context, fingerprint, externalID, title, bodyHash string, labels []string, kind string) (*record.TrackingRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	release, err := r.guard.Acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()

	doc, err := r.load()
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	rec, ok := doc.Records[fingerprint]
	created := false
	if !ok {
		rec = record.New(fingerprint, externalID, title, bodyHash, labels, kind, now)
		doc.Records[fingerprint] = rec
		created = true
	} else {
		rec.ApplyUpdate(title, bodyHash, labels, kind, now)
		if externalID != "" {
			rec.ExternalIssueID = externalID
		}
	}

	if err := r.save(doc); err != nil {
		return nil, false, err
	}
	return rec.Clone(), created, nil
}

// Finalize attaches the external id to a provisional record.
func (r *FileRegistryRepository) Finalize(ctx context.Context, fingerprint, externalID string) (*record.TrackingRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if externalID == "" {
		return nil, fmt.Errorf("finalize %s: external id cannot be empty", fingerprint)
	}
	release, err := r.guard.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	rec, ok := doc.Records[fingerprint]
	if !ok {
		return nil, fmt.Errorf("finalize %s: record not found", fingerprint)
	}
	rec.Finalize(externalID, time.Now().UTC())

	if err := r.save(doc); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Discard rolls back a provisional record. Finalized records are never
// removed; asking to discard one is a defect in the caller.
func (r *FileRegistryRepository) Discard(ctx context.Context, fingerprint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	release, err := r.guard.Acquire()
	if err != nil {
		return err
	}
	defer release()

	doc, err := r.load()
	if err != nil {
		return err
	}
	rec, ok := doc.Records[fingerprint]
	if !ok {
		return nil
	}
	if !rec.IsProvisional() {
		return fmt.Errorf("discard %s: record is finalized", fingerprint)
	}
	delete(doc.Records, fingerprint)
	return r.save(doc)
}

// All returns every record, keyed by fingerprint. Used by the status and
// doctor commands.
func (r *FileRegistryRepository) All(ctx context.Context) (map[string]*record.TrackingRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*record.TrackingRecord, len(doc.Records))
	for fp, rec := range doc.Records {
		out[fp] = rec.Clone()
	}
	return out, nil
}

func (r *FileRegistryRepository) load() (*document, error) {
	data, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return newDocument(), nil
		}
		return nil, fmt.Errorf("read registry %s: %w", r.path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: registry %s: %v", repository.ErrCorruptState, r.path, err)
	}
	if doc.Records == nil {
		doc.Records = map[string]*record.TrackingRecord{}
	}
	return &doc, nil
}

func (r *FileRegistryRepository) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	return file.WriteFileAtomic(r.fs, r.path, data, 0o644)
}
