package record

import "time"

// TrackingRecord links a content fingerprint to the externally tracked
// issue it resolved to. Records are created on the first sighting of a
// fingerprint and mutated on every later match; the engine never deletes
// a finalized record.
type TrackingRecord struct {
	Fingerprint     string    `json:"fingerprint"`
	ExternalIssueID string    `json:"external_issue_id"`
	TitleSnapshot   string    `json:"title_snapshot"`
	BodyHash        string    `json:"body_hash"`
	Labels          []string  `json:"labels"`
	Kind            string    `json:"kind"`
	CreatedAt       time.Time `json:"created_at"`
	LastUpdatedAt   time.Time `json:"last_updated_at"`
	UpdateCount     int       `json:"update_count"`
}

// New creates a record for a fingerprint seen for the first time.
// An empty externalID yields a provisional record: the registry entry is
// committed before the remote create is confirmed, and finalized once the
// tracker returns an id.
func New(fingerprint, externalID, title, bodyHash string, labels []string, kind string, now time.Time) *TrackingRecord {
	if labels == nil {
		labels = []string{}
	}
	return &TrackingRecord{
		Fingerprint:     fingerprint,
		ExternalIssueID: externalID,
		TitleSnapshot:   title,
		BodyHash:        bodyHash,
		Labels:          labels,
		Kind:            kind,
		CreatedAt:       now,
		LastUpdatedAt:   now,
		UpdateCount:     0,
	}
}

// IsProvisional reports whether the record is still waiting for its
// external issue id. A provisional record survives a crash between the
// registry write and the tracker create confirmation.
func (r *TrackingRecord) IsProvisional() bool {
	return r.ExternalIssueID == ""
}

// Finalize attaches the external issue id obtained from the tracker.
// It does not count as an update.
func (r *TrackingRecord) Finalize(externalID string, now time.Time) {
	r.ExternalIssueID = externalID
	r.LastUpdatedAt = now
}

// ApplyUpdate refreshes the snapshot fields for a later sighting of the
// same fingerprint and increments the update counter.
func (r *TrackingRecord) ApplyUpdate(title, bodyHash string, labels []string, kind string, now time.Time) {
	if labels == nil {
		labels = []string{}
	}
	r.TitleSnapshot = title
	r.BodyHash = bodyHash
	r.Labels = labels
	r.Kind = kind
	r.LastUpdatedAt = now
	r.UpdateCount++
}

// Clone returns an independent copy so registry callers cannot mutate
// the stored document through a returned pointer.
func (r *TrackingRecord) Clone() *TrackingRecord {
	c := *r
	c.Labels = append([]string{}, r.Labels...)
	return &c
}
