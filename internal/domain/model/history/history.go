package history

import "time"

// Entry is one audited process outcome. History is a best-effort record:
// a failed history write never fails the decision it describes.
type Entry struct {
	ID           int64
	InvocationID string
	ActorID      string
	Fingerprint  string
	Action       string
	ExternalID   string
	Reason       string
	DecidedAt    time.Time
}
