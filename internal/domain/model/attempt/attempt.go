package attempt

import "time"

// OperationAttempt is one granted mutating operation, logged transiently
// for the rate-limit, loop-detection and cooldown checks. Entries are
// pruned once they fall outside every window that consults them.
type OperationAttempt struct {
	ActorID   string    `json:"actor_id"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"ts"`
}

// New records an attempt by actorID for the named operation at now.
func New(actorID, operation string, now time.Time) OperationAttempt {
	return OperationAttempt{
		ActorID:   actorID,
		Operation: operation,
		Timestamp: now,
	}
}
