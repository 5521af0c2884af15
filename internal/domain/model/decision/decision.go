package decision

import "fmt"

// Action is the outcome variant of a process invocation.
type Action string

const (
	ActionCreated    Action = "created"
	ActionUpdated    Action = "updated"
	ActionSuppressed Action = "suppressed"
)

// ReasonTrackerError marks a suppression caused by a failed remote
// tracker call rather than a safety policy; the caller may retry the
// whole invocation on a later trigger.
const ReasonTrackerError = "tracker-error"

// Decision is the single result of processing a candidate report.
// Exactly one of the three variants applies:
//   - Created: a new tracked issue was filed
//   - Updated: an existing tracked issue was refreshed
//   - Suppressed: a safety gate or tracker failure stopped the operation
type Decision struct {
	Action      Action `json:"action"`
	ExternalID  string `json:"external_id,omitempty"`
	UpdateCount int    `json:"update_count,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Created builds the decision for a newly filed issue.
func Created(externalID string) Decision {
	return Decision{Action: ActionCreated, ExternalID: externalID}
}

// Updated builds the decision for a refreshed existing issue.
func Updated(externalID string, updateCount int) Decision {
	return Decision{Action: ActionUpdated, ExternalID: externalID, UpdateCount: updateCount}
}

// Suppressed builds the decision for a denied or failed operation.
func Suppressed(reason string) Decision {
	return Decision{Action: ActionSuppressed, Reason: reason}
}

// Validate checks the variant invariants.
func (d Decision) Validate() error {
	switch d.Action {
	case ActionCreated:
		if d.ExternalID == "" {
			return fmt.Errorf("created decision requires an external id")
		}
		if d.Reason != "" {
			return fmt.Errorf("created decision must not carry a reason")
		}
	case ActionUpdated:
		if d.ExternalID == "" {
			return fmt.Errorf("updated decision requires an external id")
		}
		if d.UpdateCount < 1 {
			return fmt.Errorf("updated decision requires update_count >= 1 (got %d)", d.UpdateCount)
		}
	case ActionSuppressed:
		if d.Reason == "" {
			return fmt.Errorf("suppressed decision requires a reason")
		}
		if d.ExternalID != "" || d.UpdateCount != 0 {
			return fmt.Errorf("suppressed decision must not carry issue fields")
		}
	default:
		return fmt.Errorf("unknown action %q", d.Action)
	}
	return nil
}
