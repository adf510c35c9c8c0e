package engine

import "fmt"

// NotFoundError reports a missing entity by kind and id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// MismatchError reports a request that conflicts with the current data, such
// as a singleton collision or a reference into another solution.
type MismatchError struct {
	Reason string
}

func (e MismatchError) Error() string {
	return e.Reason
}

// InvalidWorkflowStateError reports an operation attempted against a
// requirement in the wrong workflow state. Field is set when the blocking
// requirement is a referenced one rather than the operation's subject.
type InvalidWorkflowStateError struct {
	RequirementID string
	State         string
	Op            string
	Field         string
}

func (e InvalidWorkflowStateError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("reference %s points at requirement %s in state %s, not active", e.Field, e.RequirementID, e.State)
	}
	return fmt.Sprintf("cannot %s requirement %s in state %s", e.Op, e.RequirementID, e.State)
}
