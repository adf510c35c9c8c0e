package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"reqline/internal/domain"
	"reqline/internal/store"
)

// reference is one outgoing link found in a property bag.
type reference struct {
	key string
	id  string
}

// collectReferences walks a property bag and extracts everything that looks
// like a link: bare UUID strings, objects with a UUID "id" field, and arrays
// of either. The property key travels along so scope rules can dispatch on it.
func collectReferences(props map[string]any) []reference {
	var refs []reference
	for key, value := range props {
		refs = appendReference(refs, key, value)
	}
	return refs
}

func appendReference(refs []reference, key string, value any) []reference {
	switch v := value.(type) {
	case string:
		// App user ids are not UUIDs, so the appUser key links by value.
		if key == "appUser" && v != "" {
			refs = append(refs, reference{key: key, id: v})
			return refs
		}
		if _, err := uuid.Parse(v); err == nil {
			refs = append(refs, reference{key: key, id: v})
		}
	case map[string]any:
		if id, ok := v["id"].(string); ok {
			if _, err := uuid.Parse(id); err == nil {
				refs = append(refs, reference{key: key, id: id})
			}
		}
	case []any:
		for _, item := range v {
			refs = appendReference(refs, key, item)
		}
	}
	return refs
}

// validateReferences checks the scope of every link in a property bag:
// appUser links must name a member of the solution's organization, solution
// links must point at the owning solution, and requirement links must resolve
// inside the same solution.
func (e Engine) validateReferences(ctx context.Context, solutionID string, props map[string]any) error {
	refs := collectReferences(props)
	if len(refs) == 0 {
		return nil
	}
	orgID, err := e.solutionOrg(ctx, solutionID)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		switch ref.key {
		case "appUser":
			if _, err := e.Store.GetAppUser(ctx, ref.id); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return MismatchError{Reason: "appUser " + ref.id + " does not exist"}
				}
				return err
			}
			role, err := e.Gate.AppUserOrganizationRole(ctx, ref.id, orgID)
			if err != nil {
				return err
			}
			if role == "" {
				return MismatchError{Reason: "appUser " + ref.id + " is not a member of organization " + orgID}
			}
		case "solution", "solutionId":
			if ref.id != solutionID {
				return MismatchError{Reason: "reference " + ref.key + " points outside this solution"}
			}
		default:
			target, err := e.Store.GetRequirement(ctx, ref.id)
			if errors.Is(err, store.ErrNotFound) {
				return MismatchError{Reason: "reference " + ref.key + " points at unknown requirement " + ref.id}
			}
			if err != nil {
				return err
			}
			if target.SolutionID != solutionID {
				return MismatchError{Reason: "reference " + ref.key + " points outside this solution"}
			}
		}
	}
	return nil
}

// assertReferencesActive verifies at approval time that every requirement the
// version links to is itself active. Self links are allowed.
func (e Engine) assertReferencesActive(ctx context.Context, req domain.Requirement) error {
	for _, ref := range collectReferences(req.Props) {
		switch ref.key {
		case "appUser", "solution", "solutionId":
			continue
		}
		if ref.id == req.ID {
			continue
		}
		target, err := e.Store.GetRequirement(ctx, ref.id)
		if errors.Is(err, store.ErrNotFound) {
			return MismatchError{Reason: "reference " + ref.key + " points at unknown requirement " + ref.id}
		}
		if err != nil {
			return err
		}
		if target.State != domain.StateActive {
			return InvalidWorkflowStateError{RequirementID: ref.id, State: target.State, Field: ref.key}
		}
	}
	return nil
}
