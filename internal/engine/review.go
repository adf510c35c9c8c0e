package engine

import (
	"context"
	"errors"

	"reqline/internal/checks"
	"reqline/internal/domain"
)

// qualityCategories is the fixed review checklist shown for every requirement
// under review. Automated checks feed the categories they map to; the rest
// stay pending as prompts for the human reviewers.
var qualityCategories = []string{
	"Correctness",
	"Justifiability",
	"Completeness",
	"Consistency",
	"Non-Ambiguity",
	"Feasibility",
	"Traceability",
	"Verifiability",
	"Abstractness",
	"Delimitedness",
	"Readability",
	"Modifiability",
	"Prioritization",
}

// checkCategoryMap routes automated check results into checklist categories.
var checkCategoryMap = map[string]string{
	checks.TypeGrammar:     "Correctness",
	checks.TypeReadability: "Readability",
	checks.TypeGlossary:    "Non-Ambiguity",
}

// GetReviewState assembles the review checklist for the latest version of a
// requirement: the role-based endorsements followed by the fixed quality
// categories, with the acting user's own pending endorsement marked
// reviewable.
func (e Engine) GetReviewState(ctx context.Context, actorID, requirementID string) (domain.ReviewState, error) {
	req, err := e.getLatest(ctx, requirementID)
	if err != nil {
		return domain.ReviewState{}, err
	}
	if err := e.requireReader(ctx, req.SolutionID, actorID); err != nil {
		return domain.ReviewState{}, err
	}
	endorsements, err := e.Store.ListEndorsements(ctx, req.ID, req.Version)
	if err != nil {
		return domain.ReviewState{}, err
	}

	var actingPersonID string
	if person, err := e.ActingPerson(ctx, req.SolutionID, actorID); err == nil {
		actingPersonID = person.RequirementID
	}

	state := domain.ReviewState{RequirementID: req.ID}
	byCategory := map[string]domain.Endorsement{}
	for _, endorsement := range endorsements {
		if endorsement.Category == domain.CategoryRoleBased {
			item := domain.ReviewItem{
				ID:         endorsement.ID,
				Category:   domain.CategoryRoleBased,
				Title:      roleItemTitle(endorsement),
				Status:     endorsement.Status,
				IsRequired: true,
			}
			if endorsement.Status == domain.EndorsementPending &&
				endorsement.EndorsedBy != nil && *endorsement.EndorsedBy == actingPersonID {
				item.CanUserReview = true
			}
			state.Items = append(state.Items, item)
			continue
		}
		if category, ok := checkCategoryMap[endorsement.Category]; ok {
			byCategory[category] = endorsement
		}
	}
	for _, category := range qualityCategories {
		item := domain.ReviewItem{
			Category: category,
			Title:    category,
			Status:   domain.EndorsementPending,
		}
		if endorsement, ok := byCategory[category]; ok {
			item.ID = endorsement.ID
			item.Status = endorsement.Status
			item.Description = endorsement.Comments
		}
		state.Items = append(state.Items, item)
	}
	state.Overall = ComputeOverall(req.State, endorsements)
	return state, nil
}

func roleItemTitle(endorsement domain.Endorsement) string {
	if endorsement.EndorsedBy != nil {
		return "Endorsement by person " + *endorsement.EndorsedBy
	}
	return "Endorsement"
}

// ComputeOverall summarizes an endorsement ledger. No ledger means the
// version never entered review.
func ComputeOverall(reqState string, endorsements []domain.Endorsement) string {
	if len(endorsements) == 0 {
		return domain.ReviewNone
	}
	if reqState == domain.StateActive {
		return domain.ReviewApproved
	}
	if reqState == domain.StateRejected {
		return domain.ReviewRejected
	}
	pending, resolved := 0, 0
	for _, endorsement := range endorsements {
		switch endorsement.Status {
		case domain.EndorsementRejected:
			return domain.ReviewRejected
		case domain.EndorsementPending:
			pending++
		default:
			resolved++
		}
	}
	switch {
	case pending == 0:
		return domain.ReviewApproved
	case resolved > 0:
		return domain.ReviewPartial
	default:
		return domain.ReviewPending
	}
}

// validateEndorsementsResolved rejects a manual review outcome while any
// endorsement is unresolved.
func validateEndorsementsResolved(requirementID string, endorsements []domain.Endorsement) error {
	if len(endorsements) == 0 {
		return MismatchError{Reason: "requirement " + requirementID + " has no endorsement ledger"}
	}
	for _, endorsement := range endorsements {
		if endorsement.Status == domain.EndorsementPending {
			return MismatchError{Reason: "endorsement " + endorsement.ID + " is still pending"}
		}
	}
	return nil
}

// validateAllEndorsementsComplete rejects a manual approval while any
// endorsement is unresolved or any has been rejected.
func validateAllEndorsementsComplete(requirementID string, endorsements []domain.Endorsement) error {
	if err := validateEndorsementsResolved(requirementID, endorsements); err != nil {
		return err
	}
	for _, endorsement := range endorsements {
		if endorsement.Status == domain.EndorsementRejected {
			return MismatchError{Reason: "endorsement " + endorsement.ID + " was rejected"}
		}
	}
	return nil
}

// CheckAndAutoTransition applies the automatic review outcome. A rejected
// endorsement rejects the requirement, but only once no endorsement of any
// category is still pending. Approval waits for the role-based endorsements;
// a pending automated check does not hold up an otherwise unanimous approval.
func (e Engine) CheckAndAutoTransition(ctx context.Context, requirementID string) error {
	req, err := e.getLatest(ctx, requirementID)
	if err != nil {
		return err
	}
	if req.State != domain.StateReview {
		return nil
	}
	endorsements, err := e.Store.ListEndorsements(ctx, req.ID, req.Version)
	if err != nil {
		return err
	}
	rejected, anyPending, rolePending := false, false, false
	for _, endorsement := range endorsements {
		switch endorsement.Status {
		case domain.EndorsementRejected:
			rejected = true
		case domain.EndorsementPending:
			anyPending = true
			if endorsement.Category == domain.CategoryRoleBased {
				rolePending = true
			}
		}
	}
	if rejected {
		if anyPending {
			return nil
		}
		_, err := e.reject(ctx, SystemActor, req, "rejected by review outcome")
		return err
	}
	if rolePending {
		return nil
	}
	if _, err := e.activate(ctx, SystemActor, req); err != nil {
		// Leave the requirement in review when activation guards fail,
		// for example when a referenced requirement is not active yet.
		var mismatch MismatchError
		var blocked InvalidWorkflowStateError
		if errors.As(err, &mismatch) || errors.As(err, &blocked) {
			logWarn("auto approval of requirement %s deferred: %v", req.ID, err)
			return nil
		}
		return err
	}
	return nil
}
