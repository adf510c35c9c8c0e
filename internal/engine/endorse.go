package engine

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"reqline/internal/checks"
	"reqline/internal/domain"
	"reqline/internal/events"
	"reqline/internal/store"
	"reqline/internal/taxonomy"
)

var checkTitles = map[string]string{
	checks.TypeGrammar:     "Grammar",
	checks.TypeReadability: "Readability",
	checks.TypeGlossary:    "Glossary terms",
}

var checkDescriptions = map[string]string{
	checks.TypeGrammar:     "Automated grammar analysis of the requirement text",
	checks.TypeReadability: "Sentence length and structure analysis",
	checks.TypeGlossary:    "Scan for vague or undefined terms",
}

// createMandatoryEndorsements seeds the endorsement ledger for a version
// entering review: a pending role-based endorsement per eligible active
// person plus a pending placeholder per enabled automated check. Returns the
// check types to dispatch after commit.
func (e Engine) createMandatoryEndorsements(ctx context.Context, tx *sql.Tx, req domain.Requirement, now string) ([]string, error) {
	category := taxonomy.Category(req.ReqID)
	persons, err := e.Store.ListActiveRequirementsTx(ctx, tx, req.SolutionID, taxonomy.Person)
	if err != nil {
		return nil, err
	}
	var eligible []domain.Person
	for _, pr := range persons {
		p := domain.PersonFromRequirement(pr)
		if p.CanEndorseCategory(category) {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return nil, MismatchError{Reason: "no active person is eligible to endorse this requirement"}
	}
	for _, p := range eligible {
		personID := p.RequirementID
		endorsement := domain.Endorsement{
			ID:                 uuid.NewString(),
			RequirementID:      req.ID,
			RequirementVersion: req.Version,
			ReqType:            req.ReqType,
			Category:           domain.CategoryRoleBased,
			Status:             domain.EndorsementPending,
			EndorsedBy:         &personID,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := e.Store.CreateEndorsement(ctx, tx, endorsement); err != nil {
			return nil, err
		}
	}

	enabled := e.Config.EnabledChecks()
	for _, checkType := range enabled {
		placeholder := domain.Endorsement{
			ID:                 uuid.NewString(),
			RequirementID:      req.ID,
			RequirementVersion: req.Version,
			ReqType:            req.ReqType,
			Category:           checkType,
			Status:             domain.EndorsementPending,
			CheckDetails: &domain.CheckDetails{
				Type:        checkType,
				Title:       checkTitles[checkType],
				Description: checkDescriptions[checkType],
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.Store.CreateEndorsement(ctx, tx, placeholder); err != nil {
			return nil, err
		}
	}
	return enabled, nil
}

// dispatchChecks runs the enabled automated checks on a background worker and
// records their outcomes on the pending placeholders. Failures are annotated
// on the placeholder so a retry can pick them up.
func (e Engine) dispatchChecks(req domain.Requirement, checkTypes []string) {
	if len(checkTypes) == 0 || e.Runner == nil || e.Provider == nil {
		return
	}
	e.Runner.Go(context.Background(), func(ctx context.Context) {
		retryCounts := map[string]int{}
		if existing, err := e.Store.ListEndorsements(ctx, req.ID, req.Version); err == nil {
			for _, endorsement := range existing {
				if endorsement.CheckDetails != nil {
					retryCounts[endorsement.Category] = endorsement.CheckDetails.RetryCount
				}
			}
		}
		results, err := e.Provider.PerformChecks(ctx, req, checkTypes)
		now := e.now()
		if err != nil {
			logWarn("automated checks for requirement %s v%d failed: %v", req.ID, req.Version, err)
			for _, checkType := range checkTypes {
				details := &domain.CheckDetails{
					Type:         checkType,
					Title:        checkTitles[checkType],
					Description:  checkDescriptions[checkType],
					RetryCount:   retryCounts[checkType],
					ErrorMessage: err.Error(),
				}
				if aerr := e.Store.AnnotateCheckError(ctx, req.ID, req.Version, checkType, details, now); aerr != nil {
					logWarn("annotate check error for requirement %s: %v", req.ID, aerr)
				}
			}
			return
		}
		for _, result := range results {
			details := &domain.CheckDetails{
				Type:        result.Type,
				Title:       checkTitles[result.Type],
				Description: checkDescriptions[result.Type],
				RetryCount:  retryCounts[result.Type],
			}
			if err := e.Store.UpdateAutomatedCheck(ctx, req.ID, req.Version, result.Type, result.Status, details, now); err != nil {
				logWarn("record check %s for requirement %s: %v", result.Type, req.ID, err)
				continue
			}
			if err := e.recordCheckComments(ctx, req, result); err != nil {
				logWarn("record check comments for requirement %s: %v", req.ID, err)
			}
		}
		if err := e.CheckAndAutoTransition(ctx, req.ID); err != nil {
			logWarn("auto transition for requirement %s: %v", req.ID, err)
		}
	})
}

func (e Engine) recordCheckComments(ctx context.Context, req domain.Requirement, result checks.Result) error {
	if result.Comments == "" {
		return nil
	}
	_, err := e.DB.ExecContext(ctx, `UPDATE endorsements SET comments=? WHERE requirement_id=? AND requirement_version=? AND category=?`,
		result.Comments, req.ID, req.Version, result.Type)
	return err
}

// ActingPerson resolves the single active person requirement representing an
// app user inside a solution.
func (e Engine) ActingPerson(ctx context.Context, solutionID, actorID string) (domain.Person, error) {
	persons, err := e.Store.ListActiveRequirements(ctx, solutionID, taxonomy.Person)
	if err != nil {
		return domain.Person{}, err
	}
	var matches []domain.Person
	for _, pr := range persons {
		p := domain.PersonFromRequirement(pr)
		if p.AppUser == actorID {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return domain.Person{}, NotFoundError{Kind: "person for user", ID: actorID}
	}
	if len(matches) > 1 {
		return domain.Person{}, MismatchError{Reason: "user " + actorID + " is represented by more than one active person"}
	}
	return matches[0], nil
}

// EndorseRequirement records the acting user's approval on their pending
// role-based endorsement and runs the automatic review outcome afterwards.
func (e Engine) EndorseRequirement(ctx context.Context, actorID, requirementID, comments string) (domain.Requirement, error) {
	return e.resolveEndorsement(ctx, actorID, requirementID, comments, domain.EndorsementApproved)
}

// RejectEndorsement records the acting user's rejection on their pending
// role-based endorsement.
func (e Engine) RejectEndorsement(ctx context.Context, actorID, requirementID, comments string) (domain.Requirement, error) {
	return e.resolveEndorsement(ctx, actorID, requirementID, comments, domain.EndorsementRejected)
}

func (e Engine) resolveEndorsement(ctx context.Context, actorID, requirementID, comments, status string) (domain.Requirement, error) {
	req, err := e.getLatest(ctx, requirementID)
	if err != nil {
		return req, err
	}
	if req.State != domain.StateReview {
		return req, InvalidWorkflowStateError{RequirementID: requirementID, State: req.State, Op: "endorse"}
	}
	if err := e.requireContributor(ctx, req.SolutionID, actorID); err != nil {
		return req, err
	}
	person, err := e.ActingPerson(ctx, req.SolutionID, actorID)
	if err != nil {
		return req, err
	}
	if !person.CanEndorseCategory(taxonomy.Category(req.ReqID)) {
		return req, MismatchError{Reason: "person is not eligible to endorse this requirement category"}
	}
	endorsement, err := e.Store.FindPendingRoleEndorsement(ctx, req.ID, req.Version, person.RequirementID)
	if errors.Is(err, store.ErrNotFound) {
		return req, NotFoundError{Kind: "pending endorsement for requirement", ID: requirementID}
	}
	if err != nil {
		return req, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, err
	}
	defer tx.Rollback()
	now := e.now()
	applied, err := e.Store.UpdateEndorsementIfPending(ctx, tx, endorsement.ID, status, comments, now)
	if err != nil {
		return req, err
	}
	if !applied {
		return req, MismatchError{Reason: "endorsement was already resolved"}
	}
	evtType := "endorsement.approved"
	if status == domain.EndorsementRejected {
		evtType = "endorsement.rejected"
	}
	if err := e.Events.Append(ctx, tx, evtType, req.SolutionID, "endorsement", endorsement.ID, actorID,
		events.EventPayload{"requirement_id": req.ID, "version": req.Version}); err != nil {
		return req, err
	}
	if err := tx.Commit(); err != nil {
		return req, err
	}
	if err := e.CheckAndAutoTransition(ctx, req.ID); err != nil {
		return req, err
	}
	return e.getLatest(ctx, requirementID)
}

// RetryAutomatedCheck recreates the placeholder for one check type with an
// incremented retry count and dispatches the check again.
func (e Engine) RetryAutomatedCheck(ctx context.Context, actorID, requirementID, checkType string) error {
	req, err := e.getLatest(ctx, requirementID)
	if err != nil {
		return err
	}
	if req.State != domain.StateReview {
		return InvalidWorkflowStateError{RequirementID: requirementID, State: req.State, Op: "retry checks on"}
	}
	if err := e.requireContributor(ctx, req.SolutionID, actorID); err != nil {
		return err
	}
	if checkType == domain.CategoryRoleBased {
		return MismatchError{Reason: "role-based endorsements cannot be retried"}
	}

	retryCount := 1
	endorsements, err := e.Store.ListEndorsements(ctx, req.ID, req.Version)
	if err != nil {
		return err
	}
	found := false
	for _, endorsement := range endorsements {
		if endorsement.Category != checkType {
			continue
		}
		found = true
		if endorsement.CheckDetails != nil {
			retryCount = endorsement.CheckDetails.RetryCount + 1
		}
	}
	if !found {
		return NotFoundError{Kind: "automated check", ID: checkType}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := e.now()
	if err := e.Store.DeleteAutomatedChecks(ctx, tx, req.ID, req.Version, checkType); err != nil {
		return err
	}
	placeholder := domain.Endorsement{
		ID:                 uuid.NewString(),
		RequirementID:      req.ID,
		RequirementVersion: req.Version,
		ReqType:            req.ReqType,
		Category:           checkType,
		Status:             domain.EndorsementPending,
		CheckDetails: &domain.CheckDetails{
			Type:        checkType,
			Title:       checkTitles[checkType],
			Description: checkDescriptions[checkType],
			RetryCount:  retryCount,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Store.CreateEndorsement(ctx, tx, placeholder); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "check.retried", req.SolutionID, "requirement", req.ID, actorID,
		events.EventPayload{"check_type": checkType, "retry_count": retryCount}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.dispatchChecks(req, []string{checkType})
	return nil
}
