// Package engine implements the requirement workflow: the guarded state
// machine, the endorsement ledger, and the review orchestration on top of the
// SQL store.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"reqline/internal/checks"
	"reqline/internal/config"
	"reqline/internal/domain"
	"reqline/internal/events"
	"reqline/internal/permission"
	"reqline/internal/store"
	"reqline/internal/taxonomy"
)

// SystemActor is recorded on transitions the engine performs on its own, such
// as the automatic review outcome.
const SystemActor = "system"

type Engine struct {
	DB       *sql.DB
	Store    store.Store
	Events   events.Writer
	Gate     permission.Gate
	Runner   *checks.Runner
	Provider checks.Provider
	Config   *config.Config
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:       db,
		Store:    store.Store{DB: db},
		Events:   events.Writer{DB: db},
		Gate:     permission.Gate{DB: db},
		Runner:   checks.NewRunner(cfg.CheckConcurrency()),
		Provider: checks.HeuristicProvider{},
		Config:   cfg,
		Now:      time.Now,
	}
}

func (e Engine) now() string {
	return e.Now().UTC().Format(time.RFC3339)
}

// solutionOrg resolves the owning organization of a solution.
func (e Engine) solutionOrg(ctx context.Context, solutionID string) (string, error) {
	sol, err := e.Store.GetSolution(ctx, solutionID)
	if errors.Is(err, store.ErrNotFound) {
		return "", NotFoundError{Kind: "solution", ID: solutionID}
	}
	if err != nil {
		return "", err
	}
	return sol.OrgID, nil
}

func (e Engine) requireContributor(ctx context.Context, solutionID, actorID string) error {
	orgID, err := e.solutionOrg(ctx, solutionID)
	if err != nil {
		return err
	}
	return e.Gate.AssertOrganizationContributor(ctx, orgID, actorID)
}

func (e Engine) requireReader(ctx context.Context, solutionID, actorID string) error {
	orgID, err := e.solutionOrg(ctx, solutionID)
	if err != nil {
		return err
	}
	return e.Gate.AssertOrganizationReader(ctx, orgID, actorID)
}

// getLatest loads the latest version of a requirement or a typed not-found.
func (e Engine) getLatest(ctx context.Context, id string) (domain.Requirement, error) {
	req, err := e.Store.GetRequirement(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return req, NotFoundError{Kind: "requirement", ID: id}
	}
	return req, err
}

// singletonConflict returns the non-removed instance that already occupies a
// singleton type's slot in the solution, or nil when the slot is free.
func (e Engine) singletonConflict(ctx context.Context, solutionID, reqType, excludeID string) (*domain.Requirement, error) {
	if !taxonomy.IsSingleton(reqType) {
		return nil, nil
	}
	reqs, err := e.Store.ListRequirements(ctx, store.RequirementFilters{SolutionID: solutionID, ReqType: reqType})
	if err != nil {
		return nil, err
	}
	for _, r := range reqs {
		if r.ID == excludeID {
			continue
		}
		if r.State != domain.StateRemoved {
			conflict := r
			return &conflict, nil
		}
	}
	return nil, nil
}

// ProposeRequirement creates version 1 of a new requirement in its type's
// initial state. Types with a reqId prefix get the next sequence number for
// their type within the solution.
func (e Engine) ProposeRequirement(ctx context.Context, actorID, solutionID, reqType string, props map[string]any) (domain.Requirement, error) {
	spec, err := taxonomy.Lookup(reqType)
	if err != nil {
		return domain.Requirement{}, MismatchError{Reason: err.Error()}
	}
	if err := e.requireContributor(ctx, solutionID, actorID); err != nil {
		return domain.Requirement{}, err
	}
	conflict, err := e.singletonConflict(ctx, solutionID, reqType, "")
	if err != nil {
		return domain.Requirement{}, err
	}
	if conflict != nil {
		return domain.Requirement{}, InvalidWorkflowStateError{RequirementID: conflict.ID, State: conflict.State, Op: "duplicate"}
	}
	if err := e.validateReferences(ctx, solutionID, props); err != nil {
		return domain.Requirement{}, err
	}

	now := e.now()
	req := domain.Requirement{
		ID:         uuid.NewString(),
		Version:    1,
		SolutionID: solutionID,
		ReqType:    reqType,
		State:      spec.Initial,
		Props:      props,
		CreatedBy:  actorID,
		CreatedAt:  now,
		ModifiedBy: actorID,
		ModifiedAt: now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Requirement{}, err
	}
	defer tx.Rollback()

	if taxonomy.HasReqID(reqType) {
		seq, err := e.Store.NextReqSeq(ctx, tx, solutionID, reqType)
		if err != nil {
			return domain.Requirement{}, err
		}
		req.ReqSeq = seq
		req.ReqID = taxonomy.FormatReqID(reqType, seq)
	}
	if err := e.Store.InsertRequirement(ctx, tx, req); err != nil {
		return domain.Requirement{}, err
	}
	if err := e.Events.Append(ctx, tx, "requirement.proposed", solutionID, "requirement", req.ID, actorID,
		events.EventPayload{"req_type": reqType, "req_id": req.ReqID, "state": req.State}); err != nil {
		return domain.Requirement{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Requirement{}, err
	}
	return req, nil
}

// UpdateProposedRequirement replaces the property bag of a proposed
// requirement in place.
func (e Engine) UpdateProposedRequirement(ctx context.Context, actorID, id string, props map[string]any) (domain.Requirement, error) {
	req, err := e.getLatest(ctx, id)
	if err != nil {
		return req, err
	}
	if req.State != domain.StateProposed {
		return req, InvalidWorkflowStateError{RequirementID: id, State: req.State, Op: "update"}
	}
	if err := e.requireContributor(ctx, req.SolutionID, actorID); err != nil {
		return req, err
	}
	if err := e.validateReferences(ctx, req.SolutionID, props); err != nil {
		return req, err
	}

	req.Props = props
	req.ModifiedBy = actorID
	req.ModifiedAt = e.now()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, err
	}
	defer tx.Rollback()
	if err := e.Store.UpdateRequirement(ctx, tx, req); err != nil {
		return req, err
	}
	if err := e.Events.Append(ctx, tx, "requirement.updated", req.SolutionID, "requirement", req.ID, actorID, nil); err != nil {
		return req, err
	}
	return req, tx.Commit()
}

// ReviewRequirement moves a proposed requirement into review and opens the
// endorsement ledger for the version: one pending role-based endorsement per
// eligible person plus one placeholder per enabled automated check.
func (e Engine) ReviewRequirement(ctx context.Context, actorID, id string) (domain.Requirement, error) {
	req, err := e.getLatest(ctx, id)
	if err != nil {
		return req, err
	}
	if req.State != domain.StateProposed {
		return req, InvalidWorkflowStateError{RequirementID: id, State: req.State, Op: "review"}
	}
	if err := e.requireContributor(ctx, req.SolutionID, actorID); err != nil {
		return req, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, err
	}
	defer tx.Rollback()

	now := e.now()
	if err := e.Store.SetRequirementState(ctx, tx, req.ID, req.Version, domain.StateReview, actorID, now); err != nil {
		return req, err
	}
	checkTypes, err := e.createMandatoryEndorsements(ctx, tx, req, now)
	if err != nil {
		return req, err
	}
	if err := e.Events.Append(ctx, tx, "requirement.review_started", req.SolutionID, "requirement", req.ID, actorID, nil); err != nil {
		return req, err
	}
	if err := tx.Commit(); err != nil {
		return req, err
	}
	req.State = domain.StateReview
	req.ModifiedBy = actorID
	req.ModifiedAt = now
	e.dispatchChecks(req, checkTypes)
	return req, nil
}

// ApproveRequirement moves a reviewed requirement to active once every
// endorsement has resolved and every referenced requirement is active.
// Superseded active versions of the same id are retired to removed.
func (e Engine) ApproveRequirement(ctx context.Context, actorID, id string) (domain.Requirement, error) {
	req, err := e.getLatest(ctx, id)
	if err != nil {
		return req, err
	}
	if req.State != domain.StateReview {
		return req, InvalidWorkflowStateError{RequirementID: id, State: req.State, Op: "approve"}
	}
	if err := e.requireContributor(ctx, req.SolutionID, actorID); err != nil {
		return req, err
	}
	endorsements, err := e.Store.ListEndorsements(ctx, req.ID, req.Version)
	if err != nil {
		return req, err
	}
	if err := validateAllEndorsementsComplete(req.ID, endorsements); err != nil {
		return req, err
	}
	return e.activate(ctx, actorID, req)
}

func (e Engine) activate(ctx context.Context, actorID string, req domain.Requirement) (domain.Requirement, error) {
	if err := e.assertReferencesActive(ctx, req); err != nil {
		return req, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, err
	}
	defer tx.Rollback()

	now := e.now()
	if err := e.Store.SetRequirementState(ctx, tx, req.ID, req.Version, domain.StateActive, actorID, now); err != nil {
		return req, err
	}
	superseded, err := e.Store.ActiveVersionsExcept(ctx, tx, req.ID, req.Version)
	if err != nil {
		return req, err
	}
	for _, v := range superseded {
		if err := e.Store.SetRequirementState(ctx, tx, req.ID, v, domain.StateRemoved, actorID, now); err != nil {
			return req, err
		}
	}
	if err := e.Events.Append(ctx, tx, "requirement.approved", req.SolutionID, "requirement", req.ID, actorID,
		events.EventPayload{"version": req.Version, "superseded": len(superseded)}); err != nil {
		return req, err
	}
	if err := tx.Commit(); err != nil {
		return req, err
	}
	req.State = domain.StateActive
	req.ModifiedBy = actorID
	req.ModifiedAt = now
	return req, nil
}

// RejectRequirement moves a reviewed requirement to rejected once every
// endorsement has resolved. The automatic review outcome uses the internal
// path and is not held to this guard.
func (e Engine) RejectRequirement(ctx context.Context, actorID, id, comments string) (domain.Requirement, error) {
	req, err := e.getLatest(ctx, id)
	if err != nil {
		return req, err
	}
	if req.State != domain.StateReview {
		return req, InvalidWorkflowStateError{RequirementID: id, State: req.State, Op: "reject"}
	}
	if err := e.requireContributor(ctx, req.SolutionID, actorID); err != nil {
		return req, err
	}
	endorsements, err := e.Store.ListEndorsements(ctx, req.ID, req.Version)
	if err != nil {
		return req, err
	}
	if err := validateEndorsementsResolved(req.ID, endorsements); err != nil {
		return req, err
	}
	return e.reject(ctx, actorID, req, comments)
}

func (e Engine) reject(ctx context.Context, actorID string, req domain.Requirement, comments string) (domain.Requirement, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, err
	}
	defer tx.Rollback()
	now := e.now()
	if err := e.Store.SetRequirementState(ctx, tx, req.ID, req.Version, domain.StateRejected, actorID, now); err != nil {
		return req, err
	}
	payload := events.EventPayload{"version": req.Version}
	if comments != "" {
		payload["comments"] = comments
	}
	if err := e.Events.Append(ctx, tx, "requirement.rejected", req.SolutionID, "requirement", req.ID, actorID, payload); err != nil {
		return req, err
	}
	if err := tx.Commit(); err != nil {
		return req, err
	}
	req.State = domain.StateRejected
	req.ModifiedBy = actorID
	req.ModifiedAt = now
	return req, nil
}

// ReviseRejectedRequirement opens a fresh proposed version from a rejected
// one. The rejected version keeps its endorsement history. Silence entries
// are born rejected and stay that way; their only exit is removal.
func (e Engine) ReviseRejectedRequirement(ctx context.Context, actorID, id string, props map[string]any) (domain.Requirement, error) {
	req, err := e.getLatest(ctx, id)
	if err != nil {
		return req, err
	}
	if req.State != domain.StateRejected {
		return req, InvalidWorkflowStateError{RequirementID: id, State: req.State, Op: "revise"}
	}
	if err := assertLifecycleAllows(req, "revise"); err != nil {
		return req, err
	}
	if err := e.requireContributor(ctx, req.SolutionID, actorID); err != nil {
		return req, err
	}
	if props == nil {
		props = req.Props
	}
	if err := e.validateReferences(ctx, req.SolutionID, props); err != nil {
		return req, err
	}

	now := e.now()
	next := req
	next.Version = req.Version + 1
	next.State = domain.StateProposed
	next.Props = props
	next.CreatedBy = actorID
	next.CreatedAt = now
	next.ModifiedBy = actorID
	next.ModifiedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, err
	}
	defer tx.Rollback()
	if err := e.Store.InsertRequirement(ctx, tx, next); err != nil {
		return req, err
	}
	if err := e.Events.Append(ctx, tx, "requirement.revised", req.SolutionID, "requirement", req.ID, actorID,
		events.EventPayload{"version": next.Version}); err != nil {
		return req, err
	}
	return next, tx.Commit()
}

// RemoveProposedRequirement moves a proposed requirement to removed.
func (e Engine) RemoveProposedRequirement(ctx context.Context, actorID, id string) (domain.Requirement, error) {
	return e.removeFrom(ctx, actorID, id, domain.StateProposed)
}

// RemoveRejectedRequirement moves a rejected requirement to removed.
func (e Engine) RemoveRejectedRequirement(ctx context.Context, actorID, id string) (domain.Requirement, error) {
	return e.removeFrom(ctx, actorID, id, domain.StateRejected)
}

func (e Engine) removeFrom(ctx context.Context, actorID, id, fromState string) (domain.Requirement, error) {
	req, err := e.getLatest(ctx, id)
	if err != nil {
		return req, err
	}
	if req.State != fromState {
		return req, InvalidWorkflowStateError{RequirementID: id, State: req.State, Op: "remove"}
	}
	if err := e.requireContributor(ctx, req.SolutionID, actorID); err != nil {
		return req, err
	}
	if err := assertPersonRemovable(req); err != nil {
		return req, err
	}
	return e.remove(ctx, actorID, req)
}

// RemoveActiveRequirement retires an active requirement. Singleton types stay
// in place once active, and owner persons cannot be removed at all.
func (e Engine) RemoveActiveRequirement(ctx context.Context, actorID, id string) (domain.Requirement, error) {
	req, err := e.getLatest(ctx, id)
	if err != nil {
		return req, err
	}
	if req.State != domain.StateActive {
		return req, InvalidWorkflowStateError{RequirementID: id, State: req.State, Op: "remove"}
	}
	if err := e.requireContributor(ctx, req.SolutionID, actorID); err != nil {
		return req, err
	}
	if taxonomy.IsSingleton(req.ReqType) {
		return req, MismatchError{Reason: "active " + req.ReqType + " cannot be removed"}
	}
	if err := assertPersonRemovable(req); err != nil {
		return req, err
	}
	return e.remove(ctx, actorID, req)
}

// assertPersonRemovable blocks removal of any person holding an owner role,
// from every workflow state.
func assertPersonRemovable(req domain.Requirement) error {
	if req.ReqType != taxonomy.Person {
		return nil
	}
	if domain.PersonFromRequirement(req).IsOwner() {
		return MismatchError{Reason: "person " + req.ID + " holds an owner role and cannot be removed"}
	}
	return nil
}

// assertLifecycleAllows blocks operations on types whose lifecycle is frozen:
// silence entries only move from rejected to removed, and parsed imports never
// transition at all.
func assertLifecycleAllows(req domain.Requirement, op string) error {
	switch req.ReqType {
	case taxonomy.Silence, taxonomy.ParsedRequirements:
		return InvalidWorkflowStateError{RequirementID: req.ID, State: req.State, Op: op + " " + req.ReqType}
	}
	return nil
}

func (e Engine) remove(ctx context.Context, actorID string, req domain.Requirement) (domain.Requirement, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, err
	}
	defer tx.Rollback()
	now := e.now()
	if err := e.Store.SetRequirementState(ctx, tx, req.ID, req.Version, domain.StateRemoved, actorID, now); err != nil {
		return req, err
	}
	if err := e.Events.Append(ctx, tx, "requirement.removed", req.SolutionID, "requirement", req.ID, actorID,
		events.EventPayload{"version": req.Version, "from": req.State}); err != nil {
		return req, err
	}
	if err := tx.Commit(); err != nil {
		return req, err
	}
	req.State = domain.StateRemoved
	req.ModifiedBy = actorID
	req.ModifiedAt = now
	return req, nil
}

// RestoreRemovedRequirement returns a removed requirement to proposed, subject
// to the singleton rule.
func (e Engine) RestoreRemovedRequirement(ctx context.Context, actorID, id string) (domain.Requirement, error) {
	req, err := e.getLatest(ctx, id)
	if err != nil {
		return req, err
	}
	if req.State != domain.StateRemoved {
		return req, InvalidWorkflowStateError{RequirementID: id, State: req.State, Op: "restore"}
	}
	if err := assertLifecycleAllows(req, "restore"); err != nil {
		return req, err
	}
	if err := e.requireContributor(ctx, req.SolutionID, actorID); err != nil {
		return req, err
	}
	conflict, err := e.singletonConflict(ctx, req.SolutionID, req.ReqType, req.ID)
	if err != nil {
		return req, err
	}
	if conflict != nil {
		return req, InvalidWorkflowStateError{RequirementID: conflict.ID, State: conflict.State, Op: "duplicate"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, err
	}
	defer tx.Rollback()
	now := e.now()
	if err := e.Store.SetRequirementState(ctx, tx, req.ID, req.Version, domain.StateProposed, actorID, now); err != nil {
		return req, err
	}
	if err := e.Events.Append(ctx, tx, "requirement.restored", req.SolutionID, "requirement", req.ID, actorID, nil); err != nil {
		return req, err
	}
	if err := tx.Commit(); err != nil {
		return req, err
	}
	req.State = domain.StateProposed
	req.ModifiedBy = actorID
	req.ModifiedAt = now
	return req, nil
}

// EditActiveRequirement opens a new proposed version of an active
// requirement. The active version stays in force until the draft is approved.
func (e Engine) EditActiveRequirement(ctx context.Context, actorID, id string, props map[string]any) (domain.Requirement, error) {
	req, err := e.getLatest(ctx, id)
	if err != nil {
		return req, err
	}
	if req.State != domain.StateActive {
		return req, InvalidWorkflowStateError{RequirementID: id, State: req.State, Op: "edit"}
	}
	if err := e.requireContributor(ctx, req.SolutionID, actorID); err != nil {
		return req, err
	}
	newer, err := e.Store.HasNewerProposedOrReviewVersions(ctx, req.ID, req.Version)
	if err != nil {
		return req, err
	}
	if newer {
		return req, MismatchError{Reason: "a draft version of this requirement is already in progress"}
	}
	if err := e.validateReferences(ctx, req.SolutionID, props); err != nil {
		return req, err
	}

	now := e.now()
	next := req
	next.Version = req.Version + 1
	next.State = domain.StateProposed
	next.Props = props
	next.CreatedBy = actorID
	next.CreatedAt = now
	next.ModifiedBy = actorID
	next.ModifiedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, err
	}
	defer tx.Rollback()
	if err := e.Store.InsertRequirement(ctx, tx, next); err != nil {
		return req, err
	}
	if err := e.Events.Append(ctx, tx, "requirement.edited", req.SolutionID, "requirement", req.ID, actorID,
		events.EventPayload{"version": next.Version}); err != nil {
		return req, err
	}
	return next, tx.Commit()
}

// GetRequirement returns the latest version after a read permission check.
func (e Engine) GetRequirement(ctx context.Context, actorID, id string) (domain.Requirement, error) {
	req, err := e.getLatest(ctx, id)
	if err != nil {
		return req, err
	}
	if err := e.requireReader(ctx, req.SolutionID, actorID); err != nil {
		return req, err
	}
	return req, nil
}

// ListRequirements returns one representative version per requirement id.
func (e Engine) ListRequirements(ctx context.Context, actorID, solutionID, reqType string) ([]domain.Requirement, error) {
	if err := e.requireReader(ctx, solutionID, actorID); err != nil {
		return nil, err
	}
	return e.Store.ListVisibleRequirements(ctx, solutionID, reqType)
}

// HasActiveRequirements reports whether the solution holds any active
// requirement of the given type, or of any type when reqType is empty.
func (e Engine) HasActiveRequirements(ctx context.Context, solutionID, reqType string) (bool, error) {
	reqs, err := e.Store.ListRequirements(ctx, store.RequirementFilters{SolutionID: solutionID, ReqType: reqType, State: domain.StateActive})
	if err != nil {
		return false, err
	}
	return len(reqs) > 0, nil
}

// MissingMinimumRequirements lists the required types the solution has no
// active instance of yet.
func (e Engine) MissingMinimumRequirements(ctx context.Context, solutionID string) ([]string, error) {
	var missing []string
	for _, reqType := range taxonomy.MinimumRequired() {
		reqs, err := e.Store.ListActiveRequirements(ctx, solutionID, reqType)
		if err != nil {
			return nil, err
		}
		if len(reqs) == 0 {
			missing = append(missing, reqType)
		}
	}
	return missing, nil
}

func logWarn(format string, args ...any) {
	log.Printf("WARN "+format, args...)
}
