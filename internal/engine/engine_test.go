package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"reqline/internal/app"
	"reqline/internal/db"
	"reqline/internal/domain"
	"reqline/internal/engine"
	"reqline/internal/migrate"
	"reqline/internal/permission"
	"reqline/internal/store"
	"reqline/internal/taxonomy"
)

const (
	testSolution = "sol-1"
	testActor    = "tester"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	_, cfg, err := app.ResolveSolutionAndConfig(ctx, testSolution, testActor, store.Store{DB: conn})
	if err != nil {
		t.Fatalf("resolve solution: %v", err)
	}
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: ctx}
}

// goodProps builds a property bag that passes every automated check.
func goodProps(title string) map[string]any {
	return map[string]any{
		"title":       title,
		"description": "The system records the outcome for later traceability.",
	}
}

func (env testEnv) propose(t *testing.T, reqType string, props map[string]any) domain.Requirement {
	t.Helper()
	req, err := env.Engine.ProposeRequirement(env.Ctx, testActor, testSolution, reqType, props)
	if err != nil {
		t.Fatalf("propose %s: %v", reqType, err)
	}
	return req
}

// activate walks a proposed requirement through review and the owner's
// endorsement until it is active.
func (env testEnv) activate(t *testing.T, id string) domain.Requirement {
	t.Helper()
	if _, err := env.Engine.ReviewRequirement(env.Ctx, testActor, id); err != nil {
		t.Fatalf("review %s: %v", id, err)
	}
	env.Engine.Runner.Wait()
	req, err := env.Engine.EndorseRequirement(env.Ctx, testActor, id, "looks good")
	if err != nil {
		t.Fatalf("endorse %s: %v", id, err)
	}
	if req.State != domain.StateActive {
		t.Fatalf("expected active after endorsement, got %s", req.State)
	}
	return req
}

func TestProposeAssignsReqID(t *testing.T) {
	env := newTestEnv(t)
	first := env.propose(t, taxonomy.Outcome, goodProps("First outcome"))
	if first.State != domain.StateProposed {
		t.Fatalf("expected proposed, got %s", first.State)
	}
	if first.Version != 1 {
		t.Fatalf("expected version 1, got %d", first.Version)
	}
	if first.ReqID != "GO-1" {
		t.Fatalf("expected GO-1, got %s", first.ReqID)
	}
	second := env.propose(t, taxonomy.Outcome, goodProps("Second outcome"))
	if second.ReqID != "GO-2" {
		t.Fatalf("expected GO-2, got %s", second.ReqID)
	}
}

func TestProposeUnknownType(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.ProposeRequirement(env.Ctx, testActor, testSolution, "epic", nil)
	var mismatch engine.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected mismatch error, got %v", err)
	}
}

func TestProposePermissionDenied(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.ProposeRequirement(env.Ctx, "stranger", testSolution, taxonomy.Outcome, goodProps("No access"))
	var denied permission.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denied error, got %v", err)
	}
}

func TestSingletonVision(t *testing.T) {
	env := newTestEnv(t)
	vision := env.propose(t, taxonomy.Vision, goodProps("One product vision"))
	_, err := env.Engine.ProposeRequirement(env.Ctx, testActor, testSolution, taxonomy.Vision, goodProps("Another vision"))
	var conflict engine.InvalidWorkflowStateError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected singleton conflict, got %v", err)
	}
	if conflict.RequirementID != vision.ID || conflict.State != domain.StateProposed {
		t.Fatalf("conflict should name the surviving instance, got %+v", conflict)
	}
	if _, err := env.Engine.RemoveProposedRequirement(env.Ctx, testActor, vision.ID); err != nil {
		t.Fatalf("remove proposed: %v", err)
	}
	if _, err := env.Engine.ProposeRequirement(env.Ctx, testActor, testSolution, taxonomy.Vision, goodProps("Replacement vision")); err != nil {
		t.Fatalf("propose after removal: %v", err)
	}
}

func TestSilenceStartsRejected(t *testing.T) {
	env := newTestEnv(t)
	req := env.propose(t, taxonomy.Silence, goodProps("Unstated assumption"))
	if req.State != domain.StateRejected {
		t.Fatalf("expected rejected, got %s", req.State)
	}
	if req.ReqID != "" {
		t.Fatalf("expected no reqId, got %s", req.ReqID)
	}
}

func TestReviewCreatesEndorsementLedger(t *testing.T) {
	env := newTestEnv(t)
	req := env.propose(t, taxonomy.Outcome, goodProps("Reviewed outcome"))
	reviewed, err := env.Engine.ReviewRequirement(env.Ctx, testActor, req.ID)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if reviewed.State != domain.StateReview {
		t.Fatalf("expected review, got %s", reviewed.State)
	}
	env.Engine.Runner.Wait()

	endorsements, err := env.Engine.Store.ListEndorsements(env.Ctx, req.ID, req.Version)
	if err != nil {
		t.Fatalf("list endorsements: %v", err)
	}
	roleBased, automated := 0, 0
	for _, e := range endorsements {
		if e.Category == domain.CategoryRoleBased {
			roleBased++
			if e.Status != domain.EndorsementPending {
				t.Errorf("role endorsement should stay pending, got %s", e.Status)
			}
			continue
		}
		automated++
		if e.Status != domain.EndorsementApproved {
			t.Errorf("check %s: expected approved, got %s (%s)", e.Category, e.Status, e.Comments)
		}
	}
	if roleBased != 1 {
		t.Fatalf("expected 1 role endorsement, got %d", roleBased)
	}
	if automated != 3 {
		t.Fatalf("expected 3 automated checks, got %d", automated)
	}

	// pending human endorsement keeps the requirement in review
	latest, err := env.Engine.Store.GetRequirement(env.Ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest.State != domain.StateReview {
		t.Fatalf("expected review, got %s", latest.State)
	}
}

func TestEndorsementActivates(t *testing.T) {
	env := newTestEnv(t)
	req := env.propose(t, taxonomy.Outcome, goodProps("Endorsed outcome"))
	env.activate(t, req.ID)

	evts, err := env.Engine.Store.LatestEvents(env.Ctx, 10, testSolution, "requirement.approved", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected one approval event, got %d", len(evts))
	}
}

func TestRejectedEndorsementRejects(t *testing.T) {
	env := newTestEnv(t)
	req := env.propose(t, taxonomy.Outcome, goodProps("Disputed outcome"))
	if _, err := env.Engine.ReviewRequirement(env.Ctx, testActor, req.ID); err != nil {
		t.Fatal(err)
	}
	env.Engine.Runner.Wait()
	rejected, err := env.Engine.RejectEndorsement(env.Ctx, testActor, req.ID, "needs rework")
	if err != nil {
		t.Fatalf("reject endorsement: %v", err)
	}
	if rejected.State != domain.StateRejected {
		t.Fatalf("expected rejected, got %s", rejected.State)
	}
}

func TestReviseRejectedOpensNewVersion(t *testing.T) {
	env := newTestEnv(t)
	req := env.propose(t, taxonomy.Outcome, goodProps("Disputed outcome"))
	if _, err := env.Engine.ReviewRequirement(env.Ctx, testActor, req.ID); err != nil {
		t.Fatal(err)
	}
	env.Engine.Runner.Wait()
	if _, err := env.Engine.RejectEndorsement(env.Ctx, testActor, req.ID, "needs rework"); err != nil {
		t.Fatal(err)
	}
	revised, err := env.Engine.ReviseRejectedRequirement(env.Ctx, testActor, req.ID, goodProps("Reworked outcome"))
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if revised.Version != 2 || revised.State != domain.StateProposed {
		t.Fatalf("expected v2 proposed, got v%d %s", revised.Version, revised.State)
	}
	if revised.ReqID != req.ReqID {
		t.Fatalf("reqId should be stable across versions, got %s", revised.ReqID)
	}
}

func TestEditActiveVersioning(t *testing.T) {
	env := newTestEnv(t)
	req := env.propose(t, taxonomy.Outcome, goodProps("Editable outcome"))
	env.activate(t, req.ID)

	draft, err := env.Engine.EditActiveRequirement(env.Ctx, testActor, req.ID, goodProps("Edited outcome"))
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if draft.Version != 2 || draft.State != domain.StateProposed {
		t.Fatalf("expected v2 proposed, got v%d %s", draft.Version, draft.State)
	}

	// only one draft at a time
	_, err = env.Engine.EditActiveRequirement(env.Ctx, testActor, req.ID, goodProps("Third draft"))
	var mismatch engine.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected draft conflict, got %v", err)
	}

	// approving the draft retires the old active version
	env.activate(t, req.ID)
	v1, err := env.Engine.Store.GetRequirementVersion(env.Ctx, req.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if v1.State != domain.StateRemoved {
		t.Fatalf("expected v1 removed, got %s", v1.State)
	}
	latest, err := env.Engine.Store.GetRequirement(env.Ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Version != 2 || latest.State != domain.StateActive {
		t.Fatalf("expected v2 active, got v%d %s", latest.Version, latest.State)
	}
}

func TestRemoveActiveSingletonForbidden(t *testing.T) {
	env := newTestEnv(t)
	vision := env.propose(t, taxonomy.Vision, goodProps("The one vision"))
	env.activate(t, vision.ID)
	_, err := env.Engine.RemoveActiveRequirement(env.Ctx, testActor, vision.ID)
	var mismatch engine.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected singleton protection, got %v", err)
	}
}

// addContributor registers a second app user with the contributor role so it
// can act on requirements.
func (env testEnv) addContributor(t *testing.T, userID string) {
	t.Helper()
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()
	now := env.Engine.Now().UTC().Format(time.RFC3339)
	if err := env.Engine.Store.EnsureAppUser(env.Ctx, tx, userID, "", "", now); err != nil {
		t.Fatalf("ensure app user: %v", err)
	}
	orgID := env.Engine.Config.Organization.ID
	if err := env.Engine.Store.AssignOrgRole(env.Ctx, tx, orgID, userID, "contributor"); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestOwnerPersonProtected(t *testing.T) {
	env := newTestEnv(t)
	persons, err := env.Engine.Store.ListActiveRequirements(env.Ctx, testSolution, taxonomy.Person)
	if err != nil || len(persons) != 1 {
		t.Fatalf("expected one seeded person, got %d (%v)", len(persons), err)
	}
	seeded := persons[0]

	_, err = env.Engine.RemoveActiveRequirement(env.Ctx, testActor, seeded.ID)
	var mismatch engine.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected owner protection, got %v", err)
	}

	// a second owner does not lift the protection
	second := env.propose(t, taxonomy.Person, map[string]any{
		"title":          "Second owner",
		"description":    "The second product owner endorses requirements.",
		"appUser":        testActor,
		"isProductOwner": true,
	})
	env.activate(t, second.ID)
	if _, err := env.Engine.RemoveActiveRequirement(env.Ctx, testActor, seeded.ID); !errors.As(err, &mismatch) {
		t.Fatalf("expected owner protection with a second owner present, got %v", err)
	}
}

func TestProposedOwnerPersonProtected(t *testing.T) {
	env := newTestEnv(t)
	env.addContributor(t, "deputy")
	owner := env.propose(t, taxonomy.Person, map[string]any{
		"title":                 "Implementation owner",
		"description":           "The implementation owner signs off system requirements.",
		"appUser":               "deputy",
		"isImplementationOwner": true,
	})
	_, err := env.Engine.RemoveProposedRequirement(env.Ctx, testActor, owner.ID)
	var mismatch engine.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected owner protection on proposed person, got %v", err)
	}
}

func TestNonOwnerPersonRemovable(t *testing.T) {
	env := newTestEnv(t)
	env.addContributor(t, "reviewer")
	person := env.propose(t, taxonomy.Person, map[string]any{
		"title":                       "Goals reviewer",
		"description":                 "The reviewer endorses goal requirements.",
		"appUser":                     "reviewer",
		"canEndorseGoalsRequirements": true,
	})
	env.activate(t, person.ID)
	removed, err := env.Engine.RemoveActiveRequirement(env.Ctx, testActor, person.ID)
	if err != nil {
		t.Fatalf("remove non-owner person: %v", err)
	}
	if removed.State != domain.StateRemoved {
		t.Fatalf("expected removed, got %s", removed.State)
	}
}

func TestRestoreRemoved(t *testing.T) {
	env := newTestEnv(t)
	req := env.propose(t, taxonomy.Outcome, goodProps("Removed outcome"))
	if _, err := env.Engine.RemoveProposedRequirement(env.Ctx, testActor, req.ID); err != nil {
		t.Fatal(err)
	}
	restored, err := env.Engine.RestoreRemovedRequirement(env.Ctx, testActor, req.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.State != domain.StateProposed {
		t.Fatalf("expected proposed, got %s", restored.State)
	}
}

func TestRestoreSingletonConflict(t *testing.T) {
	env := newTestEnv(t)
	first := env.propose(t, taxonomy.Vision, goodProps("Original vision"))
	if _, err := env.Engine.RemoveProposedRequirement(env.Ctx, testActor, first.ID); err != nil {
		t.Fatal(err)
	}
	second := env.propose(t, taxonomy.Vision, goodProps("Replacement vision"))
	_, err := env.Engine.RestoreRemovedRequirement(env.Ctx, testActor, first.ID)
	var conflict engine.InvalidWorkflowStateError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected singleton conflict on restore, got %v", err)
	}
	if conflict.RequirementID != second.ID {
		t.Fatalf("conflict should name the surviving instance, got %+v", conflict)
	}
}

func TestUpdateProposedOnly(t *testing.T) {
	env := newTestEnv(t)
	req := env.propose(t, taxonomy.Outcome, goodProps("Original title"))
	updated, err := env.Engine.UpdateProposedRequirement(env.Ctx, testActor, req.ID, goodProps("New title"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Props["title"] != "New title" {
		t.Fatalf("expected updated title, got %v", updated.Props["title"])
	}
	env.activate(t, req.ID)
	_, err = env.Engine.UpdateProposedRequirement(env.Ctx, testActor, req.ID, goodProps("Too late"))
	var invalid engine.InvalidWorkflowStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected workflow state error, got %v", err)
	}
}

func TestReferenceScopeValidation(t *testing.T) {
	env := newTestEnv(t)
	props := goodProps("Dangling reference")
	props["satisfies"] = uuid.NewString()
	_, err := env.Engine.ProposeRequirement(env.Ctx, testActor, testSolution, taxonomy.FunctionalBehavior, props)
	var mismatch engine.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected unknown reference error, got %v", err)
	}
}

func TestApprovalRequiresActiveReferences(t *testing.T) {
	env := newTestEnv(t)
	target := env.propose(t, taxonomy.Outcome, goodProps("Referenced outcome"))

	props := goodProps("Behavior satisfying the outcome")
	props["satisfies"] = target.ID
	ref := env.propose(t, taxonomy.FunctionalBehavior, props)

	if _, err := env.Engine.ReviewRequirement(env.Ctx, testActor, ref.ID); err != nil {
		t.Fatal(err)
	}
	env.Engine.Runner.Wait()

	// endorsing cannot activate while the target is still proposed
	endorsed, err := env.Engine.EndorseRequirement(env.Ctx, testActor, ref.ID, "")
	if err != nil {
		t.Fatalf("endorse: %v", err)
	}
	if endorsed.State != domain.StateReview {
		t.Fatalf("expected review while reference inactive, got %s", endorsed.State)
	}
	_, err = env.Engine.ApproveRequirement(env.Ctx, testActor, ref.ID)
	var blocked engine.InvalidWorkflowStateError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected inactive reference error, got %v", err)
	}
	if blocked.RequirementID != target.ID || blocked.Field != "satisfies" {
		t.Fatalf("error should name the referenced requirement and field, got %+v", blocked)
	}

	env.activate(t, target.ID)
	if err := env.Engine.CheckAndAutoTransition(env.Ctx, ref.ID); err != nil {
		t.Fatalf("auto transition: %v", err)
	}
	latest, err := env.Engine.Store.GetRequirement(env.Ctx, ref.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest.State != domain.StateActive {
		t.Fatalf("expected active once reference active, got %s", latest.State)
	}
}

func TestSilenceOnlyRemovable(t *testing.T) {
	env := newTestEnv(t)
	silence := env.propose(t, taxonomy.Silence, goodProps("Unstated assumption"))

	var invalid engine.InvalidWorkflowStateError
	_, err := env.Engine.ReviseRejectedRequirement(env.Ctx, testActor, silence.ID, goodProps("Reworded assumption"))
	if !errors.As(err, &invalid) {
		t.Fatalf("expected revise on silence to fail, got %v", err)
	}

	removed, err := env.Engine.RemoveRejectedRequirement(env.Ctx, testActor, silence.ID)
	if err != nil {
		t.Fatalf("remove silence: %v", err)
	}
	if removed.State != domain.StateRemoved {
		t.Fatalf("expected removed, got %s", removed.State)
	}

	_, err = env.Engine.RestoreRemovedRequirement(env.Ctx, testActor, silence.ID)
	if !errors.As(err, &invalid) {
		t.Fatalf("expected restore on silence to fail, got %v", err)
	}
}

func TestParsedRequirementsImmutable(t *testing.T) {
	env := newTestEnv(t)
	parsed := env.propose(t, taxonomy.ParsedRequirements, goodProps("Imported document"))
	if parsed.State != domain.StateParsed {
		t.Fatalf("expected parsed, got %s", parsed.State)
	}

	ops := map[string]func() error{
		"update": func() error {
			_, err := env.Engine.UpdateProposedRequirement(env.Ctx, testActor, parsed.ID, goodProps("Edited import"))
			return err
		},
		"review": func() error {
			_, err := env.Engine.ReviewRequirement(env.Ctx, testActor, parsed.ID)
			return err
		},
		"approve": func() error {
			_, err := env.Engine.ApproveRequirement(env.Ctx, testActor, parsed.ID)
			return err
		},
		"reject": func() error {
			_, err := env.Engine.RejectRequirement(env.Ctx, testActor, parsed.ID, "")
			return err
		},
		"revise": func() error {
			_, err := env.Engine.ReviseRejectedRequirement(env.Ctx, testActor, parsed.ID, nil)
			return err
		},
		"remove proposed": func() error {
			_, err := env.Engine.RemoveProposedRequirement(env.Ctx, testActor, parsed.ID)
			return err
		},
		"remove rejected": func() error {
			_, err := env.Engine.RemoveRejectedRequirement(env.Ctx, testActor, parsed.ID)
			return err
		},
		"remove active": func() error {
			_, err := env.Engine.RemoveActiveRequirement(env.Ctx, testActor, parsed.ID)
			return err
		},
		"restore": func() error {
			_, err := env.Engine.RestoreRemovedRequirement(env.Ctx, testActor, parsed.ID)
			return err
		},
		"edit": func() error {
			_, err := env.Engine.EditActiveRequirement(env.Ctx, testActor, parsed.ID, goodProps("Edited import"))
			return err
		},
	}
	for name, op := range ops {
		var invalid engine.InvalidWorkflowStateError
		if err := op(); !errors.As(err, &invalid) {
			t.Errorf("%s on parsed import should fail with workflow state error, got %v", name, err)
		}
	}
}

// addEndorser creates and activates a person for userID that can endorse
// goal requirements.
func (env testEnv) addEndorser(t *testing.T, userID string) domain.Requirement {
	t.Helper()
	env.addContributor(t, userID)
	person := env.propose(t, taxonomy.Person, map[string]any{
		"title":                       "Reviewer " + userID,
		"description":                 "The reviewer endorses goal requirements.",
		"appUser":                     userID,
		"canEndorseGoalsRequirements": true,
	})
	return env.activate(t, person.ID)
}

func TestSecondEndorserRequired(t *testing.T) {
	env := newTestEnv(t)
	env.addEndorser(t, "reviewer")

	req := env.propose(t, taxonomy.Outcome, goodProps("Outcome needing two endorsements"))
	if _, err := env.Engine.ReviewRequirement(env.Ctx, testActor, req.ID); err != nil {
		t.Fatal(err)
	}
	env.Engine.Runner.Wait()

	first, err := env.Engine.EndorseRequirement(env.Ctx, testActor, req.ID, "")
	if err != nil {
		t.Fatalf("first endorsement: %v", err)
	}
	if first.State != domain.StateReview {
		t.Fatalf("expected review while second endorsement pending, got %s", first.State)
	}
	second, err := env.Engine.EndorseRequirement(env.Ctx, "reviewer", req.ID, "")
	if err != nil {
		t.Fatalf("second endorsement: %v", err)
	}
	if second.State != domain.StateActive {
		t.Fatalf("expected active after final endorsement, got %s", second.State)
	}
}

func TestRejectionWaitsForPendingEndorsements(t *testing.T) {
	env := newTestEnv(t)
	env.addEndorser(t, "reviewer")

	req := env.propose(t, taxonomy.Outcome, goodProps("Disputed outcome"))
	if _, err := env.Engine.ReviewRequirement(env.Ctx, testActor, req.ID); err != nil {
		t.Fatal(err)
	}
	env.Engine.Runner.Wait()

	rejected, err := env.Engine.RejectEndorsement(env.Ctx, "reviewer", req.ID, "not convincing")
	if err != nil {
		t.Fatalf("reject endorsement: %v", err)
	}
	if rejected.State != domain.StateReview {
		t.Fatalf("rejection must wait for the pending endorsement, got %s", rejected.State)
	}

	final, err := env.Engine.EndorseRequirement(env.Ctx, testActor, req.ID, "fine by me")
	if err != nil {
		t.Fatalf("final endorsement: %v", err)
	}
	if final.State != domain.StateRejected {
		t.Fatalf("expected rejected once the ledger resolved, got %s", final.State)
	}
}

func TestRejectRequiresResolvedLedger(t *testing.T) {
	env := newTestEnv(t)
	req := env.propose(t, taxonomy.Outcome, goodProps("Outcome under review"))
	if _, err := env.Engine.ReviewRequirement(env.Ctx, testActor, req.ID); err != nil {
		t.Fatal(err)
	}
	env.Engine.Runner.Wait()
	_, err := env.Engine.RejectRequirement(env.Ctx, testActor, req.ID, "too early")
	var mismatch engine.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected pending-endorsement guard, got %v", err)
	}
}

func TestHasActiveRequirementsByType(t *testing.T) {
	env := newTestEnv(t)
	active, err := env.Engine.HasActiveRequirements(env.Ctx, testSolution, taxonomy.Vision)
	if err != nil {
		t.Fatal(err)
	}
	if active {
		t.Fatal("expected no active vision yet")
	}
	vision := env.propose(t, taxonomy.Vision, goodProps("The vision"))
	env.activate(t, vision.ID)
	active, err = env.Engine.HasActiveRequirements(env.Ctx, testSolution, taxonomy.Vision)
	if err != nil {
		t.Fatal(err)
	}
	if !active {
		t.Fatal("expected an active vision")
	}
	active, err = env.Engine.HasActiveRequirements(env.Ctx, testSolution, taxonomy.Outcome)
	if err != nil {
		t.Fatal(err)
	}
	if active {
		t.Fatal("expected no active outcome")
	}
}

func TestMissingMinimumRequirements(t *testing.T) {
	env := newTestEnv(t)
	missing, err := env.Engine.MissingMinimumRequirements(env.Ctx, testSolution)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 3 {
		t.Fatalf("expected 3 missing types, got %v", missing)
	}
	vision := env.propose(t, taxonomy.Vision, goodProps("The vision"))
	env.activate(t, vision.ID)
	missing, err = env.Engine.MissingMinimumRequirements(env.Ctx, testSolution)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range missing {
		if m == taxonomy.Vision {
			t.Fatalf("vision should no longer be missing: %v", missing)
		}
	}
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing types, got %v", missing)
	}
}
