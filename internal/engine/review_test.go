package engine_test

import (
	"testing"

	"reqline/internal/domain"
	"reqline/internal/engine"
	"reqline/internal/taxonomy"
)

func TestReviewStateChecklist(t *testing.T) {
	env := newTestEnv(t)
	req := env.propose(t, taxonomy.Outcome, goodProps("Checklist outcome"))
	if _, err := env.Engine.ReviewRequirement(env.Ctx, testActor, req.ID); err != nil {
		t.Fatal(err)
	}
	env.Engine.Runner.Wait()

	state, err := env.Engine.GetReviewState(env.Ctx, testActor, req.ID)
	if err != nil {
		t.Fatalf("review state: %v", err)
	}
	if len(state.Items) != 14 {
		t.Fatalf("expected 1 role item plus 13 quality categories, got %d", len(state.Items))
	}
	roleItems := 0
	byCategory := map[string]domain.ReviewItem{}
	for _, item := range state.Items {
		if item.Category == domain.CategoryRoleBased {
			roleItems++
			if !item.IsRequired {
				t.Error("role item should be required")
			}
			if !item.CanUserReview {
				t.Error("acting owner should be able to review their pending item")
			}
			continue
		}
		byCategory[item.Category] = item
	}
	if roleItems != 1 {
		t.Fatalf("expected 1 role item, got %d", roleItems)
	}
	for _, fed := range []string{"Correctness", "Readability", "Non-Ambiguity"} {
		if byCategory[fed].Status != domain.EndorsementPending && byCategory[fed].Status != domain.EndorsementApproved {
			t.Errorf("category %s: unexpected status %s", fed, byCategory[fed].Status)
		}
		if byCategory[fed].Status != domain.EndorsementApproved {
			t.Errorf("category %s should be fed by its automated check", fed)
		}
	}
	if byCategory["Feasibility"].Status != domain.EndorsementPending {
		t.Errorf("unmapped category should stay pending, got %s", byCategory["Feasibility"].Status)
	}
	if state.Overall != domain.ReviewPartial {
		t.Fatalf("expected partial overall, got %s", state.Overall)
	}

	env.activate(t, req.ID)
	state, err = env.Engine.GetReviewState(env.Ctx, testActor, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if state.Overall != domain.ReviewApproved {
		t.Fatalf("expected approved overall, got %s", state.Overall)
	}
}

func TestComputeOverall(t *testing.T) {
	pending := domain.Endorsement{Status: domain.EndorsementPending}
	approved := domain.Endorsement{Status: domain.EndorsementApproved}
	rejected := domain.Endorsement{Status: domain.EndorsementRejected}

	cases := []struct {
		name         string
		state        string
		endorsements []domain.Endorsement
		want         string
	}{
		{"no ledger", domain.StateProposed, nil, domain.ReviewNone},
		{"all pending", domain.StateReview, []domain.Endorsement{pending, pending}, domain.ReviewPending},
		{"mixed", domain.StateReview, []domain.Endorsement{approved, pending}, domain.ReviewPartial},
		{"all resolved", domain.StateReview, []domain.Endorsement{approved, approved}, domain.ReviewApproved},
		{"any rejected", domain.StateReview, []domain.Endorsement{approved, rejected, pending}, domain.ReviewRejected},
		{"active wins", domain.StateActive, []domain.Endorsement{approved, pending}, domain.ReviewApproved},
	}
	for _, tc := range cases {
		if got := engine.ComputeOverall(tc.state, tc.endorsements); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestRetryAutomatedCheck(t *testing.T) {
	env := newTestEnv(t)
	req := env.propose(t, taxonomy.Outcome, goodProps("Retry outcome"))
	if _, err := env.Engine.ReviewRequirement(env.Ctx, testActor, req.ID); err != nil {
		t.Fatal(err)
	}
	env.Engine.Runner.Wait()

	if err := env.Engine.RetryAutomatedCheck(env.Ctx, testActor, req.ID, "grammar"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	env.Engine.Runner.Wait()

	endorsements, err := env.Engine.Store.ListEndorsements(env.Ctx, req.ID, req.Version)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range endorsements {
		if e.Category != "grammar" {
			continue
		}
		found = true
		if e.CheckDetails == nil || e.CheckDetails.RetryCount != 1 {
			t.Fatalf("expected retry count 1, got %+v", e.CheckDetails)
		}
		if e.Status != domain.EndorsementApproved {
			t.Fatalf("expected approved after retry, got %s", e.Status)
		}
	}
	if !found {
		t.Fatal("grammar check missing after retry")
	}

	if err := env.Engine.RetryAutomatedCheck(env.Ctx, testActor, req.ID, domain.CategoryRoleBased); err == nil {
		t.Fatal("expected error retrying role-based endorsement")
	}
}
