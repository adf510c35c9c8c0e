package checks

import (
	"context"
	"sync/atomic"
	"testing"

	"reqline/internal/domain"
)

func reqWithText(title, description string) domain.Requirement {
	return domain.Requirement{Props: map[string]any{"title": title, "description": description}}
}

func TestHeuristicProviderAllPass(t *testing.T) {
	p := HeuristicProvider{}
	results, err := p.PerformChecks(context.Background(), reqWithText("Users can log in", "The system authenticates users with a password."), []string{TypeGrammar, TypeReadability, TypeGlossary})
	if err != nil {
		t.Fatalf("PerformChecks: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Status != domain.EndorsementApproved {
			t.Errorf("check %s: expected approved, got %s (%s)", r.Type, r.Status, r.Comments)
		}
	}
}

func TestGlossaryFlagsVagueTerms(t *testing.T) {
	p := HeuristicProvider{}
	res := p.checkGlossary("the system should be fast and user-friendly")
	if res.Status != domain.EndorsementRejected {
		t.Fatalf("expected rejected, got %s", res.Status)
	}
}

func TestGrammarRejectsLowercaseStart(t *testing.T) {
	p := HeuristicProvider{}
	res := p.checkGrammar("lowercase start")
	if res.Status != domain.EndorsementRejected {
		t.Fatalf("expected rejected, got %s", res.Status)
	}
}

func TestUnknownCheckType(t *testing.T) {
	p := HeuristicProvider{}
	if _, err := p.PerformChecks(context.Background(), reqWithText("T", "D"), []string{"nope"}); err == nil {
		t.Fatal("expected error for unknown check type")
	}
}

func TestRunnerWaitsForJobs(t *testing.T) {
	r := NewRunner(2)
	var n int64
	for i := 0; i < 10; i++ {
		r.Go(context.Background(), func(ctx context.Context) {
			atomic.AddInt64(&n, 1)
		})
	}
	r.Wait()
	if n != 10 {
		t.Fatalf("expected 10 jobs run, got %d", n)
	}
}
