// Package checks runs automated quality checks against requirement text.
package checks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/sync/semaphore"

	"reqline/internal/domain"
)

// Built-in check types.
const (
	TypeGrammar     = "grammar"
	TypeReadability = "readability"
	TypeGlossary    = "glossary"
)

// Result is the outcome of one automated check.
type Result struct {
	Type     string
	Status   string // domain.EndorsementApproved or domain.EndorsementRejected
	Comments string
}

// Provider performs the enabled automated checks for a requirement version.
type Provider interface {
	PerformChecks(ctx context.Context, req domain.Requirement, enabled []string) ([]Result, error)
}

// Runner dispatches check jobs with bounded concurrency. Callers submit work
// via Go and may block on Wait for all in-flight jobs to finish.
type Runner struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func NewRunner(maxConcurrent int) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Runner{sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Go runs fn on a new goroutine once a concurrency slot is free.
func (r *Runner) Go(ctx context.Context, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer r.sem.Release(1)
		fn(ctx)
	}()
}

// Wait blocks until all submitted jobs have completed.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// HeuristicProvider implements Provider with lightweight text heuristics. It
// stands in for external analysis services and keeps the workflow paths
// exercised end to end.
type HeuristicProvider struct {
	// GlossaryTerms lists vague terms the glossary check flags.
	GlossaryTerms []string
}

var defaultVagueTerms = []string{"etc", "something", "somehow", "various", "stuff", "user-friendly", "fast", "easy"}

func (p HeuristicProvider) PerformChecks(ctx context.Context, req domain.Requirement, enabled []string) ([]Result, error) {
	title, _ := req.Props["title"].(string)
	description, _ := req.Props["description"].(string)
	text := strings.TrimSpace(title + " " + description)

	var results []Result
	for _, checkType := range enabled {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch checkType {
		case TypeGrammar:
			results = append(results, p.checkGrammar(text))
		case TypeReadability:
			results = append(results, p.checkReadability(text))
		case TypeGlossary:
			results = append(results, p.checkGlossary(text))
		default:
			return nil, fmt.Errorf("unknown check type %q", checkType)
		}
	}
	return results, nil
}

func (p HeuristicProvider) checkGrammar(text string) Result {
	if text == "" {
		return Result{Type: TypeGrammar, Status: domain.EndorsementRejected, Comments: "requirement has no text to check"}
	}
	var issues []string
	runes := []rune(text)
	if unicode.IsLetter(runes[0]) && unicode.IsLower(runes[0]) {
		issues = append(issues, "text should start with an uppercase letter")
	}
	if strings.Contains(text, "  ") {
		issues = append(issues, "text contains repeated spaces")
	}
	if len(issues) > 0 {
		return Result{Type: TypeGrammar, Status: domain.EndorsementRejected, Comments: strings.Join(issues, "; ")}
	}
	return Result{Type: TypeGrammar, Status: domain.EndorsementApproved, Comments: "no grammar issues found"}
}

func (p HeuristicProvider) checkReadability(text string) Result {
	sentences := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			sentences++
		}
	}
	if sentences == 0 {
		sentences = 1
	}
	words := len(strings.Fields(text))
	avg := float64(words) / float64(sentences)
	if avg > 35 {
		return Result{Type: TypeReadability, Status: domain.EndorsementRejected,
			Comments: fmt.Sprintf("average sentence length %.0f words exceeds 35", avg)}
	}
	return Result{Type: TypeReadability, Status: domain.EndorsementApproved, Comments: "readability within bounds"}
}

func (p HeuristicProvider) checkGlossary(text string) Result {
	terms := p.GlossaryTerms
	if len(terms) == 0 {
		terms = defaultVagueTerms
	}
	lower := strings.ToLower(text)
	var found []string
	for _, term := range terms {
		if containsWord(lower, term) {
			found = append(found, term)
		}
	}
	if len(found) > 0 {
		return Result{Type: TypeGlossary, Status: domain.EndorsementRejected,
			Comments: "vague terms found: " + strings.Join(found, ", ")}
	}
	return Result{Type: TypeGlossary, Status: domain.EndorsementApproved, Comments: "no vague terms found"}
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordRune(rune(text[start-1]))
		afterOK := end == len(text) || !isWordRune(rune(text[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-'
}
