package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reqline/internal/config"
	"reqline/internal/domain"
	"reqline/internal/events"
	"reqline/internal/store"
	"reqline/internal/taxonomy"
)

// ResolveSolutionAndConfig picks the active solution and ensures a solution,
// config, and actor footprint exist in the database, seeding defaults when
// missing. Overrides win; otherwise the single-solution workspace is used.
func ResolveSolutionAndConfig(ctx context.Context, solutionOverride, actorID string, s store.Store) (string, *config.Config, error) {
	solutionID := solutionOverride
	if solutionID == "" {
		if sol, err := s.SingleSolution(ctx); err == nil {
			solutionID = sol.ID
		} else {
			return "", nil, fmt.Errorf("solution not specified; use --solution")
		}
	}
	seedCfg := config.Default(solutionID)

	if _, err := s.GetSolution(ctx, solutionID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return "", nil, err
		}
		if err := CreateSolution(ctx, s, solutionID, seedCfg, actorID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := s.GetSolutionConfig(ctx, solutionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if err := s.UpsertSolutionConfig(ctx, solutionID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed solution config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Solution.ID = solutionID
	return solutionID, cfg, nil
}

// CreateSolution inserts a minimal solution, organization, and role footprint
// and seeds an active product-owner person for the creating user. The person
// is born active so the first review cycle has an eligible endorser.
func CreateSolution(ctx context.Context, s store.Store, solutionID string, seedCfg *config.Config, actorID string) error {
	if seedCfg == nil {
		seedCfg = config.Default(solutionID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	orgID := seedCfg.Organization.ID
	if err := s.EnsureOrganization(ctx, tx, orgID, seedCfg.Organization.Name, now); err != nil {
		return fmt.Errorf("ensure organization: %w", err)
	}
	sol := domain.Solution{
		ID:        solutionID,
		OrgID:     orgID,
		Name:      seedCfg.Solution.Name,
		CreatedAt: now,
	}
	if sol.Name == "" {
		sol.Name = solutionID
	}
	if err := s.InsertSolution(ctx, tx, sol); err != nil {
		return fmt.Errorf("insert solution: %w", err)
	}
	if err := s.UpsertSolutionConfigTx(ctx, tx, solutionID, seedCfg); err != nil {
		return fmt.Errorf("insert solution config: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if err := s.EnsureAppUser(ctx, tx, actorID, "", "", now); err != nil {
		return fmt.Errorf("ensure app user: %w", err)
	}
	if err := s.AssignOrgRole(ctx, tx, orgID, actorID, "admin"); err != nil {
		return fmt.Errorf("assign org role: %w", err)
	}

	seq, err := s.NextReqSeq(ctx, tx, solutionID, taxonomy.Person)
	if err != nil {
		return err
	}
	person := domain.Requirement{
		ID:         uuid.NewString(),
		Version:    1,
		SolutionID: solutionID,
		ReqType:    taxonomy.Person,
		ReqID:      taxonomy.FormatReqID(taxonomy.Person, seq),
		ReqSeq:     seq,
		State:      domain.StateActive,
		Props: map[string]any{
			"title":          "Product owner",
			"appUser":        actorID,
			"isProductOwner": true,
		},
		CreatedBy:  actorID,
		CreatedAt:  now,
		ModifiedBy: actorID,
		ModifiedAt: now,
	}
	if err := s.InsertRequirement(ctx, tx, person); err != nil {
		return fmt.Errorf("seed product owner person: %w", err)
	}
	writer := events.Writer{DB: s.DB}
	if err := writer.Append(ctx, tx, "solution.created", solutionID, "solution", solutionID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
