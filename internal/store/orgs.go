package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"reqline/internal/config"
	"reqline/internal/domain"
)

func (s Store) EnsureOrganization(ctx context.Context, tx *sql.Tx, orgID, name, now string) error {
	if name == "" {
		name = orgID
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO organizations(id, name, created_at) VALUES (?,?,?)`, orgID, name, now)
	return err
}

func (s Store) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	var o domain.Organization
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, created_at FROM organizations WHERE id=?`, id).
		Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (s Store) EnsureAppUser(ctx context.Context, tx *sql.Tx, userID, name, email, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO app_users(id, name, email, created_at) VALUES (?,?,?,?)`,
		userID, nullable(name), nullable(email), now)
	return err
}

func (s Store) GetAppUser(ctx context.Context, id string) (domain.AppUser, error) {
	var u domain.AppUser
	var name, email sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, email, created_at FROM app_users WHERE id=?`, id).
		Scan(&u.ID, &name, &email, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if name.Valid {
		u.Name = name.String
	}
	if email.Valid {
		u.Email = email.String
	}
	return u, nil
}

func (s Store) AssignOrgRole(ctx context.Context, tx *sql.Tx, orgID, appUserID, role string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO org_roles(org_id, app_user_id, role) VALUES (?,?,?)
ON CONFLICT(org_id, app_user_id) DO UPDATE SET role=excluded.role`, orgID, appUserID, role)
	return err
}

// OrgRole returns the role an app user holds in an organization, or
// ErrNotFound when none.
func (s Store) OrgRole(ctx context.Context, orgID, appUserID string) (string, error) {
	var role string
	err := s.DB.QueryRowContext(ctx, `SELECT role FROM org_roles WHERE org_id=? AND app_user_id=?`, orgID, appUserID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return role, err
}

func (s Store) InsertSolution(ctx context.Context, tx *sql.Tx, sol domain.Solution) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO solutions(id,org_id,name,description,created_at) VALUES (?,?,?,?,?)`,
		sol.ID, sol.OrgID, sol.Name, nullable(sol.Description), sol.CreatedAt)
	return err
}

func (s Store) GetSolution(ctx context.Context, id string) (domain.Solution, error) {
	var sol domain.Solution
	var desc sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT id,org_id,name,COALESCE(description,''),created_at FROM solutions WHERE id=?`, id).
		Scan(&sol.ID, &sol.OrgID, &sol.Name, &desc, &sol.CreatedAt)
	if err == sql.ErrNoRows {
		return sol, ErrNotFound
	}
	if err != nil {
		return sol, err
	}
	if desc.Valid {
		sol.Description = desc.String
	}
	return sol, nil
}

func (s Store) ListSolutions(ctx context.Context, orgID string) ([]domain.Solution, error) {
	query := `SELECT id,org_id,name,COALESCE(description,''),created_at FROM solutions`
	var args []any
	if orgID != "" {
		query += ` WHERE org_id=?`
		args = append(args, orgID)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Solution
	for rows.Next() {
		var sol domain.Solution
		if err := rows.Scan(&sol.ID, &sol.OrgID, &sol.Name, &sol.Description, &sol.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, sol)
	}
	return res, rows.Err()
}

// SingleSolution returns the only solution in the workspace, or an error when
// zero or several exist.
func (s Store) SingleSolution(ctx context.Context) (domain.Solution, error) {
	sols, err := s.ListSolutions(ctx, "")
	if err != nil {
		return domain.Solution{}, err
	}
	if len(sols) == 0 {
		return domain.Solution{}, ErrNotFound
	}
	if len(sols) > 1 {
		return domain.Solution{}, fmt.Errorf("multiple solutions exist; specify --solution")
	}
	return sols[0], nil
}

func (s Store) UpsertSolutionConfig(ctx context.Context, solutionID string, cfg *config.Config) error {
	return s.upsertSolutionConfig(ctx, s.DB, nil, solutionID, cfg)
}

func (s Store) UpsertSolutionConfigTx(ctx context.Context, tx *sql.Tx, solutionID string, cfg *config.Config) error {
	return s.upsertSolutionConfig(ctx, nil, tx, solutionID, cfg)
}

func (s Store) upsertSolutionConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, solutionID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Solution.ID = solutionID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO solution_configs(solution_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(solution_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, solutionID, string(payload), now, now)
	return err
}

func (s Store) GetSolutionConfig(ctx context.Context, solutionID string) (*config.Config, error) {
	var payload string
	err := s.DB.QueryRowContext(ctx, `SELECT config_json FROM solution_configs WHERE solution_id=?`, solutionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Solution.ID == "" {
		cfg.Solution.ID = solutionID
	}
	return &cfg, cfg.Validate()
}
