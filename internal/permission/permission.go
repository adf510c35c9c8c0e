// Package permission provides organization-scoped role checks backed by the
// org_roles table. Roles rank reader < contributor < admin.
package permission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	RoleReader      = "reader"
	RoleContributor = "contributor"
	RoleAdmin       = "admin"
)

var roleRank = map[string]int{
	RoleReader:      1,
	RoleContributor: 2,
	RoleAdmin:       3,
}

// DeniedError indicates the user lacks the required organization role.
type DeniedError struct {
	OrgID string
	Role  string
}

func (e DeniedError) Error() string {
	return fmt.Sprintf("organization %s role required in %s", e.Role, e.OrgID)
}

// Gate answers role questions against the SQL-backed org membership.
type Gate struct {
	DB *sql.DB
}

// AppUserOrganizationRole returns the role an app user holds in an
// organization; empty when the user holds none.
func (g Gate) AppUserOrganizationRole(ctx context.Context, appUserID, orgID string) (string, error) {
	var role string
	err := g.DB.QueryRowContext(ctx, `SELECT role FROM org_roles WHERE org_id=? AND app_user_id=?`, orgID, appUserID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

func (g Gate) assertRole(ctx context.Context, orgID, appUserID, required string) error {
	if appUserID == "" {
		return errors.New("actor_id required")
	}
	role, err := g.AppUserOrganizationRole(ctx, appUserID, orgID)
	if err != nil {
		return err
	}
	if roleRank[role] < roleRank[required] {
		return DeniedError{OrgID: orgID, Role: required}
	}
	return nil
}

func (g Gate) AssertOrganizationReader(ctx context.Context, orgID, appUserID string) error {
	return g.assertRole(ctx, orgID, appUserID, RoleReader)
}

func (g Gate) AssertOrganizationContributor(ctx context.Context, orgID, appUserID string) error {
	return g.assertRole(ctx, orgID, appUserID, RoleContributor)
}

func (g Gate) AssertOrganizationAdmin(ctx context.Context, orgID, appUserID string) error {
	return g.assertRole(ctx, orgID, appUserID, RoleAdmin)
}
