package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"reqline/internal/domain"
)

const endorsementColumns = `id,requirement_id,requirement_version,req_type,category,status,endorsed_by,comments,check_details_json,created_at,updated_at`

func scanEndorsement(scan func(dest ...any) error) (domain.Endorsement, error) {
	var e domain.Endorsement
	var endorsedBy, comments, details sql.NullString
	err := scan(&e.ID, &e.RequirementID, &e.RequirementVersion, &e.ReqType, &e.Category, &e.Status, &endorsedBy, &comments, &details, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if endorsedBy.Valid {
		e.EndorsedBy = &endorsedBy.String
	}
	if comments.Valid {
		e.Comments = comments.String
	}
	if details.Valid && details.String != "" {
		var cd domain.CheckDetails
		if err := json.Unmarshal([]byte(details.String), &cd); err != nil {
			return e, err
		}
		e.CheckDetails = &cd
	}
	return e, nil
}

func marshalCheckDetails(cd *domain.CheckDetails) (any, error) {
	if cd == nil {
		return nil, nil
	}
	b, err := json.Marshal(cd)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s Store) CreateEndorsement(ctx context.Context, tx *sql.Tx, e domain.Endorsement) error {
	details, err := marshalCheckDetails(e.CheckDetails)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO endorsements(`+endorsementColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.RequirementID, e.RequirementVersion, e.ReqType, e.Category, e.Status,
		nullableStringPtr(e.EndorsedBy), nullable(e.Comments), details, e.CreatedAt, e.UpdatedAt)
	return err
}

func (s Store) GetEndorsement(ctx context.Context, id string) (domain.Endorsement, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+endorsementColumns+` FROM endorsements WHERE id=?`, id)
	return scanEndorsement(row.Scan)
}

// ListEndorsements returns all endorsements for one requirement version, the
// current review cycle's records.
func (s Store) ListEndorsements(ctx context.Context, requirementID string, version int) ([]domain.Endorsement, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+endorsementColumns+` FROM endorsements
WHERE requirement_id=? AND requirement_version=? ORDER BY created_at ASC, id ASC`, requirementID, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Endorsement
	for rows.Next() {
		e, err := scanEndorsement(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// FindPendingRoleEndorsement returns the pending role-based endorsement
// assigned to a person for one requirement version.
func (s Store) FindPendingRoleEndorsement(ctx context.Context, requirementID string, version int, personID string) (domain.Endorsement, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+endorsementColumns+` FROM endorsements
WHERE requirement_id=? AND requirement_version=? AND category=? AND status=? AND endorsed_by=? LIMIT 1`,
		requirementID, version, domain.CategoryRoleBased, domain.EndorsementPending, personID)
	return scanEndorsement(row.Scan)
}

// UpdateEndorsementIfPending applies a status change only while the record is
// still pending. Returns false when another writer got there first.
func (s Store) UpdateEndorsementIfPending(ctx context.Context, tx *sql.Tx, id, status, comments, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE endorsements SET status=?, comments=?, updated_at=? WHERE id=? AND status=?`,
		status, nullable(comments), now, id, domain.EndorsementPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateAutomatedCheck records a completed check result on the pending
// placeholder for the given category.
func (s Store) UpdateAutomatedCheck(ctx context.Context, requirementID string, version int, category, status string, details *domain.CheckDetails, now string) error {
	detailsJSON, err := marshalCheckDetails(details)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `UPDATE endorsements SET status=?, check_details_json=?, updated_at=?
WHERE requirement_id=? AND requirement_version=? AND category=? AND status=?`,
		status, detailsJSON, now, requirementID, version, category, domain.EndorsementPending)
	return err
}

// AnnotateCheckError stores an error message on a pending placeholder without
// changing its status.
func (s Store) AnnotateCheckError(ctx context.Context, requirementID string, version int, category string, details *domain.CheckDetails, now string) error {
	detailsJSON, err := marshalCheckDetails(details)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `UPDATE endorsements SET check_details_json=?, updated_at=?
WHERE requirement_id=? AND requirement_version=? AND category=? AND status=?`,
		detailsJSON, now, requirementID, version, category, domain.EndorsementPending)
	return err
}

// DeleteAutomatedChecks removes automated placeholders for a category so a
// retry can recreate them. Role-based endorsements are never deleted.
func (s Store) DeleteAutomatedChecks(ctx context.Context, tx *sql.Tx, requirementID string, version int, category string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM endorsements
WHERE requirement_id=? AND requirement_version=? AND category=? AND category<>?`,
		requirementID, version, category, domain.CategoryRoleBased)
	return err
}

// PendingEndorsements lists pending endorsements across a solution, joined
// through the requirements table.
func (s Store) PendingEndorsements(ctx context.Context, solutionID string) ([]domain.Endorsement, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT e.id,e.requirement_id,e.requirement_version,e.req_type,e.category,e.status,e.endorsed_by,e.comments,e.check_details_json,e.created_at,e.updated_at
FROM endorsements e
JOIN requirements r ON r.id=e.requirement_id AND r.version=e.requirement_version
WHERE r.solution_id=? AND e.status=? ORDER BY e.created_at ASC, e.id ASC`, solutionID, domain.EndorsementPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Endorsement
	for rows.Next() {
		e, err := scanEndorsement(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
