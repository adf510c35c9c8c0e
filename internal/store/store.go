package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"reqline/internal/domain"
)

type Store struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// statePriority orders workflow states for visible-requirement dedup: the
// version in the highest-priority state represents the requirement id.
var statePriority = map[string]int{
	domain.StateReview:   6,
	domain.StateProposed: 5,
	domain.StateActive:   4,
	domain.StateRejected: 3,
	domain.StateRemoved:  2,
	domain.StateParsed:   1,
}

const requirementColumns = `id,version,solution_id,req_type,req_id,req_seq,state,props_json,created_by,created_at,modified_by,modified_at`

func marshalProps(props map[string]any) (any, error) {
	if len(props) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanRequirement(scan func(dest ...any) error) (domain.Requirement, error) {
	var r domain.Requirement
	var reqID, props sql.NullString
	var reqSeq sql.NullInt64
	err := scan(&r.ID, &r.Version, &r.SolutionID, &r.ReqType, &reqID, &reqSeq, &r.State, &props, &r.CreatedBy, &r.CreatedAt, &r.ModifiedBy, &r.ModifiedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}
	if reqID.Valid {
		r.ReqID = reqID.String
	}
	if reqSeq.Valid {
		r.ReqSeq = int(reqSeq.Int64)
	}
	if props.Valid && props.String != "" {
		if err := json.Unmarshal([]byte(props.String), &r.Props); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (s Store) InsertRequirement(ctx context.Context, tx *sql.Tx, r domain.Requirement) error {
	props, err := marshalProps(r.Props)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO requirements(`+requirementColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Version, r.SolutionID, r.ReqType, nullable(r.ReqID), nullableInt(r.ReqSeq), r.State, props,
		r.CreatedBy, r.CreatedAt, r.ModifiedBy, r.ModifiedAt)
	return err
}

func (s Store) UpdateRequirement(ctx context.Context, tx *sql.Tx, r domain.Requirement) error {
	props, err := marshalProps(r.Props)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE requirements SET state=?, props_json=?, req_id=?, req_seq=?, modified_by=?, modified_at=? WHERE id=? AND version=?`,
		r.State, props, nullable(r.ReqID), nullableInt(r.ReqSeq), r.ModifiedBy, r.ModifiedAt, r.ID, r.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRequirement returns the latest version of a requirement id.
func (s Store) GetRequirement(ctx context.Context, id string) (domain.Requirement, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+requirementColumns+` FROM requirements WHERE id=? ORDER BY version DESC LIMIT 1`, id)
	return scanRequirement(row.Scan)
}

func (s Store) GetRequirementVersion(ctx context.Context, id string, version int) (domain.Requirement, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+requirementColumns+` FROM requirements WHERE id=? AND version=?`, id, version)
	return scanRequirement(row.Scan)
}

type RequirementFilters struct {
	SolutionID string
	ReqType    string
	State      string
}

// ListRequirements returns the latest version of each matching requirement id.
func (s Store) ListRequirements(ctx context.Context, f RequirementFilters) ([]domain.Requirement, error) {
	return s.ListRequirementsTx(ctx, nil, f)
}

// ListRequirementsTx is ListRequirements running on an open transaction when
// tx is non-nil. Reads issued inside a write transaction must go through the
// same connection or they block on the writer's lock.
func (s Store) ListRequirementsTx(ctx context.Context, tx *sql.Tx, f RequirementFilters) ([]domain.Requirement, error) {
	clauses := []string{`version = (SELECT MAX(version) FROM requirements r2 WHERE r2.id = requirements.id)`}
	var args []any
	if f.SolutionID != "" {
		clauses = append(clauses, "solution_id=?")
		args = append(args, f.SolutionID)
	}
	if f.ReqType != "" {
		clauses = append(clauses, "req_type=?")
		args = append(args, f.ReqType)
	}
	if f.State != "" {
		clauses = append(clauses, "state=?")
		args = append(args, f.State)
	}
	query := `SELECT ` + requirementColumns + ` FROM requirements WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at ASC, id ASC`
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = s.DB.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Requirement
	for rows.Next() {
		r, err := scanRequirement(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// ListActiveRequirements returns latest versions in the active state.
func (s Store) ListActiveRequirements(ctx context.Context, solutionID, reqType string) ([]domain.Requirement, error) {
	return s.ListRequirementsTx(ctx, nil, RequirementFilters{SolutionID: solutionID, ReqType: reqType, State: domain.StateActive})
}

// ListActiveRequirementsTx is ListActiveRequirements inside an open
// transaction.
func (s Store) ListActiveRequirementsTx(ctx context.Context, tx *sql.Tx, solutionID, reqType string) ([]domain.Requirement, error) {
	return s.ListRequirementsTx(ctx, tx, RequirementFilters{SolutionID: solutionID, ReqType: reqType, State: domain.StateActive})
}

// ListVisibleRequirements returns one version per requirement id, picking the
// version in the highest-priority state (review > proposed > active > ...).
func (s Store) ListVisibleRequirements(ctx context.Context, solutionID, reqType string) ([]domain.Requirement, error) {
	clauses := []string{"solution_id=?"}
	args := []any{solutionID}
	if reqType != "" {
		clauses = append(clauses, "req_type=?")
		args = append(args, reqType)
	}
	query := `SELECT ` + requirementColumns + ` FROM requirements WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at ASC, id ASC, version ASC`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byID := map[string]int{}
	var res []domain.Requirement
	for rows.Next() {
		r, err := scanRequirement(rows.Scan)
		if err != nil {
			return nil, err
		}
		idx, seen := byID[r.ID]
		if !seen {
			byID[r.ID] = len(res)
			res = append(res, r)
			continue
		}
		cur := res[idx]
		if statePriority[r.State] > statePriority[cur.State] ||
			(statePriority[r.State] == statePriority[cur.State] && r.Version > cur.Version) {
			res[idx] = r
		}
	}
	return res, rows.Err()
}

// HasNewerProposedOrReviewVersions reports whether a version above the given
// one exists in the proposed or review state.
func (s Store) HasNewerProposedOrReviewVersions(ctx context.Context, id string, version int) (bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT 1 FROM requirements WHERE id=? AND version>? AND state IN (?,?) LIMIT 1`,
		id, version, domain.StateProposed, domain.StateReview)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// NextReqSeq allocates the next reqId sequence number for a type in a
// solution. Must run inside the same transaction as the insert.
func (s Store) NextReqSeq(ctx context.Context, tx *sql.Tx, solutionID, reqType string) (int, error) {
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(req_seq),0) FROM requirements WHERE solution_id=? AND req_type=?`, solutionID, reqType)
	var max int
	if err := row.Scan(&max); err != nil {
		return 0, err
	}
	return max + 1, nil
}

// ActiveVersionsExcept returns active versions of a requirement id other than
// the given version. Used to retire superseded versions on approval.
func (s Store) ActiveVersionsExcept(ctx context.Context, tx *sql.Tx, id string, version int) ([]int, error) {
	rows, err := tx.QueryContext(ctx, `SELECT version FROM requirements WHERE id=? AND version<>? AND state=?`, id, version, domain.StateActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s Store) SetRequirementState(ctx context.Context, tx *sql.Tx, id string, version int, state, modifiedBy, modifiedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE requirements SET state=?, modified_by=?, modified_at=? WHERE id=? AND version=?`,
		state, modifiedBy, modifiedAt, id, version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountRequirementsByState groups latest-version requirements of a solution
// by workflow state.
func (s Store) CountRequirementsByState(ctx context.Context, solutionID string) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT state, count(*) FROM requirements
WHERE solution_id=? AND version = (SELECT MAX(version) FROM requirements r2 WHERE r2.id = requirements.id)
GROUP BY state`, solutionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		res[state] = count
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
