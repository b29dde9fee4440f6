package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"reqmgr/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const requirementColumns = `r.id, r.title, r.description, r.assigner_id, r.assignee_id,
	ra.display_name, re.display_name,
	r.status, r.priority, r.created_at, r.scheduled_time, r.is_dispatched,
	r.completed_at, r.comment, r.is_deleted, r.deleted_at`

const requirementJoins = `FROM requirements r
	JOIN users ra ON ra.id = r.assigner_id
	JOIN users re ON re.id = r.assignee_id`

func scanRequirement(scan func(dest ...any) error) (domain.Requirement, error) {
	var r domain.Requirement
	var createdAt, scheduledTime, completedAt, comment, deletedAt sql.NullString
	var isDispatched, isDeleted int
	err := scan(&r.ID, &r.Title, &r.Description, &r.AssignerID, &r.AssigneeID,
		&r.AssignerName, &r.AssigneeName,
		&r.Status, &r.Priority, &createdAt, &scheduledTime, &isDispatched,
		&completedAt, &comment, &isDeleted, &deletedAt)
	if err != nil {
		return r, err
	}
	if createdAt.Valid {
		r.CreatedAt = &createdAt.String
	}
	if scheduledTime.Valid {
		r.ScheduledTime = &scheduledTime.String
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.String
	}
	if comment.Valid {
		r.Comment = &comment.String
	}
	r.IsDispatched = isDispatched == 1
	r.IsDeleted = isDeleted == 1
	if deletedAt.Valid {
		r.DeletedAt = &deletedAt.String
	}
	return r, nil
}

// InsertRequirement stores a new requirement and returns its assigned ID.
// CreatedAt stays NULL for scheduled tickets until dispatch overwrites it.
func (r Repo) InsertRequirement(ctx context.Context, req domain.Requirement) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO requirements
		(title, description, assigner_id, assignee_id, status, priority, created_at, scheduled_time, is_dispatched)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		req.Title, req.Description, req.AssignerID, req.AssigneeID, req.Status, req.Priority,
		nullableStringPtr(req.CreatedAt), nullableStringPtr(req.ScheduledTime), boolInt(req.IsDispatched))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetRequirement returns a single requirement with joined display names,
// regardless of its deleted flag. Callers decide whether trash is visible.
func (r Repo) GetRequirement(ctx context.Context, id int64) (domain.Requirement, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+requirementColumns+` `+requirementJoins+` WHERE r.id=?`, id)
	req, err := scanRequirement(row.Scan)
	if err == sql.ErrNoRows {
		return req, ErrNotFound
	}
	return req, err
}

func (r Repo) queryRequirements(ctx context.Context, where string, order string, args ...any) ([]domain.Requirement, error) {
	query := `SELECT ` + requirementColumns + ` ` + requirementJoins + ` WHERE ` + where + ` ORDER BY ` + order
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Requirement
	for rows.Next() {
		req, err := scanRequirement(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

// ListForAssignee returns dispatched, non-deleted requirements assigned to a
// user, optionally filtered by status.
func (r Repo) ListForAssignee(ctx context.Context, assigneeID int64, status string) ([]domain.Requirement, error) {
	clauses := []string{"r.assignee_id=?", "r.is_dispatched=1", "r.is_deleted=0"}
	args := []any{assigneeID}
	if status != "" {
		clauses = append(clauses, "r.status=?")
		args = append(args, status)
	}
	return r.queryRequirements(ctx, strings.Join(clauses, " AND "), "r.created_at DESC, r.id DESC", args...)
}

// ListDispatchedForAssigner returns dispatched, non-deleted requirements
// issued by an assigner. assigneeID=0 means all assignees.
func (r Repo) ListDispatchedForAssigner(ctx context.Context, assignerID, assigneeID int64, status string) ([]domain.Requirement, error) {
	clauses := []string{"r.assigner_id=?", "r.is_dispatched=1", "r.is_deleted=0"}
	args := []any{assignerID}
	if assigneeID != 0 {
		clauses = append(clauses, "r.assignee_id=?")
		args = append(args, assigneeID)
	}
	if status != "" {
		clauses = append(clauses, "r.status=?")
		args = append(args, status)
	}
	return r.queryRequirements(ctx, strings.Join(clauses, " AND "), "r.created_at DESC, r.id DESC", args...)
}

// ListScheduledForAssigner returns not-yet-dispatched requirements issued by
// an assigner, soonest trigger first. assigneeID=0 means all assignees.
func (r Repo) ListScheduledForAssigner(ctx context.Context, assignerID, assigneeID int64) ([]domain.Requirement, error) {
	clauses := []string{"r.assigner_id=?", "r.is_dispatched=0", "r.is_deleted=0"}
	args := []any{assignerID}
	if assigneeID != 0 {
		clauses = append(clauses, "r.assignee_id=?")
		args = append(args, assigneeID)
	}
	return r.queryRequirements(ctx, strings.Join(clauses, " AND "), "r.scheduled_time ASC, r.id ASC", args...)
}

// ListDeletedForAssigner returns the assigner's trash, most recently deleted
// first.
func (r Repo) ListDeletedForAssigner(ctx context.Context, assignerID int64) ([]domain.Requirement, error) {
	return r.queryRequirements(ctx, "r.assigner_id=? AND r.is_deleted=1", "r.deleted_at DESC, r.id DESC", assignerID)
}

// DispatchDue promotes every scheduled requirement whose trigger time has
// passed. A single conditional UPDATE; the affected-row count is the number
// promoted. created_at is overwritten with the dispatch moment.
func (r Repo) DispatchDue(ctx context.Context, now string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE requirements
		SET is_dispatched=1, status=?, created_at=?
		WHERE is_dispatched=0 AND is_deleted=0 AND scheduled_time <= ?`,
		domain.StatusPending, now, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CancelScheduled hard-deletes a requirement that was never dispatched.
func (r Repo) CancelScheduled(ctx context.Context, id int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM requirements WHERE id=? AND is_dispatched=0 AND is_deleted=0`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SubmitRequirement moves a pending requirement to reviewing with the staff
// completion note. Conditional on current status; affected rows signal
// success.
func (r Repo) SubmitRequirement(ctx context.Context, id int64, comment, now string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE requirements
		SET status=?, comment=?, completed_at=?
		WHERE id=? AND status=? AND is_deleted=0`,
		domain.StatusReviewing, comment, now, id, domain.StatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ApproveRequirement completes a reviewing requirement.
func (r Repo) ApproveRequirement(ctx context.Context, id int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE requirements
		SET status=?
		WHERE id=? AND status=? AND is_deleted=0`,
		domain.StatusCompleted, id, domain.StatusReviewing)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RejectRequirement sends a reviewing requirement back to pending, clearing
// the completion note and timestamp.
func (r Repo) RejectRequirement(ctx context.Context, id int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE requirements
		SET status=?, comment=NULL, completed_at=NULL
		WHERE id=? AND status=? AND is_deleted=0`,
		domain.StatusPending, id, domain.StatusReviewing)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InvalidateRequirement marks an active requirement invalid. Terminal: once
// invalid, no dispatch/submit/approve condition matches it again.
func (r Repo) InvalidateRequirement(ctx context.Context, id int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE requirements
		SET status=?
		WHERE id=? AND status IN (?,?,?) AND is_deleted=0`,
		domain.StatusInvalid, id, domain.StatusPending, domain.StatusReviewing, domain.StatusCompleted)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SoftDeleteRequirement moves a requirement to the trash.
func (r Repo) SoftDeleteRequirement(ctx context.Context, id int64, now string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE requirements
		SET is_deleted=1, deleted_at=?
		WHERE id=? AND is_deleted=0`, now, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RestoreRequirement recovers a requirement from the trash; status,
// is_dispatched and scheduled_time are untouched so the ticket returns to its
// prior state.
func (r Repo) RestoreRequirement(ctx context.Context, id int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE requirements
		SET is_deleted=0, deleted_at=NULL
		WHERE id=? AND is_deleted=1`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountByStatusForAssigner returns dispatched, non-deleted requirement counts
// grouped by status for one assigner.
func (r Repo) CountByStatusForAssigner(ctx context.Context, assignerID int64) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM requirements
		WHERE assigner_id=? AND is_dispatched=1 AND is_deleted=0 GROUP BY status`, assignerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// ClearAllRequirements physically deletes every requirement row. Maintenance
// escape hatch, not part of the lifecycle.
func (r Repo) ClearAllRequirements(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM requirements`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
