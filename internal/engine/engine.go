package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"reqmgr/internal/domain"
	"reqmgr/internal/repo"
)

// Engine is the sole writer of requirement lifecycle state. Every mutation is
// a single conditional UPDATE whose affected-row count decides success, so
// two concurrent callers can never both win the same transition.
type Engine struct {
	DB   *sql.DB
	Repo repo.Repo
	Now  func() time.Time
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:   db,
		Repo: repo.Repo{DB: db},
		Now:  time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// capability names the ownership predicate an operation requires. Checks are
// centralized in authorize instead of repeated per operation.
type capability int

const (
	capAdmin    capability = iota // caller must hold the admin role
	capAssignee                   // caller must be the ticket's assignee
	capAssigner                   // caller must be the ticket's assigner on record
)

func authorize(caller domain.User, c capability, op string, req domain.Requirement) error {
	if caller.ID == 0 {
		return PermissionError{Op: op, UserID: caller.ID}
	}
	switch c {
	case capAdmin:
		if !caller.IsAdmin() {
			return PermissionError{Op: op, UserID: caller.ID}
		}
	case capAssignee:
		if caller.ID != req.AssigneeID {
			return PermissionError{Op: op, UserID: caller.ID}
		}
	case capAssigner:
		// Role admin alone is not sufficient; the caller must be the
		// specific assigner on record.
		if caller.ID != req.AssignerID {
			return PermissionError{Op: op, UserID: caller.ID}
		}
	}
	return nil
}

func (e Engine) getRequirement(ctx context.Context, id int64) (domain.Requirement, error) {
	req, err := e.Repo.GetRequirement(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return req, NotFoundError{Kind: "requirement", ID: id}
	}
	if err != nil {
		return req, StoreError{Op: "get requirement", Err: err}
	}
	return req, nil
}

// CreateOptions are parameters for creating a requirement.
type CreateOptions struct {
	Title       string
	Description string
	AssigneeID  int64
	Priority    string
	ScheduledAt *time.Time
}

// Create validates and stores a new requirement. With no schedule the ticket
// is dispatched immediately (pending); with a future schedule it stays inert
// (not_dispatched) until the scheduler promotes it, and created_at is left
// unset until that moment.
func (e Engine) Create(ctx context.Context, caller domain.User, opts CreateOptions) (domain.Requirement, error) {
	if err := authorize(caller, capAdmin, "create requirement", domain.Requirement{}); err != nil {
		return domain.Requirement{}, err
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Requirement{}, ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if strings.TrimSpace(opts.Description) == "" {
		return domain.Requirement{}, ValidationError{Field: "description", Reason: "must not be empty"}
	}
	priority := opts.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !domain.ValidPriority(priority) {
		return domain.Requirement{}, ValidationError{Field: "priority", Reason: "must be normal or urgent"}
	}
	if _, err := e.Repo.GetUser(ctx, opts.AssigneeID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Requirement{}, ValidationError{Field: "assignee", Reason: "unknown user"}
		}
		return domain.Requirement{}, StoreError{Op: "resolve assignee", Err: err}
	}
	now := e.now()
	req := domain.Requirement{
		Title:       opts.Title,
		Description: opts.Description,
		AssignerID:  caller.ID,
		AssigneeID:  opts.AssigneeID,
		Priority:    priority,
	}
	if opts.ScheduledAt != nil {
		if !opts.ScheduledAt.After(now) {
			return domain.Requirement{}, ValidationError{Field: "scheduled_time", Reason: "must be in the future"}
		}
		sched := opts.ScheduledAt.UTC().Format(time.RFC3339)
		req.Status = domain.StatusNotDispatched
		req.ScheduledTime = &sched
	} else {
		created := now.UTC().Format(time.RFC3339)
		req.Status = domain.StatusPending
		req.IsDispatched = true
		req.CreatedAt = &created
	}
	id, err := e.Repo.InsertRequirement(ctx, req)
	if err != nil {
		return domain.Requirement{}, StoreError{Op: "insert requirement", Err: err}
	}
	return e.getRequirement(ctx, id)
}

// DispatchDue promotes every scheduled requirement whose trigger time has
// passed to pending. Invoked by the scheduler; returns the count promoted.
func (e Engine) DispatchDue(ctx context.Context) (int, error) {
	n, err := e.Repo.DispatchDue(ctx, e.nowString())
	if err != nil {
		return 0, StoreError{Op: "dispatch due", Err: err}
	}
	return int(n), nil
}

// CancelScheduled hard-deletes a requirement that was never dispatched. Once
// the ticket has been promoted, cancellation is no longer possible.
func (e Engine) CancelScheduled(ctx context.Context, caller domain.User, id int64) error {
	req, err := e.getRequirement(ctx, id)
	if err != nil {
		return err
	}
	if req.IsDeleted {
		return NotFoundError{Kind: "requirement", ID: id}
	}
	if err := authorize(caller, capAssigner, "cancel scheduled requirement", req); err != nil {
		return err
	}
	n, err := e.Repo.CancelScheduled(ctx, id)
	if err != nil {
		return StoreError{Op: "cancel scheduled", Err: err}
	}
	if n == 0 {
		return TransitionError{ID: id, From: req.Status, To: "cancelled"}
	}
	return nil
}

// Submit records the assignee's completion note and moves the ticket to
// reviewing. Only valid from pending.
func (e Engine) Submit(ctx context.Context, caller domain.User, id int64, comment string) error {
	if strings.TrimSpace(comment) == "" {
		return ValidationError{Field: "comment", Reason: "must not be empty"}
	}
	req, err := e.getRequirement(ctx, id)
	if err != nil {
		return err
	}
	if req.IsDeleted {
		return NotFoundError{Kind: "requirement", ID: id}
	}
	if err := authorize(caller, capAssignee, "submit requirement", req); err != nil {
		return err
	}
	n, err := e.Repo.SubmitRequirement(ctx, id, comment, e.nowString())
	if err != nil {
		return StoreError{Op: "submit requirement", Err: err}
	}
	if n == 0 {
		return TransitionError{ID: id, From: req.Status, To: domain.StatusReviewing}
	}
	return nil
}

// Approve completes a reviewing requirement, keeping the completion note.
func (e Engine) Approve(ctx context.Context, caller domain.User, id int64) error {
	return e.assignerTransition(ctx, caller, id, "approve requirement", domain.StatusCompleted, e.Repo.ApproveRequirement)
}

// Reject sends a reviewing requirement back to pending; the completion note
// and timestamp are cleared so a later submit starts fresh.
func (e Engine) Reject(ctx context.Context, caller domain.User, id int64) error {
	return e.assignerTransition(ctx, caller, id, "reject requirement", domain.StatusPending, e.Repo.RejectRequirement)
}

// Invalidate retires an active requirement. Terminal: no dispatch, submit or
// approval is possible afterwards.
func (e Engine) Invalidate(ctx context.Context, caller domain.User, id int64) error {
	return e.assignerTransition(ctx, caller, id, "invalidate requirement", domain.StatusInvalid, e.Repo.InvalidateRequirement)
}

func (e Engine) assignerTransition(ctx context.Context, caller domain.User, id int64, op, to string,
	apply func(context.Context, int64) (int64, error)) error {
	req, err := e.getRequirement(ctx, id)
	if err != nil {
		return err
	}
	if req.IsDeleted {
		return NotFoundError{Kind: "requirement", ID: id}
	}
	if err := authorize(caller, capAssigner, op, req); err != nil {
		return err
	}
	n, err := apply(ctx, id)
	if err != nil {
		return StoreError{Op: op, Err: err}
	}
	if n == 0 {
		return TransitionError{ID: id, From: req.Status, To: to}
	}
	return nil
}

// Delete moves a requirement to the trash. Status, dispatch flag and schedule
// are untouched so Restore returns the ticket to its exact prior state.
func (e Engine) Delete(ctx context.Context, caller domain.User, id int64) error {
	req, err := e.getRequirement(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(caller, capAssigner, "delete requirement", req); err != nil {
		return err
	}
	n, err := e.Repo.SoftDeleteRequirement(ctx, id, e.nowString())
	if err != nil {
		return StoreError{Op: "delete requirement", Err: err}
	}
	if n == 0 {
		return TransitionError{ID: id, From: req.Status, To: "trash"}
	}
	return nil
}

// Restore recovers a requirement from the trash.
func (e Engine) Restore(ctx context.Context, caller domain.User, id int64) error {
	req, err := e.getRequirement(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(caller, capAssigner, "restore requirement", req); err != nil {
		return err
	}
	n, err := e.Repo.RestoreRequirement(ctx, id)
	if err != nil {
		return StoreError{Op: "restore requirement", Err: err}
	}
	if n == 0 {
		return TransitionError{ID: id, From: req.Status, To: "restored"}
	}
	return nil
}

// Get returns a single requirement visible to the caller. Trash is visible
// only to the assigner.
func (e Engine) Get(ctx context.Context, caller domain.User, id int64) (domain.Requirement, error) {
	req, err := e.getRequirement(ctx, id)
	if err != nil {
		return req, err
	}
	if caller.ID != req.AssigneeID && caller.ID != req.AssignerID {
		return domain.Requirement{}, PermissionError{Op: "view requirement", UserID: caller.ID}
	}
	if req.IsDeleted && caller.ID != req.AssignerID {
		return domain.Requirement{}, NotFoundError{Kind: "requirement", ID: id}
	}
	return req, nil
}

// ListForAssignee returns the dispatched tickets assigned to a user. Staff
// may list only their own work; admins may list anyone's.
func (e Engine) ListForAssignee(ctx context.Context, caller domain.User, assigneeID int64, status string) ([]domain.Requirement, error) {
	if assigneeID == 0 {
		assigneeID = caller.ID
	}
	if caller.ID != assigneeID && !caller.IsAdmin() {
		return nil, PermissionError{Op: "list requirements", UserID: caller.ID}
	}
	if status != "" && !domain.ValidStatus(status) {
		return nil, ValidationError{Field: "status", Reason: "unknown status"}
	}
	items, err := e.Repo.ListForAssignee(ctx, assigneeID, status)
	if err != nil {
		return nil, StoreError{Op: "list for assignee", Err: err}
	}
	return items, nil
}

// ListDispatchedForAssigner returns the caller's dispatched tickets,
// optionally narrowed to one assignee and/or status.
func (e Engine) ListDispatchedForAssigner(ctx context.Context, caller domain.User, assigneeID int64, status string) ([]domain.Requirement, error) {
	if err := authorize(caller, capAdmin, "list dispatched requirements", domain.Requirement{}); err != nil {
		return nil, err
	}
	if status != "" && !domain.ValidStatus(status) {
		return nil, ValidationError{Field: "status", Reason: "unknown status"}
	}
	items, err := e.Repo.ListDispatchedForAssigner(ctx, caller.ID, assigneeID, status)
	if err != nil {
		return nil, StoreError{Op: "list dispatched", Err: err}
	}
	return items, nil
}

// ListScheduledForAssigner returns the caller's not-yet-dispatched tickets.
func (e Engine) ListScheduledForAssigner(ctx context.Context, caller domain.User, assigneeID int64) ([]domain.Requirement, error) {
	if err := authorize(caller, capAdmin, "list scheduled requirements", domain.Requirement{}); err != nil {
		return nil, err
	}
	items, err := e.Repo.ListScheduledForAssigner(ctx, caller.ID, assigneeID)
	if err != nil {
		return nil, StoreError{Op: "list scheduled", Err: err}
	}
	return items, nil
}

// ListDeletedForAssigner returns the caller's trash.
func (e Engine) ListDeletedForAssigner(ctx context.Context, caller domain.User) ([]domain.Requirement, error) {
	if err := authorize(caller, capAdmin, "list deleted requirements", domain.Requirement{}); err != nil {
		return nil, err
	}
	items, err := e.Repo.ListDeletedForAssigner(ctx, caller.ID)
	if err != nil {
		return nil, StoreError{Op: "list deleted", Err: err}
	}
	return items, nil
}

// Stats returns the caller's dispatched ticket counts grouped by status.
func (e Engine) Stats(ctx context.Context, caller domain.User) (map[string]int, error) {
	if err := authorize(caller, capAdmin, "requirement stats", domain.Requirement{}); err != nil {
		return nil, err
	}
	counts, err := e.Repo.CountByStatusForAssigner(ctx, caller.ID)
	if err != nil {
		return nil, StoreError{Op: "count by status", Err: err}
	}
	return counts, nil
}

// ClearAll physically deletes every requirement. Administrative escape hatch,
// outside the lifecycle; use with care.
func (e Engine) ClearAll(ctx context.Context, caller domain.User) (int64, error) {
	if err := authorize(caller, capAdmin, "clear all requirements", domain.Requirement{}); err != nil {
		return 0, err
	}
	n, err := e.Repo.ClearAllRequirements(ctx)
	if err != nil {
		return 0, StoreError{Op: "clear all", Err: err}
	}
	return n, nil
}
