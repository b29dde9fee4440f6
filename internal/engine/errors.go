package engine

import "fmt"

// ValidationError indicates malformed input; the operation is never attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// PermissionError indicates the caller lacks the role or ownership required
// for the operation. Distinct from NotFoundError so callers learn why the
// call failed; front ends may still collapse the two if they prefer.
type PermissionError struct {
	Op     string
	UserID int64
}

func (e PermissionError) Error() string {
	return fmt.Sprintf("user %d not permitted to %s", e.UserID, e.Op)
}

// NotFoundError indicates the referenced entity does not exist.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// TransitionError indicates the requirement's current state does not satisfy
// the operation's precondition. The record is left unchanged.
type TransitionError struct {
	ID   int64
	From string
	To   string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("requirement %d: invalid transition %s -> %s", e.ID, e.From, e.To)
}

// StoreError wraps a store failure (unreachable database, query error). The
// scheduler retries these forever with backoff; interactive callers see them
// immediately.
type StoreError struct {
	Op  string
	Err error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e StoreError) Unwrap() error { return e.Err }
