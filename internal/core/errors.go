package core

import "fmt"

// ValidationError reports malformed or out-of-range caller input: an
// unparsable search value, a paging bound outside its limits, or a document
// missing a required element. Always caller-fixable.
type ValidationError struct {
	Param string // offending parameter or document field
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Param == "" {
		return e.Msg
	}
	return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Msg)
}

func NewValidationError(param, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Param: param, Msg: fmt.Sprintf(format, args...)}
}

// ReferenceError reports a document reference that does not resolve: the
// target is missing, soft-deleted, or of the wrong resource type. It carries
// the offending reference so the caller can name it verbatim.
type ReferenceError struct {
	ResourceType string // expected target type
	ID           string
	Reason       string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("reference %s/%s: %s", e.ResourceType, e.ID, e.Reason)
}

// NotFoundError reports an operation targeting an id that does not exist, or
// that is excluded by soft-delete policy for that operation.
type NotFoundError struct {
	ResourceType string
	ID           string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s/%s not found", e.ResourceType, e.ID)
}

// StoreError wraps an underlying persistence failure. It is surfaced opaquely
// so storage detail does not leak to callers.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
