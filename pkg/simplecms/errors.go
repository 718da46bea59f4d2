package simplecms

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrNotFound indicates a referenced page, region, content or placement does not exist
	ErrNotFound = errors.New("not found")

	// ErrConcurrencyConflict indicates a write collided with a concurrent writer
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrVersionMismatch indicates the stored version differs from the expected version
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrPersistence indicates the underlying storage failed
	ErrPersistence = errors.New("persistence failure")

	// ErrInvalidContentState indicates content is structurally incomplete for the operation
	ErrInvalidContentState = errors.New("invalid content state")

	// ErrInvalidRequest indicates a request is missing required values
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRepositoryRequired indicates the service was built without a repository
	ErrRepositoryRequired = errors.New("repository is required")
)

// Entity names used in NotFoundError.
const (
	EntityPage        = "page"
	EntityRegion      = "region"
	EntityContent     = "content"
	EntityPageContent = "page content"
)

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError returns a NotFoundError for entity and id.
func NewNotFoundError(entity string, id uuid.UUID) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConcurrencyConflictError reports an order collision or a stale version that
// could not be resolved within the configured retries.
type ConcurrencyConflictError struct {
	PageID   uuid.UUID
	RegionID uuid.UUID
	ParentID *uuid.UUID
	Order    int
	Attempts int
	Err      error
}

func (e *ConcurrencyConflictError) Error() string {
	parent := "root"
	if e.ParentID != nil {
		parent = e.ParentID.String()
	}
	return fmt.Sprintf("concurrency conflict on page %s region %s parent %s (order %d, attempts %d): %v",
		e.PageID, e.RegionID, parent, e.Order, e.Attempts, e.Err)
}

func (e *ConcurrencyConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

func (e *ConcurrencyConflictError) Unwrap() error {
	return e.Err
}

// PersistenceError represents a storage failure during an operation
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence operation %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// InvalidContentStateError reports content that cannot take part in an operation.
type InvalidContentStateError struct {
	ContentID uuid.UUID
	Reason    string
}

func (e *InvalidContentStateError) Error() string {
	return fmt.Sprintf("content %s is in an invalid state: %s", e.ContentID, e.Reason)
}

func (e *InvalidContentStateError) Is(target error) bool {
	return target == ErrInvalidContentState
}

// wrapPersistence wraps err as a PersistenceError unless it already carries
// one of the domain error kinds.
func wrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrInvalidContentState) || errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
