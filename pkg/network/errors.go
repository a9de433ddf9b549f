package network

import (
	"errors"
	"fmt"

	"github.com/dd0wney/procline/pkg/recipe"
)

// Common sentinel errors
var (
	ErrNodeNotFound        = errors.New("node not found")
	ErrGroupNotFound       = errors.New("group not found")
	ErrInvalidRecipe       = errors.New("invalid recipe")
	ErrInvalidConnection   = errors.New("invalid connection")
	ErrDuplicateConnection = errors.New("connection already exists")
	ErrRecipeMismatch      = errors.New("recipe does not handle item")

	// ErrMissingConnection: a step needs a source or sink for an item and none is declared.
	ErrMissingConnection = errors.New("missing connection")
	// ErrInvalidGroupTopology: connectivity disagrees with the detected groups.
	ErrInvalidGroupTopology = errors.New("invalid group topology")
	// ErrNumericalInconsistency: a least-squares residual exceeded tolerance.
	ErrNumericalInconsistency = errors.New("numerical inconsistency")
	// ErrUnsupportedNesting: a group would contain a member of another group.
	ErrUnsupportedNesting = errors.New("nested groups are not supported")
)

// Error provides structured error information for network operations.
type Error struct {
	Op      string      // Operation that failed (e.g., "Connect", "Propagate")
	Entity  string      // Entity type (e.g., "node", "group")
	ID      int64       // Entity ID, -1 when not applicable
	Item    recipe.Item // Item the operation concerned (if applicable)
	Cause   error       // Underlying error
	Context string      // Additional context
}

// Error implements the error interface.
func (e *Error) Error() string {
	subject := e.Entity
	if e.ID >= 0 && e.Entity != "" {
		subject = fmt.Sprintf("%s %d", e.Entity, e.ID)
	}
	if e.Item != "" {
		subject = fmt.Sprintf("%s (item %s)", subject, e.Item)
	}
	if e.Context != "" {
		return fmt.Sprintf("%s %s: %v: %s", e.Op, subject, e.Cause, e.Context)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, subject, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorBuilder provides a fluent interface for building network errors.
type ErrorBuilder struct {
	err Error
}

// NewError creates a new error builder with the given operation.
func NewError(op string) *ErrorBuilder {
	return &ErrorBuilder{err: Error{Op: op, ID: -1}}
}

// Node sets the entity to "node" with the given ID.
func (b *ErrorBuilder) Node(id NodeID) *ErrorBuilder {
	b.err.Entity = "node"
	b.err.ID = int64(id)
	return b
}

// Group sets the entity to "group" with the given ID.
func (b *ErrorBuilder) Group(id GroupID) *ErrorBuilder {
	b.err.Entity = "group"
	b.err.ID = int64(id)
	return b
}

// Item sets the item the failure concerns.
func (b *ErrorBuilder) Item(item recipe.Item) *ErrorBuilder {
	b.err.Item = item
	return b
}

// Context sets additional context information.
func (b *ErrorBuilder) Context(format string, args ...any) *ErrorBuilder {
	b.err.Context = fmt.Sprintf(format, args...)
	return b
}

// Cause sets the underlying error cause.
func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

// Err returns the error as an error interface.
func (b *ErrorBuilder) Err() error {
	e := b.err
	return &e
}

// NodeNotFoundError creates a node not found error.
func NodeNotFoundError(op string, id NodeID) error {
	return NewError(op).Node(id).Cause(ErrNodeNotFound).Err()
}

// MissingConnectionError reports a step with no declared source or sink for item.
func MissingConnectionError(op string, id NodeID, item recipe.Item, dir string) error {
	return NewError(op).Node(id).Item(item).Cause(ErrMissingConnection).Context("no %s target declared", dir).Err()
}

// IsMissingConnection reports whether err is a MissingConnection failure.
func IsMissingConnection(err error) bool {
	return errors.Is(err, ErrMissingConnection)
}

// IsTopologyError reports whether err means the group cache must be rebuilt.
func IsTopologyError(err error) bool {
	return errors.Is(err, ErrInvalidGroupTopology) || errors.Is(err, ErrUnsupportedNesting)
}
