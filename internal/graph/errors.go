package graph

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every typed error below matches exactly one of them with
// errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrIllegalRelationship = errors.New("illegal relationship")
	ErrMissingMetaType     = errors.New("missing meta-type")
	ErrInvalidMetaType     = errors.New("invalid meta-type")
	ErrInvalidLabel        = errors.New("invalid label")
	ErrMultipleMatches     = errors.New("multiple matches")
	ErrBadProperties       = errors.New("bad properties")
	ErrHandleExists        = errors.New("handle exists")
	ErrConnection          = errors.New("connection failure")
	ErrStreamConsumed      = errors.New("stream already consumed")
)

// NodeNotFoundError reports a handle that matches no node.
type NodeNotFoundError struct {
	Handle int64
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("node %d not found", e.Handle)
}

func (e *NodeNotFoundError) Is(target error) bool { return target == ErrNotFound }

// RelationshipNotFoundError reports an id that matches no relationship.
type RelationshipNotFoundError struct {
	ID RelationshipID
}

func (e *RelationshipNotFoundError) Error() string {
	return fmt.Sprintf("relationship %s not found", e.ID)
}

func (e *RelationshipNotFoundError) Is(target error) bool { return target == ErrNotFound }

// NoRelationshipPossibleError is returned when the legality table has no
// entry for the endpoints' meta-types and the requested type.
type NoRelationshipPossibleError struct {
	FromHandle int64
	ToHandle   int64
	FromMeta   MetaType
	ToMeta     MetaType
	Type       RelType
}

func (e *NoRelationshipPossibleError) Error() string {
	return fmt.Sprintf("%s node (%d) %s %s node (%d) is not possible",
		e.FromMeta, e.FromHandle, e.Type, e.ToMeta, e.ToHandle)
}

func (e *NoRelationshipPossibleError) Is(target error) bool {
	return target == ErrIllegalRelationship
}

// NoMetaTypeFoundError reports a node without a recognised meta-type label.
type NoMetaTypeFoundError struct {
	Handle int64
	Labels []string
}

func (e *NoMetaTypeFoundError) Error() string {
	return fmt.Sprintf("node %d has no meta-type label (labels %v)", e.Handle, e.Labels)
}

func (e *NoMetaTypeFoundError) Is(target error) bool { return target == ErrMissingMetaType }

// InvalidMetaTypeError reports a meta-type name outside the fixed four.
type InvalidMetaTypeError struct {
	Name string
}

func (e *InvalidMetaTypeError) Error() string {
	return fmt.Sprintf("a meta-type can not be named %q", e.Name)
}

func (e *InvalidMetaTypeError) Is(target error) bool { return target == ErrInvalidMetaType }

// InvalidLabelError reports a type label or relationship type that can not
// be used.
type InvalidLabelError struct {
	Label  string
	Reason string
}

func (e *InvalidLabelError) Error() string {
	return fmt.Sprintf("invalid label %q: %s", e.Label, e.Reason)
}

func (e *InvalidLabelError) Is(target error) bool { return target == ErrInvalidLabel }

// MultipleNodesReturnedError is returned by unique lookups that match more
// than one node.
type MultipleNodesReturnedError struct {
	Name string
	Type string
}

func (e *MultipleNodesReturnedError) Error() string {
	return fmt.Sprintf("multiple nodes of name %q and type %q were returned", e.Name, e.Type)
}

func (e *MultipleNodesReturnedError) Is(target error) bool { return target == ErrMultipleMatches }

// BadPropertiesError carries a property map the store can not hold.
type BadPropertiesError struct {
	Properties map[string]any
	Key        string
	Reason     string
}

func (e *BadPropertiesError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("bad property %q: %s; only strings, numbers, booleans and string lists are allowed", e.Key, e.Reason)
	}
	return fmt.Sprintf("bad properties %v: %s", e.Properties, e.Reason)
}

func (e *BadPropertiesError) Is(target error) bool { return target == ErrBadProperties }

// HandleExistsError is raised by the store's uniqueness constraint.
type HandleExistsError struct {
	Handle int64
	Err    error
}

func (e *HandleExistsError) Error() string {
	return fmt.Sprintf("a node with handle %d already exists", e.Handle)
}

func (e *HandleExistsError) Is(target error) bool { return target == ErrHandleExists }
func (e *HandleExistsError) Unwrap() error        { return e.Err }

// UniqueNodeError reports an attempt to create a node that must be unique
// for its name and type when one already exists.
type UniqueNodeError struct {
	Name   string
	Type   string
	Handle int64
}

func (e *UniqueNodeError) Error() string {
	return fmt.Sprintf("a node named %q with type %q already exists (handle %d)", e.Name, e.Type, e.Handle)
}

func (e *UniqueNodeError) Is(target error) bool { return target == ErrHandleExists }

// ConnectionError wraps a failure to reach the backing store.
type ConnectionError struct {
	URI string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("graph store at %s unreachable: %v", e.URI, e.Err)
}

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }
func (e *ConnectionError) Unwrap() error        { return e.Err }

// HTTPStatus maps an error to the status class collaborators render it as.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrHandleExists), errors.Is(err, ErrMultipleMatches):
		return http.StatusConflict
	case errors.Is(err, ErrIllegalRelationship),
		errors.Is(err, ErrBadProperties),
		errors.Is(err, ErrInvalidMetaType),
		errors.Is(err, ErrInvalidLabel):
		return http.StatusBadRequest
	case errors.Is(err, ErrConnection):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
