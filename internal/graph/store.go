package graph

import (
	"context"
	"io"
	"iter"
)

// Store is the interface for the inventory graph backend.
// Implementations: Neo4jStore (production), KuzuStore (embedded),
// MemStore (testing). All graph access from callers goes through Graph,
// which enforces relationship legality before any write reaches a Store.
//
// Lookups return nil and no error when the entity is absent; Graph turns
// that into typed not-found errors.
type Store interface {
	io.Closer

	// Schema setup. Safe to call on every start.
	InitSchema(ctx context.Context) ([]SchemaResult, error)

	// Nodes.
	CreateNode(ctx context.Context, spec NodeSpec) (*NodeBundle, error)
	GetNode(ctx context.Context, handle int64) (*NodeBundle, error)
	// DeleteNode removes the node and every incident relationship in one
	// atomic step. It reports false when no node had the handle.
	DeleteNode(ctx context.Context, handle int64) (bool, error)
	// SetNodeProperties replaces the whole property map. The handle is
	// always kept and the name is kept unless props carries a new one.
	SetNodeProperties(ctx context.Context, handle int64, props Properties) (*NodeBundle, error)

	// Relationships.
	GetRelationship(ctx context.Context, id RelationshipID) (*RelationshipBundle, error)
	DeleteRelationship(ctx context.Context, id RelationshipID) (bool, error)
	SetRelationshipProperties(ctx context.Context, id RelationshipID, props Properties) (*RelationshipBundle, error)

	// Lookups.
	NodesByName(ctx context.Context, name, label string) ([]NodeBundle, error)
	// ScanNodes streams nodes carrying label (every node when empty) and,
	// when property is set, only those that have it.
	ScanNodes(ctx context.Context, label, property string) iter.Seq2[*NodeBundle, error]
	// RelationshipsBetween returns relationships joining a and b in either
	// direction, of type t when t is set.
	RelationshipsBetween(ctx context.Context, a, b int64, t RelType) ([]RelationshipBundle, error)
	Neighbors(ctx context.Context, handle int64, dir Direction, types ...RelType) ([]Neighbor, error)

	// Stats.
	Stats(ctx context.Context) (*GraphStats, error)

	// createRelationship writes an edge without any legality check. It is
	// unexported so that Graph.CreateRelationship is the only way in.
	createRelationship(ctx context.Context, from, to int64, t RelType, props Properties) (*RelationshipBundle, error)
}

// SchemaOutcome classifies one bootstrap statement.
type SchemaOutcome int

const (
	SchemaCreated SchemaOutcome = iota + 1
	SchemaAlreadyExists
)

func (o SchemaOutcome) String() string {
	switch o {
	case SchemaCreated:
		return "created"
	case SchemaAlreadyExists:
		return "already exists"
	default:
		return "unknown"
	}
}

// SchemaResult records the outcome for one schema object.
type SchemaResult struct {
	Object  string        `json:"object"`
	Outcome SchemaOutcome `json:"outcome"`
}
