package graph

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"
)

// Graph is the inventory graph API. It wraps a Store with the meta-type
// ontology: node labels are validated on create and every relationship is
// checked against the legality table before it is written.
//
// Graph holds no state between calls and is safe for concurrent use when
// its Store is.
type Graph struct {
	store    Store
	logger   *slog.Logger
	metrics  *Metrics
	registry *Registry
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) { g.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(g *Graph) { g.metrics = m }
}

// WithRegistry replaces the model registry used by ResolveModel.
func WithRegistry(r *Registry) Option {
	return func(g *Graph) { g.registry = r }
}

// New returns a Graph over store.
func New(store Store, opts ...Option) *Graph {
	g := &Graph{store: store, logger: slog.Default(), registry: DefaultRegistry()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Store returns the underlying store.
func (g *Graph) Store() Store { return g.store }

// Close closes the underlying store.
func (g *Graph) Close() error { return g.store.Close() }

func (g *Graph) observe(op string, start time.Time, err *error) {
	g.metrics.RecordOperation(op, *err, time.Since(start))
}

// InitSchema provisions the store's schema objects and logs each outcome.
func (g *Graph) InitSchema(ctx context.Context) (results []SchemaResult, err error) {
	defer g.observe("init_schema", time.Now(), &err)
	results, err = g.store.InitSchema(ctx)
	for _, r := range results {
		g.logger.Info("schema object", "object", r.Object, "outcome", r.Outcome.String())
	}
	g.metrics.recordSchema(results)
	return results, err
}

// ---------- Legality ----------

// GetMetaType returns the meta-type label of the node.
func (g *Graph) GetMetaType(ctx context.Context, handle int64) (MetaType, error) {
	n, err := g.store.GetNode(ctx, handle)
	if err != nil {
		return "", err
	}
	if n == nil {
		return "", &NodeNotFoundError{Handle: handle}
	}
	return nodeMetaType(n)
}

func nodeMetaType(n *NodeBundle) (MetaType, error) {
	m, ok := metaTypeOf(n.Labels)
	if !ok {
		return "", &NoMetaTypeFoundError{Handle: n.Handle(), Labels: n.Labels}
	}
	return m, nil
}

// CreateRelationship creates a relationship of type t from one node to
// another when the legality table allows it for the nodes' meta-types.
func (g *Graph) CreateRelationship(ctx context.Context, from, to int64, t RelType) (*RelationshipBundle, error) {
	return g.CreateRelationshipWithProperties(ctx, from, to, t, nil)
}

// CreateRelationshipWithProperties is CreateRelationship with an initial
// property map.
func (g *Graph) CreateRelationshipWithProperties(ctx context.Context, from, to int64, t RelType, props Properties) (rel *RelationshipBundle, err error) {
	defer g.observe("create_relationship", time.Now(), &err)

	if err := validRelType(t); err != nil {
		return nil, err
	}
	if err := props.validate(); err != nil {
		return nil, err
	}
	fromMeta, err := g.GetMetaType(ctx, from)
	if err != nil {
		return nil, err
	}
	toMeta, err := g.GetMetaType(ctx, to)
	if err != nil {
		return nil, err
	}
	if !CheckLegal(fromMeta, toMeta, t) {
		rejected := &NoRelationshipPossibleError{
			FromHandle: from, ToHandle: to,
			FromMeta: fromMeta, ToMeta: toMeta,
			Type: t,
		}
		g.logger.Debug("relationship rejected", "from", from, "to", to, "type", t,
			"from_meta", fromMeta, "to_meta", toMeta)
		g.metrics.recordRejected(rejected)
		return nil, rejected
	}

	rel, err = g.store.createRelationship(ctx, from, to, t, props)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		// An endpoint was deleted between the meta-type check and the write.
		return nil, g.missingEndpoint(ctx, from, to)
	}
	return rel, nil
}

func (g *Graph) missingEndpoint(ctx context.Context, from, to int64) error {
	n, err := g.store.GetNode(ctx, from)
	if err != nil {
		return err
	}
	if n == nil {
		return &NodeNotFoundError{Handle: from}
	}
	return &NodeNotFoundError{Handle: to}
}

// ---------- Nodes ----------

// CreateNode creates a node labelled with the generic label, metaType and
// typeLabel. It does not deduplicate by name; a reused handle fails with
// HandleExistsError.
func (g *Graph) CreateNode(ctx context.Context, name, metaType, typeLabel string, handle int64) (n *NodeBundle, err error) {
	defer g.observe("create_node", time.Now(), &err)

	meta, err := ParseMetaType(metaType)
	if err != nil {
		return nil, err
	}
	if err := validTypeLabel(typeLabel); err != nil {
		return nil, err
	}
	n, err = g.store.CreateNode(ctx, NodeSpec{Handle: handle, Name: name, MetaType: meta, Type: typeLabel})
	if err != nil {
		return nil, err
	}
	g.logger.Debug("node created", "handle", handle, "meta", meta, "type", typeLabel)
	return n, nil
}

// GetNode returns the node's bundle: its labels, meta-type and properties.
func (g *Graph) GetNode(ctx context.Context, handle int64) (n *NodeBundle, err error) {
	defer g.observe("get_node", time.Now(), &err)
	n, err = g.store.GetNode(ctx, handle)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, &NodeNotFoundError{Handle: handle}
	}
	return n, nil
}

// DeleteNode deletes the node and all its relationships atomically. An
// absent node is reported as NodeNotFoundError; callers wanting a no-op
// delete can test errors.Is(err, ErrNotFound).
func (g *Graph) DeleteNode(ctx context.Context, handle int64) (ok bool, err error) {
	defer g.observe("delete_node", time.Now(), &err)
	ok, err = g.store.DeleteNode(ctx, handle)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, &NodeNotFoundError{Handle: handle}
	}
	g.logger.Debug("node deleted", "handle", handle)
	return true, nil
}

// SetNodeProperties replaces the node's whole property map. Keys missing
// from props are dropped, except handle, which is always kept, and name,
// which is kept unless props sets it.
func (g *Graph) SetNodeProperties(ctx context.Context, handle int64, props Properties) (n *NodeBundle, err error) {
	defer g.observe("set_node_properties", time.Now(), &err)
	if err := props.validate(); err != nil {
		return nil, err
	}
	n, err = g.store.SetNodeProperties(ctx, handle, props)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, &NodeNotFoundError{Handle: handle}
	}
	return n, nil
}

// UpdateNodeProperties merges updates into the node's properties: empty
// strings and empty lists remove a key, any other value replaces it. The
// handle and name are never removed.
func (g *Graph) UpdateNodeProperties(ctx context.Context, handle int64, updates Properties) (*NodeBundle, error) {
	if err := updates.validate(); err != nil {
		return nil, err
	}
	current, err := g.GetNode(ctx, handle)
	if err != nil {
		return nil, err
	}
	merged := MergeUpdate(current.Properties, updates)
	if _, ok := merged[PropName]; !ok {
		if name, ok := current.Properties[PropName]; ok {
			merged[PropName] = name
		}
	}
	return g.SetNodeProperties(ctx, handle, merged)
}

// ---------- Relationships ----------

// GetRelationship returns the relationship's bundle.
func (g *Graph) GetRelationship(ctx context.Context, id RelationshipID) (r *RelationshipBundle, err error) {
	defer g.observe("get_relationship", time.Now(), &err)
	r, err = g.store.GetRelationship(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &RelationshipNotFoundError{ID: id}
	}
	return r, nil
}

// DeleteRelationship deletes a single relationship.
func (g *Graph) DeleteRelationship(ctx context.Context, id RelationshipID) (ok bool, err error) {
	defer g.observe("delete_relationship", time.Now(), &err)
	ok, err = g.store.DeleteRelationship(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, &RelationshipNotFoundError{ID: id}
	}
	return true, nil
}

// SetRelationshipProperties replaces the relationship's whole property map.
// Legality is not re-checked.
func (g *Graph) SetRelationshipProperties(ctx context.Context, id RelationshipID, props Properties) (r *RelationshipBundle, err error) {
	defer g.observe("set_relationship_properties", time.Now(), &err)
	if err := props.validate(); err != nil {
		return nil, err
	}
	r, err = g.store.SetRelationshipProperties(ctx, id, props)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &RelationshipNotFoundError{ID: id}
	}
	return r, nil
}

// UpdateRelationshipProperties merges updates into the relationship's
// properties with the same rules as UpdateNodeProperties.
func (g *Graph) UpdateRelationshipProperties(ctx context.Context, id RelationshipID, updates Properties) (*RelationshipBundle, error) {
	if err := updates.validate(); err != nil {
		return nil, err
	}
	current, err := g.GetRelationship(ctx, id)
	if err != nil {
		return nil, err
	}
	return g.SetRelationshipProperties(ctx, id, MergeUpdate(current.Properties, updates))
}

// GetRelationships returns the relationships joining a and b in either
// direction, restricted to type t when t is set.
func (g *Graph) GetRelationships(ctx context.Context, a, b int64, t RelType) ([]RelationshipBundle, error) {
	if t != "" {
		if err := validRelType(t); err != nil {
			return nil, err
		}
	}
	for _, h := range []int64{a, b} {
		if _, err := g.GetNode(ctx, h); err != nil {
			return nil, err
		}
	}
	return g.store.RelationshipsBetween(ctx, a, b, t)
}

// Neighbors returns the node's relationships in the given direction,
// optionally restricted to types, each with the node at the far end.
func (g *Graph) Neighbors(ctx context.Context, handle int64, dir Direction, types ...RelType) ([]Neighbor, error) {
	if _, err := g.GetNode(ctx, handle); err != nil {
		return nil, err
	}
	return g.store.Neighbors(ctx, handle, dir, types...)
}

// ---------- Search ----------

// GetNodesByValue lazily yields nodes with a property value containing
// value, case-insensitively. With property set only that property is
// compared; otherwise every property value of every node is, which is a
// full scan. typeLabel, when set, restricts the scan to nodes carrying it.
func (g *Graph) GetNodesByValue(ctx context.Context, value, property, typeLabel string) iter.Seq2[*NodeBundle, error] {
	if typeLabel != "" && !labelPattern.MatchString(typeLabel) {
		return failed(&InvalidLabelError{Label: typeLabel, Reason: "must be an identifier"})
	}
	needle := strings.ToLower(value)
	scan := g.store.ScanNodes(ctx, typeLabel, property)
	return func(yield func(*NodeBundle, error) bool) {
		for n, err := range scan {
			if err != nil {
				yield(nil, err)
				return
			}
			if !matchesValue(n, needle, property) {
				continue
			}
			if !yield(n, nil) {
				return
			}
		}
	}
}

// GetNodesByType lazily yields every node carrying typeLabel.
func (g *Graph) GetNodesByType(ctx context.Context, typeLabel string) iter.Seq2[*NodeBundle, error] {
	if !labelPattern.MatchString(typeLabel) {
		return failed(&InvalidLabelError{Label: typeLabel, Reason: "must be an identifier"})
	}
	return g.store.ScanNodes(ctx, typeLabel, "")
}

func matchesValue(n *NodeBundle, needle, property string) bool {
	if property != "" {
		v, ok := n.Properties[property]
		return ok && strings.Contains(strings.ToLower(v.String()), needle)
	}
	for _, v := range n.Properties {
		if strings.Contains(strings.ToLower(v.String()), needle) {
			return true
		}
	}
	return false
}

func failed(err error) iter.Seq2[*NodeBundle, error] {
	return func(yield func(*NodeBundle, error) bool) {
		yield(nil, err)
	}
}

// Collect drains a node sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[*NodeBundle, error]) ([]NodeBundle, error) {
	var out []NodeBundle
	for n, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, *n)
	}
	return out, nil
}

// Stats returns node and relationship counts.
func (g *Graph) Stats(ctx context.Context) (s *GraphStats, err error) {
	defer g.observe("stats", time.Now(), &err)
	return g.store.Stats(ctx)
}

// IsNotFound reports whether err is a not-found error of any kind.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
