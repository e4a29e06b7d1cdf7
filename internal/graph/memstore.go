package graph

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"sync"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

type memNode struct {
	labels []string
	props  Properties
}

type memRel struct {
	seq   int64
	typ   RelType
	start int64
	end   int64
	props Properties
}

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
type MemStore struct {
	mu      sync.RWMutex
	nodes   map[int64]memNode
	rels    map[RelationshipID]memRel
	nextRel int64
	schema  bool
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes: make(map[int64]memNode),
		rels:  make(map[RelationshipID]memRel),
	}
}

// InitSchema records the schema objects. The handle constraint is always
// enforced by the map itself.
func (m *MemStore) InitSchema(_ context.Context) ([]SchemaResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcome := SchemaCreated
	if m.schema {
		outcome = SchemaAlreadyExists
	}
	m.schema = true
	return []SchemaResult{
		{Object: "node_handle_unique", Outcome: outcome},
		{Object: "node_name", Outcome: outcome},
	}, nil
}

// CreateNode stores a node keyed by its handle.
func (m *MemStore) CreateNode(_ context.Context, spec NodeSpec) (*NodeBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[spec.Handle]; ok {
		return nil, &HandleExistsError{Handle: spec.Handle}
	}
	n := memNode{
		labels: spec.labels(),
		props:  Properties{PropHandle: IntValue(spec.Handle), PropName: StringValue(spec.Name)},
	}
	m.nodes[spec.Handle] = n
	return n.bundle(), nil
}

// GetNode returns the node for the given handle, or nil if not found.
func (m *MemStore) GetNode(_ context.Context, handle int64) (*NodeBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[handle]
	if !ok {
		return nil, nil
	}
	return n.bundle(), nil
}

// DeleteNode removes the node and its relationships under one lock.
func (m *MemStore) DeleteNode(_ context.Context, handle int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[handle]; !ok {
		return false, nil
	}
	delete(m.nodes, handle)
	for id, r := range m.rels {
		if r.start == handle || r.end == handle {
			delete(m.rels, id)
		}
	}
	return true, nil
}

// SetNodeProperties replaces the property map, keeping handle and, if not
// supplied, name.
func (m *MemStore) SetNodeProperties(_ context.Context, handle int64, props Properties) (*NodeBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[handle]
	if !ok {
		return nil, nil
	}
	next := props.Clone()
	if _, ok := next[PropName]; !ok {
		if name, ok := n.props[PropName]; ok {
			next[PropName] = name
		}
	}
	next[PropHandle] = IntValue(handle)
	n.props = next
	m.nodes[handle] = n
	return n.bundle(), nil
}

func (m *MemStore) createRelationship(_ context.Context, from, to int64, t RelType, props Properties) (*RelationshipBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, okFrom := m.nodes[from]
	_, okTo := m.nodes[to]
	if !okFrom || !okTo {
		return nil, nil
	}
	m.nextRel++
	id := RelationshipID(strconv.FormatInt(m.nextRel, 10))
	r := memRel{seq: m.nextRel, typ: t, start: from, end: to, props: props.Clone()}
	m.rels[id] = r
	return r.bundle(id), nil
}

// GetRelationship returns the relationship with the given id, or nil.
func (m *MemStore) GetRelationship(_ context.Context, id RelationshipID) (*RelationshipBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rels[id]
	if !ok {
		return nil, nil
	}
	return r.bundle(id), nil
}

// DeleteRelationship removes a single relationship.
func (m *MemStore) DeleteRelationship(_ context.Context, id RelationshipID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rels[id]; !ok {
		return false, nil
	}
	delete(m.rels, id)
	return true, nil
}

// SetRelationshipProperties replaces the relationship's property map.
func (m *MemStore) SetRelationshipProperties(_ context.Context, id RelationshipID, props Properties) (*RelationshipBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rels[id]
	if !ok {
		return nil, nil
	}
	r.props = props.Clone()
	m.rels[id] = r
	return r.bundle(id), nil
}

// NodesByName returns nodes named exactly name that carry label, ordered by
// handle.
func (m *MemStore) NodesByName(_ context.Context, name, label string) ([]NodeBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []NodeBundle
	for _, h := range m.sortedHandles() {
		n := m.nodes[h]
		if label != "" && !slices.Contains(n.labels, label) {
			continue
		}
		if s, ok := n.props[PropName].AsString(); ok && s == name {
			out = append(out, *n.bundle())
		}
	}
	return out, nil
}

// ScanNodes takes a snapshot under the read lock and yields from it, so the
// consumer may call back into the store while ranging.
func (m *MemStore) ScanNodes(_ context.Context, label, property string) iter.Seq2[*NodeBundle, error] {
	return func(yield func(*NodeBundle, error) bool) {
		m.mu.RLock()
		var snapshot []*NodeBundle
		for _, h := range m.sortedHandles() {
			n := m.nodes[h]
			if label != "" && !slices.Contains(n.labels, label) {
				continue
			}
			if property != "" {
				if _, ok := n.props[property]; !ok {
					continue
				}
			}
			snapshot = append(snapshot, n.bundle())
		}
		m.mu.RUnlock()

		for _, b := range snapshot {
			if !yield(b, nil) {
				return
			}
		}
	}
}

// RelationshipsBetween returns relationships joining a and b either way.
func (m *MemStore) RelationshipsBetween(_ context.Context, a, b int64, t RelType) ([]RelationshipBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RelationshipBundle
	for _, id := range m.sortedRelIDs() {
		r := m.rels[id]
		joins := (r.start == a && r.end == b) || (r.start == b && r.end == a)
		if joins && (t == "" || r.typ == t) {
			out = append(out, *r.bundle(id))
		}
	}
	return out, nil
}

// Neighbors returns relationships of handle in the given direction together
// with the node at the far end.
func (m *MemStore) Neighbors(_ context.Context, handle int64, dir Direction, types ...RelType) ([]Neighbor, error) {
	switch dir {
	case DirectionIncoming, DirectionOutgoing, DirectionBoth:
	default:
		return nil, fmt.Errorf("memstore: unknown direction: %s", dir)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Neighbor
	for _, id := range m.sortedRelIDs() {
		r := m.rels[id]
		if len(types) > 0 && !slices.Contains(types, r.typ) {
			continue
		}
		outgoing := r.start == handle && dir != DirectionIncoming
		incoming := r.end == handle && dir != DirectionOutgoing
		if !outgoing && !incoming {
			continue
		}
		other := r.end
		if !outgoing {
			other = r.start
		}
		out = append(out, Neighbor{Relationship: *r.bundle(id), Node: *m.nodes[other].bundle()})
	}
	return out, nil
}

// Stats returns node and relationship counts.
func (m *MemStore) Stats(_ context.Context) (*GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &GraphStats{NodeCount: len(m.nodes), RelationshipCount: len(m.rels)}, nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}

func (n memNode) bundle() *NodeBundle {
	return newNodeBundle(slices.Clone(n.labels), n.props.Clone())
}

func (r memRel) bundle(id RelationshipID) *RelationshipBundle {
	return &RelationshipBundle{ID: id, Type: r.typ, Start: r.start, End: r.end, Properties: r.props.Clone()}
}

// sortedHandles returns node handles in ascending order. Caller holds mu.
func (m *MemStore) sortedHandles() []int64 {
	hs := make([]int64, 0, len(m.nodes))
	for h := range m.nodes {
		hs = append(hs, h)
	}
	slices.Sort(hs)
	return hs
}

// sortedRelIDs returns relationship ids in creation order. Caller holds mu.
func (m *MemStore) sortedRelIDs() []RelationshipID {
	ids := make([]RelationshipID, 0, len(m.rels))
	for id := range m.rels {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b RelationshipID) int {
		return cmp.Compare(m.rels[a].seq, m.rels[b].seq)
	})
	return ids
}
