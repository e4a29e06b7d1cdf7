package graph

import (
	"slices"
	"sync"
)

// Constructor builds a typed model around a fetched bundle.
type Constructor func(g *Graph, b *NodeBundle) Model

type registration struct {
	meta  MetaType
	label string
	build Constructor
}

// Registry maps label sets to model constructors. Resolution picks, in one
// pass, the registration matching both the node's meta-type and a type
// label, then one matching a type label alone, then one matching the
// meta-type alone. When several type labels match at the same level the
// label listed last on the node wins. Nodes matching nothing resolve to
// BaseModel.
type Registry struct {
	mu   sync.RWMutex
	regs []registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a constructor for nodes with meta-type meta and label label.
// Either may be empty, not both.
func (r *Registry) Register(meta MetaType, label string, build Constructor) {
	if meta == "" && label == "" {
		panic("graph: registration needs a meta-type or a label")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs = append(r.regs, registration{meta: meta, label: label, build: build})
}

// Resolve returns the best model for b. It never fails.
func (r *Registry) Resolve(g *Graph, b *NodeBundle) Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := b.TypeLabels()
	var (
		best      Constructor
		bestScore int
		bestPos   int
	)
	for _, reg := range r.regs {
		score, pos := reg.match(b.MetaType, types)
		if score == 0 {
			continue
		}
		if score > bestScore || (score == bestScore && pos > bestPos) {
			best, bestScore, bestPos = reg.build, score, pos
		}
	}
	if best == nil {
		return &BaseModel{graph: g, bundle: b}
	}
	return best(g, b)
}

// match scores a registration: 3 for meta-type and label, 2 for label
// only, 1 for meta-type only, 0 for no match. pos is the index of the
// matched label among the node's type labels, or -1.
func (reg registration) match(meta MetaType, types []string) (score, pos int) {
	pos = -1
	if reg.label != "" {
		pos = slices.Index(types, reg.label)
		if pos < 0 {
			return 0, -1
		}
	}
	switch {
	case reg.meta != "" && reg.label != "":
		if reg.meta != meta {
			return 0, -1
		}
		return 3, pos
	case reg.label != "":
		return 2, pos
	case reg.meta == meta:
		return 1, -1
	}
	return 0, -1
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the registry holding the inventory models.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r := NewRegistry()
		r.Register(MetaPhysical, "", func(g *Graph, b *NodeBundle) Model { return newEquipmentModel(g, b) })
		r.Register(MetaLogical, "", func(g *Graph, b *NodeBundle) Model {
			return &LogicalModel{CommonModel{BaseModel{graph: g, bundle: b}}}
		})
		r.Register(MetaLocation, "", func(g *Graph, b *NodeBundle) Model {
			return &LocationModel{CommonModel{BaseModel{graph: g, bundle: b}}}
		})
		r.Register(MetaRelation, "", func(g *Graph, b *NodeBundle) Model {
			return &RelationModel{BaseModel{graph: g, bundle: b}}
		})
		r.Register("", "Host", func(g *Graph, b *NodeBundle) Model {
			return &HostModel{*newEquipmentModel(g, b)}
		})
		r.Register(MetaPhysical, "Router", func(g *Graph, b *NodeBundle) Model {
			return &RouterModel{*newEquipmentModel(g, b)}
		})
		r.Register(MetaPhysical, "Optical_Node", func(g *Graph, b *NodeBundle) Model {
			return &OpticalNodeModel{*newEquipmentModel(g, b)}
		})
		defaultRegistry = r
	})
	return defaultRegistry
}
