package graph

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// MaxDependencyDepth bounds transitive dependency walks.
const MaxDependencyDepth = 20

// Model is a typed view of a fetched node. Models are built on every fetch
// and are never cached; they read through the Graph that produced them.
type Model interface {
	Bundle() *NodeBundle
	Handle() int64
	Name() string
	MetaType() MetaType
}

// ResolveModel wraps b in the most specific registered model.
func (g *Graph) ResolveModel(b *NodeBundle) Model {
	return g.registry.Resolve(g, b)
}

// GetNodeModel fetches the node and resolves its model.
func (g *Graph) GetNodeModel(ctx context.Context, handle int64) (Model, error) {
	b, err := g.GetNode(ctx, handle)
	if err != nil {
		return nil, err
	}
	return g.ResolveModel(b), nil
}

// GetUniqueNodeByName returns the model of the single node named name that
// carries typeLabel. It returns nil and no error when there is none, and
// MultipleNodesReturnedError when there is more than one. Uniqueness by
// name is not enforced by the store, so concurrent creators can race.
func (g *Graph) GetUniqueNodeByName(ctx context.Context, name, typeLabel string) (m Model, err error) {
	defer g.observe("get_unique_node", time.Now(), &err)
	if !labelPattern.MatchString(typeLabel) {
		return nil, &InvalidLabelError{Label: typeLabel, Reason: "must be an identifier"}
	}
	nodes, err := g.store.NodesByName(ctx, name, typeLabel)
	if err != nil {
		return nil, err
	}
	switch len(nodes) {
	case 0:
		return nil, nil
	case 1:
		return g.ResolveModel(&nodes[0]), nil
	default:
		return nil, &MultipleNodesReturnedError{Name: name, Type: typeLabel}
	}
}

// RelationshipModel is a relationship with the models of both endpoints.
type RelationshipModel struct {
	Relationship *RelationshipBundle
	Start        Model
	End          Model
}

// GetRelationshipModel fetches a relationship and resolves its endpoints.
func (g *Graph) GetRelationshipModel(ctx context.Context, id RelationshipID) (*RelationshipModel, error) {
	r, err := g.GetRelationship(ctx, id)
	if err != nil {
		return nil, err
	}
	start, err := g.GetNodeModel(ctx, r.Start)
	if err != nil {
		return nil, err
	}
	end, err := g.GetNodeModel(ctx, r.End)
	if err != nil {
		return nil, err
	}
	return &RelationshipModel{Relationship: r, Start: start, End: end}, nil
}

// ---------- BaseModel ----------

// BaseModel is the generic model every node resolves to when nothing more
// specific is registered.
type BaseModel struct {
	graph  *Graph
	bundle *NodeBundle
}

func (m *BaseModel) Bundle() *NodeBundle { return m.bundle }
func (m *BaseModel) Handle() int64       { return m.bundle.Handle() }
func (m *BaseModel) Name() string        { return m.bundle.Name() }
func (m *BaseModel) MetaType() MetaType  { return m.bundle.MetaType }

func (m *BaseModel) String() string {
	return fmt.Sprintf("%s %q (%d)", strings.Join(m.bundle.TypeLabels(), "/"), m.Name(), m.Handle())
}

// Incoming returns relationships ending at the node, grouped by type.
func (m *BaseModel) Incoming(ctx context.Context) (map[RelType][]Neighbor, error) {
	nbs, err := m.graph.Neighbors(ctx, m.Handle(), DirectionIncoming)
	if err != nil {
		return nil, err
	}
	return groupByType(nbs), nil
}

// Outgoing returns relationships starting at the node, grouped by type.
func (m *BaseModel) Outgoing(ctx context.Context) (map[RelType][]Neighbor, error) {
	nbs, err := m.graph.Neighbors(ctx, m.Handle(), DirectionOutgoing)
	if err != nil {
		return nil, err
	}
	return groupByType(nbs), nil
}

func groupByType(nbs []Neighbor) map[RelType][]Neighbor {
	out := make(map[RelType][]Neighbor)
	for _, nb := range nbs {
		out[nb.Relationship.Type] = append(out[nb.Relationship.Type], nb)
	}
	return out
}

// ---------- CommonModel ----------

// CommonModel adds the queries shared by physical, logical and location
// nodes.
type CommonModel struct {
	BaseModel
}

// Relations returns the organisations that own, use, provide or are
// responsible for the node, grouped by relationship type.
func (m *CommonModel) Relations(ctx context.Context) (map[RelType][]Neighbor, error) {
	nbs, err := m.graph.Neighbors(ctx, m.Handle(), DirectionIncoming,
		RelOwns, RelUses, RelProvides, RelResponsibleFor)
	if err != nil {
		return nil, err
	}
	return groupByType(nbs), nil
}

// IncomingLogical returns Depends_on and Part_of relationships ending at
// the node.
func (m *CommonModel) IncomingLogical(ctx context.Context) (map[RelType][]Neighbor, error) {
	nbs, err := m.graph.Neighbors(ctx, m.Handle(), DirectionIncoming, RelDependsOn, RelPartOf)
	if err != nil {
		return nil, err
	}
	return groupByType(nbs), nil
}

// OutgoingLogical returns Depends_on and Part_of relationships starting at
// the node.
func (m *CommonModel) OutgoingLogical(ctx context.Context) (map[RelType][]Neighbor, error) {
	nbs, err := m.graph.Neighbors(ctx, m.Handle(), DirectionOutgoing, RelDependsOn, RelPartOf)
	if err != nil {
		return nil, err
	}
	return groupByType(nbs), nil
}

// DependencyReport lists the nodes reachable over Depends_on edges.
type DependencyReport struct {
	Direct     []NodeBundle            `json:"direct"`
	Transitive []NodeBundle            `json:"transitive"`
	Chains     []DependencyChain       `json:"chains"`
	ByType     map[string][]NodeBundle `json:"byType"`
}

// Dependents returns the nodes that depend on this one, directly and up to
// MaxDependencyDepth hops away.
func (m *CommonModel) Dependents(ctx context.Context) (*DependencyReport, error) {
	return m.graph.walkDependencies(ctx, m.Handle(), DirectionIncoming, MaxDependencyDepth)
}

// Dependencies returns the nodes this one depends on, directly and up to
// MaxDependencyDepth hops away.
func (m *CommonModel) Dependencies(ctx context.Context) (*DependencyReport, error) {
	return m.graph.walkDependencies(ctx, m.Handle(), DirectionOutgoing, MaxDependencyDepth)
}

// PortInfo is a port attached to a node and the root of the equipment
// holding the port.
type PortInfo struct {
	Port         NodeBundle         `json:"port"`
	Relationship RelationshipBundle `json:"relationship"`
	Parent       *NodeBundle        `json:"parent,omitempty"`
}

// Ports returns the ports connected to or depended on by the node, ordered
// by the name of the equipment holding them.
func (m *CommonModel) Ports(ctx context.Context) ([]PortInfo, error) {
	nbs, err := m.graph.Neighbors(ctx, m.Handle(), DirectionBoth, RelConnectedTo, RelDependsOn)
	if err != nil {
		return nil, err
	}
	var out []PortInfo
	for _, nb := range nbs {
		if !nb.Node.HasLabel("Port") {
			continue
		}
		chain, err := m.graph.hasChain(ctx, nb.Node.Handle())
		if err != nil {
			return nil, err
		}
		info := PortInfo{Port: nb.Node, Relationship: nb.Relationship}
		if len(chain) > 0 {
			info.Parent = &chain[0]
		}
		out = append(out, info)
	}
	slices.SortStableFunc(out, func(a, b PortInfo) int {
		return strings.Compare(parentName(a), parentName(b))
	})
	return out, nil
}

func parentName(p PortInfo) string {
	if p.Parent == nil {
		return ""
	}
	return p.Parent.Name()
}

// ---------- Meta-type models ----------

// EquipmentModel is the model for physical nodes.
type EquipmentModel struct {
	CommonModel
}

func newEquipmentModel(g *Graph, b *NodeBundle) *EquipmentModel {
	return &EquipmentModel{CommonModel{BaseModel{graph: g, bundle: b}}}
}

// Location returns the locations the equipment is placed in.
func (m *EquipmentModel) Location(ctx context.Context) ([]Neighbor, error) {
	return m.graph.Neighbors(ctx, m.Handle(), DirectionOutgoing, RelLocatedIn)
}

// LocationPath returns the location the equipment is placed in preceded by
// its enclosing locations, outermost first. It is empty when the equipment
// has no location.
func (m *EquipmentModel) LocationPath(ctx context.Context) ([]NodeBundle, error) {
	locs, err := m.Location(ctx)
	if err != nil || len(locs) == 0 {
		return nil, err
	}
	loc := locs[0].Node
	chain, err := m.graph.hasChain(ctx, loc.Handle())
	if err != nil {
		return nil, err
	}
	return append(chain, loc), nil
}

// LogicalModel is the model for logical nodes.
type LogicalModel struct {
	CommonModel
}

// PartOf returns the physical nodes this logical node is part of.
func (m *LogicalModel) PartOf(ctx context.Context) ([]Neighbor, error) {
	return m.graph.Neighbors(ctx, m.Handle(), DirectionOutgoing, RelPartOf)
}

// LocationModel is the model for location nodes.
type LocationModel struct {
	CommonModel
}

// Parent returns the location that has this one, or nil for a root.
func (m *LocationModel) Parent(ctx context.Context) (*NodeBundle, error) {
	nbs, err := m.graph.Neighbors(ctx, m.Handle(), DirectionIncoming, RelHas)
	if err != nil || len(nbs) == 0 {
		return nil, err
	}
	return &nbs[0].Node, nil
}

// Children returns the locations this one has.
func (m *LocationModel) Children(ctx context.Context) ([]Neighbor, error) {
	return m.graph.Neighbors(ctx, m.Handle(), DirectionOutgoing, RelHas)
}

// Contents returns the equipment located here.
func (m *LocationModel) Contents(ctx context.Context) ([]Neighbor, error) {
	return m.graph.Neighbors(ctx, m.Handle(), DirectionIncoming, RelLocatedIn)
}

// RelationModel is the model for organisations and people.
type RelationModel struct {
	BaseModel
}

// Responsibilities returns what the relation owns, uses, provides or is
// responsible for, grouped by relationship type.
func (m *RelationModel) Responsibilities(ctx context.Context) (map[RelType][]Neighbor, error) {
	nbs, err := m.graph.Neighbors(ctx, m.Handle(), DirectionOutgoing,
		RelOwns, RelUses, RelProvides, RelResponsibleFor)
	if err != nil {
		return nil, err
	}
	return groupByType(nbs), nil
}

// ---------- Label models ----------

// HostModel is the model for hosts.
type HostModel struct {
	EquipmentModel
}

// HostServices returns the host services running on the host.
func (m *HostModel) HostServices(ctx context.Context) ([]Neighbor, error) {
	nbs, err := m.graph.Neighbors(ctx, m.Handle(), DirectionIncoming, RelDependsOn)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(nbs, func(nb Neighbor) bool {
		return !nb.Node.HasLabel("Host_Service")
	}), nil
}

// Dependents is CommonModel.Dependents without host services among the
// direct dependents.
func (m *HostModel) Dependents(ctx context.Context) (*DependencyReport, error) {
	rep, err := m.CommonModel.Dependents(ctx)
	if err != nil {
		return nil, err
	}
	rep.Direct = slices.DeleteFunc(rep.Direct, func(n NodeBundle) bool {
		return n.HasLabel("Host_Service")
	})
	return rep, nil
}

// RouterModel is the model for routers.
type RouterModel struct {
	EquipmentModel
}

// OpticalNodeModel is the model for optical nodes.
type OpticalNodeModel struct {
	EquipmentModel
}

// ---------- Traversal ----------

// walkDependencies performs a BFS over Depends_on edges from handle. It
// records one DependencyChain per reachable node.
func (g *Graph) walkDependencies(ctx context.Context, handle int64, dir Direction, maxDepth int) (*DependencyReport, error) {
	type bfsEntry struct {
		handle int64
		path   []int64
	}
	rep := &DependencyReport{ByType: map[string][]NodeBundle{}}
	visited := map[int64]bool{handle: true}
	queue := []bfsEntry{{handle: handle, path: []int64{handle}}}

	for depth := 0; depth < maxDepth && len(queue) > 0; depth++ {
		var next []bfsEntry
		for _, entry := range queue {
			nbs, err := g.store.Neighbors(ctx, entry.handle, dir, RelDependsOn)
			if err != nil {
				return nil, err
			}
			for _, nb := range nbs {
				h := nb.Node.Handle()
				if depth == 0 && !slices.ContainsFunc(rep.Direct, func(n NodeBundle) bool { return n.Handle() == h }) {
					rep.Direct = append(rep.Direct, nb.Node)
				}
				if visited[h] {
					continue
				}
				visited[h] = true
				path := append(slices.Clone(entry.path), h)
				rep.Chains = append(rep.Chains, DependencyChain{Handles: path, Depth: len(path) - 1})
				rep.Transitive = append(rep.Transitive, nb.Node)
				for _, l := range nb.Node.TypeLabels() {
					rep.ByType[l] = append(rep.ByType[l], nb.Node)
				}
				next = append(next, bfsEntry{handle: h, path: path})
			}
		}
		queue = next
	}
	return rep, nil
}

// hasChain follows incoming Has relationships from handle to the root and
// returns the ancestors, outermost first.
func (g *Graph) hasChain(ctx context.Context, handle int64) ([]NodeBundle, error) {
	var chain []NodeBundle
	seen := map[int64]bool{handle: true}
	cur := handle
	for {
		nbs, err := g.store.Neighbors(ctx, cur, DirectionIncoming, RelHas)
		if err != nil {
			return nil, err
		}
		if len(nbs) == 0 || seen[nbs[0].Node.Handle()] {
			break
		}
		parent := nbs[0].Node
		seen[parent.Handle()] = true
		chain = append(chain, parent)
		cur = parent.Handle()
	}
	slices.Reverse(chain)
	return chain, nil
}
