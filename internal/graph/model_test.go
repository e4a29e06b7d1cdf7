package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taggedModel struct {
	BaseModel
	tag string
}

func tagged(tag string) Constructor {
	return func(g *Graph, b *NodeBundle) Model {
		return &taggedModel{BaseModel: BaseModel{graph: g, bundle: b}, tag: tag}
	}
}

func resolveTag(t *testing.T, r *Registry, labels ...string) string {
	t.Helper()
	b := newNodeBundle(labels, Properties{PropHandle: IntValue(1), PropName: StringValue("n")})
	m := r.Resolve(nil, b)
	tm, ok := m.(*taggedModel)
	if !ok {
		return ""
	}
	return tm.tag
}

func TestRegistry_Priority(t *testing.T) {
	r := NewRegistry()
	r.Register(MetaPhysical, "", tagged("physical"))
	r.Register("", "Router", tagged("router"))
	r.Register(MetaPhysical, "Router", tagged("physical-router"))
	r.Register("", "Core", tagged("core"))
	r.Register("", "Edge", tagged("edge"))
	r.Register(MetaLogical, "", tagged("logical-first"))
	r.Register(MetaLogical, "", tagged("logical-second"))

	tests := []struct {
		name   string
		labels []string
		want   string
	}{
		{"meta and label beat label", []string{NodeLabel, "Physical", "Router"}, "physical-router"},
		{"label beats meta", []string{NodeLabel, "Logical", "Router"}, "router"},
		{"meta alone", []string{NodeLabel, "Physical", "Switch"}, "physical"},
		{"last label wins a tie", []string{NodeLabel, "Location", "Core", "Edge"}, "edge"},
		{"last label wins a tie reversed", []string{NodeLabel, "Location", "Edge", "Core"}, "core"},
		{"earlier registration wins", []string{NodeLabel, "Logical", "Service"}, "logical-first"},
		{"no match", []string{NodeLabel, "Relation", "Customer"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveTag(t, r, tt.labels...))
		})
	}
}

func TestRegistry_NoMatchIsBaseModel(t *testing.T) {
	g := New(NewMemStore(), WithRegistry(NewRegistry()))
	b := newNodeBundle([]string{NodeLabel, "Physical", "Router"}, Properties{PropHandle: IntValue(3), PropName: StringValue("r")})

	m := g.ResolveModel(b)
	base, ok := m.(*BaseModel)
	require.True(t, ok, "got %T", m)
	assert.Equal(t, int64(3), base.Handle())
	assert.Equal(t, `Router "r" (3)`, base.String())
}

func TestRegistry_RegisterNeedsKey(t *testing.T) {
	assert.Panics(t, func() { NewRegistry().Register("", "", tagged("x")) })
}

func TestDefaultRegistry_Models(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	mustNode(t, g, "r", MetaPhysical, "Router", 1)
	mustNode(t, g, "h", MetaPhysical, "Host", 2)
	mustNode(t, g, "o", MetaPhysical, "Optical_Node", 3)
	mustNode(t, g, "s", MetaPhysical, "Switch", 4)
	mustNode(t, g, "svc", MetaLogical, "Service", 5)
	mustNode(t, g, "site", MetaLocation, "Site", 6)
	mustNode(t, g, "org", MetaRelation, "Customer", 7)

	tests := []struct {
		handle int64
		check  func(Model) bool
	}{
		{1, func(m Model) bool { _, ok := m.(*RouterModel); return ok }},
		{2, func(m Model) bool { _, ok := m.(*HostModel); return ok }},
		{3, func(m Model) bool { _, ok := m.(*OpticalNodeModel); return ok }},
		{4, func(m Model) bool { _, ok := m.(*EquipmentModel); return ok }},
		{5, func(m Model) bool { _, ok := m.(*LogicalModel); return ok }},
		{6, func(m Model) bool { _, ok := m.(*LocationModel); return ok }},
		{7, func(m Model) bool { _, ok := m.(*RelationModel); return ok }},
	}
	for _, tt := range tests {
		m, err := g.GetNodeModel(ctx, tt.handle)
		require.NoError(t, err)
		assert.True(t, tt.check(m), "handle %d resolved to %T", tt.handle, m)
		assert.Equal(t, tt.handle, m.Handle())
	}

	_, err := g.GetNodeModel(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUniqueNodeByName(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	m, err := g.GetUniqueNodeByName(ctx, "core-1", "Router")
	require.NoError(t, err)
	assert.Nil(t, m, "no match is nil without error")

	mustNode(t, g, "core-1", MetaPhysical, "Router", 1)
	mustNode(t, g, "core-1", MetaPhysical, "Switch", 2)

	m, err = g.GetUniqueNodeByName(ctx, "core-1", "Router")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, int64(1), m.Handle())
	assert.IsType(t, &RouterModel{}, m)

	mustNode(t, g, "core-1", MetaPhysical, "Router", 3)
	_, err = g.GetUniqueNodeByName(ctx, "core-1", "Router")
	var multi *MultipleNodesReturnedError
	require.ErrorAs(t, err, &multi)
	assert.Equal(t, "core-1", multi.Name)
	assert.Equal(t, "Router", multi.Type)

	_, err = g.GetUniqueNodeByName(ctx, "core-1", "Bad Label")
	assert.ErrorIs(t, err, ErrInvalidLabel)
}

func TestGetRelationshipModel(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()
	mustNode(t, g, "r", MetaPhysical, "Router", 1)
	mustNode(t, g, "site", MetaLocation, "Site", 2)
	rel, err := g.CreateRelationship(ctx, 1, 2, RelLocatedIn)
	require.NoError(t, err)

	rm, err := g.GetRelationshipModel(ctx, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, RelLocatedIn, rm.Relationship.Type)
	assert.IsType(t, &RouterModel{}, rm.Start)
	assert.IsType(t, &LocationModel{}, rm.End)

	_, err = g.GetRelationshipModel(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// buildInventory lays out a small site:
//
//	site -Has-> room -Has-> rack <-Located_in- router
//	router -Has-> xe-0 <-Connected_to- cable -Connected_to-> ge-1 <-Has- switch
//	customer -Owns-> router, provider -Provides-> router
//	host <-Depends_on- host-svc, host <-Depends_on- db <-Depends_on- app
func buildInventory(t *testing.T) *Graph {
	t.Helper()
	g := newTestGraph(t)
	ctx := context.Background()

	mustNode(t, g, "site", MetaLocation, "Site", 1)
	mustNode(t, g, "room", MetaLocation, "Room", 2)
	mustNode(t, g, "rack", MetaLocation, "Rack", 3)
	mustNode(t, g, "zeta-router", MetaPhysical, "Router", 10)
	mustNode(t, g, "xe-0", MetaPhysical, "Port", 11)
	mustNode(t, g, "alpha-switch", MetaPhysical, "Switch", 20)
	mustNode(t, g, "ge-1", MetaPhysical, "Port", 21)
	mustNode(t, g, "cable-1", MetaPhysical, "Cable", 30)
	mustNode(t, g, "host", MetaPhysical, "Host", 40)
	mustNode(t, g, "host-svc", MetaLogical, "Host_Service", 41)
	mustNode(t, g, "db", MetaLogical, "Service", 42)
	mustNode(t, g, "app", MetaLogical, "Application", 43)
	mustNode(t, g, "customer", MetaRelation, "Customer", 50)
	mustNode(t, g, "provider", MetaRelation, "Provider", 51)

	for _, c := range []struct {
		from, to int64
		rel      RelType
	}{
		{1, 2, RelHas},
		{2, 3, RelHas},
		{10, 3, RelLocatedIn},
		{10, 11, RelHas},
		{20, 21, RelHas},
		{30, 11, RelConnectedTo},
		{30, 21, RelConnectedTo},
		{50, 10, RelOwns},
		{51, 10, RelProvides},
		{41, 40, RelDependsOn},
		{42, 40, RelDependsOn},
		{43, 42, RelDependsOn},
		{43, 10, RelPartOf},
	} {
		_, err := g.CreateRelationship(ctx, c.from, c.to, c.rel)
		require.NoError(t, err, "%d -%s-> %d", c.from, c.rel, c.to)
	}
	return g
}

func TestEquipmentModel_LocationPath(t *testing.T) {
	g := buildInventory(t)
	ctx := context.Background()

	m, err := g.GetNodeModel(ctx, 10)
	require.NoError(t, err)
	router := m.(*RouterModel)

	path, err := router.LocationPath(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"site", "room", "rack"}, names(path))

	m, err = g.GetNodeModel(ctx, 20)
	require.NoError(t, err)
	path, err = m.(*EquipmentModel).LocationPath(ctx)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestCommonModel_Ports(t *testing.T) {
	g := buildInventory(t)
	ctx := context.Background()

	m, err := g.GetNodeModel(ctx, 30)
	require.NoError(t, err)
	ports, err := m.(*EquipmentModel).Ports(ctx)
	require.NoError(t, err)

	require.Len(t, ports, 2)
	assert.Equal(t, "ge-1", ports[0].Port.Name())
	require.NotNil(t, ports[0].Parent)
	assert.Equal(t, "alpha-switch", ports[0].Parent.Name())
	assert.Equal(t, "xe-0", ports[1].Port.Name())
	assert.Equal(t, "zeta-router", ports[1].Parent.Name())
	assert.Equal(t, RelConnectedTo, ports[1].Relationship.Type)
}

func TestHostModel_Dependents(t *testing.T) {
	g := buildInventory(t)
	ctx := context.Background()

	m, err := g.GetNodeModel(ctx, 40)
	require.NoError(t, err)
	host := m.(*HostModel)

	services, err := host.HostServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "host-svc", services[0].Node.Name())

	rep, err := host.Dependents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"db"}, names(rep.Direct), "host services are not direct dependents")
	assert.ElementsMatch(t, []string{"host-svc", "db", "app"}, names(rep.Transitive))
	assert.Len(t, rep.ByType["Application"], 1)

	var appChain *DependencyChain
	for i := range rep.Chains {
		if last := rep.Chains[i].Handles[len(rep.Chains[i].Handles)-1]; last == 43 {
			appChain = &rep.Chains[i]
		}
	}
	require.NotNil(t, appChain)
	assert.Equal(t, []int64{40, 42, 43}, appChain.Handles)
	assert.Equal(t, 2, appChain.Depth)
}

func TestLogicalModel_Dependencies(t *testing.T) {
	g := buildInventory(t)
	ctx := context.Background()

	m, err := g.GetNodeModel(ctx, 43)
	require.NoError(t, err)
	app := m.(*LogicalModel)

	rep, err := app.Dependencies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"db"}, names(rep.Direct))
	assert.Equal(t, []string{"db", "host"}, names(rep.Transitive))

	partOf, err := app.PartOf(ctx)
	require.NoError(t, err)
	require.Len(t, partOf, 1)
	assert.Equal(t, int64(10), partOf[0].Node.Handle())

	logical, err := app.OutgoingLogical(ctx)
	require.NoError(t, err)
	assert.Len(t, logical[RelDependsOn], 1)
	assert.Len(t, logical[RelPartOf], 1)
}

func TestRelations(t *testing.T) {
	g := buildInventory(t)
	ctx := context.Background()

	m, err := g.GetNodeModel(ctx, 10)
	require.NoError(t, err)
	rels, err := m.(*RouterModel).Relations(ctx)
	require.NoError(t, err)
	require.Len(t, rels[RelOwns], 1)
	assert.Equal(t, "customer", rels[RelOwns][0].Node.Name())
	require.Len(t, rels[RelProvides], 1)
	assert.Equal(t, "provider", rels[RelProvides][0].Node.Name())

	m, err = g.GetNodeModel(ctx, 50)
	require.NoError(t, err)
	resp, err := m.(*RelationModel).Responsibilities(ctx)
	require.NoError(t, err)
	require.Len(t, resp[RelOwns], 1)
	assert.Equal(t, int64(10), resp[RelOwns][0].Node.Handle())
}

func TestLocationModel(t *testing.T) {
	g := buildInventory(t)
	ctx := context.Background()

	m, err := g.GetNodeModel(ctx, 2)
	require.NoError(t, err)
	room := m.(*LocationModel)

	parent, err := room.Parent(ctx)
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, "site", parent.Name())

	children, err := room.Children(ctx)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "rack", children[0].Node.Name())

	m, err = g.GetNodeModel(ctx, 3)
	require.NoError(t, err)
	contents, err := m.(*LocationModel).Contents(ctx)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "zeta-router", contents[0].Node.Name())

	m, err = g.GetNodeModel(ctx, 1)
	require.NoError(t, err)
	parent, err = m.(*LocationModel).Parent(ctx)
	require.NoError(t, err)
	assert.Nil(t, parent)
}

func TestBaseModel_IncomingOutgoing(t *testing.T) {
	g := buildInventory(t)
	ctx := context.Background()

	m, err := g.GetNodeModel(ctx, 11)
	require.NoError(t, err)
	port := m.(*EquipmentModel)

	in, err := port.Incoming(ctx)
	require.NoError(t, err)
	assert.Len(t, in[RelHas], 1)
	assert.Len(t, in[RelConnectedTo], 1)

	out, err := port.Outgoing(ctx)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func names(nodes []NodeBundle) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}
