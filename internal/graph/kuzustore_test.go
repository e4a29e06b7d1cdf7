//go:build cgo

package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a fresh in-memory KuzuStore with an initialized schema.
// It registers a cleanup function to close the store when the test finishes.
func newTestStore(t *testing.T) *KuzuStore {
	t.Helper()
	s, err := NewKuzuStore()
	require.NoError(t, err, "NewKuzuStore should not fail")
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.InitSchema(context.Background())
	require.NoError(t, err, "InitSchema should not fail")
	return s
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestKuzuStore_Contract(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return newTestStore(t) })
}

func TestKuzuStore_InitSchema(t *testing.T) {
	s, err := NewKuzuStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()

	first, err := s.InitSchema(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)
	for _, r := range first {
		assert.Equal(t, SchemaCreated, r.Outcome, r.Object)
	}

	second, err := s.InitSchema(ctx)
	require.NoError(t, err)
	for _, r := range second {
		assert.Equal(t, SchemaAlreadyExists, r.Outcome, r.Object)
	}
}

func TestKuzuStore_FloatsStayFloats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateNode(ctx, NodeSpec{Handle: 1, Name: "n", MetaType: MetaLogical, Type: "Service"})
	require.NoError(t, err)

	_, err = s.SetNodeProperties(ctx, 1, Properties{"ratio": FloatValue(2.0), "empty": StringListValue()})
	require.NoError(t, err)

	n, err := s.GetNode(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, KindFloat, n.Properties["ratio"].Kind())
	assert.Equal(t, KindStringList, n.Properties["empty"].Kind())
}

func TestKuzuStore_Graph(t *testing.T) {
	g := New(newTestStore(t))
	ctx := context.Background()

	_, err := g.CreateNode(ctx, "R1", "Physical", "Router", 100)
	require.NoError(t, err)
	_, err = g.CreateNode(ctx, "P1", "Physical", "Port", 101)
	require.NoError(t, err)

	has, err := g.CreateRelationship(ctx, 100, 101, RelHas)
	require.NoError(t, err)
	_, err = g.CreateRelationship(ctx, 100, 101, RelUses)
	assert.ErrorIs(t, err, ErrIllegalRelationship)

	m, err := g.GetUniqueNodeByName(ctx, "R1", "Router")
	require.NoError(t, err)
	assert.IsType(t, &RouterModel{}, m)

	_, err = g.DeleteNode(ctx, 100)
	require.NoError(t, err)
	_, err = g.GetRelationship(ctx, has.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKuzuStore_ReopenKeepsRelationshipIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory", "graph.kuzu")
	ctx := context.Background()

	s, err := OpenKuzu(path)
	require.NoError(t, err)
	_, err = s.InitSchema(ctx)
	require.NoError(t, err)
	for _, h := range []int64{1, 2} {
		_, err := s.CreateNode(ctx, NodeSpec{Handle: h, Name: "n", MetaType: MetaPhysical, Type: "Router"})
		require.NoError(t, err)
	}
	first, err := s.createRelationship(ctx, 1, 2, RelConnectedTo, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenKuzu(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	results, err := s.InitSchema(ctx)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, SchemaAlreadyExists, r.Outcome)
	}

	second, err := s.createRelationship(ctx, 2, 1, RelConnectedTo, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	got, err := s.GetRelationship(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.Start)
}

func TestEncodeLabels(t *testing.T) {
	labels := []string{NodeLabel, "Physical", "Router"}
	enc := encodeLabels(labels)
	assert.Equal(t, ":Node:Physical:Router:", enc)
	assert.Equal(t, labels, decodeLabels(enc))
	assert.Equal(t, ":Node:", labelToken(""))
}

func TestParseKuzuRelID(t *testing.T) {
	rid, ok := parseKuzuRelID(kuzuRelID(17))
	assert.True(t, ok)
	assert.Equal(t, int64(17), rid)

	_, ok = parseKuzuRelID("4:abc:17")
	assert.False(t, ok)
}
