package graph

import (
	"context"
	"errors"
	"iter"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCall struct {
	write  bool
	query  string
	params map[string]any
}

// fakeExecutor records every statement and answers with respond.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []fakeCall
	respond func(query string, params map[string]any) ([]Record, error)
	closed  bool
}

var _ Executor = (*fakeExecutor)(nil)

func (f *fakeExecutor) run(write bool, query string, params map[string]any) ([]Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{write: write, query: query, params: params})
	f.mu.Unlock()
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(query, params)
}

func (f *fakeExecutor) ExecuteRead(_ context.Context, query string, params map[string]any) ([]Record, error) {
	return f.run(false, query, params)
}

func (f *fakeExecutor) ExecuteWrite(_ context.Context, query string, params map[string]any) ([]Record, error) {
	return f.run(true, query, params)
}

func (f *fakeExecutor) Stream(_ context.Context, query string, params map[string]any) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		recs, err := f.run(false, query, params)
		if err != nil {
			yield(Record{}, err)
			return
		}
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (f *fakeExecutor) Close(context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeExecutor) writes() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.write {
			out = append(out, c)
		}
	}
	return out
}

func nodeRecord(handle int64, name string, labels ...string) Record {
	ls := make([]any, len(labels))
	for i, l := range labels {
		ls[i] = l
	}
	return Record{
		Keys:   []string{"labels", "props"},
		Values: []any{ls, map[string]any{"handle": handle, "name": name}},
	}
}

func TestClassifySchemaError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    SchemaOutcome
		wantErr bool
	}{
		{"created", nil, SchemaCreated, false},
		{"equivalent rule", &neo4j.Neo4jError{Code: "Neo.ClientError.Schema.EquivalentSchemaRuleAlreadyExists"}, SchemaAlreadyExists, false},
		{"constraint exists", &neo4j.Neo4jError{Code: "Neo.ClientError.Schema.ConstraintAlreadyExists"}, SchemaAlreadyExists, false},
		{"index with name", &neo4j.Neo4jError{Code: "Neo.ClientError.Schema.IndexWithNameAlreadyExists"}, SchemaAlreadyExists, false},
		{"forbidden", &neo4j.Neo4jError{Code: "Neo.ClientError.Security.Forbidden"}, 0, true},
		{"plain error", errors.New("boom"), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := classifySchemaError(tt.err)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNeo4jStore_InitSchema(t *testing.T) {
	fake := &fakeExecutor{respond: func(q string, _ map[string]any) ([]Record, error) {
		if strings.Contains(q, "CONSTRAINT") {
			return nil, &neo4j.Neo4jError{Code: "Neo.ClientError.Schema.EquivalentSchemaRuleAlreadyExists"}
		}
		return nil, nil
	}}
	s := NewNeo4jStore(fake, nil)

	results, err := s.InitSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []SchemaResult{
		{Object: "node_handle_unique", Outcome: SchemaAlreadyExists},
		{Object: "node_name", Outcome: SchemaCreated},
	}, results)
	for _, c := range fake.calls {
		assert.NotContains(t, c.query, "IF NOT EXISTS")
	}
}

func TestNeo4jStore_InitSchema_Fatal(t *testing.T) {
	fake := &fakeExecutor{respond: func(q string, _ map[string]any) ([]Record, error) {
		if strings.Contains(q, "INDEX") {
			return nil, &neo4j.Neo4jError{Code: "Neo.ClientError.Security.Forbidden", Msg: "denied"}
		}
		return nil, nil
	}}
	s := NewNeo4jStore(fake, nil)

	results, err := s.InitSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init schema node_name")
	assert.Len(t, results, 1, "results gathered before the failure are returned")
}

func TestNeo4jStore_CreateNode(t *testing.T) {
	fake := &fakeExecutor{respond: func(string, map[string]any) ([]Record, error) {
		return []Record{nodeRecord(5, "r1", "Node", "Physical", "Router")}, nil
	}}
	s := NewNeo4jStore(fake, nil)

	n, err := s.CreateNode(context.Background(), NodeSpec{Handle: 5, Name: "r1", MetaType: MetaPhysical, Type: "Router"})
	require.NoError(t, err)
	assert.Equal(t, MetaPhysical, n.MetaType)
	assert.Equal(t, int64(5), n.Handle())

	require.Len(t, fake.calls, 1)
	c := fake.calls[0]
	assert.True(t, c.write)
	assert.Contains(t, c.query, "(n:`Node`:`Physical`:`Router` {handle: $handle, name: $name})")
	assert.Equal(t, int64(5), c.params["handle"])
}

func TestNeo4jStore_CreateNode_DuplicateHandle(t *testing.T) {
	fake := &fakeExecutor{respond: func(string, map[string]any) ([]Record, error) {
		return nil, &neo4j.Neo4jError{Code: "Neo.ClientError.Schema.ConstraintValidationFailed"}
	}}
	s := NewNeo4jStore(fake, nil)

	_, err := s.CreateNode(context.Background(), NodeSpec{Handle: 5, Name: "r1", MetaType: MetaPhysical, Type: "Router"})
	var exists *HandleExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, int64(5), exists.Handle)
}

func TestNeo4jStore_ErrorMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("type error is bad properties", func(t *testing.T) {
		fake := &fakeExecutor{respond: func(string, map[string]any) ([]Record, error) {
			return nil, &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.TypeError", Msg: "Property values can only be of primitive types"}
		}}
		s := NewNeo4jStore(fake, nil)
		_, err := s.SetNodeProperties(ctx, 1, MustProperties(map[string]any{"a": "b"}))
		var bad *BadPropertiesError
		require.ErrorAs(t, err, &bad)
		assert.Contains(t, bad.Reason, "primitive")
	})

	t.Run("connectivity is connection error", func(t *testing.T) {
		fake := &fakeExecutor{respond: func(string, map[string]any) ([]Record, error) {
			return nil, &neo4j.ConnectivityError{Inner: errors.New("connection refused")}
		}}
		s := NewNeo4jStore(fake, nil)
		s.uri = "bolt://db:7687"
		_, err := s.GetNode(ctx, 1)
		var conn *ConnectionError
		require.ErrorAs(t, err, &conn)
		assert.Equal(t, "bolt://db:7687", conn.URI)
	})

	t.Run("other errors are wrapped", func(t *testing.T) {
		cause := errors.New("syntax")
		fake := &fakeExecutor{respond: func(string, map[string]any) ([]Record, error) { return nil, cause }}
		s := NewNeo4jStore(fake, nil)
		_, err := s.Stats(ctx)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "neo4j: stats")
	})
}

func TestNeo4jStore_Reads(t *testing.T) {
	ctx := context.Background()
	fake := &fakeExecutor{respond: func(q string, params map[string]any) ([]Record, error) {
		switch {
		case strings.Contains(q, "count(n)"):
			return []Record{{Keys: []string{"count"}, Values: []any{int64(3)}}}, nil
		case strings.Contains(q, "count(r)"):
			return []Record{{Keys: []string{"count"}, Values: []any{int64(2)}}}, nil
		case strings.Contains(q, "elementId(r) = $id"):
			return []Record{{
				Keys:   []string{"id", "type", "start", "end", "props"},
				Values: []any{params["id"], "Has", int64(1), int64(2), map[string]any{"speed": "10G"}},
			}}, nil
		}
		return nil, nil
	}}
	s := NewNeo4jStore(fake, nil)

	n, err := s.GetNode(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, n, "absent node is nil without error")

	r, err := s.GetRelationship(ctx, "4:abc:7")
	require.NoError(t, err)
	assert.Equal(t, RelationshipBundle{
		ID: "4:abc:7", Type: RelHas, Start: 1, End: 2,
		Properties: Properties{"speed": StringValue("10G")},
	}, *r)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, GraphStats{NodeCount: 3, RelationshipCount: 2}, *stats)
}

func TestNeo4jStore_NeighborsQuery(t *testing.T) {
	fake := &fakeExecutor{}
	s := NewNeo4jStore(fake, nil)
	ctx := context.Background()

	_, err := s.Neighbors(ctx, 1, DirectionIncoming, RelHas, RelOwns)
	require.NoError(t, err)
	require.Len(t, fake.calls, 1)
	assert.Contains(t, fake.calls[0].query, "<-[r]-")
	assert.Equal(t, []string{"Has", "Owns"}, fake.calls[0].params["types"])

	_, err = s.Neighbors(ctx, 1, Direction("sideways"))
	assert.Error(t, err)
}

func TestNeo4jStore_ScanNodes(t *testing.T) {
	fake := &fakeExecutor{respond: func(string, map[string]any) ([]Record, error) {
		return []Record{
			nodeRecord(1, "a", "Node", "Physical", "Router"),
			nodeRecord(2, "b", "Node", "Physical", "Router"),
		}, nil
	}}
	g := New(NewNeo4jStore(fake, nil))

	nodes, err := Collect(g.GetNodesByValue(context.Background(), "B", PropName, "Router"))
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, int64(2), nodes[0].Handle())

	q := fake.calls[0]
	assert.Contains(t, q.query, "MATCH (n:`Node`:`Router`) WHERE n[$prop] IS NOT NULL")
	assert.Equal(t, PropName, q.params["prop"])
}

// TestNeo4jStore_IllegalNeverWrites checks that a rejected triple does not
// reach the database.
func TestNeo4jStore_IllegalNeverWrites(t *testing.T) {
	fake := &fakeExecutor{respond: func(q string, params map[string]any) ([]Record, error) {
		if strings.HasPrefix(q, "MATCH (n:Node {handle: $handle})") && !strings.Contains(q, "DELETE") {
			h := params["handle"].(int64)
			return []Record{nodeRecord(h, "n", "Node", "Physical", "Router")}, nil
		}
		return nil, nil
	}}
	g := New(NewNeo4jStore(fake, nil))

	_, err := g.CreateRelationship(context.Background(), 1, 2, RelUses)
	assert.ErrorIs(t, err, ErrIllegalRelationship)
	assert.Empty(t, fake.writes())
}

func TestNeo4jStore_Close(t *testing.T) {
	fake := &fakeExecutor{}
	require.NoError(t, NewNeo4jStore(fake, nil).Close())
	assert.True(t, fake.closed)
}

// TestNeo4jStore_Live runs the core operations against a real server when
// NETGRAPH_TEST_NEO4J_URI is set.
func TestNeo4jStore_Live(t *testing.T) {
	uri := os.Getenv("NETGRAPH_TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("NETGRAPH_TEST_NEO4J_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := OpenNeo4j(ctx, Neo4jConfig{
		URI:      uri,
		Username: os.Getenv("NETGRAPH_TEST_NEO4J_USER"),
		Password: os.Getenv("NETGRAPH_TEST_NEO4J_PASSWORD"),
	}, nil)
	require.NoError(t, err)
	g := New(store)
	t.Cleanup(func() { _ = g.Close() })

	// Handles far from any real inventory.
	base := -time.Now().UnixNano()
	router, port := base, base-1
	t.Cleanup(func() {
		_, _ = g.DeleteNode(context.Background(), router)
		_, _ = g.DeleteNode(context.Background(), port)
	})

	// A second bootstrap classifies everything as existing.
	results, err := store.InitSchema(ctx)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, SchemaAlreadyExists, r.Outcome)
	}

	_, err = g.CreateNode(ctx, "live-r1", "Physical", "Router", router)
	require.NoError(t, err)
	_, err = g.CreateNode(ctx, "live-p1", "Physical", "Port", port)
	require.NoError(t, err)
	_, err = g.CreateNode(ctx, "dup", "Physical", "Port", port)
	assert.ErrorIs(t, err, ErrHandleExists)

	has, err := g.CreateRelationship(ctx, router, port, RelHas)
	require.NoError(t, err)
	_, err = g.CreateRelationship(ctx, router, port, RelUses)
	assert.ErrorIs(t, err, ErrIllegalRelationship)

	n, err := g.SetNodeProperties(ctx, router, MustProperties(map[string]any{"a": 1, "b": 2}))
	require.NoError(t, err)
	assert.Equal(t, "live-r1", n.Name())
	n, err = g.SetNodeProperties(ctx, router, MustProperties(map[string]any{"a": 1}))
	require.NoError(t, err)
	assert.NotContains(t, n.Properties, "b")

	_, err = g.DeleteNode(ctx, router)
	require.NoError(t, err)
	_, err = g.GetRelationship(ctx, has.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
