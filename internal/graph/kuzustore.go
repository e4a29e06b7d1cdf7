//go:build cgo

package graph

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore implements the Store interface using KuzuDB as an embedded
// graph backend. It requires CGO because the go-kuzu driver wraps KuzuDB's
// C library.
//
// KuzuDB tables are strictly typed, so every inventory node lives in one
// Entity table with its label set and property map encoded as strings, and
// every relationship lives in one Link table carrying its type.
type KuzuStore struct {
	mu      sync.Mutex
	db      *kuzu.Database
	conn    *kuzu.Connection
	nextRID int64
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// OpenKuzu creates a KuzuStore backed by a file-based KuzuDB at path.
// KuzuDB creates the leaf directory itself for new databases.
func OpenKuzu(path string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(path)
}

func openKuzu(path string) (*KuzuStore, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	return nil
}

// ---------- Schema setup ----------

// kuzuSchema defines the DDL executed by InitSchema, each with a probe that
// succeeds only when the table is present. Node tables precede relationship
// tables.
var kuzuSchema = []struct {
	name  string
	ddl   string
	probe string
}{
	{
		name: "entity_table",
		ddl: `CREATE NODE TABLE Entity(
			handle INT64,
			name STRING,
			labels STRING,
			props STRING,
			PRIMARY KEY(handle)
		)`,
		probe: "MATCH (n:Entity) RETURN count(n)",
	},
	{
		name:  "link_table",
		ddl:   "CREATE REL TABLE Link(FROM Entity TO Entity, rid INT64, rel_type STRING, props STRING)",
		probe: "MATCH ()-[r:Link]->() RETURN count(r)",
	},
}

// InitSchema creates the Entity and Link tables. A failed CREATE is
// classified as already existing when the table's probe query succeeds.
func (s *KuzuStore) InitSchema(_ context.Context) ([]SchemaResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]SchemaResult, 0, len(kuzuSchema))
	for _, t := range kuzuSchema {
		outcome := SchemaCreated
		if _, err := s.query(t.ddl, nil); err != nil {
			if _, probeErr := s.query(t.probe, nil); probeErr != nil {
				return results, fmt.Errorf("kuzu: init schema %s: %w", t.name, err)
			}
			outcome = SchemaAlreadyExists
		}
		results = append(results, SchemaResult{Object: t.name, Outcome: outcome})
	}

	rows, err := s.query("MATCH ()-[r:Link]->() RETURN max(r.rid)", nil)
	if err != nil {
		return results, err
	}
	if len(rows) > 0 {
		s.nextRID = toInt64(rows[0][0])
	}
	return results, nil
}

// ---------- Nodes ----------

// CreateNode inserts an Entity row.
func (s *KuzuStore) CreateNode(_ context.Context, spec NodeSpec) (*NodeBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getNode(spec.Handle)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &HandleExistsError{Handle: spec.Handle}
	}

	labels := spec.labels()
	props := Properties{PropHandle: IntValue(spec.Handle), PropName: StringValue(spec.Name)}
	encoded, err := encodeKuzuProps(props)
	if err != nil {
		return nil, err
	}
	if err := s.exec(
		"CREATE (n:Entity {handle: $handle, name: $name, labels: $labels, props: $props})",
		map[string]any{
			"handle": spec.Handle,
			"name":   spec.Name,
			"labels": encodeLabels(labels),
			"props":  encoded,
		},
	); err != nil {
		return nil, err
	}
	return newNodeBundle(labels, props), nil
}

// GetNode retrieves a node by handle, or returns nil if not found.
func (s *KuzuStore) GetNode(_ context.Context, handle int64) (*NodeBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getNode(handle)
}

func (s *KuzuStore) getNode(handle int64) (*NodeBundle, error) {
	rows, err := s.query(
		"MATCH (n:Entity {handle: $handle}) RETURN n.labels, n.props",
		map[string]any{"handle": handle},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowToNode(rows[0][0], rows[0][1])
}

// DeleteNode detaches and deletes the Entity row while holding the store
// lock.
func (s *KuzuStore) DeleteNode(_ context.Context, handle int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getNode(handle)
	if err != nil || existing == nil {
		return false, err
	}
	if err := s.exec(
		"MATCH (n:Entity {handle: $handle}) DETACH DELETE n",
		map[string]any{"handle": handle},
	); err != nil {
		return false, err
	}
	return true, nil
}

// SetNodeProperties replaces the property map, keeping handle and, unless
// replaced, name.
func (s *KuzuStore) SetNodeProperties(_ context.Context, handle int64, props Properties) (*NodeBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.getNode(handle)
	if err != nil || current == nil {
		return nil, err
	}
	next := props.Clone()
	if _, ok := next[PropName]; !ok {
		if name, ok := current.Properties[PropName]; ok {
			next[PropName] = name
		}
	}
	next[PropHandle] = IntValue(handle)

	encoded, err := encodeKuzuProps(next)
	if err != nil {
		return nil, err
	}
	name, _ := next[PropName].AsString()
	if err := s.exec(
		"MATCH (n:Entity {handle: $handle}) SET n.name = $name, n.props = $props",
		map[string]any{"handle": handle, "name": name, "props": encoded},
	); err != nil {
		return nil, err
	}
	return newNodeBundle(current.Labels, next), nil
}

// ---------- Relationships ----------

const linkReturn = "RETURN r.rid, r.rel_type, a.handle, b.handle, r.props"

func (s *KuzuStore) createRelationship(_ context.Context, from, to int64, t RelType, props Properties) (*RelationshipBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range []int64{from, to} {
		n, err := s.getNode(h)
		if err != nil || n == nil {
			return nil, err
		}
	}
	encoded, err := encodeKuzuProps(props)
	if err != nil {
		return nil, err
	}
	rid := s.nextRID + 1
	if err := s.exec(
		`MATCH (a:Entity {handle: $from}), (b:Entity {handle: $to})
		 CREATE (a)-[:Link {rid: $rid, rel_type: $type, props: $props}]->(b)`,
		map[string]any{
			"from":  from,
			"to":    to,
			"rid":   rid,
			"type":  string(t),
			"props": encoded,
		},
	); err != nil {
		return nil, err
	}
	s.nextRID = rid
	return &RelationshipBundle{
		ID:         kuzuRelID(rid),
		Type:       t,
		Start:      from,
		End:        to,
		Properties: props.Clone(),
	}, nil
}

// GetRelationship retrieves a Link by id, or returns nil if not found.
func (s *KuzuStore) GetRelationship(_ context.Context, id RelationshipID) (*RelationshipBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getRelationship(id)
}

func (s *KuzuStore) getRelationship(id RelationshipID) (*RelationshipBundle, error) {
	rid, ok := parseKuzuRelID(id)
	if !ok {
		return nil, nil
	}
	rows, err := s.query(
		"MATCH (a:Entity)-[r:Link]->(b:Entity) WHERE r.rid = $rid "+linkReturn,
		map[string]any{"rid": rid},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowToRelationship(rows[0])
}

// DeleteRelationship deletes a single Link.
func (s *KuzuStore) DeleteRelationship(_ context.Context, id RelationshipID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getRelationship(id)
	if err != nil || existing == nil {
		return false, err
	}
	rid, _ := parseKuzuRelID(id)
	if err := s.exec(
		"MATCH ()-[r:Link]->() WHERE r.rid = $rid DELETE r",
		map[string]any{"rid": rid},
	); err != nil {
		return false, err
	}
	return true, nil
}

// SetRelationshipProperties replaces the Link's property map.
func (s *KuzuStore) SetRelationshipProperties(_ context.Context, id RelationshipID, props Properties) (*RelationshipBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getRelationship(id)
	if err != nil || existing == nil {
		return nil, err
	}
	encoded, err := encodeKuzuProps(props)
	if err != nil {
		return nil, err
	}
	rid, _ := parseKuzuRelID(id)
	if err := s.exec(
		"MATCH ()-[r:Link]->() WHERE r.rid = $rid SET r.props = $props",
		map[string]any{"rid": rid, "props": encoded},
	); err != nil {
		return nil, err
	}
	existing.Properties = props.Clone()
	return existing, nil
}

// ---------- Lookups ----------

// NodesByName returns Entity rows with the exact name that carry label.
func (s *KuzuStore) NodesByName(_ context.Context, name, label string) ([]NodeBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.query(
		`MATCH (n:Entity) WHERE n.name = $name AND n.labels CONTAINS $label
		 RETURN n.labels, n.props, n.handle ORDER BY n.handle`,
		map[string]any{"name": name, "label": labelToken(label)},
	)
	if err != nil {
		return nil, err
	}
	out := make([]NodeBundle, 0, len(rows))
	for _, r := range rows {
		b, err := rowToNode(r[0], r[1])
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}

// ScanNodes collects the matching rows under the lock and yields them
// afterwards.
func (s *KuzuStore) ScanNodes(_ context.Context, label, property string) iter.Seq2[*NodeBundle, error] {
	return func(yield func(*NodeBundle, error) bool) {
		s.mu.Lock()
		rows, err := s.query(
			"MATCH (n:Entity) WHERE n.labels CONTAINS $label RETURN n.labels, n.props, n.handle ORDER BY n.handle",
			map[string]any{"label": labelToken(label)},
		)
		s.mu.Unlock()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, r := range rows {
			b, err := rowToNode(r[0], r[1])
			if err != nil {
				yield(nil, err)
				return
			}
			if property != "" {
				if _, ok := b.Properties[property]; !ok {
					continue
				}
			}
			if !yield(b, nil) {
				return
			}
		}
	}
}

// RelationshipsBetween returns Links joining a and b either way.
func (s *KuzuStore) RelationshipsBetween(_ context.Context, a, b int64, t RelType) ([]RelationshipBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.query(
		`MATCH (a:Entity)-[r:Link]->(b:Entity)
		 WHERE (a.handle = $x AND b.handle = $y) OR (a.handle = $y AND b.handle = $x)
		 `+linkReturn+` ORDER BY r.rid`,
		map[string]any{"x": a, "y": b},
	)
	if err != nil {
		return nil, err
	}
	var out []RelationshipBundle
	for _, r := range rows {
		rel, err := rowToRelationship(r)
		if err != nil {
			return nil, err
		}
		if t == "" || rel.Type == t {
			out = append(out, *rel)
		}
	}
	return out, nil
}

// Neighbors returns Links of handle with the far-end Entity.
func (s *KuzuStore) Neighbors(_ context.Context, handle int64, dir Direction, types ...RelType) ([]Neighbor, error) {
	const (
		outgoing = "MATCH (a:Entity {handle: $handle})-[r:Link]->(b:Entity) " + linkReturn + ", b.labels, b.props"
		incoming = "MATCH (a:Entity)-[r:Link]->(b:Entity {handle: $handle}) " + linkReturn + ", a.labels, a.props"
	)
	var queries []string
	switch dir {
	case DirectionOutgoing:
		queries = []string{outgoing}
	case DirectionIncoming:
		queries = []string{incoming}
	case DirectionBoth:
		queries = []string{outgoing, incoming}
	default:
		return nil, fmt.Errorf("kuzu: unknown direction: %s", dir)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[RelationshipID]bool{}
	var out []Neighbor
	for _, q := range queries {
		rows, err := s.query(q, map[string]any{"handle": handle})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			rel, err := rowToRelationship(r[:5])
			if err != nil {
				return nil, err
			}
			if seen[rel.ID] || (len(types) > 0 && !slices.Contains(types, rel.Type)) {
				continue
			}
			seen[rel.ID] = true
			node, err := rowToNode(r[5], r[6])
			if err != nil {
				return nil, err
			}
			out = append(out, Neighbor{Relationship: *rel, Node: *node})
		}
	}
	slices.SortFunc(out, func(x, y Neighbor) int {
		rx, _ := parseKuzuRelID(x.Relationship.ID)
		ry, _ := parseKuzuRelID(y.Relationship.ID)
		return cmp.Compare(rx, ry)
	})
	return out, nil
}

// ---------- Stats ----------

// Stats returns Entity and Link counts.
func (s *KuzuStore) Stats(_ context.Context) (*GraphStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.count("MATCH (n:Entity) RETURN count(n)")
	if err != nil {
		return nil, err
	}
	rels, err := s.count("MATCH ()-[r:Link]->() RETURN count(r)")
	if err != nil {
		return nil, err
	}
	return &GraphStats{NodeCount: nodes, RelationshipCount: rels}, nil
}

// ---------- Internal helpers ----------

// exec runs a parameterized Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

func (s *KuzuStore) count(cypher string) (int, error) {
	rows, err := s.query(cypher, nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return int(toInt64(rows[0][0])), nil
}

// encodeLabels stores a label set as ":Node:Physical:Router:" so that a
// single label can be matched with CONTAINS ":Router:".
func encodeLabels(labels []string) string {
	return ":" + strings.Join(labels, ":") + ":"
}

func decodeLabels(s string) []string {
	var out []string
	for _, l := range strings.Split(s, ":") {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func labelToken(label string) string {
	if label == "" {
		label = NodeLabel
	}
	return ":" + label + ":"
}

func kuzuRelID(rid int64) RelationshipID {
	return RelationshipID(strconv.FormatInt(rid, 10))
}

func parseKuzuRelID(id RelationshipID) (int64, bool) {
	rid, err := strconv.ParseInt(string(id), 10, 64)
	return rid, err == nil
}

// kuzuProp keeps the variant alongside the value so that a float such as
// 2.0 does not come back as an int.
type kuzuProp struct {
	Kind  ValueKind `json:"k"`
	Value Value     `json:"v"`
}

func encodeKuzuProps(p Properties) (string, error) {
	typed := make(map[string]kuzuProp, len(p))
	for k, v := range p {
		typed[k] = kuzuProp{Kind: v.Kind(), Value: v}
	}
	b, err := json.Marshal(typed)
	if err != nil {
		return "", &BadPropertiesError{Properties: p.Map(), Reason: err.Error()}
	}
	return string(b), nil
}

func decodeKuzuProps(s string) (Properties, error) {
	var typed map[string]kuzuProp
	if err := json.Unmarshal([]byte(s), &typed); err != nil {
		return nil, fmt.Errorf("kuzu: decode properties: %w", err)
	}
	out := make(Properties, len(typed))
	for k, tv := range typed {
		v := tv.Value
		if tv.Kind == KindFloat && v.Kind() == KindInt {
			i, _ := v.AsInt()
			v = FloatValue(float64(i))
		}
		if tv.Kind == KindStringList && !v.IsValid() {
			v = StringListValue()
		}
		out[k] = v
	}
	return out, nil
}

func rowToNode(labels, props any) (*NodeBundle, error) {
	p, err := decodeKuzuProps(toString(props))
	if err != nil {
		return nil, err
	}
	return newNodeBundle(decodeLabels(toString(labels)), p), nil
}

// rowToRelationship converts a 5-column row into a RelationshipBundle.
// Column order: rid, rel_type, start handle, end handle, props.
func rowToRelationship(r []any) (*RelationshipBundle, error) {
	p, err := decodeKuzuProps(toString(r[4]))
	if err != nil {
		return nil, err
	}
	return &RelationshipBundle{
		ID:         kuzuRelID(toInt64(r[0])),
		Type:       RelType(toString(r[1])),
		Start:      toInt64(r[2]),
		End:        toInt64(r[3]),
		Properties: p,
	}, nil
}
