package graph

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig holds the driver settings for OpenNeo4j.
type Neo4jConfig struct {
	URI                     string
	Username                string
	Password                string
	Database                string
	MaxConnectionPoolSize   int
	ConnectionTimeout       time.Duration
	MaxTransactionRetryTime time.Duration
}

// Neo4jStore implements Store on a Neo4j server through an Executor.
type Neo4jStore struct {
	exec   Executor
	uri    string
	logger *slog.Logger
}

// Compile-time check that Neo4jStore satisfies Store.
var _ Store = (*Neo4jStore)(nil)

// NewNeo4jStore builds a store over an existing executor. It does not touch
// the schema; call InitSchema.
func NewNeo4jStore(exec Executor, logger *slog.Logger) *Neo4jStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &Neo4jStore{exec: exec, logger: logger}
}

// OpenNeo4j connects to the server, verifies connectivity and provisions the
// schema. Connection failures are returned as ConnectionError.
func OpenNeo4j(ctx context.Context, cfg Neo4jConfig, logger *slog.Logger) (*Neo4jStore, error) {
	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		if cfg.ConnectionTimeout > 0 {
			c.ConnectionAcquisitionTimeout = cfg.ConnectionTimeout
			c.SocketConnectTimeout = cfg.ConnectionTimeout
		}
		if cfg.MaxTransactionRetryTime > 0 {
			c.MaxTransactionRetryTime = cfg.MaxTransactionRetryTime
		}
	})
	if err != nil {
		return nil, &ConnectionError{URI: cfg.URI, Err: err}
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, &ConnectionError{URI: cfg.URI, Err: err}
	}

	s := NewNeo4jStore(NewSession(driver, cfg.Database), logger)
	s.uri = cfg.URI
	if _, err := s.InitSchema(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

// Close closes the executor and its driver.
func (s *Neo4jStore) Close() error {
	return s.exec.Close(context.Background())
}

// ---------- Schema setup ----------

// neo4jSchema lists the schema objects provisioned by InitSchema. The
// statements deliberately omit IF NOT EXISTS so that an existing object is
// reported and classified.
var neo4jSchema = []struct {
	name string
	stmt string
}{
	{"node_handle_unique", "CREATE CONSTRAINT node_handle_unique FOR (n:Node) REQUIRE n.handle IS UNIQUE"},
	{"node_name", "CREATE INDEX node_name FOR (n:Node) ON (n.name)"},
}

// alreadyExistsCodes are the server status codes for a schema object that
// is already in place.
var alreadyExistsCodes = []string{
	"Neo.ClientError.Schema.EquivalentSchemaRuleAlreadyExists",
	"Neo.ClientError.Schema.ConstraintAlreadyExists",
	"Neo.ClientError.Schema.ConstraintWithNameAlreadyExists",
	"Neo.ClientError.Schema.IndexAlreadyExists",
	"Neo.ClientError.Schema.IndexWithNameAlreadyExists",
}

// classifySchemaError maps the result of a schema statement to an outcome.
// A non-nil error return means the failure is fatal.
func classifySchemaError(err error) (SchemaOutcome, error) {
	if err == nil {
		return SchemaCreated, nil
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && slices.Contains(alreadyExistsCodes, neoErr.Code) {
		return SchemaAlreadyExists, nil
	}
	return 0, err
}

// InitSchema creates the handle uniqueness constraint and the name index.
// Objects that already exist are reported as such; any other failure stops
// bootstrap and is returned with the results gathered so far.
func (s *Neo4jStore) InitSchema(ctx context.Context) ([]SchemaResult, error) {
	results := make([]SchemaResult, 0, len(neo4jSchema))
	for _, obj := range neo4jSchema {
		_, err := s.exec.ExecuteWrite(ctx, obj.stmt, nil)
		outcome, err := classifySchemaError(err)
		if err != nil {
			return results, s.wrap("init schema "+obj.name, err)
		}
		s.logger.Info("schema object ready", "object", obj.name, "outcome", outcome.String())
		results = append(results, SchemaResult{Object: obj.name, Outcome: outcome})
	}
	return results, nil
}

// ---------- Nodes ----------

const nodeReturn = "RETURN labels(n) AS labels, properties(n) AS props"

// CreateNode creates a node with the generic, meta-type and type labels.
func (s *Neo4jStore) CreateNode(ctx context.Context, spec NodeSpec) (*NodeBundle, error) {
	cypher := fmt.Sprintf("CREATE (n%s {handle: $handle, name: $name}) %s",
		labelExpr(spec.labels()...), nodeReturn)
	recs, err := s.exec.ExecuteWrite(ctx, cypher, map[string]any{
		"handle": spec.Handle,
		"name":   spec.Name,
	})
	if err != nil {
		var neoErr *neo4j.Neo4jError
		if errors.As(err, &neoErr) && neoErr.Code == "Neo.ClientError.Schema.ConstraintValidationFailed" {
			return nil, &HandleExistsError{Handle: spec.Handle, Err: err}
		}
		return nil, s.wrap("create node", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("neo4j: create node %d: no row returned", spec.Handle)
	}
	return recordToNode(recs[0]), nil
}

// GetNode returns the node with the given handle, or nil if not found.
func (s *Neo4jStore) GetNode(ctx context.Context, handle int64) (*NodeBundle, error) {
	recs, err := s.exec.ExecuteRead(ctx,
		"MATCH (n:Node {handle: $handle}) "+nodeReturn,
		map[string]any{"handle": handle},
	)
	if err != nil {
		return nil, s.wrap("get node", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recordToNode(recs[0]), nil
}

// DeleteNode detaches and deletes the node in a single statement.
func (s *Neo4jStore) DeleteNode(ctx context.Context, handle int64) (bool, error) {
	recs, err := s.exec.ExecuteWrite(ctx,
		"MATCH (n:Node {handle: $handle}) DETACH DELETE n RETURN count(*) AS deleted",
		map[string]any{"handle": handle},
	)
	if err != nil {
		return false, s.wrap("delete node", err)
	}
	return toInt64(FirstMap(recs)["deleted"]) > 0, nil
}

// SetNodeProperties replaces the node's properties in one statement.
func (s *Neo4jStore) SetNodeProperties(ctx context.Context, handle int64, props Properties) (*NodeBundle, error) {
	recs, err := s.exec.ExecuteWrite(ctx,
		`MATCH (n:Node {handle: $handle})
		 WITH n, coalesce($props.name, n.name) AS name
		 SET n = $props
		 SET n.name = name, n.handle = $handle
		 `+nodeReturn,
		map[string]any{"handle": handle, "props": props.Map()},
	)
	if err != nil {
		return nil, s.wrapProps("set node properties", props, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recordToNode(recs[0]), nil
}

// ---------- Relationships ----------

const relReturn = `RETURN elementId(r) AS id, type(r) AS type,
	startNode(r).handle AS start, endNode(r).handle AS end, properties(r) AS props`

func (s *Neo4jStore) createRelationship(ctx context.Context, from, to int64, t RelType, props Properties) (*RelationshipBundle, error) {
	cypher := fmt.Sprintf(
		`MATCH (a:Node {handle: $from}), (b:Node {handle: $to})
		 CREATE (a)-[r:%s]->(b)
		 SET r = $props
		 %s`, quoteIdent(string(t)), relReturn)
	recs, err := s.exec.ExecuteWrite(ctx, cypher, map[string]any{
		"from":  from,
		"to":    to,
		"props": props.Map(),
	})
	if err != nil {
		return nil, s.wrapProps("create relationship", props, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recordToRelationship(recs[0]), nil
}

// GetRelationship returns the relationship with the given element id, or
// nil if not found.
func (s *Neo4jStore) GetRelationship(ctx context.Context, id RelationshipID) (*RelationshipBundle, error) {
	recs, err := s.exec.ExecuteRead(ctx,
		"MATCH ()-[r]->() WHERE elementId(r) = $id "+relReturn,
		map[string]any{"id": string(id)},
	)
	if err != nil {
		return nil, s.wrap("get relationship", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recordToRelationship(recs[0]), nil
}

// DeleteRelationship deletes a single relationship.
func (s *Neo4jStore) DeleteRelationship(ctx context.Context, id RelationshipID) (bool, error) {
	recs, err := s.exec.ExecuteWrite(ctx,
		"MATCH ()-[r]->() WHERE elementId(r) = $id DELETE r RETURN count(*) AS deleted",
		map[string]any{"id": string(id)},
	)
	if err != nil {
		return false, s.wrap("delete relationship", err)
	}
	return toInt64(FirstMap(recs)["deleted"]) > 0, nil
}

// SetRelationshipProperties replaces the relationship's properties.
func (s *Neo4jStore) SetRelationshipProperties(ctx context.Context, id RelationshipID, props Properties) (*RelationshipBundle, error) {
	recs, err := s.exec.ExecuteWrite(ctx,
		"MATCH ()-[r]->() WHERE elementId(r) = $id SET r = $props "+relReturn,
		map[string]any{"id": string(id), "props": props.Map()},
	)
	if err != nil {
		return nil, s.wrapProps("set relationship properties", props, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recordToRelationship(recs[0]), nil
}

// ---------- Lookups ----------

// NodesByName returns nodes whose name is exactly name, using the name index.
func (s *Neo4jStore) NodesByName(ctx context.Context, name, label string) ([]NodeBundle, error) {
	cypher := fmt.Sprintf("MATCH (n%s {name: $name}) %s ORDER BY n.handle",
		labelExpr(NodeLabel, label), nodeReturn)
	recs, err := s.exec.ExecuteRead(ctx, cypher, map[string]any{"name": name})
	if err != nil {
		return nil, s.wrap("nodes by name", err)
	}
	out := make([]NodeBundle, 0, len(recs))
	for _, r := range recs {
		out = append(out, *recordToNode(r))
	}
	return out, nil
}

// ScanNodes streams matching nodes from a single read transaction.
func (s *Neo4jStore) ScanNodes(ctx context.Context, label, property string) iter.Seq2[*NodeBundle, error] {
	cypher := fmt.Sprintf("MATCH (n%s)", labelExpr(NodeLabel, label))
	params := map[string]any{}
	if property != "" {
		cypher += " WHERE n[$prop] IS NOT NULL"
		params["prop"] = property
	}
	cypher += " " + nodeReturn
	seq := s.exec.Stream(ctx, cypher, params)
	return func(yield func(*NodeBundle, error) bool) {
		for rec, err := range seq {
			if err != nil {
				yield(nil, s.wrap("scan nodes", err))
				return
			}
			if !yield(recordToNode(rec), nil) {
				return
			}
		}
	}
}

// RelationshipsBetween returns relationships joining a and b.
func (s *Neo4jStore) RelationshipsBetween(ctx context.Context, a, b int64, t RelType) ([]RelationshipBundle, error) {
	cypher := "MATCH (a:Node {handle: $a})-[r]-(b:Node {handle: $b})"
	params := map[string]any{"a": a, "b": b}
	if t != "" {
		cypher += " WHERE type(r) = $type"
		params["type"] = string(t)
	}
	cypher += " WITH DISTINCT r " + relReturn + " ORDER BY id"
	recs, err := s.exec.ExecuteRead(ctx, cypher, params)
	if err != nil {
		return nil, s.wrap("relationships between", err)
	}
	out := make([]RelationshipBundle, 0, len(recs))
	for _, r := range recs {
		out = append(out, *recordToRelationship(r))
	}
	return out, nil
}

// Neighbors returns the relationships of a node with their far-end nodes.
func (s *Neo4jStore) Neighbors(ctx context.Context, handle int64, dir Direction, types ...RelType) ([]Neighbor, error) {
	var pattern string
	switch dir {
	case DirectionOutgoing:
		pattern = "(n:Node {handle: $handle})-[r]->(m:Node)"
	case DirectionIncoming:
		pattern = "(n:Node {handle: $handle})<-[r]-(m:Node)"
	case DirectionBoth:
		pattern = "(n:Node {handle: $handle})-[r]-(m:Node)"
	default:
		return nil, fmt.Errorf("neo4j: unknown direction: %s", dir)
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	recs, err := s.exec.ExecuteRead(ctx,
		"MATCH "+pattern+`
		 WHERE size($types) = 0 OR type(r) IN $types
		 RETURN elementId(r) AS id, type(r) AS type,
		 	startNode(r).handle AS start, endNode(r).handle AS end, properties(r) AS props,
		 	labels(m) AS labels, properties(m) AS nodeProps
		 ORDER BY id`,
		map[string]any{"handle": handle, "types": names},
	)
	if err != nil {
		return nil, s.wrap("neighbors", err)
	}
	out := make([]Neighbor, 0, len(recs))
	for _, r := range recs {
		m := r.Map()
		out = append(out, Neighbor{
			Relationship: *recordToRelationship(r),
			Node:         *newNodeBundle(toStrings(m["labels"]), decodeProperties(toMap(m["nodeProps"]))),
		})
	}
	return out, nil
}

// ---------- Stats ----------

// Stats counts nodes and relationships.
func (s *Neo4jStore) Stats(ctx context.Context) (*GraphStats, error) {
	nodes, err := s.exec.ExecuteRead(ctx, "MATCH (n:Node) RETURN count(n) AS count", nil)
	if err != nil {
		return nil, s.wrap("stats", err)
	}
	rels, err := s.exec.ExecuteRead(ctx, "MATCH (:Node)-[r]->(:Node) RETURN count(r) AS count", nil)
	if err != nil {
		return nil, s.wrap("stats", err)
	}
	return &GraphStats{
		NodeCount:         int(toInt64(FirstMap(nodes)["count"])),
		RelationshipCount: int(toInt64(FirstMap(rels)["count"])),
	}, nil
}

// ---------- Internal helpers ----------

// wrap annotates err with the operation, turning connectivity failures into
// ConnectionError.
func (s *Neo4jStore) wrap(op string, err error) error {
	if neo4j.IsConnectivityError(err) {
		return &ConnectionError{URI: s.uri, Err: err}
	}
	return fmt.Errorf("neo4j: %s: %w", op, err)
}

// wrapProps is wrap for writes that carry a property map; type errors
// raised by the server become BadPropertiesError.
func (s *Neo4jStore) wrapProps(op string, props Properties, err error) error {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && (neoErr.Code == "Neo.ClientError.Statement.TypeError" ||
		neoErr.Code == "Neo.ClientError.Statement.ArgumentError") {
		return &BadPropertiesError{Properties: props.Map(), Reason: neoErr.Msg}
	}
	return s.wrap(op, err)
}

func recordToNode(r Record) *NodeBundle {
	m := r.Map()
	return newNodeBundle(toStrings(m["labels"]), decodeProperties(toMap(m["props"])))
}

func recordToRelationship(r Record) *RelationshipBundle {
	m := r.Map()
	return &RelationshipBundle{
		ID:         RelationshipID(toString(m["id"])),
		Type:       RelType(toString(m["type"])),
		Start:      toInt64(m["start"]),
		End:        toInt64(m["end"]),
		Properties: decodeProperties(toMap(m["props"])),
	}
}

// labelExpr renders ":A:B" from labels, skipping empty ones. Labels are
// validated identifiers before they get here.
func labelExpr(labels ...string) string {
	var out string
	for _, l := range labels {
		if l != "" {
			out += ":" + quoteIdent(l)
		}
	}
	return out
}

func quoteIdent(s string) string {
	return "`" + s + "`"
}
