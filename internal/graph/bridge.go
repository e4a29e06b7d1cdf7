package graph

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("netgraph.graph")

// Record is one result row: column names and values in column order.
type Record struct {
	Keys   []string
	Values []any
}

// Get returns the value of the named column.
func (r Record) Get(key string) (any, bool) {
	for i, k := range r.Keys {
		if k == key && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map flattens the record into a column-to-value map.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.Keys))
	for i, k := range r.Keys {
		if i < len(r.Values) {
			m[k] = r.Values[i]
		}
	}
	return m
}

// Executor runs parameterized statements against a graph database. Reads run
// in read transactions and never mutate; each write is atomic.
type Executor interface {
	ExecuteRead(ctx context.Context, query string, params map[string]any) ([]Record, error)
	ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]Record, error)
	// Stream yields rows lazily from a single read transaction. The
	// sequence can be ranged over once.
	Stream(ctx context.Context, query string, params map[string]any) iter.Seq2[Record, error]
	Close(ctx context.Context) error
}

// FirstMap returns the first record as a map, or an empty map when there are
// no records.
func FirstMap(records []Record) map[string]any {
	if len(records) == 0 {
		return map[string]any{}
	}
	return records[0].Map()
}

// Maps flattens every record, preserving order.
func Maps(records []Record) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		out = append(out, r.Map())
	}
	return out
}

// StreamMaps adapts a record stream into a stream of maps.
func StreamMaps(seq iter.Seq2[Record, error]) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		for rec, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(rec.Map(), nil) {
				return
			}
		}
	}
}

// Session is the Executor backed by a Neo4j driver. A driver session is
// opened per call; the driver owns connection pooling.
type Session struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ Executor = (*Session)(nil)

// NewSession wraps a connected driver. An empty database selects the
// server default.
func NewSession(driver neo4j.DriverWithContext, database string) *Session {
	return &Session{driver: driver, database: database}
}

func (s *Session) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   mode,
	})
}

// ExecuteRead runs query in a managed read transaction.
func (s *Session) ExecuteRead(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	ctx, span := startSpan(ctx, "neo4j.read", query)
	defer span.End()

	sess := s.session(ctx, neo4j.AccessModeRead)
	defer sess.Close(ctx)

	out, err := sess.ExecuteRead(ctx, collect(ctx, query, params))
	if err != nil {
		return nil, endSpan(span, err)
	}
	return out.([]Record), nil
}

// ExecuteWrite runs query in a managed write transaction.
func (s *Session) ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	ctx, span := startSpan(ctx, "neo4j.write", query)
	defer span.End()

	sess := s.session(ctx, neo4j.AccessModeWrite)
	defer sess.Close(ctx)

	out, err := sess.ExecuteWrite(ctx, collect(ctx, query, params))
	if err != nil {
		return nil, endSpan(span, err)
	}
	return out.([]Record), nil
}

func collect(ctx context.Context, query string, params map[string]any) neo4j.ManagedTransactionWork {
	return func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Record, 0, len(recs))
		for _, r := range recs {
			out = append(out, Record{Keys: r.Keys, Values: r.Values})
		}
		return out, nil
	}
}

// Stream opens an explicit read transaction and yields rows as the cursor
// advances. The transaction is closed when the range ends, early exit
// included. Ranging a second time yields ErrStreamConsumed.
func (s *Session) Stream(ctx context.Context, query string, params map[string]any) iter.Seq2[Record, error] {
	var used atomic.Bool
	return func(yield func(Record, error) bool) {
		if used.Swap(true) {
			yield(Record{}, ErrStreamConsumed)
			return
		}
		ctx, span := startSpan(ctx, "neo4j.stream", query)
		defer span.End()

		sess := s.session(ctx, neo4j.AccessModeRead)
		defer sess.Close(ctx)

		tx, err := sess.BeginTransaction(ctx)
		if err != nil {
			yield(Record{}, endSpan(span, err))
			return
		}
		defer tx.Close(ctx)

		res, err := tx.Run(ctx, query, params)
		if err != nil {
			yield(Record{}, endSpan(span, err))
			return
		}
		rows := 0
		for res.Next(ctx) {
			r := res.Record()
			rows++
			if !yield(Record{Keys: r.Keys, Values: r.Values}, nil) {
				return
			}
		}
		span.SetAttributes(attribute.Int("db.rows", rows))
		if err := res.Err(); err != nil {
			yield(Record{}, endSpan(span, err))
		}
	}
}

// Close closes the underlying driver.
func (s *Session) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func startSpan(ctx context.Context, name, query string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "neo4j"),
			attribute.String("db.query.text", query),
		),
	)
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
