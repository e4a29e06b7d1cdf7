// Package importer loads inventory documents into the graph. It is the
// reference consumer of the graph core: nodes are created or updated by
// handle or by unique name, and every relationship goes through the
// legality check.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dusk-indust/netgraph/internal/graph"
	"golang.org/x/sync/errgroup"
)

// Report summarizes an import run.
type Report struct {
	NodesCreated         int           `json:"nodesCreated"`
	NodesUpdated         int           `json:"nodesUpdated"`
	RelationshipsCreated int           `json:"relationshipsCreated"`
	RelationshipsSkipped int           `json:"relationshipsSkipped"`
	Errors               []RecordError `json:"errors,omitempty"`
}

// Failed reports whether any record failed.
func (r *Report) Failed() bool { return len(r.Errors) > 0 }

// RecordError ties a failure to the record that caused it.
type RecordError struct {
	Kind  string `json:"kind"`
	Index int    `json:"index"`
	Err   error  `json:"-"`
}

func (e RecordError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Kind, e.Index, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// Importer writes documents into a Graph.
type Importer struct {
	graph      *graph.Graph
	workers    int
	logger     *slog.Logger
	onProgress func(ProgressEvent)
}

// Option configures an Importer.
type Option func(*Importer)

// WithWorkers bounds the number of nodes written in parallel.
func WithWorkers(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.workers = n
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

// WithProgress registers a callback invoked when a phase starts, completes
// or fails.
func WithProgress(fn func(ProgressEvent)) Option {
	return func(im *Importer) { im.onProgress = fn }
}

// New returns an Importer writing into g.
func New(g *graph.Graph, opts ...Option) *Importer {
	im := &Importer{graph: g, workers: 4, logger: slog.Default()}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import writes doc into the graph. Record failures are collected in the
// report and do not stop the run; a lost connection or a cancelled context
// does, and is returned as the error.
func (im *Importer) Import(ctx context.Context, doc *Document) (*Report, error) {
	rep := &Report{}
	var mu sync.Mutex
	fail := func(kind string, i int, err error) {
		mu.Lock()
		rep.Errors = append(rep.Errors, RecordError{Kind: kind, Index: i, Err: err})
		mu.Unlock()
		im.logger.Warn("import record failed", "kind", kind, "index", i, "error", err)
	}

	im.emit(ProgressEvent{Phase: PhaseNodes, Status: ProgressWorking, Total: len(doc.Nodes)})
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for i, rec := range doc.Nodes {
		g.Go(func() error {
			created, err := im.importNode(gctx, rec)
			if err != nil {
				if fatal(err) {
					return err
				}
				fail("node", i, err)
				return nil
			}
			mu.Lock()
			if created {
				rep.NodesCreated++
			} else {
				rep.NodesUpdated++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		im.emit(ProgressEvent{Phase: PhaseNodes, Status: ProgressFailed, Message: err.Error()})
		return rep, err
	}
	im.emit(ProgressEvent{Phase: PhaseNodes, Status: ProgressComplete, Done: len(doc.Nodes), Total: len(doc.Nodes)})

	// Relationships run in document order so that skips are deterministic.
	im.emit(ProgressEvent{Phase: PhaseRelationships, Status: ProgressWorking, Total: len(doc.Relationships)})
	for i, rec := range doc.Relationships {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		created, err := im.importRelationship(ctx, rec)
		switch {
		case err != nil && fatal(err):
			im.emit(ProgressEvent{Phase: PhaseRelationships, Status: ProgressFailed, Message: err.Error()})
			return rep, err
		case err != nil:
			fail("relationship", i, err)
		case created:
			rep.RelationshipsCreated++
		default:
			rep.RelationshipsSkipped++
		}
	}
	im.emit(ProgressEvent{Phase: PhaseRelationships, Status: ProgressComplete,
		Done: len(doc.Relationships), Total: len(doc.Relationships)})

	slices.SortFunc(rep.Errors, func(a, b RecordError) int {
		if a.Kind != b.Kind {
			if a.Kind == "node" {
				return -1
			}
			return 1
		}
		return a.Index - b.Index
	})
	im.logger.Info("import finished",
		"nodes_created", rep.NodesCreated, "nodes_updated", rep.NodesUpdated,
		"relationships_created", rep.RelationshipsCreated,
		"relationships_skipped", rep.RelationshipsSkipped,
		"errors", len(rep.Errors))
	return rep, nil
}

func fatal(err error) bool {
	return errors.Is(err, graph.ErrConnection) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// importNode creates the node or merges its properties into the existing
// one. It reports whether the node was created.
func (im *Importer) importNode(ctx context.Context, rec NodeRecord) (bool, error) {
	if err := validate.Struct(rec); err != nil {
		return false, err
	}
	props, err := graph.ParseProperties(rec.Properties)
	if err != nil {
		return false, err
	}

	var existing *graph.NodeBundle
	if rec.Unique {
		m, err := im.graph.GetUniqueNodeByName(ctx, rec.Name, rec.Type)
		if err != nil {
			return false, err
		}
		if m != nil {
			if m.Handle() != rec.Handle {
				return false, &graph.UniqueNodeError{Name: rec.Name, Type: rec.Type, Handle: m.Handle()}
			}
			existing = m.Bundle()
		}
	} else {
		existing, err = im.graph.GetNode(ctx, rec.Handle)
		if err != nil && !graph.IsNotFound(err) {
			return false, err
		}
	}

	if existing == nil {
		if _, err := im.graph.CreateNode(ctx, rec.Name, rec.Meta, rec.Type, rec.Handle); err != nil {
			return false, err
		}
		if len(props) > 0 {
			if _, err := im.graph.UpdateNodeProperties(ctx, rec.Handle, props); err != nil {
				return true, err
			}
		}
		return true, nil
	}

	if string(existing.MetaType) != rec.Meta || !existing.HasLabel(rec.Type) {
		return false, fmt.Errorf("node %d is %s/%v, not %s/%s",
			rec.Handle, existing.MetaType, existing.TypeLabels(), rec.Meta, rec.Type)
	}
	if existing.Name() != rec.Name {
		props[graph.PropName] = graph.StringValue(rec.Name)
	}
	if len(props) > 0 {
		if _, err := im.graph.UpdateNodeProperties(ctx, rec.Handle, props); err != nil {
			return false, err
		}
	}
	return false, nil
}

// importRelationship creates the relationship unless one of the same type
// already runs between the endpoints in the same direction. It reports
// whether a relationship was created.
func (im *Importer) importRelationship(ctx context.Context, rec RelationshipRecord) (bool, error) {
	if err := validate.Struct(rec); err != nil {
		return false, err
	}
	props, err := graph.ParseProperties(rec.Properties)
	if err != nil {
		return false, err
	}
	from, err := im.resolve(ctx, rec.From)
	if err != nil {
		return false, fmt.Errorf("from: %w", err)
	}
	to, err := im.resolve(ctx, rec.To)
	if err != nil {
		return false, fmt.Errorf("to: %w", err)
	}

	t := graph.RelType(rec.Type)
	existing, err := im.graph.GetRelationships(ctx, from, to, t)
	if err != nil {
		return false, err
	}
	for _, r := range existing {
		if r.Start == from && r.End == to {
			return false, nil
		}
	}
	if _, err := im.graph.CreateRelationshipWithProperties(ctx, from, to, t, props); err != nil {
		return false, err
	}
	return true, nil
}

func (im *Importer) resolve(ctx context.Context, ref Ref) (int64, error) {
	if !ref.valid() {
		return 0, fmt.Errorf("reference needs a handle or a name and type")
	}
	if ref.Handle != 0 {
		return ref.Handle, nil
	}
	m, err := im.graph.GetUniqueNodeByName(ctx, ref.Name, ref.Type)
	if err != nil {
		return 0, err
	}
	if m == nil {
		return 0, fmt.Errorf("no %s named %q: %w", ref.Type, ref.Name, graph.ErrNotFound)
	}
	return m.Handle(), nil
}

func (im *Importer) emit(ev ProgressEvent) {
	if im.onProgress != nil {
		im.onProgress(ev)
	}
}
