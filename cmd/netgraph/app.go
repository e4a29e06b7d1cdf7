package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dusk-indust/netgraph/internal/config"
	"github.com/dusk-indust/netgraph/internal/graph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// app carries the state shared by every command: configuration, logger and
// the lazily opened graph.
type app struct {
	configDir string
	backend   string
	logLevel  string

	out    io.Writer
	errOut io.Writer

	cfg     *config.Config
	logger  *slog.Logger
	metrics *graph.Metrics
	graph   *graph.Graph

	ownsGraph bool
	closers   []func(context.Context) error
}

// setup loads configuration and starts the logging, tracing and metrics
// layers. The store is not opened until a command asks for it.
func (a *app) setup() error {
	if a.cfg == nil {
		cfg, err := config.Load(a.configDir)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.backend != "" || a.logLevel != "" {
		if a.backend != "" {
			a.cfg.Store.Backend = a.backend
		}
		if a.logLevel != "" {
			a.cfg.Log.Level = strings.ToLower(a.logLevel)
		}
		if err := config.Validate(a.cfg); err != nil {
			return err
		}
	}

	a.logger = newLogger(a.errOut, a.cfg.Log)
	slog.SetDefault(a.logger)

	if a.cfg.Tracing.Stdout {
		if err := a.startTracing(); err != nil {
			return err
		}
	}
	if a.cfg.Metrics.Addr != "" {
		a.startMetrics()
	}
	return nil
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (a *app) startTracing() error {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(a.errOut), stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	a.closers = append(a.closers, tp.Shutdown)
	return nil
}

func (a *app) startMetrics() {
	reg := prometheus.NewRegistry()
	a.metrics = graph.NewMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server", "error", err)
		}
	}()
	a.logger.Debug("metrics server listening", "addr", srv.Addr)
	a.closers = append(a.closers, srv.Shutdown)
}

// open returns the graph, connecting to the configured backend on first use.
func (a *app) open(ctx context.Context) (*graph.Graph, error) {
	if a.graph != nil {
		return a.graph, nil
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	opts := []graph.Option{graph.WithLogger(a.logger)}
	if a.metrics != nil {
		opts = append(opts, graph.WithMetrics(a.metrics))
	}
	g := graph.New(store, opts...)

	// OpenNeo4j provisions the schema itself.
	if a.cfg.Store.Backend != "neo4j" {
		if _, err := g.InitSchema(ctx); err != nil {
			_ = g.Close()
			return nil, err
		}
	}
	a.graph = g
	a.ownsGraph = true
	return g, nil
}

func (a *app) openStore(ctx context.Context) (graph.Store, error) {
	switch a.cfg.Store.Backend {
	case "neo4j":
		n := a.cfg.Neo4j
		s, err := graph.OpenNeo4j(ctx, graph.Neo4jConfig{
			URI:                     n.URI,
			Username:                n.Username,
			Password:                n.Password,
			Database:                n.Database,
			MaxConnectionPoolSize:   n.MaxConnectionPoolSize,
			ConnectionTimeout:       n.ConnectionTimeout,
			MaxTransactionRetryTime: n.MaxTransactionRetryTime,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "kuzu":
		return openKuzu(a.cfg.Kuzu.Path)
	default:
		return graph.NewMemStore(), nil
	}
}

// teardown closes the graph and stops the layers started by setup.
func (a *app) teardown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if a.graph != nil && a.ownsGraph {
		errs = append(errs, a.graph.Close())
		a.graph = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = a.out.Write(append(data, '\n'))
	return err
}
