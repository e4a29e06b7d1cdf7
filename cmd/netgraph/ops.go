package main

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/netgraph/internal/export"
	"github.com/dusk-indust/netgraph/internal/graph"
	"github.com/dusk-indust/netgraph/internal/importer"
	"github.com/dusk-indust/netgraph/internal/mcptools"
	"github.com/spf13/cobra"
)

func newBootstrapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Provision the schema constraints and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			results, err := g.InitSchema(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Fprintf(a.out, "  %s: %s\n", r.Object, r.Outcome)
			}
			return nil
		},
	}
}

func newLegalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "legal <from-meta> <to-meta> [type]",
		Short: "Show the relationship types legal between two meta-types",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(_ *cobra.Command, args []string) error {
			from, err := graph.ParseMetaType(args[0])
			if err != nil {
				return err
			}
			to, err := graph.ParseMetaType(args[1])
			if err != nil {
				return err
			}
			if len(args) == 3 {
				if !graph.CheckLegal(from, to, graph.RelType(args[2])) {
					return fmt.Errorf("%s -[%s]-> %s: %w", from, args[2], to, graph.ErrIllegalRelationship)
				}
				_, err := fmt.Fprintf(a.out, "%s -[%s]-> %s is legal\n", from, args[2], to)
				return err
			}
			types := graph.LegalTypes(from, to)
			if len(types) == 0 {
				_, err := fmt.Fprintf(a.out, "no relationship is legal from %s to %s\n", from, to)
				return err
			}
			names := make([]string, len(types))
			for i, t := range types {
				names[i] = string(t)
			}
			_, err = fmt.Fprintln(a.out, strings.Join(names, "\n"))
			return err
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load an inventory document (YAML or JSON) into the graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := importer.LoadFile(args[0])
			if err != nil {
				return err
			}
			g, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if workers == 0 {
				workers = a.cfg.Import.Workers
			}
			im := importer.New(g,
				importer.WithWorkers(workers),
				importer.WithLogger(a.logger),
				importer.WithProgress(func(ev importer.ProgressEvent) {
					fmt.Fprintln(a.errOut, importer.FormatProgress(ev))
				}),
			)
			rep, err := im.Import(cmd.Context(), doc)
			if err != nil {
				return err
			}
			if err := a.printJSON(rep); err != nil {
				return err
			}
			for _, e := range rep.Errors {
				fmt.Fprintf(a.errOut, "  %v\n", e)
			}
			if rep.Failed() {
				return fmt.Errorf("%d records failed", len(rep.Errors))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "nodes written in parallel (default from config)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var depth int
	var format string
	cmd := &cobra.Command{
		Use:   "export <handle>",
		Short: "Render the neighbourhood of a node as Mermaid or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := parseHandle(args[0])
			if err != nil {
				return err
			}
			g, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			switch format {
			case "mermaid":
				out, err := export.GenerateMermaid(cmd.Context(), g, h, depth)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(a.out, out)
				return err
			case "json":
				out, err := export.ExportJSON(cmd.Context(), g, h, depth)
				if err != nil {
					return err
				}
				_, err = a.out.Write(append(out, '\n'))
				return err
			default:
				return fmt.Errorf("unknown format %q (want mermaid or json)", format)
			}
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 2, "hops to walk from the node")
	cmd.Flags().StringVar(&format, "format", "mermaid", "output format: mermaid or json")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print node and relationship counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			s, err := g.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(s)
		},
	}
}

func newServeMCPCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Run the MCP server on stdio, or on streamable HTTP with --http",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			server := mcptools.NewGraphMCPServer(mcptools.NewGraphService(g))
			if addr == "" {
				addr = a.cfg.MCP.Addr
			}
			if addr == "" {
				return mcptools.RunStdio(cmd.Context(), server)
			}
			return mcptools.RunHTTP(cmd.Context(), server, addr, a.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "serve streamable HTTP on this address instead of stdio (default from mcp.addr)")
	return cmd
}
