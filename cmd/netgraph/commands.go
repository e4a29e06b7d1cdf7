package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dusk-indust/netgraph/internal/graph"
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "netgraph",
		Short:         "Manage a network inventory graph",
		Long:          "netgraph stores network inventory as a property graph of Physical, Logical, Relation and Location nodes whose relationships are checked against a fixed legality table.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.configDir, "config-dir", ".", "directory holding netgraph.yml")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "store backend override (neo4j, kuzu, memory)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newBootstrapCmd(a),
		newNodeCmd(a),
		newRelCmd(a),
		newLegalCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newStatsCmd(a),
		newServeMCPCmd(a),
		newVersionCmd(a),
	)
	return root
}

func parseHandle(s string) (int64, error) {
	h, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid handle %q", s)
	}
	return h, nil
}

// parseProps decodes a JSON object given on the command line.
func parseProps(s string) (graph.Properties, error) {
	if s == "" {
		return graph.Properties{}, nil
	}
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("--props must be a JSON object: %w", err)
	}
	return graph.ParseProperties(m)
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintln(a.out, version)
			return err
		},
	}
}
