package main

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/netgraph/internal/graph"
	"github.com/spf13/cobra"
)

// nodeOutput is the printed form of a node and its resolved model.
type nodeOutput struct {
	Node  *graph.NodeBundle `json:"node"`
	Model string            `json:"model"`
}

func modelOutput(m graph.Model) nodeOutput {
	return nodeOutput{Node: m.Bundle(), Model: strings.TrimPrefix(fmt.Sprintf("%T", m), "*graph.")}
}

func newNodeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Create, read, update and delete nodes",
	}
	cmd.AddCommand(
		newNodeGetCmd(a),
		newNodeCreateCmd(a),
		newNodeDeleteCmd(a),
		newNodeSetCmd(a),
		newNodeSearchCmd(a),
		newNodeUniqueCmd(a),
	)
	return cmd
}

func newNodeGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <handle>",
		Short: "Print a node and the model it resolves to",
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
			m, err := g.GetNodeModel(cmd.Context(), h)
			if err != nil {
				return err
			}
			return a.printJSON(modelOutput(m))
		},
	}
}

func newNodeCreateCmd(a *app) *cobra.Command {
	var meta, typeLabel, props string
	cmd := &cobra.Command{
		Use:   "create <handle> <name>",
		Short: "Create a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := parseHandle(args[0])
			if err != nil {
				return err
			}
			p, err := parseProps(props)
			if err != nil {
				return err
			}
			g, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			n, err := g.CreateNode(cmd.Context(), args[1], meta, typeLabel, h)
			if err != nil {
				return err
			}
			if len(p) > 0 {
				if n, err = g.UpdateNodeProperties(cmd.Context(), h, p); err != nil {
					return err
				}
			}
			return a.printJSON(modelOutput(g.ResolveModel(n)))
		},
	}
	cmd.Flags().StringVar(&meta, "meta", "", "meta-type: Physical, Logical, Relation or Location")
	cmd.Flags().StringVar(&typeLabel, "type", "", "type label, e.g. Router")
	cmd.Flags().StringVar(&props, "props", "", "initial properties as a JSON object")
	_ = cmd.MarkFlagRequired("meta")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newNodeDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <handle>",
		Short: "Delete a node and its relationships",
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
			if _, err := g.DeleteNode(cmd.Context(), h); err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "deleted node %d\n", h)
			return err
		},
	}
}

func newNodeSetCmd(a *app) *cobra.Command {
	var props string
	var merge bool
	cmd := &cobra.Command{
		Use:   "set <handle>",
		Short: "Replace a node's properties, or merge into them with --merge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := parseHandle(args[0])
			if err != nil {
				return err
			}
			p, err := parseProps(props)
			if err != nil {
				return err
			}
			g, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			var n *graph.NodeBundle
			if merge {
				n, err = g.UpdateNodeProperties(cmd.Context(), h, p)
			} else {
				n, err = g.SetNodeProperties(cmd.Context(), h, p)
			}
			if err != nil {
				return err
			}
			return a.printJSON(n)
		},
	}
	cmd.Flags().StringVar(&props, "props", "", "properties as a JSON object")
	cmd.Flags().BoolVar(&merge, "merge", false, "merge instead of replace; empty values remove keys")
	_ = cmd.MarkFlagRequired("props")
	return cmd
}

func newNodeSearchCmd(a *app) *cobra.Command {
	var property, typeLabel string
	var limit int
	cmd := &cobra.Command{
		Use:   "search <value>",
		Short: "Find nodes with a property value containing a substring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			found := []*graph.NodeBundle{}
			for n, err := range g.GetNodesByValue(cmd.Context(), args[0], property, typeLabel) {
				if err != nil {
					return err
				}
				found = append(found, n)
				if limit > 0 && len(found) == limit {
					break
				}
			}
			return a.printJSON(found)
		},
	}
	cmd.Flags().StringVar(&property, "property", "", "only compare this property")
	cmd.Flags().StringVar(&typeLabel, "type", "", "only scan nodes with this type label")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of results (0 for no limit)")
	return cmd
}

func newNodeUniqueCmd(a *app) *cobra.Command {
	var typeLabel string
	cmd := &cobra.Command{
		Use:   "unique <name>",
		Short: "Print the single node with a name and type label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			m, err := g.GetUniqueNodeByName(cmd.Context(), args[0], typeLabel)
			if err != nil {
				return err
			}
			if m == nil {
				return fmt.Errorf("no %s named %q: %w", typeLabel, args[0], graph.ErrNotFound)
			}
			return a.printJSON(modelOutput(m))
		},
	}
	cmd.Flags().StringVar(&typeLabel, "type", "", "type label, e.g. Router")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
