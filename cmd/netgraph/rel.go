package main

import (
	"fmt"

	"github.com/dusk-indust/netgraph/internal/graph"
	"github.com/spf13/cobra"
)

func newRelCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rel",
		Aliases: []string{"relationship"},
		Short:   "Create, read and delete relationships",
	}
	cmd.AddCommand(
		newRelCreateCmd(a),
		newRelGetCmd(a),
		newRelDeleteCmd(a),
		newRelBetweenCmd(a),
	)
	return cmd
}

func newRelCreateCmd(a *app) *cobra.Command {
	var props string
	cmd := &cobra.Command{
		Use:   "create <from> <to> <type>",
		Short: "Create a relationship if the legality table allows it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseHandle(args[0])
			if err != nil {
				return err
			}
			to, err := parseHandle(args[1])
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
			r, err := g.CreateRelationshipWithProperties(cmd.Context(), from, to, graph.RelType(args[2]), p)
			if err != nil {
				return err
			}
			return a.printJSON(r)
		},
	}
	cmd.Flags().StringVar(&props, "props", "", "relationship properties as a JSON object")
	return cmd
}

func newRelGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a relationship with both endpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			rm, err := g.GetRelationshipModel(cmd.Context(), graph.RelationshipID(args[0]))
			if err != nil {
				return err
			}
			return a.printJSON(struct {
				Relationship *graph.RelationshipBundle `json:"relationship"`
				Start        nodeOutput                `json:"start"`
				End          nodeOutput                `json:"end"`
			}{rm.Relationship, modelOutput(rm.Start), modelOutput(rm.End)})
		},
	}
}

func newRelDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a relationship",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := g.DeleteRelationship(cmd.Context(), graph.RelationshipID(args[0])); err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "deleted relationship %s\n", args[0])
			return err
		},
	}
}

func newRelBetweenCmd(a *app) *cobra.Command {
	var relType string
	cmd := &cobra.Command{
		Use:   "between <a> <b>",
		Short: "List relationships joining two nodes in either direction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := parseHandle(args[0])
			if err != nil {
				return err
			}
			y, err := parseHandle(args[1])
			if err != nil {
				return err
			}
			g, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			rels, err := g.GetRelationships(cmd.Context(), x, y, graph.RelType(relType))
			if err != nil {
				return err
			}
			if rels == nil {
				rels = []graph.RelationshipBundle{}
			}
			return a.printJSON(rels)
		},
	}
	cmd.Flags().StringVar(&relType, "type", "", "only list relationships of this type")
	return cmd
}
