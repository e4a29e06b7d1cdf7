package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/dusk-indust/netgraph/internal/graph"
)

// GenerateMermaid produces a Mermaid flowchart of the subgraph around
// handle. Nodes are grouped by meta-type; relationships become labelled
// arrows.
func GenerateMermaid(ctx context.Context, g *graph.Graph, handle int64, depth int) (string, error) {
	sg, err := Collect(ctx, g, handle, depth)
	if err != nil {
		return "", err
	}
	return renderMermaid(sg), nil
}

func renderMermaid(sg *Subgraph) string {
	byMeta := make(map[graph.MetaType][]graph.NodeBundle)
	for _, n := range sg.Nodes {
		byMeta[n.MetaType] = append(byMeta[n.MetaType], n)
	}

	var sb strings.Builder
	sb.WriteString("graph LR\n")

	// Emit meta-type subgraphs in a fixed order.
	for _, meta := range graph.MetaTypes {
		nodes := byMeta[meta]
		if len(nodes) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("  subgraph %s\n", meta))
		for _, n := range nodes {
			sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", nodeID(n.Handle()), nodeLabel(n)))
		}
		sb.WriteString("  end\n")
	}
	for _, n := range byMeta[""] {
		sb.WriteString(fmt.Sprintf("  %s[\"%s\"]\n", nodeID(n.Handle()), nodeLabel(n)))
	}

	for _, r := range sg.Relationships {
		sb.WriteString(fmt.Sprintf("  %s -->|%s| %s\n", nodeID(r.Start), r.Type, nodeID(r.End)))
	}

	sb.WriteString(fmt.Sprintf("  style %s stroke-width:3px\n", nodeID(sg.Root)))
	return sb.String()
}

// nodeID returns a Mermaid-safe identifier for a handle.
func nodeID(handle int64) string {
	if handle < 0 {
		return fmt.Sprintf("Nm%d", -handle)
	}
	return fmt.Sprintf("N%d", handle)
}

func nodeLabel(n graph.NodeBundle) string {
	label := escape(n.Name())
	if types := n.TypeLabels(); len(types) > 0 {
		label += "<br/><i>" + strings.Join(types, ", ") + "</i>"
	}
	return label
}

// escape replaces characters that would end a quoted Mermaid label.
func escape(s string) string {
	return strings.NewReplacer(`"`, "#quot;", "<", "#lt;", ">", "#gt;").Replace(s)
}
