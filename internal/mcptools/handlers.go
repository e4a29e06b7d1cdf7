package mcptools

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dusk-indust/netgraph/internal/graph"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultSearchLimit = 50

// GraphService holds the graph used by the MCP tool handlers.
type GraphService struct {
	graph *graph.Graph
}

// NewGraphService creates a GraphService over g.
func NewGraphService(g *graph.Graph) *GraphService {
	return &GraphService{graph: g}
}

// modelName returns the short type name of a resolved model.
func modelName(m graph.Model) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", m), "*graph.")
}

// parseProperties converts tool arguments into properties. JSON numbers
// arrive as float64; whole numbers are stored as integers.
func parseProperties(m map[string]any) (graph.Properties, error) {
	for k, v := range m {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			m[k] = int64(f)
		}
	}
	return graph.ParseProperties(m)
}

// GetNode returns a node and the model it resolves to.
func (s *GraphService) GetNode(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input HandleInput,
) (*mcp.CallToolResult, NodeOutput, error) {
	m, err := s.graph.GetNodeModel(ctx, input.Handle)
	if err != nil {
		return nil, NodeOutput{}, fmt.Errorf("get node: %w", err)
	}
	return nil, NodeOutput{Node: nodeView(m.Bundle()), Model: modelName(m)}, nil
}

// CreateNode creates a node with a meta-type and a type label.
func (s *GraphService) CreateNode(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CreateNodeInput,
) (*mcp.CallToolResult, NodeOutput, error) {
	if input.Name == "" {
		return nil, NodeOutput{}, fmt.Errorf("name is required")
	}
	b, err := s.graph.CreateNode(ctx, input.Name, input.MetaType, input.Type, input.Handle)
	if err != nil {
		return nil, NodeOutput{}, fmt.Errorf("create node: %w", err)
	}
	return nil, NodeOutput{Node: nodeView(b), Model: modelName(s.graph.ResolveModel(b))}, nil
}

// DeleteNode deletes a node and its relationships.
func (s *GraphService) DeleteNode(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input HandleInput,
) (*mcp.CallToolResult, DeleteOutput, error) {
	ok, err := s.graph.DeleteNode(ctx, input.Handle)
	if err != nil {
		return nil, DeleteOutput{}, fmt.Errorf("delete node: %w", err)
	}
	return nil, DeleteOutput{Deleted: ok}, nil
}

// SetNodeProperties replaces or merges a node's properties.
func (s *GraphService) SetNodeProperties(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SetNodePropertiesInput,
) (*mcp.CallToolResult, NodeOutput, error) {
	props, err := parseProperties(input.Properties)
	if err != nil {
		return nil, NodeOutput{}, err
	}
	var b *graph.NodeBundle
	if input.Merge {
		b, err = s.graph.UpdateNodeProperties(ctx, input.Handle, props)
	} else {
		b, err = s.graph.SetNodeProperties(ctx, input.Handle, props)
	}
	if err != nil {
		return nil, NodeOutput{}, fmt.Errorf("set node properties: %w", err)
	}
	return nil, NodeOutput{Node: nodeView(b), Model: modelName(s.graph.ResolveModel(b))}, nil
}

// SearchNodes finds nodes whose property values contain a substring.
func (s *GraphService) SearchNodes(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchNodesInput,
) (*mcp.CallToolResult, SearchNodesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	out := SearchNodesOutput{Nodes: []NodeView{}}
	for b, err := range s.graph.GetNodesByValue(ctx, input.Value, input.Property, input.Type) {
		if err != nil {
			return nil, SearchNodesOutput{}, fmt.Errorf("search nodes: %w", err)
		}
		if len(out.Nodes) == limit {
			out.Truncated = true
			break
		}
		out.Nodes = append(out.Nodes, nodeView(b))
	}
	out.Total = len(out.Nodes)
	return nil, out, nil
}

// GetUniqueNode returns the single node with a name and type label.
func (s *GraphService) GetUniqueNode(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetUniqueNodeInput,
) (*mcp.CallToolResult, GetUniqueNodeOutput, error) {
	m, err := s.graph.GetUniqueNodeByName(ctx, input.Name, input.Type)
	if err != nil {
		return nil, GetUniqueNodeOutput{}, fmt.Errorf("get unique node: %w", err)
	}
	if m == nil {
		return nil, GetUniqueNodeOutput{Node: NodeView{Labels: []string{}, Properties: map[string]any{}}}, nil
	}
	return nil, GetUniqueNodeOutput{Found: true, Node: nodeView(m.Bundle()), Model: modelName(m)}, nil
}

// CreateRelationship creates a relationship if the legality table allows
// it for the endpoints' meta-types.
func (s *GraphService) CreateRelationship(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CreateRelationshipInput,
) (*mcp.CallToolResult, RelationshipOutput, error) {
	props, err := parseProperties(input.Properties)
	if err != nil {
		return nil, RelationshipOutput{}, err
	}
	r, err := s.graph.CreateRelationshipWithProperties(ctx, input.From, input.To, graph.RelType(input.Type), props)
	if err != nil {
		return nil, RelationshipOutput{}, fmt.Errorf("create relationship: %w", err)
	}
	return s.relationshipOutput(ctx, r.ID)
}

// GetRelationship returns a relationship with both endpoints.
func (s *GraphService) GetRelationship(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RelationshipIDInput,
) (*mcp.CallToolResult, RelationshipOutput, error) {
	return s.relationshipOutput(ctx, graph.RelationshipID(input.ID))
}

func (s *GraphService) relationshipOutput(ctx context.Context, id graph.RelationshipID) (*mcp.CallToolResult, RelationshipOutput, error) {
	rm, err := s.graph.GetRelationshipModel(ctx, id)
	if err != nil {
		return nil, RelationshipOutput{}, fmt.Errorf("get relationship: %w", err)
	}
	return nil, RelationshipOutput{
		Relationship: relationshipView(rm.Relationship),
		Start:        nodeView(rm.Start.Bundle()),
		End:          nodeView(rm.End.Bundle()),
	}, nil
}

// DeleteRelationship deletes a single relationship.
func (s *GraphService) DeleteRelationship(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RelationshipIDInput,
) (*mcp.CallToolResult, DeleteOutput, error) {
	ok, err := s.graph.DeleteRelationship(ctx, graph.RelationshipID(input.ID))
	if err != nil {
		return nil, DeleteOutput{}, fmt.Errorf("delete relationship: %w", err)
	}
	return nil, DeleteOutput{Deleted: ok}, nil
}

// CheckLegal consults the legality table without touching the graph.
func (s *GraphService) CheckLegal(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input CheckLegalInput,
) (*mcp.CallToolResult, CheckLegalOutput, error) {
	from, err := graph.ParseMetaType(input.FromMeta)
	if err != nil {
		return nil, CheckLegalOutput{}, err
	}
	to, err := graph.ParseMetaType(input.ToMeta)
	if err != nil {
		return nil, CheckLegalOutput{}, err
	}

	out := CheckLegalOutput{LegalTypes: []string{}}
	for _, t := range graph.LegalTypes(from, to) {
		out.LegalTypes = append(out.LegalTypes, string(t))
	}
	if input.Type == "" {
		out.Legal = len(out.LegalTypes) > 0
	} else {
		out.Legal = graph.CheckLegal(from, to, graph.RelType(input.Type))
	}
	return nil, out, nil
}

// GraphStats returns node and relationship counts.
func (s *GraphService) GraphStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ GraphStatsInput,
) (*mcp.CallToolResult, GraphStatsOutput, error) {
	stats, err := s.graph.Stats(ctx)
	if err != nil {
		return nil, GraphStatsOutput{}, fmt.Errorf("stats: %w", err)
	}
	return nil, GraphStatsOutput{Stats: *stats}, nil
}
