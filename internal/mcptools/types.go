package mcptools

import "github.com/dusk-indust/netgraph/internal/graph"

// --- MCP Tool Types ---
// These structs define the JSON schema for each MCP tool's input and output.
// The MCP Go SDK auto-generates JSON schemas from struct tags. Property maps
// are plain map[string]any so that the generated schema matches the wire form.

// NodeView is the tool-facing form of a node.
type NodeView struct {
	Handle     int64          `json:"handle"`
	Name       string         `json:"name"`
	MetaType   string         `json:"metaType"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// RelationshipView is the tool-facing form of a relationship.
type RelationshipView struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Start      int64          `json:"start"`
	End        int64          `json:"end"`
	Properties map[string]any `json:"properties"`
}

func nodeView(b *graph.NodeBundle) NodeView {
	return NodeView{
		Handle:     b.Handle(),
		Name:       b.Name(),
		MetaType:   string(b.MetaType),
		Labels:     append([]string{}, b.Labels...),
		Properties: b.Properties.Map(),
	}
}

func relationshipView(r *graph.RelationshipBundle) RelationshipView {
	return RelationshipView{
		ID:         string(r.ID),
		Type:       string(r.Type),
		Start:      r.Start,
		End:        r.End,
		Properties: r.Properties.Map(),
	}
}

// HandleInput addresses a node by handle.
type HandleInput struct {
	Handle int64 `json:"handle" jsonschema:"the node's integer handle"`
}

// NodeOutput is a node with the name of the model it resolves to.
type NodeOutput struct {
	Node  NodeView `json:"node"`
	Model string   `json:"model"`
}

// CreateNodeInput is the input for the create_node MCP tool.
type CreateNodeInput struct {
	Handle   int64  `json:"handle" jsonschema:"unique integer handle for the new node"`
	Name     string `json:"name" jsonschema:"display name"`
	MetaType string `json:"metaType" jsonschema:"one of Physical, Logical, Relation, Location"`
	Type     string `json:"type" jsonschema:"type label such as Router, Port, Site, Customer"`
}

// DeleteOutput reports whether something was deleted.
type DeleteOutput struct {
	Deleted bool `json:"deleted"`
}

// SetNodePropertiesInput is the input for the set_node_properties MCP tool.
type SetNodePropertiesInput struct {
	Handle     int64          `json:"handle" jsonschema:"the node's integer handle"`
	Properties map[string]any `json:"properties" jsonschema:"property map; values are strings, numbers, booleans or string lists"`
	Merge      bool           `json:"merge,omitempty" jsonschema:"merge into the existing map instead of replacing it; empty values remove keys"`
}

// SearchNodesInput is the input for the search_nodes MCP tool.
type SearchNodesInput struct {
	Value    string `json:"value" jsonschema:"case-insensitive substring to look for"`
	Property string `json:"property,omitempty" jsonschema:"restrict the match to one property (default: any property)"`
	Type     string `json:"type,omitempty" jsonschema:"restrict the search to nodes with this type label"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results (default: 50)"`
}

// SearchNodesOutput is the result of the search_nodes MCP tool.
type SearchNodesOutput struct {
	Nodes     []NodeView `json:"nodes"`
	Total     int        `json:"total"`
	Truncated bool       `json:"truncated"`
}

// GetUniqueNodeInput is the input for the get_unique_node MCP tool.
type GetUniqueNodeInput struct {
	Name string `json:"name" jsonschema:"exact node name"`
	Type string `json:"type" jsonschema:"type label"`
}

// GetUniqueNodeOutput is the result of the get_unique_node MCP tool.
type GetUniqueNodeOutput struct {
	Found bool     `json:"found"`
	Node  NodeView `json:"node"`
	Model string   `json:"model"`
}

// CreateRelationshipInput is the input for the create_relationship MCP tool.
type CreateRelationshipInput struct {
	From       int64          `json:"from" jsonschema:"handle of the start node"`
	To         int64          `json:"to" jsonschema:"handle of the end node"`
	Type       string         `json:"type" jsonschema:"relationship type such as Has, Located_in, Depends_on"`
	Properties map[string]any `json:"properties,omitempty" jsonschema:"initial relationship properties"`
}

// RelationshipIDInput addresses a relationship by id.
type RelationshipIDInput struct {
	ID string `json:"id" jsonschema:"relationship id as returned by create_relationship"`
}

// RelationshipOutput is a relationship with its endpoints.
type RelationshipOutput struct {
	Relationship RelationshipView `json:"relationship"`
	Start        NodeView         `json:"start"`
	End          NodeView         `json:"end"`
}

// CheckLegalInput is the input for the check_legal MCP tool.
type CheckLegalInput struct {
	FromMeta string `json:"fromMeta" jsonschema:"meta-type of the start node"`
	ToMeta   string `json:"toMeta" jsonschema:"meta-type of the end node"`
	Type     string `json:"type,omitempty" jsonschema:"relationship type to check (default: list the legal types)"`
}

// CheckLegalOutput is the result of the check_legal MCP tool.
type CheckLegalOutput struct {
	Legal      bool     `json:"legal"`
	LegalTypes []string `json:"legalTypes"`
}

// GraphStatsInput is the input for the graph_stats MCP tool.
type GraphStatsInput struct{}

// GraphStatsOutput is the result of the graph_stats MCP tool.
type GraphStatsOutput struct {
	Stats graph.GraphStats `json:"stats"`
}
