package graph

import (
	"fmt"
	"regexp"
	"slices"
)

// --- Enums ---

// MetaType is the top-level ontology category of a node. Every node carries
// exactly one meta-type label.
type MetaType string

const (
	MetaPhysical MetaType = "Physical"
	MetaLogical  MetaType = "Logical"
	MetaRelation MetaType = "Relation"
	MetaLocation MetaType = "Location"
)

// MetaTypes lists the four meta-types in a fixed order.
var MetaTypes = []MetaType{MetaPhysical, MetaLogical, MetaRelation, MetaLocation}

// Valid reports whether m is one of the four meta-types.
func (m MetaType) Valid() bool {
	return slices.Contains(MetaTypes, m)
}

// ParseMetaType returns the meta-type named s, or an InvalidMetaTypeError.
func ParseMetaType(s string) (MetaType, error) {
	m := MetaType(s)
	if !m.Valid() {
		return "", &InvalidMetaTypeError{Name: s}
	}
	return m, nil
}

// RelType is a relationship type from the inventory vocabulary.
type RelType string

const (
	RelHas            RelType = "Has"
	RelConnectedTo    RelType = "Connected_to"
	RelDependsOn      RelType = "Depends_on"
	RelPartOf         RelType = "Part_of"
	RelUses           RelType = "Uses"
	RelProvides       RelType = "Provides"
	RelLocatedIn      RelType = "Located_in"
	RelResponsibleFor RelType = "Responsible_for"
	RelOwns           RelType = "Owns"

	// Organisation extensions. No meta-type pair in the legality table
	// admits them yet.
	RelWorksFor RelType = "Works_for"
	RelMemberOf RelType = "Member_of"
	RelParentOf RelType = "Parent_of"
)

// RelTypes is the full relationship vocabulary.
var RelTypes = []RelType{
	RelHas, RelConnectedTo, RelDependsOn, RelPartOf, RelUses, RelProvides,
	RelLocatedIn, RelResponsibleFor, RelOwns, RelWorksFor, RelMemberOf, RelParentOf,
}

// Direction selects which relationships of a node to follow.
type Direction string

const (
	DirectionIncoming Direction = "incoming" // (other)-[r]->(node)
	DirectionOutgoing Direction = "outgoing" // (node)-[r]->(other)
	DirectionBoth     Direction = "both"
)

// NodeLabel is the generic label every node carries so that whole-graph
// scans and the schema objects cover it.
const NodeLabel = "Node"

// Reserved property keys.
const (
	PropHandle = "handle"
	PropName   = "name"
)

// labelPattern restricts labels and relationship types to identifiers, which
// is what makes it safe to splice them into Cypher.
var labelPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// validTypeLabel checks a specific-type label supplied by a caller.
func validTypeLabel(label string) error {
	if !labelPattern.MatchString(label) {
		return &InvalidLabelError{Label: label, Reason: "must be an identifier"}
	}
	if label == NodeLabel || MetaType(label).Valid() {
		return &InvalidLabelError{Label: label, Reason: "reserved label"}
	}
	return nil
}

// --- Models ---

// RelationshipID is the store-assigned identity of a relationship. It is
// opaque and not stable across store rebuilds.
type RelationshipID string

// NodeBundle is the read projection of a node: its labels and properties.
type NodeBundle struct {
	Labels     []string   `json:"labels"`
	MetaType   MetaType   `json:"metaType,omitempty"`
	Properties Properties `json:"properties"`
}

// Handle returns the node's handle property.
func (b *NodeBundle) Handle() int64 {
	i, _ := b.Properties[PropHandle].AsInt()
	return i
}

// Name returns the node's name property.
func (b *NodeBundle) Name() string {
	s, _ := b.Properties[PropName].AsString()
	return s
}

// HasLabel reports whether the node carries label.
func (b *NodeBundle) HasLabel(label string) bool {
	return slices.Contains(b.Labels, label)
}

// TypeLabels returns the specific-type labels, in store order, without the
// generic label and the meta-type label.
func (b *NodeBundle) TypeLabels() []string {
	out := make([]string, 0, len(b.Labels))
	for _, l := range b.Labels {
		if l == NodeLabel || MetaType(l).Valid() {
			continue
		}
		out = append(out, l)
	}
	return out
}

func (b *NodeBundle) String() string {
	return fmt.Sprintf("%s node (%d) with labels %v", b.MetaType, b.Handle(), b.Labels)
}

// metaTypeOf returns the meta-type found in labels, if any.
func metaTypeOf(labels []string) (MetaType, bool) {
	for _, l := range labels {
		if m := MetaType(l); m.Valid() {
			return m, true
		}
	}
	return "", false
}

// newNodeBundle builds a bundle and fills in the meta-type from the labels.
func newNodeBundle(labels []string, props Properties) *NodeBundle {
	if props == nil {
		props = Properties{}
	}
	b := &NodeBundle{Labels: labels, Properties: props}
	b.MetaType, _ = metaTypeOf(labels)
	return b
}

// RelationshipBundle is the read projection of a relationship.
type RelationshipBundle struct {
	ID         RelationshipID `json:"id"`
	Type       RelType        `json:"type"`
	Start      int64          `json:"start"`
	End        int64          `json:"end"`
	Properties Properties     `json:"properties"`
}

// Other returns the endpoint that is not handle.
func (r *RelationshipBundle) Other(handle int64) int64 {
	if r.Start == handle {
		return r.End
	}
	return r.Start
}

// Neighbor pairs a relationship with the node at its far end.
type Neighbor struct {
	Relationship RelationshipBundle `json:"relationship"`
	Node         NodeBundle         `json:"node"`
}

// NodeSpec describes a node to create.
type NodeSpec struct {
	Handle   int64
	Name     string
	MetaType MetaType
	Type     string
}

// labels returns the full label set for the spec.
func (s NodeSpec) labels() []string {
	return []string{NodeLabel, string(s.MetaType), s.Type}
}

// GraphStats summarizes the graph.
type GraphStats struct {
	NodeCount         int `json:"nodeCount"`
	RelationshipCount int `json:"relationshipCount"`
}

// DependencyChain is an ordered sequence of node handles forming a path.
type DependencyChain struct {
	Handles []int64 `json:"handles"`
	Depth   int     `json:"depth"`
}
