package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Document is an inventory file: nodes first, then the relationships
// between them.
type Document struct {
	Nodes         []NodeRecord         `yaml:"nodes" json:"nodes" validate:"dive"`
	Relationships []RelationshipRecord `yaml:"relationships" json:"relationships" validate:"dive"`
}

// NodeRecord describes one node. When Unique is set the node is matched by
// name and type instead of by handle.
type NodeRecord struct {
	Handle     int64          `yaml:"handle" json:"handle" validate:"required"`
	Name       string         `yaml:"name" json:"name" validate:"required"`
	Meta       string         `yaml:"meta" json:"meta" validate:"required,oneof=Physical Logical Relation Location"`
	Type       string         `yaml:"type" json:"type" validate:"required"`
	Properties map[string]any `yaml:"properties,omitempty" json:"properties,omitempty"`
	Unique     bool           `yaml:"unique,omitempty" json:"unique,omitempty"`
}

// RelationshipRecord describes one relationship between two node references.
type RelationshipRecord struct {
	From       Ref            `yaml:"from" json:"from"`
	To         Ref            `yaml:"to" json:"to"`
	Type       string         `yaml:"type" json:"type" validate:"required"`
	Properties map[string]any `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// Ref points at a node either by handle or by name and type label. In a
// document it is written as a bare handle or as {name, type}.
type Ref struct {
	Handle int64  `yaml:"handle,omitempty" json:"handle,omitempty"`
	Name   string `yaml:"name,omitempty" json:"name,omitempty"`
	Type   string `yaml:"type,omitempty" json:"type,omitempty"`
}

func (r Ref) String() string {
	if r.Handle != 0 {
		return fmt.Sprintf("%d", r.Handle)
	}
	return fmt.Sprintf("%s %q", r.Type, r.Name)
}

func (r Ref) valid() bool {
	return r.Handle != 0 || (r.Name != "" && r.Type != "")
}

// UnmarshalYAML accepts a scalar handle or a mapping.
func (r *Ref) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&r.Handle)
	}
	type plain Ref
	return node.Decode((*plain)(r))
}

// UnmarshalJSON accepts a number or an object.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		return json.Unmarshal(data, &r.Handle)
	}
	type plain Ref
	return json.Unmarshal(data, (*plain)(r))
}

var validate = validator.New()

// Parse decodes a document. format is "json" or "yaml".
func Parse(data []byte, format string) (*Document, error) {
	var doc Document
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("importer: parse json: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("importer: parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("importer: unknown format %q", format)
	}
	return &doc, nil
}

// LoadFile reads and parses path, picking the format from its extension.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "" {
		format = "yaml"
	}
	return Parse(data, format)
}
