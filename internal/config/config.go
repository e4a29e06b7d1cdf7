package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the settings loaded from netgraph.yml.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Neo4j   Neo4jConfig   `yaml:"neo4j"`
	Kuzu    KuzuConfig    `yaml:"kuzu"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	MCP     MCPConfig     `yaml:"mcp"`
	Import  ImportConfig  `yaml:"import"`
}

// StoreConfig selects the graph backend.
type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=neo4j kuzu memory"`
}

// Neo4jConfig holds the Neo4j connection settings.
type Neo4jConfig struct {
	URI                     string        `yaml:"uri" validate:"required_if=Enabled true"`
	Username                string        `yaml:"username,omitempty"`
	Password                string        `yaml:"password,omitempty"`
	Database                string        `yaml:"database,omitempty"`
	MaxConnectionPoolSize   int           `yaml:"maxConnectionPoolSize,omitempty" validate:"gte=0"`
	ConnectionTimeout       time.Duration `yaml:"connectionTimeout,omitempty" validate:"gte=0"`
	MaxTransactionRetryTime time.Duration `yaml:"maxTransactionRetryTime,omitempty" validate:"gte=0"`

	// Enabled is set by Validate from the selected backend.
	Enabled bool `yaml:"-"`
}

// KuzuConfig holds the embedded KuzuDB settings.
type KuzuConfig struct {
	Path string `yaml:"path,omitempty"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format,omitempty" validate:"omitempty,oneof=text json"`
}

// MetricsConfig controls the Prometheus endpoint. An empty address disables
// it.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Stdout bool `yaml:"stdout,omitempty"`
}

// MCPConfig holds the MCP server settings.
type MCPConfig struct {
	Addr string `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
}

// ImportConfig tunes the inventory importer.
type ImportConfig struct {
	Workers int `yaml:"workers,omitempty" validate:"gte=0,lte=64"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Backend: "memory"},
		Neo4j: Neo4jConfig{
			URI:                     "bolt://localhost:7687",
			Username:                "neo4j",
			MaxConnectionPoolSize:   50,
			ConnectionTimeout:       30 * time.Second,
			MaxTransactionRetryTime: 30 * time.Second,
		},
		Kuzu:   KuzuConfig{Path: ".netgraph/graph.kuzu"},
		Log:    LogConfig{Level: "info", Format: "text"},
		Import: ImportConfig{Workers: 4},
	}
}

// Load reads netgraph.yml or netgraph.yaml from dir on top of Default,
// applies NETGRAPH_* environment overrides and validates the result. A
// missing file is not an error. ${VAR} references in the file are expanded
// from the environment.
func Load(dir string) (*Config, error) {
	cfg := Default()
	for _, name := range []string{"netgraph.yml", "netgraph.yaml"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", name, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", name, err)
		}
		break
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOverrides maps environment variables to the fields they set.
var envOverrides = map[string]func(c *Config, v string) error{
	"NETGRAPH_STORE_BACKEND":  func(c *Config, v string) error { c.Store.Backend = v; return nil },
	"NETGRAPH_NEO4J_URI":      func(c *Config, v string) error { c.Neo4j.URI = v; return nil },
	"NETGRAPH_NEO4J_USERNAME": func(c *Config, v string) error { c.Neo4j.Username = v; return nil },
	"NETGRAPH_NEO4J_PASSWORD": func(c *Config, v string) error { c.Neo4j.Password = v; return nil },
	"NETGRAPH_NEO4J_DATABASE": func(c *Config, v string) error { c.Neo4j.Database = v; return nil },
	"NETGRAPH_NEO4J_TIMEOUT": func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		c.Neo4j.ConnectionTimeout = d
		return err
	},
	"NETGRAPH_KUZU_PATH":    func(c *Config, v string) error { c.Kuzu.Path = v; return nil },
	"NETGRAPH_LOG_LEVEL":    func(c *Config, v string) error { c.Log.Level = strings.ToLower(v); return nil },
	"NETGRAPH_LOG_FORMAT":   func(c *Config, v string) error { c.Log.Format = strings.ToLower(v); return nil },
	"NETGRAPH_METRICS_ADDR": func(c *Config, v string) error { c.Metrics.Addr = v; return nil },
	"NETGRAPH_MCP_ADDR":     func(c *Config, v string) error { c.MCP.Addr = v; return nil },
	"NETGRAPH_TRACING_STDOUT": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.Tracing.Stdout = b
		return err
	},
	"NETGRAPH_IMPORT_WORKERS": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		c.Import.Workers = n
		return err
	},
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for key, set := range envOverrides {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		if err := set(cfg, v); err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
	}
	return nil
}

var validate = validator.New()

// Validate checks cfg's struct tags and cross-field rules.
func Validate(cfg *Config) error {
	cfg.Neo4j.Enabled = cfg.Store.Backend == "neo4j"
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, formatFieldError(e))
		}
		return fmt.Errorf("config: validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	if cfg.Store.Backend == "kuzu" && cfg.Kuzu.Path == "" {
		return errors.New("config: validation failed:\n  - kuzu.path is required when store.backend is kuzu")
	}
	return nil
}

func formatFieldError(e validator.FieldError) string {
	path := fieldPath(e.Namespace())
	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", path)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", path, e.Param(), e.Value())
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port (got: %v)", path, e.Value())
	default:
		return fmt.Sprintf("%s failed validation '%s' (got: %v)", path, e.Tag(), e.Value())
	}
}

// fieldPath turns "Config.Neo4j.URI" into "neo4j.uri".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.ToLower(strings.Join(parts, "."))
}
