// Package config provides configuration structures and loading for GraphWalk.
package config

import (
	"fmt"

	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/scope"
)

// Config represents the complete application configuration.
type Config struct {
	Database   DatabaseConfig         `yaml:"database" mapstructure:"database"`
	Processing ProcessingConfig       `yaml:"processing" mapstructure:"processing"`
	Logging    LoggingConfig          `yaml:"logging" mapstructure:"logging"`
	Schema     SchemaConfig           `yaml:"schema" mapstructure:"schema"`
	Scopes     map[string]ScopeConfig `yaml:"scopes" mapstructure:"scopes"`
}

// DatabaseConfig represents a MySQL database connection configuration.
type DatabaseConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// DSN builds a go-sql-driver/mysql connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.TLS)
}

// ProcessingConfig represents batch fetch settings.
type ProcessingConfig struct {
	BatchSize       int `yaml:"batch_size" mapstructure:"batch_size"`             // IN clause chunk size
	ParallelFetches int `yaml:"parallel_fetches" mapstructure:"parallel_fetches"` // concurrent fetches per BFS level
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// SchemaConfig declares the record types of the domain model.
type SchemaConfig struct {
	Types []TypeConfig `yaml:"types" mapstructure:"types"`
}

// TypeConfig declares one record type.
type TypeConfig struct {
	Name       string        `yaml:"name" mapstructure:"name"`
	Table      string        `yaml:"table" mapstructure:"table"`
	PrimaryKey string        `yaml:"primary_key" mapstructure:"primary_key"`
	Fields     []FieldConfig `yaml:"fields" mapstructure:"fields"`
}

// FieldConfig declares one field of a record type.
type FieldConfig struct {
	Name         string `yaml:"name" mapstructure:"name"`
	Kind         string `yaml:"kind" mapstructure:"kind"` // value, fk, o2o, m2m, reverse_fk, reverse_o2o, reverse_m2m, generic_fk, generic_rel
	Target       string `yaml:"target" mapstructure:"target"`
	RemoteField  string `yaml:"remote_field" mapstructure:"remote_field"`
	Nullable     bool   `yaml:"nullable" mapstructure:"nullable"`
	Column       string `yaml:"column" mapstructure:"column"`
	TypeColumn   string `yaml:"type_column" mapstructure:"type_column"`
	JoinTable    string `yaml:"join_table" mapstructure:"join_table"`
	SourceColumn string `yaml:"source_column" mapstructure:"source_column"`
	TargetColumn string `yaml:"target_column" mapstructure:"target_column"`
}

// ScopeConfig declares a named walk scope: the in-scope types and the
// override directives expressible declaratively. Overrides are keyed
// "Type.field".
type ScopeConfig struct {
	Types     []string                  `yaml:"types" mapstructure:"types"`
	Overrides map[string]OverrideConfig `yaml:"overrides" mapstructure:"overrides"`
}

// OverrideConfig declares one field override. Filter and value-producing
// overrides require code and are not expressible in configuration.
type OverrideConfig struct {
	Action   string `yaml:"action" mapstructure:"action"` // ignore, follow, anonymize
	Limit    int    `yaml:"limit" mapstructure:"limit"`
	Provider string `yaml:"provider" mapstructure:"provider"` // anonymize generator name
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Processing: ProcessingConfig{
			BatchSize:       1000,
			ParallelFetches: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

var fieldKinds = map[string]schema.FieldKind{
	"value":       schema.KindValue,
	"fk":          schema.KindFK,
	"o2o":         schema.KindO2O,
	"m2m":         schema.KindM2M,
	"reverse_fk":  schema.KindReverseFK,
	"reverse_o2o": schema.KindReverseO2O,
	"reverse_m2m": schema.KindReverseM2M,
	"generic_fk":  schema.KindGenericFK,
	"generic_rel": schema.KindGenericRel,
}

// BuildRegistry constructs the schema registry from the declared types.
func (c *Config) BuildRegistry() (*schema.Registry, error) {
	if len(c.Schema.Types) == 0 {
		return nil, fmt.Errorf("no record types declared in schema")
	}

	types := make([]*schema.RecordType, 0, len(c.Schema.Types))
	for _, tc := range c.Schema.Types {
		if tc.Name == "" {
			return nil, fmt.Errorf("record type with empty name in schema")
		}
		fields := make([]schema.Field, 0, len(tc.Fields))
		for _, fc := range tc.Fields {
			kind, ok := fieldKinds[fc.Kind]
			if !ok {
				return nil, fmt.Errorf("type %s field %s: unknown kind %q", tc.Name, fc.Name, fc.Kind)
			}
			fields = append(fields, schema.Field{
				Name:         fc.Name,
				Kind:         kind,
				Target:       fc.Target,
				RemoteField:  fc.RemoteField,
				Nullable:     fc.Nullable,
				Column:       fc.Column,
				TypeColumn:   fc.TypeColumn,
				JoinTable:    fc.JoinTable,
				SourceColumn: fc.SourceColumn,
				TargetColumn: fc.TargetColumn,
			})
		}
		rt := schema.NewRecordType(tc.Name, fields...)
		rt.Table = tc.Table
		rt.PKField = tc.PrimaryKey
		types = append(types, rt)
	}
	return schema.NewRegistry(types...)
}

// BuildScope constructs a named scope spec and validates it against the
// registry.
func (c *Config) BuildScope(name string, reg *schema.Registry) (*scope.Spec, error) {
	sc, ok := c.Scopes[name]
	if !ok {
		return nil, fmt.Errorf("scope %q not found in configuration", name)
	}

	spec := scope.New(sc.Types...)

	if len(sc.Overrides) > 0 {
		perType := make(map[string]scope.Overrides)
		for key, oc := range sc.Overrides {
			typeName, field, err := splitOverrideKey(key)
			if err != nil {
				return nil, err
			}
			ov, err := buildOverride(oc)
			if err != nil {
				return nil, fmt.Errorf("override %s: %w", key, err)
			}
			if perType[typeName] == nil {
				perType[typeName] = make(scope.Overrides)
			}
			perType[typeName][field] = ov
		}
		spec = spec.Merge(scope.WithOverrides(perType))
	}

	if err := spec.Validate(reg); err != nil {
		return nil, err
	}
	return spec, nil
}

// ScopeNames returns all scope names defined in the configuration.
func (c *Config) ScopeNames() []string {
	names := make([]string, 0, len(c.Scopes))
	for name := range c.Scopes {
		names = append(names, name)
	}
	return names
}

func splitOverrideKey(key string) (typeName, field string, err error) {
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			if i == 0 || i == len(key)-1 {
				break
			}
			return key[:i], key[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("override key %q must be Type.field", key)
}

func buildOverride(oc OverrideConfig) (scope.FieldOverride, error) {
	switch oc.Action {
	case "ignore":
		return scope.Ignore{}, nil
	case "follow":
		return scope.Follow{Limit: oc.Limit}, nil
	case "anonymize":
		if oc.Provider == "" {
			return nil, fmt.Errorf("anonymize requires a provider")
		}
		return scope.Anonymize{Provider: oc.Provider}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", oc.Action)
	}
}
