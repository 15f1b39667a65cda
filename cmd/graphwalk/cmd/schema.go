package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/graphwalk/internal/actions"
	"github.com/dbsmedya/graphwalk/internal/mermaidascii"
	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/scope"
)

var (
	schemaScope  string
	schemaAscii  bool
	schemaAsJSON bool
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Visualize the type graph of a scope",
	Long: `Schema renders the type-level relationship graph of a scope without
touching the database: Graphviz DOT by default, an ASCII diagram with
--ascii, or structured JSON with --json.

Example:
  graphwalk schema --config graphwalk.yaml --scope articles --ascii`,
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().StringVarP(&schemaScope, "scope", "s", "",
		"Scope name from configuration file (default: all declared types)")
	schemaCmd.Flags().BoolVar(&schemaAscii, "ascii", false,
		"Render an ASCII diagram instead of DOT")
	schemaCmd.Flags().BoolVar(&schemaAsJSON, "json", false,
		"Emit the graph as structured JSON instead of DOT")

	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	reg, err := cfg.BuildRegistry()
	if err != nil {
		return fmt.Errorf("failed to build schema registry: %w", err)
	}

	var spec *scope.Spec
	if schemaScope != "" {
		spec, err = cfg.BuildScope(schemaScope, reg)
		if err != nil {
			return fmt.Errorf("failed to build scope: %w", err)
		}
	} else {
		spec = scope.FromRegistry(reg)
	}

	viz := actions.NewVisualizer()

	switch {
	case schemaAscii:
		diagram, err := mermaidascii.RenderDiagram(schemaMermaid(spec, reg), nil)
		if err != nil {
			return fmt.Errorf("failed to render diagram: %w", err)
		}
		fmt.Fprintln(outputWriter, diagram)
	case schemaAsJSON:
		g, err := viz.SchemaDict(spec, reg)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(g, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(outputWriter, string(data))
	default:
		dot, err := viz.SchemaDOT(spec, reg)
		if err != nil {
			return err
		}
		fmt.Fprintln(outputWriter, dot)
	}
	return nil
}

// schemaMermaid builds mermaid graph syntax from the forward
// relationships between in-scope types.
func schemaMermaid(spec *scope.Spec, reg *schema.Registry) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, name := range spec.Types() {
		sb.WriteString(fmt.Sprintf("    %s\n", sanitizeNodeID(name)))
	}
	for _, name := range spec.Types() {
		rt, err := reg.Resolve(name)
		if err != nil {
			continue
		}
		for _, f := range rt.RelationFields() {
			switch f.Kind {
			case schema.KindFK, schema.KindO2O, schema.KindM2M:
				if f.Target != "" && spec.Contains(f.Target) {
					sb.WriteString(fmt.Sprintf("    %s -->|%s| %s\n",
						sanitizeNodeID(name), f.Kind.String(), sanitizeNodeID(f.Target)))
				}
			}
		}
	}
	return sb.String()
}

// sanitizeNodeID ensures type names are valid mermaid node IDs
func sanitizeNodeID(name string) string {
	return strings.NewReplacer(
		".", "_",
		"-", "_",
		" ", "_",
	).Replace(name)
}
