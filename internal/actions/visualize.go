package actions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/scope"
	"github.com/dbsmedya/graphwalk/internal/walker"
)

// edgeStyles maps relationship kinds to Graphviz attributes.
var edgeStyles = map[schema.FieldKind]map[string]string{
	schema.KindFK:         {"style": "solid", "arrowhead": "normal"},
	schema.KindO2O:        {"style": "bold", "arrowhead": "normal"},
	schema.KindM2M:        {"style": "dashed", "arrowhead": "normal", "dir": "both"},
	schema.KindGenericFK:  {"style": "dotted", "arrowhead": "diamond"},
	schema.KindGenericRel: {"style": "dotted", "arrowhead": "diamond"},
}

// typeColors rotate across type nodes.
var typeColors = []string{
	"#4A90D9", "#50C878", "#E8A838", "#D94A4A",
	"#9B59B6", "#1ABC9C", "#E67E22", "#3498DB",
}

func escapeDOT(text string) string {
	return strings.ReplaceAll(strings.ReplaceAll(text, `"`, `\"`), "\n", `\n`)
}

// Visualizer renders scope and result graphs as Graphviz DOT, plus
// structured forms for interactive renderers.
type Visualizer struct {
	// ShowFieldNames labels edges with the declaring field name.
	ShowFieldNames bool
}

// NewVisualizer creates a Visualizer with field labels enabled.
func NewVisualizer() *Visualizer {
	return &Visualizer{ShowFieldNames: true}
}

// SchemaDOT renders the type-level graph of a scope: one node per
// in-scope type, one edge per forward relationship between in-scope
// types. Reverse fields are omitted so each relationship draws once.
func (v *Visualizer) SchemaDOT(spec *scope.Spec, reg *schema.Registry) (string, error) {
	lines := []string{"digraph SchemaGraph {", "  rankdir=LR;", "  node [shape=record];", ""}

	names := sortedScopeTypes(spec)
	colors := colorMap(names)

	for _, name := range names {
		lines = append(lines, fmt.Sprintf(
			"  %s [label=\"%s\" style=filled fillcolor=\"%s\" fontcolor=white];",
			name, name, colors[name]))
	}
	lines = append(lines, "")

	seen := make(map[string]bool)
	for _, name := range names {
		rt, err := reg.Resolve(name)
		if err != nil {
			return "", err
		}
		for _, f := range rt.RelationFields() {
			target, ok := schemaEdgeTarget(f, spec)
			if !ok {
				continue
			}
			key := name + "." + f.Name + "->" + target
			if seen[key] {
				continue
			}
			seen[key] = true

			attrs := attrString(edgeStyles[f.Kind])
			if v.ShowFieldNames {
				attrs += fmt.Sprintf(" label=\"%s\"", escapeDOT(f.Name))
			}
			lines = append(lines, fmt.Sprintf("  %s -> %s [%s];", name, target, attrs))
		}
	}

	lines = append(lines, "}")
	return strings.Join(lines, "\n"), nil
}

// schemaEdgeTarget decides whether a field draws a schema edge: forward
// relationships and generic inverses with an in-scope target.
func schemaEdgeTarget(f *schema.Field, spec *scope.Spec) (string, bool) {
	switch f.Kind {
	case schema.KindFK, schema.KindO2O, schema.KindM2M, schema.KindGenericRel:
		if f.Target != "" && spec.Contains(f.Target) {
			return f.Target, true
		}
	}
	return "", false
}

// InstanceDOT renders the record-level graph of a result: records
// clustered by type, edges for forward references between visited
// records.
func (v *Visualizer) InstanceDOT(result *walker.Result) string {
	lines := []string{"digraph InstanceGraph {", "  rankdir=LR;", "  node [shape=box];", ""}

	byType := result.ByType()
	names := make([]string, 0, len(byType))
	for name := range byType {
		names = append(names, name)
	}
	sort.Strings(names)
	colors := colorMap(names)

	for _, name := range names {
		color := colors[name]
		lines = append(lines, fmt.Sprintf("  subgraph cluster_%s {", name))
		lines = append(lines, fmt.Sprintf("    label=\"%s\";", name))
		lines = append(lines, fmt.Sprintf("    style=filled; color=\"%s40\";", color))
		for _, rec := range sortByPK(byType[name]) {
			lines = append(lines, fmt.Sprintf(
				"    %s [label=\"%s\" style=filled fillcolor=\"%s\" fontcolor=white];",
				nodeID(rec.Key()), escapeDOT(rec.Key().String()), color))
		}
		lines = append(lines, "  }", "")
	}

	for _, name := range names {
		for _, rec := range sortByPK(byType[name]) {
			for _, edge := range instanceEdges(rec, result) {
				attrs := attrString(edgeStyles[edge.kind])
				if v.ShowFieldNames {
					attrs += fmt.Sprintf(" label=\"%s\"", escapeDOT(edge.field))
				}
				lines = append(lines, fmt.Sprintf("  %s -> %s [%s];",
					nodeID(rec.Key()), nodeID(edge.target), attrs))
			}
		}
	}

	lines = append(lines, "}")
	return strings.Join(lines, "\n")
}

type instanceEdge struct {
	field  string
	target schema.Key
	kind   schema.FieldKind
}

// instanceEdges returns a record's forward references whose targets were
// visited.
func instanceEdges(rec *schema.Record, result *walker.Result) []instanceEdge {
	var out []instanceEdge
	for i := range rec.Type.Fields {
		f := &rec.Type.Fields[i]
		switch f.Kind {
		case schema.KindFK, schema.KindO2O:
			pk := rec.Ref(f.Name)
			if pk == nil {
				continue
			}
			key := schema.Key{Type: f.Target, PK: pk}
			if result.ContainsKey(key) {
				out = append(out, instanceEdge{field: f.Name, target: key, kind: f.Kind})
			}
		case schema.KindGenericFK:
			ref, ok := rec.GenericTarget(f.Name)
			if !ok {
				continue
			}
			key := schema.Key{Type: ref.Type, PK: ref.PK}
			if result.ContainsKey(key) {
				out = append(out, instanceEdge{field: f.Name, target: key, kind: f.Kind})
			}
		}
	}
	return out
}

func nodeID(key schema.Key) string {
	return fmt.Sprintf("%s_%v", key.Type, key.PK)
}

func attrString(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=\"%s\"", k, attrs[k]))
	}
	return strings.Join(parts, " ")
}

func sortedScopeTypes(spec *scope.Spec) []string {
	names := spec.Types()
	sort.Strings(names)
	return names
}

func colorMap(names []string) map[string]string {
	m := make(map[string]string, len(names))
	for i, name := range names {
		m[name] = typeColors[i%len(typeColors)]
	}
	return m
}

// SchemaNode is one type in the structured schema graph.
type SchemaNode struct {
	Name   string   `json:"name"`
	Color  string   `json:"color"`
	Fields []string `json:"fields"`
}

// SchemaEdge is one relationship in the structured schema graph.
type SchemaEdge struct {
	Source string `json:"source"`
	Field  string `json:"field"`
	Target string `json:"target"`
	Kind   string `json:"kind"`
}

// SchemaGraph is the structured form of the type-level graph, suitable
// for JSON output and interactive renderers.
type SchemaGraph struct {
	Nodes []SchemaNode `json:"nodes"`
	Edges []SchemaEdge `json:"edges"`
}

// SchemaDict returns the type-level graph as structured data.
func (v *Visualizer) SchemaDict(spec *scope.Spec, reg *schema.Registry) (*SchemaGraph, error) {
	names := sortedScopeTypes(spec)
	colors := colorMap(names)

	g := &SchemaGraph{}
	for _, name := range names {
		rt, err := reg.Resolve(name)
		if err != nil {
			return nil, err
		}
		node := SchemaNode{Name: name, Color: colors[name]}
		for _, f := range rt.ValueFields() {
			node.Fields = append(node.Fields, f.Name)
		}
		g.Nodes = append(g.Nodes, node)

		for _, f := range rt.RelationFields() {
			target, ok := schemaEdgeTarget(f, spec)
			if !ok {
				continue
			}
			g.Edges = append(g.Edges, SchemaEdge{
				Source: name, Field: f.Name, Target: target, Kind: f.Kind.String(),
			})
		}
	}
	return g, nil
}

// InstanceNode is one record in the structured instance graph.
type InstanceNode struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	PK   any    `json:"pk"`
}

// InstanceEdgeDict is one reference in the structured instance graph.
type InstanceEdgeDict struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Field  string `json:"field"`
}

// InstanceGraph is the structured form of the record-level graph.
type InstanceGraph struct {
	Nodes []InstanceNode     `json:"nodes"`
	Edges []InstanceEdgeDict `json:"edges"`
}

// InstanceDict returns the record-level graph as structured data.
func (v *Visualizer) InstanceDict(result *walker.Result) *InstanceGraph {
	g := &InstanceGraph{}
	for _, rec := range result.All() {
		g.Nodes = append(g.Nodes, InstanceNode{
			ID: nodeID(rec.Key()), Type: rec.Type.Name, PK: rec.PK,
		})
		for _, edge := range instanceEdges(rec, result) {
			g.Edges = append(g.Edges, InstanceEdgeDict{
				Source: nodeID(rec.Key()), Target: nodeID(edge.target), Field: edge.field,
			})
		}
	}
	return g
}
