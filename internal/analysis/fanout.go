// Package analysis detects fan-out risks in a scope spec before any walk
// runs: traversal cycles, bidirectional edge pairs, limit bypass paths,
// and heavily shared reference types. All findings are static; optional
// cardinality estimation weighs them with live row counts.
package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dbsmedya/graphwalk/internal/classify"
	"github.com/dbsmedya/graphwalk/internal/logger"
	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/scope"
)

// EdgeInfo is one edge the walker would traverse under the analyzed spec,
// annotated with the override state that governs it.
type EdgeInfo struct {
	Source string
	Field  string
	Target string
	Kind   schema.FieldKind

	// HasLimit and Limit reflect a Follow override with a positive limit.
	HasLimit bool
	Limit    int

	// Default marks an edge followed without any override.
	Default bool
}

// Reverse reports whether the edge is an inverse relationship, the most
// common source of accidental fan-out.
func (e EdgeInfo) Reverse() bool {
	switch e.Kind {
	case schema.KindReverseFK, schema.KindReverseO2O, schema.KindReverseM2M, schema.KindGenericRel:
		return true
	default:
		return false
	}
}

// String formats the edge for report output.
func (e EdgeInfo) String() string {
	parts := []string{fmt.Sprintf("%s.%s -> %s", e.Source, e.Field, e.Target)}
	parts = append(parts, "["+e.Kind.String()+"]")
	if e.HasLimit {
		parts = append(parts, fmt.Sprintf("(limit=%d)", e.Limit))
	}
	if e.Default {
		parts = append(parts, "[default]")
	}
	return strings.Join(parts, " ")
}

// Cycle is one strongly connected component of the traversal graph, with
// the edges inside it and the suggested edges to ignore to break it.
type Cycle struct {
	Types           []string
	Edges           []EdgeInfo
	SuggestedBreaks []EdgeInfo
}

// LimitBypass is a limited edge together with an alternate unlimited path
// that reaches the same target, defeating the limit.
type LimitBypass struct {
	Limited EdgeInfo
	Path    []EdgeInfo
}

// SharedRef is a type referenced from at least threshold distinct source
// types. Walks through shared references tend to pull in far more of the
// graph than intended.
type SharedRef struct {
	Type     string
	Incoming []EdgeInfo
	Outgoing []EdgeInfo
	InDegree int
}

// CardinalityEstimate weighs one multi-valued edge with live row counts.
type CardinalityEstimate struct {
	Edge  EdgeInfo
	Avg   float64
	Max   int64
	Total int64
}

// CardinalitySource estimates the live cardinality of one multi-valued
// edge. The bool result is false when no estimate is possible for the
// edge; that is not an error.
type CardinalitySource interface {
	EstimateEdge(ctx context.Context, edge EdgeInfo) (CardinalityEstimate, bool, error)
}

// Report is the result of analyzing one scope spec.
type Report struct {
	Edges         []EdgeInfo
	Cycles        []Cycle
	Bidirectional [][2]EdgeInfo
	LimitBypasses []LimitBypass
	SharedRefs    []SharedRef
	Cardinality   []CardinalityEstimate
}

// Analyzer analyzes a scope spec against a registry.
type Analyzer struct {
	spec *scope.Spec
	reg  *schema.Registry
	log  *logger.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(spec *scope.Spec, reg *schema.Registry, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Analyzer{spec: spec, reg: reg, log: log}
}

// DefaultSharedRefThreshold is the minimum distinct-source in-degree that
// flags a type as a shared reference.
const DefaultSharedRefThreshold = 3

// Analyze runs all static analyses. threshold governs shared reference
// detection; values below 1 use DefaultSharedRefThreshold.
func (a *Analyzer) Analyze(threshold int) (*Report, error) {
	if threshold < 1 {
		threshold = DefaultSharedRefThreshold
	}

	edges, err := a.traversalEdges()
	if err != nil {
		return nil, err
	}

	report := &Report{
		Edges:         edges,
		Cycles:        a.detectCycles(edges),
		Bidirectional: detectBidirectional(edges),
		LimitBypasses: detectLimitBypasses(edges),
		SharedRefs:    a.detectSharedRefs(edges, threshold),
	}

	a.log.Debugf("Fan-out analysis complete: %d edges, %d cycles, %d bidirectional pairs, %d limit bypasses, %d shared references",
		len(report.Edges), len(report.Cycles), len(report.Bidirectional),
		len(report.LimitBypasses), len(report.SharedRefs))

	return report, nil
}

// EstimateFanout runs Analyze and then weighs every multi-valued edge
// with live cardinalities from the given source. Edges the source cannot
// estimate are skipped; a source error aborts the estimation.
func (a *Analyzer) EstimateFanout(ctx context.Context, src CardinalitySource, threshold int) (*Report, error) {
	report, err := a.Analyze(threshold)
	if err != nil {
		return nil, err
	}

	for _, e := range report.Edges {
		// Forward single-valued references are always 0..1.
		if e.Kind == schema.KindFK || e.Kind == schema.KindO2O {
			continue
		}
		est, ok, err := src.EstimateEdge(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("cardinality estimate for %s.%s: %w", e.Source, e.Field, err)
		}
		if ok {
			report.Cardinality = append(report.Cardinality, est)
		}
	}
	return report, nil
}

// traversalEdges builds the edge set the walker would follow: every
// classified in-scope edge not suppressed by an Ignore override, in scope
// declaration order. Late-bound generic references are excluded; their
// targets are unknown statically.
func (a *Analyzer) traversalEdges() ([]EdgeInfo, error) {
	var edges []EdgeInfo
	for _, typeName := range a.spec.Types() {
		rt, err := a.reg.Resolve(typeName)
		if err != nil {
			return nil, err
		}
		classified, err := classify.Classify(rt, a.spec, a.reg)
		if err != nil {
			return nil, err
		}

		for _, ce := range classified {
			if ce.LateBound || !ce.InScope {
				continue
			}

			info := EdgeInfo{
				Source:  rt.Name,
				Field:   ce.Field,
				Target:  ce.Target,
				Kind:    ce.Kind,
				Default: true,
			}
			if ov, ok := a.spec.Override(rt.Name, ce.Field); ok {
				if _, ignored := ov.(scope.Ignore); ignored {
					continue
				}
				if follow, isFollow := ov.(scope.Follow); isFollow {
					info.Default = false
					if follow.Limit > 0 {
						info.HasLimit = true
						info.Limit = follow.Limit
					}
				}
			}
			edges = append(edges, info)
		}
	}
	return edges, nil
}

// detectCycles finds the strongly connected components of the traversal
// graph using Tarjan's algorithm, seeded in edge order for deterministic
// output. Single nodes only count with a self-loop.
func (a *Analyzer) detectCycles(edges []EdgeInfo) []Cycle {
	adj := make(map[string][]string)
	var nodes []string
	seen := make(map[string]bool)
	addNode := func(name string) {
		if !seen[name] {
			seen[name] = true
			nodes = append(nodes, name)
		}
	}
	for _, e := range edges {
		addNode(e.Source)
		addNode(e.Target)
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	t := &tarjan{adj: adj, index: make(map[string]int), lowlink: make(map[string]int), onStack: make(map[string]bool)}
	for _, n := range nodes {
		if _, visited := t.index[n]; !visited {
			t.strongConnect(n)
		}
	}

	var cycles []Cycle
	for _, scc := range t.sccs {
		if len(scc) == 1 && !hasSelfLoop(adj, scc[0]) {
			continue
		}
		member := make(map[string]bool, len(scc))
		for _, n := range scc {
			member[n] = true
		}
		var cycleEdges []EdgeInfo
		for _, e := range edges {
			if member[e.Source] && member[e.Target] {
				cycleEdges = append(cycleEdges, e)
			}
		}
		cycles = append(cycles, Cycle{
			Types:           scc,
			Edges:           cycleEdges,
			SuggestedBreaks: suggestBreaks(cycleEdges),
		})
	}
	return cycles
}

type tarjan struct {
	adj     map[string][]string
	counter int
	stack   []string
	onStack map[string]bool
	index   map[string]int
	lowlink map[string]int
	sccs    [][]string
}

func (t *tarjan) strongConnect(v string) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.adj[v] {
		if _, visited := t.index[w]; !visited {
			t.strongConnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] && t.index[w] < t.lowlink[v] {
			t.lowlink[v] = t.index[w]
		}
	}

	if t.lowlink[v] == t.index[v] {
		var scc []string
		for {
			w := t.stack[len(t.stack)-1]
			t.stack = t.stack[:len(t.stack)-1]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		t.sccs = append(t.sccs, scc)
	}
}

func hasSelfLoop(adj map[string][]string, node string) bool {
	for _, target := range adj[node] {
		if target == node {
			return true
		}
	}
	return false
}

// suggestBreaks ranks a cycle's edges by how safe they are to Ignore:
// default-followed reverse edges first, then any default edge, then
// unlimited edges. Only the top candidate is suggested.
func suggestBreaks(cycleEdges []EdgeInfo) []EdgeInfo {
	if len(cycleEdges) == 0 {
		return nil
	}
	rank := func(e EdgeInfo) int {
		switch {
		case e.Reverse() && e.Default:
			return 0
		case e.Default:
			return 1
		case !e.HasLimit:
			return 2
		default:
			return 3
		}
	}
	sorted := append([]EdgeInfo(nil), cycleEdges...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := rank(sorted[i]), rank(sorted[j])
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Field < sorted[j].Field
	})
	return sorted[:1]
}

// detectBidirectional finds type pairs connected by traversable edges in
// both directions. Each unordered pair is reported once.
func detectBidirectional(edges []EdgeInfo) [][2]EdgeInfo {
	pairMap := make(map[[2]string][]EdgeInfo)
	for _, e := range edges {
		pairMap[[2]string{e.Source, e.Target}] = append(pairMap[[2]string{e.Source, e.Target}], e)
	}

	seen := make(map[[2]string]bool)
	var result [][2]EdgeInfo
	for _, e := range edges {
		key := [2]string{e.Source, e.Target}
		if e.Target < e.Source {
			key = [2]string{e.Target, e.Source}
		}
		if seen[key] {
			continue
		}
		backward := pairMap[[2]string{e.Target, e.Source}]
		if len(backward) == 0 {
			continue
		}
		seen[key] = true
		result = append(result, [2]EdgeInfo{pairMap[[2]string{e.Source, e.Target}][0], backward[0]})
	}
	return result
}

// maxBypassDepth bounds the alternate-path search.
const maxBypassDepth = 4

// detectLimitBypasses finds, for every limited edge, an unlimited way to
// reach the same target: either a sibling edge between the same types or
// a multi-hop path of which not every hop is limited.
func detectLimitBypasses(edges []EdgeInfo) []LimitBypass {
	var limited []EdgeInfo
	for _, e := range edges {
		if e.HasLimit {
			limited = append(limited, e)
		}
	}
	if len(limited) == 0 {
		return nil
	}

	adj := make(map[string][]EdgeInfo)
	siblings := make(map[[2]string][]EdgeInfo)
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e)
		siblings[[2]string{e.Source, e.Target}] = append(siblings[[2]string{e.Source, e.Target}], e)
	}

	var bypasses []LimitBypass
	for _, le := range limited {
		for _, sib := range siblings[[2]string{le.Source, le.Target}] {
			if sib != le && !sib.HasLimit {
				bypasses = append(bypasses, LimitBypass{Limited: le, Path: []EdgeInfo{sib}})
			}
		}
		for _, path := range bypassPaths(le, adj) {
			bypasses = append(bypasses, LimitBypass{Limited: le, Path: path})
		}
	}
	return bypasses
}

// bypassPaths searches breadth-first for alternate paths of length 2 or
// more from the limited edge's source to its target, excluding the
// limited edge itself, up to maxBypassDepth hops.
func bypassPaths(le EdgeInfo, adj map[string][]EdgeInfo) [][]EdgeInfo {
	type state struct {
		at   string
		path []EdgeInfo
	}
	var results [][]EdgeInfo
	queue := []state{{at: le.Source}}

	for depth := 0; depth < maxBypassDepth; depth++ {
		var next []state
		for _, s := range queue {
			for _, e := range adj[s.at] {
				if e.Source == le.Source && e.Field == le.Field {
					continue
				}
				path := append(append([]EdgeInfo(nil), s.path...), e)
				if e.Target == le.Target && len(path) >= 2 {
					if !allLimited(path) {
						results = append(results, path)
					}
				} else if len(path) < maxBypassDepth {
					next = append(next, state{at: e.Target, path: path})
				}
			}
		}
		queue = next
	}
	return results
}

func allLimited(path []EdgeInfo) bool {
	for _, hop := range path {
		if !hop.HasLimit {
			return false
		}
	}
	return true
}

// detectSharedRefs flags in-scope types referenced from at least
// threshold distinct source types.
func (a *Analyzer) detectSharedRefs(edges []EdgeInfo, threshold int) []SharedRef {
	incoming := make(map[string][]EdgeInfo)
	outgoing := make(map[string][]EdgeInfo)
	for _, e := range edges {
		incoming[e.Target] = append(incoming[e.Target], e)
		outgoing[e.Source] = append(outgoing[e.Source], e)
	}

	var results []SharedRef
	for _, typeName := range a.spec.Types() {
		inc := incoming[typeName]
		sources := make(map[string]bool)
		for _, e := range inc {
			sources[e.Source] = true
		}
		if len(sources) >= threshold {
			results = append(results, SharedRef{
				Type:     typeName,
				Incoming: inc,
				Outgoing: outgoing[typeName],
				InDegree: len(sources),
			})
		}
	}
	return results
}
