package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/graphwalk/internal/graph"
	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/scope"
)

var (
	depsScope  string
	depsStrict bool
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Show the dependency order of a scope's types",
	Long: `Deps resolves the mandatory-reference dependencies among a scope's types
and prints the order in which records can be inserted (dependencies
first). Nullable and self-referential references do not constrain the
order.

With --strict, a dependency cycle is an error; by default the cycle
members are appended after the orderable prefix and reported.

Example:
  graphwalk deps --config graphwalk.yaml --scope articles`,
	RunE: runDeps,
}

func init() {
	depsCmd.Flags().StringVarP(&depsScope, "scope", "s", "",
		"Scope name from configuration file (default: all declared types)")
	depsCmd.Flags().BoolVar(&depsStrict, "strict", false,
		"Fail on dependency cycles instead of falling back")

	rootCmd.AddCommand(depsCmd)
}

func runDeps(cmd *cobra.Command, args []string) error {
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
	if depsScope != "" {
		spec, err = cfg.BuildScope(depsScope, reg)
		if err != nil {
			return fmt.Errorf("failed to build scope: %w", err)
		}
	} else {
		spec = scope.FromRegistry(reg)
	}

	g, err := dependencyGraph(spec, reg)
	if err != nil {
		return err
	}

	printHeader("Dependency Order")
	fmt.Fprintln(outputWriter)

	if depsStrict {
		order, err := g.TopologicalSort()
		if err != nil {
			return err
		}
		printDepsOrder(order, g)
		return nil
	}

	order, cycleInfo := g.TopologicalSortWithFallback()
	printDepsOrder(order, g)

	if cycleInfo != nil {
		fmt.Fprintln(outputWriter)
		printSection("Cycle Warning")
		fmt.Fprintf(outputWriter, "  %s\n",
			warnColor.Sprintf("%d types participate in a dependency cycle and were appended in first-declared order:",
				len(cycleInfo.CycleParticipants)))
		for _, name := range cycleInfo.CycleParticipants {
			fmt.Fprintf(outputWriter, "    - %s\n", name)
		}
	}
	return nil
}

// dependencyGraph builds the type-level mandatory-reference graph of a
// scope: an edge target -> source per non-nullable forward reference
// between distinct in-scope types.
func dependencyGraph(spec *scope.Spec, reg *schema.Registry) (*graph.Graph, error) {
	g := graph.New()
	for _, name := range spec.Types() {
		g.AddNode(name)
	}
	for _, name := range spec.Types() {
		rt, err := reg.Resolve(name)
		if err != nil {
			return nil, err
		}
		for _, f := range rt.RelationFields() {
			if f.Kind != schema.KindFK && f.Kind != schema.KindO2O {
				continue
			}
			if f.Nullable || f.Target == name || !spec.Contains(f.Target) {
				continue
			}
			g.AddEdgeWithMeta(f.Target, name, f.Name, f.Nullable)
		}
	}
	return g, nil
}

func printDepsOrder(order []string, g *graph.Graph) {
	printSection("Insert Order (dependencies first)")
	for i, name := range order {
		deps := g.Parents(name)
		if len(deps) == 0 {
			fmt.Fprintf(outputWriter, "  [%d] %s\n", i+1, name)
			continue
		}
		fmt.Fprintf(outputWriter, "  [%d] %s  %s\n", i+1, name,
			dimColor.Sprintf("(after %v)", deps))
	}
}
