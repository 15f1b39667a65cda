package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/graphwalk/internal/actions"
	"github.com/dbsmedya/graphwalk/internal/config"
	"github.com/dbsmedya/graphwalk/internal/database"
	"github.com/dbsmedya/graphwalk/internal/logger"
	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/sqlfetch"
	"github.com/dbsmedya/graphwalk/internal/walker"
)

var (
	walkScope  string
	walkRoots  []string
	walkOut    string
	walkFormat string
)

var walkCmd = &cobra.Command{
	Use:   "walk",
	Short: "Walk the graph from one or more root records",
	Long: `Walk collects every record transitively reachable from the given roots
through the relationships of the selected scope, then prints a summary
or exports the result as a dependency-ordered fixture.

Roots are given as Type:pk. Integer keys are parsed as integers, anything
else is treated as a string key.

Example:
  graphwalk walk --config graphwalk.yaml --scope articles \
    --root Article:42 --out fixtures/article_42.json`,
	RunE: runWalk,
}

func init() {
	walkCmd.Flags().StringVarP(&walkScope, "scope", "s", "",
		"Scope name from configuration file (required)")
	walkCmd.Flags().StringArrayVarP(&walkRoots, "root", "r", nil,
		"Root record as Type:pk (repeatable, required)")
	walkCmd.Flags().StringVarP(&walkOut, "out", "o", "",
		"Export the result to this fixture file")
	walkCmd.Flags().StringVar(&walkFormat, "format", actions.FormatJSON,
		"Fixture format (json, msgpack)")
	walkCmd.MarkFlagRequired("scope")
	walkCmd.MarkFlagRequired("root")

	rootCmd.AddCommand(walkCmd)
}

func runWalk(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	reg, err := cfg.BuildRegistry()
	if err != nil {
		return fmt.Errorf("failed to build schema registry: %w", err)
	}
	spec, err := cfg.BuildScope(walkScope, reg)
	if err != nil {
		return fmt.Errorf("failed to build scope: %w", err)
	}

	ctx := database.SetupSignalHandler()

	db, err := database.Connect(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	fetcher := sqlfetch.New(db, reg,
		sqlfetch.WithBatchSize(cfg.Processing.BatchSize),
		sqlfetch.WithLogger(log))

	roots, err := resolveRoots(ctx, fetcher, reg, walkRoots)
	if err != nil {
		return err
	}

	w := walker.New(spec, reg, fetcher,
		walker.WithLogger(log),
		walker.WithParallelFetches(cfg.Processing.ParallelFetches))

	result, err := w.Walk(ctx, nil, roots...)
	if err != nil {
		return fmt.Errorf("walk failed: %w", err)
	}

	printWalkSummary(result)

	if walkOut != "" {
		exporter := actions.NewExporter(spec,
			actions.WithFormat(walkFormat),
			actions.WithExportLogger(log))
		if err := exporter.ToFile(result, walkOut, nil); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Fprintf(outputWriter, "\nExported %d records to %s\n", result.InstanceCount(), walkOut)
	}
	return nil
}

// loadConfigAndLogger loads the config file, applies CLI overrides and
// builds the logger. Shared by all commands that need configuration.
func loadConfigAndLogger() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat, overrides.BatchSize, overrides.ParallelFetches)

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// resolveRoots parses Type:pk arguments and loads the full root records.
// A root that does not exist in the database is an error, not a skip.
func resolveRoots(ctx context.Context, fetcher *sqlfetch.Fetcher, reg *schema.Registry, specs []string) ([]*schema.Record, error) {
	type rootRef struct {
		typeName string
		pk       any
	}
	refs := make([]rootRef, 0, len(specs))
	byType := make(map[string][]any)
	for _, s := range specs {
		parts := strings.SplitN(s, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("root %q must be Type:pk", s)
		}
		if !reg.Has(parts[0]) {
			return nil, fmt.Errorf("root type %q is not declared in the schema", parts[0])
		}
		var pk any = parts[1]
		if n, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
			pk = n
		}
		refs = append(refs, rootRef{typeName: parts[0], pk: pk})
		byType[parts[0]] = append(byType[parts[0]], pk)
	}

	loaded := make(map[schema.Key]*schema.Record)
	for typeName, pks := range byType {
		recs, err := fetcher.Load(ctx, typeName, pks)
		if err != nil {
			return nil, fmt.Errorf("failed to load roots of type %s: %w", typeName, err)
		}
		for _, rec := range recs {
			loaded[rec.Key()] = rec
		}
	}

	roots := make([]*schema.Record, 0, len(refs))
	for _, ref := range refs {
		rec, ok := loaded[schema.Key{Type: ref.typeName, PK: ref.pk}]
		if !ok {
			return nil, fmt.Errorf("root %s:%v not found", ref.typeName, ref.pk)
		}
		roots = append(roots, rec)
	}
	return roots, nil
}

func printWalkSummary(result *walker.Result) {
	printHeader("Walk Summary")
	fmt.Fprintln(outputWriter)

	printSection("Records by Type")
	byType := result.ByType()
	rows := make([][2]string, 0, len(byType))
	for _, name := range result.TypeNames() {
		rows = append(rows, [2]string{name, strconv.Itoa(len(byType[name]))})
	}
	rows = append(rows, [2]string{"Total", strconv.Itoa(result.InstanceCount())})
	printAligned(rows)

	fmt.Fprintln(outputWriter)
	printSection("Dependency Order")
	fmt.Fprintf(outputWriter, "  %s\n", strings.Join(result.TopologicalOrder(), " -> "))
}
