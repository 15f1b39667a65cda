package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/graphwalk/internal/analysis"
	"github.com/dbsmedya/graphwalk/internal/database"
	"github.com/dbsmedya/graphwalk/internal/sqlfetch"
)

var (
	fanoutScope     string
	fanoutThreshold int
	fanoutEstimate  bool
)

var fanoutCmd = &cobra.Command{
	Use:   "fanout",
	Short: "Analyze a scope for fan-out risks",
	Long: `Fanout statically analyzes a scope before any walk runs and reports
traversal cycles (with suggested edges to ignore), bidirectional edge
pairs, follow-limit bypass paths, and heavily shared reference types.

With --estimate, multi-valued edges are additionally weighed with live
row counts from the database.

Example:
  graphwalk fanout --config graphwalk.yaml --scope articles --estimate`,
	RunE: runFanout,
}

func init() {
	fanoutCmd.Flags().StringVarP(&fanoutScope, "scope", "s", "",
		"Scope name from configuration file (required)")
	fanoutCmd.Flags().IntVar(&fanoutThreshold, "threshold", analysis.DefaultSharedRefThreshold,
		"Distinct-source in-degree that flags a shared reference")
	fanoutCmd.Flags().BoolVar(&fanoutEstimate, "estimate", false,
		"Estimate live edge cardinalities from the database")
	fanoutCmd.MarkFlagRequired("scope")

	rootCmd.AddCommand(fanoutCmd)
}

func runFanout(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	reg, err := cfg.BuildRegistry()
	if err != nil {
		return fmt.Errorf("failed to build schema registry: %w", err)
	}
	spec, err := cfg.BuildScope(fanoutScope, reg)
	if err != nil {
		return fmt.Errorf("failed to build scope: %w", err)
	}

	analyzer := analysis.NewAnalyzer(spec, reg, log)

	var report *analysis.Report
	if fanoutEstimate {
		ctx := database.SetupSignalHandler()
		db, err := database.Connect(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		fetcher := sqlfetch.New(db, reg, sqlfetch.WithLogger(log))
		report, err = analyzer.EstimateFanout(ctx, fetcher, fanoutThreshold)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
	} else {
		report, err = analyzer.Analyze(fanoutThreshold)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
	}

	printFanoutReport(report)
	return nil
}

func printFanoutReport(report *analysis.Report) {
	printHeader("Fan-out Analysis: %s", fanoutScope)
	fmt.Fprintln(outputWriter)

	printSection("Traversal Edges")
	for _, e := range report.Edges {
		fmt.Fprintf(outputWriter, "  %s\n", e)
	}

	fmt.Fprintln(outputWriter)
	printSection("Cycles")
	if len(report.Cycles) == 0 {
		fmt.Fprintf(outputWriter, "  %s\n", okColor.Sprint("none"))
	}
	for _, cycle := range report.Cycles {
		fmt.Fprintf(outputWriter, "  %s\n", badColor.Sprintf("cycle through %v", cycle.Types))
		for _, e := range cycle.Edges {
			fmt.Fprintf(outputWriter, "    %s\n", e)
		}
		for _, e := range cycle.SuggestedBreaks {
			fmt.Fprintf(outputWriter, "    %s\n",
				warnColor.Sprintf("suggest Ignore on %s.%s", e.Source, e.Field))
		}
	}

	fmt.Fprintln(outputWriter)
	printSection("Bidirectional Pairs")
	if len(report.Bidirectional) == 0 {
		fmt.Fprintf(outputWriter, "  %s\n", okColor.Sprint("none"))
	}
	for _, pair := range report.Bidirectional {
		fmt.Fprintf(outputWriter, "  %s <-> %s\n", pair[0], pair[1])
	}

	fmt.Fprintln(outputWriter)
	printSection("Limit Bypasses")
	if len(report.LimitBypasses) == 0 {
		fmt.Fprintf(outputWriter, "  %s\n", okColor.Sprint("none"))
	}
	for _, bp := range report.LimitBypasses {
		fmt.Fprintf(outputWriter, "  %s\n",
			warnColor.Sprintf("limit on %s.%s bypassed via:", bp.Limited.Source, bp.Limited.Field))
		for _, hop := range bp.Path {
			fmt.Fprintf(outputWriter, "    %s\n", hop)
		}
	}

	fmt.Fprintln(outputWriter)
	printSection("Shared References")
	if len(report.SharedRefs) == 0 {
		fmt.Fprintf(outputWriter, "  %s\n", okColor.Sprint("none"))
	}
	for _, sr := range report.SharedRefs {
		fmt.Fprintf(outputWriter, "  %s\n",
			warnColor.Sprintf("%s referenced from %d distinct types", sr.Type, sr.InDegree))
	}

	if report.Cardinality != nil {
		fmt.Fprintln(outputWriter)
		printSection("Edge Cardinality")
		rows := make([][2]string, 0, len(report.Cardinality))
		for _, est := range report.Cardinality {
			rows = append(rows, [2]string{
				fmt.Sprintf("%s.%s", est.Edge.Source, est.Edge.Field),
				fmt.Sprintf("avg %.1f, max %d, total %d", est.Avg, est.Max, est.Total),
			})
		}
		printAligned(rows)
	}
}
