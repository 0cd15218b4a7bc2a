package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/saleready-cli/internal/config"
	"github.com/sells-group/saleready-cli/internal/ingest"
	"github.com/sells-group/saleready-cli/internal/lineage"
	"github.com/sells-group/saleready-cli/internal/metrics"
	"github.com/sells-group/saleready-cli/internal/model"
	"github.com/sells-group/saleready-cli/internal/report"
	"github.com/sells-group/saleready-cli/internal/store"
)

var (
	computeOut         string
	computeParallel    int
	computeNoStore     bool
	computeAsking      float64
	computeLocations   []string
	computeWindowStart string
	computeWindowEnd   string
)

var computeCmd = &cobra.Command{
	Use:   "compute <deal-file>...",
	Short: "Compute sale-readiness metrics for one or more deals",
	Long:  "Loads each deal file (JSON or XLSX), derives the full metrics bundle with lineage, prints a summary, and persists the run unless --no-store is set.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var st store.Store
		if !computeNoStore {
			var err error
			st, err = store.Open(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		parallel := computeParallel
		if parallel < 1 {
			parallel = 1
		}

		// Reports from parallel runs must not interleave.
		var outMu sync.Mutex

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(parallel)
		for _, path := range args {
			g.Go(func() error {
				return computeOne(gctx, cmd, st, path, &outMu)
			})
		}
		return g.Wait()
	},
}

func computeOne(ctx context.Context, cmd *cobra.Command, st store.Store, path string, outMu *sync.Mutex) error {
	deal, err := ingest.Load(path)
	if err != nil {
		return err
	}

	analysis := analysisFor(cmd, deal)

	var run *model.Run
	if st != nil {
		run, err = st.CreateRun(ctx, deal.Name)
		if err != nil {
			return err
		}
		if err := st.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
			return err
		}
	}

	tracker := lineage.New()
	engine := metrics.New(analysis, tracker)

	bundle, err := engine.Compute(deal.Statements, deal.Ledger, deal.Equipment)
	if err != nil {
		if run != nil {
			if ferr := st.FailRun(ctx, run.ID, err); ferr != nil {
				zap.L().Error("record run failure", zap.String("run_id", run.ID), zap.Error(ferr))
			}
		}
		return eris.Wrapf(err, "compute %s", deal.Name)
	}

	export := tracker.Export()
	if run != nil {
		if err := st.FinishRun(ctx, run.ID, bundle, &export); err != nil {
			return err
		}
		zap.L().Info("run stored",
			zap.String("run_id", run.ID),
			zap.String("deal", deal.Name),
			zap.Int("lineage_records", export.Summary.TotalRecords),
		)
	}

	if computeOut != "" {
		if err := writeArtifacts(computeOut, deal.Name, bundle, &export); err != nil {
			return err
		}
	}

	outMu.Lock()
	defer outMu.Unlock()
	return report.Render(os.Stdout, deal.Name, bundle, export.Summary)
}

// analysisFor layers the per-deal overrides and the explicit flags over the
// configured analysis settings. Flags win over the deal file.
func analysisFor(cmd *cobra.Command, deal *ingest.Deal) config.AnalysisConfig {
	analysis := cfg.Analysis.Merge(deal.Analysis)

	flags := cmd.Flags()
	if flags.Changed("asking-price") {
		analysis.AskingPrice = computeAsking
	}
	if flags.Changed("locations") {
		analysis.Locations = computeLocations
	}
	if flags.Changed("window-start") {
		analysis.WindowStart = computeWindowStart
	}
	if flags.Changed("window-end") {
		analysis.WindowEnd = computeWindowEnd
	}

	return analysis
}

// writeArtifacts emits the bundle and lineage export as JSON files under dir.
func writeArtifacts(dir, deal string, bundle any, export *lineage.Export) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "create output dir %s", dir)
	}
	if err := writeJSON(filepath.Join(dir, deal+".metrics.json"), bundle); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, deal+".lineage.json"), export)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer f.Close() //nolint:errcheck

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}
	return nil
}

func init() {
	computeCmd.Flags().StringVar(&computeOut, "out", "", "directory for metrics and lineage JSON artifacts")
	computeCmd.Flags().IntVar(&computeParallel, "parallel", 1, "number of deals to compute concurrently")
	computeCmd.Flags().BoolVar(&computeNoStore, "no-store", false, "skip persisting runs")
	computeCmd.Flags().Float64Var(&computeAsking, "asking-price", 0, "override the configured asking price")
	computeCmd.Flags().StringSliceVar(&computeLocations, "locations", nil, "override the in-scope locations")
	computeCmd.Flags().StringVar(&computeWindowStart, "window-start", "", "override the analysis window start (YYYY-MM-DD)")
	computeCmd.Flags().StringVar(&computeWindowEnd, "window-end", "", "override the analysis window end (YYYY-MM-DD)")
	rootCmd.AddCommand(computeCmd)
}
