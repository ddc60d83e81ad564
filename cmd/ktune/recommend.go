package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/ktune/pkg/daemon"
	"github.com/jamesainslie/ktune/pkg/ktune/collector"
	"github.com/jamesainslie/ktune/pkg/ktune/config"
	"github.com/jamesainslie/ktune/pkg/ktune/engine"
	"github.com/jamesainslie/ktune/pkg/ktune/store"
	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend tuning values from the saved model",
	Long: `Loads the persisted model, takes one live sample, and prints a tuning
recommendation per parameter. Run "ktune scan --save" first, or let the
daemon build the model.`,
	Args: cobra.NoArgs,
	RunE: runRecommend,
}

func init() {
	rootCmd.AddCommand(recommendCmd)
}

// recommendReport is the JSON shape of a recommendation run.
type recommendReport struct {
	Assessment      engine.Assessment      `json:"assessment"`
	Recommendations []types.Recommendation `json:"recommendations"`
}

func runRecommend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}

	path := cfg.Daemon.StorePath
	if path == "" {
		path = config.DefaultStorePath()
	}
	st, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("open model store (is ktuned running? try \"ktune status\"): %w", err)
	}
	defer st.Close()

	state, err := st.Load()
	if err != nil {
		if errors.Is(err, store.ErrNoState) {
			return fmt.Errorf("no saved model; run \"ktune scan --save\" first")
		}
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scan.CollectTimeout)
	defer cancel()
	live, err := collector.NewSystem().Collect(ctx)
	if err != nil {
		return err
	}

	recs, err := engine.Recommend(state, live, daemon.CeilingsFrom(cfg.Budget))
	if err != nil {
		return err
	}

	report := recommendReport{
		Assessment:      engine.Assess(live, state.Params),
		Recommendations: recs,
	}
	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(report)
	}
	printRecommend(state, report)
	return nil
}

func printRecommend(state *types.ModelState, report recommendReport) {
	a := report.Assessment
	fmt.Printf("Workload: %s (confidence %.2f)\n", a.Workload, a.WorkloadConfidence)
	fmt.Printf("  efficiency score %.3f  load factor %.2f  stability %.2f\n",
		a.EfficiencyScore, a.LoadFactor, a.StabilityRating)
	fmt.Printf("  model: %d samples, updated %s\n",
		len(state.Samples), state.UpdatedAt.Format(time.RFC3339))

	fmt.Println("Recommendations:")
	for _, rec := range report.Recommendations {
		fmt.Printf("  %-15s %8.3f  (confidence %.2f, from %d samples)\n",
			rec.Parameter, rec.Value, rec.Confidence, rec.BasisSamples)
	}
}
