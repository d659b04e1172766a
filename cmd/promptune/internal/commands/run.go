package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/promptune/promptune/pkg/config"
	"github.com/promptune/promptune/pkg/convergence"
	"github.com/promptune/promptune/pkg/mutation"
	"github.com/promptune/promptune/pkg/storage"
	"github.com/promptune/promptune/pkg/tuner"
)

// NewRunCommand runs the optimization loop for a project.
func NewRunCommand() *cobra.Command {
	var (
		configPath    string
		workspace     string
		maxIterations int
		mockMode      bool
		noEarlyStop   bool
		verbose       bool
		logFile       string
	)

	cmd := &cobra.Command{
		Use:   "run <project>",
		Short: "Run the evolutionary tuning loop",
		Long: `Runs the mutate-evaluate-select loop: each iteration rewrites the current
best prompt, scores the rewrite against the project's test cases, and keeps it
only if it beats the best score so far. The run stops early once scores
plateau, and every adopted prompt is persisted immediately.`,
		Example: `  promptune run checkout-flow
  promptune run checkout-flow --max-iterations 10
  promptune run checkout-flow --mock --verbose`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(verbose, logFile); err != nil {
				return err
			}
			project := args[0]

			cfg, err := loadConfig(project, configPath, workspace, mockMode)
			if err != nil {
				return err
			}

			m, err := buildModels(cfg)
			if err != nil {
				return err
			}

			evaluator, err := buildEvaluator(cfg, m)
			if err != nil {
				return err
			}

			mutator, err := mutation.New(m.generator,
				mutation.WithTemperature(cfg.Tuning.MutationTemperature))
			if err != nil {
				return err
			}

			store, err := storage.Open(cfg.DatabasePath())
			if err != nil {
				return err
			}
			defer store.Close()

			iterations := cfg.Tuning.MaxIterations
			if maxIterations > 0 {
				iterations = maxIterations
			}

			opts := []tuner.Option{
				tuner.WithMaxIterations(iterations),
				tuner.WithKeepSink(store.Sink(project)),
			}
			if noEarlyStop || cfg.Tuning.DisableEarlyStop {
				opts = append(opts, tuner.WithoutConvergenceDetection())
			} else {
				tracker, err := convergence.New(convergence.Config{
					NoImprovementThreshold: cfg.Tuning.NoImprovementThreshold,
					MinImprovementPercent:  cfg.Tuning.MinImprovementPercent,
					EnableEarlyStop:        true,
					TrackPlateauVariance:   true,
				})
				if err != nil {
					return err
				}
				opts = append(opts, tuner.WithTracker(tracker))
			}

			tn, err := tuner.New(mutator, evaluator, opts...)
			if err != nil {
				return err
			}

			initial, err := currentPrompts(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			result, err := tn.Optimize(ctx, initial)
			if result != nil && result.RunID != "" {
				if storeErr := store.CompleteRun(ctx, project, result); storeErr != nil && err == nil {
					err = storeErr
				}
			}
			if err != nil {
				return err
			}

			if err := config.SavePrompts(cfg.PromptsDir(), result.BestCandidate); err != nil {
				return err
			}

			printRunSummary(result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default <workspace>/<project>.yaml)")
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default .promptune)")
	cmd.Flags().IntVarP(&maxIterations, "max-iterations", "n", 0, "override the configured iteration budget")
	cmd.Flags().BoolVar(&mockMode, "mock", false, "run with the deterministic offline model (no API keys)")
	cmd.Flags().BoolVar(&noEarlyStop, "no-early-stop", false, "disable convergence-based early stopping")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().StringVar(&logFile, "log-file", "", "append JSON log lines to this file")

	return cmd
}

func printRunSummary(result *tuner.Result) {
	fmt.Println()
	fmt.Printf("Run %s finished in %s\n", result.RunID, result.Duration.Round(10*time.Millisecond))
	fmt.Printf("  Baseline score:  %.2f\n", result.BaselineScore)
	fmt.Printf("  Final score:     %.2f\n", result.FinalScore)
	fmt.Printf("  Improvement:     %+.2f\n", result.Improvement)
	fmt.Printf("  Iterations:      %d\n", len(result.History))

	if result.Convergence != nil && result.Convergence.Converged {
		fmt.Printf("  Converged at iteration %d (stopped early: %t)\n",
			result.Convergence.ConvergenceIteration, result.StoppedEarly)
	}

	if len(result.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, rec := range result.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
	}
}
