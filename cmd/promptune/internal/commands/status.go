package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptune/promptune/pkg/storage"
)

// NewStatusCommand reports the latest run for a project.
func NewStatusCommand() *cobra.Command {
	var (
		configPath  string
		workspace   string
		showHistory bool
		showPrompts bool
	)

	cmd := &cobra.Command{
		Use:   "status <project>",
		Short: "Show the latest optimization run for a project",
		Example: `  promptune status checkout-flow
  promptune status checkout-flow --history --prompts`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := args[0]

			cfg, err := loadConfig(project, configPath, workspace, false)
			if err != nil {
				return err
			}

			store, err := storage.Open(cfg.DatabasePath())
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			summary, err := store.LatestRun(ctx, project)
			if err != nil {
				return err
			}

			fmt.Printf("Run %s (%s)\n", summary.RunID, summary.StartedAt.Format("2006-01-02 15:04:05"))
			if summary.Completed {
				fmt.Printf("  Completed:      %s\n", summary.CompletedAt.Format("2006-01-02 15:04:05"))
				fmt.Printf("  Baseline score: %.2f\n", summary.BaselineScore)
			} else {
				fmt.Println("  Status:         in progress or aborted")
			}
			fmt.Printf("  Final score:    %.2f\n", summary.FinalScore)
			fmt.Printf("  Iterations:     %d\n", summary.Iterations)
			fmt.Printf("  Stopped early:  %t\n", summary.StoppedEarly)

			if showHistory {
				history, err := store.IterationHistory(ctx, summary.RunID)
				if err != nil {
					return err
				}
				fmt.Println("\n  Iter   Score    Best  Improved")
				for _, row := range history {
					marker := ""
					if row.Improved {
						marker = "  *"
					}
					fmt.Printf("  %4d  %6.2f  %6.2f%s\n", row.Iteration, row.Score, row.BestScore, marker)
				}
			}

			if showPrompts {
				candidate, score, err := store.BestCandidate(ctx, summary.RunID)
				if err != nil {
					return err
				}
				fmt.Printf("\nBest candidate (score %.2f):\n", score)
				for _, name := range candidate.Names() {
					fmt.Printf("\n--- %s ---\n%s\n", name, candidate[name])
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default <workspace>/<project>.yaml)")
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default .promptune)")
	cmd.Flags().BoolVar(&showHistory, "history", false, "show per-iteration scores")
	cmd.Flags().BoolVar(&showPrompts, "prompts", false, "show the best prompt text")

	return cmd
}
