package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptune/promptune/pkg/tuner"
)

// NewEvaluateCommand scores the current prompts once without mutating them.
func NewEvaluateCommand() *cobra.Command {
	var (
		configPath string
		workspace  string
		mockMode   bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate <project>",
		Short: "Score the current prompts against the test case battery",
		Long: `Renders the current prompt set against every test case, generates content,
and grades it with the judge model. Useful for establishing a baseline or
checking hand edits without starting an optimization run.`,
		Example: `  promptune evaluate checkout-flow
  promptune evaluate checkout-flow --mock`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(verbose, ""); err != nil {
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

			candidate, err := currentPrompts(cfg)
			if err != nil {
				return err
			}
			if len(candidate) == 0 {
				candidate = tuner.DefaultCandidate()
				fmt.Println("No saved prompts found, evaluating the default template.")
			}

			report, err := evaluator.Evaluate(cmd.Context(), candidate)
			if err != nil {
				return err
			}

			fmt.Printf("Aggregate score: %.2f\n\n", report.Aggregate)
			for _, c := range report.Cases {
				fmt.Printf("  %-45s %6.2f", c.TestCaseName, c.Score)
				if c.EmptyOutput {
					fmt.Print("  (no content generated)")
				}
				fmt.Println()
				if c.Reasoning != "" {
					fmt.Printf("      %s\n", c.Reasoning)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default <workspace>/<project>.yaml)")
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default .promptune)")
	cmd.Flags().BoolVar(&mockMode, "mock", false, "run with the deterministic offline model (no API keys)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}
