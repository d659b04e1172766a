package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/promptune/promptune/cmd/promptune/internal/commands"
)

var rootCmd = &cobra.Command{
	Use:   "promptune",
	Short: "Evolutionary prompt tuning with automatic convergence detection",
	Long: `Promptune improves a prompt template through an evolutionary loop: rewrite
the current prompt with a model, score the rewrite against a fixed battery of
test cases, and keep it only when it beats the best score seen so far. A
convergence tracker stops the run once further iterations stop paying off.

Typical workflow:
  1. promptune init <project>      scaffold config, prompts, and test cases
  2. edit the generated test cases for your domain
  3. promptune run <project>       run the optimization loop
  4. promptune status <project>    inspect the latest run`,
	Version: "0.1.0",
}

func init() {
	rootCmd.AddCommand(
		commands.NewInitCommand(),
		commands.NewRunCommand(),
		commands.NewEvaluateCommand(),
		commands.NewStatusCommand(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
