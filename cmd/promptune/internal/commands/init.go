package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/promptune/promptune/pkg/config"
	"github.com/promptune/promptune/pkg/testcases"
	"github.com/promptune/promptune/pkg/tuner"
)

// NewInitCommand scaffolds a new tuning project.
func NewInitCommand() *cobra.Command {
	var workspace string

	cmd := &cobra.Command{
		Use:   "init <project>",
		Short: "Scaffold config, prompts, and sample test cases for a project",
		Long: `Creates the project workspace: a YAML config with sensible defaults, the
starting prompt template, and a sample test case battery. Existing files are
left untouched, so init is safe to re-run.`,
		Example: `  promptune init checkout-flow
  promptune init checkout-flow --workspace ./tuning`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := args[0]

			cfg := config.Default(project)
			if workspace != "" {
				cfg.Workspace = workspace
			}

			configPath := config.ConfigFile(cfg.Workspace, project)
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				if err := cfg.Save(configPath); err != nil {
					return err
				}
				fmt.Printf("Created config at %s\n", configPath)
			} else {
				fmt.Printf("Config already exists at %s\n", configPath)
			}

			testCasesPath := cfg.TestCasesFile()
			if _, err := os.Stat(testCasesPath); os.IsNotExist(err) {
				if err := testcases.Save(testCasesPath, testcases.Sample(project)); err != nil {
					return err
				}
				fmt.Printf("Created sample test cases at %s\n", testCasesPath)
				fmt.Println("Customize the test cases for your project before running.")
			} else {
				fmt.Printf("Test cases already exist at %s\n", testCasesPath)
			}

			prompts, err := config.LoadPrompts(cfg.PromptsDir())
			if err != nil {
				return err
			}
			if len(prompts) == 0 {
				if err := config.SavePrompts(cfg.PromptsDir(), tuner.DefaultCandidate()); err != nil {
					return err
				}
				fmt.Printf("Created starting prompts in %s\n", cfg.PromptsDir())
			}

			fmt.Printf("Project %s initialized.\n", project)
			fmt.Println("Set ANTHROPIC_API_KEY, or run with --mock to try it without keys.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default .promptune)")

	return cmd
}
