// Package commands implements the promptune CLI subcommands.
package commands

import (
	"github.com/promptune/promptune/pkg/config"
	"github.com/promptune/promptune/pkg/core"
	"github.com/promptune/promptune/pkg/evaluation"
	"github.com/promptune/promptune/pkg/llms"
	"github.com/promptune/promptune/pkg/logging"
	"github.com/promptune/promptune/pkg/testcases"
)

// setupLogging installs the global logger before any command logic runs. When
// logFile is non-empty, entries are additionally appended there as JSON lines.
func setupLogging(verbose bool, logFile string) error {
	severity := logging.INFO
	if verbose {
		severity = logging.DEBUG
	}

	outputs := []logging.Output{logging.NewConsoleOutput(true, logging.WithColor(true))}
	if logFile != "" {
		fileOutput, err := logging.NewFileOutput(logFile)
		if err != nil {
			return err
		}
		outputs = append(outputs, fileOutput)
	}

	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: severity,
		Outputs:  outputs,
	}))
	return nil
}

// loadConfig reads the project config, honoring an explicit path and the
// --mock flag. The flag overrides the configured provider directly rather
// than touching process-wide environment state.
func loadConfig(project, configPath, workspace string, mockMode bool) (*config.Config, error) {
	if configPath == "" {
		configPath = config.ConfigFile(workspace, project)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if mockMode {
		cfg.LLM.Provider = llms.ProviderMock
	}
	return cfg, nil
}

// models holds the three model roles of a tuning run. Generator and mutator
// share a client; the judge may differ.
type models struct {
	generator core.LLM
	judge     core.LLM
}

// buildModels constructs the model clients from config.
func buildModels(cfg *config.Config) (*models, error) {
	var endpoint *core.EndpointConfig
	if cfg.LLM.BaseURL != "" {
		endpoint = &core.EndpointConfig{BaseURL: cfg.LLM.BaseURL}
	}

	generator, err := llms.NewLLM(llms.ProviderConfig{
		Provider:  cfg.LLM.Provider,
		ModelID:   cfg.LLM.ModelID,
		APIKey:    cfg.LLM.APIKey,
		Workspace: cfg.Workspace,
		Endpoint:  endpoint,
	})
	if err != nil {
		return nil, err
	}

	judge := generator
	if cfg.LLM.JudgeModelID != "" && cfg.LLM.JudgeModelID != cfg.LLM.ModelID {
		judge, err = llms.NewLLM(llms.ProviderConfig{
			Provider:  cfg.LLM.Provider,
			ModelID:   cfg.LLM.JudgeModelID,
			APIKey:    cfg.LLM.APIKey,
			Workspace: cfg.Workspace,
			Endpoint:  endpoint,
		})
		if err != nil {
			return nil, err
		}
	}

	return &models{generator: generator, judge: judge}, nil
}

// buildEvaluator assembles the scorer from config and the project battery.
func buildEvaluator(cfg *config.Config, m *models) (*evaluation.Evaluator, error) {
	battery, err := testcases.Load(cfg.TestCasesFile())
	if err != nil {
		return nil, err
	}

	criteria := make([]evaluation.Criterion, 0, len(cfg.Evaluation.Criteria))
	for _, c := range cfg.Evaluation.Criteria {
		criteria = append(criteria, evaluation.Criterion{
			Name:        c.Name,
			Description: c.Description,
			Weight:      c.Weight,
		})
	}

	return evaluation.New(m.generator, m.judge, battery,
		evaluation.WithCriteria(criteria),
		evaluation.WithGenerationTemperature(cfg.Tuning.Temperature),
		evaluation.WithConcurrency(cfg.Evaluation.Concurrency),
	)
}

// currentPrompts loads the saved prompt set, falling back to empty so the
// tuner starts from its built-in default.
func currentPrompts(cfg *config.Config) (core.Candidate, error) {
	return config.LoadPrompts(cfg.PromptsDir())
}
