// Package config loads and validates project configuration for tuning runs.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/promptune/promptune/pkg/errors"
)

// Config is the complete configuration for one tuning project.
type Config struct {
	// Project name, used to derive result and database paths
	Project string `yaml:"project" validate:"required"`

	// Workspace directory; all run artifacts live under it. Default: .promptune
	Workspace string `yaml:"workspace,omitempty"`

	LLM        LLMConfig        `yaml:"llm,omitempty"`
	Tuning     TuningConfig     `yaml:"tuning,omitempty"`
	Evaluation EvaluationConfig `yaml:"evaluation,omitempty"`
}

// LLMConfig selects the models used for generation, mutation, and judging.
type LLMConfig struct {
	// Provider name. Default: anthropic
	Provider string `yaml:"provider,omitempty" validate:"omitempty,oneof=anthropic assistant mock"`

	// Model used for content generation and prompt mutation
	ModelID string `yaml:"model_id,omitempty"`

	// Model used for judging; defaults to ModelID
	JudgeModelID string `yaml:"judge_model_id,omitempty"`

	// API key; falls back to ANTHROPIC_API_KEY
	APIKey string `yaml:"api_key,omitempty"`

	// Optional API base URL override
	BaseURL string `yaml:"base_url,omitempty"`
}

// TuningConfig controls the optimization loop.
type TuningConfig struct {
	// Iteration budget. Default: 20
	MaxIterations int `yaml:"max_iterations" validate:"min=1"`

	// Sampling temperature for content generation. Default: 1.0
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`

	// Sampling temperature for prompt rewrites. Default: 0.8
	MutationTemperature float64 `yaml:"mutation_temperature" validate:"min=0,max=2"`

	// Consecutive non-improving iterations before convergence. Default: 5
	NoImprovementThreshold int `yaml:"no_improvement_threshold" validate:"min=1"`

	// Minimum percentage gain that counts as improvement. Default: 0.1
	MinImprovementPercent float64 `yaml:"min_improvement_percent" validate:"min=0"`

	// Disables early stopping when true. Default: false
	DisableEarlyStop bool `yaml:"disable_early_stop,omitempty"`
}

// CriterionConfig is one weighted grading axis.
type CriterionConfig struct {
	Name        string  `yaml:"name" validate:"required"`
	Description string  `yaml:"description,omitempty"`
	Weight      float64 `yaml:"weight" validate:"gt=0"`
}

// EvaluationConfig controls candidate grading.
type EvaluationConfig struct {
	// Test cases graded in parallel within one evaluation. Default: 4
	Concurrency int `yaml:"concurrency" validate:"min=1"`

	// Weighted grading criteria; empty means the built-in defaults
	Criteria []CriterionConfig `yaml:"criteria,omitempty" validate:"omitempty,dive"`
}

// Default returns a fully populated configuration for a project.
func Default(project string) *Config {
	return &Config{
		Project:   project,
		Workspace: ".promptune",
		LLM: LLMConfig{
			Provider: "anthropic",
		},
		Tuning: TuningConfig{
			MaxIterations:          20,
			Temperature:            1.0,
			MutationTemperature:    0.8,
			NoImprovementThreshold: 5,
			MinImprovementPercent:  0.1,
		},
		Evaluation: EvaluationConfig{
			Concurrency: 4,
			Criteria: []CriterionConfig{
				{Name: "quality", Description: "Overall quality and persuasiveness of the document", Weight: 0.3},
				{Name: "completeness", Description: "Coverage of the problem, solution, and open questions", Weight: 0.25},
				{Name: "clarity", Description: "Clear, direct language free of filler", Weight: 0.25},
				{Name: "structure", Description: "Adherence to the expected document structure", Weight: 0.2},
			},
		},
	}
}

// Load reads a YAML config file, fills unset fields with defaults, applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithFields(
				errors.New(errors.ResourceNotFound, "config file not found"),
				errors.Fields{"file": path})
		}
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read config file")
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "malformed config file"),
			errors.Fields{"file": path})
	}

	cfg.fillDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to create config directory")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to encode config")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to write config file"),
			errors.Fields{"file": path})
	}
	return nil
}

// fillDefaults replaces zero values with the project defaults so partial
// config files stay short.
func (c *Config) fillDefaults() {
	defaults := Default(c.Project)

	if c.Workspace == "" {
		c.Workspace = defaults.Workspace
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaults.LLM.Provider
	}
	if c.Tuning.MaxIterations == 0 {
		c.Tuning.MaxIterations = defaults.Tuning.MaxIterations
	}
	if c.Tuning.Temperature == 0 {
		c.Tuning.Temperature = defaults.Tuning.Temperature
	}
	if c.Tuning.MutationTemperature == 0 {
		c.Tuning.MutationTemperature = defaults.Tuning.MutationTemperature
	}
	if c.Tuning.NoImprovementThreshold == 0 {
		c.Tuning.NoImprovementThreshold = defaults.Tuning.NoImprovementThreshold
	}
	if c.Tuning.MinImprovementPercent == 0 {
		c.Tuning.MinImprovementPercent = defaults.Tuning.MinImprovementPercent
	}
	if c.Evaluation.Concurrency == 0 {
		c.Evaluation.Concurrency = defaults.Evaluation.Concurrency
	}
	if len(c.Evaluation.Criteria) == 0 {
		c.Evaluation.Criteria = defaults.Evaluation.Criteria
	}
}

// applyEnvOverrides lets the environment win over the file for deployment
// specific settings.
func (c *Config) applyEnvOverrides() {
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		c.LLM.Provider = strings.ToLower(provider)
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		c.LLM.ModelID = model
	}
	if judge := os.Getenv("EVALUATOR_MODEL"); judge != "" {
		c.LLM.JudgeModelID = judge
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if strings.EqualFold(os.Getenv("PROMPTUNE_MOCK_MODE"), "true") {
		c.LLM.Provider = "mock"
	}
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return errors.WithFields(
				errors.New(errors.ValidationFailed, "invalid configuration"),
				errors.Fields{
					"field":      first.Namespace(),
					"constraint": first.Tag(),
				})
		}
		return errors.Wrap(err, errors.ValidationFailed, "invalid configuration")
	}
	return nil
}

// ResultsDir is where run artifacts for this project are written.
func (c *Config) ResultsDir() string {
	return filepath.Join(c.Workspace, "results_"+c.Project)
}

// PromptsDir holds the current best prompt text files.
func (c *Config) PromptsDir() string {
	return filepath.Join(c.Workspace, "prompts_"+c.Project)
}

// TestCasesFile is the path of the project's test case battery.
func (c *Config) TestCasesFile() string {
	return filepath.Join(c.ResultsDir(), "test_cases_"+c.Project+".json")
}

// DatabasePath is the SQLite file recording runs and iterations.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Workspace, c.Project+".db")
}

// ConfigFile is the canonical config path for a project.
func ConfigFile(workspace, project string) string {
	if workspace == "" {
		workspace = ".promptune"
	}
	return filepath.Join(workspace, project+".yaml")
}
