// Package testcases loads and saves the fixed battery of scenarios a
// candidate prompt is rendered against during scoring.
package testcases

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/promptune/promptune/pkg/core"
	"github.com/promptune/promptune/pkg/errors"
)

// Battery is a named collection of test cases. The battery stays fixed for
// the duration of an optimization run so scores remain comparable across
// iterations.
type Battery struct {
	Project     string          `json:"project"`
	Description string          `json:"description,omitempty"`
	TestCases   []core.TestCase `json:"test_cases"`
}

// Load reads a battery from a JSON file.
func Load(path string) (*Battery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs(errors.ResourceNotFound, "test cases file not found", path)
		}
		return nil, errs(errors.InvalidInput, "failed to read test cases file", path)
	}

	var battery Battery
	if err := json.Unmarshal(data, &battery); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "malformed test cases file"),
			errors.Fields{"file": path})
	}
	if len(battery.TestCases) == 0 {
		return nil, errs(errors.InvalidInput, "test cases file contains no test cases", path)
	}

	return &battery, nil
}

// Save writes a battery to a JSON file, creating parent directories as
// needed.
func Save(path string, battery *Battery) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs(errors.StorageFailed, "failed to create test cases directory", path)
	}

	data, err := json.MarshalIndent(battery, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to encode test cases")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs(errors.StorageFailed, "failed to write test cases file", path)
	}
	return nil
}

func errs(code errors.ErrorCode, message, path string) error {
	return errors.WithFields(errors.New(code, message), errors.Fields{"file": path})
}

// Sample returns the starter battery written by project initialization.
func Sample(project string) *Battery {
	return &Battery{
		Project:     project,
		Description: "Test cases for PR-FAQ prompt tuning",
		TestCases: []core.TestCase{
			{
				ID:          "tc001",
				Name:        "E-commerce Checkout Optimization",
				Description: "PR-FAQ for improving checkout conversion rates",
				Inputs: map[string]string{
					"projectName":        "One-Click Checkout",
					"problemDescription": "Customers abandon carts due to lengthy checkout process with 15+ form fields",
					"businessContext":    "Reduce cart abandonment from 68% to under 40%, increase conversion by 25%",
				},
				Metadata: map[string]string{
					"industry":               "E-commerce",
					"project_type":           "Product Feature",
					"scope":                  "Medium",
					"stakeholder_complexity": "High",
				},
			},
			{
				ID:          "tc002",
				Name:        "Developer Productivity Tool",
				Description: "PR-FAQ for automated code review assistant",
				Inputs: map[string]string{
					"projectName":        "AI Code Review Assistant",
					"problemDescription": "Engineers spend 8-10 hours per week on manual code reviews, delaying releases",
					"businessContext":    "Reduce review time by 60%, improve code quality, accelerate release cycles",
				},
				Metadata: map[string]string{
					"industry":               "Technology",
					"project_type":           "Internal Tool",
					"scope":                  "Large",
					"stakeholder_complexity": "Medium",
				},
			},
		},
	}
}
