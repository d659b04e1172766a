package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/promptune/promptune/pkg/core"
	"github.com/promptune/promptune/pkg/errors"
)

// LoadPrompts reads the current prompt set from the prompts directory, one
// .txt file per prompt. A missing directory yields an empty candidate so a
// fresh project starts from the built-in default.
func LoadPrompts(dir string) (core.Candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return core.Candidate{}, nil
		}
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to read prompts directory"),
			errors.Fields{"dir": dir})
	}

	candidate := core.Candidate{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.StorageFailed, "failed to read prompt file"),
				errors.Fields{"file": entry.Name()})
		}
		name := strings.TrimSuffix(entry.Name(), ".txt")
		candidate[name] = string(data)
	}

	return candidate, nil
}

// SavePrompts writes each prompt in the candidate to its own .txt file so
// the current best is always inspectable and editable by hand.
func SavePrompts(dir string, candidate core.Candidate) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to create prompts directory"),
			errors.Fields{"dir": dir})
	}

	for _, name := range candidate.Names() {
		path := filepath.Join(dir, name+".txt")
		if err := os.WriteFile(path, []byte(candidate[name]), 0o644); err != nil {
			return errors.WithFields(
				errors.Wrap(err, errors.StorageFailed, "failed to write prompt file"),
				errors.Fields{"file": path})
		}
	}
	return nil
}
