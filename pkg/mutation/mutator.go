// Package mutation derives new prompt candidates by asking a model to
// rewrite the current ones.
package mutation

import (
	"context"
	"fmt"
	"strings"

	"github.com/promptune/promptune/pkg/core"
	"github.com/promptune/promptune/pkg/errors"
	"github.com/promptune/promptune/pkg/logging"
)

// defaultObjectives steer rewrites toward the qualities the judge grades on.
var defaultObjectives = []string{
	"Generate higher quality press releases following Amazon's format",
	"Create more comprehensive and useful FAQ sections",
	"Better address stakeholder questions and concerns",
	"Maintain clarity and structure",
}

// LLMMutator implements tuner.Mutator by rewriting each prompt in the
// candidate with a meta-prompt. Mutation runs hot so successive rewrites of
// the same prompt still explore.
type LLMMutator struct {
	llm         core.LLM
	temperature float64
	objectives  []string
	logger      *logging.Logger
}

// Option defines functional options for LLMMutator configuration.
type Option func(*LLMMutator)

// WithTemperature sets the sampling temperature for rewrites.
func WithTemperature(t float64) Option {
	return func(m *LLMMutator) {
		m.temperature = t
	}
}

// WithObjectives replaces the rewrite objectives listed in the meta-prompt.
func WithObjectives(objectives []string) Option {
	return func(m *LLMMutator) {
		m.objectives = objectives
	}
}

// New creates an LLMMutator.
func New(llm core.LLM, opts ...Option) (*LLMMutator, error) {
	if llm == nil {
		return nil, errors.New(errors.InvalidInput, "mutation model is required")
	}

	m := &LLMMutator{
		llm:         llm,
		temperature: 0.8,
		objectives:  defaultObjectives,
		logger:      logging.GetLogger(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Mutate implements tuner.Mutator. Every prompt in the candidate is
// rewritten; a rewrite that comes back empty fails the whole mutation rather
// than silently dropping a prompt.
func (m *LLMMutator) Mutate(ctx context.Context, candidate core.Candidate, iteration int) (core.Candidate, error) {
	mutated := make(core.Candidate, len(candidate))

	for _, name := range candidate.Names() {
		response, err := m.llm.Generate(ctx, m.metaPrompt(candidate[name], iteration),
			core.WithTemperature(m.temperature))
		if err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.MutationFailed, "prompt rewrite failed"),
				errors.Fields{"prompt": name, "iteration": iteration})
		}

		rewritten := strings.TrimSpace(response.Content)
		if rewritten == "" {
			return nil, errors.WithFields(
				errors.New(errors.MutationFailed, "prompt rewrite produced empty output"),
				errors.Fields{"prompt": name, "iteration": iteration})
		}

		m.logger.Debug(ctx, "Rewrote prompt %q: %d -> %d chars", name, len(candidate[name]), len(rewritten))
		mutated[name] = rewritten
	}

	return mutated, nil
}

// metaPrompt builds the rewrite instruction for one prompt.
func (m *LLMMutator) metaPrompt(prompt string, iteration int) string {
	var b strings.Builder

	b.WriteString("You are an expert at optimizing LLM prompts.\n\nCurrent prompt:\n")
	b.WriteString(prompt)
	fmt.Fprintf(&b, "\n\nBased on iteration %d, suggest an improved version of this prompt that will:\n", iteration)
	for i, objective := range m.objectives {
		fmt.Fprintf(&b, "%d. %s\n", i+1, objective)
	}
	b.WriteString("\nProvide ONLY the improved prompt text, without any explanation or meta-commentary.")

	return b.String()
}
