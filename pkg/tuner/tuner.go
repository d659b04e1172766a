// Package tuner drives the mutate-evaluate-select loop that improves a
// prompt candidate against a scoring oracle.
package tuner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/promptune/promptune/pkg/convergence"
	"github.com/promptune/promptune/pkg/core"
	"github.com/promptune/promptune/pkg/errors"
	"github.com/promptune/promptune/pkg/logging"
)

// Mutator produces a new candidate derived from the current one. It is
// treated as a black box: stochastic output is expected, repeated calls with
// identical arguments may differ.
type Mutator interface {
	Mutate(ctx context.Context, candidate core.Candidate, iteration int) (core.Candidate, error)
}

// Scorer produces a single aggregate quality score on a 0-100 scale for a
// candidate rendered against a fixed battery of test cases. A score of 0
// means empty or failed content; a scoring error is an error, never a zero.
type Scorer interface {
	Score(ctx context.Context, candidate core.Candidate) (float64, error)
}

// KeepSink observes each adoption of a new best candidate. The tuner calls it
// synchronously inside the adoption step so external consumers never see a
// best score without its matching candidate.
type KeepSink interface {
	KeepBest(ctx context.Context, candidate core.Candidate, score float64, iteration int) error
}

// Result is the final report of an optimization run. It is assembled once at
// loop termination and not mutated afterwards.
type Result struct {
	RunID           string                        `json:"run_id"`
	BaselineScore   float64                       `json:"baseline_score"`
	FinalScore      float64                       `json:"final_score"`
	Improvement     float64                       `json:"improvement"`
	BestCandidate   core.Candidate                `json:"best_candidate"`
	History         []convergence.IterationRecord `json:"iteration_history"`
	Convergence     *convergence.Status           `json:"convergence,omitempty"`
	Recommendations []string                      `json:"recommendations,omitempty"`
	StartedAt       time.Time                     `json:"started_at"`
	Duration        time.Duration                 `json:"duration"`
	StoppedEarly    bool                          `json:"stopped_early"`
}

// Tuner runs the optimization loop: mutate from the last kept candidate,
// score, keep iff strictly better than the best ever seen. The loop is
// strictly sequential; at most one mutator or scorer call is outstanding.
type Tuner struct {
	mutator Mutator
	scorer  Scorer
	sink    KeepSink

	maxIterations int
	tracker       *convergence.Tracker
	logger        *logging.Logger
}

// Option defines functional options for Tuner configuration.
type Option func(*Tuner)

// WithMaxIterations sets the iteration budget.
func WithMaxIterations(n int) Option {
	return func(t *Tuner) {
		t.maxIterations = n
	}
}

// WithTracker replaces the default convergence tracker.
func WithTracker(tracker *convergence.Tracker) Option {
	return func(t *Tuner) {
		t.tracker = tracker
	}
}

// WithoutConvergenceDetection disables early stopping entirely; the loop
// always consumes the full iteration budget.
func WithoutConvergenceDetection() Option {
	return func(t *Tuner) {
		t.tracker = nil
	}
}

// WithKeepSink registers a sink notified on every adoption of a new best
// candidate.
func WithKeepSink(sink KeepSink) Option {
	return func(t *Tuner) {
		t.sink = sink
	}
}

// New creates a Tuner. Convergence detection defaults to enabled with the
// default tracker configuration; invalid budgets are rejected here rather
// than at first use.
func New(mutator Mutator, scorer Scorer, opts ...Option) (*Tuner, error) {
	if mutator == nil {
		return nil, errors.New(errors.InvalidInput, "mutator is required")
	}
	if scorer == nil {
		return nil, errors.New(errors.InvalidInput, "scorer is required")
	}

	defaultTracker, err := convergence.New(convergence.DefaultConfig())
	if err != nil {
		return nil, err
	}

	t := &Tuner{
		mutator:       mutator,
		scorer:        scorer,
		maxIterations: 20,
		tracker:       defaultTracker,
		logger:        logging.GetLogger(),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.maxIterations < 1 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "max_iterations must be >= 1"),
			errors.Fields{"max_iterations": t.maxIterations},
		)
	}

	return t, nil
}

// DefaultCandidate is the template used when no initial candidate exists.
func DefaultCandidate() core.Candidate {
	return core.Candidate{
		"generation": `Generate a comprehensive PR-FAQ document following Amazon's format.

Project: {projectName}
Problem: {problemDescription}
Context: {businessContext}

Create a press release and FAQ that clearly articulates the customer problem, solution, and benefits.`,
	}
}

// Optimize runs the loop until the iteration budget is exhausted or the
// convergence tracker signals stop. The best candidate found is always
// preserved: a regressing mutation is discarded and the next mutation starts
// from the last kept candidate.
//
// A mutator or scorer failure aborts the run; the error is returned together
// with a result truncated at the failing iteration, so the last good state is
// still reported. A failed score is never coerced to zero.
func (t *Tuner) Optimize(ctx context.Context, initial core.Candidate) (*Result, error) {
	if len(initial) == 0 {
		initial = DefaultCandidate()
		t.logger.Info(ctx, "No initial candidate supplied, starting from the default template")
	}

	runID := uuid.New().String()
	ctx = logging.WithRunID(ctx, runID)
	startedAt := time.Now()

	t.logger.Info(ctx, "Starting optimization: max_iterations=%d, prompts=%v",
		t.maxIterations, initial.Names())

	result := &Result{
		RunID:     runID,
		StartedAt: startedAt,
	}

	// Iteration 0: the baseline becomes the initial best.
	baselineScore, err := t.scorer.Score(ctx, initial)
	if err != nil {
		result.Duration = time.Since(startedAt)
		return result, errors.WithFields(
			errors.Wrap(err, errors.ScoringFailed, "failed to score baseline"),
			errors.Fields{"iteration": 0},
		)
	}

	best := initial.Clone()
	bestScore := baselineScore
	current := initial

	result.BaselineScore = baselineScore
	result.BestCandidate = best

	t.logger.Info(ctx, "Baseline score: %.2f", baselineScore)

	if t.tracker != nil {
		t.tracker.Update(0, baselineScore)
	}
	if err := t.notifySink(ctx, best, bestScore, 0); err != nil {
		result.Duration = time.Since(startedAt)
		return result, err
	}

	for iteration := 1; iteration <= t.maxIterations; iteration++ {
		if err := errors.CheckContext(ctx, "optimization"); err != nil {
			t.finalize(result, bestScore, best, startedAt)
			return result, err
		}

		// Mutations derive from the last kept candidate, which is not
		// necessarily the one just tried.
		mutated, err := t.mutator.Mutate(ctx, current, iteration)
		if err != nil {
			t.finalize(result, bestScore, best, startedAt)
			return result, errors.WithFields(
				errors.Wrap(err, errors.MutationFailed, "failed to mutate candidate"),
				errors.Fields{"iteration": iteration},
			)
		}

		score, err := t.scorer.Score(ctx, mutated)
		if err != nil {
			t.finalize(result, bestScore, best, startedAt)
			return result, errors.WithFields(
				errors.Wrap(err, errors.ScoringFailed, "failed to score candidate"),
				errors.Fields{"iteration": iteration},
			)
		}

		improved := score > bestScore
		if improved {
			t.logger.Info(ctx, "Iteration %d improved: %.2f -> %.2f", iteration, bestScore, score)
			bestScore = score
			best = mutated.Clone()
			current = mutated
			if err := t.notifySink(ctx, best, bestScore, iteration); err != nil {
				t.finalize(result, bestScore, best, startedAt)
				return result, err
			}
		} else {
			t.logger.Debug(ctx, "Iteration %d discarded: %.2f (best %.2f)", iteration, score, bestScore)
		}

		result.History = append(result.History, convergence.IterationRecord{
			Iteration: iteration,
			Score:     score,
			BestScore: bestScore,
			Improved:  improved,
		})

		if t.tracker != nil {
			status := t.tracker.Update(iteration, score)
			if t.tracker.ShouldStop() {
				t.logger.Info(ctx, "Convergence detected at iteration %d after %d non-improving iterations, stopping early",
					status.ConvergenceIteration, status.NoImprovementCount)
				result.StoppedEarly = true
				break
			}
		}
	}

	t.finalize(result, bestScore, best, startedAt)
	t.logger.Info(ctx, "Optimization complete: baseline=%.2f final=%.2f improvement=%.2f iterations=%d",
		result.BaselineScore, result.FinalScore, result.Improvement, len(result.History))

	return result, nil
}

// notifySink reports an adoption, wrapping sink failures so they abort the
// run: losing the authoritative candidate would leave observers with a best
// score and no matching prompt text.
func (t *Tuner) notifySink(ctx context.Context, candidate core.Candidate, score float64, iteration int) error {
	if t.sink == nil {
		return nil
	}
	if err := t.sink.KeepBest(ctx, candidate, score, iteration); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to persist adopted candidate"),
			errors.Fields{"iteration": iteration, "score": score},
		)
	}
	return nil
}

// finalize fills the derived fields of the result.
func (t *Tuner) finalize(result *Result, bestScore float64, best core.Candidate, startedAt time.Time) {
	result.FinalScore = bestScore
	result.Improvement = bestScore - result.BaselineScore
	result.BestCandidate = best
	result.Duration = time.Since(startedAt)

	if t.tracker != nil {
		status := t.tracker.Status()
		result.Convergence = &status
		result.Recommendations = t.tracker.Recommendations()
	}
}
