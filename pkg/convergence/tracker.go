// Package convergence implements stall detection for iterative prompt
// optimization. A Tracker watches the stream of per-iteration scores and
// decides when the search has stopped producing significant gains and should
// halt early.
package convergence

import (
	"fmt"
	"math"

	"github.com/promptune/promptune/pkg/errors"
)

// Config contains configuration options for convergence detection.
type Config struct {
	// Consecutive non-improving iterations before declaring convergence
	NoImprovementThreshold int `json:"no_improvement_threshold" yaml:"no_improvement_threshold"` // Default: 5

	// Minimum percentage gain over the current best to count as significant
	MinImprovementPercent float64 `json:"min_improvement_percent" yaml:"min_improvement_percent"` // Default: 0.1

	// Whether ShouldStop may ever return true
	EnableEarlyStop bool `json:"enable_early_stop" yaml:"enable_early_stop"` // Default: true

	// Whether plateau statistics are computed for Status
	TrackPlateauVariance bool `json:"track_plateau_variance" yaml:"track_plateau_variance"` // Default: true
}

// DefaultConfig returns the default convergence detection configuration.
func DefaultConfig() Config {
	return Config{
		NoImprovementThreshold: 5,
		MinImprovementPercent:  0.1,
		EnableEarlyStop:        true,
		TrackPlateauVariance:   true,
	}
}

// IterationRecord is one entry in the optimization timeline. Records are
// append-only; the ordered sequence is the history of the search.
type IterationRecord struct {
	Iteration int     `json:"iteration"`
	Score     float64 `json:"score"`
	BestScore float64 `json:"best_score"`
	Improved  bool    `json:"improved"`
}

// Status is a snapshot of the tracker state after an update.
type Status struct {
	Converged            bool    `json:"converged"`
	ConvergenceIteration int     `json:"convergence_iteration"`
	NoImprovementCount   int     `json:"no_improvement_count"`
	BestScore            float64 `json:"best_score"`
	ShouldStop           bool    `json:"should_stop"`
	PlateauVariance      float64 `json:"plateau_variance"`
	PlateauAvg           float64 `json:"plateau_avg"`
	TotalIterations      int     `json:"total_iterations"`
	WastedIterations     int     `json:"wasted_iterations"`
}

// Tracker detects convergence in optimization runs. It is a pure state
// tracker: no I/O, single owner, and once converged it never transitions back
// to searching, even if a later score is dramatically better. The caller is
// expected to halt the loop when early stop is signaled.
type Tracker struct {
	config Config

	history              []IterationRecord
	bestScore            float64
	noImprovementCount   int
	converged            bool
	convergenceIteration int

	// Significant improvement deltas in the order they occurred, used for
	// the diminishing-returns recommendation. The bootstrap adoption over a
	// zero best is excluded.
	improvementDeltas []float64
}

// plateauVarianceLimit is the spread of plateau scores above which mutations
// are considered too aggressive.
const plateauVarianceLimit = 5.0

// New creates a Tracker, rejecting invalid thresholds at construction time.
func New(config Config) (*Tracker, error) {
	if config.NoImprovementThreshold < 1 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "no_improvement_threshold must be >= 1"),
			errors.Fields{"no_improvement_threshold": config.NoImprovementThreshold},
		)
	}
	if config.MinImprovementPercent < 0 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "min_improvement_percent must not be negative"),
			errors.Fields{"min_improvement_percent": config.MinImprovementPercent},
		)
	}

	return &Tracker{config: config}, nil
}

// Update records the result of one iteration and returns the resulting
// convergence status. Whether the score counts as an improvement is derived
// here from the score comparison alone: a numerically higher score whose gain
// is below MinImprovementPercent does not reset the patience counter, so
// noise-level gains cannot keep the search alive indefinitely.
func (t *Tracker) Update(iteration int, score float64) Status {
	// The record carries the running max as of this point: a score that is
	// numerically higher but below the significance gate still appears as the
	// best in the timeline, even though it is not adopted.
	recordBest := math.Max(t.bestScore, score)
	improved := false

	if score > t.bestScore {
		// Bootstrap case: any positive score over a zero best is a full gain.
		improvementPercent := 100.0
		if t.bestScore > 0 {
			improvementPercent = (score - t.bestScore) / t.bestScore * 100
		}

		if improvementPercent >= t.config.MinImprovementPercent {
			// The bootstrap adoption is not a search gain, so it does not
			// feed the diminishing-returns diagnostic.
			if t.bestScore > 0 {
				t.improvementDeltas = append(t.improvementDeltas, score-t.bestScore)
			}
			t.bestScore = score
			t.noImprovementCount = 0
			improved = true
		} else {
			t.noImprovementCount++
		}
	} else {
		t.noImprovementCount++
	}

	t.history = append(t.history, IterationRecord{
		Iteration: iteration,
		Score:     score,
		BestScore: recordBest,
		Improved:  improved,
	})

	if t.noImprovementCount >= t.config.NoImprovementThreshold && !t.converged {
		t.converged = true
		t.convergenceIteration = iteration
	}

	return t.Status()
}

// ShouldStop reports whether the optimization should stop early. It is always
// false when early stopping is disabled.
func (t *Tracker) ShouldStop() bool {
	if !t.config.EnableEarlyStop {
		return false
	}
	return t.converged
}

// Status returns the current convergence status snapshot.
func (t *Tracker) Status() Status {
	variance, avg := t.plateauStats()

	return Status{
		Converged:            t.converged,
		ConvergenceIteration: t.convergenceIteration,
		NoImprovementCount:   t.noImprovementCount,
		BestScore:            t.bestScore,
		ShouldStop:           t.ShouldStop(),
		PlateauVariance:      variance,
		PlateauAvg:           avg,
		TotalIterations:      len(t.history),
		WastedIterations:     t.wastedIterations(),
	}
}

// History returns a copy of the full iteration timeline.
func (t *Tracker) History() []IterationRecord {
	history := make([]IterationRecord, len(t.history))
	copy(history, t.history)
	return history
}

// BestScore returns the best score seen so far. It is non-decreasing across
// updates.
func (t *Tracker) BestScore() float64 {
	return t.bestScore
}

// plateauStats computes the spread and mean of scores recorded strictly after
// the convergence point.
func (t *Tracker) plateauStats() (variance, avg float64) {
	if !t.converged || !t.config.TrackPlateauVariance {
		return 0, 0
	}

	var minScore, maxScore, sum float64
	count := 0
	for _, record := range t.history {
		if record.Iteration <= t.convergenceIteration {
			continue
		}
		if count == 0 || record.Score < minScore {
			minScore = record.Score
		}
		if count == 0 || record.Score > maxScore {
			maxScore = record.Score
		}
		sum += record.Score
		count++
	}

	if count == 0 {
		return 0, 0
	}
	return maxScore - minScore, sum / float64(count)
}

// wastedIterations counts iterations elapsed since convergence was declared.
func (t *Tracker) wastedIterations() int {
	if !t.converged {
		return 0
	}
	return len(t.history) - t.convergenceIteration
}

// Recommendations derives human-readable diagnostics from the run so far.
// It has no side effects and is idempotent between updates.
func (t *Tracker) Recommendations() []string {
	var recommendations []string

	if t.converged {
		if wasted := t.wastedIterations(); wasted > 0 {
			recommendations = append(recommendations, fmt.Sprintf(
				"Convergence detected at iteration %d. Could have stopped %d iterations earlier.",
				t.convergenceIteration, wasted))
		}
	}

	if variance, _ := t.plateauStats(); variance > plateauVarianceLimit {
		recommendations = append(recommendations, fmt.Sprintf(
			"High plateau variance (±%.2f) suggests mutations are too aggressive. Consider reducing mutation strength.",
			variance))
	}

	if len(t.improvementDeltas) >= 2 {
		first := t.improvementDeltas[0]
		last := t.improvementDeltas[len(t.improvementDeltas)-1]
		if last < first/2 {
			recommendations = append(recommendations,
				"Diminishing returns detected. Consider more aggressive mutations or different optimization strategy.")
		}
	}

	return recommendations
}
