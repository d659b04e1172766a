package convergence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "default config is valid",
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name: "threshold of one is valid",
			config: Config{
				NoImprovementThreshold: 1,
				MinImprovementPercent:  0.1,
				EnableEarlyStop:        true,
			},
			wantErr: false,
		},
		{
			name:    "zero threshold rejected",
			config:  Config{NoImprovementThreshold: 0, MinImprovementPercent: 0.1},
			wantErr: true,
		},
		{
			name:    "negative threshold rejected",
			config:  Config{NoImprovementThreshold: -3, MinImprovementPercent: 0.1},
			wantErr: true,
		},
		{
			name:    "negative improvement percent rejected",
			config:  Config{NoImprovementThreshold: 5, MinImprovementPercent: -0.1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, tracker)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, tracker)
			}
		})
	}
}

func TestBestScoreMonotonicity(t *testing.T) {
	tracker, err := New(DefaultConfig())
	require.NoError(t, err)

	scores := []float64{10, 50, 30, 80, 20, 80, 79.9, 90, 5}
	previousBest := 0.0

	for i, score := range scores {
		status := tracker.Update(i+1, score)
		assert.GreaterOrEqual(t, status.BestScore, previousBest,
			"best score must never decrease")
		previousBest = status.BestScore
	}

	assert.Equal(t, 90.0, tracker.BestScore())
}

func TestConvergenceAfterPlateau(t *testing.T) {
	tracker, err := New(DefaultConfig())
	require.NoError(t, err)

	// Baseline, then one genuine improvement, then five flat iterations.
	tracker.Update(0, 10)
	status := tracker.Update(1, 20)
	assert.False(t, status.Converged)
	assert.Equal(t, 20.0, status.BestScore)

	for i := 2; i <= 5; i++ {
		status = tracker.Update(i, 20)
		assert.False(t, status.Converged, "iteration %d should not converge yet", i)
	}

	status = tracker.Update(6, 20)
	assert.True(t, status.Converged)
	assert.Equal(t, 6, status.ConvergenceIteration)
	assert.Equal(t, 1, status.WastedIterations)
	assert.Equal(t, 0.0, status.PlateauVariance)
	assert.True(t, tracker.ShouldStop())
}

func TestSignificanceGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinImprovementPercent = 0.1
	tracker, err := New(cfg)
	require.NoError(t, err)

	tracker.Update(1, 100)
	require.Equal(t, 100.0, tracker.BestScore())

	// 0.05% gain: numerically higher but not significant.
	status := tracker.Update(2, 100.05)
	assert.Equal(t, 1, status.NoImprovementCount,
		"sub-threshold gain must not reset the counter")
	assert.Equal(t, 100.0, status.BestScore,
		"sub-threshold gain must not be adopted as best")

	// 0.2% gain: significant, counter resets and best advances.
	status = tracker.Update(3, 100.2)
	assert.Equal(t, 0, status.NoImprovementCount)
	assert.Equal(t, 100.2, status.BestScore)

	// The timeline records the running max even when a gain is not adopted:
	// the rejected 100.05 still shows as the best at that point.
	history := tracker.History()
	require.Len(t, history, 3)
	assert.Equal(t, 100.05, history[1].BestScore)
	assert.False(t, history[1].Improved)
	assert.Equal(t, 100.2, history[2].BestScore)
	assert.True(t, history[2].Improved)
}

func TestBootstrapImprovement(t *testing.T) {
	tracker, err := New(DefaultConfig())
	require.NoError(t, err)

	// Any positive score over a zero best counts as a 100% gain.
	status := tracker.Update(1, 0.01)
	assert.Equal(t, 0.01, status.BestScore)
	assert.Equal(t, 0, status.NoImprovementCount)
	assert.True(t, tracker.History()[0].Improved)
}

func TestEarlyStopDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableEarlyStop = false
	tracker, err := New(cfg)
	require.NoError(t, err)

	tracker.Update(0, 50)
	for i := 1; i <= 100; i++ {
		tracker.Update(i, 50)
	}

	status := tracker.Status()
	assert.True(t, status.Converged, "convergence is still tracked")
	assert.False(t, tracker.ShouldStop(), "but early stop is never signaled")
	assert.False(t, status.ShouldStop)
}

func TestConvergedIsTerminal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoImprovementThreshold = 2
	tracker, err := New(cfg)
	require.NoError(t, err)

	tracker.Update(1, 40)
	tracker.Update(2, 40)
	status := tracker.Update(3, 40)
	require.True(t, status.Converged)
	require.Equal(t, 3, status.ConvergenceIteration)

	// A dramatically better late score updates best but does not reopen the
	// search or move the convergence point.
	status = tracker.Update(4, 90)
	assert.True(t, status.Converged)
	assert.Equal(t, 3, status.ConvergenceIteration)
	assert.Equal(t, 90.0, status.BestScore)
	assert.True(t, tracker.ShouldStop())
}

func TestPlateauStats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoImprovementThreshold = 2
	tracker, err := New(cfg)
	require.NoError(t, err)

	tracker.Update(1, 50)
	tracker.Update(2, 48)
	status := tracker.Update(3, 47)
	require.True(t, status.Converged)
	require.Equal(t, 3, status.ConvergenceIteration)

	// Scores strictly after the convergence point form the plateau.
	tracker.Update(4, 40)
	status = tracker.Update(5, 46)

	assert.Equal(t, 6.0, status.PlateauVariance)
	assert.Equal(t, 43.0, status.PlateauAvg)
	assert.Equal(t, 2, status.WastedIterations)
}

func TestPlateauVarianceDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoImprovementThreshold = 2
	cfg.TrackPlateauVariance = false
	tracker, err := New(cfg)
	require.NoError(t, err)

	tracker.Update(1, 50)
	tracker.Update(2, 48)
	tracker.Update(3, 47)
	tracker.Update(4, 30)
	status := tracker.Update(5, 46)

	require.True(t, status.Converged)
	assert.Equal(t, 0.0, status.PlateauVariance)
	assert.Equal(t, 0.0, status.PlateauAvg)
}

func TestRecommendationsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoImprovementThreshold = 2
	tracker, err := New(cfg)
	require.NoError(t, err)

	tracker.Update(1, 60)
	tracker.Update(2, 60)
	tracker.Update(3, 60)
	tracker.Update(4, 55)

	first := tracker.Recommendations()
	second := tracker.Recommendations()
	assert.Equal(t, first, second,
		"repeated calls without an update must yield identical output")
	assert.NotEmpty(t, first)
}

func TestRecommendationDiminishingReturns(t *testing.T) {
	tracker, err := New(DefaultConfig())
	require.NoError(t, err)

	// Baseline, then a gain of 40 followed by a much smaller one of 5.
	tracker.Update(0, 40)
	tracker.Update(1, 80)
	tracker.Update(2, 85)

	recommendations := tracker.Recommendations()
	require.Len(t, recommendations, 1)
	assert.Contains(t, recommendations[0], "Diminishing returns")
}

func TestRecommendationIgnoresBootstrapDelta(t *testing.T) {
	tracker, err := New(DefaultConfig())
	require.NoError(t, err)

	// The baseline adoption is not a search gain: one later small gain must
	// not read as diminishing returns against the whole baseline score.
	tracker.Update(0, 50)
	tracker.Update(1, 55)

	for _, rec := range tracker.Recommendations() {
		assert.NotContains(t, rec, "Diminishing returns")
	}
}

func TestRecommendationHighPlateauVariance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoImprovementThreshold = 2
	tracker, err := New(cfg)
	require.NoError(t, err)

	tracker.Update(1, 60)
	tracker.Update(2, 60)
	tracker.Update(3, 60)
	tracker.Update(4, 50)
	tracker.Update(5, 58)

	joined := strings.Join(tracker.Recommendations(), "\n")
	assert.Contains(t, joined, "plateau variance",
		"high plateau variance should be flagged")
}

func TestHistoryIsAppendOnlyCopy(t *testing.T) {
	tracker, err := New(DefaultConfig())
	require.NoError(t, err)

	tracker.Update(1, 30)
	tracker.Update(2, 60)

	history := tracker.History()
	require.Len(t, history, 2)
	assert.Equal(t, IterationRecord{Iteration: 1, Score: 30, BestScore: 30, Improved: true}, history[0])
	assert.Equal(t, IterationRecord{Iteration: 2, Score: 60, BestScore: 60, Improved: true}, history[1])

	// Mutating the returned slice must not affect the tracker.
	history[0].Score = 999
	assert.Equal(t, 30.0, tracker.History()[0].Score)
}
