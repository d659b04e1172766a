package storage

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptune/promptune/pkg/convergence"
	"github.com/promptune/promptune/pkg/core"
	"github.com/promptune/promptune/pkg/errors"
	"github.com/promptune/promptune/pkg/logging"
	"github.com/promptune/promptune/pkg/tuner"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAdoptionAndBestCandidate(t *testing.T) {
	store := openStore(t)
	sink := store.Sink("demo")

	ctx := logging.WithRunID(context.Background(), "run-1")

	require.NoError(t, sink.KeepBest(ctx, core.Candidate{"generation": "v0"}, 50, 0))
	require.NoError(t, sink.KeepBest(ctx, core.Candidate{"generation": "v3"}, 72, 3))

	candidate, score, err := store.BestCandidate(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "v3", candidate["generation"])
	assert.Equal(t, 72.0, score)
}

func TestKeepBestRequiresRunID(t *testing.T) {
	store := openStore(t)
	sink := store.Sink("demo")

	err := sink.KeepBest(context.Background(), core.Candidate{"generation": "x"}, 50, 0)
	assert.Error(t, err)
}

func TestCompleteRunAndLatest(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	result := &tuner.Result{
		RunID:         "run-1",
		BaselineScore: 65,
		FinalScore:    70,
		StoppedEarly:  true,
		StartedAt:     time.Now().Add(-time.Minute),
		History: []convergence.IterationRecord{
			{Iteration: 1, Score: 70, BestScore: 70, Improved: true},
			{Iteration: 2, Score: 70, BestScore: 70, Improved: false},
		},
	}
	require.NoError(t, store.CompleteRun(ctx, "demo", result))

	summary, err := store.LatestRun(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "run-1", summary.RunID)
	assert.True(t, summary.Completed)
	assert.True(t, summary.StoppedEarly)
	assert.Equal(t, 65.0, summary.BaselineScore)
	assert.Equal(t, 70.0, summary.FinalScore)
	assert.Equal(t, 2, summary.Iterations)

	history, err := store.IterationHistory(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Improved)
	assert.False(t, history[1].Improved)
}

func TestLatestRunPicksNewest(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	older := &tuner.Result{RunID: "run-old", StartedAt: time.Now().Add(-time.Hour)}
	newer := &tuner.Result{RunID: "run-new", StartedAt: time.Now()}
	require.NoError(t, store.CompleteRun(ctx, "demo", older))
	require.NoError(t, store.CompleteRun(ctx, "demo", newer))

	summary, err := store.LatestRun(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "run-new", summary.RunID)
}

func TestLatestRunNotFound(t *testing.T) {
	store := openStore(t)

	_, err := store.LatestRun(context.Background(), "missing")
	require.Error(t, err)

	var perr *errors.Error
	require.True(t, stderrors.As(err, &perr))
	assert.Equal(t, errors.ResourceNotFound, perr.Code())
}

func TestBestCandidateNotFound(t *testing.T) {
	store := openStore(t)

	_, _, err := store.BestCandidate(context.Background(), "missing")
	require.Error(t, err)

	var perr *errors.Error
	require.True(t, stderrors.As(err, &perr))
	assert.Equal(t, errors.ResourceNotFound, perr.Code())
}

func TestSinkIntegratesWithTuner(t *testing.T) {
	store := openStore(t)
	sink := store.Sink("demo")

	mutator := mutatorFunc(func(_ context.Context, candidate core.Candidate, iteration int) (core.Candidate, error) {
		next := candidate.Clone()
		next["generation"] = next["generation"] + "+"
		return next, nil
	})

	scores := []float64{50, 60, 55}
	call := 0
	scorer := scorerFunc(func(context.Context, core.Candidate) (float64, error) {
		score := scores[call%len(scores)]
		call++
		return score, nil
	})

	tn, err := tuner.New(mutator, scorer,
		tuner.WithMaxIterations(2),
		tuner.WithoutConvergenceDetection(),
		tuner.WithKeepSink(sink))
	require.NoError(t, err)

	result, err := tn.Optimize(context.Background(), core.Candidate{"generation": "seed"})
	require.NoError(t, err)

	candidate, score, err := store.BestCandidate(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, score)
	assert.Equal(t, "seed+", candidate["generation"])
}

type mutatorFunc func(context.Context, core.Candidate, int) (core.Candidate, error)

func (f mutatorFunc) Mutate(ctx context.Context, c core.Candidate, i int) (core.Candidate, error) {
	return f(ctx, c, i)
}

type scorerFunc func(context.Context, core.Candidate) (float64, error)

func (f scorerFunc) Score(ctx context.Context, c core.Candidate) (float64, error) {
	return f(ctx, c)
}
