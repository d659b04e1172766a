// Package storage persists optimization runs to SQLite: one row per run,
// one per iteration, and one per adopted candidate so the authoritative
// prompt text for any best score can always be recovered.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/promptune/promptune/pkg/core"
	"github.com/promptune/promptune/pkg/errors"
	"github.com/promptune/promptune/pkg/logging"
	"github.com/promptune/promptune/pkg/tuner"
)

// Store wraps the SQLite database holding run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the run database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to open run database"),
			errors.Fields{"path": path})
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrap(err, errors.StorageFailed, "failed to configure run database")
		}
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initDB() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		completed_at INTEGER,
		baseline_score REAL,
		final_score REAL,
		stopped_early INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS iterations (
		run_id TEXT NOT NULL REFERENCES runs(id),
		iteration INTEGER NOT NULL,
		score REAL NOT NULL,
		best_score REAL NOT NULL,
		improved INTEGER NOT NULL,
		PRIMARY KEY (run_id, iteration)
	);

	CREATE TABLE IF NOT EXISTS adoptions (
		run_id TEXT NOT NULL REFERENCES runs(id),
		iteration INTEGER NOT NULL,
		score REAL NOT NULL,
		prompts TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (run_id, iteration)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project, started_at);
	`

	if _, err := s.db.Exec(query); err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to initialize run database schema")
	}
	return nil
}

// Sink returns a tuner.KeepSink recording adoptions for a project. The run
// ID is taken from the logging context the tuner establishes, so the sink
// needs no per-run setup.
func (s *Store) Sink(project string) *AdoptionSink {
	return &AdoptionSink{store: s, project: project}
}

// AdoptionSink persists each adopted best candidate inside one transaction,
// so a best score is never visible without its prompt text.
type AdoptionSink struct {
	store   *Store
	project string
}

var _ tuner.KeepSink = (*AdoptionSink)(nil)

// KeepBest implements tuner.KeepSink.
func (a *AdoptionSink) KeepBest(ctx context.Context, candidate core.Candidate, score float64, iteration int) error {
	runID, ok := logging.GetRunID(ctx)
	if !ok {
		return errors.New(errors.StorageFailed, "no run ID in context")
	}

	prompts, err := json.Marshal(candidate)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to encode adopted candidate")
	}

	tx, err := a.store.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to begin adoption transaction")
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, project, started_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		runID, a.project, now); err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to register run")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO adoptions (run_id, iteration, score, prompts, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, iteration, score, string(prompts), now); err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to record adoption")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET final_score = ? WHERE id = ?`,
		score, runID); err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to update run score")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to commit adoption")
	}
	return nil
}

// CompleteRun records the final state of a finished run, including its full
// iteration history.
func (s *Store) CompleteRun(ctx context.Context, project string, result *tuner.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to begin completion transaction")
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, project, started_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		result.RunID, project, result.StartedAt.Unix()); err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to register run")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET completed_at = ?, baseline_score = ?, final_score = ?, stopped_early = ?
		 WHERE id = ?`,
		now, result.BaselineScore, result.FinalScore, boolToInt(result.StoppedEarly),
		result.RunID); err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to finalize run")
	}

	for _, record := range result.History {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO iterations (run_id, iteration, score, best_score, improved)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(run_id, iteration) DO NOTHING`,
			result.RunID, record.Iteration, record.Score, record.BestScore,
			boolToInt(record.Improved)); err != nil {
			return errors.Wrap(err, errors.StorageFailed, "failed to record iteration")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to commit run completion")
	}
	return nil
}

// RunSummary is the persisted view of one run.
type RunSummary struct {
	RunID         string
	Project       string
	StartedAt     time.Time
	CompletedAt   time.Time
	Completed     bool
	BaselineScore float64
	FinalScore    float64
	StoppedEarly  bool
	Iterations    int
}

// LatestRun returns the most recently started run for a project.
func (s *Store) LatestRun(ctx context.Context, project string) (*RunSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project, started_at, completed_at, baseline_score, final_score, stopped_early
		 FROM runs WHERE project = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		project)

	var summary RunSummary
	var startedAt int64
	var completedAt, baseline, final sql.NullFloat64
	var stoppedEarly int

	err := row.Scan(&summary.RunID, &summary.Project, &startedAt,
		&completedAt, &baseline, &final, &stoppedEarly)
	if err == sql.ErrNoRows {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "no runs recorded for project"),
			errors.Fields{"project": project})
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to read latest run")
	}

	summary.StartedAt = time.Unix(startedAt, 0)
	if completedAt.Valid {
		summary.Completed = true
		summary.CompletedAt = time.Unix(int64(completedAt.Float64), 0)
	}
	summary.BaselineScore = baseline.Float64
	summary.FinalScore = final.Float64
	summary.StoppedEarly = stoppedEarly != 0

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM iterations WHERE run_id = ?`,
		summary.RunID).Scan(&summary.Iterations); err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to count iterations")
	}

	return &summary, nil
}

// BestCandidate returns the last adopted candidate of a run and its score.
func (s *Store) BestCandidate(ctx context.Context, runID string) (core.Candidate, float64, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT prompts, score FROM adoptions
		 WHERE run_id = ? ORDER BY iteration DESC LIMIT 1`,
		runID)

	var prompts string
	var score float64
	err := row.Scan(&prompts, &score)
	if err == sql.ErrNoRows {
		return nil, 0, errors.WithFields(
			errors.New(errors.ResourceNotFound, "no adopted candidate for run"),
			errors.Fields{"run_id": runID})
	}
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.StorageFailed, "failed to read adopted candidate")
	}

	var candidate core.Candidate
	if err := json.Unmarshal([]byte(prompts), &candidate); err != nil {
		return nil, 0, errors.Wrap(err, errors.StorageFailed, "corrupt adopted candidate record")
	}

	return candidate, score, nil
}

// IterationHistory returns the recorded iterations of a run in order.
func (s *Store) IterationHistory(ctx context.Context, runID string) ([]IterationRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT iteration, score, best_score, improved
		 FROM iterations WHERE run_id = ? ORDER BY iteration`,
		runID)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to read iteration history")
	}
	defer rows.Close()

	var history []IterationRow
	for rows.Next() {
		var row IterationRow
		var improved int
		if err := rows.Scan(&row.Iteration, &row.Score, &row.BestScore, &improved); err != nil {
			return nil, errors.Wrap(err, errors.StorageFailed, "failed to scan iteration row")
		}
		row.Improved = improved != 0
		history = append(history, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to iterate history rows")
	}

	return history, nil
}

// IterationRow is one persisted iteration record.
type IterationRow struct {
	Iteration int
	Score     float64
	BestScore float64
	Improved  bool
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
