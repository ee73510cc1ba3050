// Package results persists experiment results in SQLite.
package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xhad/reviewground/internal/models"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("experiment not found")

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
	experiment_id  TEXT PRIMARY KEY,
	created_at     TEXT NOT NULL,
	total_papers   INTEGER NOT NULL,
	aggregate_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS paper_results (
	experiment_id TEXT NOT NULL,
	paper_id      TEXT NOT NULL,
	position      INTEGER NOT NULL,
	result_json   TEXT NOT NULL,
	PRIMARY KEY (experiment_id, position),
	FOREIGN KEY (experiment_id) REFERENCES experiments(experiment_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS paper_results_paper_id ON paper_results (paper_id);
`

// Summary is the listing view of a stored experiment.
type Summary struct {
	ExperimentID string                `json:"experimentId"`
	Timestamp    time.Time             `json:"timestamp"`
	TotalPapers  int                   `json:"totalPapers"`
	Aggregated   models.BatchAggregate `json:"aggregated"`
}

type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path. ":memory:" keeps
// everything in a single in-process connection.
func New(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create results directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// sqlite serializes writers; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes a whole experiment, replacing any earlier run with the same id.
func (s *Store) Save(ctx context.Context, exp models.BatchExperimentResult) error {
	if exp.ExperimentID == "" {
		return fmt.Errorf("experiment id is required")
	}

	aggJSON, err := json.Marshal(exp.Aggregated)
	if err != nil {
		return fmt.Errorf("marshal aggregate: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM paper_results WHERE experiment_id = ?`, exp.ExperimentID); err != nil {
		return fmt.Errorf("clear paper results: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO experiments (experiment_id, created_at, total_papers, aggregate_json)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (experiment_id) DO UPDATE SET
		   created_at = excluded.created_at,
		   total_papers = excluded.total_papers,
		   aggregate_json = excluded.aggregate_json`,
		exp.ExperimentID, exp.Timestamp.UTC().Format(time.RFC3339Nano), exp.TotalPapers, string(aggJSON),
	)
	if err != nil {
		return fmt.Errorf("insert experiment: %w", err)
	}

	for i, r := range exp.Results {
		resultJSON, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal result for %s: %w", r.PaperID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO paper_results (experiment_id, paper_id, position, result_json) VALUES (?, ?, ?, ?)`,
			exp.ExperimentID, r.PaperID, i, string(resultJSON),
		)
		if err != nil {
			return fmt.Errorf("insert result for %s: %w", r.PaperID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, experimentID string) (models.BatchExperimentResult, error) {
	var (
		exp       models.BatchExperimentResult
		createdAt string
		aggJSON   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT experiment_id, created_at, total_papers, aggregate_json FROM experiments WHERE experiment_id = ?`,
		experimentID,
	).Scan(&exp.ExperimentID, &createdAt, &exp.TotalPapers, &aggJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BatchExperimentResult{}, fmt.Errorf("%w: %s", ErrNotFound, experimentID)
	}
	if err != nil {
		return models.BatchExperimentResult{}, fmt.Errorf("query experiment: %w", err)
	}

	if exp.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return models.BatchExperimentResult{}, fmt.Errorf("parse timestamp: %w", err)
	}
	if err := json.Unmarshal([]byte(aggJSON), &exp.Aggregated); err != nil {
		return models.BatchExperimentResult{}, fmt.Errorf("decode aggregate: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT result_json FROM paper_results WHERE experiment_id = ? ORDER BY position`, experimentID)
	if err != nil {
		return models.BatchExperimentResult{}, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	exp.Results = []models.PaperExperimentResult{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return models.BatchExperimentResult{}, fmt.Errorf("scan result: %w", err)
		}
		var r models.PaperExperimentResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return models.BatchExperimentResult{}, fmt.Errorf("decode result: %w", err)
		}
		exp.Results = append(exp.Results, r)
	}
	if err := rows.Err(); err != nil {
		return models.BatchExperimentResult{}, err
	}
	return exp, nil
}

// List returns stored experiments, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT experiment_id, created_at, total_papers, aggregate_json FROM experiments ORDER BY created_at DESC, experiment_id`)
	if err != nil {
		return nil, fmt.Errorf("query experiments: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum       Summary
			createdAt string
			aggJSON   string
		)
		if err := rows.Scan(&sum.ExperimentID, &createdAt, &sum.TotalPapers, &aggJSON); err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		if sum.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(aggJSON), &sum.Aggregated); err != nil {
			return nil, fmt.Errorf("decode aggregate: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
