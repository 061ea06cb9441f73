package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS allot_runs (
	run_id        UUID PRIMARY KEY,
	source        TEXT NOT NULL DEFAULT '',
	agents        TEXT[] NOT NULL,
	items         TEXT[] NOT NULL,
	mode          TEXT NOT NULL,
	top_k         INTEGER NOT NULL DEFAULT 0,
	seed          BIGINT NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	preferences   JSONB,
	allocation    JSONB,
	decomposition JSONB,
	selected      JSONB,
	rounds        INTEGER NOT NULL DEFAULT 0,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the runs table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const runColumns = `run_id, source, agents, items, mode, top_k, seed,
	status, outcome, error,
	preferences, allocation, decomposition, selected, rounds,
	duration_ms, created_at`

func (s *PostgresStore) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	agents, items := run.Agents, run.Items
	if agents == nil {
		agents = []string{}
	}
	if items == nil {
		items = []string{}
	}
	prefsJSON, _ := json.Marshal(run.Preferences)
	allocJSON, _ := json.Marshal(run.Allocation)
	termsJSON, _ := json.Marshal(run.Decomposition)
	selectedJSON, _ := json.Marshal(run.Selected)

	return s.pool.QueryRow(ctx, `
		INSERT INTO allot_runs (run_id, source, agents, items, mode, top_k, seed,
			status, outcome, error,
			preferences, allocation, decomposition, selected, rounds, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at`,
		run.ID, run.Source, agents, items, run.Mode, run.TopK, run.Seed,
		run.Status, run.Outcome, run.Error,
		prefsJSON, allocJSON, termsJSON, selectedJSON, run.Rounds, run.DurationMs,
	).Scan(&run.CreatedAt)
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+runColumns+` FROM allot_runs WHERE run_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM allot_runs WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.Status != nil {
		n++
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, string(*filter.Status))
	}
	if filter.Source != "" {
		n++
		query += fmt.Sprintf(" AND source = $%d", n)
		args = append(args, filter.Source)
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	n++
	query += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, limit)

	if filter.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

func scanRuns(rows pgx.Rows) ([]*Run, error) {
	var runs []*Run
	for rows.Next() {
		r := &Run{}
		var prefsJSON, allocJSON, termsJSON, selectedJSON []byte
		if err := rows.Scan(
			&r.ID, &r.Source, &r.Agents, &r.Items, &r.Mode, &r.TopK, &r.Seed,
			&r.Status, &r.Outcome, &r.Error,
			&prefsJSON, &allocJSON, &termsJSON, &selectedJSON, &r.Rounds,
			&r.DurationMs, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		if prefsJSON != nil {
			_ = json.Unmarshal(prefsJSON, &r.Preferences)
		}
		if allocJSON != nil {
			_ = json.Unmarshal(allocJSON, &r.Allocation)
		}
		if termsJSON != nil {
			_ = json.Unmarshal(termsJSON, &r.Decomposition)
		}
		if selectedJSON != nil {
			_ = json.Unmarshal(selectedJSON, &r.Selected)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
