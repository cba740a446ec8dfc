package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/tonearm/tonearm/internal/consensus"
)

// Pool is the subset of pgxpool.Pool the store touches; pgxmock
// implements it for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS track_analyses (
	id               TEXT PRIMARY KEY,
	path             TEXT NOT NULL,
	sample_rate      INTEGER NOT NULL,
	duration_ms      BIGINT NOT NULL,
	tempo_bpm        DOUBLE PRECISION,
	tempo_confidence DOUBLE PRECISION,
	key_name         TEXT,
	key_confidence   DOUBLE PRECISION,
	tempo_result     JSONB,
	key_result       JSONB,
	analyzed_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_track_analyses_path ON track_analyses(path);
CREATE INDEX IF NOT EXISTS idx_track_analyses_analyzed_at ON track_analyses(analyzed_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, ta *consensus.TrackAnalysis) error {
	tempoJSON, keyJSON, err := resultJSON(ta)
	if err != nil {
		return err
	}
	tempoBPM, tempoConf, keyName, keyConf := scalarColumns(ta)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO track_analyses
			(id, path, sample_rate, duration_ms, tempo_bpm, tempo_confidence,
			 key_name, key_confidence, tempo_result, key_result, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ta.ID, ta.Path, ta.SampleRate, ta.DurationMS,
		tempoBPM, tempoConf, keyName, keyConf,
		tempoJSON, keyJSON, ta.AnalyzedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert analysis")
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, id string) (*consensus.TrackAnalysis, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, path, sample_rate, duration_ms, tempo_result, key_result, analyzed_at
		FROM track_analyses WHERE id = $1`, id)
	return scanPgAnalysis(row)
}

func (s *PostgresStore) GetByPath(ctx context.Context, path string) (*consensus.TrackAnalysis, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, path, sample_rate, duration_ms, tempo_result, key_result, analyzed_at
		FROM track_analyses WHERE path = $1
		ORDER BY analyzed_at DESC LIMIT 1`, path)
	return scanPgAnalysis(row)
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]consensus.TrackAnalysis, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, path, sample_rate, duration_ms, tempo_result, key_result, analyzed_at
		FROM track_analyses`
	args := []any{}
	if filter.PathPrefix != "" {
		query += ` WHERE path LIKE $1 ORDER BY analyzed_at DESC LIMIT $2 OFFSET $3`
		args = append(args, filter.PathPrefix+"%", limit, filter.Offset)
	} else {
		query += ` ORDER BY analyzed_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var out []consensus.TrackAnalysis
	for rows.Next() {
		ta, err := scanPgAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ta)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate analyses")
}

func scanPgAnalysis(row pgx.Row) (*consensus.TrackAnalysis, error) {
	var (
		ta        consensus.TrackAnalysis
		tempoJSON []byte
		keyJSON   []byte
	)
	err := row.Scan(&ta.ID, &ta.Path, &ta.SampleRate, &ta.DurationMS, &tempoJSON, &keyJSON, &ta.AnalyzedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan analysis")
	}
	if err := unmarshalResults(&ta, tempoJSON, keyJSON); err != nil {
		return nil, err
	}
	return &ta, nil
}
