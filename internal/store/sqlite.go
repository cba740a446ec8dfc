package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/tonearm/tonearm/internal/consensus"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS track_analyses (
	id               TEXT PRIMARY KEY,
	path             TEXT NOT NULL,
	sample_rate      INTEGER NOT NULL,
	duration_ms      INTEGER NOT NULL,
	tempo_bpm        REAL,
	tempo_confidence REAL,
	key_name         TEXT,
	key_confidence   REAL,
	tempo_result     TEXT,
	key_result       TEXT,
	analyzed_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_track_analyses_path ON track_analyses(path);
CREATE INDEX IF NOT EXISTS idx_track_analyses_analyzed_at ON track_analyses(analyzed_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, ta *consensus.TrackAnalysis) error {
	tempoJSON, keyJSON, err := resultJSON(ta)
	if err != nil {
		return err
	}
	tempoBPM, tempoConf, keyName, keyConf := scalarColumns(ta)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO track_analyses
			(id, path, sample_rate, duration_ms, tempo_bpm, tempo_confidence,
			 key_name, key_confidence, tempo_result, key_result, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ta.ID, ta.Path, ta.SampleRate, ta.DurationMS,
		tempoBPM, tempoConf, keyName, keyConf,
		tempoJSON, keyJSON, ta.AnalyzedAt.UTC().Format(time.RFC3339Nano),
	)
	return eris.Wrap(err, "sqlite: insert analysis")
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (*consensus.TrackAnalysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, sample_rate, duration_ms, tempo_result, key_result, analyzed_at
		FROM track_analyses WHERE id = ?`, id)
	return scanAnalysis(row)
}

func (s *SQLiteStore) GetByPath(ctx context.Context, path string) (*consensus.TrackAnalysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, sample_rate, duration_ms, tempo_result, key_result, analyzed_at
		FROM track_analyses WHERE path = ?
		ORDER BY analyzed_at DESC LIMIT 1`, path)
	return scanAnalysis(row)
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]consensus.TrackAnalysis, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, path, sample_rate, duration_ms, tempo_result, key_result, analyzed_at
		FROM track_analyses`
	args := []any{}
	if filter.PathPrefix != "" {
		query += ` WHERE path LIKE ?`
		args = append(args, filter.PathPrefix+"%")
	}
	query += ` ORDER BY analyzed_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close()

	var out []consensus.TrackAnalysis
	for rows.Next() {
		ta, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ta)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate analyses")
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*consensus.TrackAnalysis, error) {
	var (
		ta         consensus.TrackAnalysis
		tempoJSON  sql.NullString
		keyJSON    sql.NullString
		analyzedAt string
	)
	err := row.Scan(&ta.ID, &ta.Path, &ta.SampleRate, &ta.DurationMS, &tempoJSON, &keyJSON, &analyzedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan analysis")
	}

	if ta.AnalyzedAt, err = time.Parse(time.RFC3339Nano, analyzedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse analyzed_at")
	}
	if err := unmarshalResults(&ta, nullableBytes(tempoJSON), nullableBytes(keyJSON)); err != nil {
		return nil, err
	}
	return &ta, nil
}

func nullableBytes(s sql.NullString) []byte {
	if !s.Valid {
		return nil
	}
	return []byte(s.String)
}

// resultJSON serializes the per-feature results, preserving the full
// audit trail. Absent features stay NULL.
func resultJSON(ta *consensus.TrackAnalysis) (tempo, key any, err error) {
	if ta.Tempo != nil {
		b, err := json.Marshal(ta.Tempo)
		if err != nil {
			return nil, nil, eris.Wrap(err, "store: marshal tempo result")
		}
		tempo = string(b)
	}
	if ta.Key != nil {
		b, err := json.Marshal(ta.Key)
		if err != nil {
			return nil, nil, eris.Wrap(err, "store: marshal key result")
		}
		key = string(b)
	}
	return tempo, key, nil
}

func unmarshalResults(ta *consensus.TrackAnalysis, tempoJSON, keyJSON []byte) error {
	if len(tempoJSON) > 0 {
		ta.Tempo = &consensus.Result{}
		if err := json.Unmarshal(tempoJSON, ta.Tempo); err != nil {
			return eris.Wrap(err, "store: unmarshal tempo result")
		}
	}
	if len(keyJSON) > 0 {
		ta.Key = &consensus.Result{}
		if err := json.Unmarshal(keyJSON, ta.Key); err != nil {
			return eris.Wrap(err, "store: unmarshal key result")
		}
	}
	return nil
}
