// Package journal keeps an operator-facing log of served predictions in
// SQLite. It is optional; nothing on the inference path reads from it.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"loanml/pkg/dataprep"
	"loanml/pkg/pipeline"
)

// ErrNotFound is returned when no prediction has the requested ID.
var ErrNotFound = errors.New("journal: prediction not found")

// timeLayout has fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the prediction journal.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates or opens a journal database.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS predictions (
			id          TEXT PRIMARY KEY,
			label       INTEGER NOT NULL,
			probability REAL NOT NULL,
			input       TEXT NOT NULL,
			features    TEXT NOT NULL,
			filled      TEXT NOT NULL,
			created_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
	`)
	return err
}

// Record stores one prediction.
func (s *Store) Record(ctx context.Context, rec pipeline.PredictionRecord) error {
	input, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	features, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	filled, err := json.Marshal(rec.Filled)
	if err != nil {
		return fmt.Errorf("encode filled: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, label, probability, input, features, filled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Label, rec.Probability, string(input), string(features), string(filled),
		rec.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

// Get returns one prediction by ID.
func (s *Store) Get(ctx context.Context, id string) (pipeline.PredictionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, probability, input, features, filled, created_at
		 FROM predictions WHERE id = ?`, id)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.PredictionRecord{}, ErrNotFound
	}
	return rec, err
}

// Recent returns up to limit predictions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]pipeline.PredictionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, probability, input, features, filled, created_at
		 FROM predictions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []pipeline.PredictionRecord
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (pipeline.PredictionRecord, error) {
	var (
		rec                     pipeline.PredictionRecord
		input, features, filled string
		createdAt               string
	)
	if err := sc.Scan(&rec.ID, &rec.Label, &rec.Probability, &input, &features, &filled, &createdAt); err != nil {
		return rec, err
	}
	rec.Approved = rec.Label == 1
	rec.Input = dataprep.RawRecord{}
	if err := json.Unmarshal([]byte(input), &rec.Input); err != nil {
		return rec, fmt.Errorf("decode input: %w", err)
	}
	rec.Features = dataprep.Features{}
	if err := json.Unmarshal([]byte(features), &rec.Features); err != nil {
		return rec, fmt.Errorf("decode features: %w", err)
	}
	if err := json.Unmarshal([]byte(filled), &rec.Filled); err != nil {
		return rec, fmt.Errorf("decode filled: %w", err)
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return rec, fmt.Errorf("decode created_at: %w", err)
	}
	rec.CreatedAt = t
	return rec, nil
}
