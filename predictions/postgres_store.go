package predictions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresStore implements Store backed by the predictions table
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects to databaseURL and verifies the connection
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func (s *PostgresStore) Add(ctx context.Context, rec *Record) error {
	prepare(rec)

	input, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("failed to encode input: %w", err)
	}
	confidence, err := json.Marshal(rec.Confidence)
	if err != nil {
		return fmt.Errorf("failed to encode confidence: %w", err)
	}
	recommendations := rec.Recommendations
	if recommendations == nil {
		recommendations = []string{}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO predictions (id, input, prediction, confidence, recommendations, model_name, model_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, input, rec.Prediction, confidence, pq.Array(recommendations),
		rec.ModelName, rec.ModelVersion, rec.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return fmt.Errorf("prediction with ID %s already exists", rec.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

const selectColumns = `id, input, prediction, confidence, recommendations, model_name, model_version, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec        Record
		input      []byte
		confidence []byte
	)
	if err := row.Scan(
		&rec.ID,
		&input,
		&rec.Prediction,
		&confidence,
		pq.Array(&rec.Recommendations),
		&rec.ModelName,
		&rec.ModelVersion,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(input, &rec.Input); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	if err := json.Unmarshal(confidence, &rec.Confidence); err != nil {
		return nil, fmt.Errorf("failed to decode confidence: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM predictions WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM predictions
		ORDER BY created_at DESC, id
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}
	return out, nil
}
