package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/vsa/internal/models"
	"github.com/desertthunder/vsa/internal/shared"
)

// DetailRecord is a cached [models.CompletedDetail] with its bookkeeping columns.
type DetailRecord struct {
	ID        string
	Sequence  int
	Detail    models.CompletedDetail
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DetailRepository caches completed analysis details so a selected analysis can show its last known result
// across restarts. Rows are keyed by the backend's analysis id; saving an id twice overwrites it.
type DetailRepository struct {
	db *sql.DB
}

// NewDetailRepository creates a new DetailRepository with the given database connection
func NewDetailRepository(db *sql.DB) *DetailRepository {
	return &DetailRepository{db: db}
}

// Save inserts or replaces the cached detail for d.AnalysisID.
func (r *DetailRepository) Save(ctx context.Context, d models.CompletedDetail) error {
	if strings.TrimSpace(d.AnalysisID) == "" {
		return fmt.Errorf("%w: analysis id is required", shared.ErrValidation)
	}

	sentiment, err := json.Marshal(d.Sentiment)
	if err != nil {
		return fmt.Errorf("failed to encode sentiment: %w", err)
	}
	if d.Sentiment == nil {
		sentiment = []byte("{}")
	}

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE analysis_details
		SET title = ?, url = CASE WHEN ? = '' THEN url ELSE ? END, transcription = ?, sentiment = ?, updated_at = ?
		WHERE analysis_id = ?
	`, d.Title, d.URL, d.URL, d.Transcription, string(sentiment), now, d.AnalysisID)
	if err != nil {
		return fmt.Errorf("failed to update detail: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	sequence, err := NextSequence(r.db, "analysis_details")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analysis_details (id, sequence, analysis_id, title, url, transcription, sentiment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, shared.GenerateID(), sequence, d.AnalysisID, d.Title, d.URL, d.Transcription, string(sentiment), now, now)
	if err != nil {
		return fmt.Errorf("failed to insert detail: %w", err)
	}
	return nil
}

// Get returns the cached detail for analysisID, or an error wrapping [shared.ErrAnalysisNotFound].
func (r *DetailRepository) Get(ctx context.Context, analysisID string) (*models.CompletedDetail, error) {
	rec, err := r.scan(r.db.QueryRowContext(ctx, `
		SELECT id, sequence, analysis_id, title, url, transcription, sentiment, created_at, updated_at
		FROM analysis_details
		WHERE analysis_id = ?
	`, analysisID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrAnalysisNotFound, analysisID)
	}
	if err != nil {
		return nil, err
	}
	return &rec.Detail, nil
}

// List returns every cached detail, most recently updated first.
func (r *DetailRepository) List(ctx context.Context) ([]DetailRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sequence, analysis_id, title, url, transcription, sentiment, created_at, updated_at
		FROM analysis_details
		ORDER BY updated_at DESC, sequence DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query details: %w", err)
	}
	defer rows.Close()

	var records []DetailRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// Delete removes the cached detail for analysisID.
func (r *DetailRepository) Delete(ctx context.Context, analysisID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM analysis_details WHERE analysis_id = ?", analysisID)
	if err != nil {
		return fmt.Errorf("failed to delete detail: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrAnalysisNotFound, analysisID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scan reads one row into a [DetailRecord]. sql.ErrNoRows is returned unwrapped.
func (r *DetailRepository) scan(row scanner) (DetailRecord, error) {
	var (
		rec       DetailRecord
		sentiment string
	)

	err := row.Scan(
		&rec.ID,
		&rec.Sequence,
		&rec.Detail.AnalysisID,
		&rec.Detail.Title,
		&rec.Detail.URL,
		&rec.Detail.Transcription,
		&sentiment,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("failed to scan detail: %w", err)
	}

	if err := json.Unmarshal([]byte(sentiment), &rec.Detail.Sentiment); err != nil {
		return rec, fmt.Errorf("failed to decode sentiment for %s: %w", rec.Detail.AnalysisID, err)
	}
	return rec, nil
}
