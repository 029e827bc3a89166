package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/media_analyzer/internal/storage"
)

// MediaRepository stores media records in SQLite. It implements both
// storage.MediaReadRepository and storage.MediaWriteRepository.
type MediaRepository struct {
	db *sql.DB
}

func NewMediaRepository(dbConn *sql.DB) *MediaRepository {
	return &MediaRepository{db: dbConn}
}

const recordColumns = `id, source_key, filename, mime_type, data, size, stored_at, prompt, result_text, model, analyzed_at`

// FindBySourceKey returns the newest record for a source key, or
// storage.ErrNotFound. Duplicates may accumulate under concurrent misses;
// ordering by stored_at makes the newest complete record win.
func (r *MediaRepository) FindBySourceKey(ctx context.Context, key string) (*storage.MediaRecord, error) {
	if r.db == nil {
		return nil, storage.ErrClosed
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM media_records WHERE source_key = ? ORDER BY stored_at DESC, id DESC LIMIT 1`,
		key,
	)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find media record: %w", err)
	}

	return record, nil
}

// Insert persists a record and returns it with its assigned identity.
// Duplicate source keys are allowed by design.
func (r *MediaRepository) Insert(ctx context.Context, record *storage.MediaRecord) (*storage.MediaRecord, error) {
	if r.db == nil {
		return nil, storage.ErrClosed
	}

	if record.StoredAt.IsZero() {
		record.StoredAt = time.Now().UTC()
	}

	var prompt, resultText, model sql.NullString

	var analyzedAt sql.NullString

	if record.Analysis != nil {
		prompt = sql.NullString{String: record.Analysis.Prompt, Valid: true}
		resultText = sql.NullString{String: record.Analysis.ResultText, Valid: true}
		model = sql.NullString{String: record.Analysis.Model, Valid: true}
		analyzedAt = sql.NullString{String: record.Analysis.AnalyzedAt.UTC().Format(time.RFC3339), Valid: true}
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO media_records (source_key, filename, mime_type, data, size, stored_at, prompt, result_text, model, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SourceKey, record.Filename, record.MIMEType, record.Data, record.Size,
		record.StoredAt.UTC().Format(time.RFC3339), prompt, resultText, model, analyzedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert media record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted id: %w", err)
	}

	record.ID = id

	return record, nil
}

// UpdateAnalysis replaces the analysis sub-object of an existing record.
// Returns false when the identity does not exist.
func (r *MediaRepository) UpdateAnalysis(ctx context.Context, id int64, analysis storage.AnalysisResult) (bool, error) {
	if r.db == nil {
		return false, storage.ErrClosed
	}

	if analysis.AnalyzedAt.IsZero() {
		analysis.AnalyzedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE media_records SET prompt = ?, result_text = ?, model = ?, analyzed_at = ? WHERE id = ?`,
		analysis.Prompt, analysis.ResultText, analysis.Model,
		analysis.AnalyzedAt.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update analysis: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*storage.MediaRecord, error) {
	var record storage.MediaRecord

	var storedAt string

	var prompt, resultText, model, analyzedAt sql.NullString

	if err := row.Scan(
		&record.ID, &record.SourceKey, &record.Filename, &record.MIMEType,
		&record.Data, &record.Size, &storedAt,
		&prompt, &resultText, &model, &analyzedAt,
	); err != nil {
		return nil, err
	}

	if ts, err := time.Parse(time.RFC3339, storedAt); err == nil {
		record.StoredAt = ts
	}

	if resultText.Valid && resultText.String != "" {
		analysis := &storage.AnalysisResult{
			Prompt:     prompt.String,
			ResultText: resultText.String,
			Model:      model.String,
		}

		if analyzedAt.Valid {
			if ts, err := time.Parse(time.RFC3339, analyzedAt.String); err == nil {
				analysis.AnalyzedAt = ts
			}
		}

		record.Analysis = analysis
	}

	return &record, nil
}
