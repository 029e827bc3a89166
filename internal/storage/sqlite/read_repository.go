package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/media_analyzer/internal/storage"
)

func parseStoredTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// RecentRecords returns the newest records by insertion time, without raw
// bytes; these reads serve the admin surface, not the acquisition path.
func (r *MediaRepository) RecentRecords(ctx context.Context, limit int) ([]storage.MediaRecord, error) {
	if r.db == nil {
		return nil, storage.ErrClosed
	}

	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, source_key, filename, mime_type, size, stored_at, prompt, result_text, model, analyzed_at
		 FROM media_records ORDER BY stored_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent records: %w", err)
	}
	defer rows.Close()

	return collectMetaRecords(rows)
}

// Stats returns the aggregate record count and byte total.
func (r *MediaRepository) Stats(ctx context.Context) (storage.Stats, error) {
	if r.db == nil {
		return storage.Stats{}, storage.ErrClosed
	}

	var stats storage.Stats

	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM media_records`)
	if err := row.Scan(&stats.Count, &stats.TotalBytes); err != nil {
		return storage.Stats{}, fmt.Errorf("failed to read stats: %w", err)
	}

	return stats, nil
}

// SearchAnalysis performs a free-text search over stored analysis text.
func (r *MediaRepository) SearchAnalysis(ctx context.Context, query string, limit int) ([]storage.MediaRecord, error) {
	if r.db == nil {
		return nil, storage.ErrClosed
	}

	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, source_key, filename, mime_type, size, stored_at, prompt, result_text, model, analyzed_at
		 FROM media_records WHERE result_text LIKE ? ORDER BY stored_at DESC, id DESC LIMIT ?`,
		"%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
	}
	defer rows.Close()

	return collectMetaRecords(rows)
}

// collectMetaRecords scans rows that omit the data column.
func collectMetaRecords(rows *sql.Rows) ([]storage.MediaRecord, error) {
	var records []storage.MediaRecord

	for rows.Next() {
		var record storage.MediaRecord

		var storedAt string

		var prompt, resultText, model, analyzedAt sql.NullString

		if err := rows.Scan(
			&record.ID, &record.SourceKey, &record.Filename, &record.MIMEType,
			&record.Size, &storedAt,
			&prompt, &resultText, &model, &analyzedAt,
		); err != nil {
			return nil, err
		}

		if ts, err := parseStoredTime(storedAt); err == nil {
			record.StoredAt = ts
		}

		if resultText.Valid && resultText.String != "" {
			analysis := &storage.AnalysisResult{
				Prompt:     prompt.String,
				ResultText: resultText.String,
				Model:      model.String,
			}

			if analyzedAt.Valid {
				if ts, err := parseStoredTime(analyzedAt.String); err == nil {
					analysis.AnalyzedAt = ts
				}
			}

			record.Analysis = analysis
		}

		records = append(records, record)
	}

	return records, rows.Err()
}
