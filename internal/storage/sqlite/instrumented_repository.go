package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/media_analyzer/internal/storage"
	"github.com/italolelis/media_analyzer/internal/telemetry"
)

// InstrumentedMediaRepository wraps MediaRepository with telemetry.
type InstrumentedMediaRepository struct {
	repo      *MediaRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedMediaRepository creates a new instrumented media repository.
func NewInstrumentedMediaRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedMediaRepository {
	return &InstrumentedMediaRepository{
		repo:      NewMediaRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedMediaRepository) FindBySourceKey(ctx context.Context, key string) (*storage.MediaRecord, error) {
	var result *storage.MediaRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "find_by_source_key", func(ctx context.Context) error {
		result, err = r.repo.FindBySourceKey(ctx, key)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedMediaRepository) Insert(ctx context.Context, record *storage.MediaRecord) (*storage.MediaRecord, error) {
	var result *storage.MediaRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "insert", func(ctx context.Context) error {
		result, err = r.repo.Insert(ctx, record)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedMediaRepository) UpdateAnalysis(ctx context.Context, id int64, analysis storage.AnalysisResult) (bool, error) {
	var result bool

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "update_analysis", func(ctx context.Context) error {
		result, err = r.repo.UpdateAnalysis(ctx, id, analysis)

		return err
	})

	if instrumentedErr != nil {
		return false, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedMediaRepository) RecentRecords(ctx context.Context, limit int) ([]storage.MediaRecord, error) {
	var result []storage.MediaRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "recent_records", func(ctx context.Context) error {
		result, err = r.repo.RecentRecords(ctx, limit)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedMediaRepository) Stats(ctx context.Context) (storage.Stats, error) {
	var result storage.Stats

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "stats", func(ctx context.Context) error {
		result, err = r.repo.Stats(ctx)

		return err
	})

	if instrumentedErr != nil {
		return storage.Stats{}, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedMediaRepository) SearchAnalysis(ctx context.Context, query string, limit int) ([]storage.MediaRecord, error) {
	var result []storage.MediaRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "search_analysis", func(ctx context.Context) error {
		result, err = r.repo.SearchAnalysis(ctx, query, limit)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}
