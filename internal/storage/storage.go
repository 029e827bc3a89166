package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for a source key or identity.
var ErrNotFound = errors.New("media record not found")

// ErrClosed is returned when the store is used before connect or after teardown.
var ErrClosed = errors.New("media store is not connected")

// AnalysisResult is the outcome of handing a media file to the analysis
// backend. A record with a populated result is complete and short-circuits
// future requests for the same source key.
type AnalysisResult struct {
	Prompt     string
	ResultText string
	Model      string
	AnalyzedAt time.Time
}

// MediaRecord is a cached media artifact keyed by its source identity (the
// original URL, or the local path when no URL was given). Raw bytes are owned
// by the record once persisted and never mutated afterwards.
type MediaRecord struct {
	ID        int64
	SourceKey string
	Filename  string
	MIMEType  string
	Data      []byte
	Size      int64
	StoredAt  time.Time
	Analysis  *AnalysisResult
}

// Complete reports whether the record carries a populated analysis result.
func (r *MediaRecord) Complete() bool {
	return r != nil && r.Analysis != nil && r.Analysis.ResultText != ""
}

// Stats are aggregate counters over the stored records.
type Stats struct {
	Count      int64
	TotalBytes int64
}

// MediaReadRepository serves point lookups and the derived administrative
// reads. FindBySourceKey is the only read on the acquisition hot path.
type MediaReadRepository interface {
	FindBySourceKey(ctx context.Context, key string) (*MediaRecord, error)
	RecentRecords(ctx context.Context, limit int) ([]MediaRecord, error)
	Stats(ctx context.Context) (Stats, error)
	SearchAnalysis(ctx context.Context, query string, limit int) ([]MediaRecord, error)
}

// MediaWriteRepository persists records and analysis updates. Insert never
// rejects a duplicate source key; concurrent misses for the same URL may both
// insert, and lookups resolve to the newest record.
type MediaWriteRepository interface {
	Insert(ctx context.Context, record *MediaRecord) (*MediaRecord, error)
	UpdateAnalysis(ctx context.Context, id int64, analysis AnalysisResult) (bool, error)
}
