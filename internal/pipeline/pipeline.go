// Package pipeline orchestrates media acquisition: cache check, fetch,
// validation, analysis hand-off, persistence, and scratch-file release.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/italolelis/media_analyzer/internal/analysis"
	"github.com/italolelis/media_analyzer/internal/fetch"
	"github.com/italolelis/media_analyzer/internal/logctx"
	"github.com/italolelis/media_analyzer/internal/media"
	"github.com/italolelis/media_analyzer/internal/scratch"
	"github.com/italolelis/media_analyzer/internal/storage"
	"github.com/italolelis/media_analyzer/internal/telemetry"
)

// MediaFetcher resolves a remote URL into a materialized media payload.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// Request is one acquisition. Exactly one of FilePath/URL must be set; the
// dispatch layer validates that before the pipeline runs.
type Request struct {
	FilePath string
	URL      string
	Prompt   string
	Model    string
	SaveToDB bool
}

// Result carries the analysis text back to the caller.
type Result struct {
	Text   string
	Cached bool
}

// Pipeline wires the acquisition steps together. All collaborators are owned
// handles passed in at construction; nothing is reached through globals.
type Pipeline struct {
	reads     storage.MediaReadRepository
	writes    storage.MediaWriteRepository
	fetcher   MediaFetcher
	scratch   *scratch.Manager
	analyzer  analysis.Analyzer
	telemetry *telemetry.Telemetry
}

func New(
	reads storage.MediaReadRepository,
	writes storage.MediaWriteRepository,
	fetcher MediaFetcher,
	sm *scratch.Manager,
	analyzer analysis.Analyzer,
	tel *telemetry.Telemetry,
) *Pipeline {
	return &Pipeline{
		reads:     reads,
		writes:    writes,
		fetcher:   fetcher,
		scratch:   sm,
		analyzer:  analyzer,
		telemetry: tel,
	}
}

// Acquire runs one request through the pipeline for the given media class.
// The cache is keyed purely on source identity: a changed prompt against a
// cached URL still returns the stored answer. Any scratch file created for
// the request is released on every exit path.
func (p *Pipeline) Acquire(ctx context.Context, class media.Class, req Request) (*Result, error) {
	logger := logctx.LoggerFromContext(ctx)

	// Cache short-circuit, before any network activity.
	if req.URL != "" && req.SaveToDB {
		record, err := p.reads.FindBySourceKey(ctx, req.URL)

		switch {
		case err == nil && record.Complete():
			p.telemetry.RecordCacheLookup("hit")
			logger.Info("cache hit", "source_key", req.URL, "model", record.Analysis.Model)

			return &Result{Text: record.Analysis.ResultText, Cached: true}, nil
		case err == nil:
			// Raw bytes without a result are not a hit for result-returning
			// purposes.
			p.telemetry.RecordCacheLookup("miss")
		case errors.Is(err, storage.ErrNotFound):
			p.telemetry.RecordCacheLookup("miss")
		default:
			p.telemetry.RecordCacheLookup("error")
			logger.Warn("cache lookup failed, fetching instead", "source_key", req.URL, "err", err)
		}
	}

	resolved, tempPath, err := p.resolve(ctx, class, req)
	if tempPath != "" {
		defer p.scratch.Release(ctx, tempPath)
	}

	if err != nil {
		return nil, err
	}

	if err := media.MatchesClass(resolved.MIMEType, class); err != nil {
		return nil, err
	}

	text, err := p.analyzer.Analyze(ctx, analysis.Request{
		FilePath: resolved.Path,
		MIMEType: resolved.MIMEType,
		Prompt:   req.Prompt,
		Model:    req.Model,
	})
	if err != nil {
		p.telemetry.RecordAnalysis(req.Model, "error")

		return nil, err
	}

	p.telemetry.RecordAnalysis(req.Model, "success")

	if req.SaveToDB {
		p.persist(ctx, req, resolved, text)
	}

	return &Result{Text: text}, nil
}

// resolvedMedia is the materialized input for the analysis step.
type resolvedMedia struct {
	SourceKey string
	Filename  string
	MIMEType  string
	Data      []byte
	Path      string
}

// resolve produces the local file for the request. The second return value
// is the scratch path owned by this invocation, empty for local-path
// requests where nothing needs releasing.
func (p *Pipeline) resolve(ctx context.Context, class media.Class, req Request) (*resolvedMedia, string, error) {
	if req.URL != "" {
		result, err := p.fetcher.Fetch(ctx, req.URL)
		if err != nil {
			return nil, "", err
		}

		return &resolvedMedia{
			SourceKey: req.URL,
			Filename:  result.Filename,
			MIMEType:  result.MIMEType,
			Data:      result.Data,
			Path:      result.Path,
		}, result.Path, nil
	}

	if err := media.CheckExtension(req.FilePath, class); err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(req.FilePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read local file: %w", err)
	}

	return &resolvedMedia{
		SourceKey: req.FilePath,
		Filename:  filepath.Base(req.FilePath),
		MIMEType:  media.TypeForExtension(req.FilePath),
		Data:      data,
		Path:      req.FilePath,
	}, "", nil
}

// persist stores the record best-effort. A write failure never changes the
// user-visible outcome; it only costs future cache hits.
func (p *Pipeline) persist(ctx context.Context, req Request, resolved *resolvedMedia, text string) {
	logger := logctx.LoggerFromContext(ctx)

	record := &storage.MediaRecord{
		SourceKey: resolved.SourceKey,
		Filename:  resolved.Filename,
		MIMEType:  resolved.MIMEType,
		Data:      resolved.Data,
		Size:      int64(len(resolved.Data)),
		StoredAt:  time.Now().UTC(),
		Analysis: &storage.AnalysisResult{
			Prompt:     req.Prompt,
			ResultText: text,
			Model:      req.Model,
			AnalyzedAt: time.Now().UTC(),
		},
	}

	stored, err := p.writes.Insert(ctx, record)
	if err != nil {
		logger.Error("failed to persist media record", "source_key", resolved.SourceKey, "err", err)

		return
	}

	logger.Debug("persisted media record", "source_key", resolved.SourceKey, "record_id", stored.ID)
}
