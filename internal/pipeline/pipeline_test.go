package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/italolelis/media_analyzer/internal/analysis"
	"github.com/italolelis/media_analyzer/internal/fetch"
	"github.com/italolelis/media_analyzer/internal/media"
	"github.com/italolelis/media_analyzer/internal/scratch"
	"github.com/italolelis/media_analyzer/internal/storage"
)

type fakeReads struct {
	record *storage.MediaRecord
	err    error
	calls  int
}

func (f *fakeReads) FindBySourceKey(ctx context.Context, key string) (*storage.MediaRecord, error) {
	f.calls++

	if f.err != nil {
		return nil, f.err
	}

	return f.record, nil
}

func (f *fakeReads) RecentRecords(ctx context.Context, limit int) ([]storage.MediaRecord, error) {
	return nil, nil
}

func (f *fakeReads) Stats(ctx context.Context) (storage.Stats, error) {
	return storage.Stats{}, nil
}

func (f *fakeReads) SearchAnalysis(ctx context.Context, query string, limit int) ([]storage.MediaRecord, error) {
	return nil, nil
}

type fakeWrites struct {
	inserted []*storage.MediaRecord
	err      error
}

func (f *fakeWrites) Insert(ctx context.Context, record *storage.MediaRecord) (*storage.MediaRecord, error) {
	if f.err != nil {
		return nil, f.err
	}

	record.ID = int64(len(f.inserted) + 1)
	f.inserted = append(f.inserted, record)

	return record, nil
}

func (f *fakeWrites) UpdateAnalysis(ctx context.Context, id int64, a storage.AnalysisResult) (bool, error) {
	return false, nil
}

type fakeFetcher struct {
	result *fetch.Result
	err    error
	calls  int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*fetch.Result, error) {
	f.calls++

	if f.err != nil {
		return nil, f.err
	}

	return f.result, nil
}

type fakeAnalyzer struct {
	text    string
	err     error
	calls   int
	lastReq analysis.Request
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req analysis.Request) (string, error) {
	f.calls++
	f.lastReq = req

	if f.err != nil {
		return "", f.err
	}

	return f.text, nil
}

func materializedResult(t *testing.T, sm *scratch.Manager, url string) *fetch.Result {
	t.Helper()

	path, err := sm.Materialize([]byte("payload"), "clip.mp4")
	require.NoError(t, err)

	return &fetch.Result{
		SourceURL: url,
		Filename:  "clip.mp4",
		MIMEType:  "video/mp4",
		Data:      []byte("payload"),
		Size:      7,
		Path:      path,
		Strategy:  "browser",
	}
}

func TestAcquireCacheHitSkipsFetchAndAnalysis(t *testing.T) {
	reads := &fakeReads{record: &storage.MediaRecord{
		SourceKey: "https://example.com/clip.mp4",
		Analysis:  &storage.AnalysisResult{ResultText: "cached answer", Model: "gemini-2.5-flash"},
	}}
	writes := &fakeWrites{}
	fetcher := &fakeFetcher{}
	analyzer := &fakeAnalyzer{}

	p := New(reads, writes, fetcher, scratch.NewManager(t.TempDir()), analyzer, nil)

	result, err := p.Acquire(context.Background(), media.ClassVideo, Request{
		URL:      "https://example.com/clip.mp4",
		Prompt:   "a different prompt entirely",
		Model:    "gemini-2.5-flash",
		SaveToDB: true,
	})
	require.NoError(t, err)
	require.True(t, result.Cached)
	require.Equal(t, "cached answer", result.Text)
	require.Zero(t, fetcher.calls)
	require.Zero(t, analyzer.calls)
	require.Empty(t, writes.inserted)
}

func TestAcquireFetchesAnalyzesAndPersists(t *testing.T) {
	sm := scratch.NewManager(t.TempDir())
	reads := &fakeReads{err: storage.ErrNotFound}
	writes := &fakeWrites{}
	fetcher := &fakeFetcher{result: materializedResult(t, sm, "https://example.com/clip.mp4")}
	analyzer := &fakeAnalyzer{text: "a dog running"}

	p := New(reads, writes, fetcher, sm, analyzer, nil)

	result, err := p.Acquire(context.Background(), media.ClassVideo, Request{
		URL:      "https://example.com/clip.mp4",
		Prompt:   "Describe this content",
		Model:    "gemini-2.5-flash",
		SaveToDB: true,
	})
	require.NoError(t, err)
	require.False(t, result.Cached)
	require.Equal(t, "a dog running", result.Text)

	require.Equal(t, 1, fetcher.calls)
	require.Equal(t, fetcher.result.Path, analyzer.lastReq.FilePath)
	require.Equal(t, "video/mp4", analyzer.lastReq.MIMEType)

	require.Len(t, writes.inserted, 1)
	stored := writes.inserted[0]
	require.Equal(t, "https://example.com/clip.mp4", stored.SourceKey)
	require.Equal(t, []byte("payload"), stored.Data)
	require.Equal(t, "a dog running", stored.Analysis.ResultText)
	require.WithinDuration(t, time.Now(), stored.Analysis.AnalyzedAt, time.Minute)

	// The scratch file is gone once the request finishes.
	require.NoFileExists(t, fetcher.result.Path)
}

func TestAcquireSaveDisabledSkipsCacheAndPersistence(t *testing.T) {
	sm := scratch.NewManager(t.TempDir())
	reads := &fakeReads{}
	writes := &fakeWrites{}
	fetcher := &fakeFetcher{result: materializedResult(t, sm, "https://example.com/clip.mp4")}
	analyzer := &fakeAnalyzer{text: "a dog running"}

	p := New(reads, writes, fetcher, sm, analyzer, nil)

	result, err := p.Acquire(context.Background(), media.ClassVideo, Request{
		URL:      "https://example.com/clip.mp4",
		Prompt:   "Describe this content",
		Model:    "gemini-2.5-flash",
		SaveToDB: false,
	})
	require.NoError(t, err)
	require.Equal(t, "a dog running", result.Text)
	require.Zero(t, reads.calls)
	require.Empty(t, writes.inserted)
}

func TestAcquirePersistenceFailureIsSwallowed(t *testing.T) {
	sm := scratch.NewManager(t.TempDir())
	reads := &fakeReads{err: storage.ErrNotFound}
	writes := &fakeWrites{err: errors.New("disk full")}
	fetcher := &fakeFetcher{result: materializedResult(t, sm, "https://example.com/clip.mp4")}
	analyzer := &fakeAnalyzer{text: "a dog running"}

	p := New(reads, writes, fetcher, sm, analyzer, nil)

	result, err := p.Acquire(context.Background(), media.ClassVideo, Request{
		URL:      "https://example.com/clip.mp4",
		SaveToDB: true,
	})
	require.NoError(t, err)
	require.Equal(t, "a dog running", result.Text)
}

func TestAcquireClassMismatchReleasesScratchFile(t *testing.T) {
	sm := scratch.NewManager(t.TempDir())
	reads := &fakeReads{err: storage.ErrNotFound}
	fetcher := &fakeFetcher{result: materializedResult(t, sm, "https://example.com/clip.mp4")}
	analyzer := &fakeAnalyzer{}

	p := New(reads, &fakeWrites{}, fetcher, sm, analyzer, nil)

	_, err := p.Acquire(context.Background(), media.ClassImage, Request{
		URL:      "https://example.com/clip.mp4",
		SaveToDB: true,
	})

	var vErr *media.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "video/mp4", vErr.MIMEType)
	require.Zero(t, analyzer.calls)
	require.NoFileExists(t, fetcher.result.Path)
}

func TestAcquireAnalysisFailureReleasesScratchFile(t *testing.T) {
	sm := scratch.NewManager(t.TempDir())
	reads := &fakeReads{err: storage.ErrNotFound}
	writes := &fakeWrites{}
	fetcher := &fakeFetcher{result: materializedResult(t, sm, "https://example.com/clip.mp4")}
	analyzer := &fakeAnalyzer{err: &analysis.BackendError{Message: "quota exceeded"}}

	p := New(reads, writes, fetcher, sm, analyzer, nil)

	_, err := p.Acquire(context.Background(), media.ClassVideo, Request{
		URL:      "https://example.com/clip.mp4",
		SaveToDB: true,
	})

	var bErr *analysis.BackendError
	require.ErrorAs(t, err, &bErr)
	require.Empty(t, writes.inserted)
	require.NoFileExists(t, fetcher.result.Path)
}

func TestAcquireFetchErrorPropagates(t *testing.T) {
	reads := &fakeReads{err: storage.ErrNotFound}
	fetcher := &fakeFetcher{err: &fetch.StrategiesExhaustedError{URL: "https://example.com/x", Strategies: 3, StatusCode: 403}}

	p := New(reads, &fakeWrites{}, fetcher, scratch.NewManager(t.TempDir()), &fakeAnalyzer{}, nil)

	_, err := p.Acquire(context.Background(), media.ClassImage, Request{
		URL:      "https://example.com/x",
		SaveToDB: true,
	})

	var exhausted *fetch.StrategiesExhaustedError
	require.ErrorAs(t, err, &exhausted)
}

func TestAcquireCacheErrorFallsThroughToFetch(t *testing.T) {
	sm := scratch.NewManager(t.TempDir())
	reads := &fakeReads{err: errors.New("connection refused")}
	fetcher := &fakeFetcher{result: materializedResult(t, sm, "https://example.com/clip.mp4")}
	analyzer := &fakeAnalyzer{text: "an answer"}

	p := New(reads, &fakeWrites{}, fetcher, sm, analyzer, nil)

	result, err := p.Acquire(context.Background(), media.ClassVideo, Request{
		URL:      "https://example.com/clip.mp4",
		SaveToDB: true,
	})
	require.NoError(t, err)
	require.Equal(t, "an answer", result.Text)
	require.Equal(t, 1, fetcher.calls)
}

func TestAcquireIncompleteCachedRecordIsNotAHit(t *testing.T) {
	sm := scratch.NewManager(t.TempDir())
	reads := &fakeReads{record: &storage.MediaRecord{SourceKey: "https://example.com/clip.mp4"}}
	fetcher := &fakeFetcher{result: materializedResult(t, sm, "https://example.com/clip.mp4")}
	analyzer := &fakeAnalyzer{text: "fresh answer"}

	p := New(reads, &fakeWrites{}, fetcher, sm, analyzer, nil)

	result, err := p.Acquire(context.Background(), media.ClassVideo, Request{
		URL:      "https://example.com/clip.mp4",
		SaveToDB: true,
	})
	require.NoError(t, err)
	require.False(t, result.Cached)
	require.Equal(t, 1, fetcher.calls)
	require.Equal(t, "fresh answer", result.Text)
}

func TestAcquireLocalFile(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(localPath, []byte("png bytes"), 0644))

	writes := &fakeWrites{}
	analyzer := &fakeAnalyzer{text: "a sunset"}

	p := New(&fakeReads{}, writes, &fakeFetcher{}, scratch.NewManager(t.TempDir()), analyzer, nil)

	result, err := p.Acquire(context.Background(), media.ClassImage, Request{
		FilePath: localPath,
		Prompt:   "Describe this content",
		Model:    "gemini-2.5-flash",
		SaveToDB: true,
	})
	require.NoError(t, err)
	require.Equal(t, "a sunset", result.Text)
	require.Equal(t, localPath, analyzer.lastReq.FilePath)
	require.Equal(t, "image/png", analyzer.lastReq.MIMEType)

	require.Len(t, writes.inserted, 1)
	require.Equal(t, localPath, writes.inserted[0].SourceKey)
	require.Equal(t, "photo.png", writes.inserted[0].Filename)

	// A user-supplied file is never deleted.
	require.FileExists(t, localPath)
}

func TestAcquireLocalFileWrongExtension(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(localPath, []byte("mp4 bytes"), 0644))

	analyzer := &fakeAnalyzer{}
	p := New(&fakeReads{}, &fakeWrites{}, &fakeFetcher{}, scratch.NewManager(t.TempDir()), analyzer, nil)

	_, err := p.Acquire(context.Background(), media.ClassImage, Request{
		FilePath: localPath,
		SaveToDB: true,
	})

	var vErr *media.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ".mp4", vErr.Extension)
	require.Zero(t, analyzer.calls)
}

func TestAcquireLocalFileMissing(t *testing.T) {
	p := New(&fakeReads{}, &fakeWrites{}, &fakeFetcher{}, scratch.NewManager(t.TempDir()), &fakeAnalyzer{}, nil)

	_, err := p.Acquire(context.Background(), media.ClassImage, Request{
		FilePath: filepath.Join(t.TempDir(), "nope.png"),
		SaveToDB: true,
	})
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
}
