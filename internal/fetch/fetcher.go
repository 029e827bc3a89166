// Package fetch turns a remote URL into a validated, locally materialized
// media file, retrying across header strategies when hosts reject bot-looking
// requests.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/italolelis/media_analyzer/internal/headers"
	"github.com/italolelis/media_analyzer/internal/logctx"
	"github.com/italolelis/media_analyzer/internal/media"
	"github.com/italolelis/media_analyzer/internal/scratch"
	"github.com/italolelis/media_analyzer/internal/telemetry"
)

const (
	probeTimeout     = 10 * time.Second
	bodyTimeout      = 60 * time.Second
	maxRedirects     = 5
	progressInterval = 10 * 1024 * 1024 // 10MB
)

// Result is a successfully fetched and materialized media payload.
type Result struct {
	SourceURL string
	Filename  string
	MIMEType  string
	Data      []byte
	Size      int64
	Path      string // scratch file holding the bytes
	Strategy  string // header strategy that succeeded
}

// Fetcher executes the fetch plan for a URL: optional metadata probe, then a
// size-and-type-bounded body retrieval, iterated over header strategies.
type Fetcher struct {
	provider  *headers.Provider
	scratch   *scratch.Manager
	telemetry *telemetry.Telemetry
	maxBytes  int64

	probeClient *http.Client
	bodyClient  *http.Client
}

// NewFetcher creates a fetcher with the given strategy provider, scratch
// manager, and byte ceiling.
func NewFetcher(provider *headers.Provider, sm *scratch.Manager, tel *telemetry.Telemetry, maxBytes int64) *Fetcher {
	return &Fetcher{
		provider:  provider,
		scratch:   sm,
		telemetry: tel,
		maxBytes:  maxBytes,
		probeClient: &http.Client{
			Timeout: probeTimeout,
		},
		bodyClient: &http.Client{
			Timeout: bodyTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}

				return nil
			},
		},
	}
}

// Fetch retrieves the URL's body, enforcing the byte ceiling during transfer,
// and writes the payload to a scratch file. Access-denied statuses
// (401/403/429) move on to the next header strategy; any other failure aborts
// immediately. The returned error is a StrategiesExhaustedError when every
// strategy was rejected.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	logger := logctx.LoggerFromContext(ctx).With("url", rawURL)
	start := time.Now()

	strategies := f.provider.StrategiesFor(rawURL)

	var lastRejection *StrategyRejectedError

	for _, strategy := range strategies {
		result, err := f.attempt(ctx, rawURL, strategy)
		if err != nil {
			var rejected *StrategyRejectedError
			if errors.As(err, &rejected) {
				logger.Debug("header strategy rejected", "strategy", strategy.Name, "status", rejected.StatusCode)
				f.telemetry.RecordFetchAttempt(strategy.Name, "rejected")

				lastRejection = rejected

				continue
			}

			f.telemetry.RecordFetchAttempt(strategy.Name, "failed")
			f.telemetry.RecordFetch("error", time.Since(start))

			return nil, err
		}

		f.telemetry.RecordFetchAttempt(strategy.Name, "success")
		f.telemetry.RecordFetch("success", time.Since(start))

		logger.Info("fetched media",
			"strategy", strategy.Name,
			"mime_type", result.MIMEType,
			"size", humanize.Bytes(uint64(result.Size)),
		)

		return result, nil
	}

	f.telemetry.RecordFetch("exhausted", time.Since(start))

	exhausted := &StrategiesExhaustedError{URL: rawURL, Strategies: len(strategies)}
	if lastRejection != nil {
		exhausted.StatusCode = lastRejection.StatusCode
	}

	return nil, exhausted
}

// attempt runs one probe+retrieve cycle with a single header strategy.
func (f *Fetcher) attempt(ctx context.Context, rawURL string, strategy headers.Strategy) (*Result, error) {
	logger := logctx.LoggerFromContext(ctx)

	probedType, probedLength := f.probe(ctx, rawURL, strategy)

	// A declared length over the ceiling is a hard failure before a single
	// body byte moves.
	if probedLength > 0 && f.maxBytes > 0 && probedLength > f.maxBytes {
		return nil, &SizeLimitError{URL: rawURL, Limit: f.maxBytes}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &RequestFailedError{URL: rawURL, Reason: "invalid request", Err: err}
	}

	applyHeaders(req, strategy)

	resp, err := f.bodyClient.Do(req)
	if err != nil {
		return nil, &RequestFailedError{URL: rawURL, Reason: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests:
		return nil, &StrategyRejectedError{URL: rawURL, Strategy: strategy.Name, StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &RequestFailedError{URL: rawURL, StatusCode: resp.StatusCode, Reason: "unexpected status"}
	}

	lr := NewLimitReader(resp.Body, f.maxBytes, progressInterval, func(read int64) {
		logger.Debug("download progress", "url", rawURL, "downloaded", humanize.Bytes(uint64(read)))
	})

	data, err := io.ReadAll(lr)
	if err != nil {
		if errors.Is(err, ErrLimitExceeded) {
			return nil, &SizeLimitError{URL: rawURL, Limit: f.maxBytes}
		}

		return nil, &RequestFailedError{URL: rawURL, Reason: "failed to read body", Err: err}
	}

	mimeType := resolveType(probedType, resp.Header.Get("Content-Type"), data)
	if !media.IsSupported(mimeType) {
		return nil, &media.ValidationError{
			MIMEType: mimeType,
			Reason:   "type is not on the supported download list",
		}
	}

	filename := DeriveFilename(rawURL, mimeType)

	path, err := f.scratch.Materialize(data, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize download: %w", err)
	}

	return &Result{
		SourceURL: rawURL,
		Filename:  filename,
		MIMEType:  mimeType,
		Data:      data,
		Size:      int64(len(data)),
		Path:      path,
		Strategy:  strategy.Name,
	}, nil
}

// probe issues a HEAD request to learn content type and length up front.
// Probe failure only degrades information; it never aborts the strategy.
func (f *Fetcher) probe(ctx context.Context, rawURL string, strategy headers.Strategy) (string, int64) {
	logger := logctx.LoggerFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", 0
	}

	applyHeaders(req, strategy)

	resp, err := f.probeClient.Do(req)
	if err != nil {
		logger.Debug("metadata probe failed", "url", rawURL, "err", err)

		return "", 0
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0
	}

	return media.Normalize(resp.Header.Get("Content-Type")), resp.ContentLength
}

// resolveType picks the content type in preference order: probe result,
// retrieval response header, sniffed from the payload bytes.
func resolveType(probed, header string, data []byte) string {
	if probed != "" {
		return probed
	}

	if normalized := media.Normalize(header); normalized != "" {
		return normalized
	}

	return mimetype.Detect(data).String()
}

func applyHeaders(req *http.Request, strategy headers.Strategy) {
	for key, value := range strategy.Headers {
		req.Header.Set(key, value)
	}
}
