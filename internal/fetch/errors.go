package fetch

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// StrategyRejectedError represents a soft failure: the remote host rejected
// this header strategy (401/403/429) and the next strategy should be tried.
type StrategyRejectedError struct {
	URL        string // URL that was requested
	Strategy   string // name of the rejected header strategy
	StatusCode int    // HTTP status returned by the host
}

func (e *StrategyRejectedError) Error() string {
	return fmt.Sprintf("access denied fetching %s (HTTP %d, strategy %s)", e.URL, e.StatusCode, e.Strategy)
}

// RequestFailedError represents a hard failure: timeouts, malformed
// responses, redirect loops, and non-retryable HTTP statuses. These are
// URL-structural problems no header variation will fix, so no further
// strategies are attempted.
type RequestFailedError struct {
	URL        string // URL that was requested
	StatusCode int    // HTTP status code, if applicable (0 for transport errors)
	Reason     string // human-readable explanation
	Err        error  // underlying error, if any
}

func (e *RequestFailedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("failed to fetch %s (HTTP %d): %s", e.URL, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("failed to fetch %s: %s", e.URL, e.Reason)
}

func (e *RequestFailedError) Unwrap() error {
	return e.Err
}

// SizeLimitError is returned when a transfer would exceed the configured
// byte ceiling. The transfer is aborted mid-stream, not after buffering.
type SizeLimitError struct {
	URL   string
	Limit int64 // configured ceiling in bytes
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("download of %s exceeds the maximum allowed size of %s", e.URL, humanize.Bytes(uint64(e.Limit)))
}

// StrategiesExhaustedError is returned when every header strategy was
// rejected with a soft failure. It carries the last rejection's status.
type StrategiesExhaustedError struct {
	URL        string
	StatusCode int // status of the last rejected attempt
	Strategies int // number of strategies tried
}

func (e *StrategiesExhaustedError) Error() string {
	return fmt.Sprintf("all %d header strategies rejected for %s (last HTTP %d)", e.Strategies, e.URL, e.StatusCode)
}
