// Package analysis defines the boundary to the external media analysis
// backend.
package analysis

import (
	"context"
	"fmt"
)

// Request carries one media file to analyze.
type Request struct {
	FilePath string // local path of the materialized media file
	MIMEType string
	Prompt   string
	Model    string
}

// Analyzer is the analysis backend contract. A BackendError result is
// terminal for the request; the pipeline never retries it.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (string, error)
}

// BackendError is a failure reported by the analysis provider itself
// (quota, unsupported format downstream, failed processing). Its message is
// surfaced verbatim to the caller.
type BackendError struct {
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("analysis failed: %s", e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
