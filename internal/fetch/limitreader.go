package fetch

import (
	"errors"
	"io"
)

// ErrLimitExceeded aborts a transfer whose body crosses the byte ceiling.
var ErrLimitExceeded = errors.New("byte limit exceeded")

// LimitReader wraps an io.Reader, fails the stream once more than limit
// bytes pass through, and reports coarse progress via a callback.
type LimitReader struct {
	reader         io.Reader
	limit          int64
	onProgress     func(read int64)
	totalRead      int64
	lastReport     int64
	reportInterval int64
}

func NewLimitReader(r io.Reader, limit int64, interval int64, cb func(read int64)) *LimitReader {
	return &LimitReader{
		reader:         r,
		limit:          limit,
		onProgress:     cb,
		reportInterval: interval,
	}
}

func (lr *LimitReader) Read(p []byte) (int, error) {
	n, err := lr.reader.Read(p)
	if n > 0 {
		lr.totalRead += int64(n)
		if lr.limit > 0 && lr.totalRead > lr.limit {
			return n, ErrLimitExceeded
		}

		lr.lastReport += int64(n)
		if lr.onProgress != nil && lr.lastReport >= lr.reportInterval {
			lr.onProgress(lr.totalRead)
			lr.lastReport = 0
		}
	}

	return n, err
}

// BytesRead returns the number of bytes passed through so far.
func (lr *LimitReader) BytesRead() int64 {
	return lr.totalRead
}
