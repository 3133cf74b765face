package media

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrExtraction = errors.New("extraction failed")
	ErrTranscode  = errors.New("transcode failed")
	ErrTimeout    = errors.New("timeout")
)

// transientHints are substrings of tool output that indicate a failure worth
// retrying (network flakiness, throttling) rather than a broken source.
var transientHints = []string{
	"timed out",
	"timeout",
	"connection reset",
	"connection refused",
	"temporary failure",
	"unable to download",
	"http error 429",
	"http error 5",
}

// IsTransient reports whether err looks retryable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
