package job

import (
	"context"
	"errors"

	"vinyltube/internal/lifecycle"
	"vinyltube/internal/media"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrOverloaded   = errors.New("job queue full")
	ErrFileTooLarge = errors.New("file too large")
)

// Stable failure-reason labels surfaced through the status endpoint.
const (
	ReasonTimeout       = "timeout"
	ReasonExtraction    = "extraction failed"
	ReasonTranscode     = "transcode failed"
	ReasonFileTooLarge  = "file too large"
	ReasonQuotaExceeded = "quota exceeded"
	ReasonInternal      = "internal error"
)

func failureReason(err error) string {
	switch {
	case errors.Is(err, media.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrFileTooLarge):
		return ReasonFileTooLarge
	case errors.Is(err, lifecycle.ErrQuotaExceeded):
		return ReasonQuotaExceeded
	case errors.Is(err, media.ErrExtraction):
		return ReasonExtraction
	case errors.Is(err, media.ErrTranscode):
		return ReasonTranscode
	default:
		return ReasonInternal
	}
}
