package job

import (
	"time"

	"vinyltube/internal/media"
)

// State is a job's position in its lifecycle. Transitions are monotonic:
// a job never returns to an earlier stage.
type State string

const (
	StatePending     State = "pending"
	StateExtracting  State = "extracting"
	StateDownloading State = "downloading"
	StateTranscoding State = "transcoding"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

var stateRank = map[State]int{
	StatePending:     0,
	StateExtracting:  1,
	StateDownloading: 2,
	StateTranscoding: 3,
	StateCompleted:   4,
	StateFailed:      4,
	StateCancelled:   4,
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Job is one accepted request's unit of work. OutputPath is non-empty iff
// the state is completed; FailureReason is set only on failure.
type Job struct {
	ID               string           `json:"id"`
	SourceURL        string           `json:"source_url"`
	RequestedFormat  media.FormatType `json:"requested_format"`
	RequestedVariant string           `json:"requested_variant,omitempty"`
	State            State            `json:"state"`
	CreatedAt        time.Time        `json:"created_at"`
	StartedAt        time.Time        `json:"started_at,omitempty"`
	FinishedAt       time.Time        `json:"finished_at,omitempty"`
	OutputPath       string           `json:"output_path,omitempty"`
	FailureReason    string           `json:"failure_reason,omitempty"`
}

// Request is an admitted, already-validated download request.
type Request struct {
	URL     string
	Variant string
	Format  media.FormatType
}

// Options configures the coordinator.
type Options struct {
	DownloadDir       string
	TempDir           string
	MaxFileSizeBytes  int64
	MaxConcurrentJobs int
	QueueSize         int
	ExtractTimeout    time.Duration
	DownloadTimeout   time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
}

const (
	defaultMaxRetries   = 2
	defaultRetryBackoff = 500 * time.Millisecond
)
