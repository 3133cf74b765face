// Package media wraps the external extraction and transcoding tools behind
// stateless adapter interfaces. Adapters return structured results or typed
// failures and honor context cancellation; partial output never escapes the
// destination directory handed to them.
package media

import "context"

// FormatType distinguishes audio-only from video artifacts.
type FormatType string

const (
	FormatVideo FormatType = "video"
	FormatAudio FormatType = "audio"
)

// Format describes one downloadable variant of a source.
type Format struct {
	Itag      string     `json:"itag"`
	Quality   string     `json:"quality"`
	Container string     `json:"container"`
	HasAudio  bool       `json:"hasAudio"`
	HasVideo  bool       `json:"hasVideo"`
	SizeBytes int64      `json:"sizeBytes,omitempty"`
	Type      FormatType `json:"type"`
}

// Probe is the metadata returned by the extraction tool for a source URL.
type Probe struct {
	VideoID   string   `json:"videoId"`
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	Thumbnail string   `json:"thumbnail"`
	Duration  int      `json:"duration"`
	URL       string   `json:"url"`
	Formats   []Format `json:"formats"`
}

// Extractor is the boundary around the external extraction tool.
type Extractor interface {
	// Info fetches metadata without downloading anything.
	Info(ctx context.Context, url string) (*Probe, error)
	// Fetch downloads the requested variant into destDir using baseName as
	// the filename stem and returns the path of the produced file.
	Fetch(ctx context.Context, url, variant string, format FormatType, destDir, baseName string) (string, error)
}

// Transcoder is the boundary around the external transcoding tool.
type Transcoder interface {
	// Transcode converts src into dst with the given output format.
	Transcode(ctx context.Context, src, dst, outputFormat string) error
}
