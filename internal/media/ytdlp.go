package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog/log"
)

// YTDLP drives the yt-dlp binary. It holds no per-request state.
type YTDLP struct{}

// NewYTDLP returns an Extractor backed by the yt-dlp binary on PATH.
func NewYTDLP() *YTDLP {
	return &YTDLP{}
}

// ytdlpInfo mirrors the subset of yt-dlp --dump-single-json output we use.
type ytdlpInfo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Uploader  string `json:"uploader"`
	Thumbnail string `json:"thumbnail"`
	Duration  int    `json:"duration"`
	Formats   []struct {
		FormatID   string `json:"format_id"`
		FormatNote string `json:"format_note"`
		Resolution string `json:"resolution"`
		Ext        string `json:"ext"`
		ACodec     string `json:"acodec"`
		VCodec     string `json:"vcodec"`
		Filesize   int64  `json:"filesize"`
	} `json:"formats"`
}

// Info extracts metadata with a flat, download-free invocation.
func (y *YTDLP) Info(ctx context.Context, url string) (*Probe, error) {
	result, err := ytdlp.New().
		NoWarnings().
		SkipDownload().
		DumpSingleJSON().
		Run(ctx, url)
	if err != nil {
		return nil, classify(ctx, ErrExtraction, err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return nil, fmt.Errorf("%w: parse metadata: %v", ErrExtraction, err)
	}

	probe := &Probe{
		VideoID:   info.ID,
		Title:     info.Title,
		Author:    info.Uploader,
		Thumbnail: info.Thumbnail,
		Duration:  info.Duration,
		URL:       url,
		Formats:   make([]Format, 0, len(info.Formats)),
	}
	if probe.Title == "" {
		probe.Title = "Untitled"
	}
	for _, f := range info.Formats {
		hasAudio := f.ACodec != "" && f.ACodec != "none"
		hasVideo := f.VCodec != "" && f.VCodec != "none"
		if !hasAudio && !hasVideo {
			continue
		}
		quality := f.FormatNote
		if quality == "" {
			quality = f.Resolution
		}
		ftype := FormatAudio
		if hasVideo {
			ftype = FormatVideo
		}
		probe.Formats = append(probe.Formats, Format{
			Itag:      f.FormatID,
			Quality:   quality,
			Container: f.Ext,
			HasAudio:  hasAudio,
			HasVideo:  hasVideo,
			SizeBytes: f.Filesize,
			Type:      ftype,
		})
	}
	return probe, nil
}

// Fetch downloads the selected variant into destDir. The output filename is
// baseName plus whatever extension the tool picks; any partial output under
// the same stem is removed on failure.
func (y *YTDLP) Fetch(ctx context.Context, url, variant string, format FormatType, destDir, baseName string) (string, error) {
	selector := variant
	if format == FormatAudio {
		selector = "bestaudio/best"
	} else if selector == "" {
		selector = "best"
	}

	cmd := ytdlp.New().
		NoWarnings().
		Format(selector).
		Output(filepath.Join(destDir, baseName+".%(ext)s"))

	if _, err := cmd.Run(ctx, url); err != nil {
		y.discardPartials(destDir, baseName)
		return "", classify(ctx, ErrExtraction, err)
	}

	path, err := y.findOutput(destDir, baseName)
	if err != nil {
		y.discardPartials(destDir, baseName)
		return "", err
	}
	return path, nil
}

func (y *YTDLP) findOutput(destDir, baseName string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(destDir, baseName+".*"))
	if err != nil {
		return "", fmt.Errorf("%w: locate output: %v", ErrExtraction, err)
	}
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") || strings.HasSuffix(m, ".ytdl") {
			continue
		}
		if info, err := os.Stat(m); err == nil && info.Size() > 0 {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: no output produced", ErrExtraction)
}

func (y *YTDLP) discardPartials(destDir, baseName string) {
	matches, _ := filepath.Glob(filepath.Join(destDir, baseName+".*"))
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			log.Warn().Str("path", m).Err(err).Msg("discard partial output failed")
		}
	}
}

// classify maps an adapter error to the failure taxonomy, preferring the
// context's verdict when a deadline or cancellation fired.
func classify(ctx context.Context, kind error, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return context.Canceled
	default:
		return fmt.Errorf("%w: %v", kind, err)
	}
}
