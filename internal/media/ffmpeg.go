package media

import (
	"context"
	"fmt"
	"os"

	"github.com/floostack/transcoder/ffmpeg"
)

// FFmpeg transcodes artifacts with the ffmpeg binary.
type FFmpeg struct {
	binPath   string
	probePath string
}

// NewFFmpeg returns a Transcoder using the ffmpeg/ffprobe binaries on PATH.
func NewFFmpeg() *FFmpeg {
	return &FFmpeg{binPath: "ffmpeg", probePath: "ffprobe"}
}

// Transcode converts src into dst with the given container/codec format.
// Cancelling ctx terminates the underlying process; dst is removed whenever
// the conversion does not run to completion.
func (f *FFmpeg) Transcode(ctx context.Context, src, dst, outputFormat string) error {
	overwrite := true
	opts := ffmpeg.Options{
		OutputFormat: &outputFormat,
		Overwrite:    &overwrite,
	}
	cfg := &ffmpeg.Config{
		FfmpegBinPath:   f.binPath,
		FfprobeBinPath:  f.probePath,
		ProgressEnabled: true,
	}

	progress, err := ffmpeg.
		New(cfg).
		Input(src).
		Output(dst).
		WithContext(&ctx).
		Start(opts)
	if err != nil {
		_ = os.Remove(dst)
		return classify(ctx, ErrTranscode, err)
	}
	for range progress {
		// Drain until the process exits; per-frame progress is not surfaced.
	}
	if ctx.Err() != nil {
		_ = os.Remove(dst)
		return classify(ctx, ErrTranscode, ctx.Err())
	}

	info, err := os.Stat(dst)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(dst)
		return fmt.Errorf("%w: produced file is empty", ErrTranscode)
	}
	return nil
}
