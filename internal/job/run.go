package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vinyltube/internal/fileio"
	"vinyltube/internal/media"

	"github.com/rs/zerolog/log"
)

func (c *Coordinator) worker(ctx context.Context) {
	defer c.workersWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-c.queue:
			c.run(id)
		}
	}
}

// run drives one job through extract -> download -> (transcode) -> complete.
// Each stage checks for cancellation before starting; adapters observe the
// job context mid-stage.
func (c *Coordinator) run(id string) {
	snapshot, jobCtx, ok := c.jobContext(id)
	if !ok {
		return
	}

	if !c.transition(id, StateExtracting) {
		return
	}
	probe, err := c.probeStage(jobCtx, snapshot)
	if err != nil {
		c.finish(id, jobCtx, err)
		return
	}
	log.Info().Str("job_id", id).Str("title", probe.Title).Msg("metadata extracted")

	if !c.transition(id, StateDownloading) {
		return
	}
	artifact, err := c.fetchStage(jobCtx, snapshot)
	if err != nil {
		c.finish(id, jobCtx, err)
		return
	}
	if err := c.checkSize(artifact); err != nil {
		c.discard(artifact)
		c.finish(id, jobCtx, err)
		return
	}

	if needsTranscode(snapshot, artifact) {
		if !c.transition(id, StateTranscoding) {
			c.discard(artifact)
			return
		}
		transcoded, err := c.transcodeStage(jobCtx, artifact)
		c.discard(artifact)
		if err != nil {
			c.finish(id, jobCtx, err)
			return
		}
		artifact = transcoded
		if err := c.checkSize(artifact); err != nil {
			c.discard(artifact)
			c.finish(id, jobCtx, err)
			return
		}
	}

	c.commit(id, jobCtx, artifact)
}

func (c *Coordinator) probeStage(jobCtx context.Context, j Job) (*media.Probe, error) {
	var probe *media.Probe
	err := c.withRetry(jobCtx, c.opts.ExtractTimeout, func(stageCtx context.Context) error {
		p, err := c.extractor.Info(stageCtx, j.SourceURL)
		if err == nil {
			probe = p
		}
		return err
	})
	return probe, err
}

func (c *Coordinator) fetchStage(jobCtx context.Context, j Job) (string, error) {
	var artifact string
	err := c.withRetry(jobCtx, c.opts.DownloadTimeout, func(stageCtx context.Context) error {
		path, err := c.extractor.Fetch(stageCtx, j.SourceURL, j.RequestedVariant, j.RequestedFormat, c.opts.TempDir, j.ID)
		if err == nil {
			artifact = path
		}
		return err
	})
	return artifact, err
}

func (c *Coordinator) transcodeStage(jobCtx context.Context, src string) (string, error) {
	dst := strings.TrimSuffix(src, filepath.Ext(src)) + ".mp3"
	err := c.withRetry(jobCtx, c.opts.DownloadTimeout, func(stageCtx context.Context) error {
		return c.transcoder.Transcode(stageCtx, src, dst, "mp3")
	})
	if err != nil {
		return "", err
	}
	return dst, nil
}

// commit publishes the finished artifact: pin the final path in-use, move the
// temp file into the download directory, register it, then complete. The
// in-use pin covers the window where the file is on disk but not yet durable
// as a record, so a concurrent sweep cannot delete it.
func (c *Coordinator) commit(id string, jobCtx context.Context, artifact string) {
	finalPath := filepath.Join(c.opts.DownloadDir, filepath.Base(artifact))

	c.files.MarkInUse(finalPath)
	defer c.files.ClearInUse(finalPath)

	if err := fileio.MoveAtomic(artifact, finalPath); err != nil {
		c.discard(artifact)
		c.finish(id, jobCtx, fmt.Errorf("publish artifact: %w", err))
		return
	}
	info, err := os.Stat(finalPath)
	if err != nil {
		c.finish(id, jobCtx, fmt.Errorf("stat artifact: %w", err))
		return
	}
	if _, err := c.files.Register(finalPath, info.Size()); err != nil {
		// Register already deleted the over-quota file.
		c.finish(id, jobCtx, err)
		return
	}

	c.mu.Lock()
	if j, ok := c.jobs[id]; ok && !j.State.Terminal() {
		j.State = StateCompleted
		j.OutputPath = finalPath
		j.FinishedAt = c.now()
		if h, hok := c.handles[id]; hok {
			h.cancel()
			delete(c.handles, id)
		}
	}
	c.mu.Unlock()
	log.Info().Str("job_id", id).Str("path", finalPath).Int64("size_bytes", info.Size()).Msg("job completed")
}

// finish records a terminal failure or cancellation.
func (c *Coordinator) finish(id string, jobCtx context.Context, err error) {
	final := StateFailed
	reason := failureReason(err)
	if errors.Is(err, context.Canceled) || (jobCtx != nil && errors.Is(jobCtx.Err(), context.Canceled)) {
		final = StateCancelled
		reason = ""
	}

	c.mu.Lock()
	if j, ok := c.jobs[id]; ok {
		c.markTerminalLocked(j, final, reason)
	}
	c.mu.Unlock()

	if final == StateFailed {
		log.Warn().Str("job_id", id).Str("reason", reason).Err(err).Msg("job failed")
	} else {
		log.Info().Str("job_id", id).Msg("job cancelled")
	}
}

// withRetry runs fn under a per-attempt timeout, retrying transient failures
// up to MaxRetries times with doubling backoff. Permanent failures and
// cancellation return immediately.
func (c *Coordinator) withRetry(jobCtx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	backoff := c.opts.RetryBackoff
	var err error
	for attempt := 0; ; attempt++ {
		stageCtx, cancel := context.WithTimeout(jobCtx, timeout)
		err = fn(stageCtx)
		cancel()
		if err == nil {
			return nil
		}
		if jobCtx.Err() != nil {
			return context.Canceled
		}
		if !media.IsTransient(err) || attempt >= c.opts.MaxRetries {
			return err
		}
		log.Warn().Int("attempt", attempt+1).Dur("backoff", backoff).Err(err).Msg("transient failure, retrying")
		select {
		case <-jobCtx.Done():
			return context.Canceled
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (c *Coordinator) checkSize(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}
	if info.Size() > c.opts.MaxFileSizeBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, info.Size(), c.opts.MaxFileSizeBytes)
	}
	return nil
}

func (c *Coordinator) discard(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Str("path", path).Err(err).Msg("discard artifact failed")
	}
}

func needsTranscode(j Job, artifact string) bool {
	return j.RequestedFormat == media.FormatAudio && filepath.Ext(artifact) != ".mp3"
}
