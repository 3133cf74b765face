package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Run executes Sweep on a fixed interval until ctx is cancelled. It runs on
// its own timer rather than a job worker, so download load never starves
// cleanup. The method returns only after any in-flight sweep has finished,
// letting shutdown await it.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("cleanup sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("cleanup sweeper stopped")
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
