package cache

import (
	"context"
	"time"
)

// Sweep runs a loop purging expired entries from all opened partitions,
// pausing for interval between rounds. It returns when ctx is done.
// Expired entries are also dropped lazily by Match; sweeping frees
// the space of entries that are never requested again.
func (s *Storage) Sweep(ctx context.Context, interval time.Duration) {
	s.log.Info().Msgf("Starting expiration loop with interval %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Stopping expiration loop")
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce purges expired entries from all opened partitions once.
// It returns the total number of purged entries.
func (s *Storage) SweepOnce() int {
	total := 0
	for _, p := range s.Partitions() {
		n, err := p.PurgeExpired()
		if err != nil {
			p.log.Error().Err(err).Msg("Could not purge expired entries")
		}
		if n > 0 {
			p.log.Debug().Int("purged", n).Msg("Purged expired entries")
		}
		total += n
	}
	return total
}
