package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// StatsSource provides functions to retrieve current counts for gauge metrics.
// A nil function is skipped.
type StatsSource struct {
	StoredPostCount func(ctx context.Context) (int64, error)
	LiveClientCount func() int
}

// StartCollector launches a goroutine that periodically updates gauge metrics.
// It runs every interval until the context is cancelled.
func StartCollector(ctx context.Context, src StatsSource, interval time.Duration, logger zerolog.Logger) {
	collect(ctx, src, logger)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(ctx, src, logger)
			}
		}
	}()

	logger.Info().Dur("interval", interval).Msg("metrics collector started")
}

func collect(ctx context.Context, src StatsSource, logger zerolog.Logger) {
	if src.StoredPostCount != nil {
		n, err := src.StoredPostCount(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to count stored posts")
		} else {
			StoredPosts.Set(float64(n))
		}
	}
	if src.LiveClientCount != nil {
		LiveClients.Set(float64(src.LiveClientCount()))
	}
}
