package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/share-your-sound/internal/boltstore"
	"github.com/blackmichael/share-your-sound/internal/config"
	"github.com/blackmichael/share-your-sound/internal/domain"
	"github.com/blackmichael/share-your-sound/internal/httpserver"
	"github.com/blackmichael/share-your-sound/internal/live"
	"github.com/blackmichael/share-your-sound/internal/metrics"
	"github.com/blackmichael/share-your-sound/internal/sqlite"
	"github.com/blackmichael/share-your-sound/internal/tracing"
)

const (
	collectInterval = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

// postStore is what the server needs from either store backend.
type postStore interface {
	domain.PostRepository
	CountPosts(ctx context.Context) (int64, error)
	Close() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		tp, err := tracing.Init(ctx, cfg.OTLPEndpoint, logger)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("error shutting down tracer provider")
			}
		}()
		logger.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("tracing enabled")
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	logger.Info().Str("driver", cfg.StoreDriver).Str("path", cfg.DatabasePath).Msg("store opened")

	hub := live.NewHub(logger.With().Str("component", "live").Logger())

	postService, err := domain.NewPostService(
		store,
		domain.ModerationPolicy{Threshold: cfg.ReportThreshold},
		cfg.PostLifetime,
		logger.With().Str("component", "posts").Logger(),
		domain.WithPublisher(hub),
	)
	if err != nil {
		return fmt.Errorf("create post service: %w", err)
	}

	server := httpserver.NewServer(cfg, postService, hub, logger.With().Str("component", "http").Logger())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return postService.StartExpirySweeper(gctx, cfg.SweepSchedule)
	})

	metrics.StartCollector(gctx, metrics.StatsSource{
		StoredPostCount: store.CountPosts,
		LiveClientCount: hub.ClientCount,
	}, collectInterval, logger)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	logger.Info().
		Int("port", cfg.Port).
		Int("report_threshold", cfg.ReportThreshold).
		Dur("post_lifetime", cfg.PostLifetime).
		Msg("server started")

	return g.Wait()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(cfg.LogLevel).With().Timestamp().Logger()
}

func openStore(cfg *config.Config) (postStore, error) {
	switch cfg.StoreDriver {
	case config.StoreBolt:
		opts := boltstore.DefaultOptions()
		opts.Path = cfg.DatabasePath
		store, err := boltstore.Open(opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := sqlite.NewRepository(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
