package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/blackmichael/share-your-sound/internal/embed"
	"github.com/blackmichael/share-your-sound/internal/link"
	"github.com/blackmichael/share-your-sound/internal/metrics"
)

// DefaultPostLifetime is how long a post stays on the board.
const DefaultPostLifetime = 24 * time.Hour

// DefaultSweepSchedule runs the expiry sweep at the top of every hour.
const DefaultSweepSchedule = "0 * * * *"

// PostService is the core domain service. It owns the business logic for
// accepting submissions, serving the board, applying crowd moderation and
// sweeping expired posts.
type PostService struct {
	repo      PostRepository
	policy    ModerationPolicy
	lifetime  time.Duration
	publisher EventPublisher
	now       func() time.Time
	logger    zerolog.Logger
}

// Option customizes a PostService.
type Option func(*PostService)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *PostService) {
		s.now = now
	}
}

// WithPublisher sends board events to p after each applied change.
func WithPublisher(p EventPublisher) Option {
	return func(s *PostService) {
		s.publisher = p
	}
}

// NewPostService creates a PostService backed by repo.
func NewPostService(repo PostRepository, policy ModerationPolicy, lifetime time.Duration, logger zerolog.Logger, opts ...Option) (*PostService, error) {
	if repo == nil {
		return nil, fmt.Errorf("post repository is required")
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("post lifetime must be positive, got %s", lifetime)
	}
	if policy.Threshold < 0 {
		return nil, fmt.Errorf("report threshold must not be negative, got %d", policy.Threshold)
	}

	s := &PostService{
		repo:     repo,
		policy:   policy,
		lifetime: lifetime,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SubmitPost sanitizes and validates a submission and persists it. Validation
// failures are returned as ErrInvalidTitle or ErrInvalidURL.
func (s *PostService) SubmitPost(ctx context.Context, rawTitle, rawURL string) (*Post, error) {
	title := link.SanitizeTitle(rawTitle)
	if link.TitleLength(title) < link.MinTitleLength {
		metrics.SubmissionsRejectedTotal.WithLabelValues("title").Inc()
		return nil, ErrInvalidTitle
	}

	songURL, ok := link.ValidateURL(rawURL)
	if !ok {
		metrics.SubmissionsRejectedTotal.WithLabelValues("url").Inc()
		return nil, ErrInvalidURL
	}

	// Stores keep millisecond precision.
	now := s.now().UTC().Truncate(time.Millisecond)
	post := &Post{
		SongTitle: title,
		SongURL:   songURL,
		CreatedAt: now,
		ExpiresAt: now.Add(s.lifetime),
	}
	if err := s.repo.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	metrics.PostsSubmittedTotal.Inc()
	s.logger.Info().
		Int64("post_id", post.ID).
		Str("song_url", post.SongURL).
		Time("expires_at", post.ExpiresAt).
		Msg("post submitted")

	s.publish(Event{Type: EventPostCreated, PostID: post.ID, At: now})
	return post, nil
}

// ListActivePosts returns the posts still visible now, newest first, each
// with its player markup. The result is never nil.
func (s *PostService) ListActivePosts(ctx context.Context) ([]BoardPost, error) {
	posts, err := s.repo.ListActivePosts(ctx, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list active posts: %w", err)
	}

	board := make([]BoardPost, len(posts))
	for i, p := range posts {
		e := embed.Synthesize(p.SongURL)
		if e.Platform == embed.PlatformLink {
			metrics.EmbedFallbacksTotal.Inc()
			s.logger.Warn().Int64("post_id", p.ID).Str("song_url", p.SongURL).Msg("no player id in post url, rendering link")
		}
		board[i] = BoardPost{Post: p, Embed: e}
	}

	metrics.ActivePosts.Set(float64(len(board)))
	return board, nil
}

// ReportPost records one report against the post with the given id and
// removes it once the moderation policy says so. Reporting an unknown id is a
// no-op that still succeeds.
func (s *PostService) ReportPost(ctx context.Context, id int64) (ReportResult, error) {
	res, err := s.repo.ReportPost(ctx, id, s.policy.ShouldRemove)
	if err != nil {
		return ReportResult{}, fmt.Errorf("report post %d: %w", id, err)
	}

	now := s.now().UTC()
	switch {
	case !res.Found:
		metrics.ReportsTotal.WithLabelValues("not_found").Inc()
		s.logger.Debug().Int64("post_id", id).Msg("report for unknown post ignored")
	case res.Removed:
		metrics.ReportsTotal.WithLabelValues("removed").Inc()
		metrics.PostsRemovedTotal.WithLabelValues("reports").Inc()
		s.logger.Info().Int64("post_id", id).Int("reports", res.Reports).Msg("post removed by reports")
		s.publish(Event{Type: EventPostRemoved, PostID: id, Reports: res.Reports, At: now})
	default:
		metrics.ReportsTotal.WithLabelValues("counted").Inc()
		s.logger.Info().Int64("post_id", id).Int("reports", res.Reports).Msg("post reported")
		s.publish(Event{Type: EventPostReported, PostID: id, Reports: res.Reports, At: now})
	}

	return res, nil
}

// SweepExpired deletes every post whose expiry has passed. Returns the number
// of posts removed.
func (s *PostService) SweepExpired(ctx context.Context) (int64, error) {
	metrics.SweepRunsTotal.Inc()
	deleted, err := s.repo.DeleteExpiredPosts(ctx, s.now().UTC())
	if err != nil {
		metrics.SweepErrorsTotal.Inc()
		return 0, fmt.Errorf("delete expired posts: %w", err)
	}
	metrics.PostsRemovedTotal.WithLabelValues("expired").Add(float64(deleted))
	return deleted, nil
}

// StartExpirySweeper runs SweepExpired immediately and then on the given cron
// schedule. Sweep failures are logged and retried on the next tick. It blocks
// until ctx is cancelled and only returns an error for an invalid schedule.
func (s *PostService) StartExpirySweeper(ctx context.Context, schedule string) error {
	cronLogger := cron.PrintfLogger(&s.logger)
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc(schedule, func() { s.runSweep(ctx) }); err != nil {
		return fmt.Errorf("schedule expiry sweeper %q: %w", schedule, err)
	}

	s.runSweep(ctx)

	c.Start()
	s.logger.Info().Str("schedule", schedule).Msg("expiry sweeper started")

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *PostService) runSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	deleted, err := s.SweepExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry sweep failed")
	} else if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("expiry sweep complete")
	}
}

func (s *PostService) publish(e Event) {
	if s.publisher != nil {
		s.publisher.Publish(e)
	}
}
