package domain

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/share-your-sound/internal/embed"
)

// memoryRepo is an in-memory PostRepository for service tests.
type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	posts  map[int64]Post

	failWith error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{posts: make(map[int64]Post)}
}

func (r *memoryRepo) CreatePost(_ context.Context, post *Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.nextID++
	post.ID = r.nextID
	r.posts[post.ID] = *post
	return nil
}

func (r *memoryRepo) ListActivePosts(_ context.Context, now time.Time) ([]Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	var out []Post
	for _, p := range r.posts {
		if p.ExpiresAt.After(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryRepo) ReportPost(_ context.Context, id int64, shouldRemove func(int) bool) (ReportResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return ReportResult{}, r.failWith
	}
	p, ok := r.posts[id]
	if !ok {
		return ReportResult{}, nil
	}
	p.Reports++
	if shouldRemove(p.Reports) {
		delete(r.posts, id)
		return ReportResult{Found: true, Reports: p.Reports, Removed: true}, nil
	}
	r.posts[id] = p
	return ReportResult{Found: true, Reports: p.Reports}, nil
}

func (r *memoryRepo) DeleteExpiredPosts(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return 0, r.failWith
	}
	var n int64
	for id, p := range r.posts {
		if !p.ExpiresAt.After(now) {
			delete(r.posts, id)
			n++
		}
	}
	return n, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupTestService(t *testing.T) (*PostService, *memoryRepo, *testClock, *recordingPublisher) {
	t.Helper()
	repo := newMemoryRepo()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	pub := &recordingPublisher{}

	svc, err := NewPostService(repo, DefaultModerationPolicy(), DefaultPostLifetime, zerolog.Nop(),
		WithClock(clock.Now),
		WithPublisher(pub),
	)
	require.NoError(t, err)
	return svc, repo, clock, pub
}

func TestNewPostService_Validation(t *testing.T) {
	_, err := NewPostService(nil, DefaultModerationPolicy(), time.Hour, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewPostService(newMemoryRepo(), DefaultModerationPolicy(), 0, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewPostService(newMemoryRepo(), ModerationPolicy{Threshold: -1}, time.Hour, zerolog.Nop())
	assert.Error(t, err)
}

func TestModerationPolicy_ShouldRemove(t *testing.T) {
	p := DefaultModerationPolicy()
	assert.False(t, p.ShouldRemove(0))
	assert.False(t, p.ShouldRemove(10))
	assert.True(t, p.ShouldRemove(11))
}

func TestPostService_SubmitPost(t *testing.T) {
	t.Run("accepts a valid submission", func(t *testing.T) {
		svc, repo, clock, pub := setupTestService(t)

		post, err := svc.SubmitPost(context.Background(), "  Never Gonna <Give> You Up ", " https://www.youtube.com/watch?v=dQw4w9WgXcQ ")
		require.NoError(t, err)

		assert.Equal(t, int64(1), post.ID)
		assert.Equal(t, "Never Gonna &lt;Give&gt; You Up", post.SongTitle)
		assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", post.SongURL)
		assert.Equal(t, clock.Now(), post.CreatedAt)
		assert.Equal(t, clock.Now().Add(24*time.Hour), post.ExpiresAt)
		assert.Equal(t, 0, post.Reports)
		assert.Len(t, repo.posts, 1)
		assert.Equal(t, []EventType{EventPostCreated}, pub.types())
	})

	t.Run("rejects short titles", func(t *testing.T) {
		svc, repo, _, _ := setupTestService(t)

		_, err := svc.SubmitPost(context.Background(), " x ", "https://youtu.be/dQw4w9WgXcQ")
		assert.ErrorIs(t, err, ErrInvalidTitle)
		assert.ErrorIs(t, err, ErrInputRejected)
		assert.Empty(t, repo.posts)
	})

	t.Run("rejects disallowed urls", func(t *testing.T) {
		svc, repo, _, pub := setupTestService(t)

		_, err := svc.SubmitPost(context.Background(), "Some song", "https://evil.com/youtube.com")
		assert.ErrorIs(t, err, ErrInvalidURL)
		assert.ErrorIs(t, err, ErrInputRejected)
		assert.Empty(t, repo.posts)
		assert.Empty(t, pub.types())
	})

	t.Run("title is checked before url", func(t *testing.T) {
		svc, _, _, _ := setupTestService(t)

		_, err := svc.SubmitPost(context.Background(), "", "ftp://nope")
		assert.ErrorIs(t, err, ErrInvalidTitle)
	})

	t.Run("wraps storage failures", func(t *testing.T) {
		svc, repo, _, _ := setupTestService(t)
		repo.failWith = errors.New("disk full")

		_, err := svc.SubmitPost(context.Background(), "Some song", "https://youtu.be/dQw4w9WgXcQ")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInputRejected)
		assert.ErrorIs(t, err, repo.failWith)
	})
}

func TestPostService_ListActivePosts(t *testing.T) {
	t.Run("empty board is an empty slice", func(t *testing.T) {
		svc, _, _, _ := setupTestService(t)

		posts, err := svc.ListActivePosts(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, posts)
		assert.Empty(t, posts)
	})

	t.Run("newest first with embeds", func(t *testing.T) {
		svc, _, clock, _ := setupTestService(t)
		ctx := context.Background()

		_, err := svc.SubmitPost(ctx, "First", "https://youtu.be/dQw4w9WgXcQ")
		require.NoError(t, err)
		clock.Advance(time.Minute)
		_, err = svc.SubmitPost(ctx, "Second", "https://open.spotify.com/track/abc123")
		require.NoError(t, err)

		posts, err := svc.ListActivePosts(ctx)
		require.NoError(t, err)
		require.Len(t, posts, 2)

		assert.Equal(t, "Second", posts[0].SongTitle)
		assert.Equal(t, embed.PlatformSpotify, posts[0].Embed.Platform)
		assert.Contains(t, posts[0].Embed.HTML, "embed/track/abc123")

		assert.Equal(t, "First", posts[1].SongTitle)
		assert.Equal(t, embed.PlatformYouTube, posts[1].Embed.Platform)
		assert.Contains(t, posts[1].Embed.HTML, "youtube.com/embed/dQw4w9WgXcQ")
	})

	t.Run("expired posts are hidden before the sweep", func(t *testing.T) {
		svc, repo, clock, _ := setupTestService(t)
		ctx := context.Background()

		_, err := svc.SubmitPost(ctx, "Old song", "https://youtu.be/dQw4w9WgXcQ")
		require.NoError(t, err)
		clock.Advance(25 * time.Hour)
		_, err = svc.SubmitPost(ctx, "New song", "https://soundcloud.com/a/b")
		require.NoError(t, err)

		posts, err := svc.ListActivePosts(ctx)
		require.NoError(t, err)
		require.Len(t, posts, 1)
		assert.Equal(t, "New song", posts[0].SongTitle)
		assert.Len(t, repo.posts, 2, "read path filters without deleting")
	})

	t.Run("extraction failure only affects that post", func(t *testing.T) {
		svc, _, clock, _ := setupTestService(t)
		ctx := context.Background()

		_, err := svc.SubmitPost(ctx, "Channel", "https://www.youtube.com/channel/UCabc")
		require.NoError(t, err)
		clock.Advance(time.Second)
		_, err = svc.SubmitPost(ctx, "Track", "https://youtu.be/dQw4w9WgXcQ")
		require.NoError(t, err)

		posts, err := svc.ListActivePosts(ctx)
		require.NoError(t, err)
		require.Len(t, posts, 2)
		assert.Equal(t, embed.PlatformYouTube, posts[0].Embed.Platform)
		assert.Equal(t, embed.PlatformLink, posts[1].Embed.Platform)
	})

	t.Run("storage failure", func(t *testing.T) {
		svc, repo, _, _ := setupTestService(t)
		repo.failWith = errors.New("locked")

		_, err := svc.ListActivePosts(context.Background())
		assert.ErrorIs(t, err, repo.failWith)
	})
}

func TestPostService_ReportPost(t *testing.T) {
	t.Run("ten reports keep the post", func(t *testing.T) {
		svc, _, _, _ := setupTestService(t)
		ctx := context.Background()

		post, err := svc.SubmitPost(ctx, "Reported", "https://youtu.be/dQw4w9WgXcQ")
		require.NoError(t, err)

		for i := 1; i <= 10; i++ {
			res, err := svc.ReportPost(ctx, post.ID)
			require.NoError(t, err)
			assert.True(t, res.Found)
			assert.Equal(t, i, res.Reports)
			assert.False(t, res.Removed)
		}

		posts, err := svc.ListActivePosts(ctx)
		require.NoError(t, err)
		require.Len(t, posts, 1)
		assert.Equal(t, 10, posts[0].Reports)
	})

	t.Run("eleventh report removes the post", func(t *testing.T) {
		svc, _, _, pub := setupTestService(t)
		ctx := context.Background()

		post, err := svc.SubmitPost(ctx, "Reported", "https://youtu.be/dQw4w9WgXcQ")
		require.NoError(t, err)

		var res ReportResult
		for i := 0; i < 11; i++ {
			res, err = svc.ReportPost(ctx, post.ID)
			require.NoError(t, err)
		}
		assert.True(t, res.Removed)
		assert.Equal(t, 11, res.Reports)

		posts, err := svc.ListActivePosts(ctx)
		require.NoError(t, err)
		assert.Empty(t, posts)

		types := pub.types()
		assert.Equal(t, EventPostRemoved, types[len(types)-1])
	})

	t.Run("unknown id is a successful no-op", func(t *testing.T) {
		svc, _, _, pub := setupTestService(t)

		res, err := svc.ReportPost(context.Background(), 999)
		require.NoError(t, err)
		assert.False(t, res.Found)
		assert.Empty(t, pub.types())
	})

	t.Run("storage failure", func(t *testing.T) {
		svc, repo, _, _ := setupTestService(t)
		repo.failWith = errors.New("locked")

		_, err := svc.ReportPost(context.Background(), 1)
		assert.ErrorIs(t, err, repo.failWith)
	})
}

func TestPostService_SweepExpired(t *testing.T) {
	svc, repo, clock, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.SubmitPost(ctx, "Expired", "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	clock.Advance(25 * time.Hour)
	active, err := svc.SubmitPost(ctx, "Active", "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)

	deleted, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	require.Len(t, repo.posts, 1)
	assert.Contains(t, repo.posts, active.ID)

	deleted, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted, "sweeping again is a no-op")
}

func TestPostService_StartExpirySweeper(t *testing.T) {
	t.Run("rejects an invalid schedule", func(t *testing.T) {
		svc, _, _, _ := setupTestService(t)

		err := svc.StartExpirySweeper(context.Background(), "not a schedule")
		assert.Error(t, err)
	})

	t.Run("sweeps on start and stops with the context", func(t *testing.T) {
		svc, repo, clock, _ := setupTestService(t)
		ctx, cancel := context.WithCancel(context.Background())

		_, err := svc.SubmitPost(ctx, "Expired", "https://youtu.be/dQw4w9WgXcQ")
		require.NoError(t, err)
		clock.Advance(48 * time.Hour)

		done := make(chan error, 1)
		go func() {
			done <- svc.StartExpirySweeper(ctx, DefaultSweepSchedule)
		}()

		assert.Eventually(t, func() bool {
			repo.mu.Lock()
			defer repo.mu.Unlock()
			return len(repo.posts) == 0
		}, time.Second, 10*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("sweeper did not stop")
		}
	})

	t.Run("swallows sweep failures", func(t *testing.T) {
		svc, repo, _, _ := setupTestService(t)
		repo.failWith = errors.New("locked")
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- svc.StartExpirySweeper(ctx, DefaultSweepSchedule)
		}()
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("sweeper did not stop")
		}
	})
}

func TestPost_ActiveAt(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := Post{CreatedAt: created, ExpiresAt: created.Add(DefaultPostLifetime)}

	assert.True(t, p.ActiveAt(created))
	assert.True(t, p.ActiveAt(created.Add(23*time.Hour)))
	assert.False(t, p.ActiveAt(created.Add(24*time.Hour)))
	assert.False(t, p.ActiveAt(created.Add(25*time.Hour)))
}
