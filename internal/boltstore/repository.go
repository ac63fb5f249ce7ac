// Package boltstore implements the post store on BoltDB (bbolt). It is the
// alternative to the SQLite store for deployments that want a single-file
// key-value database.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/blackmichael/share-your-sound/internal/domain"
	"github.com/blackmichael/share-your-sound/internal/tracing"
)

// BucketPosts stores posts keyed by their big-endian id, so cursor order is
// creation order.
var BucketPosts = []byte("posts")

// Options configures the BoltDB store.
type Options struct {
	// Path to the database file. Parent directories will be created if needed.
	Path string

	// Timeout for obtaining a file lock on the database.
	// If zero, a default of 5 seconds is used.
	Timeout time.Duration

	// FileMode for creating the database file.
	// If zero, 0600 is used.
	FileMode os.FileMode
}

// DefaultOptions returns sensible defaults for development.
func DefaultOptions() Options {
	return Options{
		Path:     "share-your-sound.bolt",
		Timeout:  5 * time.Second,
		FileMode: 0600,
	}
}

// postRecord is the stored JSON form of a post. Times are unix milliseconds.
type postRecord struct {
	ID        int64  `json:"id"`
	SongTitle string `json:"song_title"`
	SongURL   string `json:"song_url"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
	Reports   int    `json:"reports"`
}

func (r postRecord) toPost() domain.Post {
	return domain.Post{
		ID:        r.ID,
		SongTitle: r.SongTitle,
		SongURL:   r.SongURL,
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
		ExpiresAt: time.UnixMilli(r.ExpiresAt).UTC(),
		Reports:   r.Reports,
	}
}

// Repository implements domain.PostRepository using BoltDB.
type Repository struct {
	db *bolt.DB
}

var _ domain.PostRepository = (*Repository)(nil)

// Open creates or opens a BoltDB database and ensures the posts bucket exists.
func Open(opts Options) (*Repository, error) {
	if opts.Path == "" {
		opts.Path = DefaultOptions().Path
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0600
	}

	dir := filepath.Dir(opts.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bolt.Open(opts.Path, opts.FileMode, &bolt.Options{
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(BucketPosts); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", BucketPosts, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreatePost stores a new post under the next bucket sequence and sets its ID.
func (r *Repository) CreatePost(ctx context.Context, post *domain.Post) (err error) {
	_, span := tracing.StoreSpan(ctx, "bolt", "create_post")
	defer func() {
		tracing.EndWithError(span, err)
		span.End()
	}()

	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketPosts)

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("next post id: %w", err)
		}

		rec := postRecord{
			ID:        int64(seq),
			SongTitle: post.SongTitle,
			SongURL:   post.SongURL,
			CreatedAt: post.CreatedAt.UnixMilli(),
			ExpiresAt: post.ExpiresAt.UnixMilli(),
			Reports:   post.Reports,
		}
		if err := putRecord(bucket, rec); err != nil {
			return err
		}

		post.ID = rec.ID
		return nil
	})
}

// ListActivePosts returns posts that expire after now, newest first.
func (r *Repository) ListActivePosts(ctx context.Context, now time.Time) ([]domain.Post, error) {
	_, span := tracing.StoreSpan(ctx, "bolt", "list_active_posts")
	defer span.End()

	cutoff := now.UnixMilli()
	posts := []domain.Post{}

	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(BucketPosts).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec postRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode post %d: %w", decodeID(k), err)
			}
			if rec.ExpiresAt > cutoff {
				posts = append(posts, rec.toPost())
			}
		}
		return nil
	})
	if err != nil {
		tracing.EndWithError(span, err)
		return nil, err
	}

	// Keys are already id-descending; a stable sort keeps that as the tiebreak.
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return posts, nil
}

// ReportPost increments the report counter and deletes the post in the same
// write transaction when shouldRemove accepts the new count.
func (r *Repository) ReportPost(ctx context.Context, id int64, shouldRemove func(reports int) bool) (domain.ReportResult, error) {
	_, span := tracing.StoreSpan(ctx, "bolt", "report_post")
	defer span.End()

	var res domain.ReportResult

	err := r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketPosts)
		key := encodeID(id)

		data := bucket.Get(key)
		if data == nil {
			return nil
		}

		var rec postRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode post %d: %w", id, err)
		}
		rec.Reports++
		res = domain.ReportResult{Found: true, Reports: rec.Reports}

		if shouldRemove(rec.Reports) {
			res.Removed = true
			return bucket.Delete(key)
		}
		return putRecord(bucket, rec)
	})
	if err != nil {
		tracing.EndWithError(span, err)
		return domain.ReportResult{}, err
	}
	return res, nil
}

// DeleteExpiredPosts removes every post that expired at or before now in one
// write transaction. Returns the number of posts deleted.
func (r *Repository) DeleteExpiredPosts(ctx context.Context, now time.Time) (int64, error) {
	_, span := tracing.StoreSpan(ctx, "bolt", "delete_expired_posts")
	defer span.End()

	cutoff := now.UnixMilli()
	var deleted int64

	err := r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketPosts)

		var expired [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var rec postRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode post %d: %w", decodeID(k), err)
			}
			if rec.ExpiresAt <= cutoff {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		deleted = int64(len(expired))
		return nil
	})
	if err != nil {
		tracing.EndWithError(span, err)
		return 0, err
	}
	return deleted, nil
}

// CountPosts returns the number of stored posts, expired ones included.
func (r *Repository) CountPosts(_ context.Context) (int64, error) {
	var n int64
	err := r.db.View(func(tx *bolt.Tx) error {
		n = int64(tx.Bucket(BucketPosts).Stats().KeyN)
		return nil
	})
	return n, err
}

func putRecord(bucket *bolt.Bucket, rec postRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode post %d: %w", rec.ID, err)
	}
	return bucket.Put(encodeID(rec.ID), data)
}

func encodeID(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func decodeID(k []byte) int64 {
	if len(k) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(k))
}
