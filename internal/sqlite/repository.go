// Package sqlite implements the post store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	_ "modernc.org/sqlite"

	"github.com/blackmichael/share-your-sound/internal/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		song_title TEXT    NOT NULL,
		song_url   TEXT    NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		reports    INTEGER NOT NULL DEFAULT 0 CHECK (reports >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS posts_expires_at_idx ON posts (expires_at)`,
	`CREATE INDEX IF NOT EXISTS posts_created_at_idx ON posts (created_at DESC, id DESC)`,
}

// Repository implements domain.PostRepository using SQLite. Timestamps are
// stored as unix milliseconds (UTC).
type Repository struct {
	db *sql.DB
}

var _ domain.PostRepository = (*Repository)(nil)

// NewRepository opens (creating if needed) the SQLite database at path,
// applies the schema and returns a new Repository. The caller should call
// Close when the repository is no longer needed.
func NewRepository(path string) (*Repository, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := otelsql.Open("sqlite", dataSourceName(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps report
	// transactions from failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &Repository{db: db}, nil
}

const pragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// uriPathEscaper escapes the characters that would otherwise end the path of
// a SQLite file: URI. SQLite decodes %HH sequences in the path.
var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// dataSourceName builds the file: URI for path with the connection pragmas.
func dataSourceName(path string) string {
	u := url.URL{
		Scheme:   "file",
		Opaque:   uriPathEscaper.Replace(path),
		RawQuery: pragmas,
	}
	return u.String()
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// CreatePost inserts a new post and sets its ID.
func (r *Repository) CreatePost(ctx context.Context, post *domain.Post) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO posts (song_title, song_url, created_at, expires_at, reports)
		VALUES (?, ?, ?, ?, ?)`,
		post.SongTitle,
		post.SongURL,
		post.CreatedAt.UnixMilli(),
		post.ExpiresAt.UnixMilli(),
		post.Reports,
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read post id: %w", err)
	}
	post.ID = id
	return nil
}

// ListActivePosts retrieves posts that expire after now, newest first.
func (r *Repository) ListActivePosts(ctx context.Context, now time.Time) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, song_title, song_url, created_at, expires_at, reports
		FROM posts
		WHERE expires_at > ?
		ORDER BY created_at DESC, id DESC`,
		now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("query active posts: %w", err)
	}
	defer rows.Close()

	posts := []domain.Post{}
	for rows.Next() {
		var (
			p                    domain.Post
			createdAt, expiresAt int64
		)
		if err := rows.Scan(&p.ID, &p.SongTitle, &p.SongURL, &createdAt, &expiresAt, &p.Reports); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.CreatedAt = time.UnixMilli(createdAt).UTC()
		p.ExpiresAt = time.UnixMilli(expiresAt).UTC()
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// ReportPost increments the report counter and deletes the post in the same
// transaction when shouldRemove accepts the new count.
func (r *Repository) ReportPost(ctx context.Context, id int64, shouldRemove func(reports int) bool) (domain.ReportResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ReportResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var reports int
	err = tx.QueryRowContext(ctx,
		`UPDATE posts SET reports = reports + 1 WHERE id = ? RETURNING reports`, id,
	).Scan(&reports)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ReportResult{}, nil
	}
	if err != nil {
		return domain.ReportResult{}, fmt.Errorf("increment reports: %w", err)
	}

	res := domain.ReportResult{Found: true, Reports: reports}
	if shouldRemove(reports) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id); err != nil {
			return domain.ReportResult{}, fmt.Errorf("delete reported post: %w", err)
		}
		res.Removed = true
	}

	if err := tx.Commit(); err != nil {
		return domain.ReportResult{}, fmt.Errorf("commit transaction: %w", err)
	}
	return res, nil
}

// DeleteExpiredPosts removes every post that expired at or before now.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpiredPosts(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired posts: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// CountPosts returns the number of stored posts, expired ones included.
func (r *Repository) CountPosts(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}
