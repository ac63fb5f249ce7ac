package domain

import (
	"time"

	"github.com/blackmichael/share-your-sound/internal/embed"
)

// Post is a shared track as stored in the board.
type Post struct {
	// ID is assigned by the store on creation.
	ID int64

	// SongTitle is the sanitized, HTML-escaped display title.
	SongTitle string

	// SongURL is the canonical URL accepted by the validator.
	SongURL string

	// CreatedAt is when the post was accepted (UTC).
	CreatedAt time.Time

	// ExpiresAt is CreatedAt plus the board's post lifetime.
	ExpiresAt time.Time

	// Reports is the number of times visitors have flagged the post.
	Reports int
}

// ActiveAt reports whether the post is still visible at now.
func (p *Post) ActiveAt(now time.Time) bool {
	return now.Before(p.ExpiresAt)
}

// BoardPost is a post as served by the read path, with its player markup.
type BoardPost struct {
	Post
	Embed embed.Embed
}

// ReportResult describes what a single report did to the store.
type ReportResult struct {
	// Found is false when no post had the reported id.
	Found bool

	// Reports is the counter value after the increment.
	Reports int

	// Removed is true when the post crossed the threshold and was deleted.
	Removed bool
}
