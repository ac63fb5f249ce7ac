package domain

import (
	"context"
	"time"
)

// PostRepository defines persistence operations for board posts.
type PostRepository interface {
	// CreatePost inserts a new post and sets post.ID.
	CreatePost(ctx context.Context, post *Post) error

	// ListActivePosts returns posts with expiresAt after now, newest first.
	ListActivePosts(ctx context.Context, now time.Time) ([]Post, error)

	// ReportPost increments the report counter of the post with the given id
	// and, in the same transaction, deletes it when shouldRemove returns true
	// for the new count. A missing id is not an error: the result has Found
	// set to false.
	ReportPost(ctx context.Context, id int64, shouldRemove func(reports int) bool) (ReportResult, error)

	// DeleteExpiredPosts removes every post whose expiresAt is at or before
	// now in a single bulk operation. Returns the number of rows deleted.
	DeleteExpiredPosts(ctx context.Context, now time.Time) (int64, error)
}

// EventPublisher receives board events after the store has applied them.
type EventPublisher interface {
	Publish(event Event)
}

// EventType names a board event.
type EventType string

const (
	EventPostCreated  EventType = "post.created"
	EventPostReported EventType = "post.reported"
	EventPostRemoved  EventType = "post.removed"
)

// Event is a change to the board that live clients may want to react to.
type Event struct {
	Type    EventType
	PostID  int64
	Reports int
	At      time.Time
}
