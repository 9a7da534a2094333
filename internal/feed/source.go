package feed

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCursor is returned for malformed or stale pagination cursors.
	ErrInvalidCursor = errors.New("invalid feed cursor")
	// ErrSourceUnavailable marks a single source failure. It is recovered
	// locally and only surfaces inside ErrFeedUnavailable.
	ErrSourceUnavailable = errors.New("feed source unavailable")
	// ErrFeedUnavailable is returned when no queried source produced rows.
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrNoProgress is returned instead of a page that would consume no
	// rows yet report more, which happens when a source breaks feed order.
	ErrNoProgress = errors.New("feed page made no progress")
)

// Query asks a source for rows strictly after the After token, newest first.
type Query struct {
	After string
	Limit int
	// Since restricts rows to effective timestamps strictly after it.
	Since *time.Time
}

// Row is one candidate delivered by a Source.
type Row struct {
	Item FeedItem
	// Cursor resumes the source immediately after this row.
	Cursor string
	// ParentMissing is set on repost events whose original post was deleted.
	ParentMissing bool
}

// Source is the persistence collaborator the merger pulls from. Both
// queries must return rows in feed order (see Before) and wrap
// ErrInvalidCursor when the After token cannot be parsed.
type Source interface {
	OriginalItems(ctx context.Context, q Query) ([]Row, error)
	RepostEvents(ctx context.Context, q Query) ([]Row, error)
}
