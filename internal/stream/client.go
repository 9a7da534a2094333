package stream

import (
	"context"
	"fmt"
	"time"

	stream "github.com/GetStream/stream-go2/v8"
	"github.com/zfogg/sidechain/feedengine/internal/config"
	"github.com/zfogg/sidechain/feedengine/internal/telemetry"
)

// Feed groups configured in the Stream.io dashboard
const (
	FeedGroupGlobal          = "global"           // Every original post
	FeedGroupReposts         = "reposts"          // Every repost event
	FeedGroupTimeline        = "timeline"         // Originals from followed users
	FeedGroupTimelineReposts = "timeline_reposts" // Reposts by followed users

	globalFeedID = "main"
)

// Verbs used on published activities
const (
	VerbPost   = "post"
	VerbRepost = "repost"
)

// ActivityReader is the narrow read surface the feed source needs.
// Activities come back newest first.
type ActivityReader interface {
	Activities(ctx context.Context, group, feedID string, limit int, idLT string) ([]stream.Activity, error)
}

// ActivityPublisher adds activities to a flat feed, fanning out to the
// feeds named in To.
type ActivityPublisher interface {
	Publish(ctx context.Context, group, feedID string, activity stream.Activity) (string, error)
}

// Client wraps the Stream.io feeds client
type Client struct {
	feedsClient *stream.Client
}

var (
	_ ActivityReader    = (*Client)(nil)
	_ ActivityPublisher = (*Client)(nil)
)

// NewClient creates a Stream.io client from the configured credentials
func NewClient(cfg config.StreamConfig) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("stream api key and secret must be set")
	}

	feedsClient, err := stream.New(cfg.APIKey, cfg.APISecret,
		stream.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Stream.io Feeds client: %w", err)
	}

	return &Client{feedsClient: feedsClient}, nil
}

// Activities reads one page of a flat feed, strictly older than idLT when
// it is set.
func (c *Client) Activities(ctx context.Context, group, feedID string, limit int, idLT string) (acts []stream.Activity, err error) {
	ctx, span := telemetry.TraceStreamCall(ctx, "get_activities", FeedRef(group, feedID), limit)
	defer func() {
		if err != nil {
			telemetry.RecordServiceError(span, err)
		} else {
			telemetry.RecordServiceSuccess(span, len(acts))
		}
		span.End()
	}()

	flat, err := c.feedsClient.FlatFeed(group, feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s:%s feed: %w", group, feedID, err)
	}

	opts := []stream.GetActivitiesOption{stream.WithActivitiesLimit(limit)}
	if idLT != "" {
		opts = append(opts, stream.WithActivitiesIDLT(idLT))
	}

	resp, err := flat.GetActivities(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s:%s: %w", group, feedID, err)
	}
	return resp.Results, nil
}

// Publish adds an activity to a flat feed and returns its Stream id
func (c *Client) Publish(ctx context.Context, group, feedID string, activity stream.Activity) (string, error) {
	ctx, span := telemetry.TraceStreamCall(ctx, "add_activity", FeedRef(group, feedID), 0)
	defer span.End()

	flat, err := c.feedsClient.FlatFeed(group, feedID)
	if err != nil {
		return "", fmt.Errorf("failed to get %s:%s feed: %w", group, feedID, err)
	}

	resp, err := flat.AddActivity(ctx, activity)
	if err != nil {
		telemetry.RecordServiceError(span, err)
		return "", fmt.Errorf("failed to create Stream.io activity: %w", err)
	}
	return resp.ID, nil
}

// FeedRef renders a feed reference for an activity's To list
func FeedRef(group, feedID string) string {
	return group + ":" + feedID
}
