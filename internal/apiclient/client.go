// Package apiclient is the HTTP client for the feed engine API.
package apiclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/zfogg/sidechain/feedengine/internal/feed"
	"github.com/zfogg/sidechain/feedengine/internal/telemetry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const userAgent = "feedctl/0.1.0"

// Logger receives request and response traces. *log.Logger from
// charmbracelet/log satisfies it.
type Logger interface {
	Debug(msg interface{}, keyvals ...interface{})
}

// Options configures a Client
type Options struct {
	BaseURL string
	Timeout time.Duration
	// Token is sent as a bearer token when set.
	Token string
	// UserID is sent as X-User-ID when no token is set. Servers only honour
	// it when they run without a JWT secret.
	UserID string
	Logger Logger
}

// Client calls the feed engine API
type Client struct {
	http *resty.Client
}

// FeedParams are the query parameters of the feed pages
type FeedParams struct {
	Cursor         string
	Limit          int
	IncludeReposts bool
	WithReputation bool
}

// SinceParams is the body of POST /feed/since
type SinceParams struct {
	Since          time.Time           `json:"since"`
	Limit          int                 `json:"limit,omitempty"`
	IncludeReposts *bool               `json:"include_reposts,omitempty"`
	WithReputation bool                `json:"with_reputation,omitempty"`
	Rendered       []feed.RenderedItem `json:"rendered,omitempty"`
	Scope          string              `json:"scope,omitempty"`
	Cursor         string              `json:"cursor,omitempty"`
}

// Reputation is a user's score as served by the API
type Reputation struct {
	UserID string `json:"user_id"`
	Score  int    `json:"score"`
	Bucket string `json:"bucket"`
}

// New builds a client over an instrumented transport
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	rc := resty.NewWithClient(telemetry.NewInstrumentedHTTPClient(opts.Timeout))
	rc.SetBaseURL(opts.BaseURL)
	rc.SetHeader("User-Agent", userAgent)
	rc.JSONMarshal = json.Marshal
	rc.JSONUnmarshal = json.Unmarshal

	switch {
	case opts.Token != "":
		rc.SetAuthToken(opts.Token)
	case opts.UserID != "":
		rc.SetHeader("X-User-ID", opts.UserID)
	}

	if opts.Logger != nil {
		logger := opts.Logger
		rc.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
			logger.Debug("HTTP Request", "method", req.Method, "url", req.URL)
			return nil
		})
		rc.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
			logger.Debug("HTTP Response", "status", resp.StatusCode(), "duration", resp.Time())
			return nil
		})
	}
	return &Client{http: rc}
}

// GlobalFeed fetches one page of the global feed
func (c *Client) GlobalFeed(ctx context.Context, p FeedParams) (*feed.Page, error) {
	return c.getFeed(ctx, "/api/v1/feed/global", p)
}

// HomeFeed fetches one page of the caller's home feed
func (c *Client) HomeFeed(ctx context.Context, p FeedParams) (*feed.Page, error) {
	return c.getFeed(ctx, "/api/v1/feed/home", p)
}

func (c *Client) getFeed(ctx context.Context, path string, p FeedParams) (*feed.Page, error) {
	query := map[string]string{
		"include_reposts": strconv.FormatBool(p.IncludeReposts),
		"with_reputation": strconv.FormatBool(p.WithReputation),
	}
	if p.Cursor != "" {
		query["cursor"] = p.Cursor
	}
	if p.Limit > 0 {
		query["limit"] = strconv.Itoa(p.Limit)
	}

	var page feed.Page
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(&page).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, parseError(resp)
	}
	return &page, nil
}

// FeedSince fetches items newer than p.Since
func (c *Client) FeedSince(ctx context.Context, p SinceParams) (*feed.Page, error) {
	var page feed.Page
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(p).
		SetResult(&page).
		Post("/api/v1/feed/since")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, parseError(resp)
	}
	return &page, nil
}

// Reputation fetches a user's current score
func (c *Client) Reputation(ctx context.Context, userID string) (*Reputation, error) {
	return c.reputation(ctx, userID, false)
}

// RefreshReputation asks the server to drop its cached score and recompute
func (c *Client) RefreshReputation(ctx context.Context, userID string) (*Reputation, error) {
	return c.reputation(ctx, userID, true)
}

func (c *Client) reputation(ctx context.Context, userID string, refresh bool) (*Reputation, error) {
	var rep Reputation
	req := c.http.R().
		SetContext(ctx).
		SetPathParam("id", userID).
		SetResult(&rep)

	var (
		resp *resty.Response
		err  error
	)
	if refresh {
		resp, err = req.Post("/api/v1/users/{id}/reputation/refresh")
	} else {
		resp, err = req.Get("/api/v1/users/{id}/reputation")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reputation: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, parseError(resp)
	}
	return &rep, nil
}
