package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/sidechain/feedengine/internal/feed"
	"github.com/zfogg/sidechain/feedengine/internal/middleware"
	"github.com/zfogg/sidechain/feedengine/internal/repository"
	"github.com/zfogg/sidechain/feedengine/internal/reputation"
)

// FeedSources builds the per-request feed source for each scope. The
// database and Stream backends both provide one.
type FeedSources struct {
	Global func() feed.Source
	Home   func(viewerID string) feed.Source
}

// ScoreService is the reputation surface the handlers use.
// *reputation.Coalescer implements it.
type ScoreService interface {
	GetScore(ctx context.Context, userID string) (reputation.Result, error)
	Invalidate(userID string)
}

// HealthCheck reports a dependency's health within ctx.
type HealthCheck func(ctx context.Context) error

// Options tunes paging and enrichment.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	SourceTimeout   time.Duration
	// EnrichmentLimit bounds concurrent score lookups per response.
	EnrichmentLimit int
}

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	sources FeedSources
	users   repository.UserRepository
	scores  ScoreService
	opts    Options
	checks  map[string]HealthCheck
}

// NewHandlers creates a new handlers instance
func NewHandlers(sources FeedSources, users repository.UserRepository, scores ScoreService, opts Options) *Handlers {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = feed.DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = feed.DefaultMaxPageSize
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = feed.DefaultSourceTimeout
	}
	if opts.EnrichmentLimit <= 0 {
		opts.EnrichmentLimit = 8
	}
	return &Handlers{
		sources: sources,
		users:   users,
		scores:  scores,
		opts:    opts,
		checks:  make(map[string]HealthCheck),
	}
}

// AddHealthCheck registers a dependency reported by /health
func (h *Handlers) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// RegisterRoutes mounts the API under api. Viewer resolution must already
// be installed on the engine.
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	feedGroup := api.Group("/feed")
	{
		feedGroup.GET("/global", h.GetGlobalFeed)
		feedGroup.GET("/home", middleware.RequireViewer(), h.GetHomeFeed)
		feedGroup.POST("/since", h.GetFeedSince)
	}

	users := api.Group("/users")
	{
		users.GET("/:id/reputation", h.GetUserReputation)
		users.POST("/:id/reputation/refresh", h.RefreshUserReputation)
	}
}

func (h *Handlers) merger(source feed.Source) *feed.Merger {
	return feed.NewMerger(source,
		feed.WithSourceTimeout(h.opts.SourceTimeout),
		feed.WithMaxPageSize(h.opts.MaxPageSize),
	)
}
