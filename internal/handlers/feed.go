package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/sidechain/feedengine/internal/feed"
	"github.com/zfogg/sidechain/feedengine/internal/logger"
	"github.com/zfogg/sidechain/feedengine/internal/util"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Feed scopes accepted by POST /feed/since
const (
	scopeGlobal = "global"
	scopeHome   = "home"
)

type feedParams struct {
	cursor         string
	limit          int
	includeReposts bool
	withReputation bool
}

func (h *Handlers) parseFeedParams(c *gin.Context) (feedParams, bool) {
	p := feedParams{cursor: c.Query("cursor")}
	var err error

	if p.limit, err = util.ParseIntParam(c.Query("limit"), h.opts.DefaultPageSize); err != nil {
		util.RespondValidationError(c, "limit", "limit must be an integer")
		return p, false
	}
	if p.includeReposts, err = util.ParseBoolParam(c.Query("include_reposts"), true); err != nil {
		util.RespondValidationError(c, "include_reposts", "include_reposts must be a boolean")
		return p, false
	}
	if p.withReputation, err = util.ParseBoolParam(c.Query("with_reputation"), false); err != nil {
		util.RespondValidationError(c, "with_reputation", "with_reputation must be a boolean")
		return p, false
	}
	return p, true
}

// GetGlobalFeed returns one page of every user's posts and reposts
// GET /api/v1/feed/global
func (h *Handlers) GetGlobalFeed(c *gin.Context) {
	h.serveFeed(c, h.sources.Global())
}

// GetHomeFeed returns one page from the viewer and the users they follow
// GET /api/v1/feed/home
func (h *Handlers) GetHomeFeed(c *gin.Context) {
	viewerID, _ := util.GetViewerID(c)
	h.serveFeed(c, h.sources.Home(viewerID))
}

func (h *Handlers) serveFeed(c *gin.Context, source feed.Source) {
	params, ok := h.parseFeedParams(c)
	if !ok {
		return
	}

	page, err := h.merger(source).GetPage(c.Request.Context(), feed.PageRequest{
		Cursor:         params.cursor,
		PageSize:       params.limit,
		IncludeReposts: params.includeReposts,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if params.withReputation {
		h.attachReputation(c.Request.Context(), page.Items)
	}
	c.JSON(http.StatusOK, page)
}

type sinceRequest struct {
	Since          time.Time           `json:"since" binding:"required"`
	Limit          int                 `json:"limit"`
	IncludeReposts *bool               `json:"include_reposts"`
	WithReputation bool                `json:"with_reputation"`
	Rendered       []feed.RenderedItem `json:"rendered"`
	Scope          string              `json:"scope"`
	Cursor         string              `json:"cursor"`
}

// GetFeedSince returns items newer than a watermark that the client has
// not rendered yet
// POST /api/v1/feed/since
func (h *Handlers) GetFeedSince(c *gin.Context) {
	var req sinceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondValidationError(c, "body", err.Error())
		return
	}

	var source feed.Source
	switch req.Scope {
	case "", scopeGlobal:
		source = h.sources.Global()
	case scopeHome:
		viewerID, ok := util.GetViewerID(c)
		if !ok {
			util.RespondUnauthorized(c, "the home scope requires a viewer")
			return
		}
		source = h.sources.Home(viewerID)
	default:
		util.RespondValidationError(c, "scope", "scope must be global or home")
		return
	}

	includeReposts := true
	if req.IncludeReposts != nil {
		includeReposts = *req.IncludeReposts
	}
	limit := req.Limit
	if limit == 0 {
		limit = h.opts.DefaultPageSize
	}

	page, err := h.merger(source).GetSince(c.Request.Context(), feed.SinceRequest{
		Since:          req.Since,
		Limit:          limit,
		IncludeReposts: includeReposts,
		Rendered:       req.Rendered,
		Cursor:         req.Cursor,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if req.WithReputation {
		h.attachReputation(c.Request.Context(), page.Items)
	}
	c.JSON(http.StatusOK, page)
}

// attachReputation looks up every distinct owner and repost actor on the
// page concurrently. A failed lookup leaves that author's reputation unset
// and never fails the page.
func (h *Handlers) attachReputation(ctx context.Context, items []feed.FeedItem) {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, item := range items {
		add(item.Owner.ID)
		if item.RepostActor != nil {
			add(item.RepostActor.ID)
		}
	}
	if len(ids) == 0 {
		return
	}

	var (
		mu      sync.Mutex
		results = make(map[string]feed.Reputation, len(ids))
		g       errgroup.Group
	)
	g.SetLimit(h.opts.EnrichmentLimit)
	for _, id := range ids {
		g.Go(func() error {
			res, err := h.scores.GetScore(ctx, id)
			if err != nil {
				logger.Log.Debug("Omitting reputation from feed item",
					logger.WithUserID(id),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			results[id] = feed.Reputation{Score: res.Score, Bucket: res.Bucket.String()}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i := range items {
		if rep, ok := results[items[i].Owner.ID]; ok {
			items[i].OwnerReputation = &rep
		}
		if actor := items[i].RepostActor; actor != nil {
			if rep, ok := results[actor.ID]; ok {
				items[i].ActorReputation = &rep
			}
		}
	}
}
