package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/zfogg/sidechain/feedengine/internal/logger"
	"github.com/zfogg/sidechain/feedengine/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	DefaultPageSize      = 20
	DefaultMaxPageSize   = 100
	DefaultSourceTimeout = 3 * time.Second
)

// Source names used in logs, metrics and Page.Degraded.
const (
	SourceOriginals = "originals"
	SourceReposts   = "reposts"
)

// Drop reasons recorded for candidates that never reach a page.
const (
	dropParentDeleted = "parent_deleted"
	dropReposted      = "reposted"
	dropDuplicate     = "duplicate"
	dropRendered      = "rendered"
	dropStale         = "stale"
)

var tracer = otel.Tracer("feedengine/feed")

// PageRequest asks for one page of the feed.
type PageRequest struct {
	Cursor         string
	PageSize       int
	IncludeReposts bool
}

// RenderedItem is an entry of the caller's already-rendered set.
type RenderedItem struct {
	ID        string `json:"id"`
	DedupeKey string `json:"dedupe_key"`
}

// SinceRequest asks for items newer than a watermark.
type SinceRequest struct {
	Since          time.Time
	Limit          int
	IncludeReposts bool
	Rendered       []RenderedItem
	// Cursor continues a previous GetSince page with the same watermark.
	Cursor string
}

// Page is the serialized result of a feed request.
type Page struct {
	Items      []FeedItem `json:"items"`
	HasMore    bool       `json:"has_more"`
	NextCursor string     `json:"next_cursor,omitempty"`
	Degraded   []string   `json:"degraded_sources,omitempty"`
}

// Merger merges original posts and repost events into one paginated feed.
// It holds no per-request state and is safe for concurrent use.
type Merger struct {
	source        Source
	sourceTimeout time.Duration
	maxPageSize   int
}

// Option configures a Merger.
type Option func(*Merger)

// WithSourceTimeout bounds each source fetch.
func WithSourceTimeout(d time.Duration) Option {
	return func(m *Merger) {
		if d > 0 {
			m.sourceTimeout = d
		}
	}
}

// WithMaxPageSize caps requested page sizes.
func WithMaxPageSize(n int) Option {
	return func(m *Merger) {
		if n > 0 {
			m.maxPageSize = n
		}
	}
}

// NewMerger creates a merger over source.
func NewMerger(source Source, opts ...Option) *Merger {
	m := &Merger{
		source:        source,
		sourceTimeout: DefaultSourceTimeout,
		maxPageSize:   DefaultMaxPageSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetPage returns the page after req.Cursor.
func (m *Merger) GetPage(ctx context.Context, req PageRequest) (*Page, error) {
	cur, err := DecodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "feed.GetPage")
	defer span.End()
	span.SetAttributes(
		attribute.Int("feed.page_size", req.PageSize),
		attribute.Bool("feed.include_reposts", req.IncludeReposts),
	)

	page, err := m.assemble(ctx, "page", cur, m.pageSize(req.PageSize), req.IncludeReposts, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return page, err
}

// GetSince returns items whose effective timestamp is after req.Since,
// suppressing ids the caller already rendered under another dedupe key.
func (m *Merger) GetSince(ctx context.Context, req SinceRequest) (*Page, error) {
	cur, err := DecodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "feed.GetSince")
	defer span.End()
	span.SetAttributes(
		attribute.Int("feed.page_size", req.Limit),
		attribute.Int("feed.rendered", len(req.Rendered)),
	)

	rendered := make(map[string]map[string]bool, len(req.Rendered))
	for _, r := range req.Rendered {
		if rendered[r.ID] == nil {
			rendered[r.ID] = make(map[string]bool)
		}
		rendered[r.ID][r.DedupeKey] = true
	}
	suppress := func(item FeedItem) bool {
		keys, ok := rendered[item.ID]
		return ok && !keys[item.DedupeKey()]
	}

	since := req.Since.UTC()
	page, err := m.assemble(ctx, "since", cur, m.pageSize(req.Limit), req.IncludeReposts, &since, suppress)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return page, err
}

func (m *Merger) pageSize(n int) int {
	if n <= 0 {
		n = DefaultPageSize
	}
	if n > m.maxPageSize {
		n = m.maxPageSize
	}
	return n
}

type sourceResult struct {
	name string
	rows []Row
	err  error
}

type candidate struct {
	row    Row
	source string
}

func (m *Merger) assemble(ctx context.Context, kind string, cur Cursor, pageSize int, includeReposts bool, since *time.Time, suppress func(FeedItem) bool) (*Page, error) {
	start := time.Now()
	defer func() {
		metrics.Get().FeedPageDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	limit := (pageSize+1)/2 + 1
	results := m.fetch(ctx, cur, limit, since, includeReposts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page := &Page{Items: make([]FeedItem, 0, pageSize)}
	var failures []error
	var candidates []candidate
	exhausted := true
	// horizon is the earliest last row among sources that may hold more
	// rows; nothing at or past it is safe to emit on this page.
	var horizon *FeedItem

	for _, res := range results {
		if res.err != nil {
			if errors.Is(res.err, ErrInvalidCursor) {
				return nil, res.err
			}
			logger.Log.Warn("Feed source failed",
				zap.String("source", res.name),
				zap.Error(res.err),
			)
			metrics.Get().FeedSourceFailures.WithLabelValues(res.name).Inc()
			failures = append(failures, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, res.name, res.err))
			page.Degraded = append(page.Degraded, res.name)
			continue
		}
		if len(res.rows) >= limit {
			exhausted = false
			last := res.rows[0].Item
			for _, row := range res.rows[1:] {
				if Before(last, row.Item) {
					last = row.Item
				}
			}
			if horizon == nil || Before(last, *horizon) {
				horizon = &last
			}
		}
		for _, row := range res.rows {
			candidates = append(candidates, candidate{row: row, source: res.name})
		}
	}

	if len(failures) == len(results) {
		return nil, fmt.Errorf("%w: %w", ErrFeedUnavailable, errors.Join(failures...))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return Before(candidates[i].row.Item, candidates[j].row.Item)
	})

	reposted := make(map[string]bool)
	for _, c := range candidates {
		if c.row.Item.IsRepost() && !c.row.ParentMissing {
			reposted[c.row.Item.ID] = true
		}
	}

	seen := make(map[occurrence]bool, len(candidates))
	consumed := make(map[string]string, len(results))
	truncated := false

	for _, c := range candidates {
		item := c.row.Item
		if horizon != nil && !Before(item, *horizon) {
			break
		}

		var reason string
		switch {
		case c.row.ParentMissing:
			reason = dropParentDeleted
		case since != nil && !item.EffectiveTimestamp().After(*since):
			reason = dropStale
		case !item.IsRepost() && reposted[item.ID]:
			reason = dropReposted
		case seen[item.occurrence()]:
			reason = dropDuplicate
		case suppress != nil && suppress(item):
			reason = dropRendered
		}

		if reason == "" {
			if len(page.Items) == pageSize {
				truncated = true
				break
			}
			seen[item.occurrence()] = true
			page.Items = append(page.Items, item)
		} else {
			metrics.Get().FeedDroppedItems.WithLabelValues(reason).Inc()
		}
		consumed[c.source] = c.row.Cursor
	}

	page.HasMore = truncated || !exhausted || len(failures) > 0
	if page.HasMore && len(consumed) == 0 && len(failures) == 0 {
		// Returning the same cursor would make the client loop forever.
		logger.Log.Error("Feed page made no progress",
			zap.String("kind", kind),
			zap.Int("candidates", len(candidates)),
		)
		return nil, fmt.Errorf("%w: %d candidates, none before the page horizon", ErrNoProgress, len(candidates))
	}
	if page.HasMore {
		next := cur
		if pos, ok := consumed[SourceOriginals]; ok {
			next.Original = pos
		}
		if pos, ok := consumed[SourceReposts]; ok {
			next.Repost = pos
		}
		page.NextCursor = EncodeCursor(next)
	}

	logger.Log.Debug("Feed page assembled",
		zap.String("kind", kind),
		zap.Int("candidates", len(candidates)),
		zap.Int("items", len(page.Items)),
		zap.Bool("has_more", page.HasMore),
		zap.Strings("degraded", page.Degraded),
	)
	return page, nil
}

// fetch queries the sources concurrently. A source that does not answer
// within the source timeout is reported as failed.
func (m *Merger) fetch(ctx context.Context, cur Cursor, limit int, since *time.Time, includeReposts bool) []sourceResult {
	type job struct {
		name  string
		after string
		call  func(context.Context, Query) ([]Row, error)
	}
	jobs := []job{{name: SourceOriginals, after: cur.Original, call: m.source.OriginalItems}}
	if includeReposts {
		jobs = append(jobs, job{name: SourceReposts, after: cur.Repost, call: m.source.RepostEvents})
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.sourceTimeout)
	defer cancel()

	resultsChan := make(chan sourceResult, len(jobs))
	for _, j := range jobs {
		go func(j job) {
			rows, err := j.call(fetchCtx, Query{After: j.after, Limit: limit, Since: since})
			resultsChan <- sourceResult{name: j.name, rows: rows, err: err}
		}(j)
	}

	got := make(map[string]sourceResult, len(jobs))
	for len(got) < len(jobs) {
		select {
		case res := <-resultsChan:
			got[res.name] = res
		case <-fetchCtx.Done():
			for _, j := range jobs {
				if _, ok := got[j.name]; !ok {
					got[j.name] = sourceResult{name: j.name, err: fetchCtx.Err()}
				}
			}
		}
	}

	results := make([]sourceResult, 0, len(jobs))
	for _, j := range jobs {
		results = append(results, got[j.name])
	}
	return results
}
