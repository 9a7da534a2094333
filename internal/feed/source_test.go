package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return base.Add(time.Duration(sec) * time.Second)
}

func original(id string, ts int) Row {
	return Row{Item: FeedItem{
		ID:               id,
		Owner:            Actor{ID: "owner-" + id, Display: "Owner " + id},
		Content:          "post " + id,
		Counters:         Counters{Favorites: 1, Reposts: 2, Replies: 3},
		PrimaryTimestamp: at(ts),
	}}
}

func repost(id string, created int, actor string, ts int) Row {
	row := original(id, created)
	rt := at(ts)
	row.Item.RepostActor = &Actor{ID: actor, Display: "Actor " + actor}
	row.Item.RepostTimestamp = &rt
	return row
}

// memSource serves two in-memory streams with keyset semantics. Each row's
// cursor is its dedupe key.
type memSource struct {
	mu        sync.Mutex
	originals []Row
	reposts   []Row

	originalErr error
	repostErr   error
	// block makes the repost query ignore its context and hang until closed.
	block chan struct{}

	originalQueries []Query
	repostQueries   []Query
}

func newMemSource(originals, reposts []Row) *memSource {
	return &memSource{originals: prepare(originals), reposts: prepare(reposts)}
}

func prepare(rows []Row) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)
	for i := range out {
		out[i].Cursor = out[i].Item.DedupeKey()
	}
	sort.SliceStable(out, func(i, j int) bool { return Before(out[i].Item, out[j].Item) })
	return out
}

func (s *memSource) OriginalItems(ctx context.Context, q Query) ([]Row, error) {
	s.mu.Lock()
	s.originalQueries = append(s.originalQueries, q)
	err := s.originalErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return slice(s.originals, q)
}

func (s *memSource) RepostEvents(ctx context.Context, q Query) ([]Row, error) {
	s.mu.Lock()
	s.repostQueries = append(s.repostQueries, q)
	err := s.repostErr
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return slice(s.reposts, q)
}

func slice(rows []Row, q Query) ([]Row, error) {
	start := 0
	if q.After != "" {
		idx := -1
		for i, r := range rows {
			if r.Cursor == q.After {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: unknown position %q", ErrInvalidCursor, q.After)
		}
		start = idx + 1
	}

	var out []Row
	for _, r := range rows[start:] {
		if q.Since != nil && !r.Item.EffectiveTimestamp().After(*q.Since) {
			break
		}
		out = append(out, r)
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}
