package stream

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/zfogg/sidechain/feedengine/internal/feed"
)

// maxReadBatch is the largest page Stream serves per read.
const maxReadBatch = 100

// FeedSource serves feed rows from Stream flat feeds. Originals and repost
// events live in separate feeds so each side paginates independently.
//
// Stream orders activities by time but breaks ties its own way, and id_lt
// resumes in that order. A read therefore buffers every activity sharing
// a timestamp, sorts the rows into feed order and hands out keyset
// positions that remember where their tie group starts in Stream.
type FeedSource struct {
	reader    ActivityReader
	originals feedRef
	reposts   feedRef
}

type feedRef struct {
	group string
	id    string
}

var _ feed.Source = (*FeedSource)(nil)

// NewGlobalFeedSource reads global:main and reposts:main.
func NewGlobalFeedSource(reader ActivityReader) *FeedSource {
	return &FeedSource{
		reader:    reader,
		originals: feedRef{FeedGroupGlobal, globalFeedID},
		reposts:   feedRef{FeedGroupReposts, globalFeedID},
	}
}

// NewHomeFeedSource reads the viewer's timeline feeds, which publishing
// fills by fanning out to followers.
func NewHomeFeedSource(reader ActivityReader, viewerID string) *FeedSource {
	return &FeedSource{
		reader:    reader,
		originals: feedRef{FeedGroupTimeline, viewerID},
		reposts:   feedRef{FeedGroupTimelineReposts, viewerID},
	}
}

func (s *FeedSource) OriginalItems(ctx context.Context, q feed.Query) ([]feed.Row, error) {
	return s.read(ctx, s.originals, q, false)
}

func (s *FeedSource) RepostEvents(ctx context.Context, q feed.Query) ([]feed.Row, error) {
	return s.read(ctx, s.reposts, q, true)
}

// position is a keyset point in feed order. Resume is the id of the
// activity just ahead of the tie group at At, empty when the group starts
// the feed.
type position struct {
	At     time.Time `json:"t"`
	ID     string    `json:"i"`
	Actor  string    `json:"a,omitempty"`
	Resume string    `json:"r,omitempty"`
}

func (p position) String() string {
	b, _ := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(p)
	return base64.RawURLEncoding.EncodeToString(b)
}

func parsePosition(token string, repost bool) (position, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return position{}, fmt.Errorf("%w: %v", feed.ErrInvalidCursor, err)
	}
	var p position
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &p); err != nil {
		return position{}, fmt.Errorf("%w: %v", feed.ErrInvalidCursor, err)
	}
	if p.ID == "" || p.At.IsZero() || repost != (p.Actor != "") {
		return position{}, fmt.Errorf("%w: incomplete stream position", feed.ErrInvalidCursor)
	}
	return p, nil
}

// item rebuilds just enough of a feed item to compare p with rows.
func (p position) item() feed.FeedItem {
	it := feed.FeedItem{ID: p.ID, PrimaryTimestamp: p.At}
	if p.Actor != "" {
		at := p.At
		it.RepostActor = &feed.Actor{ID: p.Actor}
		it.RepostTimestamp = &at
	}
	return it
}

func (s *FeedSource) read(ctx context.Context, ref feedRef, q feed.Query, repost bool) ([]feed.Row, error) {
	var after *feed.FeedItem
	resume := ""
	if q.After != "" {
		p, err := parsePosition(q.After, repost)
		if err != nil {
			return nil, err
		}
		it := p.item()
		after = &it
		resume = p.Resume
	}

	if q.Limit <= 0 {
		return nil, nil
	}
	batch := q.Limit + 1
	if batch > maxReadBatch {
		batch = maxReadBatch
	}

	var (
		rows       []feed.Row
		started    bool
		groupAt    time.Time
		groupStart = resume
		prevID     = resume
		idLT       = resume
	)
scan:
	for {
		acts, err := s.reader.Activities(ctx, ref.group, ref.id, batch, idLT)
		if err != nil {
			return nil, err
		}
		for _, act := range acts {
			row, err := toRow(act, repost)
			if err != nil {
				return nil, fmt.Errorf("malformed activity in %s: %w", FeedRef(ref.group, ref.id), err)
			}
			ts := row.Item.EffectiveTimestamp()
			if q.Since != nil && !ts.After(*q.Since) {
				break scan
			}
			if !started || !ts.Equal(groupAt) {
				// Once the limit is held, a new tie group cannot change
				// the first Limit rows in feed order.
				if len(rows) >= q.Limit {
					break scan
				}
				started = true
				groupAt = ts
				groupStart = prevID
			}
			prevID = act.ID

			if after != nil && !feed.Before(*after, row.Item) {
				continue
			}
			row.Cursor = position{
				At:     ts,
				ID:     row.Item.ID,
				Actor:  actorOf(row.Item),
				Resume: groupStart,
			}.String()
			rows = append(rows, row)
		}
		if len(acts) < batch || acts[len(acts)-1].ID == idLT {
			break
		}
		idLT = acts[len(acts)-1].ID
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return feed.Before(rows[i].Item, rows[j].Item)
	})
	if len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func actorOf(item feed.FeedItem) string {
	if item.RepostActor != nil {
		return item.RepostActor.ID
	}
	return ""
}
