package feed

import (
	"encoding/json"
	"strings"
	"time"
)

// Actor identifies a user shown on a feed row.
type Actor struct {
	ID      string `json:"id"`
	Display string `json:"display"`
}

// Counters are the pre-aggregated engagement counts of an original post.
type Counters struct {
	Favorites int `json:"favorites"`
	Reposts   int `json:"reposts"`
	Replies   int `json:"replies"`
}

// Reputation is the inline author score attached when a caller asks for it.
type Reputation struct {
	Score  int    `json:"score"`
	Bucket string `json:"bucket"`
}

// FeedItem is one renderable row: either the authoring occurrence of a post
// or a repost event carrying the original post's content.
type FeedItem struct {
	ID               string     `json:"id"`
	Owner            Actor      `json:"owner"`
	Content          string     `json:"content"`
	Counters         Counters   `json:"counters"`
	PrimaryTimestamp time.Time  `json:"created_at"`
	RepostActor      *Actor     `json:"repost_actor,omitempty"`
	RepostTimestamp  *time.Time `json:"reposted_at,omitempty"`

	OwnerReputation *Reputation `json:"owner_reputation,omitempty"`
	ActorReputation *Reputation `json:"repost_actor_reputation,omitempty"`
}

// IsRepost reports whether the item represents a repost event.
func (i FeedItem) IsRepost() bool {
	return i.RepostActor != nil && i.RepostTimestamp != nil
}

// EffectiveTimestamp is the repost time for repost occurrences and the
// creation time otherwise.
func (i FeedItem) EffectiveTimestamp() time.Time {
	if i.IsRepost() {
		return *i.RepostTimestamp
	}
	return i.PrimaryTimestamp
}

// DedupeKey is the post id for authoring occurrences and "id:actor" for
// repost occurrences, so every distinct resharer gets its own row. The
// string is only unambiguous among occurrences of one post id; the merger
// itself compares occurrence keys.
func (i FeedItem) DedupeKey() string {
	if i.IsRepost() {
		return i.ID + ":" + i.RepostActor.ID
	}
	return i.ID
}

// occurrence identifies one row of a post without joining strings, so ids
// containing ':' cannot collide with repost keys.
type occurrence struct {
	id    string
	actor string
}

func (i FeedItem) occurrence() occurrence {
	return occurrence{id: i.ID, actor: i.actorID()}
}

func (i FeedItem) actorID() string {
	if i.IsRepost() {
		return i.RepostActor.ID
	}
	return ""
}

// MarshalJSON adds the derived effective_at and dedupe_key fields.
func (i FeedItem) MarshalJSON() ([]byte, error) {
	type plain FeedItem
	return json.Marshal(struct {
		plain
		EffectiveAt time.Time `json:"effective_at"`
		DedupeKey   string    `json:"dedupe_key"`
	}{
		plain:       plain(i),
		EffectiveAt: i.EffectiveTimestamp(),
		DedupeKey:   i.DedupeKey(),
	})
}

// Before reports whether a sorts ahead of b in feed order: newest effective
// timestamp first, then id ascending, then repost actor ascending with the
// authoring occurrence first.
func Before(a, b FeedItem) bool {
	ta, tb := a.EffectiveTimestamp(), b.EffectiveTimestamp()
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	if c := strings.Compare(a.ID, b.ID); c != 0 {
		return c < 0
	}
	return a.actorID() < b.actorID()
}
