package stream

import (
	"fmt"
	"strings"
	"time"

	stream "github.com/GetStream/stream-go2/v8"
	"github.com/zfogg/sidechain/feedengine/internal/feed"
	"github.com/zfogg/sidechain/feedengine/internal/models"
)

// Keys stored in an activity's extra map
const (
	extraPostID        = "post_id"
	extraOwnerID       = "owner_id"
	extraOwnerDisplay  = "owner_display"
	extraActorDisplay  = "actor_display"
	extraContent       = "content"
	extraCounters      = "counters"
	extraPostCreatedAt = "post_created_at"
	extraParentDeleted = "parent_deleted"
)

// PostActivity builds the activity published for an original post. The
// post's User must be loaded.
func PostActivity(post models.Post) stream.Activity {
	return stream.Activity{
		Actor:     "user:" + post.UserID,
		Verb:      VerbPost,
		Object:    "post:" + post.ID,
		ForeignID: "post:" + post.ID,
		Time:      stream.Time{Time: post.CreatedAt.UTC()},
		Extra:     postExtra(post),
	}
}

// RepostActivity builds the activity published for a repost event. The
// repost's User, Post and Post.User must be loaded.
func RepostActivity(repost models.Repost) stream.Activity {
	extra := postExtra(repost.Post)
	extra[extraPostID] = repost.PostID
	extra[extraActorDisplay] = repost.User.Display()
	extra[extraParentDeleted] = repost.Post.ID == "" || repost.Post.DeletedAt.Valid

	return stream.Activity{
		Actor:     "user:" + repost.UserID,
		Verb:      VerbRepost,
		Object:    "post:" + repost.PostID,
		ForeignID: "repost:" + repost.ID,
		Time:      stream.Time{Time: repost.CreatedAt.UTC()},
		Extra:     extra,
	}
}

func postExtra(post models.Post) map[string]any {
	return map[string]any{
		extraPostID:        post.ID,
		extraOwnerID:       post.UserID,
		extraOwnerDisplay:  post.User.Display(),
		extraContent:       post.Content,
		extraPostCreatedAt: post.CreatedAt.UTC().Format(time.RFC3339Nano),
		extraCounters: map[string]any{
			"favorites": post.FavoriteCount,
			"reposts":   post.RepostCount,
			"replies":   post.ReplyCount,
		},
	}
}

// toRow converts a Stream activity into a feed row. Activities read back
// from Stream carry JSON-decoded extras, so numbers arrive as float64.
func toRow(act stream.Activity, repost bool) (feed.Row, error) {
	postID := stringExtra(act.Extra, extraPostID)
	if postID == "" {
		postID = strings.TrimPrefix(act.Object, "post:")
	}
	if postID == "" {
		return feed.Row{}, fmt.Errorf("activity %s has no post id", act.ID)
	}

	item := feed.FeedItem{
		ID: postID,
		Owner: feed.Actor{
			ID:      stringExtra(act.Extra, extraOwnerID),
			Display: stringExtra(act.Extra, extraOwnerDisplay),
		},
		Content:  stringExtra(act.Extra, extraContent),
		Counters: countersExtra(act.Extra),
	}

	row := feed.Row{Cursor: act.ID}
	if !repost {
		item.PrimaryTimestamp = act.Time.UTC()
		row.Item = item
		return row, nil
	}

	created, err := time.Parse(time.RFC3339Nano, stringExtra(act.Extra, extraPostCreatedAt))
	if err != nil && !boolExtra(act.Extra, extraParentDeleted) {
		return feed.Row{}, fmt.Errorf("activity %s has bad %s: %w", act.ID, extraPostCreatedAt, err)
	}
	item.PrimaryTimestamp = created.UTC()

	at := act.Time.UTC()
	item.RepostTimestamp = &at
	item.RepostActor = &feed.Actor{
		ID:      strings.TrimPrefix(act.Actor, "user:"),
		Display: stringExtra(act.Extra, extraActorDisplay),
	}
	row.Item = item
	row.ParentMissing = boolExtra(act.Extra, extraParentDeleted)
	return row, nil
}

func stringExtra(extra map[string]any, key string) string {
	s, _ := extra[key].(string)
	return s
}

func boolExtra(extra map[string]any, key string) bool {
	b, _ := extra[key].(bool)
	return b
}

func countersExtra(extra map[string]any) feed.Counters {
	m, ok := extra[extraCounters].(map[string]any)
	if !ok {
		return feed.Counters{}
	}
	return feed.Counters{
		Favorites: intValue(m["favorites"]),
		Reposts:   intValue(m["reposts"]),
		Replies:   intValue(m["replies"]),
	}
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}
