package stream

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	stream "github.com/GetStream/stream-go2/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/sidechain/feedengine/internal/feed"
	"github.com/zfogg/sidechain/feedengine/internal/models"
	"gorm.io/gorm"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return epoch.Add(time.Duration(sec) * time.Second)
}

func user(id string) models.User {
	return models.User{ID: id, Username: id, DisplayName: "Display " + id}
}

func post(id, owner string, sec int) models.Post {
	return models.Post{
		ID:            id,
		UserID:        owner,
		User:          user(owner),
		Content:       "content " + id,
		FavoriteCount: 4,
		RepostCount:   2,
		ReplyCount:    1,
		CreatedAt:     at(sec),
	}
}

func repost(actor string, p models.Post, sec int) models.Repost {
	return models.Repost{
		ID:        actor + "-" + p.ID,
		UserID:    actor,
		User:      user(actor),
		PostID:    p.ID,
		Post:      p,
		CreatedAt: at(sec),
	}
}

func publishPost(t *testing.T, m *MockClient, p models.Post) {
	t.Helper()
	_, err := m.Publish(context.Background(), "user", p.UserID, withTo(PostActivity(p), FeedGroupGlobal))
	require.NoError(t, err)
}

func publishRepost(t *testing.T, m *MockClient, r models.Repost) {
	t.Helper()
	_, err := m.Publish(context.Background(), "user", r.UserID, withTo(RepostActivity(r), FeedGroupReposts))
	require.NoError(t, err)
}

func withTo(act stream.Activity, group string) stream.Activity {
	act.To = []string{FeedRef(group, globalFeedID)}
	return act
}

func TestOriginalItemsMapsActivities(t *testing.T) {
	m := NewMockClient()
	publishPost(t, m, post("p1", "alice", 100))

	rows, err := NewGlobalFeedSource(m).OriginalItems(context.Background(), feed.Query{Limit: 5})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	item := rows[0].Item
	assert.Equal(t, "p1", item.ID)
	assert.Equal(t, feed.Actor{ID: "alice", Display: "Display alice"}, item.Owner)
	assert.Equal(t, "content p1", item.Content)
	assert.Equal(t, feed.Counters{Favorites: 4, Reposts: 2, Replies: 1}, item.Counters)
	assert.True(t, item.PrimaryTimestamp.Equal(at(100)))
	assert.False(t, item.IsRepost())
	assert.NotEmpty(t, rows[0].Cursor)
}

func TestOriginalItemsPaginatesByPosition(t *testing.T) {
	m := NewMockClient()
	publishPost(t, m, post("p1", "alice", 100))
	publishPost(t, m, post("p2", "bob", 90))
	publishPost(t, m, post("p3", "alice", 80))
	src := NewGlobalFeedSource(m)
	ctx := context.Background()

	first, err := src.OriginalItems(ctx, feed.Query{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "p1", first[0].Item.ID)
	assert.Equal(t, "p2", first[1].Item.ID)

	rest, err := src.OriginalItems(ctx, feed.Query{After: first[1].Cursor, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "p3", rest[0].Item.ID)
}

func TestRepostEventsMapsActorAndParent(t *testing.T) {
	m := NewMockClient()
	p1 := post("p1", "alice", 100)
	publishRepost(t, m, repost("bob", p1, 150))

	gone := post("gone", "carol", 50)
	gone.DeletedAt = gorm.DeletedAt{Time: at(60), Valid: true}
	publishRepost(t, m, repost("alice", gone, 120))

	rows, err := NewGlobalFeedSource(m).RepostEvents(context.Background(), feed.Query{Limit: 5})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	item := rows[0].Item
	assert.Equal(t, "p1:bob", item.DedupeKey())
	assert.Equal(t, &feed.Actor{ID: "bob", Display: "Display bob"}, item.RepostActor)
	assert.Equal(t, "alice", item.Owner.ID)
	assert.True(t, item.PrimaryTimestamp.Equal(at(100)))
	assert.True(t, item.EffectiveTimestamp().Equal(at(150)))
	assert.False(t, rows[0].ParentMissing)

	assert.Equal(t, "gone:alice", rows[1].Item.DedupeKey())
	assert.True(t, rows[1].ParentMissing)
}

func TestSinceStopsAtWatermark(t *testing.T) {
	m := NewMockClient()
	publishPost(t, m, post("p1", "alice", 100))
	publishPost(t, m, post("p2", "bob", 90))
	publishPost(t, m, post("p3", "alice", 80))

	since := at(90)
	rows, err := NewGlobalFeedSource(m).OriginalItems(context.Background(), feed.Query{Limit: 5, Since: &since})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p1", rows[0].Item.ID)
}

func TestInvalidCursorSkipsStream(t *testing.T) {
	m := NewMockClient()
	_, err := NewGlobalFeedSource(m).OriginalItems(context.Background(), feed.Query{After: "not-an-id", Limit: 5})
	assert.ErrorIs(t, err, feed.ErrInvalidCursor)
	assert.Zero(t, m.CallCount("Activities"))
}

func TestMalformedActivityFails(t *testing.T) {
	m := NewMockClient()
	m.ActivitiesFunc = func(group, feedID string, limit int, idLT string) ([]stream.Activity, error) {
		return []stream.Activity{{ID: "a1", Verb: VerbPost}}, nil
	}
	_, err := NewGlobalFeedSource(m).OriginalItems(context.Background(), feed.Query{Limit: 5})
	assert.ErrorContains(t, err, "no post id")
}

func TestHomeFeedReadsTimelines(t *testing.T) {
	m := NewMockClient()
	_, err := NewHomeFeedSource(m, "viewer").RepostEvents(context.Background(), feed.Query{Limit: 3})
	require.NoError(t, err)
	require.Len(t, m.Calls, 1)
	assert.Equal(t, []interface{}{FeedGroupTimelineReposts, "viewer", 4, ""}, m.Calls[0].Args)
}

func TestMergerOverStream(t *testing.T) {
	m := NewMockClient()
	p1 := post("p1", "alice", 100)
	p2 := post("p2", "bob", 90)
	publishPost(t, m, p1)
	publishPost(t, m, p2)
	publishRepost(t, m, repost("bob", p1, 150))
	publishRepost(t, m, repost("carol", p1, 150))

	merger := feed.NewMerger(NewGlobalFeedSource(m))
	page, err := merger.GetPage(context.Background(), feed.PageRequest{PageSize: 10, IncludeReposts: true})
	require.NoError(t, err)

	var keys []string
	for _, item := range page.Items {
		keys = append(keys, item.DedupeKey())
	}
	assert.Equal(t, []string{"p1:bob", "p1:carol", "p2"}, keys)
	assert.False(t, page.HasMore)
}

func TestMergerDegradesOnStreamFailure(t *testing.T) {
	m := NewMockClient()
	publishPost(t, m, post("p1", "alice", 100))
	originals := m.feeds[FeedRef(FeedGroupGlobal, globalFeedID)]
	m.ActivitiesFunc = func(group, feedID string, limit int, idLT string) ([]stream.Activity, error) {
		if group == FeedGroupReposts {
			return nil, errors.New("stream: 503")
		}
		return originals, nil
	}

	page, err := feed.NewMerger(NewGlobalFeedSource(m)).GetPage(context.Background(),
		feed.PageRequest{PageSize: 10, IncludeReposts: true})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, []string{feed.SourceReposts}, page.Degraded)
	assert.True(t, page.HasMore)
}

func TestOriginalItemsSortsTiesIntoFeedOrder(t *testing.T) {
	m := NewMockClient()
	publishPost(t, m, post("pz", "alice", 100))
	publishPost(t, m, post("pa", "bob", 100))
	publishPost(t, m, post("pm", "carol", 50))
	src := NewGlobalFeedSource(m)
	ctx := context.Background()

	rows, err := src.OriginalItems(ctx, feed.Query{Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "pa", rows[0].Item.ID)
	assert.Equal(t, "pz", rows[1].Item.ID)

	rest, err := src.OriginalItems(ctx, feed.Query{After: rows[0].Cursor, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "pz", rest[0].Item.ID)
	assert.Equal(t, "pm", rest[1].Item.ID)
}

func TestOriginalItemsBuffersTieGroupAcrossReads(t *testing.T) {
	m := NewMockClient()
	for _, id := range []string{"p5", "p3", "p1", "p4", "p2"} {
		publishPost(t, m, post(id, "alice", 100))
	}
	publishPost(t, m, post("p0", "bob", 10))
	src := NewGlobalFeedSource(m)

	rows, err := src.OriginalItems(context.Background(), feed.Query{Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "p1", rows[0].Item.ID)
	assert.Equal(t, "p2", rows[1].Item.ID)
	assert.Equal(t, 2, m.CallCount("Activities"), "a tie group larger than one read needs a second read")
}

func TestPositionKindMismatchIsInvalid(t *testing.T) {
	m := NewMockClient()
	publishPost(t, m, post("p1", "alice", 100))
	src := NewGlobalFeedSource(m)

	rows, err := src.OriginalItems(context.Background(), feed.Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = src.RepostEvents(context.Background(), feed.Query{After: rows[0].Cursor, Limit: 1})
	assert.ErrorIs(t, err, feed.ErrInvalidCursor)
}

func TestMergerPagesThroughTiedOriginals(t *testing.T) {
	m := NewMockClient()
	publishPost(t, m, post("pz", "alice", 100))
	publishPost(t, m, post("pa", "bob", 100))
	publishPost(t, m, post("pm", "carol", 50))
	merger := feed.NewMerger(NewGlobalFeedSource(m))

	var got []string
	cursor := ""
	for n := 0; n < 10; n++ {
		page, err := merger.GetPage(context.Background(), feed.PageRequest{Cursor: cursor, PageSize: 1})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		got = append(got, page.Items[0].ID)
		if !page.HasMore {
			break
		}
		require.NotEqual(t, cursor, page.NextCursor)
		cursor = page.NextCursor
	}
	assert.Equal(t, []string{"pa", "pz", "pm"}, got)
}

func TestMergerWalksTiedStreamFeeds(t *testing.T) {
	m := NewMockClient()
	posts := map[string]models.Post{}
	for _, p := range []models.Post{
		post("pz", "alice", 100), post("pa", "bob", 100), post("pm", "carol", 100),
		post("pc", "dave", 90), post("pb", "alice", 90),
		post("pd", "eve", 50),
	} {
		posts[p.ID] = p
		publishPost(t, m, p)
	}
	reposts := []models.Repost{
		repost("bob", posts["pz"], 120),
		repost("alice", posts["pm"], 120),
		repost("carol", posts["pz"], 120),
		repost("eve", posts["pa"], 95),
		repost("dave", posts["pd"], 95),
	}
	reposted := map[string]bool{}
	for _, r := range reposts {
		reposted[r.PostID] = true
		publishRepost(t, m, r)
	}
	merger := feed.NewMerger(NewGlobalFeedSource(m))

	for _, size := range []int{1, 2} {
		t.Run(fmt.Sprintf("page_size_%d", size), func(t *testing.T) {
			emitted := map[string]int{}
			var last *feed.FeedItem
			cursor := ""
			done := false
			for n := 0; n < 50 && !done; n++ {
				page, err := merger.GetPage(context.Background(),
					feed.PageRequest{Cursor: cursor, PageSize: size, IncludeReposts: true})
				require.NoError(t, err)
				for _, item := range page.Items {
					if last != nil {
						assert.True(t, feed.Before(*last, item), "order regressed at %s", item.DedupeKey())
					}
					it := item
					last = &it
					emitted[item.DedupeKey()]++
				}
				if page.HasMore {
					require.NotEqual(t, cursor, page.NextCursor, "cursor did not advance")
					cursor = page.NextCursor
				}
				done = !page.HasMore
			}
			require.True(t, done, "pagination never ended")

			for _, r := range reposts {
				key := r.PostID + ":" + r.UserID
				assert.Equal(t, 1, emitted[key], "repost %s", key)
			}
			for id := range posts {
				if reposted[id] {
					assert.LessOrEqual(t, emitted[id], 1, "post %s", id)
					continue
				}
				assert.Equal(t, 1, emitted[id], "post %s", id)
			}
		})
	}
}
