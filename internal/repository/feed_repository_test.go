package repository

import (
	"context"

	"github.com/zfogg/sidechain/feedengine/internal/feed"
)

func ids(rows []feed.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Item.DedupeKey()
	}
	return out
}

func (s *RepositoryTestSuite) seedFeed() {
	s.fx.user("alice", "alice", ts(0))
	s.fx.user("bob", "bob", ts(0))
	s.fx.user("carol", "carol", ts(0))

	s.fx.post("p1", "alice", ts(100))
	s.fx.post("p2", "bob", ts(90))
	s.fx.post("p3a", "carol", ts(80))
	s.fx.post("p3b", "alice", ts(80))
	s.fx.post("p4", "bob", ts(70))
	s.fx.post("gone", "carol", ts(60))

	s.fx.repost("bob", "p1", ts(95))
	s.fx.repost("carol", "p1", ts(95))
	s.fx.repost("alice", "gone", ts(85))
	s.fx.repost("alice", "p4", ts(75))

	s.fx.deletePost("gone")
}

func (s *RepositoryTestSuite) TestOriginalItemsKeysetPagination() {
	s.seedFeed()
	repo := NewGlobalFeedRepository(s.db)

	var got []string
	after := ""
	for i := 0; i < 10; i++ {
		rows, err := repo.OriginalItems(s.ctx, feed.Query{After: after, Limit: 2})
		s.Require().NoError(err)
		got = append(got, ids(rows)...)
		if len(rows) < 2 {
			break
		}
		after = rows[len(rows)-1].Cursor
	}

	s.Equal([]string{"p1", "p2", "p3a", "p3b", "p4"}, got)
}

func (s *RepositoryTestSuite) TestOriginalItemsMapsPostFields() {
	s.seedFeed()
	repo := NewGlobalFeedRepository(s.db)

	rows, err := repo.OriginalItems(s.ctx, feed.Query{Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(rows, 1)

	item := rows[0].Item
	s.Equal("p1", item.ID)
	s.Equal(feed.Actor{ID: "alice", Display: "Display alice"}, item.Owner)
	s.Equal("content p1", item.Content)
	s.Equal(feed.Counters{Favorites: 2, Reposts: 1}, item.Counters)
	s.True(item.PrimaryTimestamp.Equal(ts(100)))
	s.False(item.IsRepost())
}

func (s *RepositoryTestSuite) TestRepostEventsOrderAndDeletedParents() {
	s.seedFeed()
	repo := NewGlobalFeedRepository(s.db)

	rows, err := repo.RepostEvents(s.ctx, feed.Query{Limit: 10})
	s.Require().NoError(err)
	s.Equal([]string{"p1:bob", "p1:carol", "gone:alice", "p4:alice"}, ids(rows))

	s.False(rows[0].ParentMissing)
	s.Equal("alice", rows[0].Item.Owner.ID)
	s.Equal("Display bob", rows[0].Item.RepostActor.Display)
	s.True(rows[0].Item.RepostTimestamp.Equal(ts(95)))
	s.True(rows[0].Item.PrimaryTimestamp.Equal(ts(100)))
	s.True(rows[2].ParentMissing)

	next, err := repo.RepostEvents(s.ctx, feed.Query{After: rows[0].Cursor, Limit: 10})
	s.Require().NoError(err)
	s.Equal([]string{"p1:carol", "gone:alice", "p4:alice"}, ids(next))
}

func (s *RepositoryTestSuite) TestSinceFilter() {
	s.seedFeed()
	repo := NewGlobalFeedRepository(s.db)
	since := ts(85)

	originals, err := repo.OriginalItems(s.ctx, feed.Query{Limit: 10, Since: &since})
	s.Require().NoError(err)
	s.Equal([]string{"p1", "p2"}, ids(originals))

	reposts, err := repo.RepostEvents(s.ctx, feed.Query{Limit: 10, Since: &since})
	s.Require().NoError(err)
	s.Equal([]string{"p1:bob", "p1:carol"}, ids(reposts))
}

func (s *RepositoryTestSuite) TestHomeFeedLimitsAudience() {
	s.seedFeed()
	s.fx.follow("alice", "bob")
	repo := NewHomeFeedRepository(s.db, "alice")

	originals, err := repo.OriginalItems(s.ctx, feed.Query{Limit: 10})
	s.Require().NoError(err)
	s.Equal([]string{"p1", "p2", "p3b", "p4"}, ids(originals))

	reposts, err := repo.RepostEvents(s.ctx, feed.Query{Limit: 10})
	s.Require().NoError(err)
	s.Equal([]string{"p1:bob", "gone:alice", "p4:alice"}, ids(reposts))
}

func (s *RepositoryTestSuite) TestInvalidPositions() {
	repo := NewGlobalFeedRepository(s.db)

	for _, token := range []string{"garbage", "not-a-time|p1", "2024-06-01T00:00:00Z|"} {
		_, err := repo.OriginalItems(s.ctx, feed.Query{After: token, Limit: 5})
		s.ErrorIs(err, feed.ErrInvalidCursor, token)
	}
	_, err := repo.RepostEvents(s.ctx, feed.Query{After: "2024-06-01T00:00:00Z|p1", Limit: 5})
	s.ErrorIs(err, feed.ErrInvalidCursor)
}

func (s *RepositoryTestSuite) TestMergerOverDatabase() {
	s.seedFeed()
	m := feed.NewMerger(NewGlobalFeedRepository(s.db))

	var got []string
	cursor := ""
	for i := 0; i < 20; i++ {
		page, err := m.GetPage(context.Background(), feed.PageRequest{Cursor: cursor, PageSize: 3, IncludeReposts: true})
		s.Require().NoError(err)
		for _, item := range page.Items {
			got = append(got, item.DedupeKey())
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	// p4 was reposted on an earlier page than its own authoring row, so
	// both occurrences surface; suppression is per page.
	s.Equal([]string{"p1:bob", "p1:carol", "p2", "p3a", "p3b", "p4:alice", "p4"}, got)
}

func (s *RepositoryTestSuite) TestMergerWalksTiedRowsOnce() {
	s.seedFeed()
	s.fx.post("p3c", "bob", ts(80))
	s.fx.repost("bob", "p3a", ts(95))
	m := feed.NewMerger(NewGlobalFeedRepository(s.db))

	for _, size := range []int{1, 2} {
		emitted := make(map[string]int)
		cursor := ""
		done := false
		for i := 0; i < 40 && !done; i++ {
			page, err := m.GetPage(context.Background(), feed.PageRequest{Cursor: cursor, PageSize: size, IncludeReposts: true})
			s.Require().NoError(err)
			for _, item := range page.Items {
				emitted[item.DedupeKey()]++
			}
			if page.HasMore {
				s.Require().NotEqual(cursor, page.NextCursor)
				cursor = page.NextCursor
			}
			done = !page.HasMore
		}
		s.Require().True(done, "page size %d never ended", size)

		for _, key := range []string{"p1:bob", "p1:carol", "p3a:bob", "p4:alice", "p2", "p3b", "p3c"} {
			s.Equal(1, emitted[key], "page size %d key %s", size, key)
		}
		for _, key := range []string{"p1", "p3a", "p4"} {
			s.LessOrEqual(emitted[key], 1, "page size %d key %s", size, key)
		}
		s.Zero(emitted["gone:alice"])
	}
}
