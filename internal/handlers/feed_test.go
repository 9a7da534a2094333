package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/zfogg/sidechain/feedengine/internal/feed"
)

func (s *HandlersTestSuite) TestGlobalFeed() {
	w := s.do(http.MethodGet, "/api/v1/feed/global", "", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	page := decode[pageBody](s, w)
	s.Equal([]string{"p1:bob", "p3", "p2"}, keys(page))
	s.False(page.HasMore)
	s.Empty(page.Degraded)
	s.Nil(page.Items[0].OwnerReputation)
}

func (s *HandlersTestSuite) TestGlobalFeedPagination() {
	var (
		collected []string
		cursor    string
	)
	for i := 0; i < 10; i++ {
		path := "/api/v1/feed/global?limit=1"
		if cursor != "" {
			path += "&cursor=" + url.QueryEscape(cursor)
		}
		w := s.do(http.MethodGet, path, "", nil)
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

		page := decode[pageBody](s, w)
		collected = append(collected, keys(page)...)
		if !page.HasMore {
			break
		}
		s.Require().NotEmpty(page.NextCursor)
		cursor = page.NextCursor
	}

	// The plain p1 row reappears once its repost has scrolled off.
	s.Equal([]string{"p1:bob", "p3", "p2", "p1"}, collected)
}

func (s *HandlersTestSuite) TestGlobalFeedWithoutReposts() {
	w := s.do(http.MethodGet, "/api/v1/feed/global?include_reposts=false", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal([]string{"p3", "p2", "p1"}, keys(decode[pageBody](s, w)))
}

func (s *HandlersTestSuite) TestGlobalFeedWithReputation() {
	w := s.do(http.MethodGet, "/api/v1/feed/global?with_reputation=true", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	page := decode[pageBody](s, w)
	s.Require().NotEmpty(page.Items)

	alice, err := s.counters.Single(s.T().Context(), "alice")
	s.Require().NoError(err)
	bob, err := s.counters.Single(s.T().Context(), "bob")
	s.Require().NoError(err)

	repost := page.Items[0]
	s.Equal("p1:bob", repost.DedupeKey)
	s.Require().NotNil(repost.OwnerReputation)
	s.Require().NotNil(repost.ActorReputation)
	s.Equal(reputationOf(alice), *repost.OwnerReputation)
	s.Equal(reputationOf(bob), *repost.ActorReputation)

	for _, item := range page.Items[1:] {
		s.NotNil(item.OwnerReputation, item.ID)
		s.Nil(item.ActorReputation, item.ID)
	}
}

func (s *HandlersTestSuite) TestFeedValidation() {
	tests := []struct {
		name  string
		query string
		code  string
		field string
	}{
		{"garbage cursor", "cursor=not-a-cursor", "INVALID_CURSOR", "cursor"},
		{"non-numeric limit", "limit=ten", "VALIDATION_ERROR", "limit"},
		{"bad include_reposts", "include_reposts=maybe", "VALIDATION_ERROR", "include_reposts"},
		{"bad with_reputation", "with_reputation=2", "VALIDATION_ERROR", "with_reputation"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := s.do(http.MethodGet, "/api/v1/feed/global?"+tt.query, "", nil)
			s.Equal(http.StatusBadRequest, w.Code)
			body := decode[errorBody](s, w)
			s.Equal(tt.code, body.Error)
			s.Equal(tt.field, body.Field)
			s.False(body.Retryable)
		})
	}
}

func (s *HandlersTestSuite) TestHomeFeed() {
	w := s.do(http.MethodGet, "/api/v1/feed/home", "alice", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal([]string{"p1:bob", "p2"}, keys(decode[pageBody](s, w)))
}

func (s *HandlersTestSuite) TestHomeFeedRequiresViewer() {
	w := s.do(http.MethodGet, "/api/v1/feed/home", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("UNAUTHORIZED", decode[errorBody](s, w).Error)
}

func (s *HandlersTestSuite) TestFeedUnavailable() {
	broken := FeedSources{
		Global: func() feed.Source { return failingSource{err: errors.New("connection refused")} },
		Home:   s.handlers.sources.Home,
	}
	s.router = s.newRouter(NewHandlers(broken, s.handlers.users, s.scores, Options{}))

	w := s.do(http.MethodGet, "/api/v1/feed/global", "", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)
	body := decode[errorBody](s, w)
	s.Equal("FEED_UNAVAILABLE", body.Error)
	s.True(body.Retryable)
}

func (s *HandlersTestSuite) TestFeedSince() {
	w := s.do(http.MethodPost, "/api/v1/feed/since", "", map[string]interface{}{
		"since": at(150),
		"rendered": []feed.RenderedItem{
			{ID: "p1", DedupeKey: "p1"},
			{ID: "p3", DedupeKey: "p3"},
		},
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	// p1 was rendered as an original, so its repost is not shown again.
	// p3 was rendered under the same key and is returned refreshed.
	page := decode[pageBody](s, w)
	s.Equal([]string{"p3", "p2"}, keys(page))
	s.False(page.HasMore)
}

func (s *HandlersTestSuite) TestFeedSinceHomeScope() {
	body := map[string]interface{}{"since": at(0), "scope": "home"}

	w := s.do(http.MethodPost, "/api/v1/feed/since", "", body)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/v1/feed/since", "alice", body)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal([]string{"p1:bob", "p2"}, keys(decode[pageBody](s, w)))
}

func (s *HandlersTestSuite) TestFeedSinceValidation() {
	w := s.do(http.MethodPost, "/api/v1/feed/since", "", map[string]interface{}{
		"since": at(0),
		"scope": "everyone",
	})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("scope", decode[errorBody](s, w).Field)

	w = s.do(http.MethodPost, "/api/v1/feed/since", "", map[string]interface{}{"limit": 5})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("VALIDATION_ERROR", decode[errorBody](s, w).Error)
}
