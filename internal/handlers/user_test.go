package handlers

import (
	"net/http"

	"github.com/zfogg/sidechain/feedengine/internal/feed"
	"github.com/zfogg/sidechain/feedengine/internal/reputation"
)

func reputationOf(in reputation.Input) feed.Reputation {
	res := reputation.Compute(in)
	return feed.Reputation{Score: res.Score, Bucket: res.Bucket.String()}
}

type reputationBody struct {
	UserID string `json:"user_id"`
	Score  int    `json:"score"`
	Bucket string `json:"bucket"`
}

func (s *HandlersTestSuite) TestGetUserReputation() {
	in, err := s.counters.Single(s.T().Context(), "alice")
	s.Require().NoError(err)
	want := reputationOf(in)

	w := s.do(http.MethodGet, "/api/v1/users/alice/reputation", "", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	body := decode[reputationBody](s, w)
	s.Equal("alice", body.UserID)
	s.Equal(want.Score, body.Score)
	s.Equal(want.Bucket, body.Bucket)
}

func (s *HandlersTestSuite) TestGetUserReputationUnknownUser() {
	w := s.do(http.MethodGet, "/api/v1/users/ghost/reputation", "", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("NOT_FOUND", decode[errorBody](s, w).Error)
}

func (s *HandlersTestSuite) TestGetUserReputationUnavailable() {
	scores := &stubScores{err: reputation.ErrScoreUnavailable}
	s.router = s.newRouter(NewHandlers(s.handlers.sources, s.handlers.users, scores, Options{}))

	w := s.do(http.MethodGet, "/api/v1/users/alice/reputation", "", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)
	body := decode[errorBody](s, w)
	s.Equal("SCORE_UNAVAILABLE", body.Error)
	s.Contains(body.Message, "alice")
	s.True(body.Retryable)
}

func (s *HandlersTestSuite) TestRefreshUserReputation() {
	scores := &stubScores{}
	s.router = s.newRouter(NewHandlers(s.handlers.sources, s.handlers.users, scores, Options{}))

	w := s.do(http.MethodPost, "/api/v1/users/bob/reputation/refresh", "", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal([]string{"bob"}, scores.invalidated)

	body := decode[reputationBody](s, w)
	want := reputation.Compute(reputation.Input{Followers: 4, AccountAgeDays: 10})
	s.Equal(want.Score, body.Score)
	s.Equal(want.Bucket.String(), body.Bucket)

	w = s.do(http.MethodPost, "/api/v1/users/ghost/reputation/refresh", "", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal([]string{"bob"}, scores.invalidated)
}
