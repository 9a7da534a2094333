package repository

import (
	"time"

	"github.com/zfogg/sidechain/feedengine/internal/reputation"
)

func (s *RepositoryTestSuite) seedCounters() *CounterRepository {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -90)
	recent := now.AddDate(0, 0, -3)

	s.fx.user("alice", "alice", now.AddDate(0, 0, -100))
	s.fx.user("bob", "bob", now.AddDate(0, 0, -10))
	s.fx.user("carol", "carol", now)

	s.fx.post("a1", "alice", old)
	s.fx.post("a2", "alice", old)
	s.fx.post("a3", "alice", recent)
	s.fx.post("a4", "alice", recent)
	s.fx.deletePost("a4")
	s.fx.post("b1", "bob", recent)

	s.fx.repost("bob", "a1", old)
	s.fx.repost("bob", "a3", recent)
	s.fx.repost("alice", "b1", recent)

	s.fx.favorite("bob", "a1", old)
	s.fx.favorite("carol", "a1", recent)
	s.fx.favorite("carol", "a3", recent)
	s.fx.favorite("alice", "b1", recent)

	s.fx.follow("bob", "alice")
	s.fx.follow("carol", "alice")
	s.fx.follow("alice", "bob")

	repo := NewCounterRepository(s.db)
	repo.now = func() time.Time { return now }
	return repo
}

func (s *RepositoryTestSuite) TestCounterBatch() {
	repo := s.seedCounters()

	inputs, err := repo.Batch(s.ctx, []string{"alice", "bob", "ghost"})
	s.Require().NoError(err)
	s.Len(inputs, 2)
	s.NotContains(inputs, "ghost")

	s.Equal(reputation.Input{
		RecentPosts:             1,
		TotalPosts:              3,
		RecentRepostsGiven:      1,
		TotalRepostsGiven:       1,
		RecentRepostsReceived:   1,
		TotalRepostsReceived:    2,
		RecentFavoritesGiven:    1,
		TotalFavoritesGiven:     1,
		RecentFavoritesReceived: 2,
		FavoritesReceived:       3,
		Followers:               2,
		AccountAgeDays:          100,
	}, inputs["alice"])

	s.Equal(reputation.Input{
		RecentPosts:             1,
		TotalPosts:              1,
		RecentRepostsGiven:      1,
		TotalRepostsGiven:       2,
		RecentRepostsReceived:   1,
		TotalRepostsReceived:    1,
		RecentFavoritesGiven:    0,
		TotalFavoritesGiven:     1,
		RecentFavoritesReceived: 1,
		FavoritesReceived:       1,
		Followers:               1,
		AccountAgeDays:          10,
	}, inputs["bob"])
}

func (s *RepositoryTestSuite) TestCounterSingle() {
	repo := s.seedCounters()

	in, err := repo.Single(s.ctx, "carol")
	s.Require().NoError(err)
	s.Equal(reputation.Input{RecentFavoritesGiven: 2, TotalFavoritesGiven: 2}, in)

	_, err = repo.Single(s.ctx, "ghost")
	s.ErrorIs(err, ErrUserNotFound)
	s.ErrorIs(err, reputation.ErrUnknownUser)
}

func (s *RepositoryTestSuite) TestCounterBatchEmpty() {
	repo := NewCounterRepository(s.db)
	inputs, err := repo.Batch(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(inputs)
}

func (s *RepositoryTestSuite) TestCoalescerOverDatabase() {
	repo := s.seedCounters()
	c := reputation.NewCoalescer(repo, reputation.WithDebounce(5*time.Millisecond))
	defer c.Close()

	inputs, err := repo.Batch(s.ctx, []string{"alice"})
	s.Require().NoError(err)

	got, err := c.GetScore(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(reputation.Compute(inputs["alice"]), got)

	_, err = c.GetScore(s.ctx, "ghost")
	s.ErrorIs(err, reputation.ErrScoreUnavailable)
}
