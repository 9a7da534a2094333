package repository

import (
	"time"

	"github.com/zfogg/sidechain/feedengine/internal/reputation"
)

func (s *RepositoryTestSuite) TestReputationStoreUpsert() {
	repo := NewReputationRepository(s.db)

	_, found, err := repo.LastScore(s.ctx, "alice")
	s.Require().NoError(err)
	s.False(found)

	s.Require().NoError(repo.SaveScore(s.ctx, "alice", reputation.Result{Score: 217, Bucket: reputation.BucketGreen}))
	score, found, err := repo.LastScore(s.ctx, "alice")
	s.Require().NoError(err)
	s.True(found)
	s.Equal(217, score)

	s.Require().NoError(repo.SaveScore(s.ctx, "alice", reputation.Result{Score: 612, Bucket: reputation.BucketPurple}))
	score, _, err = repo.LastScore(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(612, score)
}

func (s *RepositoryTestSuite) TestAdvisorOverDatabase() {
	repo := NewReputationRepository(s.db)
	s.Require().NoError(repo.SaveScore(s.ctx, "alice", reputation.Result{Score: 200}))

	a := reputation.NewAdvisor(repo, reputation.AdvisorOptions{Workers: 1})
	a.Start()
	s.True(a.Advise("alice", reputation.Result{Score: 300, Bucket: reputation.BucketBlue}))
	s.Eventually(func() bool {
		score, _, err := repo.LastScore(s.ctx, "alice")
		return err == nil && score == 300
	}, 2*time.Second, 10*time.Millisecond)
	a.Stop()
}
