package repository

import (
	"github.com/zfogg/sidechain/feedengine/internal/models"
)

func (s *RepositoryTestSuite) TestUserRepositoryLookups() {
	repo := NewUserRepository(s.db)
	alice := s.fx.user("11111111-1111-1111-1111-111111111111", "alice", ts(0))
	s.fx.user("22222222-2222-2222-2222-222222222222", "bob", ts(1))

	got, err := repo.GetUser(s.ctx, alice.ID)
	s.Require().NoError(err)
	s.Equal("alice", got.Username)

	_, err = repo.GetUser(s.ctx, "33333333-3333-3333-3333-333333333333")
	s.ErrorIs(err, ErrUserNotFound)
	_, err = repo.GetUser(s.ctx, "")
	s.ErrorIs(err, ErrInvalidInput)

	users, err := repo.GetUsers(s.ctx, []string{alice.ID, "22222222-2222-2222-2222-222222222222", "missing"})
	s.Require().NoError(err)
	s.Len(users, 2)

	users, err = repo.GetUsers(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(users)

	exists, err := repo.Exists(s.ctx, alice.ID)
	s.Require().NoError(err)
	s.True(exists)
	exists, err = repo.Exists(s.ctx, "missing")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *RepositoryTestSuite) TestUserRepositoryCreate() {
	repo := NewUserRepository(s.db)

	carol := &models.User{Username: "carol", DisplayName: "Carol"}
	s.Require().NoError(repo.CreateUser(s.ctx, carol))
	s.NotEmpty(carol.ID)
	s.ErrorIs(repo.CreateUser(s.ctx, &models.User{}), ErrInvalidInput)
	s.Error(repo.CreateUser(s.ctx, &models.User{Username: "carol", DisplayName: "Again"}), "usernames are unique")

	dave := &models.User{Username: "dave"}
	s.Require().NoError(repo.CreateUser(s.ctx, dave))

	s.Require().NoError(repo.CreateFollow(s.ctx, carol.ID, dave.ID))
	s.Error(repo.CreateFollow(s.ctx, carol.ID, dave.ID), "follow pairs are unique")
	s.ErrorIs(repo.CreateFollow(s.ctx, carol.ID, carol.ID), ErrInvalidInput)

	var count int64
	s.Require().NoError(s.db.Model(&models.Follow{}).Where("follower_id = ?", carol.ID).Count(&count).Error)
	s.Equal(int64(1), count)
}
