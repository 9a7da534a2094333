package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/zfogg/sidechain/feedengine/internal/models"
	"github.com/zfogg/sidechain/feedengine/internal/reputation"
	"gorm.io/gorm"
)

// CounterRepository aggregates reputation counters straight from the
// activity tables.
type CounterRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCounterRepository(db *gorm.DB) *CounterRepository {
	return &CounterRepository{db: db, now: time.Now}
}

type counterRow struct {
	UserID string
	Total  int
	Recent int
}

// Batch loads counters for every known id inside one read-only transaction
// so all users in the batch see the same snapshot. Unknown ids are absent
// from the result.
func (r *CounterRepository) Batch(ctx context.Context, userIDs []string) (map[string]reputation.Input, error) {
	out := make(map[string]reputation.Input, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	now := r.now().UTC()
	recentSince := now.AddDate(0, 0, -reputation.RecentWindowDays)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var users []models.User
		if err := r.whereIDs(tx, "id", userIDs).Find(&users).Error; err != nil {
			return fmt.Errorf("users: %w", err)
		}
		for _, u := range users {
			out[u.ID] = reputation.Input{
				AccountAgeDays: int(now.Sub(u.CreatedAt.UTC()).Hours() / 24),
			}
		}
		if len(out) == 0 {
			return nil
		}

		queries := []struct {
			name   string
			column string
			query  string
			apply  func(in *reputation.Input, row counterRow)
		}{
			{
				name:   "posts",
				column: "posts.user_id",
				query:  `SELECT posts.user_id AS user_id, COUNT(*) AS total,
					SUM(CASE WHEN posts.created_at >= ? THEN 1 ELSE 0 END) AS recent
					FROM posts WHERE posts.deleted_at IS NULL AND %s GROUP BY posts.user_id`,
				apply: func(in *reputation.Input, row counterRow) {
					in.TotalPosts, in.RecentPosts = row.Total, row.Recent
				},
			},
			{
				name:   "reposts_given",
				column: "reposts.user_id",
				query:  `SELECT reposts.user_id AS user_id, COUNT(*) AS total,
					SUM(CASE WHEN reposts.created_at >= ? THEN 1 ELSE 0 END) AS recent
					FROM reposts WHERE reposts.deleted_at IS NULL AND %s GROUP BY reposts.user_id`,
				apply: func(in *reputation.Input, row counterRow) {
					in.TotalRepostsGiven, in.RecentRepostsGiven = row.Total, row.Recent
				},
			},
			{
				name:   "reposts_received",
				column: "posts.user_id",
				query:  `SELECT posts.user_id AS user_id, COUNT(*) AS total,
					SUM(CASE WHEN reposts.created_at >= ? THEN 1 ELSE 0 END) AS recent
					FROM reposts JOIN posts ON posts.id = reposts.post_id
					WHERE reposts.deleted_at IS NULL AND posts.deleted_at IS NULL AND %s GROUP BY posts.user_id`,
				apply: func(in *reputation.Input, row counterRow) {
					in.TotalRepostsReceived, in.RecentRepostsReceived = row.Total, row.Recent
				},
			},
			{
				name:   "favorites_given",
				column: "favorites.user_id",
				query:  `SELECT favorites.user_id AS user_id, COUNT(*) AS total,
					SUM(CASE WHEN favorites.created_at >= ? THEN 1 ELSE 0 END) AS recent
					FROM favorites WHERE %s GROUP BY favorites.user_id`,
				apply: func(in *reputation.Input, row counterRow) {
					in.TotalFavoritesGiven, in.RecentFavoritesGiven = row.Total, row.Recent
				},
			},
			{
				name:   "favorites_received",
				column: "posts.user_id",
				query:  `SELECT posts.user_id AS user_id, COUNT(*) AS total,
					SUM(CASE WHEN favorites.created_at >= ? THEN 1 ELSE 0 END) AS recent
					FROM favorites JOIN posts ON posts.id = favorites.post_id
					WHERE posts.deleted_at IS NULL AND %s GROUP BY posts.user_id`,
				apply: func(in *reputation.Input, row counterRow) {
					in.FavoritesReceived, in.RecentFavoritesReceived = row.Total, row.Recent
				},
			},
			{
				name:   "followers",
				column: "follows.following_id",
				query:  `SELECT follows.following_id AS user_id, COUNT(*) AS total,
					SUM(CASE WHEN follows.created_at >= ? THEN 1 ELSE 0 END) AS recent
					FROM follows WHERE %s GROUP BY follows.following_id`,
				apply: func(in *reputation.Input, row counterRow) {
					in.Followers = row.Total
				},
			},
		}

		for _, q := range queries {
			cond, arg := r.idCondition(q.column)
			var rows []counterRow
			if err := tx.Raw(fmt.Sprintf(q.query, cond), recentSince, arg(userIDs)).Scan(&rows).Error; err != nil {
				return fmt.Errorf("%s: %w", q.name, err)
			}
			for _, row := range rows {
				in, ok := out[row.UserID]
				if !ok {
					continue
				}
				q.apply(&in, row)
				out[row.UserID] = in
			}
		}
		return nil
	}, r.txOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to load reputation counters: %w", err)
	}
	return out, nil
}

// Single loads counters for one user.
func (r *CounterRepository) Single(ctx context.Context, userID string) (reputation.Input, error) {
	inputs, err := r.Batch(ctx, []string{userID})
	if err != nil {
		return reputation.Input{}, err
	}
	in, ok := inputs[userID]
	if !ok {
		return reputation.Input{}, fmt.Errorf("%w: %w", ErrUserNotFound, reputation.ErrUnknownUser)
	}
	return in, nil
}

func (r *CounterRepository) postgres() bool {
	return r.db.Dialector.Name() == "postgres"
}

// idCondition binds the id list as one array parameter on postgres and as
// an expanded IN list elsewhere.
func (r *CounterRepository) idCondition(column string) (string, func([]string) interface{}) {
	if r.postgres() {
		return column + " = ANY(?)", func(ids []string) interface{} { return pq.Array(ids) }
	}
	return column + " IN ?", func(ids []string) interface{} { return ids }
}

func (r *CounterRepository) whereIDs(tx *gorm.DB, column string, ids []string) *gorm.DB {
	cond, arg := r.idCondition(column)
	return tx.Where(cond, arg(ids))
}

func (r *CounterRepository) txOptions() *sql.TxOptions {
	if r.postgres() {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return nil
}
