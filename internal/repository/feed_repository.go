package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zfogg/sidechain/feedengine/internal/feed"
	"github.com/zfogg/sidechain/feedengine/internal/models"
	"gorm.io/gorm"
)

// position is a keyset point in feed order. Actor is empty for posts.
type position struct {
	At    time.Time
	ID    string
	Actor string
}

func (p position) String() string {
	s := p.At.UTC().Format(time.RFC3339Nano) + "|" + p.ID
	if p.Actor != "" {
		s += "|" + p.Actor
	}
	return s
}

func parsePosition(token string, withActor bool) (position, error) {
	parts := strings.Split(token, "|")
	want := 2
	if withActor {
		want = 3
	}
	if len(parts) != want {
		return position{}, fmt.Errorf("%w: malformed position", feed.ErrInvalidCursor)
	}
	at, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return position{}, fmt.Errorf("%w: %v", feed.ErrInvalidCursor, err)
	}
	p := position{At: at.UTC(), ID: parts[1]}
	if withActor {
		p.Actor = parts[2]
	}
	if p.ID == "" || (withActor && p.Actor == "") {
		return position{}, fmt.Errorf("%w: empty position key", feed.ErrInvalidCursor)
	}
	return p, nil
}

// FeedRepository reads posts and repost events for the feed merger. A nil
// viewer means the global feed; otherwise rows are limited to the viewer
// and the accounts they follow.
type FeedRepository struct {
	db     *gorm.DB
	viewer string
}

// NewGlobalFeedRepository serves every post and repost.
func NewGlobalFeedRepository(db *gorm.DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// NewHomeFeedRepository serves the viewer's and followed users' activity.
func NewHomeFeedRepository(db *gorm.DB, viewerID string) *FeedRepository {
	return &FeedRepository{db: db, viewer: viewerID}
}

func (r *FeedRepository) audience(db *gorm.DB, column string) *gorm.DB {
	if r.viewer == "" {
		return db
	}
	following := r.db.Model(&models.Follow{}).Select("following_id").Where("follower_id = ?", r.viewer)
	return db.Where("("+column+" = ? OR "+column+" IN (?))", r.viewer, following)
}

// OriginalItems returns live posts in feed order after q.After.
func (r *FeedRepository) OriginalItems(ctx context.Context, q feed.Query) ([]feed.Row, error) {
	tx := r.db.WithContext(ctx).Model(&models.Post{}).Preload("User")
	tx = r.audience(tx, "posts.user_id")

	if q.After != "" {
		pos, err := parsePosition(q.After, false)
		if err != nil {
			return nil, err
		}
		tx = tx.Where("(posts.created_at < ? OR (posts.created_at = ? AND posts.id > ?))", pos.At, pos.At, pos.ID)
	}
	if q.Since != nil {
		tx = tx.Where("posts.created_at > ?", q.Since.UTC())
	}

	var posts []models.Post
	err := tx.Order("posts.created_at DESC").Order("posts.id ASC").Limit(q.Limit).Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load posts: %w", err)
	}

	rows := make([]feed.Row, 0, len(posts))
	for _, p := range posts {
		created := p.CreatedAt.UTC()
		rows = append(rows, feed.Row{
			Item:   postItem(p),
			Cursor: position{At: created, ID: p.ID}.String(),
		})
	}
	return rows, nil
}

// RepostEvents returns repost events in feed order after q.After. Events
// whose post has since been deleted are returned with ParentMissing set.
func (r *FeedRepository) RepostEvents(ctx context.Context, q feed.Query) ([]feed.Row, error) {
	unscoped := func(db *gorm.DB) *gorm.DB { return db.Unscoped() }
	tx := r.db.WithContext(ctx).Model(&models.Repost{}).
		Preload("User").
		Preload("Post", unscoped).
		Preload("Post.User", unscoped)
	tx = r.audience(tx, "reposts.user_id")

	if q.After != "" {
		pos, err := parsePosition(q.After, true)
		if err != nil {
			return nil, err
		}
		tx = tx.Where(
			"(reposts.created_at < ? OR (reposts.created_at = ? AND (reposts.post_id > ? OR (reposts.post_id = ? AND reposts.user_id > ?))))",
			pos.At, pos.At, pos.ID, pos.ID, pos.Actor,
		)
	}
	if q.Since != nil {
		tx = tx.Where("reposts.created_at > ?", q.Since.UTC())
	}

	var reposts []models.Repost
	err := tx.Order("reposts.created_at DESC").
		Order("reposts.post_id ASC").
		Order("reposts.user_id ASC").
		Limit(q.Limit).
		Find(&reposts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load reposts: %w", err)
	}

	rows := make([]feed.Row, 0, len(reposts))
	for _, rp := range reposts {
		reposted := rp.CreatedAt.UTC()
		item := postItem(rp.Post)
		item.ID = rp.PostID
		item.RepostActor = &feed.Actor{ID: rp.UserID, Display: rp.User.Display()}
		item.RepostTimestamp = &reposted

		rows = append(rows, feed.Row{
			Item:          item,
			Cursor:        position{At: reposted, ID: rp.PostID, Actor: rp.UserID}.String(),
			ParentMissing: rp.Post.ID == "" || rp.Post.DeletedAt.Valid,
		})
	}
	return rows, nil
}

func postItem(p models.Post) feed.FeedItem {
	return feed.FeedItem{
		ID:      p.ID,
		Owner:   feed.Actor{ID: p.UserID, Display: p.User.Display()},
		Content: p.Content,
		Counters: feed.Counters{
			Favorites: p.FavoriteCount,
			Reposts:   p.RepostCount,
			Replies:   p.ReplyCount,
		},
		PrimaryTimestamp: p.CreatedAt.UTC(),
	}
}
