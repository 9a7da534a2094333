package seed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/zfogg/sidechain/feedengine/internal/logger"
	"github.com/zfogg/sidechain/feedengine/internal/models"
	"github.com/zfogg/sidechain/feedengine/internal/stream"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options sizes a development dataset
type Options struct {
	Users          int
	Posts          int
	Reposts        int
	Favorites      int
	FollowsPerUser int
	// Span is how far back account and post timestamps reach.
	Span time.Duration
	// Seed makes a run reproducible. Zero seeds from the clock.
	Seed int64
}

// DefaultOptions is a dataset big enough to exercise pagination and the
// reputation batcher.
func DefaultOptions() Options {
	return Options{
		Users:          200,
		Posts:          1000,
		Reposts:        400,
		Favorites:      3000,
		FollowsPerUser: 15,
		Span:           180 * 24 * time.Hour,
	}
}

// Result counts what a seeding run created
type Result struct {
	Users     int
	Posts     int
	Reposts   int
	Favorites int
	Follows   int
	Published int
}

type pair struct{ a, b string }

// Seeder handles database seeding operations
type Seeder struct {
	db        *gorm.DB
	publisher stream.ActivityPublisher
	now       func() time.Time
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db, now: time.Now}
}

// SetPublisher mirrors seeded posts and reposts into Stream feeds
func (s *Seeder) SetPublisher(pub stream.ActivityPublisher) {
	s.publisher = pub
}

// SeedDev seeds the database with random users, posts, reposts, favorites
// and follows. Post counters are kept consistent with the rows created.
func (s *Seeder) SeedDev(ctx context.Context, opts Options) (*Result, error) {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// Seed returns an error only for invalid sources
	_ = gofakeit.Seed(seed)

	if opts.Users < 2 {
		return nil, fmt.Errorf("at least 2 users are required, got %d", opts.Users)
	}
	if opts.Span <= 0 {
		opts.Span = DefaultOptions().Span
	}

	res := &Result{}
	db := s.db.WithContext(ctx)
	now := s.now().UTC()

	logger.Log.Info("Creating users...", zap.Int("count", opts.Users))
	users := make([]models.User, 0, opts.Users)
	usernames := make(map[string]bool, opts.Users)
	for len(users) < opts.Users {
		username := gofakeit.Username()
		if usernames[username] {
			continue
		}
		usernames[username] = true
		users = append(users, models.User{
			Username:    username,
			DisplayName: gofakeit.Name(),
			CreatedAt:   gofakeit.DateRange(now.Add(-opts.Span), now),
		})
	}
	if err := db.CreateInBatches(&users, 100).Error; err != nil {
		return nil, fmt.Errorf("failed to seed users: %w", err)
	}
	res.Users = len(users)

	logger.Log.Info("Creating follows...")
	follows := make(map[pair]bool)
	var followRows []models.Follow
	for _, u := range users {
		n := gofakeit.Number(0, opts.FollowsPerUser)
		for i := 0; i < n; i++ {
			target := users[gofakeit.Number(0, len(users)-1)]
			key := pair{u.ID, target.ID}
			if target.ID == u.ID || follows[key] {
				continue
			}
			follows[key] = true
			followRows = append(followRows, models.Follow{FollowerID: u.ID, FollowingID: target.ID})
		}
	}
	if len(followRows) > 0 {
		if err := db.CreateInBatches(&followRows, 200).Error; err != nil {
			return nil, fmt.Errorf("failed to seed follows: %w", err)
		}
	}
	res.Follows = len(followRows)

	logger.Log.Info("Creating posts...", zap.Int("count", opts.Posts))
	posts := make([]models.Post, 0, opts.Posts)
	for i := 0; i < opts.Posts; i++ {
		owner := users[gofakeit.Number(0, len(users)-1)]
		posts = append(posts, models.Post{
			UserID:     owner.ID,
			Content:    gofakeit.HipsterSentence(),
			ReplyCount: gofakeit.Number(0, 12),
			CreatedAt:  gofakeit.DateRange(owner.CreatedAt, now),
		})
	}
	if len(posts) > 0 {
		if err := db.CreateInBatches(&posts, 200).Error; err != nil {
			return nil, fmt.Errorf("failed to seed posts: %w", err)
		}
	}
	res.Posts = len(posts)
	if len(posts) == 0 {
		return res, nil
	}

	logger.Log.Info("Creating reposts...", zap.Int("count", opts.Reposts))
	reposted := make(map[pair]bool)
	repostCounts := make(map[string]int)
	var reposts []models.Repost
	for i := 0; i < opts.Reposts; i++ {
		p := posts[gofakeit.Number(0, len(posts)-1)]
		actor := users[gofakeit.Number(0, len(users)-1)]
		key := pair{actor.ID, p.ID}
		if actor.ID == p.UserID || reposted[key] {
			continue
		}
		reposted[key] = true
		repostCounts[p.ID]++
		reposts = append(reposts, models.Repost{
			UserID:    actor.ID,
			PostID:    p.ID,
			CreatedAt: gofakeit.DateRange(p.CreatedAt, now),
		})
	}
	if len(reposts) > 0 {
		if err := db.CreateInBatches(&reposts, 200).Error; err != nil {
			return nil, fmt.Errorf("failed to seed reposts: %w", err)
		}
	}
	res.Reposts = len(reposts)

	logger.Log.Info("Creating favorites...", zap.Int("count", opts.Favorites))
	favorited := make(map[pair]bool)
	favoriteCounts := make(map[string]int)
	var favorites []models.Favorite
	for i := 0; i < opts.Favorites; i++ {
		p := posts[gofakeit.Number(0, len(posts)-1)]
		actor := users[gofakeit.Number(0, len(users)-1)]
		key := pair{actor.ID, p.ID}
		if favorited[key] {
			continue
		}
		favorited[key] = true
		favoriteCounts[p.ID]++
		favorites = append(favorites, models.Favorite{
			UserID:    actor.ID,
			PostID:    p.ID,
			CreatedAt: gofakeit.DateRange(p.CreatedAt, now),
		})
	}
	if len(favorites) > 0 {
		if err := db.CreateInBatches(&favorites, 500).Error; err != nil {
			return nil, fmt.Errorf("failed to seed favorites: %w", err)
		}
	}
	res.Favorites = len(favorites)

	if err := s.updateCounters(ctx, repostCounts, favoriteCounts); err != nil {
		return nil, err
	}
	if s.publisher != nil {
		published, err := s.Publish(ctx)
		if err != nil {
			return nil, err
		}
		res.Published = published
	}
	return res, nil
}

func (s *Seeder) updateCounters(ctx context.Context, reposts, favorites map[string]int) error {
	ids := make(map[string]struct{}, len(reposts)+len(favorites))
	for id := range reposts {
		ids[id] = struct{}{}
	}
	for id := range favorites {
		ids[id] = struct{}{}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id := range ids {
			err := tx.Model(&models.Post{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
				"repost_count":   reposts[id],
				"favorite_count": favorites[id],
			}).Error
			if err != nil {
				return fmt.Errorf("failed to update counters of post %s: %w", id, err)
			}
		}
		return nil
	})
}

// SeedTest creates a small fixed dataset. Running it twice is a no-op.
func (s *Seeder) SeedTest(ctx context.Context) (*Result, error) {
	db := s.db.WithContext(ctx)
	res := &Result{}

	var existing int64
	if err := db.Model(&models.User{}).Where("username = ?", "alice").Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check test users: %w", err)
	}
	if existing > 0 {
		logger.Log.Info("Test users already exist, skipping")
		return res, nil
	}

	now := s.now().UTC().Truncate(time.Second)
	specs := []struct {
		username    string
		displayName string
		ageDays     int
	}{
		{"alice", "Alice Smith", 400},
		{"bob", "Bob Johnson", 120},
		{"charlie", "Charlie Brown", 30},
		{"diana", "Diana Prince", 7},
		{"eve", "Eve Wilson", 0},
	}
	byName := make(map[string]*models.User, len(specs))
	for _, spec := range specs {
		u := &models.User{
			Username:    spec.username,
			DisplayName: spec.displayName,
			CreatedAt:   now.AddDate(0, 0, -spec.ageDays),
		}
		if err := db.Create(u).Error; err != nil {
			return nil, fmt.Errorf("failed to create test user %s: %w", spec.username, err)
		}
		byName[spec.username] = u
		res.Users++
	}

	postSpecs := []struct {
		owner   string
		content string
		ago     time.Duration
	}{
		{"alice", "first light on the new synth", 72 * time.Hour},
		{"bob", "sunday mix is up", 48 * time.Hour},
		{"alice", "anyone else tuning by ear tonight?", 26 * time.Hour},
		{"charlie", "hello world", 20 * time.Hour},
		{"diana", "new loop pack, free for remixes", 5 * time.Hour},
	}
	posts := make([]*models.Post, 0, len(postSpecs))
	for _, spec := range postSpecs {
		p := &models.Post{
			UserID:    byName[spec.owner].ID,
			Content:   spec.content,
			CreatedAt: now.Add(-spec.ago),
		}
		if err := db.Create(p).Error; err != nil {
			return nil, fmt.Errorf("failed to create test post: %w", err)
		}
		posts = append(posts, p)
		res.Posts++
	}

	follows := [][2]string{
		{"alice", "bob"}, {"bob", "alice"}, {"charlie", "alice"},
		{"diana", "alice"}, {"eve", "diana"}, {"eve", "bob"},
	}
	for _, f := range follows {
		if err := db.Create(&models.Follow{FollowerID: byName[f[0]].ID, FollowingID: byName[f[1]].ID}).Error; err != nil {
			return nil, fmt.Errorf("failed to create test follow: %w", err)
		}
		res.Follows++
	}

	reposts := []struct {
		actor string
		post  int
		ago   time.Duration
	}{
		{"bob", 0, 30 * time.Hour},
		{"charlie", 0, 10 * time.Hour},
		{"eve", 4, 1 * time.Hour},
	}
	repostCounts := make(map[string]int)
	for _, r := range reposts {
		p := posts[r.post]
		if err := db.Create(&models.Repost{UserID: byName[r.actor].ID, PostID: p.ID, CreatedAt: now.Add(-r.ago)}).Error; err != nil {
			return nil, fmt.Errorf("failed to create test repost: %w", err)
		}
		repostCounts[p.ID]++
		res.Reposts++
	}

	favorites := []struct {
		user string
		post int
	}{
		{"bob", 0}, {"charlie", 0}, {"diana", 0}, {"alice", 1}, {"eve", 4}, {"alice", 4},
	}
	favoriteCounts := make(map[string]int)
	for _, f := range favorites {
		p := posts[f.post]
		if err := db.Create(&models.Favorite{UserID: byName[f.user].ID, PostID: p.ID, CreatedAt: now.Add(-time.Hour)}).Error; err != nil {
			return nil, fmt.Errorf("failed to create test favorite: %w", err)
		}
		favoriteCounts[p.ID]++
		res.Favorites++
	}

	if err := s.updateCounters(ctx, repostCounts, favoriteCounts); err != nil {
		return nil, err
	}
	if s.publisher != nil {
		published, err := s.Publish(ctx)
		if err != nil {
			return nil, err
		}
		res.Published = published
	}
	return res, nil
}

// Publish mirrors every post and repost in the database into Stream in
// chronological order, so the feeds' activity ids follow creation time.
func (s *Seeder) Publish(ctx context.Context) (int, error) {
	if s.publisher == nil {
		return 0, fmt.Errorf("stream publisher not configured")
	}
	db := s.db.WithContext(ctx)

	var follows []models.Follow
	if err := db.Find(&follows).Error; err != nil {
		return 0, fmt.Errorf("failed to load follows: %w", err)
	}
	followers := make(map[string][]string)
	for _, f := range follows {
		followers[f.FollowingID] = append(followers[f.FollowingID], f.FollowerID)
	}

	var posts []models.Post
	if err := db.Preload("User").Order("created_at ASC, id ASC").Find(&posts).Error; err != nil {
		return 0, fmt.Errorf("failed to load posts: %w", err)
	}
	var reposts []models.Repost
	if err := db.Preload("User").Preload("Post").Preload("Post.User").
		Order("created_at ASC, id ASC").Find(&reposts).Error; err != nil {
		return 0, fmt.Errorf("failed to load reposts: %w", err)
	}

	type event struct {
		at      time.Time
		publish func() error
	}
	events := make([]event, 0, len(posts)+len(reposts))
	for _, p := range posts {
		events = append(events, event{p.CreatedAt, func() error {
			_, err := stream.PublishPost(ctx, s.publisher, p, followers[p.UserID])
			return err
		}})
	}
	for _, r := range reposts {
		events = append(events, event{r.CreatedAt, func() error {
			_, err := stream.PublishRepost(ctx, s.publisher, r, followers[r.UserID])
			return err
		}})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].at.Before(events[j].at) })

	logger.Log.Info("Publishing activities to Stream...", zap.Int("count", len(events)))
	for i, e := range events {
		if err := e.publish(); err != nil {
			return i, err
		}
	}
	return len(events), nil
}

// Clean removes all seed data (use with caution!)
func (s *Seeder) Clean(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	// Delete in reverse order of dependencies
	for _, table := range []string{"user_reputations", "favorites", "reposts", "follows", "posts", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}
