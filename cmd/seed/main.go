package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/zfogg/sidechain/feedengine/internal/config"
	"github.com/zfogg/sidechain/feedengine/internal/database"
	"github.com/zfogg/sidechain/feedengine/internal/logger"
	"github.com/zfogg/sidechain/feedengine/internal/seed"
	"github.com/zfogg/sidechain/feedengine/internal/stream"
	"gorm.io/gorm"
)

func main() {
	command := "dev"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	defaults := seed.DefaultOptions()
	flags := flag.NewFlagSet("seed", flag.ExitOnError)
	users := flags.Int("users", defaults.Users, "users to create")
	posts := flags.Int("posts", defaults.Posts, "posts to create")
	reposts := flags.Int("reposts", defaults.Reposts, "repost attempts")
	favorites := flags.Int("favorites", defaults.Favorites, "favorite attempts")
	follows := flags.Int("follows", defaults.FollowsPerUser, "max follows per user")
	seedValue := flags.Int64("seed", 0, "random seed, 0 for the clock")
	publish := flags.Bool("publish", false, "mirror activities into Stream")
	if len(os.Args) > 2 {
		_ = flags.Parse(os.Args[2:])
	}

	switch command {
	case "dev", "test", "clean":
	default:
		fmt.Println("Usage: seed [dev|test|clean] [flags]")
		fmt.Println("  dev   - Seed the database with random users, posts, reposts and favorites")
		fmt.Println("  test  - Seed a small fixed dataset (alice, bob, charlie, diana, eve)")
		fmt.Println("  clean - Remove all feed data (use with caution)")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Initialize(logger.Options{Level: cfg.Log.Level, Console: true}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	db, err := database.Initialize(cfg.Database, false)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close() }()
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	seeder := seed.NewSeeder(db)
	if *publish {
		client, err := stream.NewClient(cfg.Stream)
		if err != nil {
			log.Fatalf("Failed to initialize Stream client: %v", err)
		}
		seeder.SetPublisher(client)
	}

	ctx := context.Background()
	switch command {
	case "dev":
		report(seeder.SeedDev(ctx, seed.Options{
			Users:          *users,
			Posts:          *posts,
			Reposts:        *reposts,
			Favorites:      *favorites,
			FollowsPerUser: *follows,
			Span:           defaults.Span,
			Seed:           *seedValue,
		}))
	case "test":
		report(seeder.SeedTest(ctx))
	case "clean":
		cleanSeed(ctx, seeder, db)
	}
}

func report(res *seed.Result, err error) {
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d users, %d posts, %d reposts, %d favorites, %d follows (%d activities published)",
		res.Users, res.Posts, res.Reposts, res.Favorites, res.Follows, res.Published)
}

func cleanSeed(ctx context.Context, seeder *seed.Seeder, db *gorm.DB) {
	var n int64
	_ = db.Table("users").Count(&n).Error
	log.Printf("Removing %d users and everything they authored...", n)
	if err := seeder.Clean(ctx); err != nil {
		log.Fatalf("Clean failed: %v", err)
	}
	log.Println("Seed data cleaned successfully")
}
