package main

import (
	"context"
	"log"

	"github.com/zfogg/sidechain/feedengine/internal/config"
	"github.com/zfogg/sidechain/feedengine/internal/database"
	"github.com/zfogg/sidechain/feedengine/internal/logger"
	"github.com/zfogg/sidechain/feedengine/internal/seed"
	"github.com/zfogg/sidechain/feedengine/internal/stream"
)

// sync-stream replays every post and repost in the database into the
// Stream feeds the stream backend reads.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Initialize(logger.Options{Level: cfg.Log.Level, Console: true}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	log.Println("Connecting to database...")
	db, err := database.Initialize(cfg.Database, false)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close() }()

	log.Println("Connecting to Stream.io...")
	client, err := stream.NewClient(cfg.Stream)
	if err != nil {
		log.Fatalf("Failed to initialize Stream client: %v", err)
	}

	seeder := seed.NewSeeder(db)
	seeder.SetPublisher(client)
	n, err := seeder.Publish(context.Background())
	if err != nil {
		log.Fatalf("Sync stopped after %d activities: %v", n, err)
	}
	log.Printf("Published %d activities", n)
}
