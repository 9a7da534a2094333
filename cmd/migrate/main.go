package main

import (
	"fmt"
	"log"
	"os"

	"github.com/zfogg/sidechain/feedengine/internal/config"
	"github.com/zfogg/sidechain/feedengine/internal/database"
	"github.com/zfogg/sidechain/feedengine/internal/logger"
)

func main() {
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "up":
		runMigrationsUp()
	default:
		fmt.Println("Usage: migrate [up]")
		fmt.Println("  up - Create or update every table and the feed keyset indexes")
		os.Exit(1)
	}
}

func runMigrationsUp() {
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

	log.Println("Running migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("All migrations completed successfully")
}
