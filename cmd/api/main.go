package main

import (
	"context"
	"log"

	"pledgr/internal/config"
	"pledgr/internal/database"
	"pledgr/internal/server"
)

func main() {
	log.Println("Starting pledgr crowdfunding API...")
	ctx := context.Background()

	// Load configuration from config.env and the environment
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal("cannot load config:", err)
	}
	log.Printf("Running in %s mode, platform fee %s%%", cfg.Environment, cfg.FeePercent())

	// Connect to the Database
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatal("cannot connect to database:", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatal("cannot migrate database:", err)
		}
	}

	deps, err := server.NewDeps(cfg, db)
	if err != nil {
		log.Fatal("cannot build services:", err)
	}

	srv := server.New(cfg, server.NewRouter(cfg, deps))
	if err := server.Run(ctx, srv); err != nil {
		log.Fatal("server error:", err)
	}
}
