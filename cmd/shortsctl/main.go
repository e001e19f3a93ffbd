package main

import (
	"log"

	"github.com/joho/godotenv"

	"shortcast/internal/artifact"
	"shortcast/internal/config"
	"shortcast/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	jobRepo := storage.NewJobRepository(db)
	artifactRepo := storage.NewArtifactRepository(db)
	store := artifact.NewStore(artifactRepo, cfg.DataDir, cfg.PublicBaseURL,
		cfg.PresignSecret, cfg.TempRetention)

	Execute(jobRepo, store, cfg)
}
