package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"shortcast/internal/artifact"
	"shortcast/internal/config"
	"shortcast/internal/handlers"
	"shortcast/internal/media"
	"shortcast/internal/pipeline"
	"shortcast/internal/storage"
	"shortcast/internal/version"
	"shortcast/internal/worker"
)

func main() {
	// Load .env if present.
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

	transformer := media.NewStoreTransformer(
		store,
		media.NewFFmpeg(),
		media.NewTTSClient(cfg.OpenAIAPIKey, cfg.TTSModel),
		media.NewYouTubeUploader(cfg.YouTubeAccessToken),
		cfg.DataDir,
	)

	engine := pipeline.NewEngine(jobRepo, store, transformer, pipeline.Options{
		Retry: pipeline.RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    time.Minute,
		},
		StageTimeout:         cfg.StageTimeout,
		PromoteIntermediates: cfg.PromoteIntermediates,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool := worker.NewPool(jobRepo, engine, cfg.WorkerCount, cfg.PollInterval, cfg.StaleAfter)
	pool.Start(ctx)
	defer pool.Stop()

	go runPurgeLoop(ctx, store, cfg.PurgeInterval, cfg.TempRetention)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	jobHandler := handlers.NewJobHandler(jobRepo, store)
	uploadHandler := handlers.NewUploadHandler(store)
	artifactHandler := handlers.NewArtifactHandler(store, cfg.PresignTTL)
	captionHandler := handlers.NewCaptionHandler(media.NewCaptionFetcher(), store)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"version": version.Version,
		})
	})

	api := e.Group("/api")
	api.POST("/uploads", uploadHandler.Upload)
	api.POST("/jobs", jobHandler.Create)
	api.GET("/jobs", jobHandler.List)
	api.GET("/jobs/:id", jobHandler.Get)
	api.GET("/jobs/:id/status", jobHandler.Status)
	api.POST("/jobs/:id/cancel", jobHandler.Cancel)
	api.GET("/artifacts/:key", artifactHandler.Get)
	api.GET("/artifacts/:key/presign", artifactHandler.Presign)
	api.GET("/artifacts/:key/download", artifactHandler.Download)
	api.POST("/captions/import", captionHandler.Import)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()

	log.Printf("Starting shortcast v%s on port %s", version.Version, cfg.Port)
	if err := e.Start(fmt.Sprintf(":%s", cfg.Port)); err != nil {
		log.Println(err)
	}
}

// runPurgeLoop periodically removes expired temporary artifacts.
func runPurgeLoop(ctx context.Context, store *artifact.Store, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.PurgeExpired(ctx, time.Now().Add(-retention))
		}
	}
}
