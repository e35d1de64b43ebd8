package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-shelter-alerts/internal/api"
	"github.com/mr1hm/go-shelter-alerts/internal/catalog"
	"github.com/mr1hm/go-shelter-alerts/internal/config"
	"github.com/mr1hm/go-shelter-alerts/internal/ingestion"
	"github.com/mr1hm/go-shelter-alerts/internal/logging"
	"github.com/mr1hm/go-shelter-alerts/internal/metrics"
	"github.com/mr1hm/go-shelter-alerts/internal/repository"
	"github.com/mr1hm/go-shelter-alerts/internal/store"
	"github.com/mr1hm/go-shelter-alerts/internal/stream"
	"github.com/mr1hm/go-shelter-alerts/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "env", cfg.Server.Env)

	cat, err := catalog.Load(cfg.Catalog.AreasPath)
	if err != nil {
		// Unknown areas fall back to the default migun time
		slog.Error("failed to load area catalog, using defaults", "path", cfg.Catalog.AreasPath, "error", err)
		cat = catalog.New(nil)
	}
	slog.Info("area catalog loaded", "areas", cat.Len())

	mtr := metrics.NewMetrics()
	broadcaster := stream.NewBroadcaster()

	storeOpts := []store.Option{
		store.WithMetrics(mtr),
		store.WithBroadcaster(broadcaster),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		episodes    repository.EpisodeRepository
		journalPool *worker.WorkerPool
	)
	if cfg.DB.Enabled {
		db, err := repository.NewSQLiteDB(cfg.DB.Path)
		if err != nil {
			logging.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
		episodes = db

		// One worker keeps each episode's start ahead of its end
		journalPool = worker.NewWorkerPool(1, 256, slog.Default())
		journalPool.Start(context.Background())
		storeOpts = append(storeOpts, store.WithObserver(repository.NewJournal(db, journalPool)))
	}

	st := store.New(cat, storeOpts...)

	mgr := ingestion.NewManager(cfg.Feeds, st, mtr)
	mgr.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	if cfg.Server.RateLimit > 0 {
		router.Use(api.RateLimitMiddleware(cfg.Server.RateLimit))
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler := api.NewHandler(st, cat, episodes, broadcaster, mtr, api.Options{
		Production:    cfg.IsProduction(),
		CitiesGeoPath: cfg.Catalog.CitiesGeoPath,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()
	st.Close() // Disconnects websocket subscribers
	if journalPool != nil {
		journalPool.Stop() // Flushes queued episode writes before the db closes
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
