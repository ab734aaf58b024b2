package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/hindsight/internal/api"
	"github.com/nidhogg/hindsight/internal/config"
	"github.com/nidhogg/hindsight/internal/embed"
	"github.com/nidhogg/hindsight/internal/event"
	"github.com/nidhogg/hindsight/internal/history"
	"github.com/nidhogg/hindsight/internal/notify"
	"github.com/nidhogg/hindsight/internal/pattern"
	"github.com/nidhogg/hindsight/internal/report"
	"github.com/nidhogg/hindsight/internal/storage"
	"github.com/nidhogg/hindsight/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Hindsight...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/hindsight.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	embedder := embed.NewPaddedHashProvider(cfg.Embedding.Dimension, cfg.Embedding.TargetDimension)

	// Initialize vector store
	var vs *vectorstore.Client
	if cfg.Database.Qdrant.Host != "" {
		c, vsErr := vectorstore.NewClient(vectorstore.Config{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		})
		if vsErr != nil {
			logger.Warn("Qdrant unavailable, similarity served in-process", zap.Error(vsErr))
		} else {
			for _, coll := range []string{vectorstore.CollEvents, vectorstore.CollReports} {
				if cErr := c.EnsureCollection(context.Background(), coll, uint64(embedder.Dimension())); cErr != nil {
					logger.Warn("ensure collection failed", zap.String("collection", coll), zap.Error(cErr))
				}
			}
			vs = c
		}
	}

	// Initialize PostgreSQL; without it the engine runs on in-memory backends
	var db *storage.DB
	var eventBackend event.Backend = event.NewMemoryBackend()
	var reportBackend report.Backend = report.NewMemoryBackend()
	if cfg.Database.Postgres.DSN != "" {
		d, pgErr := storage.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else {
			if mErr := d.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			db = d
			eventBackend = event.NewPGBackend(d.Pool(), vs, logger)
			reportBackend = report.NewPGBackend(d.Pool(), vs, logger)
		}
	}

	// Wire the engine
	events := event.NewStore(eventBackend, embedder, logger)
	reports := report.NewIndex(reportBackend, embedder, logger)
	recognizer := pattern.NewRecognizer(reports, logger)
	aggregator := history.NewAggregator(events, reports, logger)

	// Event announcements over Redis Streams
	var bus *notify.Bus
	if cfg.Notify.Enabled && cfg.Database.Redis.URL != "" {
		b, busErr := notify.NewBus(cfg.Database.Redis.URL, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, running without announcements", zap.Error(busErr))
		} else {
			bus = b
			events.SetAnnouncer(bus.Announce)
			logger.Info("Event announcements enabled", zap.String("stream", notify.Stream))
		}
	}

	// Build HTTP handler
	handler := api.NewHandler(events, reports, recognizer, aggregator, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Hindsight listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Hindsight...")
	srv.Shutdown(context.Background())
	if bus != nil {
		bus.Close()
	}
	if vs != nil {
		vs.Close()
	}
	if db != nil {
		db.Close()
	}
}
