package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"

	"github.com/pharmaproche/pharmacie-backend/config"
	"github.com/pharmaproche/pharmacie-backend/database"
	"github.com/pharmaproche/pharmacie-backend/handlers"
	"github.com/pharmaproche/pharmacie-backend/jobs"
	"github.com/pharmaproche/pharmacie-backend/services"
)

func main() {
	cfg := config.LoadConfig()

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	clock := services.NewSystemClock(cfg.Location())

	// Daily cache: file-backed by default, postgres when DATABASE_URL is
	// configured. Either way the store is injected, never a singleton.
	var cacheStore services.DailyCacheStore
	var pruners []jobs.CachePruner

	if cfg.DatabaseURL != "" {
		if err := database.Connect(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		if err := database.Migrate(); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}

		pgStore := services.NewPostgresCacheStore(database.DB)
		cacheStore = pgStore
		pruners = append(pruners, pgStore)
		logrus.Info("Daily cache backed by postgres")
	} else {
		fileStore := services.NewFileCacheStore(cfg.CacheDir)
		cacheStore = fileStore
		pruners = append(pruners, fileStore)
		logrus.WithField("cache_dir", cfg.CacheDir).Info("Daily cache backed by files")
	}

	// Services
	enricher := services.NewAddressEnricher(cfg.GeocodeURL, config.DefaultGeocodePacing)
	overpassService := services.NewOverpassService(
		services.NewDefaultOverpassServiceConfiguration(cfg.OverpassURL),
		enricher,
		clock,
	)
	medicamService := services.NewMedicamService(cfg.MedicamDatasetURL)
	labelService := services.NewLabelService(cfg.MedicamentsAPIURL, services.DefaultLabelFallbackURL)
	newsService := services.NewNewsService(cfg.NewsAPIURL, cfg.NewsAPIKey, clock)
	trendsService := services.NewTrendsService(medicamService, labelService, newsService, newsService, cacheStore, clock)

	// Jobs
	trendsJob := jobs.NewDailyTrendsJob(trendsService)
	cleanupJob := jobs.NewCacheCleanupJob(clock, pruners...)

	go func() {
		// Warm today's cache right away, then keep it fresh. Re-runs on
		// an already warm day are cache hits.
		go trendsJob.Run()

		warmupTicker := time.NewTicker(6 * time.Hour)
		cleanupTicker := time.NewTicker(24 * time.Hour)

		for {
			select {
			case <-warmupTicker.C:
				trendsJob.Run()
			case <-cleanupTicker.C:
				cleanupJob.Run()
			}
		}
	}()

	// Handlers
	pharmacyHandler := handlers.NewPharmacyHandler(overpassService)
	trendsHandler := handlers.NewTrendsHandler(trendsService)

	app := fiber.New()
	app.Use(logger.New())
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	api := app.Group("/api")
	api.Get("/pharmacies/search", pharmacyHandler.SearchPharmacies)
	api.Get("/trends/meds", trendsHandler.GetMedicamentTrends)
	api.Get("/news/pharma", trendsHandler.GetPharmaNews)

	logrus.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
