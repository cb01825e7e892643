package main

import (
	"fmt"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"residency-training-server/internal/config"
	"residency-training-server/internal/logger"
	"residency-training-server/internal/models"
	"residency-training-server/internal/notify"
	"residency-training-server/internal/routes"
	"residency-training-server/internal/store"
	"residency-training-server/internal/workflow"
)

func main() {
	// Load environment variables; a missing .env file is fine in production
	_ = godotenv.Load()

	// Initialize configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Error loading config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "residency-training-server")
	if err != nil {
		panic(fmt.Sprintf("Error building logger: %v", err))
	}
	defer log.Sync()

	// Create a DatabaseConfig for models
	modelDbConfig := models.DatabaseConfig{
		DSN: cfg.Database.DSN,
	}

	// Initialize database connection
	db, err := models.InitDB(modelDbConfig)
	if err != nil {
		log.Fatal("Error connecting to database", zap.Error(err))
	}

	// Select the notification transport
	var dispatcher workflow.Dispatcher
	switch cfg.Notify.Transport {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		dispatcher = notify.NewRedisDispatcher(client, cfg.Notify.Channel)
	case "webhook":
		dispatcher = notify.NewWebhookDispatcher(cfg.Notify.WebhookURL)
	default:
		dispatcher = notify.NewConsoleDispatcher(log)
	}

	// Wire the workflow coordinator
	attachments := store.NewGormAttachmentStore(db)
	coordinator := workflow.NewCoordinator(
		store.NewGormProgressStore(db),
		store.NewGormUserDirectory(db),
		store.NewGormCatalogStore(db),
		dispatcher,
		log,
		workflow.SystemClock{},
	)

	// Initialize Gin router
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Configure CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	// Set up routes
	routes.SetupRoutes(router, db, cfg, coordinator, attachments)

	// Start server
	serverAddr := fmt.Sprintf(":%s", cfg.Port)
	log.Info("Server running", zap.String("port", cfg.Port))
	if err := router.Run(serverAddr); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
