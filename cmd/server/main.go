package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"workspace-service/internal/adapters/kafka"
	"workspace-service/internal/api/handlers"
	"workspace-service/internal/api/routes"
	"workspace-service/internal/config"
	"workspace-service/internal/database"
	"workspace-service/internal/services"
	"workspace-service/internal/websocket"
	"workspace-service/internal/workspace"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	instanceID := cfg.Server.InstanceID
	if instanceID == "" {
		instanceID = uuid.New().String()
	}
	slog.Info("Starting workspace sync server", "instanceID", instanceID)

	// Initialize Redis connection
	redisClient, err := database.NewRedisConnection(&cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	redisService := services.NewRedisService(redisClient)

	// MySQL backs the workspace registry. Without it the service still relays
	// presence and events, so a failed connection only disables the registry.
	db, err := database.NewMySQLConnection(&cfg.Database)
	if err != nil {
		slog.Warn("MySQL unavailable, registry endpoints disabled", "error", err)
		db = nil
	} else if err := workspace.Migrate(db); err != nil {
		slog.Error("Failed to migrate registry tables", "error", err)
		os.Exit(1)
	}

	// Initialize WebSocket hub with the redis relay for cross-instance fan-out
	hub := websocket.NewHub(redisService, instanceID)
	hub.SetGracePeriod(cfg.Presence.GracePeriod)
	hub.SetStatusTracker(redisService)
	go hub.Run()

	// Kafka carries lifecycle events between the registry and the dispatcher.
	// Without a broker, events short-circuit through the hub in process.
	var sink handlers.EventSink
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	saramaProducer, err := kafka.InitKafkaProducer(cfg.Kafka.Brokers)
	if err != nil {
		slog.Warn("Kafka unavailable, dispatching events in process", "error", err)
		sink = workspace.NewDirectPublisher(hub)
	} else {
		producer := kafka.NewProducer(saramaProducer, cfg.Kafka.Topic)
		defer producer.Close()
		sink = producer

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, hub)
		go consumer.Run(consumerCtx)
	}

	// Initialize router with all dependencies
	router := routes.NewRouter(
		hub,
		redisService,
		db,
		sink,
		cfg.JWT.Secret,
	)
	router.SetupRoutes()

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop intake first so no new events reach the hub, then the hub itself
	stopConsumer()
	hub.Stop()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped")
}
