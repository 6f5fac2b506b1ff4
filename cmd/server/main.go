package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anomaly-detection-api/internal/config"
	"anomaly-detection-api/internal/db"
	"anomaly-detection-api/internal/inference"
	"anomaly-detection-api/internal/middleware"
	"anomaly-detection-api/internal/normalizer"
	"anomaly-detection-api/internal/repository"
	"anomaly-detection-api/internal/results"
	"anomaly-detection-api/internal/scoring"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	uploadRepo := repository.NewUploadRepository(conn.Pool)
	predictionRepo := repository.NewPredictionRepository(conn.Pool)
	summaryRepo := repository.NewSummaryRepository(conn.Pool)
	logRepo := repository.NewInferenceLogRepository(conn.Pool)
	resultStore := repository.NewResultStore(conn)

	// Create pipeline components. Model weights load lazily on the first
	// inference request.
	fileStore := results.NewStore(
		results.WithUploadDirectory(cfg.Storage.UploadDir),
		results.WithResultsDirectory(cfg.Storage.ResultsDir),
	)
	engine := scoring.NewEngine(cfg.Model)
	service := inference.NewService(
		uploadRepo, predictionRepo, summaryRepo, logRepo,
		resultStore, fileStore, normalizer.New(normalizer.WithWidth(cfg.Model.InputSize)), engine,
	)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.Server.CORSOrigin},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	apiHandler := middleware.LoggingMiddleware(inference.NewHTTPHandler(service))

	mux := http.NewServeMux()
	mux.Handle("/api/inference/", corsHandler.Handler(apiHandler))
	mux.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting inference API on %s", cfg.Server.Addr)
		log.Printf("API endpoints available under http://localhost%s/api/inference/", cfg.Server.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
