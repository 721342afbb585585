// cmd/api/main.go
// Main entry point of the Jootiya chat API
// This file bootstraps all components and starts the server

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jootiya/jootiya-backend/internal/auth"
	"github.com/jootiya/jootiya-backend/internal/common/database"
	"github.com/jootiya/jootiya-backend/internal/common/logging"
	"github.com/jootiya/jootiya-backend/internal/config"
	"github.com/jootiya/jootiya-backend/internal/messaging"
)

func main() {
	// 1. Load environment variables
	envErr := godotenv.Load()

	// 2. Load configuration
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.Environment)

	logger.Info().Msg("Starting Jootiya chat API")
	if envErr != nil {
		logger.Warn().Err(envErr).Msg("No .env file found, using environment variables")
	}

	// 3. Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Configuration validation failed")
	}
	logger.Info().Str("environment", cfg.Environment).Str("broker", cfg.RealtimeBroker).Msg("Configuration is valid")

	ctx := context.Background()

	// 4. Connect to PostgreSQL
	db, err := database.NewPostgresDBFromURL(ctx, cfg.DatabaseURL, database.DefaultPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer db.Close()
	logger.Info().Msg("Connected to PostgreSQL")

	// 5. Run database migrations
	if err := database.RunMigrations(ctx, db, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// 6. Realtime broker
	broker, err := newBroker(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start realtime broker")
	}

	// 7. Media storage
	storage, err := newStorage(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize media storage")
	}

	// 8. Offline notifications
	repo := messaging.NewPostgresRepository(db)
	notifier := newNotifier(ctx, cfg, repo, logger)

	// 9. Messaging service and websocket hub
	service := messaging.NewService(repo, broker, storage, notifier, logging.Component(logger, "messaging"))
	hub := messaging.NewHub(service, logging.Component(logger, "hub"))
	service.SetPresence(hub)
	go hub.Run()
	logger.Info().Msg("WebSocket hub started")

	handler := messaging.NewHandler(service, hub, cfg.MaxUploadSize, logging.Component(logger, "http"))
	authMiddleware := auth.NewMiddleware(cfg.JWTSecret)

	// 10. Setup routes
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logging.Component(logger, "access")))
	router.Use(corsMiddleware)

	if !cfg.UseS3 {
		router.PathPrefix("/uploads/").Handler(
			noSniff(http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.LocalUploadDir)))))
	}
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	messaging.RegisterHealthCheck(router, handler)
	messaging.RegisterRoutes(router, handler, authMiddleware.Authenticate)

	// 11. Create and start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("base_url", cfg.BaseURL).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	hub.Shutdown()
	service.Wait()
	if err := broker.Close(); err != nil {
		logger.Warn().Err(err).Msg("Error closing realtime broker")
	}

	logger.Info().Msg("Server exited gracefully")
}

func newBroker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (messaging.Broker, error) {
	brokerLogger := logging.Component(logger, "broker")
	if cfg.RealtimeBroker != "redis" {
		logger.Info().Msg("Using in-memory realtime broker")
		return messaging.NewMemoryBroker(brokerLogger), nil
	}

	client, err := database.NewRedisClientFromURL(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("Using Redis pub/sub realtime broker")
	return messaging.NewRedisBroker(client, brokerLogger), nil
}

func newStorage(cfg *config.Config) (messaging.StorageService, error) {
	if !cfg.UseS3 {
		if err := os.MkdirAll(cfg.LocalUploadDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create upload directory: %w", err)
		}
		return messaging.NewLocalStorageService(cfg.LocalUploadDir, cfg.CDNURL, cfg.MaxUploadSize), nil
	}

	awsSession, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWSRegion),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return messaging.NewS3StorageService(awsSession, cfg.S3BucketName, cfg.CDNURL, cfg.MaxUploadSize), nil
}

// newNotifier builds one notifier per enabled channel. A channel that cannot
// start is skipped with a warning.
func newNotifier(ctx context.Context, cfg *config.Config, repo messaging.Repository, logger zerolog.Logger) messaging.Notifier {
	notifyLogger := logging.Component(logger, "notify")
	var notifiers []messaging.Notifier

	for _, channel := range cfg.NotifyChannels {
		switch channel {
		case "log":
			notifiers = append(notifiers, messaging.NewLogNotifier(notifyLogger))
		case "push":
			push, err := messaging.NewPushNotifier(ctx, cfg.FCMCredentialsFile, repo, notifyLogger)
			if err != nil {
				logger.Warn().Err(err).Msg("Push notifications disabled")
				continue
			}
			notifiers = append(notifiers, push)
		case "email":
			if cfg.SendGridAPIKey != "" {
				notifiers = append(notifiers, messaging.NewSendGridNotifier(cfg.SendGridAPIKey, cfg.EmailFrom))
			} else {
				notifiers = append(notifiers, messaging.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom))
			}
		case "sms":
			notifiers = append(notifiers, messaging.NewTwilioNotifier(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber))
		}
	}

	multi := messaging.NewMultiNotifier(notifyLogger, notifiers...)
	logger.Info().Strs("channels", cfg.NotifyChannels).Int("active", multi.Len()).Msg("Offline notifications configured")
	return multi
}

// noSniff stops browsers from second-guessing the type of served uploads
func noSniff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}
