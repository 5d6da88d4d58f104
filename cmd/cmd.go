package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-sync-engine/internal/actions"
	"chat-sync-engine/internal/chat"
	"chat-sync-engine/internal/config"
	"chat-sync-engine/internal/handlers"
	"chat-sync-engine/internal/media"
	"chat-sync-engine/internal/metrics"
	"chat-sync-engine/internal/middleware"
	"chat-sync-engine/internal/profile"
	"chat-sync-engine/internal/reconcile"
	"chat-sync-engine/internal/repository"
	"chat-sync-engine/internal/services"
	"chat-sync-engine/internal/ticketflag"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Log.Level)

	ctx := context.Background()

	if cfg.Database.Migrate {
		if err := repository.Migrate(cfg.Database.MigrateURL()); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	var signer repository.ImageSigner
	if cfg.AWS.S3Bucket != "" {
		s, err := media.New(ctx, media.Options{
			Region:    cfg.AWS.Region,
			Bucket:    cfg.AWS.S3Bucket,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
			Endpoint:  cfg.AWS.Endpoint,
			URLTTL:    cfg.AWS.URLTTL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create media signer")
		}
		signer = s
	} else {
		log.Warn().Msg("No S3 bucket configured, image references are served as stored")
	}

	flags, err := ticketflag.Open(cfg.Storage.TicketFlagsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ticket flag store")
	}
	defer flags.Close()

	codec := chat.NewCodec(cfg.Sync.LegacyShapes())
	backend := repository.NewBackend(db, codec, signer)
	m := metrics.New(prometheus.DefaultRegisterer)

	sessions := services.NewRegistry(
		func(userID string) actions.Client { return backend.ForUser(userID) },
		profile.NewCache(backend),
		services.NewWSHub(),
		services.Options{
			Codec:   codec,
			Flags:   flags,
			Metrics: m,
			Sync: reconcile.Options{
				Interval:    cfg.Sync.PollInterval,
				TickTimeout: cfg.Sync.TickTimeout,
				PendingTTL:  cfg.Sync.PendingTTL,
			},
		},
	)

	origins := cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	auth := middleware.NewAuthenticator(cfg.Auth.JWTSecret)
	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("No JWT secret configured, bearer tokens are not verified")
	}

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(c.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware)
		handlers.Mount(r, sessions, c.OriginAllowed)
	})

	// No WriteTimeout: websocket streams stay open.
	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Dur("poll_interval", cfg.Sync.PollInterval).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown, so the
	// sessions close them first.
	sessions.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
