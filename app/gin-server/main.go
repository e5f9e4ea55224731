package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/api/option"

	"github.com/yoockh/vaihub/config"
	"github.com/yoockh/vaihub/internal/api/handlers"
	"github.com/yoockh/vaihub/internal/api/routes"
	"github.com/yoockh/vaihub/internal/auth"
	"github.com/yoockh/vaihub/internal/cache"
	"github.com/yoockh/vaihub/internal/logger"
	"github.com/yoockh/vaihub/internal/privileged"
	"github.com/yoockh/vaihub/internal/providers/authn"
	"github.com/yoockh/vaihub/internal/providers/llm"
	"github.com/yoockh/vaihub/internal/providers/stt"
	"github.com/yoockh/vaihub/internal/realtime"
	mongorepo "github.com/yoockh/vaihub/internal/repositories/mongo"
	pgrepo "github.com/yoockh/vaihub/internal/repositories/postgres"
	"github.com/yoockh/vaihub/internal/services"
	"github.com/yoockh/vaihub/internal/storage"
	"github.com/yoockh/vaihub/internal/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").WithError(err).Fatal("config error")
	}
	log := logger.New(cfg.LogLevel)

	// Init MongoDB
	if err := config.InitMongo(cfg.Mongo, cfg.IsDevelopment()); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	if err := config.EnsureMongoIndexes(cfg.Mongo); err != nil {
		log.WithError(err).Fatal("MongoDB index error")
	}
	log.Info("MongoDB connected")

	// Init PostgreSQL
	if err := config.InitPostgres(cfg.Postgres, cfg.IsDevelopment()); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	log.Info("PostgreSQL connected")

	// Init Redis
	if err := config.InitRedis(cfg.Redis); err != nil {
		log.WithError(err).Fatal("Redis init error")
	}
	log.Info("Redis connected")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var gcpOpts []option.ClientOption
	if cfg.GCP.CredentialsFile != "" {
		gcpOpts = append(gcpOpts, option.WithCredentialsFile(cfg.GCP.CredentialsFile))
	}

	objects, err := storage.NewGCSStore(ctx, map[string]string{
		"services": cfg.GCP.ServicesBucket,
		"avatars":  cfg.GCP.AvatarsBucket,
	}, gcpOpts...)
	if err != nil {
		log.WithError(err).Fatal("GCS init error")
	}
	defer objects.Close()

	// The assistant degrades to "not configured" errors when a provider is missing.
	var model llm.Provider
	if g, err := llm.NewVertexGemini(ctx, cfg.GCP.ProjectID, cfg.GCP.Location, cfg.GCP.GeminiModel, gcpOpts...); err != nil {
		log.WithError(err).Warn("Vertex AI unavailable")
	} else {
		model = g
		defer g.Close()
	}
	var speech stt.Provider
	if s, err := stt.NewGoogleSpeech(ctx, gcpOpts...); err != nil {
		log.WithError(err).Warn("Speech-to-Text unavailable")
	} else {
		speech = s
		defer s.Close()
	}

	rdb := config.RedisClient
	profileCache := cache.NewRedisCache(rdb, "vaihub:")
	feed := realtime.NewFeed(rdb, "vaihub:")
	cleanup := &workers.CleanupQueue{Redis: rdb, Stream: cfg.Cleanup.Stream}

	// Repositories
	profiles := pgrepo.NewProfileRepo(config.PostgresDB)
	listings := pgrepo.NewServiceRepo(config.PostgresDB)
	messages := pgrepo.NewMessageRepo(config.PostgresDB)
	courses := pgrepo.NewCourseRepo(config.PostgresDB)
	assistantRepo := mongorepo.NewAssistantRepo(config.MongoDatabase(cfg.Mongo))

	// Services
	profileSvc := services.NewProfileService(profiles, profileCache, objects, "avatars", log)
	marketSvc := services.NewMarketplaceService(listings, profiles, objects, cleanup, "services", log)
	chatSvc := services.NewChatService(messages, profiles, feed, log)
	courseSvc := services.NewCourseService(courses, profiles)
	assistantSvc := services.NewAssistantService(assistantRepo, model, speech, services.AssistantOptions{
		SystemPrompt: cfg.Assistant.SystemPrompt,
		Timeout:      cfg.Assistant.Timeout,
		Logger:       log,
	})
	adminSvc := services.NewAdminService(profiles, marketSvc)

	verifier := auth.NewJWTVerifier(cfg.Supabase.JWTSecret, cfg.Supabase.JWTIssuer, cfg.Supabase.JWTAudience)
	guard := privileged.NewGuard(verifier, profiles)
	actions := privileged.NewActions(privileged.Deps{
		Roles:          profiles,
		Bans:           authn.NewAdmin(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey),
		Services:       listings,
		Objects:        objects,
		Cleanup:        cleanup,
		Cache:          profileCache,
		ServicesBucket: "services",
		Logger:         log,
	})

	// Workers
	pool := &workers.CleanupWorkerPool{
		Redis:       rdb,
		Objects:     objects,
		NumWorkers:  cfg.Cleanup.Workers,
		Logger:      log,
		Stream:      cfg.Cleanup.Stream,
		Group:       cfg.Cleanup.Group,
		MaxAttempts: cfg.Cleanup.MaxAttempts,
	}
	if err := pool.Start(ctx); err != nil {
		log.WithError(err).Fatal("cleanup worker init error")
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	routes.RegisterRoutes(r, routes.Deps{
		Logger:      log,
		CORSOrigins: cfg.CORSOrigins,
		Verifier:    verifier,
		Roles:       profiles,
		Guard:       guard,
		Actions:     actions,
		Profile:     handlers.NewProfileHandler(profileSvc),
		Marketplace: handlers.NewMarketplaceHandler(marketSvc),
		Chat:        handlers.NewChatHandler(chatSvc),
		Realtime:    handlers.NewRealtimeHandler(feed, log, cfg.CORSOrigins),
		Course:      handlers.NewCourseHandler(courseSvc),
		Assistant:   handlers.NewAssistantHandler(assistantSvc, log),
		Admin:       handlers.NewAdminHandler(adminSvc),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
	_ = rdb.Close()
	_ = config.MongoClient.Disconnect(shutdownCtx)
}
