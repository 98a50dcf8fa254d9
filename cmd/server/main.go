package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cipher-chat/internal/chat"
	"cipher-chat/internal/config"
	"cipher-chat/internal/db"
	"cipher-chat/internal/feed"
	myMiddleware "cipher-chat/internal/middleware"
	"cipher-chat/internal/user"
	"cipher-chat/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 1. Config & Flags
	configName := flag.String("config", "config", "config file name under ./config (optional)")
	addr := flag.String("addr", "", "http service address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configName)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	appLogger, err := logger.NewLogger(cfg.LoggerMode.Development, cfg.LoggerMode.Level)
	if err != nil {
		log.Fatalf("❌ Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	defer database.Close()
	appLogger.Info("✅ Connected to database", "driver", cfg.Database.Driver)

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	appLogger.Info("✅ Database schema initialized")

	// 3. Connect to Redis (Platform Layer). Without an address the feed
	// stays in-process, which is enough for a single instance.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		appLogger.Info("✅ Connected to Redis", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	} else {
		appLogger.Warn("redis address not set, change feed is local to this instance")
	}

	// 4. Start the change feed
	hub := feed.NewHub(redisClient, cfg.Redis.Channel, appLogger.With("component", "feed"))
	go hub.Run(ctx)
	go func() {
		if err := hub.SubscribeToRedis(ctx); err != nil {
			appLogger.Error("redis subscription ended", "err", err)
			stop()
		}
	}()

	// 5. Initialize User Feature
	userRepo := user.NewRepository(database)
	userService := user.NewService(userRepo, cfg.JWT.Secret, cfg.JWT.ExpiresIn, appLogger.With("component", "user"))
	userHandler := user.NewHandler(userService)

	// 6. Initialize Chat Feature
	chatRepo := chat.NewRepository(database)
	chatService := chat.NewService(chatRepo, userService, hub, appLogger.With("component", "chat"))
	chatHandler := chat.NewHandler(ctx, chatService, hub, appLogger.With("component", "ws"))

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 7. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/api/auth/register", userHandler.Register)
	r.Post("/api/auth/login", userHandler.Login)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/me", userHandler.Me)
		r.Get("/api/directory/{code}", userHandler.Resolve)
		chatHandler.Routes(r)
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("🚀 Server starting", "addr", cfg.Server.Addr, "env", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("graceful shutdown failed", "err", err)
	}
}
