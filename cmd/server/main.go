package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/eaeoz/social-chat-server/internal/chat"
	"github.com/eaeoz/social-chat-server/internal/config"
	"github.com/eaeoz/social-chat-server/internal/db"
	myMiddleware "github.com/eaeoz/social-chat-server/internal/middleware"
	"github.com/eaeoz/social-chat-server/internal/user"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg := config.LoadConfig(os.Args[1:])
	if cfg.JWTSecret == "" {
		log.Error("JWT_SECRET is not set")
		os.Exit(1)
	}

	// Platform layer: Postgres
	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		log.Error("connect to postgres", "err", err)
		os.Exit(1)
	}
	log.Info("connected to postgres")

	if err := database.AutoMigrate(); err != nil {
		log.Error("migrate schema", "err", err)
		os.Exit(1)
	}
	log.Info("database schema initialized")

	// Platform layer: Redis (cross-instance broadcast fan-out)
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Error("connect to redis", "err", err)
		os.Exit(1)
	}
	log.Info("connected to redis")

	// User feature: profile status persistence + token validation
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)

	// Chat core
	chatRepo := chat.NewRepository(database.Conn)
	hub := chat.NewHub(chatRepo, userRepo, redisClient, chat.Options{
		InactivityWindow:   cfg.InactivityWindow,
		WhiteboardDebounce: cfg.WhiteboardDebounce,
		HistoryLimit:       cfg.HistoryLimit,
	}, log.With("component", "hub"))

	go hub.Run(context.Background())

	chatHandler := chat.NewHandler(hub, log.With("component", "ws"))
	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/ws", chatHandler.ServeWs)
	})

	log.Info("server starting", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Error("listen and serve", "err", err)
		os.Exit(1)
	}
}
