package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"

	"neuro-match/config"
	"neuro-match/controllers"
	"neuro-match/models"
	"neuro-match/routes"
	"neuro-match/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.LogLevel, os.Stdout)

	// 初始化数据库
	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Error("failed to init database", "error", err)
		os.Exit(1)
	}
	// 自动迁移
	if err := models.Migrate(db); err != nil {
		logger.Error("failed to migrate", "error", err)
		os.Exit(1)
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := services.NewHub(logger)
	go hub.Run(hubCtx)

	var (
		fanout      services.Fanout = services.NewLocalFanout(hub)
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		rf, err := services.NewRedisFanout(context.Background(), redisClient, cfg.RedisChannel, hub, logger)
		if err != nil {
			logger.Error("failed to subscribe to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		fanout = rf
		logger.Info("redis fanout enabled", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}

	store := services.NewMessageStore(db)
	relay := services.NewRelay(hub, store, fanout, logger)
	tokens := services.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	authService, err := services.NewAuthService(db, tokens, services.NewPasswordHasher(services.DefaultBcryptCost),
		services.NewLogMailer(logger), cfg.PublicURL, logger)
	if err != nil {
		logger.Error("failed to create auth service", "error", err)
		os.Exit(1)
	}

	// 注册路由
	r := routes.RegisterRoutes(routes.Handlers{
		Auth:          controllers.NewAuthController(authService, cfg.CookieSecure, logger),
		Friends:       controllers.NewFriendController(services.NewFriendService(db), logger),
		Messages:      controllers.NewMessageController(store, relay, logger),
		Conversations: controllers.NewConversationController(services.NewConversationService(db), logger),
		Users:         controllers.NewUserController(services.NewUserService(db), logger),
		WS:            controllers.NewWSController(relay, cfg.Origins(), logger),
		Health:        controllers.NewHealthController(db, hub),
	}, authService, cfg.Origins(), logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 启动服务
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
			"relay": func(ctx context.Context) error {
				if err := fanout.Close(); err != nil {
					logger.Warn("fanout close failed", "error", err)
				}
				if redisClient != nil {
					if err := redisClient.Close(); err != nil {
						logger.Warn("redis close failed", "error", err)
					}
				}
				stopHub()
				select {
				case <-hub.Done():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
			"database": func(ctx context.Context) error {
				return config.CloseDB(db)
			},
		},
	)

	exitCode := <-wait
	logger.Info("server exited", "code", exitCode)
	os.Exit(exitCode)
}
