package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"users-api/internal/config"
	"users-api/internal/db"
	apihttp "users-api/internal/http"
	"users-api/internal/repository"
	"users-api/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Una clave débil aborta el arranque, nunca llega a servir requests.
	jwtKey, err := cfg.JWTKeyBytes()
	if err != nil {
		logger.Fatal("jwt key", zap.Error(err))
	}

	if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	var loginLimiter service.LoginRateLimiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			loginLimiter = service.NewRedisLoginRateLimiter(redisClient, time.Minute, 10)
		}
		cancel()
	}
	if loginLimiter == nil {
		loginLimiter = service.NewLoginRateLimiter(time.Minute, 10)
	}

	tokenSvc := service.NewTokenService(
		jwtKey,
		cfg.JWTIssuer,
		cfg.JWTAudience,
		time.Duration(cfg.JWTTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTClockSkewSeconds)*time.Second,
	)

	userRepo := repository.NewPgUserRepository(pool)
	userSvc := service.NewUserService(logger, userRepo, loginLimiter)

	if cfg.AdminSeedEmail != "" {
		if err := userSvc.SeedAdmin(ctx, cfg.AdminSeedEmail, cfg.AdminSeedPassword, cfg.AdminSeedName); err != nil {
			logger.Fatal("admin seed", zap.Error(err))
		}
	}

	userHandler := apihttp.NewUserHandler(logger, userSvc, tokenSvc)
	router := apihttp.NewRouter(logger, userHandler, tokenSvc, pool)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
