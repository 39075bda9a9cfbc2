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
	"github.com/joho/godotenv"

	"github.com/oksasatya/magic-code-auth/config"
	"github.com/oksasatya/magic-code-auth/internal/container"
	pginfra "github.com/oksasatya/magic-code-auth/internal/infrastructure/postgres"
	"github.com/oksasatya/magic-code-auth/internal/interface/middleware"
	"github.com/oksasatya/magic-code-auth/internal/router"
	"github.com/oksasatya/magic-code-auth/pkg/helpers"
	"github.com/oksasatya/magic-code-auth/pkg/validation"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env)
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	// Postgres
	dsn, fallback := cfg.PostgresDSN()
	if fallback {
		logger.Warn("DATABASE_URL not set, using the local development database")
	}
	pool, err := pginfra.NewPool(ctx, dsn, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
	if err != nil {
		logger.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := pginfra.RunMigrations(dsn, cfg.MigrationsDir, logger); err != nil {
			logger.Fatalf("migration failed: %v", err)
		}
	}

	// Redis holds pending authorizations, codes and refresh tokens. Without it
	// the issuer still runs, but state is lost on restart.
	rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := helpers.PingRedis(ctx, rdb); err != nil {
		logger.WithError(err).Warn("redis unavailable, falling back to in-memory issuer storage")
		_ = rdb.Close()
		rdb = nil
	} else {
		defer func() { _ = rdb.Close() }()
	}

	// JWT
	jwtManager := helpers.NewJWTManager(cfg.JWTAccessSecret, cfg.AccessTTL, cfg.IssuerURL)

	// RabbitMQ publisher for code emails
	var rabbitPub *helpers.RabbitPublisher
	if cfg.MailSendEnabled {
		rabbitPub, err = helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue)
		if err != nil {
			logger.WithError(err).Warn("rabbitmq unavailable")
			rabbitPub = nil
		} else {
			defer rabbitPub.Close()
		}
	}

	// Elasticsearch user index, optional
	es, err := helpers.NewESClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass)
	if err != nil {
		logger.WithError(err).Warn("elasticsearch disabled")
		es = nil
	}
	if es != nil {
		if err := helpers.EnsureUsersIndex(ctx, es, cfg.ESUsersIndex); err != nil {
			logger.WithError(err).Warn("elasticsearch users index unavailable, indexing disabled")
			es = nil
		}
	}

	container.SetConfig(cfg)
	container.SetLogger(logger)
	container.SetPGPool(pool)
	if rdb != nil {
		container.SetRedis(rdb)
	}
	container.SetJWT(jwtManager)
	if rabbitPub != nil {
		container.SetRabbitPub(rabbitPub)
	}
	if es != nil {
		container.SetES(es)
	}
	validation.Init()

	deps, err := router.BuildIssuerDeps()
	if err != nil {
		logger.Fatalf("failed to build issuer: %v", err)
	}

	// Gin engine and global middleware
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP())
	if cfg.HTTPLogEnabled {
		r.Use(middleware.AccessLog(logger))
	}

	var allow middleware.AllowFunc
	if cfg.Env == "development" {
		allow = middleware.AllowPrivateIP()
	}

	reg := router.NewRegistry(r, router.BasePath(cfg.IssuerURL))
	reg.UseCORS(router.CORS(cfg))
	router.InitIssuerModules(reg, deps, cfg.DebugMetricsEnabled, allow)
	reg.RegisterAll()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.WithField("issuer", cfg.IssuerURL).Infof("issuer starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down issuer")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Fatalf("issuer forced to shutdown: %v", err)
	}
	logger.Info("issuer exited properly")
}
