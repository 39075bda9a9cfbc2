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
	"github.com/oksasatya/magic-code-auth/internal/interface/middleware"
	"github.com/oksasatya/magic-code-auth/internal/router"
	"github.com/oksasatya/magic-code-auth/pkg/helpers"
)

// The demo web app: a cookie session backed by the issuer.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-app", cfg.Env)
	gin.SetMode(cfg.GinMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	if cfg.HTTPLogEnabled {
		r.Use(middleware.AccessLog(logger))
	}

	reg := router.NewRegistry(r, "")
	if err := router.InitAppModules(reg, cfg, router.NewAppClient(cfg), logger, cfg.AppPublicURL); err != nil {
		logger.Fatalf("failed to init app: %v", err)
	}
	reg.RegisterAll()

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.WithField("issuer", cfg.IssuerURL).Infof("app starting on :%s", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("app forced to shutdown: %v", err)
	}
	logger.Info("app exited properly")
}
