package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/config"
	"github.com/luizfilipeschaeffer/market-dashboard/internal/logging"
	"github.com/luizfilipeschaeffer/market-dashboard/internal/sandbox"
)

func main() {
	// Load configuration
	cfg, err := config.Load(config.New(), os.Getenv(config.EnvPrefix+"_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	defer log.Sync()

	// Set Gin mode
	gin.SetMode(cfg.Sandbox.Mode)

	// Initialize database
	db, err := sandbox.NewDatabase(cfg.Sandbox.SQLitePath)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}

	router := sandbox.NewRouter(db, sandbox.Options{Logger: log, FailEvery: cfg.Sandbox.FailEvery})

	addr := fmt.Sprintf("%s:%d", cfg.Sandbox.Host, cfg.Sandbox.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("Starting sandbox API", zap.String("addr", addr), zap.String("db", cfg.Sandbox.SQLitePath))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatal("Shutdown error", zap.Error(err))
	}
}
