// Package sandbox is a local stand-in for the dashboard API. It accepts the
// same client and backup requests as the real service and stores them in
// SQLite, so ingestion runs can be tried without touching production.
package sandbox

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Options struct {
	Logger *zap.Logger
	// FailEvery makes every nth create request answer 503. Zero disables it.
	FailEvery int
}

func NewRouter(db *gorm.DB, opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ch := &chaos{n: int64(opts.FailEvery)}

	clientHandler := &ClientHandler{db: db, log: log, chaos: ch}
	backupHandler := &BackupHandler{db: db, log: log, chaos: ch}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/clients", clientHandler.List)
		api.POST("/clients", clientHandler.Create)
		api.GET("/backups", backupHandler.List)
		api.POST("/backups", backupHandler.Create)
	}

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", c.ClientIP()),
		}
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
