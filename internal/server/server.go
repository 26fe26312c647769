// Package server builds the HTTP server and its shared middleware.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/logger"
	"github.com/tunegrab/tunegrab/internal/modules/modulemanager"
)

// New builds the gin engine, attaches shared middleware and the health
// surface, and lets every module register its routes.
func New() *gin.Engine {
	cfg := config.Get().Server

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	if cfg.EnableCORS {
		router.Use(corsMiddleware())
	}

	router.GET("/health", healthHandler)

	modulemanager.RegisterRoutes(router)
	return router
}

// HTTPServer wraps the engine with the configured timeouts.
func HTTPServer(router *gin.Engine) *http.Server {
	cfg := config.Get().Server
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// Websocket upgrades and health probes would flood the log.
		if c.Request.URL.Path == "/health" {
			return
		}
		logger.Info("http request", []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
		})
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
