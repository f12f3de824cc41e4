// Package server exposes the storage state over HTTP for operators.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/internal/storage/ports"
	"github.com/mimir-go/pkg/config"
	"github.com/mimir-go/pkg/logger"
	"github.com/mimir-go/pkg/ratelimit"
	"github.com/mimir-go/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Backend is what the admin endpoints read from.
type Backend interface {
	ports.DocumentLister
	Ping(ctx context.Context) error
	FindContainer(ctx context.Context, name string) (*index.Index, error)
	AliasIndices(ctx context.Context, alias string) ([]string, error)
}

type Server struct {
	config     config.ServerConfig
	logger     logger.Logger
	httpServer *http.Server
}

func New(cfg config.ServerConfig, backend Backend, tel *telemetry.Telemetry, log logger.Logger) *Server {
	h := &handlers{backend: backend, logger: log}
	r := setupRouter(cfg, h, tel, log)

	return &Server{
		config: cfg,
		logger: log,
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      r,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		},
	}
}

func setupRouter(cfg config.ServerConfig, h *handlers, tel *telemetry.Telemetry, log logger.Logger) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	if tel != nil {
		r.Use(tel.HTTPMiddleware())
	}
	r.Use(loggingMiddleware(log))

	// Health checks
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/indices/:name", h.GetIndex)
	// Scans hold a point in time on the backend.
	scans := []gin.HandlerFunc{h.ListDocuments}
	if cfg.ScanRate > 0 {
		limiter := ratelimit.NewKeyedLimiter(cfg.ScanRate, cfg.ScanBurst)
		scans = append([]gin.HandlerFunc{ratelimit.Middleware(limiter, ratelimit.IPKeyFunc)}, scans...)
	}
	r.GET("/indices/:name/documents", scans...)
	r.GET("/aliases/:name", h.GetAlias)

	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func loggingMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// writeNDJSON streams one JSON value per line.
func writeNDJSON(c *gin.Context, v json.RawMessage) error {
	if _, err := c.Writer.Write(v); err != nil {
		return err
	}
	_, err := c.Writer.Write([]byte{'\n'})
	return err
}
