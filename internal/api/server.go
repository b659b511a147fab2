// Package api provides the HTTP control surface of driverd.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/driverd/internal/common/httpmw"
	"github.com/kandev/driverd/internal/common/logger"
)

// DriverInfo is the read-only view of the supervised driver the API needs.
type DriverInfo interface {
	Alive() bool
	Pid() int
	Port() int
}

// Navigator runs one navigation in a fresh browser session.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// Config holds the API server settings.
type Config struct {
	// ServiceName labels request logs and server spans.
	ServiceName string
	// SessionTimeout bounds a single navigate request. Zero means no bound
	// beyond the client connection.
	SessionTimeout time.Duration
}

// Server is the HTTP API in front of the supervised driver.
type Server struct {
	driver   DriverInfo
	sessions Navigator
	cfg      Config
	logger   *logger.Logger
	router   *gin.Engine
}

// NewServer creates the API server.
func NewServer(driver DriverInfo, sessions Navigator, cfg Config, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	if cfg.ServiceName == "" {
		cfg.ServiceName = "driverd"
	}

	s := &Server{
		driver:   driver,
		sessions: sessions,
		cfg:      cfg,
		logger:   log.WithFields(zap.String("component", "api-server")),
		router:   gin.New(),
	}

	s.router.Use(
		httpmw.RequestID(),
		httpmw.OtelTracing(cfg.ServiceName),
		httpmw.RequestLogger(s.logger, cfg.ServiceName),
		gin.Recovery(),
	)

	s.setupRoutes()
	return s
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleHello)
	s.router.GET("/navigate", s.handleNavigate)
	s.router.GET("/health", s.handleHealth)
}
