package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kandev/driverd/internal/common/logger"
	"github.com/kandev/driverd/internal/common/tracing"
	"github.com/kandev/driverd/internal/webdriver"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	msgMissingURL      = "Missing parameter 'url'"
	msgWebDriverFailed = "WebDriver failed"
)

func (s *Server) handleHello(c *gin.Context) {
	c.String(http.StatusOK, "Hello, World!")
}

// handleNavigate opens a session, loads the url query parameter and closes
// the session. An empty but present url is passed to the driver as is.
func (s *Server) handleNavigate(c *gin.Context) {
	url, ok := c.GetQuery("url")
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: msgMissingURL})
		return
	}

	ctx := c.Request.Context()
	if s.cfg.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SessionTimeout)
		defer cancel()
	}

	if err := s.sessions.Navigate(ctx, url); err != nil {
		var sessErr *webdriver.SessionError
		if errors.As(err, &sessErr) {
			ctx = logger.WithSessionID(ctx, sessErr.SessionID)
		}
		tracing.RecordError(trace.SpanFromContext(ctx), err)
		s.logger.WithContext(ctx).Error("navigation failed",
			zap.String("url", url),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgWebDriverFailed})
		return
	}

	c.String(http.StatusOK, "ok")
}

// DriverStatus describes the supervised driver in health responses.
type DriverStatus struct {
	Alive bool `json:"alive"`
	Pid   int  `json:"pid"`
	Port  int  `json:"port"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string       `json:"status"`
	Driver    DriverStatus `json:"driver"`
	Timestamp string       `json:"timestamp"`
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status: "ok",
		Driver: DriverStatus{
			Alive: s.driver.Alive(),
			Pid:   s.driver.Pid(),
			Port:  s.driver.Port(),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	code := http.StatusOK
	if !resp.Driver.Alive {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}
