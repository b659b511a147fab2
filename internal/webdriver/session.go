package webdriver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/driverd/internal/common/logger"
)

// Session is one open automation session. It must be closed by the request
// that opened it.
type Session struct {
	id     string
	client *Client
	logger *logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// ID returns the driver-assigned session identifier.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) path(suffix string) string {
	return "/session/" + url.PathEscape(s.id) + suffix
}

// Navigate instructs the browser to load target. The URL is not validated
// locally; the driver reports malformed URLs.
func (s *Session) Navigate(ctx context.Context, target string) error {
	s.logger.Debug("navigating to requested url", zap.String("url", target))

	payload := struct {
		URL string `json:"url"`
	}{URL: target}
	if _, err := s.client.do(ctx, "navigate", s.id, http.MethodPost, s.path("/url"), payload); err != nil {
		return &SessionError{SessionID: s.id, Err: fmt.Errorf("%w: %w", ErrNavigate, err)}
	}
	return nil
}

// Close deletes the session. Repeated calls return the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if _, err := s.client.do(ctx, "delete_session", s.id, http.MethodDelete, s.path(""), nil); err != nil {
			s.closeErr = &SessionError{SessionID: s.id, Err: fmt.Errorf("%w: %w", ErrSessionClose, err)}
			return
		}
		s.logger.Debug("session closed")
	})
	return s.closeErr
}
