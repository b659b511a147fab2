// Package webdriver is a minimal client for the WebDriver protocol spoken by
// the supervised driver: create a session, navigate, delete the session.
package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/kandev/driverd/internal/common/appctx"
	"github.com/kandev/driverd/internal/common/logger"
	"github.com/kandev/driverd/internal/common/tracing"
)

const (
	// maxResponseBytes caps how much of a driver response is read.
	maxResponseBytes = 8 << 20

	// closeTimeout bounds session deletion, which runs detached from the request.
	closeTimeout = 30 * time.Second
)

// Client talks to one driver endpoint. It is safe for concurrent use; every
// session it opens is independent.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	capabilities Capabilities
	logger       *logger.Logger
}

// NewClient creates a client for the driver listening on host:port.
func NewClient(host string, port int, log *logger.Logger) *Client {
	return NewClientURL(fmt.Sprintf("http://%s:%d", host, port), log)
}

// NewClientURL creates a client for the driver at baseURL.
func NewClientURL(baseURL string, log *logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   2 * time.Minute,
		},
		capabilities: DefaultCapabilities(),
		logger:       log.WithComponent("webdriver-client"),
	}
}

// Status is the driver's readiness report.
type Status struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

// Status queries the driver's readiness endpoint.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	value, err := c.do(ctx, "status", "", http.MethodGet, "/status", nil)
	if err != nil {
		return nil, err
	}
	var status Status
	if len(value) > 0 {
		if err := json.Unmarshal(value, &status); err != nil {
			return nil, fmt.Errorf("failed to parse status response: %w", err)
		}
	}
	return &status, nil
}

// NewSession opens a session using the client's capability profile.
func (c *Client) NewSession(ctx context.Context) (*Session, error) {
	value, sessionID, err := c.doSession(ctx, newSessionPayload(c.capabilities))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionOpen, err)
	}
	if sessionID == "" {
		var v struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, fmt.Errorf("%w: failed to parse session response: %w", ErrSessionOpen, err)
		}
		sessionID = v.SessionID
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: driver returned no session id", ErrSessionOpen)
	}

	c.logger.Debug("session opened", zap.String("session_id", sessionID))
	return &Session{
		id:     sessionID,
		client: c,
		logger: c.logger.WithFields(zap.String("session_id", sessionID)),
	}, nil
}

// Navigate performs one request's worth of work: open a session, load url,
// and close the session. The session is closed even when navigation fails or
// ctx is cancelled. A close failure is returned only if navigation succeeded.
func (c *Client) Navigate(ctx context.Context, url string) (err error) {
	sess, err := c.NewSession(ctx)
	if err != nil {
		return err
	}
	ctx = logger.WithSessionID(ctx, sess.ID())

	defer func() {
		closeCtx, cancel := appctx.Detached(ctx, nil, closeTimeout)
		defer cancel()
		if closeErr := sess.Close(closeCtx); closeErr != nil {
			if err == nil {
				err = closeErr
				return
			}
			c.logger.WithContext(ctx).Warn("failed to close session after navigation error", zap.Error(closeErr))
		}
	}()

	return sess.Navigate(ctx, url)
}

// response is the envelope of every driver reply. SessionID and Status are
// only set by legacy (pre-W3C) drivers.
type response struct {
	SessionID string          `json:"sessionId"`
	Status    *int            `json:"status"`
	Value     json.RawMessage `json:"value"`
}

type errorValue struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) doSession(ctx context.Context, payload any) (json.RawMessage, string, error) {
	resp, err := c.roundTrip(ctx, "new_session", "", http.MethodPost, "/session", payload)
	if err != nil {
		return nil, "", err
	}
	return resp.Value, resp.SessionID, nil
}

func (c *Client) do(ctx context.Context, operation, sessionID, method, path string, payload any) (json.RawMessage, error) {
	resp, err := c.roundTrip(ctx, operation, sessionID, method, path, payload)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// roundTrip sends one protocol command and decodes the envelope, turning
// protocol-level failures into *Error.
func (c *Client) roundTrip(ctx context.Context, operation, sessionID, method, path string, payload any) (_ *response, err error) {
	ctx, span := tracing.TraceDriverCall(ctx, operation, sessionID)
	statusCode := 0
	defer func() {
		tracing.TraceDriverResult(span, statusCode, err)
		span.End()
	}()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	statusCode = resp.StatusCode

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope response
	if len(bytes.TrimSpace(respBody)) > 0 {
		if jsonErr := json.Unmarshal(respBody, &envelope); jsonErr != nil {
			if resp.StatusCode >= 400 {
				return nil, &Error{StatusCode: resp.StatusCode, Message: truncateBody(respBody)}
			}
			return nil, fmt.Errorf("failed to parse %s response (status %d, body: %s): %w",
				operation, resp.StatusCode, truncateBody(respBody), jsonErr)
		}
	}

	legacyFailure := envelope.Status != nil && *envelope.Status != 0
	if resp.StatusCode >= 400 || legacyFailure {
		return nil, decodeError(resp.StatusCode, envelope)
	}
	return &envelope, nil
}

func decodeError(statusCode int, envelope response) *Error {
	e := &Error{StatusCode: statusCode}
	var v errorValue
	if len(envelope.Value) > 0 && json.Unmarshal(envelope.Value, &v) == nil {
		e.Code = v.Error
		e.Message = v.Message
	}
	if e.Code == "" && envelope.Status != nil && *envelope.Status != 0 {
		e.Code = fmt.Sprintf("legacy status %d", *envelope.Status)
	}
	return e
}

// truncateBody shortens a response body for error messages.
func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
