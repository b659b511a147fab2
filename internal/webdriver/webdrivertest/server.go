// Package webdrivertest provides an in-memory WebDriver endpoint for tests.
package webdrivertest

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Server fakes the subset of the WebDriver protocol driverd uses:
// status, new session, navigate and delete session.
type Server struct {
	engine *gin.Engine

	mu               sync.Mutex
	sessions         map[string]struct{}
	created          int
	navigations      []string
	lastCapabilities map[string]any
	failNavigate     bool
	rejectSessions   bool
	failClose        bool
}

// New creates a fake driver. Use it as an http.Handler, typically behind
// httptest.NewServer.
func New() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		engine:   gin.New(),
		sessions: make(map[string]struct{}),
	}
	s.engine.GET("/status", s.handleStatus)
	s.engine.POST("/session", s.handleNewSession)
	s.engine.POST("/session/:id/url", s.handleNavigate)
	s.engine.DELETE("/session/:id", s.handleDeleteSession)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// ActiveSessions returns the number of sessions opened and not yet deleted.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CreatedSessions returns the number of sessions ever opened.
func (s *Server) CreatedSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// Navigations returns every URL successfully navigated to, in order.
func (s *Server) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigations...)
}

// LastCapabilities returns the raw body of the most recent new-session request.
func (s *Server) LastCapabilities() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCapabilities
}

// SetFailNavigate makes every navigation return an unknown error.
func (s *Server) SetFailNavigate(fail bool) {
	s.mu.Lock()
	s.failNavigate = fail
	s.mu.Unlock()
}

// SetRejectSessions makes new-session requests fail with "session not created".
func (s *Server) SetRejectSessions(reject bool) {
	s.mu.Lock()
	s.rejectSessions = reject
	s.mu.Unlock()
}

// SetFailClose makes session deletion fail. The session is still forgotten.
func (s *Server) SetFailClose(fail bool) {
	s.mu.Lock()
	s.failClose = fail
	s.mu.Unlock()
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"value": gin.H{"error": code, "message": message, "stacktrace": ""}})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"value": gin.H{"ready": true, "message": "fake driver ready"}})
}

func (s *Server) handleNewSession(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid argument", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCapabilities = body
	if s.rejectSessions {
		writeError(c, http.StatusInternalServerError, "session not created", "rejected by test")
		return
	}

	id := uuid.NewString()
	s.sessions[id] = struct{}{}
	s.created++
	c.JSON(http.StatusOK, gin.H{"value": gin.H{
		"sessionId":    id,
		"capabilities": gin.H{"browserName": "chrome"},
	}})
}

func (s *Server) handleNavigate(c *gin.Context) {
	var body struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid argument", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[c.Param("id")]; !ok {
		writeError(c, http.StatusNotFound, "invalid session id", "no such session")
		return
	}
	if u, err := url.Parse(body.URL); err != nil || u.Scheme == "" {
		writeError(c, http.StatusBadRequest, "invalid argument", "invalid URL: "+body.URL)
		return
	}
	if s.failNavigate {
		writeError(c, http.StatusInternalServerError, "unknown error", "net::ERR_NAME_NOT_RESOLVED")
		return
	}
	s.navigations = append(s.navigations, body.URL)
	c.JSON(http.StatusOK, gin.H{"value": nil})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if _, ok := s.sessions[id]; !ok {
		writeError(c, http.StatusNotFound, "invalid session id", "no such session")
		return
	}
	delete(s.sessions, id)
	if s.failClose {
		writeError(c, http.StatusInternalServerError, "unknown error", "close failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": nil})
}
