package httpmw

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kandev/driverd/internal/common/logger"
)

const (
	// RequestIDHeader is echoed back on every response.
	RequestIDHeader = "X-Request-ID"
	// RequestIDContextKey is the gin context key holding the request ID.
	RequestIDContextKey = "request_id"
)

// RequestID assigns each request an ID, reusing an inbound X-Request-ID when
// present, and stores it on both the gin context and the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDContextKey, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
