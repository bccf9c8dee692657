package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/traffic-advisor/pkg/httpclient"
	"github.com/richxcame/traffic-advisor/pkg/logger"
)

const (
	// CorrelationIDHeader is the header name for correlation ID
	CorrelationIDHeader = httpclient.CorrelationIDHeader
	// CorrelationIDKey is the gin context key for correlation ID
	CorrelationIDKey = "correlation_id"
)

// CorrelationID keeps a well-formed incoming X-Request-ID or issues a new one,
// and makes it visible to handlers, logs and outbound calls.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID, ok := incomingCorrelationID(c)
		if !ok {
			correlationID = uuid.NewString()
		}

		c.Set(CorrelationIDKey, correlationID)

		ctx := logger.ContextWithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Writer.Header().Set(CorrelationIDHeader, correlationID)

		c.Next()
	}
}

// GetCorrelationID extracts correlation ID from gin context
func GetCorrelationID(c *gin.Context) string {
	if id, exists := c.Get(CorrelationIDKey); exists {
		if correlationID, ok := id.(string); ok {
			return correlationID
		}
	}
	return logger.CorrelationIDFromContext(c.Request.Context())
}

func incomingCorrelationID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.GetHeader(CorrelationIDHeader))
	if id == "" {
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}
