package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/entforge/entforge/internal/ownerctx"
)

// RequestLogger logs each request with safe, low-cardinality fields.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}

		if lastErr := c.Errors.Last(); lastErr != nil {
			errorType, errorCode := classifyErrorForLog(lastErr.Err)
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
		}

		switch {
		case route == "/metrics" || route == "/health":
			log.Debug("http_request", fields...)
		case status >= http.StatusInternalServerError:
			log.Error("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}

// OwnerContext resolves the owner_key path parameter and stores the owner id
// in the request context. Every owner-scoped route runs behind it.
func (s *Server) OwnerContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.Param("owner_key"))
		if key == "" {
			AbortWithError(c, invalidRequestError())
			return
		}

		owner, err := s.ownerSvc.GetByKey(c.Request.Context(), key)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := ownerctx.WithOwnerID(c.Request.Context(), owner.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Set("owner_key", owner.Key)
		c.Next()
	}
}
