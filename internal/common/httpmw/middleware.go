package httpmw

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/driftcode/orchestra/internal/common/apperrors"
	"github.com/driftcode/orchestra/internal/common/logger"
)

// RequestID assigns a UUID to each request, echoed back in the
// X-Request-ID response header, for correlating logs and traces.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Recovery recovers from panics, logs them, and returns a generic
// internal-error response. Panic details never reach the caller.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{
						"code":    apperrors.ErrCodeInternalError,
						"message": "an internal server error occurred",
					},
				})
			}
		}()
		c.Next()
	}
}

// ErrorHandler translates the last gin error into the shared AppError
// JSON envelope.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		status := apperrors.GetHTTPStatus(err)
		code := apperrors.ErrCodeInternalError
		message := "an internal server error occurred"

		var appErr *apperrors.AppError
		if as, ok := err.(*apperrors.AppError); ok {
			appErr = as
		}
		if appErr != nil {
			code = appErr.Code
			message = appErr.Message
		} else {
			log.Error("unhandled error", zap.Error(err))
		}

		body := gin.H{"error": gin.H{"code": code, "message": message}}
		c.JSON(status, body)
	}
}

// CORS adds permissive CORS headers suitable for a programmatic API
// consumed from arbitrary origins.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Auth enforces the static API key on every request when required.
// Comparison is constant-time so that key-guessing cannot be sped up by
// timing the rejection. Failures are logged with the remote address but
// never the presented key material.
func Auth(requiredKey string, required bool, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !required {
			c.Next()
			return
		}

		presented := c.GetHeader("X-API-Key")
		if presented == "" {
			if auth := c.GetHeader("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
				presented = auth[7:]
			}
		}

		if !constantTimeEqual(presented, requiredKey) {
			log.Warn("rejected unauthenticated request",
				zap.String("remote_addr", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    apperrors.ErrCodeUnauthorized,
					"message": "missing or invalid API key",
				},
			})
			return
		}
		c.Next()
	}
}

// constantTimeEqual compares two strings in time independent of where
// they first differ, to prevent a timing side-channel on the API key.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// Still perform a comparison of equal length to avoid a
		// length-based timing signal, then report unequal.
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RateLimit applies a per-principal token-bucket limiter. The principal
// key is the X-API-Key header value, or the client IP when that header
// is absent (including requests that present their key as a Bearer
// token).
func RateLimit(requestsPerMinute int) gin.HandlerFunc {
	limiters := newLimiterSet(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute)

	return func(c *gin.Context) {
		principal := c.GetHeader("X-API-Key")
		if principal == "" {
			principal = c.ClientIP()
		}

		if !limiters.allow(principal) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    apperrors.ErrCodeCapacity,
					"message": "rate limit exceeded, please try again later",
				},
			})
			return
		}
		c.Next()
	}
}
