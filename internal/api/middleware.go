package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nekogravitycat/space-reservation-backend/internal/auth"
	"github.com/nekogravitycat/space-reservation-backend/internal/metrics"
	"github.com/nekogravitycat/space-reservation-backend/internal/user"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger attaches a request-scoped logger to the request context and
// logs one line per request once the handler chain returns.
func RequestLogger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)

		logger := base.With().Str("request_id", reqID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.IncHTTP(route, c.Request.Method, strconv.Itoa(status))

		ev := logger.Info()
		if status >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("user_id", auth.GetUserID(c)).
			Msg("request")
	}
}

// Authenticate validates the bearer token and loads the caller, rejecting
// deleted or deactivated accounts. It records the admin flag for later checks.
func Authenticate(jwtManager *auth.JWTManager, userService user.Service) gin.HandlerFunc {
	verify := auth.AuthRequired(jwtManager)
	return func(c *gin.Context) {
		verify(c)
		if c.IsAborted() {
			return
		}

		u, err := userService.GetByID(c.Request.Context(), auth.GetUserID(c))
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
				return
			}
			zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to load authenticated user")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if !u.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": user.ErrInactiveUser.Message})
			return
		}

		auth.SetSystemAdmin(c, u.IsSystemAdmin)
		c.Next()
	}
}

// RequireSystemAdmin ensures the authenticated user is a system admin.
// It MUST be used after Authenticate.
func RequireSystemAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth.GetUserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !auth.IsSystemAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: system admin access required"})
			return
		}
		c.Next()
	}
}
