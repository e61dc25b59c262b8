package middleware

import (
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

// SentryHub gives every request its own clone of hub on the request context,
// tagged with the request id. A nil hub disables the middleware.
func SentryHub(hub *sentry.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hub == nil {
			c.Next()
			return
		}

		reqHub := hub.Clone()
		reqHub.Scope().SetTag("request_id", c.GetString(CtxRequestID))
		reqHub.Scope().SetRequest(c.Request)

		c.Request = c.Request.WithContext(sentry.SetHubOnContext(c.Request.Context(), reqHub))
		c.Next()
	}
}
