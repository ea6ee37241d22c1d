package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouteOther labels requests outside the admin route set.
const RouteOther = "other"

var adminRoutes = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
	"/cookies": {},
}

// AdminRoute maps a matched gin route onto the bounded admin label set.
func AdminRoute(fullPath string) string {
	if _, ok := adminRoutes[fullPath]; ok {
		return fullPath
	}
	return RouteOther
}

// AdminAccess logs and counts every admin request of one node.
// Scrapes of /metrics log at trace so they stay out of debug output.
func AdminAccess(logger zerolog.Logger, node, role string) gin.HandlerFunc {
	logger = logger.With().Str("node", node).Str("role", role).Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := AdminRoute(c.FullPath())
		status := c.Writer.Status()
		elapsed := time.Since(start)
		RecordHTTPRequest(node, role, route, status, elapsed)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case route == "/metrics":
			event = logger.Trace()
		default:
			event = logger.Debug()
		}
		event.
			Str("route", route).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("admin request")
	}
}
