package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/workcell-kpi/internal/config"
)

// CORSMiddleware answers cross-origin requests from the dashboard frontends.
// Origins must match exactly; there is no wildcard.
func CORSMiddleware(corsConfig config.CORSConfig) gin.HandlerFunc {
	methods := "GET, OPTIONS"
	if len(corsConfig.AllowedMethods) > 0 {
		methods = strings.Join(corsConfig.AllowedMethods, ", ")
	}
	headers := "Origin, Content-Type, Accept, Authorization, X-Request-ID"
	if len(corsConfig.AllowedHeaders) > 0 {
		headers = strings.Join(corsConfig.AllowedHeaders, ", ")
	}
	exposed := "X-Request-ID"
	if len(corsConfig.ExposedHeaders) > 0 {
		exposed = strings.Join(corsConfig.ExposedHeaders, ", ")
	}
	maxAge := "600"
	if corsConfig.MaxAge > 0 {
		maxAge = strconv.Itoa(corsConfig.MaxAge)
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && isOriginAllowed(origin, corsConfig.AllowedOrigins) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", headers)
			c.Header("Access-Control-Expose-Headers", exposed)
			c.Header("Access-Control-Max-Age", maxAge)
			if corsConfig.AllowCredentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if origin == strings.TrimRight(allowed, "/") {
			return true
		}
	}
	return false
}
