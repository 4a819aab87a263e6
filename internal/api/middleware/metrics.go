package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// RequestObserver records handled requests, typically for metrics.
type RequestObserver interface {
	ObserveRequest(method, route, status string)
}

// Requests returns a middleware counting requests per route template.
func Requests(observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observer.ObserveRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()))
	}
}
