package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lexsign/pkg/metrics"
)

type MetricsMiddleware struct {
	collector *metrics.MetricsCollector
}

func NewMetricsMiddleware(collector *metrics.MetricsCollector) *MetricsMiddleware {
	return &MetricsMiddleware{
		collector: collector,
	}
}

// Collect records request counts by route and status plus latency.
func (mm *MetricsMiddleware) Collect() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		mm.collector.IncrementCounter("http.requests",
			map[string]string{"route": route})
		mm.collector.IncrementCounter("http.status_"+strconv.Itoa(c.Writer.Status()), nil)
		mm.collector.ObserveLatency("http."+route, duration)
	}
}
