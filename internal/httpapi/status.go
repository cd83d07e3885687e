package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendguard/internal/session"
)

// Status exposes the worker's health, metrics and live sessions.
type Status struct {
	Registry *session.Registry
	Gatherer prometheus.Gatherer
	Checks   []Check
}

// Register mounts the status routes on r.
func (s *Status) Register(r *gin.Engine) {
	r.GET("/healthz", healthHandler(s.Checks))
	s.RegisterMetrics(r)
	r.GET("/v1/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": s.Registry.Snapshot()})
	})
}

// RegisterMetrics mounts only the Prometheus scrape endpoint.
func (s *Status) RegisterMetrics(r *gin.Engine) {
	g := s.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}
