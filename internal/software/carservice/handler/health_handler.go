package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ----- Handler: GET /healthz -----

func (handler *CarHTTPHandler) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(handler.probes))
	for name, probe := range handler.probes {
		if err := probe(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
		handler.logger.Warn(ctx, "health_degraded", "Health check failed", map[string]any{"checks": checks})
	}
	c.JSON(status, gin.H{"status": overall, "checks": checks})
}
