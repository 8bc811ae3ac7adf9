// Package api exposes a small read-only status surface over the running
// monitor.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/volpulse/volpulse/internal/services"
)

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// SetupRoutes registers the health and status endpoints.
func SetupRoutes(router *gin.Engine, monitor *services.Monitor) {
	router.GET("/health", healthCheck)
	router.GET("/status", monitorStatus(monitor))
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
	})
}

func monitorStatus(monitor *services.Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := monitor.Status()
		if status.LastTickAt.IsZero() {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "warming_up",
			})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}
