// Package handler provides HTTP request handlers for the application.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is a dependency reachable over the network.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports the state of a long-lived connection.
type HealthChecker interface {
	IsHealthy() bool
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	database  Pinger
	redis     Pinger
	publisher HealthChecker
}

// NewHealthHandler creates a new HealthHandler instance. A nil publisher
// means events are disabled and is not checked.
func NewHealthHandler(database, redis Pinger, publisher HealthChecker) *HealthHandler {
	return &HealthHandler{
		database:  database,
		redis:     redis,
		publisher: publisher,
	}
}

// LivenessProbe checks if the application is running.
func (h *HealthHandler) LivenessProbe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
		"time":   time.Now(),
	})
}

// ReadinessProbe checks if the application is ready to serve traffic.
func (h *HealthHandler) ReadinessProbe(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	body := gin.H{"status": "UP", "time": time.Now()}
	status := http.StatusOK

	for name, p := range map[string]Pinger{"database": h.database, "redis": h.redis} {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			body[name] = "unhealthy"
			body[name+"_error"] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = "healthy"
	}

	if h.publisher != nil {
		if h.publisher.IsHealthy() {
			body["rabbitmq"] = "healthy"
		} else {
			body["rabbitmq"] = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	if status != http.StatusOK {
		body["status"] = "DOWN"
	}
	c.JSON(status, body)
}
