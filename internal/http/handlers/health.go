package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FeedStats reports connected admin panel clients.
type FeedStats interface {
	Len() int
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store     Pinger
	triggers  TriggerInfo
	feed      FeedStats
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler. triggers and feed may be nil.
func NewHealthHandler(store Pinger, triggers TriggerInfo, feed FeedStats, version string) *HealthHandler {
	return &HealthHandler{
		store:     store,
		triggers:  triggers,
		feed:      feed,
		startTime: time.Now(),
		version:   version,
	}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Triggers  map[string]string `json:"triggers,omitempty"`
}

// Liveness returns simple alive status (for k8s liveness probe)
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness checks the store and lists when each trigger fires next.
// Only the store decides the status code.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    map[string]string{"store": "healthy"},
	}
	code := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Checks["store"] = "unhealthy: " + err.Error()
		code = http.StatusServiceUnavailable
	}

	if h.feed != nil {
		resp.Checks["event_clients"] = strconv.Itoa(h.feed.Len())
	}
	if h.triggers != nil {
		resp.Triggers = make(map[string]string)
		for _, name := range h.triggers.Names() {
			next, ok := h.triggers.Next(name)
			if !ok || next.IsZero() {
				resp.Triggers[name] = "not scheduled"
				continue
			}
			resp.Triggers[name] = next.UTC().Format(time.RFC3339)
		}
	}

	c.JSON(code, resp)
}

// Health is the combined endpoint used by uptime checks.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "store unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.version,
	})
}
