package http

import (
	"time"

	"bookworms/internal/http/handlers"
	"bookworms/internal/http/middleware"
	"bookworms/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the collaborators of the admin API.
type Deps struct {
	Handler       *handlers.Handler
	Health        *handlers.HealthHandler
	Hub           *ws.Hub
	AllowedOrigin string
	RateLimit     int
	RateWindow    time.Duration
	AuthRateLimit int
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics(), middleware.CORS(d.AllowedOrigin))
	RegisterRoutes(r, d)
	return r
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	rateLimit := d.RateLimit
	if rateLimit <= 0 {
		rateLimit = 60
	}
	rateWindow := d.RateWindow
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}
	authRateLimit := d.AuthRateLimit
	if authRateLimit <= 0 {
		authRateLimit = 5
	}

	// Health checks (no rate limiting)
	r.GET("/health", d.Health.Health)
	r.GET("/healthz", d.Health.Liveness)
	r.GET("/readyz", d.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middleware.RateLimit("api", rateLimit, rateWindow))
	registerAPIRoutes(api, d.Handler, authRateLimit, rateWindow)

	// admin event feed; the token travels in the query string
	if d.Hub != nil {
		api.GET("/events", ws.HandleWS(d.Hub, d.AllowedOrigin))
	}
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, authRateLimit int, authRateWindow time.Duration) {
	// Auth
	api.POST("/auth", middleware.RateLimit("auth", authRateLimit, authRateWindow), h.Auth)

	admin := api.Group("")
	admin.Use(middleware.JWT())

	admin.GET("/me", h.Me)
	admin.GET("/stats", h.Stats)

	// Tasks
	admin.GET("/tasks", h.ListTasks)
	admin.POST("/tasks", h.CreateTask)
	admin.GET("/tasks/:id", h.GetTask)
	admin.PUT("/tasks/:id", h.UpdateTask)
	admin.DELETE("/tasks/:id", h.DeleteTask)
	admin.GET("/tasks/:id/completions", h.TaskCompletions)

	// Users
	admin.GET("/users", h.ListUsers)
	admin.POST("/users/:id/mark-payment", h.MarkPayment)
	admin.DELETE("/users/:id", h.DeleteUser)

	// Triggers
	admin.GET("/triggers", h.ListTriggers)
	admin.POST("/triggers/:name", h.RunTrigger)
}
