package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bookworms/internal/domain"
	"bookworms/internal/logger"
	"bookworms/internal/scheduler"
	"bookworms/internal/service"
	"bookworms/internal/telegram"

	"github.com/gin-gonic/gin"
)

// TriggerInfo lists the registered triggers and their next firing.
type TriggerInfo interface {
	Names() []string
	Next(name string) (time.Time, bool)
}

type Handler struct {
	tasks    *service.TaskService
	admin    *service.AdminService
	auth     *service.AuthService
	triggers TriggerInfo
}

func NewHandler(tasks *service.TaskService, admin *service.AdminService, auth *service.AuthService, triggers TriggerInfo) *Handler {
	return &Handler{tasks: tasks, admin: admin, auth: auth, triggers: triggers}
}

// getUserID extracts the Telegram user id set by the JWT middleware
func getUserID(c *gin.Context) (int64, bool) {
	uidVal, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	switch v := uidVal.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// writeError maps invariant violations to client errors. Anything else is
// logged and reported as a generic failure.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrPastDate), errors.Is(err, domain.ErrTaskNotOpen):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoSuchTask), errors.Is(err, domain.ErrNoSuchUser),
		errors.Is(err, domain.ErrNoSuchCompletion), errors.Is(err, scheduler.ErrUnknownTrigger):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateDate), errors.Is(err, domain.ErrAlreadyCompleted),
		errors.Is(err, domain.ErrTaskHasProgress), errors.Is(err, scheduler.ErrAlreadyRunning):
		status = http.StatusConflict
	case errors.Is(err, telegram.ErrInvalidInitData):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrNotAdmin):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, scheduler.ErrStopped):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
