package handlers

import (
	"net/http"
	"strings"
	"time"

	"bookworms/internal/calendar"

	"github.com/gin-gonic/gin"
)

type TaskRequest struct {
	Description   string `json:"description" binding:"required"`
	ScheduledDate string `json:"scheduled_date" binding:"required"`
}

// parse validates the body; the date may also carry a time part, which is ignored.
func (r *TaskRequest) parse() (time.Time, string, bool) {
	desc := strings.TrimSpace(r.Description)
	if desc == "" {
		return time.Time{}, "", false
	}
	s := strings.TrimSpace(r.ScheduledDate)
	if len(s) > 10 {
		s = s[:10]
	}
	date, err := calendar.ParseDate(s)
	if err != nil {
		return time.Time{}, "", false
	}
	return date, desc, true
}

func (h *Handler) ListTasks(c *gin.Context) {
	tasks, err := h.tasks.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *Handler) GetTask(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	task, err := h.tasks.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) CreateTask(c *gin.Context) {
	var req TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description and scheduled_date are required"})
		return
	}
	date, desc, ok := req.parse()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid description or scheduled_date (YYYY-MM-DD)"})
		return
	}

	task, err := h.tasks.Create(c.Request.Context(), date, desc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *Handler) UpdateTask(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description and scheduled_date are required"})
		return
	}
	date, desc, ok := req.parse()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid description or scheduled_date (YYYY-MM-DD)"})
		return
	}

	task, err := h.tasks.Update(c.Request.Context(), id, date, desc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) DeleteTask(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if _, err := h.tasks.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) TaskCompletions(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	rows, err := h.tasks.Completions(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
