package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type triggerView struct {
	Name string     `json:"name"`
	Next *time.Time `json:"next,omitempty"`
}

func (h *Handler) ListTriggers(c *gin.Context) {
	if h.triggers == nil {
		c.JSON(http.StatusOK, []triggerView{})
		return
	}
	names := h.triggers.Names()
	out := make([]triggerView, 0, len(names))
	for _, name := range names {
		v := triggerView{Name: name}
		if next, ok := h.triggers.Next(name); ok && !next.IsZero() {
			v.Next = &next
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, out)
}

// RunTrigger runs a trigger now and waits for it to finish.
func (h *Handler) RunTrigger(c *gin.Context) {
	res, err := h.admin.RunTrigger(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}

	body := gin.H{
		"trigger":  res.Trigger,
		"run_id":   res.RunID,
		"duration": res.Duration.String(),
		"success":  res.Err == nil,
	}
	if res.Err != nil {
		body["error"] = res.Err.Error()
	}
	c.JSON(http.StatusOK, body)
}
