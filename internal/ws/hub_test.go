package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bookworms/internal/domain"
	"bookworms/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_FeedDeliversEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service.InitJWT("test-secret")
	hub := NewHub()

	r := gin.New()
	r.GET("/api/events", HandleWS(hub, ""))
	srv := httptest.NewServer(r)
	defer srv.Close()

	token, err := service.GenerateJWT(42, true)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(domain.NewEvent(domain.EventTaskCreated, map[string]any{"task_id": 7}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev domain.Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, domain.EventTaskCreated, ev.Type)
	assert.EqualValues(t, 7, ev.Details["task_id"])
}

func TestHub_RejectsNonAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service.InitJWT("test-secret")
	hub := NewHub()

	r := gin.New()
	r.GET("/api/events", HandleWS(hub, ""))
	srv := httptest.NewServer(r)
	defer srv.Close()

	token, err := service.GenerateJWT(42, false)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events?token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
