package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGroup = -100123

// fakeBotAPI answers getMe and getChatMember like the Bot API does.
// members maps user_id to the chat member object; unknown ids get "user not found".
func fakeBotAPI(t *testing.T, members map[string]string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		reply := func(result string) {
			_, _ = w.Write([]byte(`{"ok":true,"result":` + result + `}`))
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			reply(`{"id":1,"is_bot":true,"first_name":"Book Worms","username":"bookworms_bot"}`)
		case strings.HasSuffix(r.URL.Path, "/getChatMember"):
			m, ok := members[r.Form.Get("user_id")]
			if !ok {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"ok": false, "error_code": 400, "description": "Bad Request: user not found",
				})
				return
			}
			reply(m)
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": false, "error_code": 500, "description": "Internal Server Error",
			})
		}
	}))
	t.Cleanup(srv.Close)

	c, err := newClient("123:abc", srv.URL+"/bot%s/%s", testGroup, nil, 5*time.Second)
	require.NoError(t, err)
	return c
}

func member(id, status string, isMember bool) string {
	b, _ := json.Marshal(map[string]any{
		"user":      map[string]any{"id": json.Number(id), "is_bot": false, "first_name": "u" + id},
		"status":    status,
		"is_member": isMember,
	})
	return string(b)
}

func TestClient_IsMember(t *testing.T) {
	c := fakeBotAPI(t, map[string]string{
		"10": member("10", "member", false),
		"11": member("11", "administrator", false),
		"12": member("12", "restricted", true),
		"13": member("13", "restricted", false),
		"14": member("14", "left", false),
		"15": member("15", "kicked", false),
	})
	ctx := context.Background()

	for id, want := range map[string]bool{
		"10": true, "11": true, "12": true,
		"13": false, "14": false, "15": false,
		"99": false, // never joined
	} {
		got, err := c.IsMember(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, want, got, id)
	}

	_, err := c.IsMember(ctx, "not-a-number")
	assert.Error(t, err)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(errors.New("Bad Request: user not found")))
	assert.True(t, isNotFound(errors.New("Bad Request: PARTICIPANT_ID_INVALID")))
	assert.True(t, isNotFound(errors.New("Bad Request: member not found")))
	assert.False(t, isNotFound(errors.New("Forbidden: bot was kicked from the group chat")))
}
