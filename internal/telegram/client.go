// Package telegram talks to the Bot API: messages, bans and membership lookups.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bookworms/internal/logger"
	"bookworms/internal/notify"
	"bookworms/internal/roster"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client wraps the Bot API for one group. It implements notify.Transport,
// penalty.Expeller and roster.Directory.
type Client struct {
	api      *tgbotapi.BotAPI
	groupID  int64
	extraIDs []int64 // configured admins who may not be group administrators
	log      *slog.Logger
}

// NewClient authorizes the bot. timeout bounds every HTTP request to the API.
func NewClient(token string, groupID int64, extraAdmins []int64, timeout time.Duration) (*Client, error) {
	return newClient(token, tgbotapi.APIEndpoint, groupID, extraAdmins, timeout)
}

func newClient(token, endpoint string, groupID int64, extraAdmins []int64, timeout time.Duration) (*Client, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, err
	}

	log := logger.With("component", "telegram")
	log.Info("bot authorized", "username", api.Self.UserName)

	return &Client{api: api, groupID: groupID, extraIDs: extraAdmins, log: log}, nil
}

// API exposes the underlying bot for the update loop.
func (c *Client) API() *tgbotapi.BotAPI { return c.api }

// GroupID is the managed group chat.
func (c *Client) GroupID() int64 { return c.groupID }

// GroupRecipient is the group chat id as a notify recipient.
func (c *Client) GroupRecipient() string { return strconv.FormatInt(c.groupID, 10) }

// call runs a blocking Bot API call and gives up when ctx ends.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Send implements notify.Transport.
func (c *Client) Send(ctx context.Context, recipient string, msg notify.Message) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q", recipient)
	}
	m := tgbotapi.NewMessage(chatID, msg.Text)
	if msg.HTML {
		m.ParseMode = tgbotapi.ModeHTML
	}
	m.DisableWebPagePreview = true

	_, err = call(ctx, func() (tgbotapi.Message, error) { return c.api.Send(m) })
	return err
}

// Expel bans the member from the group.
func (c *Client) Expel(ctx context.Context, externalID string) error {
	userID, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q", externalID)
	}
	cfg := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: c.groupID, UserID: userID},
	}
	_, err = call(ctx, func() (*tgbotapi.APIResponse, error) { return c.api.Request(cfg) })
	if err != nil {
		return err
	}
	c.log.Info("member banned", "external_id", externalID)
	return nil
}

// IsMember implements roster.Directory.
func (c *Client) IsMember(ctx context.Context, externalID string) (bool, error) {
	userID, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("invalid user id %q", externalID)
	}
	cfg := tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: c.groupID, UserID: userID},
	}
	m, err := call(ctx, func() (tgbotapi.ChatMember, error) { return c.api.GetChatMember(cfg) })
	if err != nil {
		// a user who never joined is reported as an API error, not as "left"
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return isActive(m), nil
}

// ListMembers implements roster.Directory. The Bot API cannot enumerate ordinary
// members, so this returns the group administrators plus configured admins.
func (c *Client) ListMembers(ctx context.Context) ([]roster.Member, error) {
	cfg := tgbotapi.ChatAdministratorsConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: c.groupID}}
	admins, err := call(ctx, func() ([]tgbotapi.ChatMember, error) { return c.api.GetChatAdministrators(cfg) })
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	var out []roster.Member
	for _, a := range admins {
		if a.User == nil || a.User.IsBot {
			continue
		}
		seen[a.User.ID] = true
		out = append(out, roster.Member{
			ExternalID: strconv.FormatInt(a.User.ID, 10),
			Name:       DisplayName(a.User),
			IsAdmin:    true,
		})
	}
	for _, id := range c.extraIDs {
		if !seen[id] {
			out = append(out, roster.Member{ExternalID: strconv.FormatInt(id, 10), IsAdmin: true})
		}
	}
	return out, nil
}

func isActive(m tgbotapi.ChatMember) bool {
	switch m.Status {
	case "creator", "administrator", "member":
		return true
	case "restricted":
		// restrictions outlive membership; is_member tells whether they are still in
		return m.IsMember
	default: // left, kicked
		return false
	}
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user not found") || strings.Contains(msg, "member not found") ||
		strings.Contains(msg, "participant_id_invalid")
}

// DisplayName picks the best human name for a Telegram user.
func DisplayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	if name == "" {
		name = strconv.FormatInt(u.ID, 10)
	}
	return name
}
