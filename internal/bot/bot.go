// Package bot runs the Telegram update loop for group members and admins.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"bookworms/internal/domain"
	"bookworms/internal/logger"
	"bookworms/internal/service"
	"bookworms/internal/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	buttonStreak = "Davomiylik"
	buttonStats  = "Statistika"

	handlerTimeout = 30 * time.Second
)

// Sender delivers replies. *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot handles member commands, admin commands and group join/leave events.
type Bot struct {
	api       *tgbotapi.BotAPI
	sender    Sender
	members   *service.MemberService
	admin     *service.AdminService
	groupID   int64
	webAppURL string
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	log       *slog.Logger
}

// New creates the bot on an authorized API client.
func New(api *tgbotapi.BotAPI, members *service.MemberService, admin *service.AdminService, groupID int64, webAppURL string) *Bot {
	return &Bot{
		api:       api,
		sender:    api,
		members:   members,
		admin:     admin,
		groupID:   groupID,
		webAppURL: webAppURL,
		stopCh:    make(chan struct{}),
		log:       logger.With("component", "bot"),
	}
}

// Start listens for updates until Stop is called.
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message"}

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("starting bot update loop")

	for {
		select {
		case <-b.stopCh:
			b.log.Info("stopping bot update loop")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}

			b.wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer b.wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
				defer cancel()
				for _, reply := range b.handle(ctx, msg) {
					if _, err := b.sender.Send(reply); err != nil {
						b.log.Error("error sending message", "chat_id", msg.Chat.ID, "error", err)
					}
				}
			}(update.Message)
		}
	}
}

// Stop ends the update loop and waits for in-flight handlers.
func (b *Bot) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		b.log.Info("stopping bot...")
		close(b.stopCh)
		b.api.StopReceivingUpdates()
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info("bot stopped gracefully")
	case <-ctx.Done():
		b.log.Warn("bot shutdown timeout, some handlers may not have completed")
	}
}

// handle turns one message into the replies to send.
func (b *Bot) handle(ctx context.Context, msg *tgbotapi.Message) []tgbotapi.MessageConfig {
	switch {
	case len(msg.NewChatMembers) > 0:
		return b.handleJoined(ctx, msg)
	case msg.LeftChatMember != nil:
		b.handleLeft(ctx, msg)
		return nil
	case msg.IsCommand():
		return b.handleCommand(ctx, msg)
	}

	switch strings.TrimSpace(msg.Text) {
	case buttonStreak:
		return b.reply(msg, b.handleStats(ctx, msg, false))
	case buttonStats:
		return b.reply(msg, b.handleStats(ctx, msg, true))
	}
	return nil
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) []tgbotapi.MessageConfig {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.reply(msg, helpMessage)
	case "done", "vazifa":
		return b.reply(msg, b.handleDone(ctx, msg))
	case "stats":
		return b.reply(msg, b.handleStats(ctx, msg, true))
	case "sync_users":
		return b.reply(msg, b.handleSync(ctx, msg))
	case "summary":
		return b.reply(msg, b.handleSummary(ctx, msg))
	}
	return nil
}

func (b *Bot) handleJoined(ctx context.Context, msg *tgbotapi.Message) []tgbotapi.MessageConfig {
	if msg.Chat == nil || msg.Chat.ID != b.groupID {
		return nil
	}
	var out []tgbotapi.MessageConfig
	for i := range msg.NewChatMembers {
		m := &msg.NewChatMembers[i]
		if m.IsBot {
			continue
		}
		name := telegram.DisplayName(m)
		if _, _, err := b.members.Joined(ctx, strconv.FormatInt(m.ID, 10), name); err != nil {
			b.log.Error("register joined member", "tg_id", m.ID, "error", err)
			continue
		}
		out = append(out, b.reply(msg, welcomeMessage(name))...)
	}
	return out
}

func (b *Bot) handleLeft(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.Chat.ID != b.groupID || msg.LeftChatMember.IsBot {
		return
	}
	id := strconv.FormatInt(msg.LeftChatMember.ID, 10)
	if _, err := b.members.Left(ctx, id); err != nil {
		b.log.Error("remove departed member", "tg_id", id, "error", err)
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) []tgbotapi.MessageConfig {
	id := strconv.FormatInt(msg.From.ID, 10)

	isAdmin, err := b.members.IsAdmin(ctx, id)
	if err != nil {
		b.log.Error("admin check failed", "tg_id", id, "error", err)
		return b.reply(msg, msgGenericError)
	}
	if isAdmin {
		if b.webAppURL == "" {
			return b.reply(msg, "Admin paneli sozlanmagan.")
		}
		if msg.Chat.IsPrivate() {
			r := tgbotapi.NewMessage(msg.Chat.ID, "Admin panelini ochish")
			r.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Admin panelini ochish", b.webAppURL)),
			)
			return []tgbotapi.MessageConfig{r}
		}
		return b.reply(msg, "Admin paneli: "+html.EscapeString(b.webAppURL))
	}

	_, _, err = b.members.Register(ctx, id, telegram.DisplayName(msg.From))
	if errors.Is(err, service.ErrNotMember) {
		return b.reply(msg, "Siz guruh a'zosi emassiz. Iltimos, avval guruhga qo'shiling.")
	}
	if err != nil {
		b.log.Error("register member", "tg_id", id, "error", err)
		return b.reply(msg, msgGenericError)
	}

	r := tgbotapi.NewMessage(msg.Chat.ID, "Xush kelibsiz Book Worms ga!")
	kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(buttonStreak),
		tgbotapi.NewKeyboardButton(buttonStats),
	))
	kb.ResizeKeyboard = true
	r.ReplyMarkup = kb
	return []tgbotapi.MessageConfig{r}
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) string {
	id := strconv.FormatInt(msg.From.ID, 10)
	res, err := b.members.CompleteToday(ctx, id, telegram.DisplayName(msg.From))
	switch {
	case err == nil:
		return completionMessage(res)
	case errors.Is(err, service.ErrNotMember):
		return "Siz guruh a'zosi emassiz. Botdan foydalana olmaysiz."
	case errors.Is(err, domain.ErrNoSuchTask), errors.Is(err, domain.ErrTaskNotOpen):
		return "Bugun uchun vazifa mavjud emas."
	case errors.Is(err, domain.ErrAlreadyCompleted):
		return "Siz bu vazifani allaqachon belgiladingiz!"
	}
	b.log.Error("complete task", "tg_id", id, "error", err)
	return msgGenericError
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message, full bool) string {
	id := strconv.FormatInt(msg.From.ID, 10)
	st, err := b.members.Stats(ctx, id)
	switch {
	case err == nil:
		return statsMessage(st, full)
	case errors.Is(err, service.ErrNotMember):
		return "Siz guruh a'zosi emassiz."
	case errors.Is(err, domain.ErrNoSuchUser):
		return "Siz ro'yxatdan o'tmagansiz. /start buyrug'ini yuboring."
	}
	b.log.Error("member stats", "tg_id", id, "error", err)
	return msgGenericError
}

func (b *Bot) handleSync(ctx context.Context, msg *tgbotapi.Message) string {
	if ok, deny := b.requireAdmin(ctx, msg); !ok {
		return deny
	}
	rep, err := b.members.Sync(ctx)
	if err != nil {
		b.log.Error("sync users", "error", err)
		return msgGenericError
	}
	return fmt.Sprintf("Foydalanuvchilar sinxronlandi.\nTekshirildi: %d\nO'chirildi: %d\nXatolar: %d",
		rep.Checked, len(rep.Removed), len(rep.Failed))
}

func (b *Bot) handleSummary(ctx context.Context, msg *tgbotapi.Message) string {
	if ok, deny := b.requireAdmin(ctx, msg); !ok {
		return deny
	}
	if b.admin == nil {
		return msgGenericError
	}
	st, err := b.admin.GetStats(ctx)
	if err != nil {
		b.log.Error("group stats", "error", err)
		return msgGenericError
	}
	return summaryMessage(st)
}

func (b *Bot) requireAdmin(ctx context.Context, msg *tgbotapi.Message) (bool, string) {
	ok, err := b.members.IsAdmin(ctx, strconv.FormatInt(msg.From.ID, 10))
	if err != nil {
		b.log.Error("admin check failed", "tg_id", msg.From.ID, "error", err)
		return false, msgGenericError
	}
	if !ok {
		return false, "Faqat adminlar bu buyruqni ishlatishi mumkin."
	}
	return true, ""
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) []tgbotapi.MessageConfig {
	r := tgbotapi.NewMessage(msg.Chat.ID, text)
	r.ParseMode = tgbotapi.ModeHTML
	r.ReplyToMessageID = msg.MessageID
	return []tgbotapi.MessageConfig{r}
}
