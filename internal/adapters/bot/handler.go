package bot

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"tg-movie-bot/internal/adapters/telegram"
	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
	"tg-movie-bot/internal/usecase/conversation"
)

// updateTTL время, в течение которого повторная доставка апдейта игнорируется.
const updateTTL = 10 * time.Minute

const (
	msgWelcome     = "Добро пожаловать, %s! Вы успешно зарегистрированы."
	msgUnavailable = "Сервис временно недоступен, попробуйте позже."
)

// Sender отправляет сообщения в Telegram.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Conversation обрабатывает текст сообщения.
type Conversation interface {
	Handle(ctx context.Context, chatID int64, text string) []conversation.Reply
}

// Handler обслуживает апдейты бота.
type Handler struct {
	sender Sender
	log    zerolog.Logger
	users  domain.UserRepo
	engine Conversation
	dedup  domain.Cache
}

// NewHandler создаёт обработчик. dedup может быть nil, тогда апдейты не дедуплицируются.
func NewHandler(sender Sender, log zerolog.Logger, users domain.UserRepo, engine Conversation, dedup domain.Cache) *Handler {
	return &Handler{sender: sender, log: log, users: users, engine: engine, dedup: dedup}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		metrics.BotUpdatesTotal.WithLabelValues("ignored").Inc()
		return
	}
	if h.dedup == nil {
		h.handleMessage(ctx, msg)
		return
	}

	handled := false
	key := "update:" + strconv.Itoa(upd.UpdateID)
	err := h.dedup.Once(ctx, key, updateTTL, func() error {
		handled = true
		h.handleMessage(ctx, msg)
		return nil
	})
	switch {
	case err != nil:
		h.log.Warn().Err(err).Int("update", upd.UpdateID).Msg("дедупликация недоступна, обрабатываем апдейт")
		h.handleMessage(ctx, msg)
	case !handled:
		metrics.BotUpdatesTotal.WithLabelValues("duplicate").Inc()
		h.log.Debug().Int("update", upd.UpdateID).Msg("повторный апдейт пропущен")
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	metrics.BotUpdatesTotal.WithLabelValues("message").Inc()
	chatID := msg.Chat.ID

	user, created, err := h.users.UpsertByChatID(ctx, profileOf(msg))
	if err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось зарегистрировать пользователя")
		h.reply(chatID, conversation.Reply{Text: msgUnavailable})
		return
	}
	if created {
		h.log.Info().Int64("chat", chatID).Str("username", user.Username).Msg("новый пользователь")
		h.reply(chatID, conversation.Reply{Text: fmt.Sprintf(msgWelcome, displayName(user))})
	}

	for _, r := range h.engine.Handle(ctx, chatID, msg.Text) {
		h.reply(chatID, r)
	}
}

// WebhookHandler принимает апдейты от Telegram по HTTP.
func (h *Handler) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) reply(chatID int64, r conversation.Reply) {
	parts := telegram.SplitMessage(r.Text)
	markup := keyboardMarkup(r.Keyboard)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == len(parts)-1 && markup != nil {
			msg.ReplyMarkup = markup
		}
		start := time.Now()
		_, err := h.sender.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", "sendMessage", start, err)
		if err != nil {
			h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func keyboardMarkup(k conversation.Keyboard) any {
	switch k {
	case conversation.KeyboardMenu:
		return replyKeyboard(conversation.MenuLayout, false)
	case conversation.KeyboardYesNo:
		return replyKeyboard(conversation.YesNoLayout, true)
	case conversation.KeyboardScore:
		return replyKeyboard(conversation.ScoreLayout, true)
	default:
		return nil
	}
}

func replyKeyboard(layout [][]string, oneTime bool) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(layout))
	for _, labels := range layout {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(labels))
		for _, label := range labels {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.ResizeKeyboard = true
	markup.OneTimeKeyboard = oneTime
	return markup
}

func profileOf(msg *tgbotapi.Message) domain.TelegramProfile {
	profile := domain.TelegramProfile{ChatID: msg.Chat.ID}
	if from := msg.From; from != nil {
		profile.Username = from.UserName
		profile.FirstName = from.FirstName
		profile.LastName = from.LastName
		profile.LanguageCode = from.LanguageCode
		profile.IsBot = from.IsBot
	}
	return profile
}

func displayName(user domain.User) string {
	switch {
	case user.FirstName != "":
		return user.FirstName
	case user.Username != "":
		return "@" + user.Username
	default:
		return "друг"
	}
}
