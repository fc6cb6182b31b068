package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskbot/internal/domain"
)

const telegramMaxMsgLen = 4000

// Transcriber turns a voice-note audio stream into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Telegram implements domain.Transport over the Telegram Bot API.
type Telegram struct {
	token       string
	allowFrom   []int64 // Allowed user IDs (empty = allow all)
	parseMode   string
	transcriber Transcriber // nil disables voice notes

	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

type TelegramConfig struct {
	Token       string
	AllowFrom   []string // User IDs as strings
	ParseMode   string
	Transcriber Transcriber
	Logger      *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	return &Telegram{
		token:       cfg.Token,
		allowFrom:   allowed,
		parseMode:   cfg.ParseMode,
		transcriber: cfg.Transcriber,
		logger:      cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// SelfID is the bot's own user ID, known after Start.
func (t *Telegram) SelfID() string {
	if t.bot == nil {
		return ""
	}
	return strconv.FormatInt(t.bot.Self.ID, 10)
}

// Start connects to Telegram and begins polling for updates.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, bus, update)
		}
	}
}

// Stop is a no-op: the bot stops when Start's context is cancelled, and
// StopReceivingUpdates panics when called twice.
func (t *Telegram) Stop() error {
	return nil
}

// Send delivers one reply and returns the ID of the last Telegram message
// it produced (long replies are chunked). Errors are returned to the
// caller; the dispatcher owns the retry policy.
func (t *Telegram) Send(ctx context.Context, chatID string, content string) (string, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid chat ID: %w", err)
	}

	var lastID string
	text := content
	for len(text) > 0 {
		chunk := text
		if len(chunk) > telegramMaxMsgLen {
			cutAt := strings.LastIndex(chunk[:telegramMaxMsgLen], "\n")
			if cutAt < telegramMaxMsgLen/2 {
				cutAt = telegramMaxMsgLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}

		msgID, err := t.sendChunk(id, chunk)
		if err != nil {
			return lastID, err
		}
		lastID = msgID
	}
	return lastID, nil
}

// sendChunk sends one message, falling back to plain text when Telegram
// rejects the markdown.
func (t *Telegram) sendChunk(chatID int64, text string) (string, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = t.parseMode

	sent, err := t.bot.Send(msg)
	if err != nil && msg.ParseMode != "" && strings.Contains(err.Error(), "can't parse entities") {
		t.logger.Warn("telegram markdown parse error, retrying as plain text",
			"err", err, "parseMode", t.parseMode)
		sent, err = t.bot.Send(tgbotapi.NewMessage(chatID, text))
	}
	if err != nil {
		return "", fmt.Errorf("telegram send: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

func (t *Telegram) handleUpdate(ctx context.Context, bus domain.MessageBus, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", update.Message.From.UserName,
		)
		return
	}

	text := strings.TrimSpace(update.Message.Text)
	voice := false

	if update.Message.Voice != nil {
		transcribed, err := t.transcribeVoice(ctx, update.Message.Voice)
		if err != nil {
			t.logger.Warn("voice transcription failed",
				"user_id", userID, "err", err)
			t.replyBestEffort(chatID, "Sorry, I couldn't make out that voice note.")
			return
		}
		text = transcribed
		voice = true
	}
	if text == "" {
		return
	}

	t.logger.Info("telegram message received",
		"user_id", userID,
		"chat_id", chatID,
		"voice", voice,
		"text_len", len(text),
	)

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = t.bot.Send(typing)

	bus.Publish(domain.InboundMessage{
		Channel:   "telegram",
		ChatID:    strconv.FormatInt(chatID, 10),
		SenderID:  strconv.FormatInt(userID, 10),
		MessageID: strconv.Itoa(update.Message.MessageID),
		Content:   text,
		Voice:     voice,
		Timestamp: time.Unix(int64(update.Message.Date), 0),
	})
}

// transcribeVoice downloads a voice note and runs it through the
// transcriber.
func (t *Telegram) transcribeVoice(ctx context.Context, voice *tgbotapi.Voice) (string, error) {
	if t.transcriber == nil {
		return "", fmt.Errorf("voice notes not enabled")
	}

	fileURL, err := t.bot.GetFileDirectURL(voice.FileID)
	if err != nil {
		return "", fmt.Errorf("voice file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("voice download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("voice download: status %d", resp.StatusCode)
	}

	return t.transcriber.Transcribe(ctx, resp.Body, "voice.ogg")
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true // Empty list = allow all
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (t *Telegram) replyBestEffort(chatID int64, text string) {
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		t.logger.Warn("telegram send failed", "err", err)
	}
}
