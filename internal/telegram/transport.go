package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/labsage/internal/config"
)

// MaxMessageLength is Telegram's limit for one text message.
const MaxMessageLength = 4096

// Transport sends replies and downloads files through the Bot API.
type Transport struct {
	bot        *bot.Bot
	httpClient *http.Client
	cfg        config.TelegramConfig
	maxBytes   int64
	log        *slog.Logger

	typingInterval time.Duration
}

// NewTransport creates a Transport. maxFileBytes caps downloads.
func NewTransport(b *bot.Bot, cfg config.TelegramConfig, maxFileBytes int64, httpClient *http.Client, logger *slog.Logger) *Transport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxMessageLength <= 0 || cfg.MaxMessageLength > MaxMessageLength {
		cfg.MaxMessageLength = MaxMessageLength
	}
	return &Transport{
		bot:        b,
		httpClient: httpClient,
		cfg:        cfg,
		maxBytes:   maxFileBytes,
		log:        logger.With("component", "telegram_transport"),

		typingInterval: typingInterval,
	}
}

// FetchFile resolves fileID and downloads its content.
func (t *Transport) FetchFile(ctx context.Context, fileID string) (data []byte, err error) {
	if fileID == "" {
		return nil, errors.New("empty fileID provided")
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("context cancelled before file download: %w", ctx.Err())
	}
	downloadCtx, cancel := context.WithTimeout(ctx, t.cfg.DownloadTimeout)
	defer cancel()

	fileObj, err := t.bot.GetFile(downloadCtx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	if fileObj.FilePath == "" {
		return nil, errors.New("empty file path returned from Telegram")
	}

	req, err := http.NewRequestWithContext(downloadCtx, http.MethodGet, t.bot.FileDownloadLink(fileObj), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	// One byte over the cap lets the pipeline see the file is too large.
	data, err = io.ReadAll(io.LimitReader(resp.Body, t.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file data: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("received empty file data")
	}
	t.log.DebugContext(ctx, "Downloaded file", "file_id", fileID, "size", len(data))
	return data, nil
}

// Reply sends text to chatID, split into as many messages as needed.
func (t *Transport) Reply(ctx context.Context, chatID int64, text string) error {
	for _, part := range SplitMessage(text, t.cfg.MaxMessageLength) {
		if err := t.send(ctx, &bot.SendMessageParams{ChatID: chatID, Text: part}); err != nil {
			return err
		}
	}
	return nil
}

// ReplyMarkdown sends text that is already MarkdownV2-escaped.
func (t *Transport) ReplyMarkdown(ctx context.Context, chatID int64, text string) error {
	return t.send(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text, ParseMode: models.ParseModeMarkdown})
}

// ReplyWithKeyboard sends text with a persistent reply keyboard.
func (t *Transport) ReplyWithKeyboard(ctx context.Context, chatID int64, text string, rows [][]string) error {
	keyboard := make([][]models.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]models.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, models.KeyboardButton{Text: label})
		}
		keyboard = append(keyboard, buttons)
	}
	return t.send(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
		ReplyMarkup: &models.ReplyKeyboardMarkup{
			Keyboard:       keyboard,
			ResizeKeyboard: true,
		},
	})
}

func (t *Transport) send(ctx context.Context, params *bot.SendMessageParams) error {
	if ctx.Err() != nil {
		return fmt.Errorf("context cancelled before sending message: %w", ctx.Err())
	}
	sendCtx, cancel := context.WithTimeout(ctx, t.cfg.SendTimeout)
	defer cancel()

	sent, err := t.bot.SendMessage(sendCtx, params)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	t.log.DebugContext(ctx, "Sent message", "chat_id", params.ChatID, "message_id", sent.ID)
	return nil
}

// SplitMessage splits text into parts of at most limit UTF-16 code units,
// the unit Telegram counts in, preferring to cut at a newline, then at a
// space.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	runes := []rune(text)
	if utf16Len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for utf16Len(runes) > limit {
		fit := fitRunes(runes, limit)
		cut := fit
		window := string(runes[:fit])
		if next := runes[fit]; next == '\n' || next == ' ' {
			cut = fit + 1
		} else if i := strings.LastIndex(window, "\n"); i > 0 {
			cut = utf8.RuneCountInString(window[:i]) + 1
		} else if i := strings.LastIndex(window, " "); i > 0 {
			cut = utf8.RuneCountInString(window[:i]) + 1
		}
		if part := strings.TrimRight(string(runes[:cut]), "\n "); part != "" {
			parts = append(parts, part)
		}
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func utf16Len(runes []rune) int {
	n := 0
	for _, r := range runes {
		n += utf16.RuneLen(r)
	}
	return n
}

// fitRunes returns how many leading runes fit in limit UTF-16 units, at
// least one.
func fitRunes(runes []rune, limit int) int {
	units := 0
	for i, r := range runes {
		units += utf16.RuneLen(r)
		if units > limit {
			return max(i, 1)
		}
	}
	return len(runes)
}
