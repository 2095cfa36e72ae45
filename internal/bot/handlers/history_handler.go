package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/labsage/internal/database"
	"github.com/edgard/labsage/internal/messages"
)

const (
	historyTextPreview           = 50
	historyRecommendationPreview = 100
	historyDateLayout            = "2006-01-02 15:04 MST"

	// historyTimeout bounds the store calls when no timeout is configured.
	historyTimeout = 15 * time.Second
)

// NewHistoryHandler returns a handler for the /history command.
func NewHistoryHandler(deps HandlerDeps) bot.HandlerFunc {
	return historyHandler{deps}.Handle
}

// historyHandler lists the sender's most recent analyses.
type historyHandler struct {
	deps HandlerDeps
}

func (h historyHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "history")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "History handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	from := update.Message.From
	msg := h.deps.Catalog.For(from.LanguageCode)
	reply := func(text string) {
		if err := h.deps.Responder.Reply(ctx, chatID, text); err != nil {
			log.ErrorContext(ctx, "Failed to send history reply", "error", err, "chat_id", chatID)
		}
	}

	log.InfoContext(ctx, "Handling /history command", "chat_id", chatID, "user_id", from.ID)

	timeout := h.deps.Config.Database.OperationTimeout
	if timeout <= 0 {
		timeout = historyTimeout
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	user, err := h.deps.Store.GetOrCreateUser(opCtx, senderUser(from))
	if err != nil {
		log.ErrorContext(ctx, "Failed to load user for history", "error", err, "user_id", from.ID)
		reply(msg.Text(messages.ServiceUnavailable))
		return
	}

	reply(msg.Text(messages.HistoryLoading))

	entries, err := h.deps.Store.FetchRecentHistory(opCtx, user.ID, h.deps.Config.Database.HistoryLimit)
	if err != nil {
		log.ErrorContext(ctx, "Failed to fetch history", "error", err, "user_id", user.ID)
		reply(msg.Text(messages.HistoryFailed))
		return
	}
	if len(entries) == 0 {
		reply(msg.Text(messages.HistoryEmpty))
		return
	}

	if err := h.deps.Responder.ReplyMarkdown(ctx, chatID, formatHistory(msg, entries)); err != nil {
		log.ErrorContext(ctx, "Failed to send history", "error", err, "chat_id", chatID)
		return
	}
	log.DebugContext(ctx, "Successfully sent history", "chat_id", chatID, "count", len(entries))
}

// formatHistory renders entries as MarkdownV2. Every piece of user or
// catalog text is escaped; only the bold date and italic recommendation
// markers are raw.
func formatHistory(msg messages.Printer, entries []database.HistoryEntry) string {
	var sb strings.Builder
	sb.WriteString(bot.EscapeMarkdown(msg.Text(messages.HistoryHeader, len(entries))))
	sb.WriteString("\n\n")

	for _, e := range entries {
		sb.WriteString("*")
		sb.WriteString(bot.EscapeMarkdown(e.CreatedAt.UTC().Format(historyDateLayout)))
		sb.WriteString("*\n\\- ")

		switch {
		case e.InputText.Valid:
			sb.WriteString(bot.EscapeMarkdown(msg.Text(messages.HistoryTextEntry, preview(e.InputText.String, historyTextPreview))))
		case e.FileURL.Valid:
			sb.WriteString(bot.EscapeMarkdown(msg.Text(messages.HistoryFileEntry)))
		}

		sb.WriteString("\n\\- _")
		if e.RecommendationText.Valid {
			rec := preview(e.RecommendationText.String, historyRecommendationPreview)
			sb.WriteString(bot.EscapeMarkdown(msg.Text(messages.HistoryRecommendation, rec)))
		} else {
			sb.WriteString(bot.EscapeMarkdown(msg.Text(messages.HistoryNoRecommendation)))
		}
		sb.WriteString("_\n\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// preview cuts s to at most n runes, marking the cut with an ellipsis.
func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "..."
}
