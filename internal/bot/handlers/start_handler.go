package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/labsage/internal/messages"
)

// startKeyboard is the persistent reply keyboard shown after /start.
var startKeyboard = [][]string{{"/help", "/history"}}

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return startHandler{deps}.Handle
}

// startHandler processes the /start command using injected dependencies.
type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "start")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Start handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	from := update.Message.From
	msg := h.deps.Catalog.For(from.LanguageCode)

	log.InfoContext(ctx, "Handling /start command", "chat_id", chatID, "user_id", from.ID)

	if _, err := h.deps.Store.GetOrCreateUser(ctx, senderUser(from)); err != nil {
		log.ErrorContext(ctx, "Failed to register user", "error", err, "user_id", from.ID)
		if err := h.deps.Responder.Reply(ctx, chatID, msg.Text(messages.ServiceUnavailable)); err != nil {
			log.ErrorContext(ctx, "Failed to send error message", "error", err, "chat_id", chatID)
		}
		return
	}

	welcome := msg.Text(messages.Welcome, from.FirstName)
	if err := h.deps.Responder.ReplyWithKeyboard(ctx, chatID, welcome, startKeyboard); err != nil {
		log.ErrorContext(ctx, "Failed to send welcome message", "error", err, "chat_id", chatID)
	} else {
		log.DebugContext(ctx, "Successfully sent welcome message", "chat_id", chatID)
	}
}
