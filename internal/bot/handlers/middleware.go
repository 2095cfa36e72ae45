// Package handlers contains Telegram bot command and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// RequireSender creates a middleware that drops updates without a message
// or a sender. Channel posts and service updates carry neither.
func RequireSender(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			if update.Message == nil || update.Message.From == nil {
				deps.Logger.With("middleware", "RequireSender").
					DebugContext(ctx, "Dropping update without message sender", "update_id", update.ID)
				return
			}
			if update.Message.From.IsBot {
				deps.Logger.With("middleware", "RequireSender").
					DebugContext(ctx, "Dropping update from bot account", "user_id", update.Message.From.ID)
				return
			}
			next(ctx, bot, update)
		}
	}
}
