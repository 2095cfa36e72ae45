// Package telegram handles the setup of the Telegram bot, handler
// registration and the outbound transport used by the request pipeline.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/labsage/internal/bot/handlers"
	"github.com/edgard/labsage/internal/messages"
)

// NewTelegramBot creates a new Telegram bot instance using the go-telegram/bot library.
func NewTelegramBot(token string, logger *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	b, err := bot.New(token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info("Telegram bot instance created successfully", "token_prefix", tokenPrefix(token))
	return b, nil
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return "..."
	}
	return token[:8] + "..."
}

// applyMiddleware wraps a handler function with a slice of middleware.
// Middleware are applied in reverse order so the first one in the slice is the outermost.
func applyMiddleware(handler bot.HandlerFunc, mw []bot.Middleware) bot.HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

// RegisterHandlers registers command and message handlers with the Telegram bot instance.
// Handlers with a MatchFunc are registered with RegisterHandlerMatchFunc.
func RegisterHandlers(b *bot.Bot, logger *slog.Logger, registeredHandlers map[string]handlers.RegisteredHandler) error {
	if b == nil {
		return fmt.Errorf("bot instance cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "handler_registry")

	if len(registeredHandlers) == 0 {
		log.Warn("No handlers provided for registration.")
		return nil
	}

	log.Info("Registering Telegram handlers...", "count", len(registeredHandlers))

	for name, regHandler := range registeredHandlers {
		if regHandler.Handler == nil {
			log.Warn("Skipping registration for nil handler", "name", name)
			continue
		}

		finalHandler := applyMiddleware(regHandler.Handler, regHandler.Middleware)
		if regHandler.MatchFunc != nil {
			b.RegisterHandlerMatchFunc(regHandler.MatchFunc, finalHandler)
		} else {
			b.RegisterHandler(regHandler.HandlerType, regHandler.Pattern, regHandler.MatchType, finalHandler)
		}
		log.Debug("Registered handler", "name", name, "pattern", regHandler.Pattern, "middleware_count", len(regHandler.Middleware))
	}

	log.Info("Registered Telegram handlers successfully", "count", len(registeredHandlers))
	return nil
}

// BotCommands returns the command menu in the printer's locale.
func BotCommands(msg messages.Printer) []models.BotCommand {
	return []models.BotCommand{
		{Command: "start", Description: msg.Text(messages.CommandStart)},
		{Command: "help", Description: msg.Text(messages.CommandHelp)},
		{Command: "history", Description: msg.Text(messages.CommandHistory)},
	}
}

// SetCommands publishes the command menu: the default locale for all users,
// plus one localized menu per supported language.
func SetCommands(ctx context.Context, b *bot.Bot, catalog *messages.Catalog, logger *slog.Logger) error {
	log := logger.With("component", "telegram_commands")

	if _, err := b.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: BotCommands(catalog.Default())}); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	for _, lang := range []string{messages.English, messages.Russian} {
		_, err := b.SetMyCommands(ctx, &bot.SetMyCommandsParams{
			Commands:     BotCommands(catalog.For(lang)),
			LanguageCode: lang,
		})
		if err != nil {
			log.WarnContext(ctx, "Failed to set localized bot commands", "language", lang, "error", err)
		}
	}
	log.InfoContext(ctx, "Bot command menu registered")
	return nil
}

// DropPendingUpdates discards updates queued while the bot was offline.
func DropPendingUpdates(ctx context.Context, b *bot.Bot) error {
	if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
		return fmt.Errorf("failed to drop pending updates: %w", err)
	}
	return nil
}
