package handlers

import (
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// RegisteredHandler represents a command handler with its description and middleware.
// It encapsulates all information needed to register and document a command.
// When MatchFunc is set it takes precedence over HandlerType, Pattern and MatchType.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
	MatchFunc   tgbot.MatchFunc
}

// RegisterAllCommands initializes and returns a map of all available bot handlers.
// It configures each command with appropriate handlers and middleware.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)
	senderOnly := []tgbot.Middleware{RequireSender(deps)}

	handlers["/start"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "start",
		Handler:     NewStartHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  senderOnly,
	}
	handlers["/help"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "help",
		Handler:     NewHelpHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  senderOnly,
	}
	handlers["/history"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "history",
		Handler:     NewHistoryHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  senderOnly,
	}
	handlers["submission"] = RegisteredHandler{
		Handler:    NewSubmissionHandler(deps),
		MatchFunc:  IsSubmission,
		Middleware: senderOnly,
	}

	return handlers
}

// IsSubmission matches messages the request pipeline accepts: non-command
// text, photos and documents.
func IsSubmission(update *models.Update) bool {
	msg := update.Message
	if msg == nil {
		return false
	}
	if len(msg.Photo) > 0 || msg.Document != nil {
		return true
	}
	text := strings.TrimSpace(msg.Text)
	return text != "" && !strings.HasPrefix(text, "/")
}
