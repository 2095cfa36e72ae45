package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/labsage/internal/config"
	"github.com/edgard/labsage/internal/database"
	"github.com/edgard/labsage/internal/messages"
	"github.com/edgard/labsage/internal/pipeline"
)

// UserStore is the subset of database.Store the command handlers read from.
type UserStore interface {
	GetOrCreateUser(ctx context.Context, info database.User) (*database.User, error)
	FetchRecentHistory(ctx context.Context, userID int64, limit int) ([]database.HistoryEntry, error)
}

// Processor runs a submission through the request pipeline.
type Processor interface {
	Process(ctx context.Context, sub pipeline.Submission) pipeline.Outcome
}

// Responder sends replies to a chat. *telegram.Transport implements it.
type Responder interface {
	Reply(ctx context.Context, chatID int64, text string) error
	ReplyMarkdown(ctx context.Context, chatID int64, text string) error
	ReplyWithKeyboard(ctx context.Context, chatID int64, text string, rows [][]string) error
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger    *slog.Logger
	Config    *config.Config
	Store     UserStore
	Pipeline  Processor
	Catalog   *messages.Catalog
	Responder Responder
}
