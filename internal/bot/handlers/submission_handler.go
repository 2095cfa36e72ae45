package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/labsage/internal/database"
	"github.com/edgard/labsage/internal/pipeline"
)

// NewSubmissionHandler returns a handler that feeds text, photos and
// documents into the request pipeline.
func NewSubmissionHandler(deps HandlerDeps) bot.HandlerFunc {
	return submissionHandler{deps}.Handle
}

type submissionHandler struct {
	deps HandlerDeps
}

func (h submissionHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "submission")

	sub, ok := submissionFromMessage(update.Message)
	if !ok {
		log.DebugContext(ctx, "Ignoring update without submission", "update_id", update.ID)
		return
	}

	out := h.deps.Pipeline.Process(ctx, sub)
	log.DebugContext(ctx, "Submission finished",
		"user_id", sub.User.ID,
		"kind", sub.Kind,
		"state", out.State,
		"request_id", out.RequestID,
		"degraded", out.Degraded,
	)
}

// submissionFromMessage maps a Telegram message onto a pipeline submission.
// Photos win over documents and documents over text.
func submissionFromMessage(msg *models.Message) (pipeline.Submission, bool) {
	if msg == nil || msg.From == nil {
		return pipeline.Submission{}, false
	}

	sub := pipeline.Submission{
		ChatID:       msg.Chat.ID,
		User:         senderUser(msg.From),
		LanguageCode: msg.From.LanguageCode,
		Caption:      msg.Caption,
	}

	switch {
	case len(msg.Photo) > 0:
		photo := largestPhoto(msg.Photo)
		sub.Kind = database.KindPhoto
		sub.FileID = photo.FileID
		sub.FileSize = optionalSize(int64(photo.FileSize))
		sub.MimeType = "image/jpeg"
	case msg.Document != nil:
		doc := msg.Document
		sub.Kind = database.KindDocument
		sub.FileID = doc.FileID
		sub.FileName = doc.FileName
		sub.FileSize = optionalSize(int64(doc.FileSize))
		sub.MimeType = doc.MimeType
	case msg.Text != "":
		sub.Kind = database.KindText
		sub.Text = msg.Text
		sub.Caption = ""
	default:
		return pipeline.Submission{}, false
	}
	return sub, true
}

// largestPhoto returns the size with the most pixels. Telegram lists sizes
// smallest first, but that order is not guaranteed.
func largestPhoto(sizes []models.PhotoSize) models.PhotoSize {
	best := sizes[0]
	for _, p := range sizes[1:] {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best
}

// optionalSize treats a zero size as unknown.
func optionalSize(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}

func senderUser(from *models.User) database.User {
	return database.User{
		ID:        from.ID,
		FirstName: from.FirstName,
		LastName:  from.LastName,
		Username:  from.Username,
	}
}
