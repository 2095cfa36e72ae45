// Package pipeline turns one user submission into a stored analysis and a reply.
//
// A submission moves through Received, Validated, MediaUploaded (media only),
// Stored, Analyzed, Finalized and Replied. Any step before analysis may end
// it in Aborted. Media is uploaded before the pending record is created, so a
// failed upload never leaves a processing row behind.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edgard/labsage/internal/analysis"
	"github.com/edgard/labsage/internal/database"
	"github.com/edgard/labsage/internal/messages"
	"github.com/edgard/labsage/internal/metrics"
	"github.com/edgard/labsage/internal/validation"
)

// State is the position of a submission in the pipeline.
type State string

const (
	StateReceived      State = "received"
	StateValidated     State = "validated"
	StateStored        State = "stored"
	StateMediaUploaded State = "media_uploaded"
	StateAnalyzed      State = "analyzed"
	StateFinalized     State = "finalized"
	StateReplied       State = "replied"
	StateAborted       State = "aborted"
)

// Failure classes reported in Outcome.Err.
var (
	ErrValidation     = errors.New("validation failure")
	ErrUnsupported    = errors.New("unsupported input")
	ErrTransportFetch = errors.New("transport fetch failed")
)

// RecordStore is the subset of database.Store the pipeline writes to.
type RecordStore interface {
	GetOrCreateUser(ctx context.Context, info database.User) (*database.User, error)
	CreatePendingRequest(ctx context.Context, userID int64, in database.PendingInput) (*database.AnalysisRequest, error)
	FinalizeRequest(ctx context.Context, requestID, userID int64, text string, outcome database.Outcome) error
}

// Uploader stores media and returns a public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, name, contentType string) (string, error)
}

// Analyzer produces recommendation text. It never fails.
type Analyzer interface {
	AnalyzeText(ctx context.Context, text string) analysis.Result
	AnalyzeImage(ctx context.Context, publicURL, promptText string) analysis.Result
}

// FileFetcher downloads a file from the chat transport.
type FileFetcher interface {
	FetchFile(ctx context.Context, fileID string) ([]byte, error)
}

// Replier sends messages back to the chat.
type Replier interface {
	Reply(ctx context.Context, chatID int64, text string) error
	// Typing shows the typing indicator until stop is called.
	Typing(ctx context.Context, chatID int64) (stop func())
}

// Submission is one inbound unit of user input.
type Submission struct {
	ChatID       int64
	User         database.User
	LanguageCode string
	Kind         database.RequestKind

	// Text is the message body for KindText.
	Text string

	// Media fields, set for KindPhoto and KindDocument.
	Caption  string
	FileID   string
	FileName string
	FileSize *int64
	MimeType string
}

// Outcome describes where a submission ended.
type Outcome struct {
	State     State
	RequestID int64
	Reply     string
	Degraded  bool
	Err       error
}

// Options configures a Pipeline.
type Options struct {
	Limits       validation.Limits
	Catalog      *messages.Catalog
	StoreTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
	NewID        func() string
}

// Pipeline processes submissions. It holds no per-request state and is safe
// for concurrent use.
type Pipeline struct {
	store    RecordStore
	uploader Uploader
	analyzer Analyzer
	fetcher  FileFetcher
	replier  Replier

	limits       validation.Limits
	catalog      *messages.Catalog
	storeTimeout time.Duration
	log          *slog.Logger
	now          func() time.Time
	newID        func() string
}

// New creates a Pipeline from its collaborators.
func New(store RecordStore, uploader Uploader, analyzer Analyzer, fetcher FileFetcher, replier Replier, opts Options) (*Pipeline, error) {
	if store == nil || uploader == nil || analyzer == nil || fetcher == nil || replier == nil {
		return nil, errors.New("pipeline collaborators cannot be nil")
	}
	if opts.Catalog == nil {
		return nil, errors.New("pipeline message catalog cannot be nil")
	}
	if opts.Limits == (validation.Limits{}) {
		opts.Limits = validation.NewLimits(0, 0)
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}

	return &Pipeline{
		store:        store,
		uploader:     uploader,
		analyzer:     analyzer,
		fetcher:      fetcher,
		replier:      replier,
		limits:       opts.Limits,
		catalog:      opts.Catalog,
		storeTimeout: opts.StoreTimeout,
		log:          opts.Logger.With("component", "pipeline"),
		now:          opts.Now,
		newID:        opts.NewID,
	}, nil
}

// Process runs sub through the pipeline and replies to the chat.
func (p *Pipeline) Process(ctx context.Context, sub Submission) (out Outcome) {
	log := p.log.With("user_id", sub.User.ID, "chat_id", sub.ChatID, "kind", sub.Kind)
	msg := p.catalog.For(sub.LanguageCode)
	out.State = StateReceived

	defer func() {
		metrics.PipelineRequestsTotal.WithLabelValues(string(sub.Kind), string(out.State)).Inc()
	}()

	// 1. Validate.
	if key, args, err := p.validate(sub); err != nil {
		log.InfoContext(ctx, "Submission rejected", "reason", err)
		return p.abort(ctx, log, sub.ChatID, msg.Text(key, args...), err)
	}
	out.State = StateValidated

	// 2. Resolve the user.
	user, err := p.getOrCreateUser(ctx, sub.User)
	if err != nil {
		log.ErrorContext(ctx, "Failed to resolve user", "error", err)
		return p.abort(ctx, log, sub.ChatID, msg.Text(messages.ServiceUnavailable), err)
	}

	stopTyping := p.acknowledge(ctx, log, sub, msg)
	defer stopTyping()

	// 3. Upload media before any record exists.
	pending := database.PendingInput{Kind: sub.Kind, Text: sub.Text}
	if sub.Kind != database.KindText {
		url, reply, err := p.storeMedia(ctx, log, user.ID, sub, msg)
		if err != nil {
			return p.abort(ctx, log, sub.ChatID, reply, err)
		}
		pending = database.PendingInput{Kind: sub.Kind, FileURL: url}
		out.State = StateMediaUploaded
	}

	// 4. Create the pending record.
	req, err := p.createPending(ctx, user.ID, pending)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create pending request", "error", err)
		return p.abort(ctx, log, sub.ChatID, msg.Text(messages.ProcessingFailed), err)
	}
	out.RequestID = req.ID
	out.State = StateStored
	log = log.With("request_id", req.ID)

	// 5. Analyze. This step always yields text.
	var res analysis.Result
	if sub.Kind == database.KindText {
		res = p.analyzer.AnalyzeText(ctx, sub.Text)
	} else {
		prompt := strings.TrimSpace(sub.Caption)
		if prompt == "" {
			prompt = msg.Text(messages.DefaultImagePrompt)
		}
		res = p.analyzer.AnalyzeImage(ctx, pending.FileURL, prompt)
	}
	stopTyping()
	if res.Degraded {
		res.Text = degradedText(msg, sub.Kind, res.Reason)
		log.WarnContext(ctx, "Analysis degraded", "reason", res.Reason)
	}
	out.State = StateAnalyzed
	out.Reply = res.Text
	out.Degraded = res.Degraded

	// 6. Finalize, even if the caller has gone away.
	outcome := database.OutcomeAnswered
	if res.Degraded {
		outcome = database.OutcomeDegraded
	}
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.storeTimeout)
	err = p.store.FinalizeRequest(finalizeCtx, req.ID, user.ID, res.Text, outcome)
	cancel()
	if err != nil {
		log.ErrorContext(ctx, "Failed to finalize request", "error", err)
		out.Err = err
	}
	out.State = StateFinalized

	// 7. Reply.
	if ctx.Err() != nil {
		log.WarnContext(ctx, "Context done before reply, skipping", "error", ctx.Err())
		return out
	}
	if err := p.replier.Reply(ctx, sub.ChatID, res.Text); err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err)
		out.Err = errors.Join(out.Err, err)
		return out
	}
	out.State = StateReplied
	log.InfoContext(ctx, "Submission processed", "degraded", res.Degraded)
	return out
}

func (p *Pipeline) validate(sub Submission) (messages.Key, []any, error) {
	switch sub.Kind {
	case database.KindText:
		if sub.Text == "" {
			return messages.ProcessingFailed, nil, fmt.Errorf("%w: empty text", ErrValidation)
		}
		if !p.limits.CheckTextLength(sub.Text) {
			return messages.TextTooLong, []any{p.limits.MaxTextChars},
				fmt.Errorf("%w: text length exceeds %d characters", ErrValidation, p.limits.MaxTextChars)
		}
	case database.KindPhoto, database.KindDocument:
		if sub.FileID == "" {
			return messages.ProcessingFailed, nil, fmt.Errorf("%w: missing file id", ErrValidation)
		}
		if sub.Kind == database.KindDocument && !isImageMime(sub.MimeType) {
			return messages.UnsupportedDocument, nil, fmt.Errorf("%w: document type %q", ErrUnsupported, sub.MimeType)
		}
		if !p.limits.CheckMediaSize(sub.FileSize) {
			return messages.FileTooLarge, []any{p.limits.MaxFileMegabytes()},
				fmt.Errorf("%w: file size %d exceeds %d bytes", ErrValidation, *sub.FileSize, p.limits.MaxFileBytes)
		}
		if sub.Caption != "" && !p.limits.CheckTextLength(sub.Caption) {
			return messages.TextTooLong, []any{p.limits.MaxTextChars},
				fmt.Errorf("%w: caption length exceeds %d characters", ErrValidation, p.limits.MaxTextChars)
		}
	default:
		return messages.ProcessingFailed, nil, fmt.Errorf("%w: kind %q", ErrUnsupported, sub.Kind)
	}
	return "", nil, nil
}

func (p *Pipeline) getOrCreateUser(ctx context.Context, info database.User) (*database.User, error) {
	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()
	return p.store.GetOrCreateUser(ctx, info)
}

func (p *Pipeline) createPending(ctx context.Context, userID int64, in database.PendingInput) (*database.AnalysisRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()
	return p.store.CreatePendingRequest(ctx, userID, in)
}

func (p *Pipeline) acknowledge(ctx context.Context, log *slog.Logger, sub Submission, msg messages.Printer) (stopTyping func()) {
	key := messages.AckText
	switch sub.Kind {
	case database.KindPhoto:
		key = messages.AckPhoto
	case database.KindDocument:
		key = messages.AckDocument
	}
	if err := p.replier.Reply(ctx, sub.ChatID, msg.Text(key)); err != nil {
		log.WarnContext(ctx, "Failed to send acknowledgement", "error", err)
	}
	return p.replier.Typing(ctx, sub.ChatID)
}

// storeMedia downloads the file and uploads it. On failure it returns the
// reply to send.
func (p *Pipeline) storeMedia(ctx context.Context, log *slog.Logger, userID int64, sub Submission, msg messages.Printer) (string, string, error) {
	data, err := p.fetcher.FetchFile(ctx, sub.FileID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to fetch file from transport", "file_id", sub.FileID, "error", err)
		return "", msg.Text(messages.TransportFetchError), fmt.Errorf("%w: %w", ErrTransportFetch, err)
	}

	size := int64(len(data))
	if !p.limits.CheckMediaSize(&size) {
		log.InfoContext(ctx, "Downloaded file exceeds limit", "size", size)
		return "", msg.Text(messages.FileTooLarge, p.limits.MaxFileMegabytes()),
			fmt.Errorf("%w: downloaded size %d exceeds %d bytes", ErrValidation, size, p.limits.MaxFileBytes)
	}

	name := p.objectName(userID, sub)
	url, err := p.uploader.Upload(ctx, data, name, sub.MimeType)
	if err != nil {
		log.ErrorContext(ctx, "Failed to upload file", "object", name, "error", err)
		return "", msg.Text(messages.UploadFailed), err
	}
	return url, "", nil
}

// objectName builds a unique object name: user id, unix millis and a random id.
func (p *Pipeline) objectName(userID int64, sub Submission) string {
	prefix := fmt.Sprintf("user_%d_%d_%s", userID, p.now().UnixMilli(), p.newID())
	if sub.Kind == database.KindDocument {
		if name := sanitizeFileName(sub.FileName); name != "" {
			return prefix + "_" + name
		}
	}
	return prefix + ".jpg"
}

func (p *Pipeline) abort(ctx context.Context, log *slog.Logger, chatID int64, reply string, err error) Outcome {
	if rerr := p.replier.Reply(ctx, chatID, reply); rerr != nil {
		log.ErrorContext(ctx, "Failed to send abort reply", "error", rerr)
	}
	return Outcome{State: StateAborted, Reply: reply, Err: err}
}

func degradedText(msg messages.Printer, kind database.RequestKind, reason string) string {
	if reason == analysis.ReasonNotConfigured {
		return msg.Text(messages.AnalysisNotConfigured)
	}
	if kind == database.KindText {
		return msg.Text(messages.AnalysisTextApology)
	}
	return msg.Text(messages.AnalysisImageApology)
}

func isImageMime(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "image/")
}

// sanitizeFileName keeps characters that are safe in storage object keys.
func sanitizeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	return strings.Trim(name, "._")
}
