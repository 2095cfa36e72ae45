package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrStoreUnavailable wraps every failure of the underlying database.
	// Callers treat it as fatal for the current interaction.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidInput reports arguments rejected before any query runs.
	ErrInvalidInput = errors.New("invalid store input")

	// ErrNotPending is returned by FinalizeRequest when the request is
	// missing or already completed.
	ErrNotPending = errors.New("analysis request is not pending")
)

// DefaultHistoryLimit is used by FetchRecentHistory when limit <= 0.
const DefaultHistoryLimit = 5

const maxHistoryLimit = 50

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetOrCreateUser returns the user with info.ID, inserting it on first sight.
	GetOrCreateUser(ctx context.Context, info User) (*User, error)

	// CreatePendingRequest inserts a new AnalysisRequest in processing state.
	CreatePendingRequest(ctx context.Context, userID int64, in PendingInput) (*AnalysisRequest, error)

	// FinalizeRequest stores the recommendation and marks the request completed.
	// A failed recommendation insert is logged and does not stop the status update.
	FinalizeRequest(ctx context.Context, requestID, userID int64, text string, outcome Outcome) error

	// FetchRecentHistory returns the user's newest requests with their recommendation.
	FetchRecentHistory(ctx context.Context, userID int64, limit int) ([]HistoryEntry, error)

	// RunSQLMaintenance performs database maintenance (VACUUM or ANALYZE).
	RunSQLMaintenance(ctx context.Context) error

	// CountStaleRequests counts requests still processing that were created before olderThan.
	CountStaleRequests(ctx context.Context, olderThan time.Time) (int, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// GetOrCreateUser looks the user up and inserts it when missing. The insert
// ignores conflicts so concurrent first messages from one user are safe.
func (s *sqlxStore) GetOrCreateUser(ctx context.Context, info User) (*User, error) {
	if info.ID == 0 {
		return nil, fmt.Errorf("%w: user id cannot be zero", ErrInvalidInput)
	}

	user, err := s.getUser(ctx, info.ID)
	switch {
	case err == nil:
		return user, nil
	case !errors.Is(err, sql.ErrNoRows):
		s.logger.ErrorContext(ctx, "Error fetching user", "user_id", info.ID, "error", err)
		return nil, unavailable("get user", err)
	}

	s.logger.InfoContext(ctx, "User not found, creating", "user_id", info.ID)

	info.CreatedAt = s.now()
	query := `
		INSERT INTO users (id, first_name, last_name, username, created_at)
		VALUES (:id, :first_name, :last_name, :username, :created_at)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.db.NamedExecContext(ctx, query, &info); err != nil {
		s.logger.ErrorContext(ctx, "Error creating user", "user_id", info.ID, "error", err)
		return nil, unavailable("create user", err)
	}

	user, err = s.getUser(ctx, info.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error reading user after insert", "user_id", info.ID, "error", err)
		return nil, unavailable("get user after insert", err)
	}
	return user, nil
}

func (s *sqlxStore) getUser(ctx context.Context, id int64) (*User, error) {
	var user User
	query := s.db.Rebind(`SELECT id, first_name, last_name, username, created_at FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreatePendingRequest inserts a new AnalysisRequest with status processing.
func (s *sqlxStore) CreatePendingRequest(ctx context.Context, userID int64, in PendingInput) (*AnalysisRequest, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: user id cannot be zero", ErrInvalidInput)
	}
	if (in.Text == "") == (in.FileURL == "") {
		return nil, fmt.Errorf("%w: exactly one of text and file url must be set", ErrInvalidInput)
	}
	if in.Kind == "" {
		return nil, fmt.Errorf("%w: request kind is required", ErrInvalidInput)
	}

	req := &AnalysisRequest{
		UserID:    userID,
		Kind:      in.Kind,
		InputText: sql.NullString{String: in.Text, Valid: in.Text != ""},
		FileURL:   sql.NullString{String: in.FileURL, Valid: in.FileURL != ""},
		Status:    StatusProcessing,
		CreatedAt: s.now(),
	}

	query := s.db.Rebind(`
		INSERT INTO analyses (user_id, kind, input_text, file_url, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := s.db.GetContext(ctx, &req.ID, query,
		req.UserID, req.Kind, req.InputText, req.FileURL, req.Status, req.CreatedAt)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving analysis request", "user_id", userID, "kind", in.Kind, "error", err)
		return nil, unavailable("create analysis request", err)
	}

	s.logger.DebugContext(ctx, "Analysis request saved", "user_id", userID, "request_id", req.ID, "kind", in.Kind)
	return req, nil
}

type rawResponse struct {
	Response string `json:"response"`
}

// FinalizeRequest inserts the recommendation, then moves the request to
// completed. Only a failed status update is reported to the caller.
func (s *sqlxStore) FinalizeRequest(ctx context.Context, requestID, userID int64, text string, outcome Outcome) error {
	if requestID == 0 || userID == 0 {
		return fmt.Errorf("%w: request id and user id are required", ErrInvalidInput)
	}

	now := s.now()
	rec := Recommendation{AnalysisID: requestID, UserID: userID, Text: text, CreatedAt: now}
	insert := `
		INSERT INTO recommendations (analysis_id, user_id, recommendation_text, created_at)
		VALUES (:analysis_id, :user_id, :recommendation_text, :created_at)
	`
	if _, err := s.db.NamedExecContext(ctx, insert, &rec); err != nil {
		// The user still receives the text.
		s.logger.ErrorContext(ctx, "Error saving recommendation", "request_id", requestID, "user_id", userID, "error", err)
	}

	raw, err := json.Marshal(rawResponse{Response: text})
	if err != nil {
		return fmt.Errorf("failed to encode raw response: %w", err)
	}

	update := s.db.Rebind(`
		UPDATE analyses
		SET status = ?, outcome = ?, raw_openai_response = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`)
	result, err := s.db.ExecContext(ctx, update,
		StatusCompleted, outcome, string(raw), now, requestID, StatusProcessing)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error completing analysis request", "request_id", requestID, "error", err)
		return unavailable("complete analysis request", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count when completing request", "request_id", requestID, "error", err)
	} else if affected != 1 {
		s.logger.WarnContext(ctx, "Analysis request was not pending", "request_id", requestID, "affected", affected)
		return fmt.Errorf("%w: request %d", ErrNotPending, requestID)
	}

	s.logger.DebugContext(ctx, "Analysis request completed", "request_id", requestID, "outcome", outcome)
	return nil
}

// FetchRecentHistory returns up to limit requests of the user, newest first.
func (s *sqlxStore) FetchRecentHistory(ctx context.Context, userID int64, limit int) ([]HistoryEntry, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: user id cannot be zero", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	} else if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := s.db.Rebind(`
		SELECT a.id, a.user_id, a.kind, a.input_text, a.file_url, a.status, a.outcome,
		       a.raw_openai_response, a.created_at, a.completed_at,
		       (SELECT r.recommendation_text FROM recommendations r
		         WHERE r.analysis_id = a.id ORDER BY r.id LIMIT 1) AS recommendation_text
		FROM analyses a
		WHERE a.user_id = ?
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT ?
	`)

	var entries []HistoryEntry
	if err := s.db.SelectContext(ctx, &entries, query, userID, limit); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching history", "user_id", userID, "error", err)
			return nil, err
		}
		s.logger.ErrorContext(ctx, "Error fetching history", "user_id", userID, "error", err)
		return nil, unavailable("fetch history", err)
	}

	s.logger.DebugContext(ctx, "Fetched history", "user_id", userID, "count", len(entries))
	return entries, nil
}

// RunSQLMaintenance runs VACUUM on SQLite and ANALYZE on Postgres.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	stmt := "ANALYZE;"
	if strings.HasPrefix(s.db.DriverName(), "sqlite") {
		stmt = "VACUUM;"
	}

	s.logger.InfoContext(ctx, "Starting database maintenance", "statement", stmt)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("database maintenance timed out: %w", err)
		}
		s.logger.ErrorContext(ctx, "Database maintenance failed", "error", err)
		return unavailable("maintenance", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed successfully")
	return nil
}

// CountStaleRequests counts processing requests created before olderThan.
func (s *sqlxStore) CountStaleRequests(ctx context.Context, olderThan time.Time) (int, error) {
	var count int
	query := s.db.Rebind(`SELECT COUNT(*) FROM analyses WHERE status = ? AND created_at < ?`)
	if err := s.db.GetContext(ctx, &count, query, StatusProcessing, olderThan.UTC()); err != nil {
		s.logger.ErrorContext(ctx, "Error counting stale requests", "error", err)
		return 0, unavailable("count stale requests", err)
	}
	return count, nil
}
