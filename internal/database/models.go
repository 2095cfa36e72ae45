package database

import (
	"database/sql"
	"time"
)

// RequestStatus is the lifecycle state of an AnalysisRequest.
type RequestStatus string

const (
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
)

// Outcome records whether the provider actually answered or a fallback text was stored.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeDegraded Outcome = "degraded"
)

// RequestKind is the kind of input that produced an AnalysisRequest.
type RequestKind string

const (
	KindText     RequestKind = "text"
	KindPhoto    RequestKind = "photo"
	KindDocument RequestKind = "document"
)

// User is a Telegram account that has talked to the bot.
type User struct {
	ID        int64     `db:"id"` // Telegram user ID
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	Username  string    `db:"username"`
	CreatedAt time.Time `db:"created_at"`
}

// AnalysisRequest is one unit of submitted input.
// Exactly one of InputText and FileURL is valid.
type AnalysisRequest struct {
	ID          int64          `db:"id"`
	UserID      int64          `db:"user_id"`
	Kind        RequestKind    `db:"kind"`
	InputText   sql.NullString `db:"input_text"`
	FileURL     sql.NullString `db:"file_url"`
	Status      RequestStatus  `db:"status"`
	Outcome     sql.NullString `db:"outcome"`
	RawResponse sql.NullString `db:"raw_openai_response"`
	CreatedAt   time.Time      `db:"created_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
}

// Recommendation is the advice generated for an AnalysisRequest.
type Recommendation struct {
	ID         int64     `db:"id"`
	AnalysisID int64     `db:"analysis_id"`
	UserID     int64     `db:"user_id"`
	Text       string    `db:"recommendation_text"`
	CreatedAt  time.Time `db:"created_at"`
}

// HistoryEntry is an AnalysisRequest joined with its recommendation, if any.
type HistoryEntry struct {
	AnalysisRequest
	RecommendationText sql.NullString `db:"recommendation_text"`
}

// PendingInput is the payload of a new AnalysisRequest.
type PendingInput struct {
	Kind    RequestKind
	Text    string
	FileURL string
}
