package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLogger(&buf, "warn", true)
	log.Info("dropped")
	log.Warn("kept", "user_id", 42)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.EqualValues(t, 42, entry["user_id"])
}

func TestUpdateKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		update *models.Update
		want   string
	}{
		{"no message", &models.Update{}, "other"},
		{"text", &models.Update{Message: &models.Message{Text: "hi"}}, "text"},
		{"photo", &models.Update{Message: &models.Message{Photo: []models.PhotoSize{{FileID: "f"}}}}, "photo"},
		{"document", &models.Update{Message: &models.Message{Document: &models.Document{FileID: "d"}}}, "document"},
		{"sticker", &models.Update{Message: &models.Message{}}, "message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, UpdateKind(tt.update))
		})
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "Приве...", truncateString("Привет, мир", 8))
	assert.Equal(t, "...", truncateString("abcdef", 2))
}
