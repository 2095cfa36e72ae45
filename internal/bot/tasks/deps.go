// Package tasks implements scheduled tasks for the labsage bot.
// It includes task definitions, dependencies, and registration mechanisms.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/labsage/internal/config"
)

// MaintenanceStore is the subset of database.Store used by scheduled tasks.
type MaintenanceStore interface {
	RunSQLMaintenance(ctx context.Context) error
	CountStaleRequests(ctx context.Context, olderThan time.Time) (int, error)
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  MaintenanceStore
	Config *config.Config
	Now    func() time.Time
}
