package mcp

import (
	"context"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/storage"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB (local)
// and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	GetProfile(ctx context.Context, id int) (*models.UserRow, error)
	QuerySessions(ctx context.Context, userID int, start, end time.Time, exercise string) ([]models.SessionRow, error)
	ExerciseStats(ctx context.Context, userID int, start, end time.Time) ([]storage.ExerciseStat, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
