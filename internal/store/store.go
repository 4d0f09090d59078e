package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/trackrelay/internal/model"
)

// ErrNotFound is returned (wrapped) when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// WatermarkStore persists the per-project "last checked" watermark.
type WatermarkStore interface {
	// ListProjects returns every tracked project (linked to a chat) with
	// its current watermark.
	ListProjects(ctx context.Context) ([]model.Project, error)

	// AdvanceWatermark sets last_checked to lastChecked (epoch ms) only if
	// it is greater than the stored value. It reports whether the row
	// changed; an older value is a silent no-op.
	AdvanceWatermark(ctx context.Context, projectID string, lastChecked int64) (bool, error)

	// RecordSweepResult stores the outcome of the latest sweep attempt.
	RecordSweepResult(ctx context.Context, projectID string, sweepErr error) error
}

// CommentLedger records which comments have been notified.
type CommentLedger interface {
	IsCommentPosted(ctx context.Context, commentID string) (bool, error)

	// MarkCommentPosted is idempotent; marking twice is not an error.
	MarkCommentPosted(ctx context.Context, commentID, issueID, author string) error
}

// Backlog tracks issues that failed inside an otherwise completed sweep.
type Backlog interface {
	ListBacklog(ctx context.Context, projectID string) ([]model.BacklogEntry, error)

	// RecordBacklog upserts the entry, keeping the lowest floor seen and
	// incrementing the attempt counter. It returns the new attempt count.
	RecordBacklog(ctx context.Context, entry model.BacklogEntry) (int, error)

	ClearBacklog(ctx context.Context, projectID, issueID string) error
}

// Store defines the persistence interface used by the relay.
type Store interface {
	WatermarkStore
	CommentLedger
	Backlog

	// === Projects ===

	AllProjects(ctx context.Context) ([]model.Project, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	UpsertProjects(ctx context.Context, projects []model.Project) error
	LinkProject(ctx context.Context, id, chatID, filter string) error

	// === Users ===

	UpsertUsers(ctx context.Context, users []model.User) error
	GetUser(ctx context.Context, login string) (*model.User, error)
	LinkUser(ctx context.Context, login, chatUserID string) error

	// === Deliveries ===

	RecordDelivery(ctx context.Context, d model.Delivery) error
	CountDeliveriesSince(ctx context.Context, projectID string, since time.Time) (int, error)
}
