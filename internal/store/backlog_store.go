package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/trackrelay/internal/model"
)

// ListBacklog returns the pending retries for a project, oldest floor first.
func (s *SQLiteStore) ListBacklog(ctx context.Context, projectID string) ([]model.BacklogEntry, error) {
	var entries []model.BacklogEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT project_id, issue_id, floor, attempts, last_error, updated_at
		FROM sweep_backlog WHERE project_id = ?
		ORDER BY floor, issue_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing backlog for %s: %w", projectID, err)
	}
	return entries, nil
}

// RecordBacklog upserts a failed issue. The stored floor only moves down.
func (s *SQLiteStore) RecordBacklog(ctx context.Context, entry model.BacklogEntry) (int, error) {
	var attempts int
	err := s.db.GetContext(ctx, &attempts, `
		INSERT INTO sweep_backlog (project_id, issue_id, floor, attempts, last_error, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(project_id, issue_id) DO UPDATE SET
			floor = MIN(floor, excluded.floor),
			attempts = attempts + 1,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
		RETURNING attempts`,
		entry.ProjectID, entry.IssueID, entry.Floor, entry.LastError, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("recording backlog for %s: %w", entry.IssueID, err)
	}
	return attempts, nil
}

// ClearBacklog removes an issue once it has been processed.
func (s *SQLiteStore) ClearBacklog(ctx context.Context, projectID, issueID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM sweep_backlog WHERE project_id = ? AND issue_id = ?",
		projectID, issueID)
	if err != nil {
		return fmt.Errorf("clearing backlog for %s: %w", issueID, err)
	}
	return nil
}
