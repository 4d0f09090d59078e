package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/trackrelay/internal/model"
)

// IsCommentPosted reports whether a notification was already sent for commentID.
func (s *SQLiteStore) IsCommentPosted(ctx context.Context, commentID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM posted_comments WHERE comment_id = ?", commentID)
	if err != nil {
		return false, fmt.Errorf("checking comment %s: %w", commentID, err)
	}
	return n > 0, nil
}

// MarkCommentPosted records commentID as notified. Repeated marks are no-ops.
func (s *SQLiteStore) MarkCommentPosted(ctx context.Context, commentID, issueID, author string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posted_comments (comment_id, issue_id, project_id, author, posted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(comment_id) DO NOTHING`,
		commentID, issueID, model.ProjectOfIssue(issueID), author, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("marking comment %s: %w", commentID, err)
	}
	return nil
}
