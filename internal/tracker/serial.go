package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nhle/trackrelay/internal/model"
)

// Serial exposes a blocking Client to many concurrent callers while
// guaranteeing at most one underlying call is in flight at any instant.
//
// Each call acquires a single shared permit, runs the client call on a
// worker goroutine and returns its result unchanged. If the caller's
// context ends while the call is running, the caller gets ctx.Err() right
// away but the permit stays held until the underlying call returns.
type Serial struct {
	client Client
	permit *semaphore.Weighted
	logger *slog.Logger
}

var _ Tracker = (*Serial)(nil)

// NewSerial wraps client. The caller must not use client directly afterwards.
func NewSerial(client Client, logger *slog.Logger) *Serial {
	if logger == nil {
		logger = slog.Default()
	}
	return &Serial{
		client: client,
		permit: semaphore.NewWeighted(1),
		logger: logger,
	}
}

type outcome[T any] struct {
	val T
	err error
}

// dispatch is the single serialization point for every tracker operation.
func dispatch[T any](
	ctx context.Context,
	s *Serial,
	op string,
	call func(context.Context) (T, error),
) (T, error) {
	var zero T
	if err := s.permit.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	start := time.Now()
	done := make(chan outcome[T], 1)
	go func() {
		defer s.permit.Release(1)

		var out outcome[T]
		defer func() {
			if p := recover(); p != nil {
				out = outcome[T]{err: fmt.Errorf("tracker %s panicked: %v", op, p)}
			}
			done <- out
		}()
		out.val, out.err = call(ctx)
	}()

	select {
	case out := <-done:
		s.logger.Debug("tracker call",
			"op", op,
			"duration", time.Since(start),
			"error", out.err,
		)
		return out.val, out.err
	case <-ctx.Done():
		s.logger.Debug("tracker call abandoned by caller", "op", op)
		return zero, ctx.Err()
	}
}

// Projects lists all tracker projects.
func (s *Serial) Projects(ctx context.Context) ([]ProjectInfo, error) {
	return dispatch(ctx, s, "get_projects", s.client.GetProjects)
}

// Users lists all tracker users.
func (s *Serial) Users(ctx context.Context) ([]UserInfo, error) {
	return dispatch(ctx, s, "get_users", s.client.GetUsers)
}

// User fetches a single user's details.
func (s *Serial) User(ctx context.Context, login string) (*UserInfo, error) {
	return dispatch(ctx, s, "get_user", func(ctx context.Context) (*UserInfo, error) {
		return s.client.GetUser(ctx, login)
	})
}

// Issues fetches one page of issues.
func (s *Serial) Issues(ctx context.Context, q IssueQuery) ([]model.Issue, error) {
	return dispatch(ctx, s, "get_issues", func(ctx context.Context) ([]model.Issue, error) {
		return s.client.GetIssues(ctx, q)
	})
}

// Comments fetches all comments of an issue.
func (s *Serial) Comments(ctx context.Context, issueID string) ([]model.Comment, error) {
	return dispatch(ctx, s, "get_comments", func(ctx context.Context) ([]model.Comment, error) {
		return s.client.GetComments(ctx, issueID)
	})
}

// Changes fetches the field-change history of an issue.
func (s *Serial) Changes(ctx context.Context, issueID string) ([]model.Change, error) {
	return dispatch(ctx, s, "get_changes", func(ctx context.Context) ([]model.Change, error) {
		return s.client.GetChangesForIssue(ctx, issueID)
	})
}
