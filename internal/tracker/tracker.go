// Package tracker defines the issue tracker contract used by the sync
// engine and the adapter that makes a blocking tracker client safe to
// share between concurrent sweeps.
package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/trackrelay/internal/model"
)

// TransportError indicates a network or protocol failure talking to the
// tracker (connection refused, TLS, 5xx, malformed body).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("tracker transport error (%s): %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err (or any error in its chain) is a
// TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// DomainError indicates the tracker rejected the request: bad credentials,
// an invalid query, an unknown issue.
type DomainError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("tracker rejected %s (%d): %s", e.Op, e.StatusCode, e.Message)
}

// IsDomainError reports whether err (or any error in its chain) is a
// DomainError.
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// ProjectInfo is a project as listed by the tracker.
type ProjectInfo struct {
	ID        string
	ShortName string
	Name      string
}

// UserInfo is a user as listed by the tracker.
type UserInfo struct {
	Login    string
	FullName string
}

// IssueQuery selects one page of a project's issues.
type IssueQuery struct {
	// Project is the tracker-side project identifier.
	Project string

	// Filter is appended to the generated search query.
	Filter string

	Offset int
	Limit  int

	// UpdatedAfter restricts results to issues updated after this epoch
	// millisecond value. Zero means no restriction.
	UpdatedAfter int64
}

// Client is a blocking tracker client. Implementations are NOT required to
// be safe for concurrent use; wrap them in a Serial before sharing.
type Client interface {
	GetProjects(ctx context.Context) ([]ProjectInfo, error)
	GetUsers(ctx context.Context) ([]UserInfo, error)
	GetUser(ctx context.Context, login string) (*UserInfo, error)
	GetIssues(ctx context.Context, q IssueQuery) ([]model.Issue, error)
	GetComments(ctx context.Context, issueID string) ([]model.Comment, error)
	GetChangesForIssue(ctx context.Context, issueID string) ([]model.Change, error)
}

// Tracker is the concurrency-safe view of the tracker consumed by the sync
// engine. Serial is its only implementation outside tests.
type Tracker interface {
	Projects(ctx context.Context) ([]ProjectInfo, error)
	Users(ctx context.Context) ([]UserInfo, error)
	User(ctx context.Context, login string) (*UserInfo, error)
	Issues(ctx context.Context, q IssueQuery) ([]model.Issue, error)
	Comments(ctx context.Context, issueID string) ([]model.Comment, error)
	Changes(ctx context.Context, issueID string) ([]model.Change, error)
}
