// Package notify renders tracker events into chat messages.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nhle/trackrelay/internal/model"
	"github.com/nhle/trackrelay/internal/store"
)

const missingValue = "n/a"

// UserLookup resolves tracker logins to known users.
type UserLookup interface {
	GetUser(ctx context.Context, login string) (*model.User, error)
}

// Renderer builds markdown messages for issues, comments and changes.
type Renderer struct {
	baseURL string
	users   UserLookup
	logger  *slog.Logger
}

// NewRenderer creates a Renderer linking issues under baseURL.
func NewRenderer(baseURL string, users UserLookup, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		baseURL: strings.TrimRight(baseURL, "/"),
		users:   users,
		logger:  logger,
	}
}

// Mention returns a chat mention for login. Users with a linked chat id get
// an inline user link; everyone else, including unknown logins, gets @login.
func (r *Renderer) Mention(ctx context.Context, login string) (string, error) {
	u, err := r.users.GetUser(ctx, login)
	if errors.Is(err, store.ErrNotFound) {
		return "@" + login, nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up %s: %w", login, err)
	}
	return MentionOf(*u), nil
}

// MentionOf formats a mention for a known user.
func MentionOf(u model.User) string {
	if u.ChatUserID == "" {
		return "@" + u.Login
	}
	name := u.FullName
	if name == "" {
		name = u.Login
	}
	return fmt.Sprintf("[%s](tg://user?id=%s)", name, u.ChatUserID)
}

// IssueLink returns a markdown link to the issue page.
func (r *Renderer) IssueLink(issueID string) string {
	return fmt.Sprintf("[%s](%s/issue/%s)", issueID, r.baseURL, issueID)
}

// Comment renders a new comment notification.
func (r *Renderer) Comment(ctx context.Context, c model.Comment) (string, error) {
	mention, err := r.Mention(ctx, c.Author)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s commented on %s:\n\n%s\n", mention, r.IssueLink(c.IssueID), c.Text), nil
}

// Change renders a field change notification, one line per field.
func (r *Renderer) Change(ctx context.Context, issue model.Issue, ch model.Change) (string, error) {
	mention, err := r.Mention(ctx, ch.Updater)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(ch.Fields))
	for _, f := range ch.Fields {
		lines = append(lines, fmt.Sprintf("- %s: %s -> %s", f.Name, firstOr(f.Old), firstOr(f.New)))
	}
	return fmt.Sprintf("%s updated %s:\n\n%s", mention, r.IssueLink(issue.ID), strings.Join(lines, "\n")), nil
}

// NewIssue renders a new issue notification. A failed assignee lookup only
// drops the assignment sentence.
func (r *Renderer) NewIssue(ctx context.Context, issue model.Issue) (string, error) {
	mention, err := r.Mention(ctx, issue.Reporter)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s created %s: %s with type %s.",
		mention, r.IssueLink(issue.ID), issue.Summary, issue.Type)

	if issue.Assignee != "" {
		assignee, err := r.Mention(ctx, issue.Assignee)
		if err != nil {
			r.logger.Warn("could not create assignee mention",
				"issue", issue.ID,
				"assignee", issue.Assignee,
				"error", err,
			)
		} else {
			fmt.Fprintf(&b, " Assigned to %s.", assignee)
		}
	}
	return b.String(), nil
}

func firstOr(values []string) string {
	if len(values) == 0 || values[0] == "" {
		return missingValue
	}
	return values[0]
}
