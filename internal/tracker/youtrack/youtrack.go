// Package youtrack implements tracker.Client against the YouTrack REST API.
package youtrack

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/trackrelay/internal/model"
	"github.com/nhle/trackrelay/internal/tracker"
)

// listPageSize is the page size used when listing projects and users.
const listPageSize = 100

// Field selections requested from the API.
const (
	projectFields  = "id,shortName,name"
	userFields     = "login,fullName"
	issueFields    = "idReadable,created,updated,summary,commentsCount,reporter(login),customFields(name,value(name,login,text,presentation))"
	commentFields  = "id,text,created,updated,author(login)"
	activityFields = "timestamp,author(login),field(name),added(name,login,text,presentation),removed(name,login,text,presentation)"
)

// Custom field names read from issues.
const (
	fieldType     = "Type"
	fieldAssignee = "Assignee"
)

var _ tracker.Client = (*Client)(nil)

// GetProjects lists every project visible to the authenticated user.
func (c *Client) GetProjects(ctx context.Context) ([]tracker.ProjectInfo, error) {
	var out []tracker.ProjectInfo
	for skip := 0; ; skip += listPageSize {
		var page []Project
		err := c.get(ctx, "get_projects", "/api/admin/projects", listParams(projectFields, skip), &page)
		if err != nil {
			return nil, fmt.Errorf("fetching projects: %w", err)
		}
		for _, p := range page {
			out = append(out, tracker.ProjectInfo{ID: p.ID, ShortName: p.ShortName, Name: p.Name})
		}
		if len(page) < listPageSize {
			return out, nil
		}
	}
}

// GetUsers lists every user.
func (c *Client) GetUsers(ctx context.Context) ([]tracker.UserInfo, error) {
	var out []tracker.UserInfo
	for skip := 0; ; skip += listPageSize {
		var page []User
		err := c.get(ctx, "get_users", "/api/users", listParams(userFields, skip), &page)
		if err != nil {
			return nil, fmt.Errorf("fetching users: %w", err)
		}
		for _, u := range page {
			out = append(out, tracker.UserInfo{Login: u.Login, FullName: u.FullName})
		}
		if len(page) < listPageSize {
			return out, nil
		}
	}
}

// GetUser fetches one user by login.
func (c *Client) GetUser(ctx context.Context, login string) (*tracker.UserInfo, error) {
	params := url.Values{}
	params.Set("fields", userFields)

	var u User
	path := "/api/users/" + url.PathEscape(login)
	if err := c.get(ctx, "get_user", path, params, &u); err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", login, err)
	}
	return &tracker.UserInfo{Login: u.Login, FullName: u.FullName}, nil
}

// GetIssues fetches one page of a project's issues, oldest update first.
func (c *Client) GetIssues(ctx context.Context, q tracker.IssueQuery) ([]model.Issue, error) {
	params := url.Values{}
	params.Set("query", BuildQuery(q))
	params.Set("fields", issueFields)
	params.Set("$skip", strconv.Itoa(q.Offset))
	params.Set("$top", strconv.Itoa(q.Limit))

	var page []Issue
	if err := c.get(ctx, "get_issues", "/api/issues", params, &page); err != nil {
		return nil, fmt.Errorf("fetching issues of %s: %w", q.Project, err)
	}

	issues := make([]model.Issue, 0, len(page))
	for _, is := range page {
		issues = append(issues, toIssue(is))
	}
	return issues, nil
}

// GetComments fetches all comments of an issue.
func (c *Client) GetComments(ctx context.Context, issueID string) ([]model.Comment, error) {
	params := url.Values{}
	params.Set("fields", commentFields)
	params.Set("$top", "-1")

	var raw []Comment
	path := "/api/issues/" + url.PathEscape(issueID) + "/comments"
	if err := c.get(ctx, "get_comments", path, params, &raw); err != nil {
		return nil, fmt.Errorf("fetching comments of %s: %w", issueID, err)
	}

	comments := make([]model.Comment, 0, len(raw))
	for _, cm := range raw {
		comments = append(comments, model.Comment{
			ID:      cm.ID,
			IssueID: issueID,
			Author:  loginOf(cm.Author),
			Text:    cm.Text,
			Created: cm.Created,
			Updated: cm.Updated,
		})
	}
	return comments, nil
}

// GetChangesForIssue fetches custom field activities of an issue, grouped
// into one Change per (timestamp, author).
func (c *Client) GetChangesForIssue(ctx context.Context, issueID string) ([]model.Change, error) {
	params := url.Values{}
	params.Set("categories", "CustomFieldCategory")
	params.Set("fields", activityFields)
	params.Set("$top", "-1")

	var raw []Activity
	path := "/api/issues/" + url.PathEscape(issueID) + "/activities"
	if err := c.get(ctx, "get_changes", path, params, &raw); err != nil {
		return nil, fmt.Errorf("fetching changes of %s: %w", issueID, err)
	}
	return groupActivities(raw), nil
}

// queryMargin widens the updated bound. Query dates carry no zone and are
// read in the profile timezone of the authenticated user, which can be up
// to 14h away from UTC.
const queryMargin = 24 * time.Hour

// BuildQuery renders the search query for an issue page. The updated bound
// is moved back by queryMargin and truncated to the minute, so the result is
// a superset of the issues changed since UpdatedAfter. Callers filter
// individual events by timestamp.
func BuildQuery(q tracker.IssueQuery) string {
	parts := []string{"project: " + quoteValue(q.Project)}
	if f := strings.TrimSpace(q.Filter); f != "" {
		parts = append(parts, "("+f+")")
	}
	if q.UpdatedAfter > 0 {
		from := time.UnixMilli(q.UpdatedAfter).UTC().Add(-queryMargin).Format("2006-01-02T15:04")
		parts = append(parts, "updated: "+from+" .. *")
	}
	parts = append(parts, "sort by: updated asc")
	return strings.Join(parts, " ")
}

// quoteValue wraps values containing spaces in braces, the query
// language's quoting for multi-word values.
func quoteValue(v string) string {
	if strings.ContainsAny(v, " \t") {
		return "{" + v + "}"
	}
	return v
}

func listParams(fields string, skip int) url.Values {
	params := url.Values{}
	params.Set("fields", fields)
	params.Set("$skip", strconv.Itoa(skip))
	params.Set("$top", strconv.Itoa(listPageSize))
	return params
}

// toIssue converts a wire issue to a model.Issue.
func toIssue(is Issue) model.Issue {
	out := model.Issue{
		ID:            is.IDReadable,
		Created:       is.Created,
		Updated:       is.Updated,
		Reporter:      loginOf(is.Reporter),
		Summary:       is.Summary,
		CommentsCount: is.CommentsCount,
	}
	for _, f := range is.CustomFields {
		values := decodeValues(f.Value)
		if len(values) == 0 {
			continue
		}
		switch f.Name {
		case fieldType:
			out.Type = values[0]
		case fieldAssignee:
			out.Assignee = values[0]
		}
	}
	return out
}

// groupActivities folds consecutive activities made by the same author at
// the same instant into one Change, preserving order.
func groupActivities(raw []Activity) []model.Change {
	var changes []model.Change
	for _, a := range raw {
		if a.Field == nil {
			continue
		}
		delta := model.FieldDelta{
			Name: a.Field.Name,
			Old:  decodeValues(a.Removed),
			New:  decodeValues(a.Added),
		}
		author := loginOf(a.Author)

		if n := len(changes); n > 0 &&
			changes[n-1].Updated == a.Timestamp &&
			changes[n-1].Updater == author {
			changes[n-1].Fields = append(changes[n-1].Fields, delta)
			continue
		}
		changes = append(changes, model.Change{
			Updated: a.Timestamp,
			Updater: author,
			Fields:  []model.FieldDelta{delta},
		})
	}
	return changes
}

func loginOf(u *User) string {
	if u == nil {
		return ""
	}
	return u.Login
}
