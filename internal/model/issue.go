package model

import "strings"

// Issue is a tracker issue as seen during a sweep. Timestamps are epoch
// milliseconds, the tracker's native resolution.
type Issue struct {
	ID            string
	Created       int64
	Updated       int64
	Reporter      string
	Summary       string
	Type          string
	Assignee      string
	CommentsCount int
}

// ProjectID returns the short-name prefix of the issue id ("PRJ" for "PRJ-12").
func (i Issue) ProjectID() string {
	return ProjectOfIssue(i.ID)
}

// ProjectOfIssue extracts the project short name from a readable issue id.
func ProjectOfIssue(issueID string) string {
	if idx := strings.LastIndex(issueID, "-"); idx > 0 {
		return issueID[:idx]
	}
	return issueID
}

// Comment is a single comment on an issue.
type Comment struct {
	ID      string
	IssueID string
	Author  string
	Text    string
	Created int64
	// Updated is zero when the comment was never edited.
	Updated int64
}

// Timestamp returns the time used to compare the comment against a
// watermark: the edit time if present, otherwise the creation time.
func (c Comment) Timestamp() int64 {
	if c.Updated > 0 {
		return c.Updated
	}
	return c.Created
}

// FieldDelta is one field transition within a Change.
type FieldDelta struct {
	Name string
	Old  []string
	New  []string
}

// Change is a batch of field updates made by one user at one instant.
type Change struct {
	Updated int64
	Updater string
	Fields  []FieldDelta
}
