package youtrack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/trackrelay/internal/model"
	"github.com/nhle/trackrelay/internal/tracker"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name string
		q    tracker.IssueQuery
		want string
	}{
		{
			name: "no watermark",
			q:    tracker.IssueQuery{Project: "PRJ"},
			want: "project: PRJ sort by: updated asc",
		},
		{
			name: "filter and watermark",
			q: tracker.IssueQuery{
				Project:      "PRJ",
				Filter:       " #Unresolved ",
				UpdatedAfter: time.Date(2024, 3, 1, 10, 30, 45, 0, time.UTC).UnixMilli(),
			},
			want: "project: PRJ (#Unresolved) updated: 2024-02-29T10:30 .. * sort by: updated asc",
		},
		{
			name: "or inside filter stays scoped",
			q:    tracker.IssueQuery{Project: "PRJ", Filter: "#Bug or #Feature"},
			want: "project: PRJ (#Bug or #Feature) sort by: updated asc",
		},
		{
			name: "multi-word project",
			q:    tracker.IssueQuery{Project: "Mobile App"},
			want: "project: {Mobile App} sort by: updated asc",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(tt.q))
		})
	}
}

func TestBuildQuery_BoundPrecedesWatermarkInAnyTimezone(t *testing.T) {
	watermark := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	query := BuildQuery(tracker.IssueQuery{Project: "PRJ", UpdatedAfter: watermark.UnixMilli()})

	_, rest, found := strings.Cut(query, "updated: ")
	require.True(t, found)
	bound, _, _ := strings.Cut(rest, " ")

	for _, offset := range []int{-12, -5, 0, 9, 14} {
		loc := time.FixedZone("profile", offset*3600)
		from, err := time.ParseInLocation("2006-01-02T15:04", bound, loc)
		require.NoError(t, err)
		assert.False(t, from.After(watermark), "offset %d: bound %s is after the watermark", offset, from)
	}
}

func TestGetIssues_RequestAndConversion(t *testing.T) {
	var gotQuery, gotAuth, gotSkip, gotTop string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/issues", r.URL.Path)
		gotQuery = r.URL.Query().Get("query")
		gotSkip = r.URL.Query().Get("$skip")
		gotTop = r.URL.Query().Get("$top")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{
			"idReadable": "PRJ-7",
			"created": 1500,
			"updated": 1700,
			"summary": "Crash on start",
			"commentsCount": 2,
			"reporter": {"login": "alice"},
			"customFields": [
				{"name": "Type", "value": {"name": "Bug"}},
				{"name": "Assignee", "value": {"login": "bob"}},
				{"name": "Priority", "value": null}
			]
		}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", Credentials{Token: "perm:abc"})
	issues, err := c.GetIssues(context.Background(), tracker.IssueQuery{
		Project: "PRJ", Offset: 50, Limit: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer perm:abc", gotAuth)
	assert.Equal(t, "project: PRJ sort by: updated asc", gotQuery)
	assert.Equal(t, "50", gotSkip)
	assert.Equal(t, "50", gotTop)
	require.Len(t, issues, 1)
	assert.Equal(t, model.Issue{
		ID:            "PRJ-7",
		Created:       1500,
		Updated:       1700,
		Reporter:      "alice",
		Summary:       "Crash on start",
		Type:          "Bug",
		Assignee:      "bob",
		CommentsCount: 2,
	}, issues[0])
}

func TestGetChangesForIssue_GroupsByInstantAndAuthor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/issues/PRJ-1/activities", r.URL.Path)
		assert.Equal(t, "CustomFieldCategory", r.URL.Query().Get("categories"))
		_, _ = w.Write([]byte(`[
			{"timestamp": 2000, "author": {"login": "carol"}, "field": {"name": "State"},
			 "removed": [{"name": "Open"}], "added": [{"name": "Fixed"}]},
			{"timestamp": 2000, "author": {"login": "carol"}, "field": {"name": "Assignee"},
			 "removed": [], "added": [{"login": "bob"}]},
			{"timestamp": 2500, "author": {"login": "dave"}, "field": {"name": "Estimation"},
			 "removed": null, "added": 3600}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{Token: "t"})
	changes, err := c.GetChangesForIssue(context.Background(), "PRJ-1")
	require.NoError(t, err)

	require.Len(t, changes, 2)
	assert.Equal(t, int64(2000), changes[0].Updated)
	assert.Equal(t, "carol", changes[0].Updater)
	assert.Equal(t, []model.FieldDelta{
		{Name: "State", Old: []string{"Open"}, New: []string{"Fixed"}},
		{Name: "Assignee", Old: nil, New: []string{"bob"}},
	}, changes[0].Fields)
	assert.Equal(t, []model.FieldDelta{
		{Name: "Estimation", Old: nil, New: []string{"3600"}},
	}, changes[1].Fields)
}

func TestGetComments_SetsIssueID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": "4-1", "text": "hi", "created": 900, "author": {"login": "eve"}}]`))
	}))
	defer srv.Close()

	comments, err := NewClient(srv.URL, Credentials{Token: "t"}).GetComments(context.Background(), "PRJ-3")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "PRJ-3", comments[0].IssueID)
	assert.Equal(t, int64(900), comments[0].Timestamp())
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		domain    bool
		transport bool
	}{
		{"bad query", http.StatusBadRequest, `{"error":"invalid_query","error_description":"Unknown field"}`, true, false},
		{"forbidden", http.StatusForbidden, `{"error":"forbidden"}`, true, false},
		{"server error", http.StatusBadGateway, `oops`, false, true},
		{"malformed body", http.StatusOK, `{not json`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, Credentials{Token: "t"}).GetComments(context.Background(), "PRJ-1")
			require.Error(t, err)
			assert.Equal(t, tt.domain, tracker.IsDomainError(err))
			assert.Equal(t, tt.transport, tracker.IsTransportError(err))
		})
	}
}

func TestConnectionRefusedIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, Credentials{Token: "t"}).GetProjects(context.Background())
	require.Error(t, err)
	assert.True(t, tracker.IsTransportError(err))
}

func TestRateLimitRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, Credentials{Token: "t"}).GetUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSessionLoginAndRelogin(t *testing.T) {
	var logins, issuesCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/user/login":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "robot", r.PostForm.Get("login"))
			assert.Equal(t, "secret", r.PostForm.Get("password"))
			n := logins.Add(1)
			http.SetCookie(w, &http.Cookie{Name: "YTSESSION", Value: strings.Repeat("x", int(n)), Path: "/"})
			_, _ = w.Write([]byte(`<login>ok</login>`))
		case "/api/issues":
			if _, err := r.Cookie("YTSESSION"); err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			// The first session expires after one request.
			if issuesCalls.Add(1) == 2 {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
				return
			}
			_, _ = w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{Login: "robot", Password: "secret"})
	ctx := context.Background()
	q := tracker.IssueQuery{Project: "PRJ", Limit: 10}

	_, err := c.GetIssues(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int32(1), logins.Load())

	_, err = c.GetIssues(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int32(2), logins.Load(), "expired session must log in again")
	assert.Equal(t, int32(3), issuesCalls.Load())
}

func TestSessionLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, Credentials{Login: "robot", Password: "nope"}).GetProjects(context.Background())
	require.Error(t, err)
	assert.True(t, tracker.IsDomainError(err))
	assert.Contains(t, err.Error(), "invalid credentials")
}
