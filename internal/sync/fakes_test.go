package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	gosync "sync"
	"testing"

	"github.com/nhle/trackrelay/internal/chat"
	"github.com/nhle/trackrelay/internal/model"
	"github.com/nhle/trackrelay/internal/notify"
	"github.com/nhle/trackrelay/internal/store"
	"github.com/nhle/trackrelay/internal/testutil"
	"github.com/nhle/trackrelay/internal/tracker"
)

var errTransport = &tracker.TransportError{Op: "fake", Err: errors.New("connection reset")}

// fakeClient is an in-memory tracker.Client. Like the tracker's minute
// granular search, it ignores UpdatedAfter and returns every issue.
type fakeClient struct {
	mu           gosync.Mutex
	projects     []tracker.ProjectInfo
	users        []tracker.UserInfo
	issues       map[string][]model.Issue
	comments     map[string][]model.Comment
	changes      map[string][]model.Change
	pageErr      map[string]error
	commentErr   map[string]error
	queries      []tracker.IssueQuery
	commentCalls map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		issues:       make(map[string][]model.Issue),
		comments:     make(map[string][]model.Comment),
		changes:      make(map[string][]model.Change),
		pageErr:      make(map[string]error),
		commentErr:   make(map[string]error),
		commentCalls: make(map[string]int),
	}
}

func (f *fakeClient) GetProjects(context.Context) ([]tracker.ProjectInfo, error) {
	return f.projects, nil
}

func (f *fakeClient) GetUsers(context.Context) ([]tracker.UserInfo, error) {
	return f.users, nil
}

func (f *fakeClient) GetUser(_ context.Context, login string) (*tracker.UserInfo, error) {
	for _, u := range f.users {
		if u.Login == login {
			return &u, nil
		}
	}
	return nil, &tracker.DomainError{Op: "GetUser", StatusCode: 404, Message: "no such user"}
}

func (f *fakeClient) GetIssues(_ context.Context, q tracker.IssueQuery) ([]model.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if err := f.pageErr[q.Project]; err != nil {
		return nil, err
	}
	all := f.issues[q.Project]
	if q.Offset >= len(all) {
		return nil, nil
	}
	end := min(q.Offset+q.Limit, len(all))
	return append([]model.Issue(nil), all[q.Offset:end]...), nil
}

func (f *fakeClient) GetComments(_ context.Context, issueID string) ([]model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commentCalls[issueID]++
	if err := f.commentErr[issueID]; err != nil {
		return nil, err
	}
	return f.comments[issueID], nil
}

func (f *fakeClient) GetChangesForIssue(_ context.Context, issueID string) ([]model.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changes[issueID], nil
}

func (f *fakeClient) setCommentErr(issueID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.commentErr, issueID)
		return
	}
	f.commentErr[issueID] = err
}

func (f *fakeClient) lastQuery() tracker.IssueQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

type sentMessage struct {
	ChatID    string
	Text      string
	Formatted bool
}

// recordingMessenger captures every message that reaches a chat.
type recordingMessenger struct {
	mu             gosync.Mutex
	sent           []sentMessage
	rejectMarkdown bool
	failContaining string
}

func (m *recordingMessenger) Channel(chatID string) chat.Channel {
	return &recordingChannel{m: m, chatID: chatID}
}

func (m *recordingMessenger) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

type recordingChannel struct {
	m      *recordingMessenger
	chatID string
}

func (c *recordingChannel) ID() string { return c.chatID }

func (c *recordingChannel) SendText(_ context.Context, text string, formatted bool) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if c.m.failContaining != "" && strings.Contains(text, c.m.failContaining) {
		return errors.New("chat unavailable")
	}
	if formatted && c.m.rejectMarkdown {
		return &chat.FormattingError{ChatID: c.chatID, Message: "can't parse entities"}
	}
	c.m.sent = append(c.m.sent, sentMessage{ChatID: c.chatID, Text: text, Formatted: formatted})
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	store     *store.SQLiteStore
	client    *fakeClient
	messenger *recordingMessenger
	sweeper   *Sweeper
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	s := testutil.NewTestStore(t)
	client := newFakeClient()
	messenger := &recordingMessenger{}
	logger := discardLogger()
	renderer := notify.NewRenderer("https://yt.example.com", s, logger)
	sweeper := NewSweeper(tracker.NewSerial(client, logger), s, messenger, renderer, opts, logger)
	return &harness{store: s, client: client, messenger: messenger, sweeper: sweeper}
}

func (h *harness) project(t *testing.T, id string) model.Project {
	t.Helper()
	p, err := h.store.GetProject(context.Background(), id)
	if err != nil {
		t.Fatalf("reading project %s: %v", id, err)
	}
	return *p
}
