package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/trackrelay/internal/model"
	"github.com/nhle/trackrelay/internal/store"
	"github.com/nhle/trackrelay/internal/testutil"
)

func TestMigrations_Applied(t *testing.T) {
	s := testutil.NewTestStore(t)
	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestAdvanceWatermark_Monotonic(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	testutil.SeedProject(t, s, "PRJ", "-1", 1000)

	changed, err := s.AdvanceWatermark(ctx, "PRJ", 1500)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.AdvanceWatermark(ctx, "PRJ", 1200)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = s.AdvanceWatermark(ctx, "PRJ", 1500)
	require.NoError(t, err)
	assert.False(t, changed)

	p, err := s.GetProject(ctx, "PRJ")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), p.LastChecked)
}

func TestListProjects_OnlyTracked(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertProjects(ctx, []model.Project{
		{ID: "A", TrackerID: "0-1", Name: "Alpha"},
		{ID: "B", TrackerID: "0-2", Name: "Beta"},
	}))
	require.NoError(t, s.LinkProject(ctx, "B", "-100", "#Unresolved"))

	tracked, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, "B", tracked[0].ID)
	assert.Equal(t, "#Unresolved", tracked[0].SearchFilter)
	assert.Equal(t, "0-2", tracked[0].TrackerID)

	all, err := s.AllProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLinkProject_StartsWatermarkAtNow(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertProjects(ctx, []model.Project{{ID: "PRJ"}}))

	before := time.Now().UnixMilli()
	require.NoError(t, s.LinkProject(ctx, "PRJ", "-1", ""))

	p, err := s.GetProject(ctx, "PRJ")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.LastChecked, before)
	assert.Equal(t, "PRJ", p.TrackerID)

	// Relinking keeps the existing watermark.
	_, err = s.AdvanceWatermark(ctx, "PRJ", p.LastChecked+5000)
	require.NoError(t, err)
	require.NoError(t, s.LinkProject(ctx, "PRJ", "-2", ""))
	p2, err := s.GetProject(ctx, "PRJ")
	require.NoError(t, err)
	assert.Equal(t, p.LastChecked+5000, p2.LastChecked)
	assert.Equal(t, "-2", p2.ChatID)
}

func TestLinkProject_Unknown(t *testing.T) {
	s := testutil.NewTestStore(t)
	err := s.LinkProject(context.Background(), "NOPE", "-1", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsertProjects_PreservesLinkAndWatermark(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	testutil.SeedProject(t, s, "PRJ", "-1", 4242)

	require.NoError(t, s.UpsertProjects(ctx, []model.Project{{ID: "PRJ", Name: "Renamed"}}))

	p, err := s.GetProject(ctx, "PRJ")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Name)
	assert.Equal(t, "-1", p.ChatID)
	assert.Equal(t, int64(4242), p.LastChecked)
}

func TestCommentLedger_Idempotent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	posted, err := s.IsCommentPosted(ctx, "4-17")
	require.NoError(t, err)
	assert.False(t, posted)

	require.NoError(t, s.MarkCommentPosted(ctx, "4-17", "PRJ-1", "alice"))
	require.NoError(t, s.MarkCommentPosted(ctx, "4-17", "PRJ-1", "alice"))

	posted, err = s.IsCommentPosted(ctx, "4-17")
	require.NoError(t, err)
	assert.True(t, posted)

	var n int
	require.NoError(t, s.DB().Get(&n, "SELECT COUNT(*) FROM posted_comments"))
	assert.Equal(t, 1, n)
}

func TestBacklog_FloorOnlyMovesDown(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	testutil.SeedProject(t, s, "PRJ", "-1", 1000)

	attempts, err := s.RecordBacklog(ctx, model.BacklogEntry{
		ProjectID: "PRJ", IssueID: "PRJ-1", Floor: 1000, LastError: "boom",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	attempts, err = s.RecordBacklog(ctx, model.BacklogEntry{
		ProjectID: "PRJ", IssueID: "PRJ-1", Floor: 1600, LastError: "again",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	entries, err := s.ListBacklog(ctx, "PRJ")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1000), entries[0].Floor)
	assert.Equal(t, "again", entries[0].LastError)

	require.NoError(t, s.ClearBacklog(ctx, "PRJ", "PRJ-1"))
	entries, err = s.ListBacklog(ctx, "PRJ")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUsers_UpsertAndLink(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUsers(ctx, []model.User{{Login: "alice", FullName: "Alice A"}}))
	require.NoError(t, s.LinkUser(ctx, "alice", "1001"))
	require.NoError(t, s.UpsertUsers(ctx, []model.User{{Login: "alice", FullName: "Alice B"}}))

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice B", u.FullName)
	assert.Equal(t, "1001", u.ChatUserID)

	_, err = s.GetUser(ctx, "bob")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.LinkUser(ctx, "bob", "1"), store.ErrNotFound)
}

func TestDeliveries_Count(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	since := time.Now().Add(-time.Minute)

	require.NoError(t, s.RecordDelivery(ctx, model.Delivery{
		ProjectID: "PRJ", IssueID: "PRJ-1", Kind: model.DeliveryComment, ChatID: "-1", Formatted: true,
	}))
	require.NoError(t, s.RecordDelivery(ctx, model.Delivery{
		ProjectID: "PRJ", IssueID: "PRJ-2", Kind: model.DeliveryIssue, ChatID: "-1",
	}))

	n, err := s.CountDeliveriesSince(ctx, "PRJ", since)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountDeliveriesSince(ctx, "OTHER", since)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecordSweepResult(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	testutil.SeedProject(t, s, "PRJ", "-1", 1)

	require.NoError(t, s.RecordSweepResult(ctx, "PRJ", errors.New("tracker down")))
	p, err := s.GetProject(ctx, "PRJ")
	require.NoError(t, err)
	assert.Equal(t, "tracker down", p.LastError)
	require.NotNil(t, p.LastAttemptAt)

	require.NoError(t, s.RecordSweepResult(ctx, "PRJ", nil))
	p, err = s.GetProject(ctx, "PRJ")
	require.NoError(t, err)
	assert.Empty(t, p.LastError)
}
