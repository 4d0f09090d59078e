package testutil

import (
	"context"
	"testing"

	"github.com/nhle/trackrelay/internal/model"
	"github.com/nhle/trackrelay/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedProject inserts a project linked to chatID and sets its watermark.
func SeedProject(t *testing.T, s *store.SQLiteStore, id, chatID string, lastChecked int64) model.Project {
	t.Helper()
	ctx := context.Background()

	if err := s.UpsertProjects(ctx, []model.Project{{ID: id, Name: id}}); err != nil {
		t.Fatalf("seeding project %s: %v", id, err)
	}
	if err := s.LinkProject(ctx, id, chatID, ""); err != nil {
		t.Fatalf("linking project %s: %v", id, err)
	}
	// Linking starts the watermark at now; rewind it for the test.
	if _, err := s.DB().ExecContext(ctx,
		"UPDATE projects SET last_checked = ? WHERE id = ?", lastChecked, id); err != nil {
		t.Fatalf("setting watermark for %s: %v", id, err)
	}

	p, err := s.GetProject(ctx, id)
	if err != nil {
		t.Fatalf("reading project %s: %v", id, err)
	}
	return *p
}
