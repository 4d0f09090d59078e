package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/trackrelay/internal/model"
)

const projectColumns = `id, tracker_id, name, search_filter, chat_id, last_checked,
	last_error, last_attempt_at, created_at, updated_at`

// ListProjects returns the projects linked to a chat, ordered by id.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	err := s.db.SelectContext(ctx, &projects,
		"SELECT "+projectColumns+" FROM projects WHERE chat_id != '' ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying tracked projects: %w", err)
	}
	return projects, nil
}

// AllProjects returns every known project, tracked or not.
func (s *SQLiteStore) AllProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	err := s.db.SelectContext(ctx, &projects,
		"SELECT "+projectColumns+" FROM projects ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	return projects, nil
}

// GetProject retrieves a single project by ID.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := s.db.GetContext(ctx, &p,
		"SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting project %s: %w", id, err)
	}
	return &p, nil
}

// UpsertProjects inserts new projects and refreshes the tracker id and name
// of known ones. Chat links, filters and watermarks are left untouched.
func (s *SQLiteStore) UpsertProjects(ctx context.Context, projects []model.Project) error {
	if len(projects) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO projects (id, tracker_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tracker_id = excluded.tracker_id,
			name = excluded.name,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing project upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range projects {
		if p.ID == "" {
			return fmt.Errorf("project id must not be empty")
		}
		trackerID := p.TrackerID
		if trackerID == "" {
			trackerID = p.ID
		}
		if _, err := stmt.ExecContext(ctx, p.ID, trackerID, p.Name, now, now); err != nil {
			return fmt.Errorf("upserting project %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// LinkProject relays a project into chatID with an optional search filter.
// An empty chatID unlinks the project. A project linked for the first time
// starts its watermark at the current time so history is not replayed.
func (s *SQLiteStore) LinkProject(ctx context.Context, id, chatID, filter string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET
			chat_id = ?,
			search_filter = ?,
			last_checked = CASE WHEN last_checked = 0 AND ? != '' THEN ? ELSE last_checked END,
			updated_at = ?
		WHERE id = ?`,
		chatID, filter, chatID, now.UnixMilli(), now, id,
	)
	if err != nil {
		return fmt.Errorf("linking project %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

// AdvanceWatermark moves last_checked forward. A value not greater than the
// stored one leaves the row unchanged.
func (s *SQLiteStore) AdvanceWatermark(
	ctx context.Context,
	projectID string,
	lastChecked int64,
) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET last_checked = ?, updated_at = ?
		WHERE id = ? AND last_checked < ?`,
		lastChecked, time.Now().UTC(), projectID, lastChecked,
	)
	if err != nil {
		return false, fmt.Errorf("advancing watermark for %s: %w", projectID, err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// RecordSweepResult stores the error of the latest sweep, or clears it.
func (s *SQLiteStore) RecordSweepResult(ctx context.Context, projectID string, sweepErr error) error {
	msg := ""
	if sweepErr != nil {
		msg = sweepErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE projects SET last_error = ?, last_attempt_at = ? WHERE id = ?",
		msg, time.Now().UTC(), projectID)
	if err != nil {
		return fmt.Errorf("recording sweep result for %s: %w", projectID, err)
	}
	return nil
}
