package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/trackrelay/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// SQLite has a single writer. One connection also keeps ":memory:"
	// databases shared between goroutines.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance and test fixtures.
func (s *SQLiteStore) DB() *sqlx.DB {
	return s.db
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	var v int
	err := s.db.Get(&v, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	return v, err
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order, each in its own transaction.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		currentVersion, err = s.SchemaVersion()
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		tx, err := s.db.Beginx()
		if err != nil {
			return fmt.Errorf("beginning migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// UpsertUsers inserts or updates users by login. Chat links are preserved.
func (s *SQLiteStore) UpsertUsers(ctx context.Context, users []model.User) error {
	if len(users) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO users (login, full_name, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(login) DO UPDATE SET
			full_name = excluded.full_name,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing user upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, u := range users {
		if _, err := stmt.ExecContext(ctx, u.Login, u.FullName, now); err != nil {
			return fmt.Errorf("upserting user %s: %w", u.Login, err)
		}
	}

	return tx.Commit()
}

// GetUser retrieves a single user by tracker login.
func (s *SQLiteStore) GetUser(ctx context.Context, login string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u,
		"SELECT login, full_name, chat_user_id, updated_at FROM users WHERE login = ?", login)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", login, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", login, err)
	}
	return &u, nil
}

// LinkUser sets the chat user id used to mention a tracker user.
func (s *SQLiteStore) LinkUser(ctx context.Context, login, chatUserID string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET chat_user_id = ?, updated_at = ? WHERE login = ?",
		chatUserID, time.Now().UTC(), login)
	if err != nil {
		return fmt.Errorf("linking user %s: %w", login, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user %s: %w", login, ErrNotFound)
	}
	return nil
}

// RecordDelivery inserts a delivery audit row. A UUID is generated when
// the delivery has no ID.
func (s *SQLiteStore) RecordDelivery(ctx context.Context, d model.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, project_id, issue_id, kind, chat_id, formatted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ProjectID, d.IssueID, string(d.Kind), d.ChatID,
		boolToInt(d.Formatted), d.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording delivery for %s: %w", d.IssueID, err)
	}
	return nil
}

// CountDeliveriesSince counts deliveries for a project created at or after since.
func (s *SQLiteStore) CountDeliveriesSince(
	ctx context.Context,
	projectID string,
	since time.Time,
) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM deliveries WHERE project_id = ? AND created_at >= ?",
		projectID, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("counting deliveries for %s: %w", projectID, err)
	}
	return n, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
