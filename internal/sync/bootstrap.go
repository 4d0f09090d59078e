package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nhle/trackrelay/internal/model"
	"github.com/nhle/trackrelay/internal/store"
	"github.com/nhle/trackrelay/internal/tracker"
)

// BootstrapResult counts what Bootstrap imported.
type BootstrapResult struct {
	Projects int
	Users    int
}

// Bootstrap imports the tracker's projects and users into the store. Known
// projects keep their chat link, filter and watermark; known users keep
// their chat user id.
func Bootstrap(
	ctx context.Context,
	t tracker.Tracker,
	s store.Store,
	logger *slog.Logger,
) (BootstrapResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var result BootstrapResult

	infos, err := t.Projects(ctx)
	if err != nil {
		return result, fmt.Errorf("fetching projects: %w", err)
	}
	projects := make([]model.Project, 0, len(infos))
	for _, info := range infos {
		id := info.ShortName
		if id == "" {
			id = info.ID
		}
		projects = append(projects, model.Project{ID: id, TrackerID: id, Name: info.Name})
	}
	if err := s.UpsertProjects(ctx, projects); err != nil {
		return result, fmt.Errorf("storing projects: %w", err)
	}
	result.Projects = len(projects)

	listed, err := t.Users(ctx)
	if err != nil {
		return result, fmt.Errorf("fetching users: %w", err)
	}
	users := make([]model.User, 0, len(listed))
	for _, u := range listed {
		detail, err := t.User(ctx, u.Login)
		if err != nil {
			return result, fmt.Errorf("fetching user %s: %w", u.Login, err)
		}
		login := detail.Login
		if login == "" {
			login = u.Login
		}
		users = append(users, model.User{Login: login, FullName: detail.FullName})
	}
	if err := s.UpsertUsers(ctx, users); err != nil {
		return result, fmt.Errorf("storing users: %w", err)
	}
	result.Users = len(users)

	logger.Info("bootstrap complete", "projects", result.Projects, "users", result.Users)
	return result, nil
}
