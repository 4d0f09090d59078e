package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nhle/trackrelay/internal/model"
	"github.com/nhle/trackrelay/internal/store"
	"github.com/nhle/trackrelay/internal/theme"
)

// ProjectsOptions holds flags for the projects command.
type ProjectsOptions struct {
	*RootOptions
	TrackedOnly bool
}

// projectRow is one line of the projects table.
type projectRow struct {
	project  model.Project
	backlog  int
	sentLast int
	state    string
}

func newProjectsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProjectsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Show projects, their chats and sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts.RootOptions, needNone)
			if err != nil {
				return err
			}
			defer e.Close()

			rows, err := loadProjectRows(cmd.Context(), e.store, opts.TrackedOnly, time.Now())
			if err != nil {
				return WrapExitError(ExitCommandError, "listing projects", err)
			}
			renderProjects(cmd.OutOrStdout(), rows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.TrackedOnly, "tracked", false, "only show projects linked to a chat")

	return cmd
}

func loadProjectRows(ctx context.Context, s store.Store, trackedOnly bool, now time.Time) ([]projectRow, error) {
	var projects []model.Project
	var err error
	if trackedOnly {
		projects, err = s.ListProjects(ctx)
	} else {
		projects, err = s.AllProjects(ctx)
	}
	if err != nil {
		return nil, err
	}

	rows := make([]projectRow, 0, len(projects))
	for _, p := range projects {
		backlog, err := s.ListBacklog(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		sent, err := s.CountDeliveriesSince(ctx, p.ID, now.Add(-24*time.Hour))
		if err != nil {
			return nil, err
		}
		rows = append(rows, projectRow{
			project:  p,
			backlog:  len(backlog),
			sentLast: sent,
			state:    projectState(p, len(backlog)),
		})
	}
	return rows, nil
}

func projectState(p model.Project, backlog int) string {
	switch {
	case !p.Tracked():
		return theme.StateUnlinked
	case p.LastError != "":
		return theme.StateFailing
	case backlog > 0:
		return theme.StateBacklog
	default:
		return theme.StateOK
	}
}

func renderProjects(w io.Writer, rows []projectRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, theme.HelpStyle.Render("No projects yet. Run 'trackrelay bootstrap' first."))
		return
	}

	const stateCol = 6
	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		data = append(data, []string{
			r.project.ID,
			r.project.Name,
			dash(r.project.ChatID),
			formatWatermark(r.project),
			fmt.Sprint(r.backlog),
			fmt.Sprint(r.sentLast),
			r.state,
			dash(truncate(r.project.LastError, 48)),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(theme.BorderStyle).
		Headers("PROJECT", "NAME", "CHAT", "WATERMARK", "BACKLOG", "SENT 24H", "STATE", "LAST ERROR").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.HeaderStyle
			}
			if col == stateCol && row >= 0 && row < len(rows) {
				return theme.StateStyle(rows[row].state)
			}
			return theme.CellStyle
		})

	fmt.Fprintln(w, t.Render())
}

func formatWatermark(p model.Project) string {
	wm := p.Watermark()
	if wm.IsZero() {
		return "-"
	}
	return wm.Local().Format("2006-01-02 15:04:05")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
