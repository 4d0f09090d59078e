// Package sync relays tracker activity into chats: it sweeps each tracked
// project since its watermark and drives those sweeps on a timer.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/nhle/trackrelay/internal/chat"
	"github.com/nhle/trackrelay/internal/model"
	"github.com/nhle/trackrelay/internal/notify"
	"github.com/nhle/trackrelay/internal/store"
	"github.com/nhle/trackrelay/internal/tracker"
)

const (
	defaultPageSize              = 50
	defaultIssueConcurrency      = 4
	defaultFailureAlertThreshold = 3
)

// StoreError wraps a persistence failure inside a sweep. It aborts the sweep.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error (%s): %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreError reports whether err (or any error in its chain) is a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// Options tunes a Sweeper. Zero values select the defaults.
type Options struct {
	PageSize              int
	IssueConcurrency      int
	FailureAlertThreshold int
}

// OptionsFromConfig maps the sync section of the config to Options.
func OptionsFromConfig(cfg model.SyncConfig) Options {
	return Options{
		PageSize:              cfg.PageSize,
		IssueConcurrency:      cfg.IssueConcurrency,
		FailureAlertThreshold: cfg.FailureAlertThreshold,
	}
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	if o.IssueConcurrency <= 0 {
		o.IssueConcurrency = defaultIssueConcurrency
	}
	if o.FailureAlertThreshold <= 0 {
		o.FailureAlertThreshold = defaultFailureAlertThreshold
	}
	return o
}

// SweepResult summarizes one sweep of one project.
type SweepResult struct {
	ProjectID string

	// Issues is the number of distinct issues evaluated.
	Issues int

	// Delivered counts notifications sent, markdown or plain.
	Delivered int

	// Failed counts issues moved to the retry backlog.
	Failed int

	// Watermark is the project watermark after the sweep.
	Watermark int64

	Advanced bool
}

// Sweeper evaluates one project's issues against its watermark and sends
// notifications for new issues, comments and field changes.
type Sweeper struct {
	tracker   tracker.Tracker
	store     store.Store
	messenger chat.Messenger
	renderer  *notify.Renderer
	opts      Options
	logger    *slog.Logger
}

// NewSweeper creates a Sweeper. The tracker must be safe for concurrent use;
// pass a *tracker.Serial.
func NewSweeper(
	t tracker.Tracker,
	s store.Store,
	m chat.Messenger,
	r *notify.Renderer,
	opts Options,
	logger *slog.Logger,
) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		tracker:   t,
		store:     s,
		messenger: m,
		renderer:  r,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// issueOutcome is the result of evaluating a single issue.
type issueOutcome struct {
	candidate int64
	delivered int
}

// sweepState accumulates per-issue outcomes across concurrently processed
// issues of a sweep.
type sweepState struct {
	mu        gosync.Mutex
	candidate int64
	delivered int
	failed    int
	seen      map[string]bool
}

// claim marks issueID as evaluated and reports whether it was new.
func (st *sweepState) claim(issueID string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.seen[issueID] {
		return false
	}
	st.seen[issueID] = true
	return true
}

func (st *sweepState) succeed(out issueOutcome) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.candidate = max(st.candidate, out.candidate)
	st.delivered += out.delivered
}

func (st *sweepState) fail(delivered int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.failed++
	st.delivered += delivered
}

// Sweep pages through the project's issues updated since its watermark,
// delivers notifications and advances the watermark through every issue
// that was processed successfully.
//
// Issues that fail are written to the retry backlog together with the floor
// they were evaluated against and are retried on later sweeps. A failed page
// fetch returns an error without advancing the watermark. Store failures
// return a *StoreError immediately.
func (s *Sweeper) Sweep(ctx context.Context, project model.Project) (SweepResult, error) {
	runID := RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := s.logger.With("run", runID, "project", project.ID)

	result := SweepResult{ProjectID: project.ID, Watermark: project.LastChecked}

	backlog, err := s.store.ListBacklog(ctx, project.ID)
	if err != nil {
		return result, &StoreError{Op: "listing backlog", Err: err}
	}
	floors := make(map[string]int64, len(backlog))
	queryFloor := project.LastChecked
	for _, e := range backlog {
		floors[e.IssueID] = e.Floor
		queryFloor = min(queryFloor, e.Floor)
	}

	logger.Info("sweeping project",
		"watermark", project.LastChecked,
		"query_floor", queryFloor,
		"backlog", len(backlog),
	)

	st := &sweepState{seen: make(map[string]bool)}
	trackerID := project.TrackerID
	if trackerID == "" {
		trackerID = project.ID
	}

	for offset := 0; ; offset += s.opts.PageSize {
		issues, err := s.tracker.Issues(ctx, tracker.IssueQuery{
			Project:      trackerID,
			Filter:       project.SearchFilter,
			Offset:       offset,
			Limit:        s.opts.PageSize,
			UpdatedAfter: queryFloor,
		})
		if err != nil {
			s.fillResult(&result, st)
			return result, fmt.Errorf("fetching issues of %s at offset %d: %w", project.ID, offset, err)
		}
		logger.Debug("fetched issue page", "offset", offset, "count", len(issues))

		if err := s.processPage(ctx, logger, project, issues, floors, st); err != nil {
			s.fillResult(&result, st)
			return result, err
		}

		if len(issues) < s.opts.PageSize {
			break
		}
	}

	// Backlogged issues the query no longer returns were moved, deleted or
	// filtered out. Retrying them would pin the query floor forever.
	for _, e := range backlog {
		if st.seen[e.IssueID] {
			continue
		}
		logger.Warn("dropping backlog entry for issue no longer returned by the tracker",
			"issue", e.IssueID,
			"attempts", e.Attempts,
		)
		if err := s.store.ClearBacklog(ctx, project.ID, e.IssueID); err != nil {
			return result, &StoreError{Op: "clearing backlog", Err: err}
		}
	}

	s.fillResult(&result, st)
	if st.candidate > 0 {
		advanced, err := s.store.AdvanceWatermark(ctx, project.ID, st.candidate)
		if err != nil {
			return result, &StoreError{Op: "advancing watermark", Err: err}
		}
		if advanced {
			result.Advanced = true
			result.Watermark = st.candidate
		}
	}

	logger.Info("sweep finished",
		"issues", result.Issues,
		"delivered", result.Delivered,
		"failed", result.Failed,
		"watermark", result.Watermark,
		"advanced", result.Advanced,
	)
	return result, nil
}

func (s *Sweeper) fillResult(result *SweepResult, st *sweepState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	result.Issues = len(st.seen)
	result.Delivered = st.delivered
	result.Failed = st.failed
}

// processPage evaluates a page of issues concurrently. Only store errors
// are returned; per-issue failures go to the backlog.
func (s *Sweeper) processPage(
	ctx context.Context,
	logger *slog.Logger,
	project model.Project,
	issues []model.Issue,
	floors map[string]int64,
	st *sweepState,
) error {
	p := pool.New().WithContext(ctx).WithMaxGoroutines(s.opts.IssueConcurrency)
	for _, issue := range issues {
		if !st.claim(issue.ID) {
			continue
		}
		floor, backlogged := floors[issue.ID]
		if !backlogged {
			floor = project.LastChecked
		}

		p.Go(func(ctx context.Context) error {
			issueLogger := logger.With("issue", issue.ID)
			out, err := s.processIssue(ctx, issueLogger, project, issue, floor)
			if IsStoreError(err) {
				return err
			}
			if err != nil {
				st.fail(out.delivered)
				return s.recordFailure(ctx, issueLogger, project, issue.ID, floor, err)
			}

			st.succeed(out)
			if backlogged {
				if err := s.store.ClearBacklog(ctx, project.ID, issue.ID); err != nil {
					return &StoreError{Op: "clearing backlog", Err: err}
				}
				issueLogger.Info("backlogged issue recovered")
			}
			return nil
		})
	}
	return p.Wait()
}

// recordFailure moves a failed issue to the backlog and raises an alert once
// it has failed too many times.
func (s *Sweeper) recordFailure(
	ctx context.Context,
	logger *slog.Logger,
	project model.Project,
	issueID string,
	floor int64,
	cause error,
) error {
	attempts, err := s.store.RecordBacklog(ctx, model.BacklogEntry{
		ProjectID: project.ID,
		IssueID:   issueID,
		Floor:     floor,
		LastError: cause.Error(),
	})
	if err != nil {
		return &StoreError{Op: "recording backlog", Err: err}
	}

	if attempts >= s.opts.FailureAlertThreshold {
		logger.Error("issue keeps failing",
			"attempts", attempts,
			"floor", floor,
			"error", cause,
		)
		return nil
	}
	logger.Warn("issue failed, will retry next sweep",
		"attempts", attempts,
		"floor", floor,
		"error", cause,
	)
	return nil
}

// processIssue delivers everything newer than floor for one issue. The
// returned outcome counts deliveries made even when an error is returned.
func (s *Sweeper) processIssue(
	ctx context.Context,
	logger *slog.Logger,
	project model.Project,
	issue model.Issue,
	floor int64,
) (issueOutcome, error) {
	var out issueOutcome
	ch := s.messenger.Channel(project.ChatID)

	if issue.Created > floor {
		text, err := s.renderer.NewIssue(ctx, issue)
		if err != nil {
			return out, &StoreError{Op: "rendering issue", Err: err}
		}
		if err := s.deliver(ctx, logger, ch, project, issue.ID, model.DeliveryIssue, text); err != nil {
			return out, err
		}
		out.delivered++
		out.candidate = max(out.candidate, issue.Created)
	}

	if issue.CommentsCount > 0 {
		comments, err := s.tracker.Comments(ctx, issue.ID)
		if err != nil {
			return out, fmt.Errorf("fetching comments: %w", err)
		}
		for _, c := range comments {
			posted, err := s.store.IsCommentPosted(ctx, c.ID)
			if err != nil {
				return out, &StoreError{Op: "checking comment", Err: err}
			}
			if posted {
				continue
			}
			ts := c.Timestamp()
			if ts <= floor {
				logger.Debug("skipping old comment", "comment", c.ID)
				continue
			}

			if c.IssueID == "" {
				c.IssueID = issue.ID
			}
			text, err := s.renderer.Comment(ctx, c)
			if err != nil {
				return out, &StoreError{Op: "rendering comment", Err: err}
			}
			formatted, err := s.send(ctx, logger.With("comment", c.ID), ch, model.DeliveryComment, text)
			if err != nil {
				return out, err
			}
			out.delivered++
			if err := s.store.MarkCommentPosted(ctx, c.ID, issue.ID, c.Author); err != nil {
				return out, &StoreError{Op: "marking comment", Err: err}
			}
			if err := s.audit(ctx, project, issue.ID, model.DeliveryComment, formatted); err != nil {
				return out, err
			}
			out.candidate = max(out.candidate, ts)
		}
	}

	changes, err := s.tracker.Changes(ctx, issue.ID)
	if err != nil {
		return out, fmt.Errorf("fetching changes: %w", err)
	}
	for _, change := range changes {
		if change.Updated <= floor {
			logger.Debug("skipping old change", "updated", change.Updated)
			continue
		}
		text, err := s.renderer.Change(ctx, issue, change)
		if err != nil {
			return out, &StoreError{Op: "rendering change", Err: err}
		}
		if err := s.deliver(ctx, logger, ch, project, issue.ID, model.DeliveryChange, text); err != nil {
			return out, err
		}
		out.delivered++
		out.candidate = max(out.candidate, change.Updated)
	}

	return out, nil
}

// deliver sends text to the project chat and records the delivery.
func (s *Sweeper) deliver(
	ctx context.Context,
	logger *slog.Logger,
	ch chat.Channel,
	project model.Project,
	issueID string,
	kind model.DeliveryKind,
	text string,
) error {
	formatted, err := s.send(ctx, logger, ch, kind, text)
	if err != nil {
		return err
	}
	return s.audit(ctx, project, issueID, kind, formatted)
}

func (s *Sweeper) send(
	ctx context.Context,
	logger *slog.Logger,
	ch chat.Channel,
	kind model.DeliveryKind,
	text string,
) (bool, error) {
	formatted, err := chat.Deliver(ctx, ch, text, logger)
	if err != nil {
		return false, fmt.Errorf("delivering %s to chat %s: %w", kind, ch.ID(), err)
	}
	logger.Info("delivered notification", "kind", kind, "chat", ch.ID(), "formatted", formatted)
	return formatted, nil
}

func (s *Sweeper) audit(
	ctx context.Context,
	project model.Project,
	issueID string,
	kind model.DeliveryKind,
	formatted bool,
) error {
	err := s.store.RecordDelivery(ctx, model.Delivery{
		ProjectID: project.ID,
		IssueID:   issueID,
		Kind:      kind,
		ChatID:    project.ChatID,
		Formatted: formatted,
	})
	if err != nil {
		return &StoreError{Op: "recording delivery", Err: err}
	}
	return nil
}
