package sync

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/nhle/trackrelay/internal/model"
	"github.com/nhle/trackrelay/internal/store"
)

// defaultPollInterval is used when the engine is given a non-positive interval.
const defaultPollInterval = 300 * time.Second

type runIDKey struct{}

// WithRunID returns a context carrying the tick identifier used in logs.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the tick identifier, or "" when none is set.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// ProjectSweeper sweeps a single project. *Sweeper implements it.
type ProjectSweeper interface {
	Sweep(ctx context.Context, project model.Project) (SweepResult, error)
}

// ProjectReport is the outcome of one project's sweep within a tick.
type ProjectReport struct {
	ProjectID string
	Result    SweepResult
	Err       error
}

// TickReport summarizes one tick across all tracked projects.
type TickReport struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Projects []ProjectReport
}

// Failed returns the number of projects whose sweep returned an error.
func (r TickReport) Failed() int {
	n := 0
	for _, p := range r.Projects {
		if p.Err != nil {
			n++
		}
	}
	return n
}

// Delivered returns the number of notifications sent during the tick.
func (r TickReport) Delivered() int {
	n := 0
	for _, p := range r.Projects {
		n += p.Result.Delivered
	}
	return n
}

// Engine runs a sweep of every tracked project on a fixed interval.
type Engine struct {
	store     store.WatermarkStore
	sweeper   ProjectSweeper
	interval  time.Duration
	triggerCh chan struct{}
	tickMu    gosync.Mutex
	logger    *slog.Logger
}

// NewEngine creates an Engine that ticks every interval.
func NewEngine(
	ws store.WatermarkStore,
	sweeper ProjectSweeper,
	interval time.Duration,
	logger *slog.Logger,
) *Engine {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     ws,
		sweeper:   sweeper,
		interval:  interval,
		triggerCh: make(chan struct{}, 1),
		logger:    logger,
	}
}

// Run ticks once immediately and then every interval until ctx is
// cancelled. A tick in progress when ctx is cancelled runs to completion
// before Run returns; no tick starts afterwards.
func (e *Engine) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		e.logger.Info("sync engine not started, already cancelled")
		return nil
	}
	e.logger.Info("sync engine started", "interval", e.interval)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	// Do an initial sweep immediately
	e.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("sync engine stopped")
			return nil
		case <-ticker.C:
		case <-e.triggerCh:
			e.logger.Info("tick requested")
		}

		// Prefer shutdown when both a tick and cancellation are ready.
		if ctx.Err() != nil {
			e.logger.Info("sync engine stopped")
			return nil
		}
		e.runTick(ctx)
	}
}

// Trigger requests an immediate tick without waiting for it. Requests made
// while a tick is pending are coalesced.
func (e *Engine) Trigger() {
	select {
	case e.triggerCh <- struct{}{}:
	default:
		// A tick is already pending.
	}
}

func (e *Engine) runTick(ctx context.Context) {
	if _, err := e.Tick(ctx); err != nil {
		e.logger.Error("tick failed", "error", err)
	}
}

// sweep runs one project sweep and turns a panic into that project's error.
func (e *Engine) sweep(ctx context.Context, project model.Project) (res SweepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("project sweep panicked", "project", project.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("sweep of %s panicked: %v", project.ID, r)
		}
	}()
	return e.sweeper.Sweep(ctx, project)
}

// Tick sweeps every tracked project concurrently and waits for all of them.
// A failing project never cancels its siblings. Sweeps are detached from
// ctx cancellation so that work in flight completes. Ticks never overlap.
func (e *Engine) Tick(ctx context.Context) (TickReport, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	report := TickReport{RunID: uuid.NewString(), Started: time.Now()}
	logger := e.logger.With("run", report.RunID)
	sweepCtx := WithRunID(context.WithoutCancel(ctx), report.RunID)

	projects, err := e.store.ListProjects(sweepCtx)
	if err != nil {
		return report, fmt.Errorf("listing tracked projects: %w", err)
	}
	logger.Info("checking projects for updates", "projects", len(projects))

	report.Projects = make([]ProjectReport, len(projects))
	p := pool.New().WithContext(sweepCtx)
	for i, project := range projects {
		p.Go(func(ctx context.Context) error {
			res, err := e.sweep(ctx, project)
			report.Projects[i] = ProjectReport{ProjectID: project.ID, Result: res, Err: err}
			if err != nil {
				logger.Error("project sweep failed", "project", project.ID, "error", err)
			}
			if recErr := e.store.RecordSweepResult(ctx, project.ID, err); recErr != nil {
				logger.Error("recording sweep result", "project", project.ID, "error", recErr)
			}
			return err
		})
	}
	// Per-project errors are already in the report.
	_ = p.Wait()

	report.Duration = time.Since(report.Started)
	logger.Info("tick finished",
		"projects", len(projects),
		"failed", report.Failed(),
		"delivered", report.Delivered(),
		"duration", report.Duration,
	)
	return report, nil
}
