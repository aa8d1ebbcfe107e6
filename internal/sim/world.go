package sim

import (
	"context"
	"fmt"
	"log"

	"planes/internal/allocation"
	"planes/internal/config"
	"planes/internal/domain"
)

// Allocator computes one assignment per tick and keeps the last published
// one available.
type Allocator interface {
	Allocate(snap allocation.Snapshot) (domain.Assignment, error)
	Current() domain.Assignment
}

// Recorder persists per-tick results. Optional; a nil recorder disables
// persistence.
type Recorder interface {
	RecordAllocations(ctx context.Context, items []domain.TickAllocation) error
	RecordTaskEvent(ctx context.Context, ev domain.TaskEvent) error
}

// World drives the simulation clock: it submits due tasks, reallocates the
// pending pool every tick, moves the fleet, and reports progress. The
// allocation itself is synchronous within the tick; the reporter is the only
// concurrent hand-off.
type World struct {
	cfg      config.Config
	runID    string
	alloc    Allocator
	reporter *Reporter
	recorder Recorder
	logger   *log.Logger

	planes    []domain.Plane
	operators []domain.Operator
	pending   []domain.Task
	upcoming  []domain.Task
	tick      int
	completed int
	errs      chan error
}

func NewWorld(
	cfg config.Config,
	problem Problem,
	alloc Allocator,
	reporter *Reporter,
	recorder Recorder,
	runID string,
	logger *log.Logger,
) *World {
	if logger == nil {
		logger = log.Default()
	}
	if reporter == nil {
		reporter = NewReporter(nil)
	}
	return &World{
		cfg:       cfg,
		runID:     runID,
		alloc:     alloc,
		reporter:  reporter,
		recorder:  recorder,
		logger:    logger,
		planes:    append([]domain.Plane(nil), problem.Planes...),
		operators: append([]domain.Operator(nil), problem.Operators...),
		upcoming:  append([]domain.Task(nil), problem.Tasks...),
		errs:      make(chan error, 16),
	}
}

// Errors exposes per-tick data errors (malformed costs and recorder
// failures). The channel is buffered and never blocks the simulation; the
// run itself continues on its previous assignment.
func (w *World) Errors() <-chan error {
	return w.errs
}

func (w *World) Tick() int           { return w.tick }
func (w *World) CompletedTasks() int { return w.completed }
func (w *World) PendingTasks() int   { return len(w.pending) }

// Run advances the clock to the configured duration. Each tick runs to
// completion once started; cancellation only takes effect between ticks.
func (w *World) Run(ctx context.Context) error {
	duration := w.cfg.World.DurationTicks
	for w.tick = 0; w.tick < duration; w.tick++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		w.submitDueTasks(ctx)
		asg := w.allocate(ctx)
		w.step(ctx, asg)
		w.reporter.Publish(float64(w.tick+1) / float64(duration))
	}
	return nil
}

func (w *World) submitDueTasks(ctx context.Context) {
	for len(w.upcoming) > 0 && w.upcoming[0].SubmitTick <= w.tick {
		t := w.upcoming[0]
		w.upcoming = w.upcoming[1:]
		w.pending = append(w.pending, t)
		w.recordEvent(ctx, domain.TaskEvent{
			RunID:  w.runID,
			TaskID: t.ID,
			Kind:   domain.TaskEventSubmitted,
			Tick:   w.tick,
		})
	}
}

// allocate captures the tick snapshot and replaces the published assignment.
// A failed tick keeps the previous assignment in effect.
func (w *World) allocate(ctx context.Context) domain.Assignment {
	snap := allocation.Snapshot{
		Tick:   w.tick,
		Tasks:  append([]domain.Task(nil), w.pending...),
		Planes: append([]domain.Plane(nil), w.planes...),
	}
	asg, err := w.alloc.Allocate(snap)
	if err != nil {
		w.reportError(fmt.Errorf("tick %d: %w", w.tick, err))
		return w.alloc.Current()
	}

	if w.recorder != nil && len(asg.ByPlane) > 0 {
		items := make([]domain.TickAllocation, 0, len(snap.Planes))
		for _, p := range snap.Planes {
			taskID, ok := asg.ByPlane[p.ID]
			if !ok {
				continue
			}
			cost := 0.0
			for _, t := range snap.Tasks {
				if t.ID == taskID {
					cost = p.Cost(t)
					break
				}
			}
			items = append(items, domain.TickAllocation{
				RunID:   w.runID,
				Tick:    w.tick,
				PlaneID: p.ID,
				TaskID:  taskID,
				Cost:    cost,
			})
		}
		if err := w.recorder.RecordAllocations(ctx, items); err != nil {
			w.reportError(fmt.Errorf("tick %d: record allocations: %w", w.tick, err))
		}
	}
	return asg
}

// step moves every plane one tick: assigned planes head for their task and
// complete it on arrival, idle planes fall back toward the nearest operator.
func (w *World) step(ctx context.Context, asg domain.Assignment) {
	for i := range w.planes {
		p := &w.planes[i]
		taskID, ok := asg.ByPlane[p.ID]
		if !ok {
			w.idle(p)
			continue
		}
		t, ok := w.findPending(taskID)
		if !ok {
			continue
		}
		next, arrived := p.Location.StepToward(t.Location, p.Speed)
		p.Location = next
		if arrived {
			w.complete(ctx, t, p.ID)
		}
	}
}

// idle sends an unassigned plane back toward its nearest operator while it
// is outside that operator's communication range.
func (w *World) idle(p *domain.Plane) {
	op := w.nearestOperator(p.Location)
	if op == nil {
		return
	}
	if p.Location.DistanceTo(op.Location) >= op.CommRange {
		p.Location, _ = p.Location.StepToward(op.Location, p.Speed)
	}
}

func (w *World) nearestOperator(at domain.Point) *domain.Operator {
	var best *domain.Operator
	bestDist := 0.0
	for i := range w.operators {
		d := at.DistanceTo(w.operators[i].Location)
		if best == nil || d < bestDist {
			best = &w.operators[i]
			bestDist = d
		}
	}
	return best
}

func (w *World) findPending(taskID string) (domain.Task, bool) {
	for _, t := range w.pending {
		if t.ID == taskID {
			return t, true
		}
	}
	return domain.Task{}, false
}

func (w *World) complete(ctx context.Context, t domain.Task, planeID string) {
	for i, pending := range w.pending {
		if pending.ID == t.ID {
			w.pending = append(w.pending[:i], w.pending[i+1:]...)
			break
		}
	}
	w.completed++
	w.recordEvent(ctx, domain.TaskEvent{
		RunID:   w.runID,
		TaskID:  t.ID,
		Kind:    domain.TaskEventCompleted,
		Tick:    w.tick,
		PlaneID: planeID,
	})
}

func (w *World) recordEvent(ctx context.Context, ev domain.TaskEvent) {
	if w.recorder == nil {
		return
	}
	if err := w.recorder.RecordTaskEvent(ctx, ev); err != nil {
		w.reportError(fmt.Errorf("tick %d: record task event %s/%s: %w", w.tick, ev.TaskID, ev.Kind, err))
	}
}

func (w *World) reportError(err error) {
	w.logger.Printf("simulation error: %v", err)
	select {
	case w.errs <- err:
	default:
	}
}
