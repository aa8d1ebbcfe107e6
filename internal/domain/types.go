package domain

import (
	"math"
	"time"
)

// Point is a position on the simulated field.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) DistanceTo(o Point) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// StepToward moves from p at most speed units toward dest. The boolean
// reports whether dest was reached this step.
func (p Point) StepToward(dest Point, speed float64) (Point, bool) {
	d := p.DistanceTo(dest)
	if d <= speed {
		return dest, true
	}
	f := speed / d
	return Point{X: p.X + (dest.X-p.X)*f, Y: p.Y + (dest.Y-p.Y)*f}, false
}

// Task is a unit of work appearing somewhere on the field. Immutable once
// submitted; it leaves the pool when a plane completes it.
type Task struct {
	ID         string `json:"id"`
	Location   Point  `json:"location"`
	SubmitTick int    `json:"submit_tick"`
}

// Plane is a mobile agent. Its per-task cost is the travel distance to the
// task location.
type Plane struct {
	ID        string  `json:"id"`
	Location  Point   `json:"location"`
	Speed     float64 `json:"speed"`
	CommRange float64 `json:"communication_range"`
}

func (p Plane) Cost(t Task) float64 {
	return p.Location.DistanceTo(t.Location)
}

func (p Plane) CanSee(t Task) bool {
	return p.Location.DistanceTo(t.Location) <= p.CommRange
}

// Operator is a fixed station that submits tasks. Idle planes head back
// toward their nearest operator until inside its communication range.
type Operator struct {
	ID        string  `json:"id"`
	Location  Point   `json:"location"`
	CommRange float64 `json:"communication_range"`
}

// Assignment is one tick's plane<->task mapping. ByPlane and ByTask are
// mutual inverses restricted to their keys; a plane or task absent from the
// maps is unassigned this tick.
type Assignment struct {
	ByPlane map[string]string `json:"by_plane"`
	ByTask  map[string]string `json:"by_task"`
}

func NewAssignment() Assignment {
	return Assignment{
		ByPlane: make(map[string]string),
		ByTask:  make(map[string]string),
	}
}

func (a Assignment) Clone() Assignment {
	out := Assignment{
		ByPlane: make(map[string]string, len(a.ByPlane)),
		ByTask:  make(map[string]string, len(a.ByTask)),
	}
	for k, v := range a.ByPlane {
		out.ByPlane[k] = v
	}
	for k, v := range a.ByTask {
		out.ByTask[k] = v
	}
	return out
}

type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusFinished RunStatus = "finished"
	RunStatusFailed   RunStatus = "failed"
)

// RunRecord is one persisted simulation run.
type RunRecord struct {
	ID            string     `json:"id"`
	Status        RunStatus  `json:"status"`
	Settings      string     `json:"settings"`
	DurationTicks int        `json:"duration_ticks"`
	Seed          int64      `json:"seed"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// TickAllocation is one plane->task assignment published at a tick.
type TickAllocation struct {
	RunID   string  `json:"run_id"`
	Tick    int     `json:"tick"`
	PlaneID string  `json:"plane_id"`
	TaskID  string  `json:"task_id"`
	Cost    float64 `json:"cost"`
}

type TaskEventKind string

const (
	TaskEventSubmitted TaskEventKind = "submitted"
	TaskEventCompleted TaskEventKind = "completed"
)

// TaskEvent is a task lifecycle entry in the results store.
type TaskEvent struct {
	RunID   string        `json:"run_id"`
	TaskID  string        `json:"task_id"`
	Kind    TaskEventKind `json:"kind"`
	Tick    int           `json:"tick"`
	PlaneID string        `json:"plane_id,omitempty"`
}
