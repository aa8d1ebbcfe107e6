package allocation

import (
	"fmt"
	"log"
	"sync"

	"planes/internal/domain"
	"planes/internal/maxsum"
)

// Snapshot is one tick's immutable view of the allocation problem. Tasks and
// Planes fix the deterministic iteration orders; Visible and Cost default to
// the planes' own range check and travel distance when nil.
type Snapshot struct {
	Tick    int
	Tasks   []domain.Task
	Planes  []domain.Plane
	Visible func(p domain.Plane, t domain.Task) bool
	Cost    func(p domain.Plane, t domain.Task) float64
}

type Config struct {
	Iterations int
	Policy     maxsum.Policy
}

// Allocator runs one BUILD -> ITERATE -> EXTRACT -> PUBLISH cycle per tick
// and owns the published assignment. It is the sole writer; everyone else
// reads copies through Current.
type Allocator struct {
	cfg    Config
	logger *log.Logger

	mu      sync.RWMutex
	current domain.Assignment
}

func New(cfg Config, logger *log.Logger) (*Allocator, error) {
	if cfg.Iterations < 0 {
		return nil, fmt.Errorf("iteration count must not be negative, got %d", cfg.Iterations)
	}
	if cfg.Policy.Damping < 0 || cfg.Policy.Damping >= 1 {
		return nil, fmt.Errorf("damping must be in [0,1), got %g", cfg.Policy.Damping)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Allocator{
		cfg:     cfg,
		logger:  logger,
		current: domain.NewAssignment(),
	}, nil
}

// Allocate computes the tick's assignment from the snapshot. The factor
// graph lives only inside this call. On a build failure (malformed cost) the
// previously published assignment stays in effect and is returned with the
// error.
func (a *Allocator) Allocate(snap Snapshot) (domain.Assignment, error) {
	visible := snap.Visible
	if visible == nil {
		visible = func(p domain.Plane, t domain.Task) bool { return p.CanSee(t) }
	}
	cost := snap.Cost
	if cost == nil {
		cost = func(p domain.Plane, t domain.Task) float64 { return p.Cost(t) }
	}

	in := maxsum.BuildInput{
		Tasks:   make([]string, len(snap.Tasks)),
		Planes:  make([]string, len(snap.Planes)),
		Visible: make([][]int, len(snap.Planes)),
		Cost: func(p, t int) float64 {
			return cost(snap.Planes[p], snap.Tasks[t])
		},
	}
	for i, t := range snap.Tasks {
		in.Tasks[i] = t.ID
	}
	for pi, p := range snap.Planes {
		in.Planes[pi] = p.ID
		for ti, t := range snap.Tasks {
			if visible(p, t) {
				in.Visible[pi] = append(in.Visible[pi], ti)
			}
		}
	}

	graph, err := maxsum.Build(in, a.cfg.Policy)
	if err != nil {
		return a.Current(), fmt.Errorf("build factor graph: %w", err)
	}
	graph.Run(a.cfg.Iterations)
	asg := graph.Extract()

	a.mu.Lock()
	a.current = asg
	a.mu.Unlock()
	return asg.Clone(), nil
}

// Current returns a copy of the most recently published assignment.
func (a *Allocator) Current() domain.Assignment {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current.Clone()
}
