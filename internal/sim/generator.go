package sim

import (
	"fmt"
	"math/rand"
	"sort"

	"planes/internal/config"
	"planes/internal/domain"
)

// Problem is a fully generated simulation scenario: where the fleet and the
// operators start, and which tasks appear when. Two runs with the same
// settings produce the same problem.
type Problem struct {
	Planes    []domain.Plane
	Operators []domain.Operator
	Tasks     []domain.Task // ordered by SubmitTick, then ID
}

// Generate builds a reproducible problem from the settings using the
// configured seed. Operators are scattered over the field, planes start at
// their operators round-robin, and task arrivals spread over the first 80%
// of the run so late ticks still drain the pool.
func Generate(cfg config.Config) Problem {
	rng := rand.New(rand.NewSource(cfg.World.Seed))
	point := func() domain.Point {
		return domain.Point{
			X: rng.Float64() * cfg.World.Width,
			Y: rng.Float64() * cfg.World.Height,
		}
	}

	operators := make([]domain.Operator, cfg.Operators.Count)
	for i := range operators {
		operators[i] = domain.Operator{
			ID:        fmt.Sprintf("operator-%d", i),
			Location:  point(),
			CommRange: cfg.Operators.CommRange,
		}
	}

	planes := make([]domain.Plane, cfg.Planes.Count)
	for i := range planes {
		planes[i] = domain.Plane{
			ID:        fmt.Sprintf("plane-%02d", i),
			Location:  operators[i%len(operators)].Location,
			Speed:     cfg.Planes.Speed,
			CommRange: cfg.Planes.CommRange,
		}
	}

	window := cfg.World.DurationTicks * 4 / 5
	if window < 1 {
		window = 1
	}
	tasks := make([]domain.Task, cfg.Tasks.Count)
	for i := range tasks {
		tasks[i] = domain.Task{
			ID:         fmt.Sprintf("task-%03d", i),
			Location:   point(),
			SubmitTick: rng.Intn(window),
		}
	}
	sort.Slice(tasks, func(a, b int) bool {
		if tasks[a].SubmitTick != tasks[b].SubmitTick {
			return tasks[a].SubmitTick < tasks[b].SubmitTick
		}
		return tasks[a].ID < tasks[b].ID
	})

	return Problem{Planes: planes, Operators: operators, Tasks: tasks}
}
