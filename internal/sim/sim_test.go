package sim

import (
	"context"
	"reflect"
	"testing"

	"planes/internal/allocation"
	"planes/internal/config"
	"planes/internal/domain"
	"planes/internal/maxsum"
)

func testConfig() config.Config {
	var cfg config.Config
	cfg.World.Width = 500
	cfg.World.Height = 500
	cfg.World.DurationTicks = 100
	cfg.World.Seed = 42
	cfg.Planes.Count = 4
	cfg.Planes.Speed = 5
	cfg.Planes.CommRange = 300
	cfg.Operators.Count = 2
	cfg.Operators.CommRange = 200
	cfg.Tasks.Count = 10
	return cfg
}

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := testConfig()
	a := Generate(cfg)
	b := Generate(cfg)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same settings produced different problems")
	}

	cfg.World.Seed = 43
	c := Generate(cfg)
	if reflect.DeepEqual(a, c) {
		t.Fatalf("different seeds produced the same problem")
	}
}

func TestGenerateOrdersTasksBySubmitTick(t *testing.T) {
	p := Generate(testConfig())
	for i := 1; i < len(p.Tasks); i++ {
		if p.Tasks[i].SubmitTick < p.Tasks[i-1].SubmitTick {
			t.Fatalf("tasks out of submit order at %d: %d after %d", i, p.Tasks[i].SubmitTick, p.Tasks[i-1].SubmitTick)
		}
	}
}

func TestGenerateRespectsCounts(t *testing.T) {
	cfg := testConfig()
	p := Generate(cfg)
	if len(p.Planes) != cfg.Planes.Count {
		t.Fatalf("generated %d planes, want %d", len(p.Planes), cfg.Planes.Count)
	}
	if len(p.Operators) != cfg.Operators.Count {
		t.Fatalf("generated %d operators, want %d", len(p.Operators), cfg.Operators.Count)
	}
	if len(p.Tasks) != cfg.Tasks.Count {
		t.Fatalf("generated %d tasks, want %d", len(p.Tasks), cfg.Tasks.Count)
	}
}

func newWorldAllocator(t *testing.T) *allocation.Allocator {
	t.Helper()
	a, err := allocation.New(allocation.Config{
		Iterations: 5,
		Policy:     maxsum.Policy{Kind: maxsum.PolicyIndependent},
	}, nil)
	if err != nil {
		t.Fatalf("allocation.New: %v", err)
	}
	return a
}

func TestWorldCompletesReachableTasks(t *testing.T) {
	cfg := testConfig()
	cfg.World.DurationTicks = 10

	problem := Problem{
		Planes: []domain.Plane{
			{ID: "plane-00", Location: domain.Point{X: 0, Y: 0}, Speed: 1000, CommRange: 1000},
		},
		Operators: []domain.Operator{
			{ID: "operator-0", Location: domain.Point{X: 0, Y: 0}, CommRange: 200},
		},
		Tasks: []domain.Task{
			{ID: "task-000", Location: domain.Point{X: 50, Y: 50}, SubmitTick: 0},
			{ID: "task-001", Location: domain.Point{X: 90, Y: 10}, SubmitTick: 2},
		},
	}

	w := NewWorld(cfg, problem, newWorldAllocator(t), nil, nil, "run-test", nil)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := w.CompletedTasks(); got != 2 {
		t.Fatalf("completed %d tasks, want 2", got)
	}
	if got := w.PendingTasks(); got != 0 {
		t.Fatalf("%d tasks still pending after the run", got)
	}
}

func TestWorldStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	problem := Generate(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWorld(cfg, problem, newWorldAllocator(t), nil, nil, "run-test", nil)
	if err := w.Run(ctx); err == nil {
		t.Fatalf("Run ignored a cancelled context")
	}
}

func TestWorldUnreachableTaskStaysPending(t *testing.T) {
	cfg := testConfig()
	cfg.World.DurationTicks = 5

	problem := Problem{
		Planes: []domain.Plane{
			{ID: "plane-00", Location: domain.Point{X: 0, Y: 0}, Speed: 1, CommRange: 10},
		},
		Operators: []domain.Operator{
			{ID: "operator-0", Location: domain.Point{X: 0, Y: 0}, CommRange: 200},
		},
		Tasks: []domain.Task{
			{ID: "task-000", Location: domain.Point{X: 400, Y: 400}, SubmitTick: 0},
		},
	}

	w := NewWorld(cfg, problem, newWorldAllocator(t), nil, nil, "run-test", nil)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := w.PendingTasks(); got != 1 {
		t.Fatalf("out-of-range task left %d pending, want 1", got)
	}
	if got := w.CompletedTasks(); got != 0 {
		t.Fatalf("out-of-range task was completed")
	}
}
