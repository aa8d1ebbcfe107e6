package maxsum

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"planes/internal/domain"
)

func buildGraph(t *testing.T, in BuildInput, policy Policy) *Graph {
	t.Helper()
	g, err := Build(in, policy)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func checkInverse(t *testing.T, asg domain.Assignment) {
	t.Helper()
	for plane, task := range asg.ByPlane {
		if got := asg.ByTask[task]; got != plane {
			t.Fatalf("ByTask[%s] = %q, want %q", task, got, plane)
		}
	}
	for task, plane := range asg.ByTask {
		if got := asg.ByPlane[plane]; got != task {
			t.Fatalf("ByPlane[%s] = %q, want %q", plane, got, task)
		}
	}
	if len(asg.ByPlane) != len(asg.ByTask) {
		t.Fatalf("map sizes differ: ByPlane=%d ByTask=%d", len(asg.ByPlane), len(asg.ByTask))
	}
}

func TestCheaperPlaneWinsSingleTask(t *testing.T) {
	costs := [][]float64{{5}, {2}}
	in := BuildInput{
		Tasks:   []string{"T"},
		Planes:  []string{"A0", "A1"},
		Visible: [][]int{{0}, {0}},
		Cost:    func(p, t int) float64 { return costs[p][t] },
	}

	for _, rounds := range []int{1, 5, 50} {
		g := buildGraph(t, in, Policy{Kind: PolicyIndependent})
		g.Run(rounds)
		asg := g.Extract()
		checkInverse(t, asg)
		if got := asg.ByTask["T"]; got != "A1" {
			t.Fatalf("rounds=%d: task assigned to %q, want A1", rounds, got)
		}
		if got := asg.ByPlane["A1"]; got != "T" {
			t.Fatalf("rounds=%d: ByPlane[A1] = %q, want T", rounds, got)
		}
	}
}

func TestSinglePlaneKeepsCheaperTask(t *testing.T) {
	costs := [][]float64{{1, 3}}
	in := BuildInput{
		Tasks:   []string{"T0", "T1"},
		Planes:  []string{"A"},
		Visible: [][]int{{0, 1}},
		Cost:    func(p, t int) float64 { return costs[p][t] },
	}

	g := buildGraph(t, in, Policy{Kind: PolicyIndependent})
	g.Run(10)
	asg := g.Extract()
	checkInverse(t, asg)

	if got := asg.ByPlane["A"]; got != "T0" {
		t.Fatalf("plane assigned %q, want T0", got)
	}
	if _, ok := asg.ByTask["T1"]; ok {
		t.Fatalf("T1 must stay unassigned, got %q", asg.ByTask["T1"])
	}
}

func TestCheaperLaterTaskDisplacesEarlier(t *testing.T) {
	// The plane first takes T0 in pool order, then gives it up for the
	// strictly cheaper T1. The displaced T0 must leave both maps.
	costs := [][]float64{{3, 1}}
	in := BuildInput{
		Tasks:   []string{"T0", "T1"},
		Planes:  []string{"A"},
		Visible: [][]int{{0, 1}},
		Cost:    func(p, t int) float64 { return costs[p][t] },
	}

	g := buildGraph(t, in, Policy{Kind: PolicyIndependent})
	g.Run(3)
	asg := g.Extract()
	checkInverse(t, asg)

	if got := asg.ByPlane["A"]; got != "T1" {
		t.Fatalf("plane assigned %q, want T1", got)
	}
	if _, ok := asg.ByTask["T0"]; ok {
		t.Fatalf("displaced T0 still present in ByTask")
	}
}

func TestZeroRoundsIsDeterministic(t *testing.T) {
	costs := [][]float64{{5, 2}, {1, 4}}
	in := BuildInput{
		Tasks:   []string{"T0", "T1"},
		Planes:  []string{"A0", "A1"},
		Visible: [][]int{{0, 1}, {0, 1}},
		Cost:    func(p, t int) float64 { return costs[p][t] },
	}

	first := buildGraph(t, in, Policy{Kind: PolicyIndependent})
	first.Run(0)
	a := first.Extract()
	checkInverse(t, a)

	second := buildGraph(t, in, Policy{Kind: PolicyIndependent})
	second.Run(0)
	b := second.Extract()

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("zero-round extraction not deterministic: %v vs %v", a, b)
	}
}

func TestIdenticalRunsProduceIdenticalAssignments(t *testing.T) {
	costs := [][]float64{
		{5, 2, 9},
		{1, 4, 3},
		{6, 6, 1},
	}
	in := BuildInput{
		Tasks:   []string{"T0", "T1", "T2"},
		Planes:  []string{"A0", "A1", "A2"},
		Visible: [][]int{{0, 1, 2}, {0, 1, 2}, {0, 1, 2}},
		Cost:    func(p, t int) float64 { return costs[p][t] },
	}
	policy := Policy{Kind: PolicyIndependent, Damping: 0.3}

	first := buildGraph(t, in, policy)
	first.Run(20)
	a := first.Extract()
	checkInverse(t, a)

	second := buildGraph(t, in, policy)
	second.Run(20)
	b := second.Extract()

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("identical runs diverged: %v vs %v", a, b)
	}
}

func TestVisibilityRestrictsAssignment(t *testing.T) {
	costs := [][]float64{{1}, {10}}
	in := BuildInput{
		Tasks:   []string{"T"},
		Planes:  []string{"blind", "far"},
		Visible: [][]int{{}, {0}},
		Cost:    func(p, t int) float64 { return costs[p][t] },
	}

	g := buildGraph(t, in, Policy{Kind: PolicyIndependent})
	g.Run(5)
	asg := g.Extract()
	checkInverse(t, asg)

	if got := asg.ByTask["T"]; got != "far" {
		t.Fatalf("task assigned to %q, want the only visible plane", got)
	}
}

func TestInvisibleTaskStaysUnassigned(t *testing.T) {
	in := BuildInput{
		Tasks:   []string{"seen", "unseen"},
		Planes:  []string{"A"},
		Visible: [][]int{{0}},
		Cost:    func(p, t int) float64 { return 1 },
	}

	g := buildGraph(t, in, Policy{Kind: PolicyIndependent})
	g.Run(5)
	asg := g.Extract()
	checkInverse(t, asg)

	if _, ok := asg.ByTask["unseen"]; ok {
		t.Fatalf("task with no candidate planes must stay unassigned")
	}
	if got := asg.ByTask["seen"]; got != "A" {
		t.Fatalf("visible task assigned to %q, want A", got)
	}
}

func TestAtMostOneTaskPerPlane(t *testing.T) {
	in := BuildInput{
		Tasks:   []string{"T0", "T1", "T2", "T3"},
		Planes:  []string{"A0", "A1"},
		Visible: [][]int{{0, 1, 2, 3}, {0, 1, 2, 3}},
		Cost: func(p, t int) float64 {
			return float64(p+1) * float64(t+1)
		},
	}

	g := buildGraph(t, in, Policy{Kind: PolicyIndependent})
	g.Run(30)
	asg := g.Extract()
	checkInverse(t, asg)

	if len(asg.ByPlane) > 2 {
		t.Fatalf("more assignments than planes: %v", asg.ByPlane)
	}
}

func TestBuildRejectsMalformedCosts(t *testing.T) {
	cases := map[string]float64{
		"nan":      math.NaN(),
		"inf":      math.Inf(1),
		"negative": -1,
	}
	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			in := BuildInput{
				Tasks:   []string{"T"},
				Planes:  []string{"A"},
				Visible: [][]int{{0}},
				Cost:    func(p, t int) float64 { return bad },
			}
			if _, err := Build(in, Policy{Kind: PolicyIndependent}); !errors.Is(err, ErrBadCost) {
				t.Fatalf("Build error = %v, want ErrBadCost", err)
			}
		})
	}
}

func TestBuildRejectsMismatchedVisibility(t *testing.T) {
	in := BuildInput{
		Tasks:   []string{"T"},
		Planes:  []string{"A0", "A1"},
		Visible: [][]int{{0}},
		Cost:    func(p, t int) float64 { return 1 },
	}
	if _, err := Build(in, Policy{Kind: PolicyIndependent}); err == nil {
		t.Fatalf("Build accepted mismatched visibility rows")
	}
}

func TestWorkloadPolicyPrefersCheaperPlane(t *testing.T) {
	costs := [][]float64{{5}, {2}}
	in := BuildInput{
		Tasks:   []string{"T"},
		Planes:  []string{"A0", "A1"},
		Visible: [][]int{{0}, {0}},
		Cost:    func(p, t int) float64 { return costs[p][t] },
	}

	g := buildGraph(t, in, Policy{Kind: PolicyWorkload, WorkloadK: 1, WorkloadAlpha: 1.5})
	g.Run(10)
	asg := g.Extract()
	checkInverse(t, asg)

	if got := asg.ByTask["T"]; got != "A1" {
		t.Fatalf("task assigned to %q, want A1", got)
	}
}

func TestParsePolicy(t *testing.T) {
	if kind, err := ParsePolicy("independent"); err != nil || kind != PolicyIndependent {
		t.Fatalf("ParsePolicy(independent) = %v, %v", kind, err)
	}
	if kind, err := ParsePolicy("workload"); err != nil || kind != PolicyWorkload {
		t.Fatalf("ParsePolicy(workload) = %v, %v", kind, err)
	}
	if _, err := ParsePolicy("greedy"); err == nil {
		t.Fatalf("ParsePolicy accepted unknown policy")
	}
}
