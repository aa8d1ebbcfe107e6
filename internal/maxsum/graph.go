package maxsum

import (
	"errors"
	"fmt"
	"math"

	"planes/internal/domain"
)

// ErrBadCost marks a potential that is negative, NaN or infinite. A graph is
// never built from such input; the caller keeps its previous assignment.
var ErrBadCost = errors.New("cost must be a finite non-negative value")

// PolicyKind selects how plane-side cost factors price their tasks.
type PolicyKind int

const (
	// PolicyIndependent planes take at most one task at a time.
	PolicyIndependent PolicyKind = iota
	// PolicyWorkload planes may take several tasks, paying k*m^alpha on the
	// number of tasks taken.
	PolicyWorkload
)

func ParsePolicy(s string) (PolicyKind, error) {
	switch s {
	case "independent":
		return PolicyIndependent, nil
	case "workload":
		return PolicyWorkload, nil
	default:
		return 0, fmt.Errorf("unknown cost policy %q", s)
	}
}

// Policy configures the cost-factor side of the graph.
type Policy struct {
	Kind PolicyKind

	// Workload penalty k*m^alpha; only read by PolicyWorkload.
	WorkloadK     float64
	WorkloadAlpha float64

	// Damping in [0,1): fraction of the previous outgoing message retained
	// during scatter. Zero disables it.
	Damping float64
}

// BuildInput is one tick's snapshot of the allocation problem. Tasks and
// Planes fix the iteration orders used for every tie-break downstream.
type BuildInput struct {
	Tasks  []string
	Planes []string

	// Visible[p] lists indexes into Tasks that plane p can see, in pool
	// order.
	Visible [][]int

	// Cost returns plane p's cost for task t (indexes as above). Must be
	// finite, non-negative and stable for the lifetime of the graph.
	Cost func(p, t int) float64
}

// Graph is the bipartite factor graph for one allocation tick: a selector
// node per task, a cost node per plane, and an edge per visible (plane,
// task) pair. Nodes are addressed by index; neighbor lists and the slots
// mirror-index into each other so that message delivery is O(1).
type Graph struct {
	policy    Policy
	selectors []selectorNode
	costs     []costNode
	round     int
}

type selectorNode struct {
	id        string
	neighbors []int // cost node indexes, construction order
	slots     []int // position of this selector inside each neighbor
	in        []float64
	gathered  []float64
	out       []float64
}

type costNode struct {
	id         string
	neighbors  []int // selector indexes, construction order
	slots      []int
	potentials []float64
	in         []float64
	gathered   []float64
	out        []float64
}

// Build constructs the graph for one tick. It is a pure transformation of
// the snapshot: no I/O, no retained references to the input slices.
func Build(in BuildInput, policy Policy) (*Graph, error) {
	if len(in.Visible) != len(in.Planes) {
		return nil, fmt.Errorf("visibility rows (%d) do not match planes (%d)", len(in.Visible), len(in.Planes))
	}
	g := &Graph{policy: policy}
	g.selectors = make([]selectorNode, len(in.Tasks))
	for t, id := range in.Tasks {
		g.selectors[t] = selectorNode{id: id}
	}
	g.costs = make([]costNode, len(in.Planes))

	for p, id := range in.Planes {
		c := costNode{id: id}
		for _, t := range in.Visible[p] {
			if t < 0 || t >= len(g.selectors) {
				return nil, fmt.Errorf("plane %s: visible task index %d out of range", id, t)
			}
			v := in.Cost(p, t)
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, fmt.Errorf("%w: cost(%s, %s) = %g", ErrBadCost, id, in.Tasks[t], v)
			}
			s := &g.selectors[t]
			sPos := len(s.neighbors)
			cPos := len(c.neighbors)
			s.neighbors = append(s.neighbors, p)
			s.slots = append(s.slots, cPos)
			c.neighbors = append(c.neighbors, t)
			c.slots = append(c.slots, sPos)
			c.potentials = append(c.potentials, v)
		}
		g.costs[p] = c
	}

	for i := range g.selectors {
		s := &g.selectors[i]
		n := len(s.neighbors)
		s.in = make([]float64, n)
		s.gathered = make([]float64, n)
		s.out = make([]float64, n)
	}
	for i := range g.costs {
		c := &g.costs[i]
		n := len(c.neighbors)
		c.in = make([]float64, n)
		c.gathered = make([]float64, n)
		c.out = make([]float64, n)
	}
	return g, nil
}

// Extract reads every task's preferred plane from the final messages and
// resolves conflicts in pool order: a plane already holding a task from an
// earlier step gives it up only for a strictly cheaper one, and the
// displaced task stays unassigned this tick. The returned maps are mutual
// inverses.
func (g *Graph) Extract() domain.Assignment {
	asg := domain.NewAssignment()
	held := make([]int, len(g.costs))
	heldCost := make([]float64, len(g.costs))
	for i := range held {
		held[i] = -1
	}

	for si := range g.selectors {
		s := &g.selectors[si]
		pos := s.selectPos()
		if pos < 0 {
			continue // no visible plane, stays unassigned
		}
		ci := s.neighbors[pos]
		c := &g.costs[ci]
		cost := c.potentials[s.slots[pos]]

		if prev := held[ci]; prev >= 0 {
			if cost >= heldCost[ci] {
				continue
			}
			delete(asg.ByTask, g.selectors[prev].id)
		}
		held[ci] = si
		heldCost[ci] = cost
		asg.ByPlane[c.id] = s.id
		asg.ByTask[s.id] = c.id
	}
	return asg
}

// selectPos picks the neighbor with the lowest final incoming message; ties
// go to the earliest neighbor in construction order.
func (s *selectorNode) selectPos() int {
	best := -1
	for i := range s.neighbors {
		if best < 0 || s.in[i] < s.in[best] {
			best = i
		}
	}
	return best
}
