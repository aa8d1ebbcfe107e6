package maxsum

import (
	"math"
	"sort"
)

// Run executes exactly rounds synchronous message-passing rounds. Each round
// is three full passes over the node arena (tick, gather, scatter); no node
// sees a neighbor's partial update within a phase. There is no convergence
// check: the budget is always exhausted and an approximate fixpoint is
// accepted. Run(0) is valid; extraction then works on zeroed inboxes.
func (g *Graph) Run(rounds int) {
	for i := 0; i < rounds; i++ {
		g.tick()
		g.gather()
		g.scatter()
	}
}

// tick advances the round counter. No messages move here; the counter only
// gates damping so the first scatter is never mixed with the zero-valued
// initial messages.
func (g *Graph) tick() {
	g.round++
}

// gather snapshots every inbox. Scatter computes from these snapshots, which
// is what makes the phases behave as a barrier.
func (g *Graph) gather() {
	for i := range g.selectors {
		s := &g.selectors[i]
		copy(s.gathered, s.in)
	}
	for i := range g.costs {
		c := &g.costs[i]
		copy(c.gathered, c.in)
	}
}

func (g *Graph) scatter() {
	for i := range g.selectors {
		g.scatterSelector(&g.selectors[i])
	}
	for i := range g.costs {
		c := &g.costs[i]
		switch g.policy.Kind {
		case PolicyWorkload:
			g.scatterWorkload(c)
		default:
			g.scatterIndependent(c)
		}
	}
}

// scatterSelector sends each candidate plane the negated best cost offered
// by any other candidate: the price of the task's best alternative. With a
// single candidate there is no alternative and the message stays 0.
func (g *Graph) scatterSelector(s *selectorNode) {
	for i := range s.neighbors {
		best := math.Inf(1)
		for j := range s.neighbors {
			if j == i {
				continue
			}
			if s.gathered[j] < best {
				best = s.gathered[j]
			}
		}
		msg := 0.0
		if !math.IsInf(best, 1) {
			msg = -best
		}
		msg = g.damp(s.out[i], msg)
		s.out[i] = msg
		g.costs[s.neighbors[i]].in[s.slots[i]] = msg
	}
}

// scatterIndependent prices task j as the plane's own cost for j minus
// whatever the plane could gain by serving its best other candidate instead
// (the at-most-one opportunity cost).
func (g *Graph) scatterIndependent(c *costNode) {
	for j := range c.neighbors {
		alt := 0.0
		for k := range c.neighbors {
			if k == j {
				continue
			}
			if v := c.potentials[k] + c.gathered[k]; v < alt {
				alt = v
			}
		}
		msg := c.potentials[j] - alt
		msg = g.damp(c.out[j], msg)
		c.out[j] = msg
		g.selectors[c.neighbors[j]].in[c.slots[j]] = msg
	}
}

// scatterWorkload prices task j as the difference between the plane's best
// total workload with j forced in and with j forced out, where taking m
// tasks costs k*m^alpha on top of the per-task values. Because the workload
// term depends only on the count, the best set of any given size is a prefix
// of the value-sorted candidates.
func (g *Graph) scatterWorkload(c *costNode) {
	type entry struct {
		idx int
		v   float64
	}
	entries := make([]entry, 0, len(c.neighbors))
	for k := range c.neighbors {
		entries = append(entries, entry{idx: k, v: c.potentials[k] + c.gathered[k]})
	}
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].v != entries[b].v {
			return entries[a].v < entries[b].v
		}
		return entries[a].idx < entries[b].idx
	})

	for j := range c.neighbors {
		withJ := g.workload(1)
		withoutJ := 0.0
		sum := 0.0
		m := 0
		for _, e := range entries {
			if e.idx == j {
				continue
			}
			m++
			sum += e.v
			if v := sum + g.workload(m+1); v < withJ {
				withJ = v
			}
			if v := sum + g.workload(m); v < withoutJ {
				withoutJ = v
			}
		}
		msg := c.potentials[j] + withJ - withoutJ
		msg = g.damp(c.out[j], msg)
		c.out[j] = msg
		g.selectors[c.neighbors[j]].in[c.slots[j]] = msg
	}
}

func (g *Graph) workload(m int) float64 {
	return g.policy.WorkloadK * math.Pow(float64(m), g.policy.WorkloadAlpha)
}

func (g *Graph) damp(prev, next float64) float64 {
	d := g.policy.Damping
	if d <= 0 || g.round <= 1 {
		return next
	}
	return d*prev + (1-d)*next
}
