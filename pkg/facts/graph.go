package facts

import (
	"slices"
)

// neighbor records the single successor (or predecessor) seen for a point.
// unique flips to false as soon as a second edge shows up; the exact count
// is never needed.
type neighbor[P comparable] struct {
	point  P
	unique bool
}

// IsolatedEdges returns the edges (p, q) of cfg_edge where p has exactly one
// outgoing edge and q exactly one incoming edge, as a map from p to q.
//
// The full edge multiset is considered, so a duplicated edge disqualifies
// both of its endpoints.
func (f *AllFacts[R, L, P]) IsolatedEdges() map[P]P {
	successors := make(map[P]neighbor[P])
	predecessors := make(map[P]neighbor[P])

	for _, e := range f.CFGEdge {
		if _, seen := successors[e.From]; seen {
			successors[e.From] = neighbor[P]{}
		} else {
			successors[e.From] = neighbor[P]{point: e.To, unique: true}
		}

		if _, seen := predecessors[e.To]; seen {
			predecessors[e.To] = neighbor[P]{}
		} else {
			predecessors[e.To] = neighbor[P]{point: e.From, unique: true}
		}
	}

	isolated := make(map[P]P)
	for p, succ := range successors {
		if !succ.unique {
			continue
		}
		if pred, ok := predecessors[succ.point]; ok && pred.unique {
			isolated[p] = succ.point
		}
	}
	return isolated
}

// IsolatedChains returns the maximal chains of points connected end to end
// by isolated edges. Chains are vertex-disjoint and ordered by the index of
// their head.
func (f *AllFacts[R, L, P]) IsolatedChains() [][]P {
	isolated := f.IsolatedEdges()

	targets := make(map[P]struct{}, len(isolated))
	for _, q := range isolated {
		targets[q] = struct{}{}
	}

	var heads []P
	for p := range isolated {
		if _, isTarget := targets[p]; !isTarget {
			heads = append(heads, p)
		}
	}
	slices.Sort(heads)

	chains := make([][]P, 0, len(heads))
	for _, head := range heads {
		chain := make([]P, 1, 2)
		chain[0] = head

		current := head
		for {
			next, ok := isolated[current]
			if !ok {
				break
			}
			delete(isolated, current)
			chain = append(chain, next)
			current = next
		}

		chains = append(chains, chain)
	}

	return chains
}

// Successors returns the targets of every edge leaving p, in edge order.
func (f *AllFacts[R, L, P]) Successors(p P) []P {
	var out []P
	for _, e := range f.CFGEdge {
		if e.From == p {
			out = append(out, e.To)
		}
	}
	return out
}

// Predecessors returns the sources of every edge entering p, in edge order.
func (f *AllFacts[R, L, P]) Predecessors(p P) []P {
	var out []P
	for _, e := range f.CFGEdge {
		if e.To == p {
			out = append(out, e.From)
		}
	}
	return out
}

// Reachable returns the points reachable from start by following one or
// more edges. start itself is included only if it lies on a cycle.
func (f *AllFacts[R, L, P]) Reachable(start P) map[P]bool {
	adjacency := make(map[P][]P)
	for _, e := range f.CFGEdge {
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}

	visited := make(map[P]bool)
	frontier := []P{start}

	for len(frontier) > 0 {
		var nextFrontier []P
		for _, current := range frontier {
			for _, next := range adjacency[current] {
				if !visited[next] {
					visited[next] = true
					nextFrontier = append(nextFrontier, next)
				}
			}
		}
		frontier = nextFrontier
	}

	return visited
}

// isEndpoint reports whether no live edge leaves p.
func (f *AllFacts[R, L, P]) isEndpoint(p P) bool {
	for _, e := range f.CFGEdge {
		if e.From == p {
			return false
		}
	}
	return true
}

// isStartpoint reports whether no live edge enters p.
func (f *AllFacts[R, L, P]) isStartpoint(p P) bool {
	for _, e := range f.CFGEdge {
		if e.To == p {
			return false
		}
	}
	return true
}
