package validate

import (
	"sort"
	"strings"
)

// findCycles returns one witness path per dependency cycle, each with its
// first node repeated at the end, or nil when the graph is acyclic. Disjoint
// cycles are all reported in one run: the graph is decomposed into strongly
// connected components (Tarjan) and every nontrivial component yields one
// witness. Edges to unknown tasks are skipped, those are reported separately
// as dangling references.
func findCycles(ids []string, deps map[string][]string, known map[string]bool) [][]string {
	outgoing := func(id string) []string {
		var out []string
		for _, v := range deps[id] {
			if known[v] {
				out = append(out, v)
			}
		}
		sort.Strings(out)
		return out
	}

	index := map[string]int{}
	low := map[string]int{}
	onStack := map[string]bool{}
	var stack []string
	next := 0
	var components [][]string

	var connect func(v string)
	connect = func(v string) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range outgoing(v) {
			if _, seen := index[w]; !seen {
				connect(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] && index[w] < low[v] {
				low[v] = index[w]
			}
		}

		if low[v] == index[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			components = append(components, scc)
		}
	}

	for _, id := range ids {
		if _, seen := index[id]; !seen {
			connect(id)
		}
	}

	var cycles [][]string
	for _, scc := range components {
		if len(scc) == 1 && !hasSelfLoop(scc[0], outgoing) {
			continue
		}
		cycles = append(cycles, cycleWitness(scc, outgoing))
	}

	// Component discovery order depends on traversal; sort witnesses by
	// their entry node so reports are stable.
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

func hasSelfLoop(id string, outgoing func(string) []string) bool {
	for _, v := range outgoing(id) {
		if v == id {
			return true
		}
	}
	return false
}

// cycleWitness walks the component from its smallest node until an edge
// returns there, producing one concrete loop an operator can break.
func cycleWitness(scc []string, outgoing func(string) []string) []string {
	members := map[string]bool{}
	for _, id := range scc {
		members[id] = true
	}
	sorted := append([]string{}, scc...)
	sort.Strings(sorted)
	start := sorted[0]

	var path []string
	visited := map[string]bool{}
	var dfs func(u string) bool
	dfs = func(u string) bool {
		visited[u] = true
		path = append(path, u)
		for _, v := range outgoing(u) {
			if v == start {
				return true
			}
			if members[v] && !visited[v] && dfs(v) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	dfs(start)
	return append(path, start)
}

func joinCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}
