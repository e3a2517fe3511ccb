package resolver

import "os"

// dirExists reports whether path names an existing directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// topologicalOrder runs Kahn's algorithm over the deduplicated id set,
// using "parent id -> child id" edges. Declaration order is preserved
// among nodes with no remaining dependency (I5, §4.2 step 6): the ready
// queue is scanned in the original visitedOrder each round rather than
// map iteration order.
func topologicalOrder(visitedOrder []string, edges [][2]string) []string {
	inDegree := make(map[string]int, len(visitedOrder))
	adj := make(map[string][]string)
	known := make(map[string]bool, len(visitedOrder))
	for _, id := range visitedOrder {
		known[id] = true
		inDegree[id] = 0
	}

	for _, e := range edges {
		parent, child := e[0], e[1]
		if parent == "" || !known[parent] || !known[child] {
			continue // root or an unresolved/placeholder edge target
		}
		adj[parent] = append(adj[parent], child)
		inDegree[child]++
	}

	var order []string
	removed := make(map[string]bool, len(visitedOrder))

	for len(order) < len(visitedOrder) {
		progressed := false
		for _, id := range visitedOrder {
			if removed[id] || inDegree[id] > 0 {
				continue
			}
			order = append(order, id)
			removed[id] = true
			progressed = true
			for _, child := range adj[id] {
				inDegree[child]--
			}
		}
		if !progressed {
			// The edges contain a cycle: the back-edge of a recorded
			// CircularRef, or a cycle among ids first reached from
			// different parents. Append whatever remains in visitation
			// order rather than looping forever.
			for _, id := range visitedOrder {
				if !removed[id] {
					order = append(order, id)
					removed[id] = true
				}
			}
			break
		}
	}

	return order
}
