// Package resolver computes dependency-aware execution order for schema
// objects.
//
// Install order places every dependency before its dependents; uninstall
// order is the exact reverse. Objects the graph does not otherwise constrain
// keep their declaration order, so output is fully deterministic for a given
// input sequence.
//
// True cycles are fatal, with one documented exception: mutual EXEC
// references between procedures are legal because the target engine resolves
// names inside procedure bodies at execution time, not creation time. Cycles
// consisting solely of procedure-to-procedure edges are broken by declaration
// order; any cycle touching another object type raises a CycleError.
package resolver

import (
	"sort"
	"strings"

	"github.com/pseudomuto/groundskeeper/pkg/parser"
	"github.com/pseudomuto/groundskeeper/pkg/schema"
)

type (
	// Direction selects install or uninstall ordering.
	Direction int

	// CycleError reports an unresolvable dependency cycle among the named
	// objects.
	CycleError struct {
		// Names are the canonical names of the objects participating in
		// the cycle, in declaration order.
		Names []string
	}
)

const (
	// Install orders dependencies before their dependents.
	Install Direction = iota

	// Uninstall is the strict reverse of Install.
	Uninstall
)

func (e *CycleError) Error() string {
	return "dependency cycle among: " + strings.Join(e.Names, ", ")
}

// Order sequences the working set for execution. The input slice order is
// the declaration order used for tie-breaking; the input is not modified.
func Order(objects []*schema.Object, direction Direction) ([]*schema.Object, error) {
	ordered, err := topoSort(objects)
	if err != nil {
		return nil, err
	}

	if direction == Uninstall {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}
	return ordered, nil
}

// topoSort is Kahn's algorithm with an ordered frontier: among objects whose
// dependencies are all placed, the one declared first is emitted first.
func topoSort(objects []*schema.Object) ([]*schema.Object, error) {
	byName := make(map[string]int, len(objects))
	for i, obj := range objects {
		byName[obj.Name] = i
	}

	// edges[i] lists the declaration indexes i depends on; only edges
	// within the working set count.
	edges := make([][]int, len(objects))
	dependents := make([][]int, len(objects))
	indegree := make([]int, len(objects))

	for i, obj := range objects {
		for _, dep := range obj.Dependencies {
			j, ok := byName[dep]
			if !ok || j == i {
				continue
			}
			edges[i] = append(edges[i], j)
			dependents[j] = append(dependents[j], i)
			indegree[i]++
		}
	}

	frontier := make([]int, 0, len(objects))
	for i := range objects {
		if indegree[i] == 0 {
			frontier = append(frontier, i)
		}
	}

	ordered := make([]*schema.Object, 0, len(objects))
	placed := make([]bool, len(objects))

	place := func(i int) {
		placed[i] = true
		ordered = append(ordered, objects[i])
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				frontier = append(frontier, d)
			}
		}
	}

	for len(ordered) < len(objects) {
		if len(frontier) > 0 {
			sort.Ints(frontier)
			next := frontier[0]
			frontier = frontier[1:]
			place(next)
			continue
		}

		// Stuck: every unplaced object waits on another unplaced one.
		// Procedure bodies are resolved by the engine at execution time,
		// so procedures blocked only by other procedures may be forced in
		// declaration order. They are placed as one contiguous run before
		// the frontier is consulted again, so objects freed by the first
		// member never interleave with the rest of the cycle. Anything
		// else is a true cycle.
		remaining := unplaced(placed)
		var forced []int
		for _, i := range remaining {
			if objects[i].Type != parser.TypeProcedure {
				continue
			}
			if pendingEdgesAreProcedures(objects, edges[i], placed) {
				forced = append(forced, i)
			}
		}
		if len(forced) == 0 {
			names := make([]string, 0, len(remaining))
			for _, i := range remaining {
				names = append(names, objects[i].Name)
			}
			return nil, &CycleError{Names: names}
		}
		for _, i := range forced {
			place(i)
		}
	}

	return ordered, nil
}

func unplaced(placed []bool) []int {
	var out []int
	for i, p := range placed {
		if !p {
			out = append(out, i)
		}
	}
	return out
}

// pendingEdgesAreProcedures reports whether every unsatisfied dependency in
// deps points at a procedure.
func pendingEdgesAreProcedures(objects []*schema.Object, deps []int, placed []bool) bool {
	for _, j := range deps {
		if !placed[j] && objects[j].Type != parser.TypeProcedure {
			return false
		}
	}
	return true
}
