package plan

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// DependencyAnalysis summarizes the shape of a plan's dependency graph.
type DependencyAnalysis struct {
	Forward                  map[int][]int // task -> dependencies, in declaration order
	Reverse                  map[int][]int // task -> dependents, ascending
	RootTasks                []int         // tasks without dependencies, ascending
	TotalTasks               int
	CriticalPathLength       int   // node count of the longest dependency chain
	ParallelizationPotential int   // widest dependency depth, at least 1
	Order                    []int // a valid execution order
	Depths                   map[int]int
}

// AnalyzeDependencies computes dependency maps, roots, the critical path and
// the static parallelization potential of the plan.
func (p *ExecutionPlan) AnalyzeDependencies() (*DependencyAnalysis, error) {
	tasks := p.Tasks()

	a := &DependencyAnalysis{
		Forward:    make(map[int][]int, len(tasks)),
		Reverse:    make(map[int][]int, len(tasks)),
		RootTasks:  []int{},
		TotalTasks: len(tasks),
		Depths:     make(map[int]int, len(tasks)),
	}

	for _, task := range tasks {
		a.Forward[task.ID] = append([]int(nil), task.Dependencies...)
		if _, ok := a.Reverse[task.ID]; !ok {
			a.Reverse[task.ID] = []int{}
		}
		for _, dep := range task.Dependencies {
			a.Reverse[dep] = append(a.Reverse[dep], task.ID)
		}
		if len(task.Dependencies) == 0 {
			a.RootTasks = append(a.RootTasks, task.ID)
		}
	}

	order, err := topologicalOrder(tasks)
	if err != nil {
		return nil, err
	}
	a.Order = order

	// Depth of a task is one more than its deepest dependency; roots sit at 0.
	width := make(map[int]int)
	for _, id := range order {
		depth := 0
		for _, dep := range a.Forward[id] {
			if d := a.Depths[dep] + 1; d > depth {
				depth = d
			}
		}
		a.Depths[id] = depth
		width[depth]++
		if depth+1 > a.CriticalPathLength {
			a.CriticalPathLength = depth + 1
		}
	}

	a.ParallelizationPotential = 1
	for _, n := range width {
		if n > a.ParallelizationPotential {
			a.ParallelizationPotential = n
		}
	}

	return a, nil
}

// topologicalOrder sorts task ids so that every dependency precedes its dependents.
func topologicalOrder(tasks []*Task) ([]int, error) {
	var edges []toposort.Edge
	for _, task := range tasks {
		if len(task.Dependencies) == 0 {
			// Root task: edge from nil keeps it in the result
			edges = append(edges, toposort.Edge{nil, task.ID})
			continue
		}
		for _, dep := range task.Dependencies {
			edges = append(edges, toposort.Edge{dep, task.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency graph contains cycle: %w", err)
	}

	order := make([]int, 0, len(tasks))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(int))
		}
	}

	if len(order) != len(tasks) {
		return nil, fmt.Errorf("topological sort lost %d tasks", len(tasks)-len(order))
	}
	return order, nil
}
