package plan

import (
	"reflect"
	"testing"
)

func TestAnalyzeDependencies(t *testing.T) {
	tests := []struct {
		name            string
		deps            [][]int
		wantRoots       []int
		wantCritical    int
		wantParallelMin int
		wantParallel    int
	}{
		{
			name:         "empty plan",
			deps:         nil,
			wantRoots:    []int{},
			wantCritical: 0,
			wantParallel: 1,
		},
		{
			name:         "single task",
			deps:         [][]int{nil},
			wantRoots:    []int{0},
			wantCritical: 1,
			wantParallel: 1,
		},
		{
			name:         "diamond 0->1->{2,3}->4",
			deps:         [][]int{nil, {0}, {1}, {1}, {2, 3}},
			wantRoots:    []int{0},
			wantCritical: 4,
			wantParallel: 2,
		},
		{
			name:         "independent tasks",
			deps:         [][]int{nil, nil, nil},
			wantRoots:    []int{0, 1, 2},
			wantCritical: 1,
			wantParallel: 3,
		},
		{
			name:         "linear chain",
			deps:         [][]int{nil, {0}, {1}, {2}},
			wantRoots:    []int{0},
			wantCritical: 4,
			wantParallel: 1,
		},
		{
			name:         "two roots joined",
			deps:         [][]int{nil, nil, {0, 1}, {0}},
			wantRoots:    []int{0, 1},
			wantCritical: 2,
			wantParallel: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewExecutionPlan()
			for i, deps := range tt.deps {
				if _, err := p.AddTask("task", ActionGeneral, deps); err != nil {
					t.Fatalf("AddTask %d: %v", i, err)
				}
			}

			a, err := p.AnalyzeDependencies()
			if err != nil {
				t.Fatalf("AnalyzeDependencies: %v", err)
			}
			if a.TotalTasks != len(tt.deps) {
				t.Errorf("TotalTasks = %d, want %d", a.TotalTasks, len(tt.deps))
			}
			if !reflect.DeepEqual(a.RootTasks, tt.wantRoots) {
				t.Errorf("RootTasks = %v, want %v", a.RootTasks, tt.wantRoots)
			}
			if a.CriticalPathLength != tt.wantCritical {
				t.Errorf("CriticalPathLength = %d, want %d", a.CriticalPathLength, tt.wantCritical)
			}
			if a.ParallelizationPotential != tt.wantParallel {
				t.Errorf("ParallelizationPotential = %d, want %d", a.ParallelizationPotential, tt.wantParallel)
			}
			if len(a.Order) != len(tt.deps) {
				t.Errorf("Order = %v, want %d entries", a.Order, len(tt.deps))
			}
		})
	}
}

func TestAnalyzeDependenciesMaps(t *testing.T) {
	p := NewExecutionPlan()
	mustAdd(t, p, "a", ActionGeneral)
	mustAdd(t, p, "b", ActionGeneral, 0)
	mustAdd(t, p, "c", ActionGeneral, 1)
	mustAdd(t, p, "d", ActionGeneral, 1)
	mustAdd(t, p, "e", ActionGeneral, 3, 2)

	a, err := p.AnalyzeDependencies()
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(a.Forward[4], []int{3, 2}) {
		t.Errorf("Forward[4] = %v, want insertion order [3 2]", a.Forward[4])
	}
	if !reflect.DeepEqual(a.Reverse[1], []int{2, 3}) {
		t.Errorf("Reverse[1] = %v, want [2 3]", a.Reverse[1])
	}
	if len(a.Reverse[4]) != 0 {
		t.Errorf("Reverse[4] = %v, want empty", a.Reverse[4])
	}
	if _, ok := a.Reverse[4]; !ok {
		t.Error("Reverse must contain every task")
	}

	pos := make(map[int]int)
	for i, id := range a.Order {
		pos[id] = i
	}
	for id, deps := range a.Forward {
		for _, dep := range deps {
			if pos[dep] >= pos[id] {
				t.Errorf("order places %d before its dependency %d", id, dep)
			}
		}
	}
}
