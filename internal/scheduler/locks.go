package scheduler

import (
	"path/filepath"
	"sort"
	"sync"
)

// ResourceLockManager serializes tasks that touch the same files while
// letting tasks on disjoint files run concurrently.
type ResourceLockManager struct {
	mu    sync.Mutex             // guards locks
	locks map[string]*sync.Mutex // one mutex per cleaned path
}

// NewResourceLockManager creates an empty lock manager.
func NewResourceLockManager() *ResourceLockManager {
	return &ResourceLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *ResourceLockManager) lockFor(path string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[path]
	if !ok {
		l = &sync.Mutex{}
		r.locks[path] = l
	}
	return l
}

// TryAcquire locks every path only if none is currently held. Paths are
// cleaned and deduplicated. A failed attempt leaves nothing locked.
func (r *ResourceLockManager) TryAcquire(paths []string) (release func(), ok bool) {
	keys := lockKeys(paths)
	held := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		l := r.lockFor(key)
		if !l.TryLock() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].Unlock()
			}
			return nil, false
		}
		held = append(held, l)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].Unlock()
			}
		})
	}, true
}

func lockKeys(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		key := filepath.Clean(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
