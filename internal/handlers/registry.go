package handlers

import (
	"sort"
	"sync"

	"github.com/lehigh-university-libraries/annotator/internal/session"
)

// active is a runner opened through the API. Runners are not safe for
// concurrent use, so every request holds mu while it touches one.
type active struct {
	mu     sync.Mutex
	runner *session.Runner
}

// registry keeps at most one open runner per identity key
type registry struct {
	runners map[string]*active
	mu      sync.RWMutex
}

func newRegistry() *registry {
	return &registry{
		runners: make(map[string]*active),
	}
}

func (r *registry) Get(key string) (*active, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, exists := r.runners[key]
	return a, exists
}

// Add stores runner under key unless one is already open there
func (r *registry) Add(key string, runner *session.Runner) (*active, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, exists := r.runners[key]; exists {
		return a, false
	}
	a := &active{runner: runner}
	r.runners[key] = a
	return a, true
}

func (r *registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.runners))
	for k := range r.runners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *registry) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runners, key)
}
