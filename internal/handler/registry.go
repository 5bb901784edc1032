package handler

import (
	"fmt"
	"sync"

	"github.com/FiditeNemini/artcraft-sub020/internal/jobs"
)

// Registry manages registered handlers by job type.
type Registry struct {
	mu       sync.RWMutex
	handlers map[jobs.JobType]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[jobs.JobType]Handler),
	}
}

func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

func (r *Registry) Get(t jobs.JobType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("no handler registered for job type %q", t)
	}
	return h, nil
}

func (r *Registry) Types() []jobs.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]jobs.JobType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
