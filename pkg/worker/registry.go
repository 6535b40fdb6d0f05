package worker

import (
	"context"
	"fmt"
)

// Registry is a name->Worker mapping, immutable after startup (spec §5).
// There is no discovery mechanism: a worker is either registered or absent.
type Registry struct {
	workers map[string]Worker
	order   []string
}

// NewRegistry builds a registry from the given workers, preserving
// registration order for deterministic capability-catalogue rendering.
func NewRegistry(workers ...Worker) *Registry {
	r := &Registry{workers: make(map[string]Worker, len(workers))}
	for _, w := range workers {
		if _, exists := r.workers[w.Name()]; exists {
			continue
		}
		r.workers[w.Name()] = w
		r.order = append(r.order, w.Name())
	}
	return r
}

// Get returns the worker registered under name, or nil if absent.
func (r *Registry) Get(name string) Worker {
	return r.workers[name]
}

// Dispatch executes action on the named worker. An unknown worker name
// yields a Success=false result whose message is "Unknown worker: <name>".
func (r *Registry) Dispatch(ctx context.Context, workerName, action string, args Args) WorkerResult {
	w := r.Get(workerName)
	if w == nil {
		return WorkerResult{
			Success: false,
			Message: fmt.Sprintf("Unknown worker: %s", workerName),
		}
	}
	return w.Execute(ctx, action, args)
}

// Catalogue describes one worker's advertised actions for prompt rendering.
type Catalogue struct {
	Worker       string
	Capabilities []string
}

// Capabilities returns the full capability catalogue in registration order,
// read by the prompt builder to render the "worker.action(param: kind)"
// listing shown to the LLM (spec §4.1).
func (r *Registry) Capabilities() []Catalogue {
	out := make([]Catalogue, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, Catalogue{Worker: name, Capabilities: r.workers[name].Capabilities()})
	}
	return out
}

// Names returns all registered worker names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
