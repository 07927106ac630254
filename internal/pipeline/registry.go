package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownModel indicates the requested model is not registered.
var ErrUnknownModel = errors.New("unknown model")

// ErrDuplicateModel indicates an attempt to register the same model twice.
var ErrDuplicateModel = errors.New("model already registered")

type modelEntry struct {
	model    ModelDescriptor
	pipeline Pipeline
}

// Registry maintains a mapping of model IDs to the pipelines hosting
// them. It exists purely for HTTP-layer dispatch: pipelines themselves
// forward model ids to their vendor without validation.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]Pipeline
	model     map[string]modelEntry
	order     []ModelDescriptor
	pipelines []Pipeline
}

// NewRegistry constructs an empty pipeline registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[string]Pipeline),
		model: make(map[string]modelEntry),
	}
}

// Register adds the pipeline and all of its models to the registry.
func (r *Registry) Register(p Pipeline) error {
	if p == nil {
		return errors.New("pipeline must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[p.ID()]; exists {
		return fmt.Errorf("pipeline %q already registered", p.ID())
	}
	r.byID[p.ID()] = p
	r.pipelines = append(r.pipelines, p)

	for _, model := range p.Models() {
		if _, exists := r.model[model.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateModel, model.ID)
		}
		r.model[model.ID] = modelEntry{model: model, pipeline: p}
		r.order = append(r.order, model)
	}

	return nil
}

// Lookup returns the descriptor and hosting pipeline for a model ID.
func (r *Registry) Lookup(modelID string) (ModelDescriptor, Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.model[modelID]
	if !ok {
		return ModelDescriptor{}, nil, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	return entry.model, entry.pipeline, nil
}

// Models lists every registered model in registration order.
func (r *Registry) Models() []ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ModelDescriptor, len(r.order))
	copy(result, r.order)
	return result
}

// Pipelines returns every registered pipeline in registration order.
func (r *Registry) Pipelines() []Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Pipeline, len(r.pipelines))
	copy(result, r.pipelines)
	return result
}
