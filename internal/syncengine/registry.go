package syncengine

import (
	"sync"

	"shopsync/internal/domain"
	"shopsync/internal/models"
)

// Validator checks entity-specific required fields before any I/O happens.
type Validator func(record *models.Record) error

// EntityDescriptor binds an entity type to its validator and remote gateway.
type EntityDescriptor struct {
	Type     string
	Validate Validator
	Gateway  domain.Gateway
}

// Registry holds the entity descriptors the engine and worker dispatch on.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*EntityDescriptor
}

func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]*EntityDescriptor)}
}

// Register installs or replaces the descriptor for desc.Type.
func (r *Registry) Register(desc *EntityDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[desc.Type] = desc
}

// Get returns the descriptor for the entity type, or nil.
func (r *Registry) Get(entityType string) *EntityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptors[entityType]
}

// Types returns the registered entity types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.descriptors))
	for t := range r.descriptors {
		types = append(types, t)
	}
	return types
}
