package signup

import (
	"sort"
	"sync"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
)

// FlowFactory derives a flow instance for a shift from its configuration.
type FlowFactory func(shift *model.Shift) SignupFlow

// StructureFactory derives a structure instance for a shift.
type StructureFactory func(shift *model.Shift) ShiftStructure

// Registry maps stable slugs to flow and structure factories and collects
// externally registered checkers. Plugins register at startup; lookups for
// unknown slugs resolve to fallback implementations and never fail.
type Registry struct {
	mu         sync.RWMutex
	flows      map[string]FlowFactory
	structures map[string]StructureFactory
	checkers   []Checker
}

// NewRegistry returns a registry with the built-in flows and structures
// installed.
func NewRegistry() *Registry {
	r := &Registry{
		flows:      make(map[string]FlowFactory),
		structures: make(map[string]StructureFactory),
	}
	r.RegisterFlow(SlugInstantConfirmation, NewInstantConfirmFlow)
	r.RegisterFlow(SlugRequestConfirm, NewRequestConfirmFlow)
	r.RegisterFlow(SlugManual, NewManualFlow)
	r.RegisterFlow(SlugCoupled, NewCoupledFlow)
	r.RegisterStructure(SlugUniform, NewUniformStructure)
	return r
}

// RegisterFlow installs a flow factory under a slug.
func (r *Registry) RegisterFlow(slug string, factory FlowFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[slug] = factory
}

// RegisterStructure installs a structure factory under a slug.
func (r *Registry) RegisterStructure(slug string, factory StructureFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.structures[slug] = factory
}

// RegisterChecker appends a checker to the pipeline, after the built-ins and
// structure checkers. Registration order is evaluation order.
func (r *Registry) RegisterChecker(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers = append(r.checkers, checker)
}

// ExtraCheckers returns the registered checkers in registration order.
func (r *Registry) ExtraCheckers() []Checker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Checker(nil), r.checkers...)
}

// FlowFor derives the signup flow for a shift. Unknown slugs resolve to the
// fallback flow.
func (r *Registry) FlowFor(shift *model.Shift) SignupFlow {
	r.mu.RLock()
	factory, ok := r.flows[shift.SignupFlowSlug]
	r.mu.RUnlock()
	if !ok {
		return NewFallbackFlow(shift)
	}
	return factory(shift)
}

// StructureFor derives the shift structure for a shift. Unknown slugs resolve
// to the fallback structure.
func (r *Registry) StructureFor(shift *model.Shift) ShiftStructure {
	r.mu.RLock()
	factory, ok := r.structures[shift.StructureSlug]
	r.mu.RUnlock()
	if !ok {
		return NewFallbackStructure(shift)
	}
	return factory(shift)
}

// FlowSlugs lists the installed flow slugs, sorted.
func (r *Registry) FlowSlugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slugs := make([]string, 0, len(r.flows))
	for slug := range r.flows {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// StructureSlugs lists the installed structure slugs, sorted.
func (r *Registry) StructureSlugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slugs := make([]string, 0, len(r.structures))
	for slug := range r.structures {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
