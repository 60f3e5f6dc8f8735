package gorefit

import (
	"fmt"
	"sort"
	"sync"
)

// Labels of the propagators registered by NewStandardRegistry.
const (
	AnalyticalAlongLabel      = "AnalyticalPropagator"
	AnalyticalOppositeLabel   = "AnalyticalPropagatorOpposite"
	StraightLineAlongLabel    = "StraightLinePropagator"
	StraightLineOppositeLabel = "StraightLinePropagatorOpposite"
)

// EventSetup resolves the collaborators of a ReFitter by label.
type EventSetup interface {
	Propagator(label string) (Propagator, error)
	MagneticField(label string) (MagneticField, error)
}

// Registry is an EventSetup backed by maps. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	propagators map[string]Propagator
	fields      map[string]MagneticField
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{propagators: make(map[string]Propagator), fields: make(map[string]MagneticField)}
}

// NewStandardRegistry returns a registry holding the analytical and straight line
// propagators in both directions and field under DefaultFieldLabel.
func NewStandardRegistry(field MagneticField) *Registry {
	r := NewRegistry()
	r.propagators[AnalyticalAlongLabel] = NewAnalyticalPropagator(field, AlongMomentum)
	r.propagators[AnalyticalOppositeLabel] = NewAnalyticalPropagator(field, OppositeToMomentum)
	r.propagators[StraightLineAlongLabel] = NewStraightLinePropagator(AlongMomentum)
	r.propagators[StraightLineOppositeLabel] = NewStraightLinePropagator(OppositeToMomentum)
	r.fields[DefaultFieldLabel] = field
	return r
}

// RegisterPropagator adds a propagator under label.
func (r *Registry) RegisterPropagator(label string, p Propagator) error {
	if p == nil {
		return fmt.Errorf("gorefit: nil propagator for label %q", label)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.propagators[label]; exists {
		return fmt.Errorf("%w: propagator %q", ErrDuplicateLabel, label)
	}
	r.propagators[label] = p
	return nil
}

// RegisterField adds a magnetic field under label.
func (r *Registry) RegisterField(label string, f MagneticField) error {
	if f == nil {
		return fmt.Errorf("gorefit: nil field for label %q", label)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fields[label]; exists {
		return fmt.Errorf("%w: field %q", ErrDuplicateLabel, label)
	}
	r.fields[label] = f
	return nil
}

// Propagator implements the EventSetup interface.
func (r *Registry) Propagator(label string) (Propagator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.propagators[label]
	if !ok {
		return nil, fmt.Errorf("%w: propagator %q", ErrNotFound, label)
	}
	return p, nil
}

// MagneticField implements the EventSetup interface.
func (r *Registry) MagneticField(label string) (MagneticField, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fields[label]
	if !ok {
		return nil, fmt.Errorf("%w: field %q", ErrNotFound, label)
	}
	return f, nil
}

// PropagatorLabels returns the sorted propagator labels.
func (r *Registry) PropagatorLabels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	labels := make([]string, 0, len(r.propagators))
	for l := range r.propagators {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
