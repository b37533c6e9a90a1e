package endpoint

import (
	"fmt"
	"sort"

	"github.com/zulandar/panoramix/internal/config"
	"github.com/zulandar/panoramix/internal/models"
)

// TypeDescriptor is the topology policy of an endpoint type: how many
// links may feed each of its boxes. A limit of zero is unlimited.
type TypeDescriptor struct {
	Name       string
	MaxSources map[models.Box]int
}

// Allows reports whether a box that already has current sources may take one more.
func (d TypeDescriptor) Allows(box models.Box, current int) bool {
	limit := d.MaxSources[box]
	return limit == 0 || current < limit
}

// Registry holds the known endpoint types.
type Registry struct {
	types map[string]TypeDescriptor
}

// NewRegistry builds a registry from configured endpoint types.
func NewRegistry(cfgs []config.EndpointTypeConfig) *Registry {
	r := &Registry{types: make(map[string]TypeDescriptor, len(cfgs))}
	for _, c := range cfgs {
		r.types[c.Name] = TypeDescriptor{
			Name: c.Name,
			MaxSources: map[models.Box]int{
				models.BoxInbox:  c.MaxInboxSources,
				models.BoxOutbox: c.MaxOutboxSources,
			},
		}
	}
	return r
}

// DefaultRegistry returns a registry of the built-in endpoint types.
func DefaultRegistry() *Registry {
	return NewRegistry(config.DefaultEndpointTypes())
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (TypeDescriptor, error) {
	d, ok := r.types[name]
	if !ok {
		return TypeDescriptor{}, fmt.Errorf("endpoint: unknown type %q", name)
	}
	return d, nil
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
