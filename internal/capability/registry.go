package capability

import (
	"fmt"
	"sort"
)

// Registry is the static lookup table of capability implementations, built
// once at startup. There is no dynamic module loading; a capability that is
// not registered cannot be planned or parsed.
type Registry struct {
	byName map[string]Capability
	order  []string
}

// NewRegistry builds a registry from the given implementations. Duplicate
// names panic: the capability set is wired in code and a collision is a
// programming error, not a runtime condition.
func NewRegistry(caps ...Capability) *Registry {
	r := &Registry{byName: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		if _, dup := r.byName[c.Name()]; dup {
			panic(fmt.Sprintf("capability %q registered twice", c.Name()))
		}
		r.byName[c.Name()] = c
		r.order = append(r.order, c.Name())
	}
	return r
}

// Get returns the named capability.
func (r *Registry) Get(name string) (Capability, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Names returns the registered capability names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}

// All returns the capabilities in registration order.
func (r *Registry) All() []Capability {
	caps := make([]Capability, 0, len(r.order))
	for _, name := range r.order {
		caps = append(caps, r.byName[name])
	}
	return caps
}
