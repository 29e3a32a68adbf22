// Package entity wraps world ids in handles that address components by raw id,
// by reflected type or by label, resolving type references through the
// registry bound to the world.
package entity

import (
	"fmt"

	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/registry"
)

// Handle is a non-owning reference to an entity of a world. The zero Handle
// refers to nothing.
type Handle struct {
	id  ecs.Id
	reg *registry.Registry
}

// New wraps an existing id
func New(reg *registry.Registry, id ecs.Id) Handle {
	if reg == nil {
		panic("entity: handle needs a registry")
	}
	return Handle{id: id, reg: reg}
}

// Spawn creates a new empty entity
func Spawn(reg *registry.Registry) Handle {
	return New(reg, reg.World().Entity())
}

// Named returns the entity at path, creating it and its missing ancestors
func Named(reg *registry.Registry, path string) Handle {
	return New(reg, reg.World().NamedEntity(path))
}

// ID returns the wrapped id
func (h Handle) ID() ecs.Id {
	return h.id
}

// Registry returns the registry the handle resolves references with
func (h Handle) Registry() *registry.Registry {
	return h.reg
}

// World returns the world of the entity
func (h Handle) World() *ecs.World {
	return h.reg.World()
}

// IsZero reports whether the handle refers to nothing
func (h Handle) IsZero() bool {
	return h.id == 0
}

// IsAlive reports whether the entity exists
func (h Handle) IsAlive() bool {
	return h.reg != nil && h.World().IsAlive(h.id)
}

// IsPair reports whether the handle wraps a pair id
func (h Handle) IsPair() bool {
	return h.id.IsPair()
}

// PairFirst returns the relationship of a pair handle
func (h Handle) PairFirst() Handle {
	h.mustPair("PairFirst")
	return New(h.reg, h.World().PairFirst(h.id))
}

// PairSecond returns the target of a pair handle
func (h Handle) PairSecond() Handle {
	h.mustPair("PairSecond")
	return New(h.reg, h.World().PairSecond(h.id))
}

func (h Handle) mustPair(op string) {
	if !h.id.IsPair() {
		panic(fmt.Sprintf("entity: %s called on %s which is not a pair", op, h))
	}
}

func (h Handle) mustEntity(op string) {
	if h.reg == nil {
		panic(fmt.Sprintf("entity: %s called on zero handle", op))
	}
	if h.id.IsPair() {
		panic(fmt.Sprintf("entity: %s called on pair %s", op, h))
	}
}

// Type returns the sorted ids of the entity
func (h Handle) Type() []ecs.Id {
	if h.reg == nil {
		return nil
	}
	return h.World().Type(h.id)
}

// SetName names the entity
func (h Handle) SetName(name string) Handle {
	h.mustEntity("SetName")
	h.World().SetName(h.id, name)
	return h
}

// Name returns the entity name
func (h Handle) Name() string {
	if h.reg == nil {
		return ""
	}
	return h.World().Name(h.id)
}

// Path returns the full path of a named entity
func (h Handle) Path() string {
	if h.reg == nil {
		return ""
	}
	return h.World().Path(h.id)
}

// SetParent makes the entity a child of parent
func (h Handle) SetParent(parent Handle) Handle {
	h.mustEntity("SetParent")
	h.World().Add(h.id, ecs.Pair(ecs.ChildOf, parent.id))
	return h
}

// Parent returns the parent, or the zero handle
func (h Handle) Parent() Handle {
	if h.reg == nil {
		return Handle{}
	}
	parent := h.World().Parent(h.id)
	if parent == 0 {
		return Handle{}
	}
	return New(h.reg, parent)
}

// Children returns the direct children of the entity
func (h Handle) Children() []Handle {
	if h.reg == nil {
		return nil
	}
	ids := h.World().Children(h.id)
	children := make([]Handle, len(ids))
	for i, id := range ids {
		children[i] = New(h.reg, id)
	}
	return children
}

// Lookup finds a direct child by name
func (h Handle) Lookup(name string) (Handle, bool) {
	if h.reg == nil {
		return Handle{}, false
	}
	child, ok := h.World().LookupChild(h.id, name)
	if !ok {
		return Handle{}, false
	}
	return New(h.reg, child), true
}

// Destroy deletes the entity and its children
func (h Handle) Destroy() {
	h.mustEntity("Destroy")
	h.World().Delete(h.id)
}

// Clone creates a copy of the entity and its children
func (h Handle) Clone() Handle {
	h.mustEntity("Clone")
	return New(h.reg, h.World().Clone(h.id))
}

func (h Handle) String() string {
	if h.reg == nil {
		return h.id.String()
	}
	return h.World().Describe(h.id)
}
