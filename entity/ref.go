package entity

import (
	"fmt"

	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/refl"
	"github.com/plus3/reflecs/registry"
)

// Ref addresses a component or pair element: a raw id, a reflected type
// resolved through the registry, or a label naming an entity path.
type Ref struct {
	id    ecs.Id
	typ   *refl.Type
	label string
}

// ID references a raw id
func ID(id ecs.Id) Ref {
	return Ref{id: id}
}

// TypeRef references a reflected type
func TypeRef(t *refl.Type) Ref {
	if t == nil {
		panic("entity: TypeRef of nil type")
	}
	return Ref{typ: t}
}

// Of references the reflected type of T
func Of[T any]() Ref {
	return TypeRef(refl.For[T]())
}

// Label references the entity at path, created on first use
func Label(path string) Ref {
	if path == "" {
		panic("entity: empty label")
	}
	return Ref{label: path}
}

// Type returns the reflected type of a type reference, or nil
func (r Ref) Type() *refl.Type {
	return r.typ
}

// IsZero reports whether the reference addresses nothing
func (r Ref) IsZero() bool {
	return r.id == 0 && r.typ == nil && r.label == ""
}

// Resolve returns the id a reference stands for. Type references register on
// demand when the registry allows it.
func (r Ref) Resolve(reg *registry.Registry) ecs.Id {
	switch {
	case r.typ != nil:
		return reg.Resolve(r.typ)
	case r.label != "":
		return reg.World().NamedEntity(r.label)
	case r.id != 0:
		return r.id
	}
	panic("entity: cannot resolve an empty reference")
}

func (r Ref) String() string {
	switch {
	case r.typ != nil:
		return r.typ.Name()
	case r.label != "":
		return r.label
	}
	return r.id.String()
}

// PairOf resolves two references into a pair id
func PairOf(reg *registry.Registry, first, second Ref) ecs.Id {
	return ecs.Pair(first.Resolve(reg), second.Resolve(reg))
}

func mustData(w *ecs.World, id ecs.Id, what fmt.Stringer) *ecs.ComponentInfo {
	info := w.TypeInfo(id)
	if info == nil {
		panic(fmt.Sprintf("entity: %s carries no data", what))
	}
	return info
}
