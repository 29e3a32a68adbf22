package entity

import (
	"fmt"
	"unsafe"

	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/refl"
)

// Has reports whether the entity has the referenced component
func (h Handle) Has(ref Ref) bool {
	return h.World().Has(h.id, ref.Resolve(h.reg))
}

// Add adds the referenced component or tag. Values are default constructed.
func (h Handle) Add(ref Ref) Handle {
	h.mustEntity("Add")
	h.World().Add(h.id, ref.Resolve(h.reg))
	return h
}

// Remove removes the referenced component
func (h Handle) Remove(ref Ref) Handle {
	h.mustEntity("Remove")
	h.World().Remove(h.id, ref.Resolve(h.reg))
	return h
}

// Set copies v into the referenced component. Enum values are stored as
// enum pairs.
func (h Handle) Set(ref Ref, v refl.Value) Handle {
	h.mustEntity("Set")
	if ref.typ != nil && ref.typ.Kind() == refl.KindEnum {
		return h.setEnumValue(ref.typ, v)
	}

	id := ref.Resolve(h.reg)
	h.checkValue(id, ref, v)
	h.World().Set(h.id, id, v.Ptr())
	return h
}

// SetValue sets a value as the component of its own type
func (h Handle) SetValue(v refl.Value) Handle {
	if !v.IsValid() {
		panic("entity: SetValue of invalid value")
	}
	return h.Set(TypeRef(v.Type()), v)
}

// SetRaw copies size bytes at ptr into the referenced component. size must
// match the component size.
func (h Handle) SetRaw(ref Ref, ptr unsafe.Pointer, size uintptr) Handle {
	h.mustEntity("SetRaw")
	id := ref.Resolve(h.reg)
	info := mustData(h.World(), id, ref)
	if info.Size != size {
		panic(fmt.Sprintf("entity: %s has size %d, got %d bytes", ref, info.Size, size))
	}
	h.World().Set(h.id, id, ptr)
	return h
}

// Get returns a pointer to the referenced component, or nil when absent
func (h Handle) Get(ref Ref) unsafe.Pointer {
	return h.World().Get(h.id, ref.Resolve(h.reg))
}

// GetValue returns a copy of the referenced component as a value of its
// reflected type
func (h Handle) GetValue(ref Ref) (refl.Value, bool) {
	id := ref.Resolve(h.reg)
	t, ok := h.reg.TypeOf(id)
	if !ok || t.Kind() != refl.KindStruct {
		return refl.Value{}, false
	}
	ptr := h.World().Get(h.id, id)
	if ptr == nil {
		return refl.Value{}, false
	}
	v := refl.NewValue(t)
	t.Copy(v.Ptr(), ptr)
	return v, true
}

// Modified marks the referenced component as changed after a write through Get
func (h Handle) Modified(ref Ref) {
	h.World().Modified(h.id, ref.Resolve(h.reg))
}

func (h Handle) checkValue(id ecs.Id, ref Ref, v refl.Value) {
	if !v.IsValid() {
		panic(fmt.Sprintf("entity: invalid value for %s", ref))
	}
	if ref.typ != nil && ref.typ != v.Type() {
		panic(fmt.Sprintf("entity: value of %s cannot be set as %s", v.Type(), ref))
	}
	info := mustData(h.World(), id, ref)
	if v.Type().Size() != info.Size {
		panic(fmt.Sprintf("entity: value of %s does not fit %s", v.Type(), ref))
	}
}

// Set sets the component of type T
func Set[T any](h Handle, value T) Handle {
	return h.Set(Of[T](), refl.ValueOf(value))
}

// Get returns the component of type T, or nil when absent
func Get[T any](h Handle) *T {
	return (*T)(h.Get(Of[T]()))
}

// Has reports whether the entity has the component of type T
func Has[T any](h Handle) bool {
	return h.Has(Of[T]())
}

// Add adds the component or tag of type T
func Add[T any](h Handle) Handle {
	return h.Add(Of[T]())
}
