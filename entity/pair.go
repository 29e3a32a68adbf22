package entity

import (
	"fmt"
	"unsafe"

	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/refl"
)

// HasPair reports whether the entity has the pair (first, second).
// Either side may be a wildcard id.
func (h Handle) HasPair(first, second Ref) bool {
	return h.World().Has(h.id, PairOf(h.reg, first, second))
}

// AddPair adds the pair (first, second)
func (h Handle) AddPair(first, second Ref) Handle {
	h.mustEntity("AddPair")
	h.World().Add(h.id, PairOf(h.reg, first, second))
	return h
}

// RemovePair removes the pair (first, second). Wildcards remove every match.
func (h Handle) RemovePair(first, second Ref) Handle {
	h.mustEntity("RemovePair")
	h.World().Remove(h.id, PairOf(h.reg, first, second))
	return h
}

// SetPairFirst sets the value of a pair that stores the relationship's type
func (h Handle) SetPairFirst(first, second Ref, v refl.Value) Handle {
	h.mustEntity("SetPairFirst")
	f, s := first.Resolve(h.reg), second.Resolve(h.reg)
	h.checkValue(f, first, v)
	h.World().SetPairFirst(h.id, f, s, v.Ptr())
	return h
}

// SetPairSecond sets the value of a pair that stores the target's type
func (h Handle) SetPairSecond(first, second Ref, v refl.Value) Handle {
	h.mustEntity("SetPairSecond")
	f, s := first.Resolve(h.reg), second.Resolve(h.reg)
	h.checkValue(s, second, v)
	h.World().SetPairSecond(h.id, f, s, v.Ptr())
	return h
}

// GetPairFirst returns the value of a pair that stores the relationship's
// type, or nil
func (h Handle) GetPairFirst(first, second Ref) unsafe.Pointer {
	return h.getPair(first, second, first)
}

// GetPairSecond returns the value of a pair that stores the target's type,
// or nil
func (h Handle) GetPairSecond(first, second Ref) unsafe.Pointer {
	return h.getPair(first, second, second)
}

func (h Handle) getPair(first, second, side Ref) unsafe.Pointer {
	pair := PairOf(h.reg, first, second)
	w := h.World()
	stored := w.TypeInfo(pair)
	if stored == nil || stored.Id.Index() != side.Resolve(h.reg).Index() {
		return nil
	}
	return w.Get(h.id, pair)
}

// Target returns the index-th target of a relationship, or the zero handle
func (h Handle) Target(relationship Ref, index int) Handle {
	target := h.World().Target(h.id, relationship.Resolve(h.reg), index)
	if target == 0 {
		return Handle{}
	}
	return New(h.reg, target)
}

// AddEnum adds the enum pair (enum, constant) for value, replacing any other
// constant of the same enum. The pair stores the value.
func (h Handle) AddEnum(enum *refl.Type, value int64) Handle {
	h.mustEntity("AddEnum")
	id := h.reg.Resolve(enum)
	constant := h.reg.EnumConstant(enum, value)
	if constant == 0 {
		panic(fmt.Sprintf("entity: %s has no enumerator with value %d", enum, value))
	}
	h.World().Set(h.id, ecs.Pair(id, constant), h.reg.EncodeEnum(enum, value))
	return h
}

// HasEnum reports whether the entity holds the constant for value
func (h Handle) HasEnum(enum *refl.Type, value int64) bool {
	constant := h.reg.EnumConstant(enum, value)
	if constant == 0 {
		return false
	}
	return h.World().Has(h.id, ecs.Pair(h.reg.Resolve(enum), constant))
}

// GetEnum returns the value of the enum constant the entity holds
func (h Handle) GetEnum(enum *refl.Type) (int64, bool) {
	target := h.World().Target(h.id, h.reg.Resolve(enum), 0)
	if target == 0 {
		return 0, false
	}
	return h.reg.EnumValue(enum, target)
}

// RemoveEnum removes whichever constant of the enum the entity holds
func (h Handle) RemoveEnum(enum *refl.Type) Handle {
	h.mustEntity("RemoveEnum")
	h.World().Remove(h.id, ecs.Pair(h.reg.Resolve(enum), ecs.Wildcard))
	return h
}

func (h Handle) setEnumValue(enum *refl.Type, v refl.Value) Handle {
	if v.Type() != enum {
		panic(fmt.Sprintf("entity: value of %s cannot be set as %s", v.Type(), enum))
	}
	value, _ := v.Int()
	return h.AddEnum(enum, value)
}

// GetPair returns the value of the pair (first, second) as T, or nil
func GetPair[T any](h Handle, first, second Ref) *T {
	return (*T)(h.World().Get(h.id, PairOf(h.reg, first, second)))
}

// SetEnum stores value as an enum pair
func SetEnum[T refl.Integer](h Handle, value T) Handle {
	return h.AddEnum(refl.For[T](), int64(value))
}

// GetEnum returns the enum value of type T the entity holds
func GetEnum[T refl.Integer](h Handle) (T, bool) {
	value, ok := h.GetEnum(refl.For[T]())
	return T(value), ok
}
