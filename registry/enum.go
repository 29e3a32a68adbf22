package registry

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/refl"
	"go.uber.org/zap"
)

// enumWidth picks the narrowest unsigned primitive able to hold largest
func enumWidth(largest uint64) (ecs.Id, uintptr) {
	switch {
	case largest <= math.MaxUint8:
		return ecs.U8, 1
	case largest <= math.MaxUint16:
		return ecs.U16, 2
	case largest <= math.MaxUint32:
		return ecs.U32, 4
	}
	return ecs.U64, 8
}

func (r *Registry) registerEnum(t *refl.Type) *RegisteredType {
	var largest uint64
	for _, e := range t.Enumerators() {
		if e.Value < 0 {
			panic(fmt.Sprintf("registry: enumerator %s of %s has negative value %d", e.Name, t.Name(), e.Value))
		}
		largest = max(largest, uint64(e.Value))
	}
	underlying, width := enumWidth(largest)

	id := r.world.Component(ecs.ComponentDesc{
		Name:      t.Name(),
		Size:      width,
		Alignment: width,
	})
	r.world.SetUnderlying(id, underlying)
	r.world.SetExclusive(id)

	for _, e := range t.Enumerators() {
		constant := r.world.AddConstant(id, e.Name, uint64(e.Value))
		r.logger.Debug("enum constant registered",
			zap.String("enum", t.Name()),
			zap.String("constant", e.Name),
			zap.Int64("value", e.Value),
			zap.Stringer("id", constant))
	}

	return &RegisteredType{
		Id:        id,
		Type:      t,
		Size:      width,
		Alignment: width,
		Component: true,
	}
}

// EnumConstant returns the constant entity of an enumerator value, or zero
// when the enum has no enumerator with that value
func (r *Registry) EnumConstant(t *refl.Type, value int64) ecs.Id {
	info := r.enumInfo(t)
	if value < 0 {
		return 0
	}
	constant, ok := info.Constant(uint64(value))
	if !ok {
		return 0
	}
	return constant.Entity
}

// EnumValue returns the value represented by a constant entity
func (r *Registry) EnumValue(t *refl.Type, constant ecs.Id) (int64, bool) {
	info := r.enumInfo(t)
	c, ok := info.ConstantByEntity(constant)
	if !ok {
		return 0, false
	}
	return int64(c.Value), true
}

func (r *Registry) enumInfo(t *refl.Type) *ecs.ComponentInfo {
	if t.Kind() != refl.KindEnum {
		panic(fmt.Sprintf("registry: %s is not an enum", t))
	}
	id := r.Resolve(t)
	info, ok := r.world.ComponentInfo(id)
	if !ok {
		panic(fmt.Sprintf("registry: enum %s has no component info", t))
	}
	return info
}

// EncodeEnum stores value in a buffer of the registered width of an enum and
// returns a pointer suitable for ecs.World.Set
func (r *Registry) EncodeEnum(t *refl.Type, value int64) unsafe.Pointer {
	info := r.enumInfo(t)
	switch info.Size {
	case 1:
		v := uint8(value)
		return unsafe.Pointer(&v)
	case 2:
		v := uint16(value)
		return unsafe.Pointer(&v)
	case 4:
		v := uint32(value)
		return unsafe.Pointer(&v)
	}
	v := uint64(value)
	return unsafe.Pointer(&v)
}

// DecodeEnum reads an enum value stored with the registered width
func (r *Registry) DecodeEnum(t *refl.Type, ptr unsafe.Pointer) int64 {
	info := r.enumInfo(t)
	switch info.Size {
	case 1:
		return int64(*(*uint8)(ptr))
	case 2:
		return int64(*(*uint16)(ptr))
	case 4:
		return int64(*(*uint32)(ptr))
	}
	return int64(*(*uint64)(ptr))
}
