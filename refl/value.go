package refl

import (
	"fmt"
	"reflect"
	"unsafe"
)

// Value is an instance of a reflected type. It is either a typed Go value or,
// for pointer-free types, an owned byte buffer holding the raw layout. Either
// way construction, copies and destruction go through the type's operations.
type Value struct {
	typ *Type
	ptr unsafe.Pointer
	buf []byte
}

// ValueOf copies v into a new Value of its descriptor
func ValueOf[T any](v T) Value {
	t := For[T]()
	ptr := unsafe.Pointer(new(T))
	*(*T)(ptr) = v
	return Value{typ: t, ptr: ptr}
}

// NewValue creates a constructed instance of t
func NewValue(t *Type) Value {
	ptr := t.New()
	t.Construct(ptr)
	return Value{typ: t, ptr: ptr}
}

// ValueFromBytes copies a raw layout into an owned buffer. Only types without
// pointers can be represented this way.
func ValueFromBytes(t *Type, data []byte) Value {
	t.mustInstantiable("ValueFromBytes")
	if t.HasPointers() {
		panic(fmt.Sprintf("refl: %s holds pointers and cannot be built from bytes", t))
	}
	if uintptr(len(data)) != t.Size() {
		panic(fmt.Sprintf("refl: %s needs %d bytes, got %d", t, t.Size(), len(data)))
	}
	if len(data) == 0 {
		return NewValue(t)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return Value{typ: t, ptr: unsafe.Pointer(&buf[0]), buf: buf}
}

// Type returns the descriptor of the value
func (v Value) Type() *Type {
	return v.typ
}

// IsValid reports whether the value holds an instance
func (v Value) IsValid() bool {
	return v.typ != nil && v.ptr != nil
}

// IsBuffer reports whether the value is backed by an owned byte buffer
func (v Value) IsBuffer() bool {
	return v.buf != nil
}

// Ptr returns the address of the instance
func (v Value) Ptr() unsafe.Pointer {
	return v.ptr
}

// Interface returns the instance as a Go value
func (v Value) Interface() any {
	if !v.IsValid() {
		return nil
	}
	return v.typ.instance(v.ptr).Interface()
}

// Clone returns an independent copy of the value
func (v Value) Clone() Value {
	if !v.IsValid() {
		return v
	}
	if v.buf != nil {
		return ValueFromBytes(v.typ, v.buf)
	}
	ptr := v.typ.New()
	v.typ.Copy(ptr, v.ptr)
	return Value{typ: v.typ, ptr: ptr}
}

// Destroy destroys the instance. The value must not be used afterwards.
func (v *Value) Destroy() {
	if !v.IsValid() {
		return
	}
	v.typ.Destroy(v.ptr)
	v.ptr = nil
	v.buf = nil
}

// Equal compares two values of the same type deeply
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	if !v.IsValid() || !other.IsValid() {
		return v.IsValid() == other.IsValid()
	}
	return v.typ.Equals(v.ptr, other.ptr)
}

// As returns a typed pointer to the instance. Panics when T is not the type
// of the value.
func As[T any](v Value) *T {
	if !v.IsValid() {
		return nil
	}
	if rt := reflect.TypeFor[T](); rt != v.typ.goType {
		panic(fmt.Sprintf("refl: value of %s read as %v", v.typ, rt))
	}
	return (*T)(v.ptr)
}

// Int returns the integer held by a value of an enum type
func (v Value) Int() (int64, bool) {
	if !v.IsValid() || v.typ.kind != KindEnum {
		return 0, false
	}
	rv := v.typ.instance(v.ptr)
	if rv.CanInt() {
		return rv.Int(), true
	}
	return int64(rv.Uint()), true
}
