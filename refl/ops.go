package refl

import (
	"fmt"
	"reflect"
	"unsafe"
)

// Initializer is implemented by types that need more than their zero value
// after construction
type Initializer interface {
	Init()
}

// Destroyer is implemented by types that release resources on destruction
type Destroyer interface {
	Destroy()
}

func (t *Type) instance(ptr unsafe.Pointer) reflect.Value {
	return reflect.NewAt(t.goType, ptr).Elem()
}

func (t *Type) mustInstantiable(op string) {
	if t.kind != KindStruct && t.kind != KindEnum {
		panic(fmt.Sprintf("refl: %s on %s which has no instances", op, t))
	}
}

// New allocates a zeroed instance with memory the garbage collector can scan
func (t *Type) New() unsafe.Pointer {
	t.mustInstantiable("New")
	return reflect.New(t.goType).UnsafePointer()
}

// Construct initializes the instance at ptr in place
func (t *Type) Construct(ptr unsafe.Pointer) {
	t.mustInstantiable("Construct")
	v := reflect.NewAt(t.goType, ptr)
	v.Elem().SetZero()
	if init, ok := v.Interface().(Initializer); ok {
		init.Init()
	}
}

// Destroy releases the instance at ptr and leaves it zeroed
func (t *Type) Destroy(ptr unsafe.Pointer) {
	t.mustInstantiable("Destroy")
	v := reflect.NewAt(t.goType, ptr)
	if d, ok := v.Interface().(Destroyer); ok {
		d.Destroy()
	}
	v.Elem().SetZero()
}

// Copy assigns the instance at src to the one at dst
func (t *Type) Copy(dst, src unsafe.Pointer) {
	t.mustInstantiable("Copy")
	t.instance(dst).Set(t.instance(src))
}

// Move assigns src to dst and leaves src zeroed
func (t *Type) Move(dst, src unsafe.Pointer) {
	t.mustInstantiable("Move")
	from := t.instance(src)
	t.instance(dst).Set(from)
	from.SetZero()
}

// Equals compares two instances deeply
func (t *Type) Equals(a, b unsafe.Pointer) bool {
	t.mustInstantiable("Equals")
	return reflect.DeepEqual(t.instance(a).Interface(), t.instance(b).Interface())
}

// HasPointers reports whether instances hold pointers the garbage collector
// must see, which rules out storing them in plain byte buffers
func (t *Type) HasPointers() bool {
	return hasPointers(t.goType)
}

func hasPointers(rt reflect.Type) bool {
	switch rt.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return rt.Len() > 0 && hasPointers(rt.Elem())
	case reflect.Struct:
		for i := 0; i < rt.NumField(); i++ {
			if hasPointers(rt.Field(i).Type) {
				return true
			}
		}
		return false
	}
	return true
}
