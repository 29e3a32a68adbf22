// Package refl describes Go types at runtime: their data layout, members and
// enumerators, and how to construct, destroy, copy, move and compare instances
// through untyped pointers.
package refl

import (
	"fmt"
	"reflect"
	"sync"
)

// Kind is the category of a type descriptor
type Kind uint8

const (
	KindInvalid Kind = iota
	KindStruct
	KindEnum
	KindClass
)

func (k Kind) String() string {
	switch k {
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindClass:
		return "class"
	}
	return "invalid"
}

// Name is a string used as an identifier rather than as text. Members of this
// type are reported as MemberName.
type Name string

// Enumerator is one named value of an enumeration
type Enumerator struct {
	Name  string
	Value int64
}

// Enum creates an enumerator from a typed value
func Enum[T Integer](name string, value T) Enumerator {
	return Enumerator{Name: name, Value: int64(value)}
}

// Integer is the constraint satisfied by enumeration types
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint
}

// Type describes a reflected type. Descriptors are created once per Go type and
// compared by pointer.
type Type struct {
	name        string
	kind        Kind
	goType      reflect.Type
	abstract    bool
	members     []Member
	enumerators []Enumerator
}

// Name returns the qualified name of the type
func (t *Type) Name() string {
	return t.name
}

// Kind returns the category of the type
func (t *Type) Kind() Kind {
	if t == nil {
		return KindInvalid
	}
	return t.kind
}

// GoType returns the Go type described
func (t *Type) GoType() reflect.Type {
	return t.goType
}

// Size returns the size of an instance in bytes
func (t *Type) Size() uintptr {
	if t.goType == nil {
		return 0
	}
	return t.goType.Size()
}

// Align returns the alignment of an instance in bytes
func (t *Type) Align() uintptr {
	if t.goType == nil {
		return 1
	}
	return uintptr(t.goType.Align())
}

// Abstract reports whether the type cannot be instantiated
func (t *Type) Abstract() bool {
	return t.abstract
}

// Members returns the members of a struct type in declaration order
func (t *Type) Members() []Member {
	return t.members
}

// Enumerators returns the enumerators of an enum type in declaration order
func (t *Type) Enumerators() []Enumerator {
	return t.enumerators
}

// Enumerator finds an enumerator by value
func (t *Type) Enumerator(value int64) (Enumerator, bool) {
	for _, e := range t.enumerators {
		if e.Value == value {
			return e, true
		}
	}
	return Enumerator{}, false
}

func (t *Type) String() string {
	if t == nil {
		return "<nil type>"
	}
	return fmt.Sprintf("%s %s", t.kind, t.name)
}

var cache = struct {
	sync.Mutex
	types map[reflect.Type]*Type
}{types: make(map[reflect.Type]*Type)}

func cached(rt reflect.Type, create func() *Type) *Type {
	cache.Lock()
	if t, ok := cache.types[rt]; ok {
		cache.Unlock()
		return t
	}
	cache.Unlock()

	// create may recurse into cached for nested types, so the lock is not held
	t := create()

	cache.Lock()
	defer cache.Unlock()
	if existing, ok := cache.types[rt]; ok {
		return existing
	}
	cache.types[rt] = t
	return t
}

// Lookup returns the descriptor already created for a Go type
func Lookup(rt reflect.Type) (*Type, bool) {
	cache.Lock()
	defer cache.Unlock()
	t, ok := cache.types[rt]
	return t, ok
}

// StructOf returns the descriptor of struct type T
func StructOf[T any]() *Type {
	return TypeOf(reflect.TypeFor[T]())
}

// TypeOf returns the descriptor of a struct type. Panics for other kinds; use
// EnumOf and ClassOf for those.
func TypeOf(rt reflect.Type) *Type {
	if rt == nil || rt.Kind() != reflect.Struct {
		panic(fmt.Sprintf("refl: TypeOf requires a struct type, got %v", rt))
	}
	return cached(rt, func() *Type {
		t := &Type{
			name:   rt.String(),
			kind:   KindStruct,
			goType: rt,
		}
		t.members = membersOf(rt)
		return t
	})
}

// EnumOf returns the descriptor of an enumeration type. The enumerators are
// recorded on first use; later calls return the existing descriptor.
func EnumOf[T Integer](enumerators ...Enumerator) *Type {
	rt := reflect.TypeFor[T]()
	return cached(rt, func() *Type {
		return &Type{
			name:        rt.String(),
			kind:        KindEnum,
			goType:      rt,
			enumerators: append([]Enumerator(nil), enumerators...),
		}
	})
}

// ClassOf returns the descriptor of a reference type. Pointers to structs are
// concrete classes; interfaces are abstract.
func ClassOf[T any]() *Type {
	rt := reflect.TypeFor[T]()
	switch {
	case rt.Kind() == reflect.Interface:
		return cached(rt, func() *Type {
			return &Type{name: rt.String(), kind: KindClass, goType: rt, abstract: true}
		})
	case rt.Kind() == reflect.Pointer && rt.Elem().Kind() == reflect.Struct:
		return cached(rt, func() *Type {
			return &Type{name: rt.Elem().String(), kind: KindClass, goType: rt}
		})
	}
	panic(fmt.Sprintf("refl: ClassOf requires an interface or pointer to struct, got %v", rt))
}

// For returns the descriptor of T when it is a struct or an already described
// enumeration or class
func For[T any]() *Type {
	rt := reflect.TypeFor[T]()
	if t, ok := Lookup(rt); ok {
		return t
	}
	if rt.Kind() == reflect.Struct {
		return TypeOf(rt)
	}
	panic(fmt.Sprintf("refl: no descriptor for %v", rt))
}
