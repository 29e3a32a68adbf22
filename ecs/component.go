package ecs

import (
	"unsafe"
)

// Hooks are the lifecycle callbacks a data-carrying component type needs so the
// world can manage its storage. Every value lives in its own allocation: Alloc
// returns zeroed, correctly typed memory, Ctor then constructs it in place.
// Nil hooks fall back to byte-wise behaviour, which is only valid for types
// without pointers.
type Hooks struct {
	Alloc  func() unsafe.Pointer
	Ctor   func(ptr unsafe.Pointer)
	Dtor   func(ptr unsafe.Pointer)
	Copy   func(dst, src unsafe.Pointer)
	Move   func(dst, src unsafe.Pointer)
	Equals func(a, b unsafe.Pointer) bool

	// Context is opaque data owned by whoever installed the hooks
	Context any
}

// ComponentDesc describes a component to create with World.Component
type ComponentDesc struct {
	Name      string
	Size      uintptr
	Alignment uintptr
	Hooks     *Hooks

	// Entity promotes an existing entity to a component instead of creating one
	Entity Id
}

// Member describes one field of a component's data layout
type Member struct {
	Name   string
	Type   Id
	Offset uintptr
	Count  int
}

// EnumConstant is one named value of an enumeration component
type EnumConstant struct {
	Name   string
	Value  uint64
	Entity Id
}

// ComponentInfo is the type information the world keeps for a component id
type ComponentInfo struct {
	Id        Id
	Name      string
	Size      uintptr
	Alignment uintptr
	Hooks     *Hooks

	Members    []Member
	Underlying Id
	Constants  []EnumConstant
}

// IsTag reports whether the component carries no data
func (c *ComponentInfo) IsTag() bool {
	return c.Size == 0
}

// Constant returns the enum constant with the given value
func (c *ComponentInfo) Constant(value uint64) (EnumConstant, bool) {
	for _, constant := range c.Constants {
		if constant.Value == value {
			return constant, true
		}
	}
	return EnumConstant{}, false
}

// ConstantByEntity returns the enum constant represented by an entity
func (c *ComponentInfo) ConstantByEntity(e Id) (EnumConstant, bool) {
	for _, constant := range c.Constants {
		if constant.Entity.SameEntity(e) {
			return constant, true
		}
	}
	return EnumConstant{}, false
}

// alloc creates and constructs a new value
func (c *ComponentInfo) alloc() unsafe.Pointer {
	var ptr unsafe.Pointer
	if c.Hooks != nil && c.Hooks.Alloc != nil {
		ptr = c.Hooks.Alloc()
	} else {
		buf := make([]byte, c.Size)
		ptr = unsafe.Pointer(&buf[0])
	}

	if c.Hooks != nil && c.Hooks.Ctor != nil {
		c.Hooks.Ctor(ptr)
	}
	return ptr
}

func (c *ComponentInfo) destroy(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	if c.Hooks != nil && c.Hooks.Dtor != nil {
		c.Hooks.Dtor(ptr)
	}
}

func (c *ComponentInfo) copy(dst, src unsafe.Pointer) {
	if c.Hooks != nil && c.Hooks.Copy != nil {
		c.Hooks.Copy(dst, src)
		return
	}
	copy(unsafe.Slice((*byte)(dst), c.Size), unsafe.Slice((*byte)(src), c.Size))
}

func (c *ComponentInfo) move(dst, src unsafe.Pointer) {
	if c.Hooks != nil && c.Hooks.Move != nil {
		c.Hooks.Move(dst, src)
		return
	}
	c.copy(dst, src)
}

// equals reports whether a and b hold the same value. The second result is false
// when the component has no way of telling.
func (c *ComponentInfo) equals(a, b unsafe.Pointer) (equal bool, known bool) {
	if c.Hooks != nil {
		if c.Hooks.Equals == nil {
			return false, false
		}
		return c.Hooks.Equals(a, b), true
	}
	left := unsafe.Slice((*byte)(a), c.Size)
	right := unsafe.Slice((*byte)(b), c.Size)
	return string(left) == string(right), true
}

// column holds the values of one data-carrying id for every row of an archetype
type column struct {
	info *ComponentInfo
	data []unsafe.Pointer
	tick uint64
}

func newColumn(info *ComponentInfo) *column {
	return &column{info: info}
}

func (c *column) append(ptr unsafe.Pointer) {
	c.data = append(c.data, ptr)
}

// swapRemove removes a row by moving the last row into its place.
// The value at row is returned without being destroyed.
func (c *column) swapRemove(row int) unsafe.Pointer {
	ptr := c.data[row]
	last := len(c.data) - 1
	c.data[row] = c.data[last]
	c.data[last] = nil
	c.data = c.data[:last]
	return ptr
}

// HooksFor returns hooks that store values of T. It is how natively typed
// components (and the builtin primitive types) get GC-visible storage.
func HooksFor[T comparable]() *Hooks {
	return &Hooks{
		Alloc: func() unsafe.Pointer {
			return unsafe.Pointer(new(T))
		},
		Copy: func(dst, src unsafe.Pointer) {
			*(*T)(dst) = *(*T)(src)
		},
		Move: func(dst, src unsafe.Pointer) {
			var zero T
			*(*T)(dst) = *(*T)(src)
			*(*T)(src) = zero
		},
		Equals: func(a, b unsafe.Pointer) bool {
			return *(*T)(a) == *(*T)(b)
		},
	}
}

// ComponentFor describes a component storing values of T
func ComponentFor[T comparable](name string) ComponentDesc {
	var zero T
	return ComponentDesc{
		Name:      name,
		Size:      unsafe.Sizeof(zero),
		Alignment: unsafe.Alignof(zero),
		Hooks:     HooksFor[T](),
	}
}
