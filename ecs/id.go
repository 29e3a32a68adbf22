package ecs

import "fmt"

// Id identifies an entity, a component or a relationship pair.
//
// Plain ids keep the entity index in the lower 32 bits and a generation counter
// in bits 32-47. Pairs set the top bit, store the index of the relationship in
// bits 32-62 and the index of the target in the lower 32 bits. Pairs do not carry
// generations, so two pairs compare equal regardless of the liveness of their
// elements.
type Id uint64

const (
	pairFlag       Id = 1 << 63
	indexMask      Id = 0xFFFFFFFF
	generationMask Id = 0xFFFF << 32
	pairFirstMask  Id = 0x7FFFFFFF << 32
)

// Builtin ids. Every world creates these entities with the same indices.
const (
	Wildcard Id = iota + 1
	Any
	ChildOf
	IsA
	Prefab
	Constant

	Bool
	U8
	U16
	U32
	U64
	I8
	I16
	I32
	I64
	F32
	F64
	String
	Name
	Entity

	lastBuiltin
)

// FirstUserIndex is the first entity index handed out by NewWorld callers.
const FirstUserIndex = 64

// NewId creates a plain Id from an entity index and a generation
func NewId(index uint32, generation uint16) Id {
	return Id(uint64(generation)<<32 | uint64(index))
}

// Pair composes a relationship pair. Generations of both elements are dropped.
func Pair(first, second Id) Id {
	return pairFlag | (Id(first.Index())<<32)&pairFirstMask | Id(second.Index())
}

// Index extracts the entity index. For pairs it returns the index of the target.
func (id Id) Index() uint32 {
	return uint32(id & indexMask)
}

// Generation extracts the generation counter of a plain id
func (id Id) Generation() uint16 {
	if id.IsPair() {
		return 0
	}
	return uint16((id & generationMask) >> 32)
}

// IsPair reports whether the id is a relationship pair
func (id Id) IsPair() bool {
	return id&pairFlag != 0
}

// First returns the relationship element of a pair, without generation.
// Panics when called on a plain id.
func (id Id) First() Id {
	if !id.IsPair() {
		panic(fmt.Sprintf("ecs: First called on non-pair id %s", id))
	}
	return Id((id & pairFirstMask) >> 32)
}

// Second returns the target element of a pair, without generation.
// Panics when called on a plain id.
func (id Id) Second() Id {
	if !id.IsPair() {
		panic(fmt.Sprintf("ecs: Second called on non-pair id %s", id))
	}
	return id & indexMask
}

// SameEntity compares two ids while ignoring generations
func (id Id) SameEntity(other Id) bool {
	if id.IsPair() || other.IsPair() {
		return id == other
	}
	return id.Index() == other.Index()
}

// IsWildcard reports whether the id is, or contains, Wildcard or Any
func (id Id) IsWildcard() bool {
	if id.IsPair() {
		return isWildcardIndex(id.First().Index()) || isWildcardIndex(id.Second().Index())
	}
	return isWildcardIndex(id.Index())
}

func isWildcardIndex(index uint32) bool {
	return index == Wildcard.Index() || index == Any.Index()
}

func (id Id) String() string {
	if id.IsPair() {
		return fmt.Sprintf("(%d,%d)", id.First().Index(), id.Second().Index())
	}
	if gen := id.Generation(); gen != 0 {
		return fmt.Sprintf("#%d:%d", id.Index(), gen)
	}
	return fmt.Sprintf("#%d", id.Index())
}
