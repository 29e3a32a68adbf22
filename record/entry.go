package record

import (
	"fmt"

	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/refl"
)

// EntryKind tags the variant of a component entry
type EntryKind uint8

const (
	EntryStruct EntryKind = iota
	EntryID
	EntryLabel
	EntryEnum
	EntryPair
)

var entryKindNames = [...]string{
	EntryStruct: "struct",
	EntryID:     "id",
	EntryLabel:  "label",
	EntryEnum:   "enum",
	EntryPair:   "pair",
}

func (k EntryKind) String() string {
	if int(k) < len(entryKindNames) {
		return entryKindNames[k]
	}
	return fmt.Sprintf("entry(%d)", uint8(k))
}

// Component is one entry of a record. Exactly the fields of its Kind are set.
type Component struct {
	Kind EntryKind

	// Type is the struct or class of an EntryStruct, or the enumeration of an
	// EntryEnum
	Type *refl.Type
	// Value is the inline data of an EntryStruct. Without it the component is
	// added default constructed.
	Value refl.Value

	ID        ecs.Id
	Label     string
	EnumValue int64
	Pair      *Pair
}

// Struct is an entry setting v as the component of its type
func Struct(v refl.Value) Component {
	if !v.IsValid() {
		panic("record: Struct entry of invalid value")
	}
	return Component{Kind: EntryStruct, Type: v.Type(), Value: v}
}

// StructType is an entry adding the component of t without data
func StructType(t *refl.Type) Component {
	if t == nil {
		panic("record: StructType entry of nil type")
	}
	return Component{Kind: EntryStruct, Type: t}
}

// ID is an entry adding a raw id, which may be a pair
func ID(id ecs.Id) Component {
	return Component{Kind: EntryID, ID: id}
}

// Label is an entry adding the entity at path as a tag
func Label(path string) Component {
	return Component{Kind: EntryLabel, Label: path}
}

// Enum is an entry storing value as an enum pair
func Enum(t *refl.Type, value int64) Component {
	if t == nil {
		panic("record: Enum entry of nil type")
	}
	return Component{Kind: EntryEnum, Type: t, EnumValue: value}
}

// PairEntry is an entry adding a pair
func PairEntry(p Pair) Component {
	return Component{Kind: EntryPair, Pair: &p}
}

func (c Component) String() string {
	switch c.Kind {
	case EntryStruct, EntryEnum:
		if c.Type == nil {
			return c.Kind.String() + " <nil type>"
		}
		if c.Kind == EntryEnum {
			return fmt.Sprintf("%s(%d)", c.Type.Name(), c.EnumValue)
		}
		return c.Type.Name()
	case EntryID:
		return c.ID.String()
	case EntryLabel:
		return c.Label
	case EntryPair:
		if c.Pair == nil {
			return "(<none>)"
		}
		return c.Pair.String()
	}
	return c.Kind.String()
}

// SlotKind tags the variant of one side of a pair entry
type SlotKind uint8

const (
	SlotKindStruct SlotKind = iota
	SlotKindID
	SlotKindLabel
)

var slotKindNames = [...]string{
	SlotKindStruct: "struct",
	SlotKindID:     "id",
	SlotKindLabel:  "label",
}

func (k SlotKind) String() string {
	if int(k) < len(slotKindNames) {
		return slotKindNames[k]
	}
	return fmt.Sprintf("slot(%d)", uint8(k))
}

// PairSlot is one side of a pair entry. Only struct slots carry data.
type PairSlot struct {
	Kind  SlotKind
	Type  *refl.Type
	Value refl.Value
	ID    ecs.Id
	Label string
}

// SlotValue is a side holding the type of v, with v as the pair's value when
// the side carries the data
func SlotValue(v refl.Value) PairSlot {
	if !v.IsValid() {
		panic("record: pair slot of invalid value")
	}
	return PairSlot{Kind: SlotKindStruct, Type: v.Type(), Value: v}
}

// SlotType is a side holding a reflected type
func SlotType(t *refl.Type) PairSlot {
	if t == nil {
		panic("record: pair slot of nil type")
	}
	return PairSlot{Kind: SlotKindStruct, Type: t}
}

// SlotID is a side holding a raw id
func SlotID(id ecs.Id) PairSlot {
	return PairSlot{Kind: SlotKindID, ID: id}
}

// SlotLabel is a side holding the entity at path
func SlotLabel(path string) PairSlot {
	return PairSlot{Kind: SlotKindLabel, Label: path}
}

func (s PairSlot) String() string {
	switch s.Kind {
	case SlotKindStruct:
		if s.Type == nil {
			return "<nil type>"
		}
		return s.Type.Name()
	case SlotKindID:
		return s.ID.String()
	}
	return s.Label
}

// ValueSide names the side of a pair whose type the pair stores
type ValueSide uint8

const (
	// SideNone leaves the choice to the slots: the only data carrying side
	// stores the value, and two data carrying sides are ambiguous
	SideNone ValueSide = iota
	SideFirst
	SideSecond
)

func (s ValueSide) String() string {
	switch s {
	case SideFirst:
		return "first"
	case SideSecond:
		return "second"
	}
	return "none"
}

// Pair is a pair entry
type Pair struct {
	First, Second PairSlot
	Side          ValueSide
}

// NewPair creates a pair entry storing its value on side
func NewPair(first, second PairSlot, side ValueSide) Pair {
	return Pair{First: first, Second: second, Side: side}
}

func (p Pair) String() string {
	return fmt.Sprintf("(%s, %s)", p.First, p.Second)
}
