package query

import (
	"fmt"
	"strings"

	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/refl"
	"github.com/plus3/reflecs/registry"
)

// InputKind tags the variant of an Input
type InputKind uint8

const (
	InputNone InputKind = iota
	InputID
	InputStruct
	InputEnum
	InputName
	InputPair
	InputEnumConstant
	InputCustom
	InputString
)

var inputKindNames = [...]string{
	InputNone:         "none",
	InputID:           "id",
	InputStruct:       "struct",
	InputEnum:         "enum",
	InputName:         "name",
	InputPair:         "pair",
	InputEnumConstant: "enum_constant",
	InputCustom:       "custom",
	InputString:       "string",
}

func (k InputKind) String() string {
	if int(k) < len(inputKindNames) {
		return inputKindNames[k]
	}
	return fmt.Sprintf("input(%d)", uint8(k))
}

// CustomFunc adds terms to the underlying builder directly, for terms the
// Input variants cannot express
type CustomFunc func(b *ecs.QueryBuilder, reg *registry.Registry)

// Input is what a term matches. Exactly the fields of its Kind are set.
type Input struct {
	Kind InputKind

	ID   ecs.Id
	Type *refl.Type

	// Name is an entity path for InputName, an operand for InputString and
	// the callback name for InputCustom
	Name  string
	Value int64

	First, Second *Input
	Custom        CustomFunc
}

// ByID matches a raw id, which may be a pair
func ByID(id ecs.Id) Input {
	return Input{Kind: InputID, ID: id}
}

// ByStruct matches the component of a reflected struct or class
func ByStruct(t *refl.Type) Input {
	return Input{Kind: InputStruct, Type: t}
}

// ByEnum matches the component of a reflected enumeration
func ByEnum(t *refl.Type) Input {
	return Input{Kind: InputEnum, Type: t}
}

// ByName matches the entity at path, created on first use
func ByName(path string) Input {
	return Input{Kind: InputName, Name: path}
}

// ByPair matches the pair of two inputs
func ByPair(first, second Input) Input {
	return Input{Kind: InputPair, First: &first, Second: &second}
}

// ByEnumConstant matches the enum pair holding value. Inside a pair it stands
// for the constant entity itself.
func ByEnumConstant(t *refl.Type, value int64) Input {
	return Input{Kind: InputEnumConstant, Type: t, Value: value}
}

// ByCustom delegates the term to fn. name identifies fn when serialized.
func ByCustom(name string, fn CustomFunc) Input {
	return Input{Kind: InputCustom, Name: name, Custom: fn}
}

// ByString is an operand resolved when the query is built: a variable when it
// starts with "$", an entity path otherwise
func ByString(s string) Input {
	return Input{Kind: InputString, Name: s}
}

// Wildcard matches any id, binding every match
func Wildcard() Input {
	return ByID(ecs.Wildcard)
}

// Any matches any id once
func Any() Input {
	return ByID(ecs.Any)
}

// Var is the variable operand name
func Var(name string) Input {
	return ByString(ecs.VarPrefix + strings.TrimPrefix(name, ecs.VarPrefix))
}

// IsZero reports whether the input is unset
func (in Input) IsZero() bool {
	return in.Kind == InputNone
}

// IsVar reports whether the input is a variable operand
func (in Input) IsVar() bool {
	return in.Kind == InputString && strings.HasPrefix(in.Name, ecs.VarPrefix)
}

func (in Input) String() string {
	switch in.Kind {
	case InputID:
		return in.ID.String()
	case InputStruct, InputEnum:
		return typeName(in.Type)
	case InputName, InputString:
		return in.Name
	case InputPair:
		if in.First == nil || in.Second == nil {
			return "(<none>)"
		}
		return fmt.Sprintf("(%s, %s)", *in.First, *in.Second)
	case InputEnumConstant:
		return fmt.Sprintf("%s(%d)", typeName(in.Type), in.Value)
	case InputCustom:
		return "custom " + in.Name
	}
	return "<none>"
}

func typeName(t *refl.Type) string {
	if t == nil {
		return "<nil type>"
	}
	return t.Name()
}

// operand resolves an input used as one side of a pair, or as a single id.
// Unresolved names stay late bound when the spec allows them.
func (in Input) operand(reg *registry.Registry, flags Flags) ecs.Operand {
	switch in.Kind {
	case InputID:
		if in.ID == 0 {
			panic("query: zero id input")
		}
		return ecs.OperandId(in.ID)
	case InputString:
		if in.Name == "" {
			panic("query: empty string input")
		}
		if in.IsVar() {
			return ecs.OperandVar(in.Name)
		}
		return ecs.OperandName(in.Name)
	case InputEnumConstant:
		return ecs.OperandId(resolveConstant(reg, in))
	case InputName:
		if flags&AllowUnresolvedByName != 0 {
			return in.lookup(reg)
		}
		return ecs.OperandId(in.resolve(reg))
	case InputStruct, InputEnum:
		return ecs.OperandId(in.resolve(reg))
	case InputCustom:
		panic(fmt.Sprintf("query: custom input %q cannot be nested", in.Name))
	case InputPair:
		panic(fmt.Sprintf("query: pair input %s cannot be nested", in))
	}
	panic("query: empty input")
}

// resolve returns the single id of a type or name input
func (in Input) resolve(reg *registry.Registry) ecs.Id {
	switch in.Kind {
	case InputID:
		return in.ID
	case InputStruct:
		if in.Type.Kind() != refl.KindStruct && in.Type.Kind() != refl.KindClass {
			panic(fmt.Sprintf("query: ByStruct given %s", in.Type))
		}
		return reg.Resolve(in.Type)
	case InputEnum:
		if in.Type.Kind() != refl.KindEnum {
			panic(fmt.Sprintf("query: ByEnum given %s", in.Type))
		}
		return reg.Resolve(in.Type)
	case InputName:
		if in.Name == "" {
			panic("query: empty name input")
		}
		return reg.World().NamedEntity(in.Name)
	}
	panic(fmt.Sprintf("query: input %s does not name a single id", in))
}

// lookup resolves a name input without creating its entity
func (in Input) lookup(reg *registry.Registry) ecs.Operand {
	if in.Name == "" {
		panic("query: empty name input")
	}
	if id, ok := reg.World().Lookup(in.Name); ok {
		return ecs.OperandId(id)
	}
	return ecs.OperandName(in.Name)
}

func resolveConstant(reg *registry.Registry, in Input) ecs.Id {
	if in.Type.Kind() != refl.KindEnum {
		panic(fmt.Sprintf("query: enum constant of %s", in.Type))
	}
	constant := reg.EnumConstant(in.Type, in.Value)
	if constant == 0 {
		panic(fmt.Sprintf("query: %s has no enumerator with value %d", in.Type, in.Value))
	}
	return constant
}
