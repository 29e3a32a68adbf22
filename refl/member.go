package refl

import "reflect"

// MemberKind is the closed set of member categories a descriptor reports
type MemberKind uint8

const (
	MemberUnsupported MemberKind = iota
	MemberBool
	MemberInt8
	MemberInt16
	MemberInt32
	MemberInt64
	MemberUint8
	MemberUint16
	MemberUint32
	MemberUint64
	MemberFloat32
	MemberFloat64
	MemberString
	MemberName
	MemberObjectRef
	MemberStruct
)

var memberKindNames = [...]string{
	MemberUnsupported: "unsupported",
	MemberBool:        "bool",
	MemberInt8:        "int8",
	MemberInt16:       "int16",
	MemberInt32:       "int32",
	MemberInt64:       "int64",
	MemberUint8:       "uint8",
	MemberUint16:      "uint16",
	MemberUint32:      "uint32",
	MemberUint64:      "uint64",
	MemberFloat32:     "float32",
	MemberFloat64:     "float64",
	MemberString:      "string",
	MemberName:        "name",
	MemberObjectRef:   "object",
	MemberStruct:      "struct",
}

func (k MemberKind) String() string {
	if int(k) < len(memberKindNames) {
		return memberKindNames[k]
	}
	return "unsupported"
}

// Member is one field of a struct type
type Member struct {
	Name   string
	Kind   MemberKind
	Offset uintptr

	// Type is the descriptor of a MemberStruct member
	Type   *Type
	GoType reflect.Type
}

var nameType = reflect.TypeFor[Name]()

func membersOf(rt reflect.Type) []Member {
	members := make([]Member, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.Name == "_" {
			continue
		}
		m := Member{
			Name:   field.Name,
			Kind:   memberKind(field.Type),
			Offset: field.Offset,
			GoType: field.Type,
		}
		if m.Kind == MemberStruct {
			m.Type = TypeOf(field.Type)
		}
		members = append(members, m)
	}
	return members
}

func memberKind(rt reflect.Type) MemberKind {
	if rt == nameType {
		return MemberName
	}
	switch rt.Kind() {
	case reflect.Bool:
		return MemberBool
	case reflect.Int8:
		return MemberInt8
	case reflect.Int16:
		return MemberInt16
	case reflect.Int32:
		return MemberInt32
	case reflect.Int, reflect.Int64:
		return MemberInt64
	case reflect.Uint8:
		return MemberUint8
	case reflect.Uint16:
		return MemberUint16
	case reflect.Uint32:
		return MemberUint32
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		return MemberUint64
	case reflect.Float32:
		return MemberFloat32
	case reflect.Float64:
		return MemberFloat64
	case reflect.String:
		return MemberString
	case reflect.Interface:
		return MemberObjectRef
	case reflect.Pointer:
		if rt.Elem().Kind() == reflect.Struct {
			return MemberObjectRef
		}
	case reflect.Struct:
		return MemberStruct
	}
	return MemberUnsupported
}
