package registry

import (
	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/refl"
	"go.uber.org/zap"
)

var memberPrimitives = map[refl.MemberKind]ecs.Id{
	refl.MemberBool:    ecs.Bool,
	refl.MemberInt8:    ecs.I8,
	refl.MemberInt16:   ecs.I16,
	refl.MemberInt32:   ecs.I32,
	refl.MemberInt64:   ecs.I64,
	refl.MemberUint8:   ecs.U8,
	refl.MemberUint16:  ecs.U16,
	refl.MemberUint32:  ecs.U32,
	refl.MemberUint64:  ecs.U64,
	refl.MemberFloat32: ecs.F32,
	refl.MemberFloat64: ecs.F64,
	refl.MemberString:  ecs.String,
	refl.MemberName:    ecs.Name,

	// object references are stored as opaque addresses
	refl.MemberObjectRef: ecs.U64,
}

// resolveMembers describes the data layout of a struct component to the world.
// Nested structs must already be registered; members that cannot be described
// are skipped.
func (r *Registry) resolveMembers(t *refl.Type, component ecs.Id) {
	for _, m := range t.Members() {
		var memberType ecs.Id
		switch m.Kind {
		case refl.MemberStruct:
			id, ok := r.Lookup(m.Type)
			if !ok {
				r.logger.Error("member type not registered",
					zap.String("type", t.Name()),
					zap.String("member", m.Name),
					zap.String("member_type", m.Type.Name()))
				continue
			}
			memberType = id
		case refl.MemberUnsupported:
			r.logger.Info("member skipped",
				zap.String("type", t.Name()),
				zap.String("member", m.Name),
				zap.Stringer("go_type", m.GoType))
			continue
		default:
			memberType = memberPrimitives[m.Kind]
		}

		r.world.AddMember(component, ecs.Member{
			Name:   m.Name,
			Type:   memberType,
			Offset: m.Offset,
		})
	}
}
