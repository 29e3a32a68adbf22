// Package registry turns reflected type descriptors into ECS component ids.
//
// A Registry is bound to exactly one world. Every descriptor registers once
// for the lifetime of the world: structs become components whose hooks forward
// to the descriptor's lifecycle operations (or zero-size tags when they carry
// no data), enumerations become components with one constant entity per
// enumerator, and classes become named tag entities.
package registry

import (
	"fmt"
	"slices"

	"github.com/kamstrup/intmap"
	"github.com/plus3/reflecs/config"
	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/refl"
	"go.uber.org/zap"
)

// RegisteredType is the registration record of one descriptor
type RegisteredType struct {
	Id        ecs.Id
	Type      *refl.Type
	Size      uintptr
	Alignment uintptr
	IsTag     bool
	Hooks     *ecs.Hooks

	// Component is false for types registered as plain named entities
	Component bool
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger used for registration diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAutoRegister sets whether Resolve registers unknown types on demand
func WithAutoRegister(enabled bool) Option {
	return func(r *Registry) {
		r.autoRegister = enabled
	}
}

// FromConfig applies the registry section of a configuration
func FromConfig(cfg config.Registry) Option {
	return WithAutoRegister(cfg.AutoRegister)
}

// Registry maps reflected types to ids of one world. It adds no locking;
// writes happen on the goroutine that owns the world.
type Registry struct {
	world   *ecs.World
	structs map[*refl.Type]*RegisteredType
	enums   map[*refl.Type]*RegisteredType
	classes map[*refl.Type]*RegisteredType
	byId    *intmap.Map[uint32, *RegisteredType]

	autoRegister bool
	logger       *zap.Logger
}

// New creates the registry of a world. A world accepts a single registry.
func New(w *ecs.World, opts ...Option) *Registry {
	if _, ok := FromWorld(w); ok {
		panic("registry: world already has a type registry")
	}

	r := &Registry{
		world:        w,
		structs:      make(map[*refl.Type]*RegisteredType),
		enums:        make(map[*refl.Type]*RegisteredType),
		classes:      make(map[*refl.Type]*RegisteredType),
		byId:         intmap.New[uint32, *RegisteredType](64),
		autoRegister: true,
		logger:       w.Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	w.SetContext(r)
	return r
}

// FromWorld returns the registry bound to a world
func FromWorld(w *ecs.World) (*Registry, bool) {
	r, ok := w.Context().(*Registry)
	return r, ok
}

// World returns the world the registry is bound to
func (r *Registry) World() *ecs.World {
	return r.world
}

// Logger returns the registry logger
func (r *Registry) Logger() *zap.Logger {
	return r.logger
}

// AutoRegister reports whether Resolve registers unknown types
func (r *Registry) AutoRegister() bool {
	return r.autoRegister
}

func (r *Registry) table(t *refl.Type) map[*refl.Type]*RegisteredType {
	switch t.Kind() {
	case refl.KindStruct:
		return r.structs
	case refl.KindEnum:
		return r.enums
	case refl.KindClass:
		return r.classes
	}
	return nil
}

// Register returns the id of a descriptor, registering it on first use.
// isComponent false registers a struct as a plain named entity instead of a
// component. Nil, abstract or unsupported descriptors panic.
func (r *Registry) Register(t *refl.Type, isComponent bool) ecs.Id {
	if t == nil {
		panic("registry: cannot register a nil type")
	}
	if t.Abstract() {
		panic(fmt.Sprintf("registry: cannot register abstract %s", t))
	}
	table := r.table(t)
	if table == nil {
		panic(fmt.Sprintf("registry: cannot register unsupported %s", t))
	}

	if existing, ok := table[t]; ok {
		r.logger.Debug("type already registered",
			zap.String("type", t.Name()),
			zap.Stringer("id", existing.Id))
		return existing.Id
	}

	var rt *RegisteredType
	r.world.DeferSuspend(func() {
		switch t.Kind() {
		case refl.KindStruct:
			rt = r.registerStruct(t, isComponent)
		case refl.KindEnum:
			rt = r.registerEnum(t)
		case refl.KindClass:
			rt = r.registerClass(t)
		}
	})

	table[t] = rt
	r.byId.Put(rt.Id.Index(), rt)
	r.logger.Debug("type registered",
		zap.String("type", t.Name()),
		zap.Stringer("kind", t.Kind()),
		zap.Stringer("id", rt.Id),
		zap.Bool("tag", rt.IsTag))
	return rt.Id
}

// IsTagType reports whether a struct descriptor needs no storage: its size is
// at most one byte and it has no members
func IsTagType(t *refl.Type) bool {
	return t.Size() <= 1 && len(t.Members()) == 0
}

func (r *Registry) registerStruct(t *refl.Type, isComponent bool) *RegisteredType {
	if !isComponent {
		return &RegisteredType{
			Id:    r.world.NamedEntity(t.Name()),
			Type:  t,
			IsTag: true,
		}
	}

	rt := &RegisteredType{Type: t, IsTag: IsTagType(t), Component: true}
	desc := ecs.ComponentDesc{Name: t.Name()}
	if !rt.IsTag {
		rt.Size = t.Size()
		rt.Alignment = t.Align()
		rt.Hooks = HooksFor(t)
		desc.Size = rt.Size
		desc.Alignment = rt.Alignment
		desc.Hooks = rt.Hooks
	}

	rt.Id = r.world.Component(desc)
	if !rt.IsTag {
		r.resolveMembers(t, rt.Id)
	}
	return rt
}

// HooksFor returns component hooks forwarding to the lifecycle operations of t
func HooksFor(t *refl.Type) *ecs.Hooks {
	return &ecs.Hooks{
		Alloc:   t.New,
		Ctor:    t.Construct,
		Dtor:    t.Destroy,
		Copy:    t.Copy,
		Move:    t.Move,
		Equals:  t.Equals,
		Context: t,
	}
}

func (r *Registry) registerClass(t *refl.Type) *RegisteredType {
	id := r.world.Component(ecs.ComponentDesc{Name: t.Name()})
	return &RegisteredType{Id: id, Type: t, IsTag: true, Component: true}
}

// Lookup returns the id of a registered descriptor
func (r *Registry) Lookup(t *refl.Type) (ecs.Id, bool) {
	if t == nil {
		return 0, false
	}
	table := r.table(t)
	if table == nil {
		return 0, false
	}
	rt, ok := table[t]
	if !ok {
		return 0, false
	}
	return rt.Id, true
}

// MustLookup returns the id of a registered descriptor and panics otherwise
func (r *Registry) MustLookup(t *refl.Type) ecs.Id {
	id, ok := r.Lookup(t)
	if !ok {
		panic(fmt.Sprintf("registry: %s is not registered", t))
	}
	return id
}

// Resolve returns the id of a descriptor, registering it as a component when
// auto registration is enabled. Unknown types panic otherwise.
func (r *Registry) Resolve(t *refl.Type) ecs.Id {
	if id, ok := r.Lookup(t); ok {
		return id
	}
	if !r.autoRegister {
		panic(fmt.Sprintf("registry: %s is not registered and auto registration is disabled", t))
	}
	return r.Register(t, true)
}

// Info returns the registration record of an id
func (r *Registry) Info(id ecs.Id) (*RegisteredType, bool) {
	if id == 0 || id.IsPair() {
		return nil, false
	}
	rt, ok := r.byId.Get(id.Index())
	if !ok || !rt.Id.SameEntity(id) {
		return nil, false
	}
	return rt, true
}

// TypeOf returns the descriptor registered for an id
func (r *Registry) TypeOf(id ecs.Id) (*refl.Type, bool) {
	rt, ok := r.Info(id)
	if !ok {
		return nil, false
	}
	return rt.Type, true
}

// Types returns every registration ordered by id
func (r *Registry) Types() []*RegisteredType {
	types := make([]*RegisteredType, 0, len(r.structs)+len(r.enums)+len(r.classes))
	for _, table := range []map[*refl.Type]*RegisteredType{r.structs, r.enums, r.classes} {
		for _, rt := range table {
			types = append(types, rt)
		}
	}
	slices.SortFunc(types, func(a, b *RegisteredType) int {
		return int(a.Id.Index()) - int(b.Id.Index())
	})
	return types
}
