package record

import (
	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/refl"
)

// Builder accumulates a record. Sub-entity builders return to their parent
// with End.
type Builder struct {
	record *Record
	parent *Builder
}

// NewBuilder starts a new record
func NewBuilder() *Builder {
	return New().Builder()
}

// Builder returns a builder appending to r
func (r *Record) Builder() *Builder {
	return &Builder{record: r}
}

// Build returns the record being built
func (b *Builder) Build() *Record {
	return b.record
}

// Component adds v as the component of its type
func (b *Builder) Component(v refl.Value) *Builder {
	b.record.AddComponent(Struct(v))
	return b
}

// ComponentType adds the component of t, default constructed
func (b *Builder) ComponentType(t *refl.Type) *Builder {
	b.record.AddComponent(StructType(t))
	return b
}

// ComponentID adds a raw id
func (b *Builder) ComponentID(id ecs.Id) *Builder {
	b.record.AddComponent(ID(id))
	return b
}

// Label adds the entity at path as a tag
func (b *Builder) Label(path string) *Builder {
	b.record.AddComponent(Label(path))
	return b
}

// Enum stores value of the enumeration t
func (b *Builder) Enum(t *refl.Type, value int64) *Builder {
	b.record.AddComponent(Enum(t, value))
	return b
}

// Pair adds the pair (first, second), storing its value on side
func (b *Builder) Pair(first, second PairSlot, side ValueSide) *Builder {
	b.record.AddComponent(PairEntry(NewPair(first, second, side)))
	return b
}

// Fragment adds a fragment
func (b *Builder) Fragment(f Fragment) *Builder {
	b.record.AddFragment(f)
	return b
}

// SubEntity adds a child record and returns its builder. name may be empty.
func (b *Builder) SubEntity(name string) *Builder {
	child := New()
	b.record.AddSubEntity(SubEntity{Name: name, DontFragment: true, Record: child})
	return &Builder{record: child, parent: b}
}

// SubEntityRecord adds an existing record as a child
func (b *Builder) SubEntityRecord(name string, r *Record) *Builder {
	b.record.AddSubEntity(SubEntity{Name: name, DontFragment: true, Record: r})
	return b
}

// End returns the builder of the parent record
func (b *Builder) End() *Builder {
	if b.parent == nil {
		panic("record: End called on the root builder")
	}
	return b.parent
}

// Value adds value as the component of type T
func Value[T any](b *Builder, value T) *Builder {
	return b.Component(refl.ValueOf(value))
}

// Tag adds the component of type T without data
func Tag[T any](b *Builder) *Builder {
	return b.ComponentType(refl.For[T]())
}

// FragmentScope configures a fragment of a record being built
type FragmentScope[T Fragment] struct {
	parent   *Builder
	fragment T
}

// WithFragment returns a scope on the record's fragment of type T, adding
// fresh() when the record has none
func WithFragment[T Fragment](b *Builder, fresh func() T) FragmentScope[T] {
	f, ok := GetFragment[T](b.record)
	if !ok {
		f = fresh()
		b.record.AddFragment(f)
	}
	return FragmentScope[T]{parent: b, fragment: f}
}

// Get returns the fragment
func (s FragmentScope[T]) Get() T {
	return s.fragment
}

// End returns the builder the scope was opened on
func (s FragmentScope[T]) End() *Builder {
	return s.parent
}
