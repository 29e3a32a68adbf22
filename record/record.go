// Package record describes entities as data. A Record lists component and pair
// entries, nested sub-entity records and fragments; applying it to an entity
// stamps all of them in declaration order.
package record

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/plus3/reflecs/entity"
)

// Fragment extends a record with custom logic. PreApply runs before any
// component entry is applied, PostApply after every sub-entity is created.
type Fragment interface {
	// Kind names the fragment in documents
	Kind() string
	PreApply(h entity.Handle)
	PostApply(h entity.Handle)
}

// SubEntity is a child created when the parent record is applied
type SubEntity struct {
	Name string
	// DontFragment keeps the child out of per-parent archetypes where the
	// engine supports it. The bundled engine always stores ChildOf as a
	// regular pair.
	DontFragment bool
	Record       *Record
}

// Record is a template of the components, pairs, children and fragments of an
// entity. It freezes once applied.
type Record struct {
	ID          uuid.UUID
	Components  []Component
	SubEntities []SubEntity
	Fragments   []Fragment

	frozen bool
}

// New creates an empty record with a fresh ID
func New() *Record {
	return &Record{ID: uuid.New()}
}

// Frozen reports whether the record was applied and can no longer change
func (r *Record) Frozen() bool {
	return r.frozen
}

func (r *Record) mutable(op string) {
	if r.frozen {
		panic(fmt.Sprintf("record: %s called on applied record %s", op, r.ID))
	}
}

func (r *Record) freeze() {
	r.frozen = true
	for _, sub := range r.SubEntities {
		sub.Record.freeze()
	}
}

// AddComponent appends a component entry
func (r *Record) AddComponent(c Component) *Record {
	r.mutable("AddComponent")
	r.Components = append(r.Components, c)
	return r
}

// AddSubEntity appends a child record
func (r *Record) AddSubEntity(sub SubEntity) *Record {
	r.mutable("AddSubEntity")
	if sub.Record == nil {
		panic("record: sub-entity without record")
	}
	r.SubEntities = append(r.SubEntities, sub)
	return r
}

// AddFragment appends a fragment
func (r *Record) AddFragment(f Fragment) *Record {
	r.mutable("AddFragment")
	if f == nil {
		panic("record: nil fragment")
	}
	r.Fragments = append(r.Fragments, f)
	return r
}

// GetFragment returns the first fragment of type T
func GetFragment[T Fragment](r *Record) (T, bool) {
	for _, f := range r.Fragments {
		if typed, ok := f.(T); ok {
			return typed, true
		}
	}
	var zero T
	return zero, false
}
