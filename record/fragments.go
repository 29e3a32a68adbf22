package record

import (
	"errors"
	"fmt"
	"strings"

	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/entity"
	"github.com/plus3/reflecs/query"
	"github.com/plus3/reflecs/refl"
	"github.com/plus3/reflecs/registry"
)

// NamedFragment names the entity before its components are applied. Instances
// of a prefab keep the name unless DontInherit is set.
type NamedFragment struct {
	Name        string `yaml:"name"`
	DontInherit bool   `yaml:"dont_inherit,omitempty"`
}

// Named returns a fragment naming the entity
func Named(name string) *NamedFragment {
	return &NamedFragment{Name: name}
}

func (f *NamedFragment) Kind() string { return "named" }

func (f *NamedFragment) Validate(*registry.Registry) error {
	switch {
	case f.Name == "":
		return errors.New("named fragment without name")
	case strings.Contains(f.Name, ecs.PathSeparator):
		return fmt.Errorf("name %q contains %q", f.Name, ecs.PathSeparator)
	}
	return nil
}

func (f *NamedFragment) PreApply(h entity.Handle) {
	if err := f.Validate(h.Registry()); err != nil {
		panic("record: " + err.Error())
	}
	h.SetName(f.Name)
	if !f.DontInherit {
		setInstanceName(h, f.Name)
	}
}

func (f *NamedFragment) PostApply(entity.Handle) {}

// ParentFragment makes the entity a child of the entity at Path, created on
// first use
type ParentFragment struct {
	Path string `yaml:"path"`
}

// Parent returns a fragment parenting the entity to path
func Parent(path string) *ParentFragment {
	return &ParentFragment{Path: path}
}

func (f *ParentFragment) Kind() string { return "parent" }

func (f *ParentFragment) Validate(*registry.Registry) error {
	if f.Path == "" {
		return errors.New("parent fragment without path")
	}
	for _, segment := range strings.Split(f.Path, ecs.PathSeparator) {
		if segment == "" {
			return fmt.Errorf("invalid parent path %q", f.Path)
		}
	}
	return nil
}

func (f *ParentFragment) PreApply(h entity.Handle) {
	if err := f.Validate(h.Registry()); err != nil {
		panic("record: " + err.Error())
	}
	h.SetParent(entity.Named(h.Registry(), f.Path))
}

func (f *ParentFragment) PostApply(entity.Handle) {}

// OwnedQuery is the component holding the query a QueryFragment built for an
// entity
type OwnedQuery struct {
	Query *query.Compiled
}

// QueryFragment builds a query owned by the entity from Spec. The spec is
// copied on every application, so the fragment can be applied repeatedly.
type QueryFragment struct {
	Spec *query.Spec
}

// Query returns a fragment building spec
func Query(spec *query.Spec) *QueryFragment {
	return &QueryFragment{Spec: spec}
}

func (f *QueryFragment) Kind() string { return "query" }

// Edit returns a builder adding terms to the fragment's spec
func (f *QueryFragment) Edit() *query.Builder {
	if f.Spec == nil {
		f.Spec = &query.Spec{}
	}
	return query.Edit(f.Spec)
}

func (f *QueryFragment) PreApply(h entity.Handle) {
	s, err := f.prepare(h.Registry())
	if err != nil {
		panic(fmt.Sprintf("record: query fragment of %s: %v", h, err))
	}
	s(h)
}

// prepare compiles a copy of the spec, so a spec that cannot be built fails
// before the entity is modified
func (f *QueryFragment) prepare(reg *registry.Registry) (s step, err error) {
	if f.Spec == nil || len(f.Spec.Terms) == 0 {
		return nil, errors.New("query fragment has no terms")
	}
	defer func() {
		if e := recover(); e != nil {
			s, err = nil, fmt.Errorf("%v", e)
		}
	}()
	compiled := f.Spec.Clone().Build(reg)
	t := refl.StructOf[OwnedQuery]()
	reg.Register(t, true)
	return func(h entity.Handle) {
		h.Set(entity.TypeRef(t), refl.ValueOf(OwnedQuery{Query: compiled}))
	}, nil
}

func (f *QueryFragment) PostApply(entity.Handle) {}

// QueryOf returns the query a QueryFragment built for h, or nil
func QueryOf(h entity.Handle) *query.Compiled {
	t := refl.StructOf[OwnedQuery]()
	id, ok := h.Registry().Lookup(t)
	if !ok {
		return nil
	}
	owned := (*OwnedQuery)(h.World().Get(h.ID(), id))
	if owned == nil {
		return nil
	}
	return owned.Query
}

var (
	_ Fragment = (*NamedFragment)(nil)
	_ Fragment = (*ParentFragment)(nil)
	_ Fragment = (*QueryFragment)(nil)

	_ Validator = (*NamedFragment)(nil)
	_ Validator = (*ParentFragment)(nil)
	_ preparer  = (*QueryFragment)(nil)
)
