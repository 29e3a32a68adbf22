// Package query describes queries as data. A Spec is a list of term
// expressions plus ordering and grouping expressions; building it resolves
// every reflected type through the registry and compiles a world query.
package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/registry"
)

// State is the lifecycle stage of a Spec
type State uint8

const (
	StateEmpty State = iota
	StateAccumulating
	StateCompiled
)

func (s State) String() string {
	switch s {
	case StateAccumulating:
		return "accumulating"
	case StateCompiled:
		return "compiled"
	}
	return "empty"
}

// Flags change how a whole spec matches
type Flags uint32

const (
	// MatchPrefabs includes prefabs in the results
	MatchPrefabs Flags = 1 << iota
	// AllowUnresolvedByName builds terms naming entities that do not exist.
	// Such terms never match, and ByName no longer creates its entity.
	AllowUnresolvedByName
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{MatchPrefabs, "match_prefabs"},
	{AllowUnresolvedByName, "allow_unresolved_by_name"},
}

// Names returns the name of every set flag
func (f Flags) Names() []string {
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return names
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Names(), "|")
}

// ParseFlag returns the flag of a name
func ParseFlag(name string) (Flags, bool) {
	for _, fn := range flagNames {
		if fn.name == name {
			return fn.flag, true
		}
	}
	return 0, false
}

// TermRef identifies a term of the spec it was returned by
type TermRef int

// Spec is a declarative query. It can be built once; mutating it afterwards
// panics.
type Spec struct {
	Terms         []Term
	Expressions   []Expression
	DetectChanges bool
	Flags         Flags

	compiled bool
}

// State returns the lifecycle stage of the spec
func (s *Spec) State() State {
	switch {
	case s.compiled:
		return StateCompiled
	case len(s.Terms) == 0 && len(s.Expressions) == 0:
		return StateEmpty
	}
	return StateAccumulating
}

// Add appends a term and returns its handle
func (s *Spec) Add(t Term) TermRef {
	s.mutable("Add")
	s.Terms = append(s.Terms, t)
	return TermRef(len(s.Terms) - 1)
}

// AddExpression appends an order-by or group-by expression
func (s *Spec) AddExpression(e Expression) {
	s.mutable("AddExpression")
	s.Expressions = append(s.Expressions, e)
}

// Term returns the term of a handle for modification
func (s *Spec) Term(ref TermRef) *Term {
	s.mutable("Term")
	if ref < 0 || int(ref) >= len(s.Terms) {
		panic(fmt.Sprintf("query: term %d does not exist, spec has %d terms", ref, len(s.Terms)))
	}
	return &s.Terms[ref]
}

// Clone returns an uncompiled copy of the spec that can be built again
func (s *Spec) Clone() *Spec {
	return &Spec{
		Terms:         slices.Clone(s.Terms),
		Expressions:   slices.Clone(s.Expressions),
		DetectChanges: s.DetectChanges,
		Flags:         s.Flags,
	}
}

func (s *Spec) mutable(op string) {
	if s.compiled {
		panic(fmt.Sprintf("query: %s called on a compiled spec", op))
	}
}

// Builder accumulates a Spec. Every term-adding call returns a handle that
// modifiers take explicitly.
type Builder struct {
	spec *Spec
}

// NewBuilder starts an empty spec
func NewBuilder() *Builder {
	return &Builder{spec: &Spec{}}
}

// Edit continues building an existing spec
func Edit(s *Spec) *Builder {
	return &Builder{spec: s}
}

// Spec returns the spec being built
func (b *Builder) Spec() *Spec {
	return b.spec
}

// With adds a term matching in
func (b *Builder) With(in Input) TermRef {
	return b.spec.Add(Term{Input: in})
}

// Without adds a term that must not match in
func (b *Builder) Without(in Input) TermRef {
	return b.spec.Add(Term{Input: in, Oper: ecs.Not})
}

// Term adds a fully described term
func (b *Builder) Term(t Term) TermRef {
	return b.spec.Add(t)
}

// Last returns the handle of the most recently added term
func (b *Builder) Last() TermRef {
	if len(b.spec.Terms) == 0 {
		panic("query: Last called before any term was added")
	}
	return TermRef(len(b.spec.Terms) - 1)
}

// Oper sets the operator of a term
func (b *Builder) Oper(ref TermRef, op ecs.Oper) *Builder {
	b.spec.Term(ref).Oper = op
	return b
}

// InOut sets the access mode of a term
func (b *Builder) InOut(ref TermRef, io ecs.InOut) *Builder {
	b.spec.Term(ref).InOut = io
	return b
}

// Src matches a term on a fixed entity
func (b *Builder) Src(ref TermRef, e ecs.Id) *Builder {
	b.spec.Term(ref).Source = FromEntity(e)
	return b
}

// SrcPath matches a term on the entity at path
func (b *Builder) SrcPath(ref TermRef, path string) *Builder {
	b.spec.Term(ref).Source = FromPath(path)
	return b
}

// SrcVar matches a term on the entity bound to a variable
func (b *Builder) SrcVar(ref TermRef, name string) *Builder {
	b.spec.Term(ref).Source = FromVar(name)
	return b
}

// Singleton matches a term on its own component entity
func (b *Builder) Singleton(ref TermRef) *Builder {
	b.spec.Term(ref).Source = FromSingleton()
	return b
}

// Up makes a term look for its id on ancestors along relationship. A zero
// relationship means ChildOf.
func (b *Builder) Up(ref TermRef, relationship Input) *Builder {
	b.spec.Term(ref).Trav = Traversal{Kind: TraverseUp, Relationship: relationship}
	return b
}

// Cascade is Up that also orders results by depth
func (b *Builder) Cascade(ref TermRef, relationship Input) *Builder {
	b.spec.Term(ref).Trav = Traversal{Kind: TraverseCascade, Relationship: relationship}
	return b
}

// OrderBy sorts results by the value of in
func (b *Builder) OrderBy(in Input, cmp ecs.OrderByFunc) *Builder {
	b.spec.AddExpression(Expression{Kind: ExprOrderBy, Input: in, Compare: cmp})
	return b
}

// GroupBy groups results by fn, or by the target of the first (in, *) pair
// when fn is nil
func (b *Builder) GroupBy(in Input, fn ecs.GroupByFunc) *Builder {
	b.spec.AddExpression(Expression{Kind: ExprGroupBy, Input: in, Group: fn})
	return b
}

// Expression appends a fully described expression
func (b *Builder) Expression(e Expression) *Builder {
	b.spec.AddExpression(e)
	return b
}

// DetectChanges enables Changed on the compiled query
func (b *Builder) DetectChanges() *Builder {
	b.spec.mutable("DetectChanges")
	b.spec.DetectChanges = true
	return b
}

// Flags sets flags on the spec
func (b *Builder) Flags(f Flags) *Builder {
	b.spec.mutable("Flags")
	b.spec.Flags |= f
	return b
}

// Build compiles the spec
func (b *Builder) Build(reg *registry.Registry) *Compiled {
	return b.spec.Build(reg)
}
