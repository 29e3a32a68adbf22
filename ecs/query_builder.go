package ecs

import (
	"fmt"
	"strings"
	"unique"
	"unsafe"
)

// Oper is the operator of a query term
type Oper uint8

const (
	// And requires the term to match
	And Oper = iota
	// Or chains the term with the next one; one of the chain must match
	Or
	// Not requires the term not to match
	Not
	// Optional matches whether or not the term does
	Optional
	// AndFrom requires every id of the term entity's type
	AndFrom
	// OrFrom requires at least one id of the term entity's type
	OrFrom
)

func (o Oper) String() string {
	switch o {
	case And:
		return "and"
	case Or:
		return "or"
	case Not:
		return "not"
	case Optional:
		return "optional"
	case AndFrom:
		return "and_from"
	case OrFrom:
		return "or_from"
	}
	return fmt.Sprintf("oper(%d)", uint8(o))
}

// InOut describes how a query accesses the data of a term
type InOut uint8

const (
	InOutDefault InOut = iota
	InOutNone
	In
	Out
	InOutBoth
	InOutFilter
)

func (io InOut) String() string {
	switch io {
	case InOutDefault:
		return "default"
	case InOutNone:
		return "none"
	case In:
		return "in"
	case Out:
		return "out"
	case InOutBoth:
		return "inout"
	case InOutFilter:
		return "filter"
	}
	return fmt.Sprintf("inout(%d)", uint8(io))
}

// VarPrefix marks a late-bound operand name as a query variable
const VarPrefix = "$"

// This is the name of the variable holding the iterated entity
const This = "this"

// Operand is one side of a term: either a resolved id or a late-bound name.
// Names starting with VarPrefix are variables, other names are entity paths
// resolved when the query is built.
type Operand struct {
	Id      Id
	name    unique.Handle[string]
	hasName bool
}

// OperandId creates an operand from a resolved id
func OperandId(id Id) Operand {
	return Operand{Id: id}
}

// OperandName creates a late-bound operand
func OperandName(name string) Operand {
	return Operand{name: unique.Make(name), hasName: true}
}

// OperandVar creates a variable operand
func OperandVar(name string) Operand {
	return OperandName(VarPrefix + strings.TrimPrefix(name, VarPrefix))
}

// Name returns the late-bound name of the operand, if any
func (o Operand) Name() (string, bool) {
	if !o.hasName {
		return "", false
	}
	return o.name.Value(), true
}

// IsVar reports whether the operand is a variable
func (o Operand) IsVar() bool {
	name, ok := o.Name()
	return ok && strings.HasPrefix(name, VarPrefix)
}

// VarName returns the variable name without prefix
func (o Operand) VarName() string {
	name, _ := o.Name()
	return strings.TrimPrefix(name, VarPrefix)
}

// IsZero reports whether the operand is unset
func (o Operand) IsZero() bool {
	return o.Id == 0 && !o.hasName
}

func (o Operand) String() string {
	if name, ok := o.Name(); ok {
		return name
	}
	return o.Id.String()
}

// Term is one clause of a query
type Term struct {
	First  Operand
	Second Operand
	Oper   Oper
	InOut  InOut

	// Src is the entity the term is matched on. Zero means the iterated entity.
	Src Operand

	// Trav is the relationship followed upwards when the source does not have
	// the id itself. Cascade additionally orders results by depth along it.
	Trav    Id
	Cascade bool
}

// IsPair reports whether the term matches a pair
func (t Term) IsPair() bool {
	return !t.Second.IsZero()
}

// OrderByFunc compares two values of the order-by component. Entities lacking
// the component are passed a nil pointer.
type OrderByFunc func(e1 Id, v1 unsafe.Pointer, e2 Id, v2 unsafe.Pointer) int

// GroupByFunc computes the group of an archetype for a group-by id
type GroupByFunc func(w *World, a *Archetype, id Id) uint64

// QueryBuilder accumulates terms. Modifiers act on the most recently added term.
type QueryBuilder struct {
	world   *World
	terms   []Term
	orderBy Id
	cmp     OrderByFunc
	groupBy Id
	groupFn GroupByFunc
	built   bool

	matchPrefab     bool
	allowUnresolved bool
}

// Query starts a query builder for the world
func (w *World) Query() *QueryBuilder {
	return &QueryBuilder{world: w}
}

// With adds a term matching id
func (b *QueryBuilder) With(id Id) *QueryBuilder {
	if id.IsPair() {
		return b.WithPair(OperandId(id.First()), OperandId(id.Second()))
	}
	return b.WithOperand(OperandId(id))
}

// WithOperand adds a term matching a single, possibly late-bound, operand
func (b *QueryBuilder) WithOperand(o Operand) *QueryBuilder {
	b.mutable()
	b.terms = append(b.terms, Term{First: o})
	return b
}

// WithPair adds a term matching a pair
func (b *QueryBuilder) WithPair(first, second Operand) *QueryBuilder {
	b.mutable()
	b.terms = append(b.terms, Term{First: first, Second: second})
	return b
}

// Without adds a term that must not match
func (b *QueryBuilder) Without(id Id) *QueryBuilder {
	return b.With(id).Oper(Not)
}

// Oper sets the operator of the last term
func (b *QueryBuilder) Oper(op Oper) *QueryBuilder {
	b.last().Oper = op
	return b
}

// InOut sets the access mode of the last term
func (b *QueryBuilder) InOut(io InOut) *QueryBuilder {
	b.last().InOut = io
	return b
}

// Src matches the last term on a fixed entity
func (b *QueryBuilder) Src(e Id) *QueryBuilder {
	b.last().Src = OperandId(e)
	return b
}

// SrcVar matches the last term on the entity bound to a variable
func (b *QueryBuilder) SrcVar(name string) *QueryBuilder {
	b.last().Src = OperandVar(name)
	return b
}

// SrcName matches the last term on the entity at path, looked up when the
// query is built
func (b *QueryBuilder) SrcName(path string) *QueryBuilder {
	b.last().Src = OperandName(path)
	return b
}

// Singleton matches the last term on the entity of its own first id, which is
// where a Singleton stores its value
func (b *QueryBuilder) Singleton() *QueryBuilder {
	t := b.last()
	if t.First.IsVar() {
		panic("ecs: singleton term needs a fixed id, got variable " + t.First.String())
	}
	t.Src = t.First
	return b
}

// Up makes the last term look for its id on ancestors along relationship
func (b *QueryBuilder) Up(relationship Id) *QueryBuilder {
	t := b.last()
	t.Trav = orDefault(relationship, ChildOf)
	return b
}

// Cascade is Up that also orders results by depth along relationship
func (b *QueryBuilder) Cascade(relationship Id) *QueryBuilder {
	t := b.last()
	t.Trav = orDefault(relationship, ChildOf)
	t.Cascade = true
	return b
}

// OrderBy sorts results by the value of id
func (b *QueryBuilder) OrderBy(id Id, cmp OrderByFunc) *QueryBuilder {
	b.mutable()
	b.orderBy = id
	b.cmp = cmp
	return b
}

// GroupBy groups results by fn, or by the target of the first (id, *) pair of
// each archetype when fn is nil
func (b *QueryBuilder) GroupBy(id Id, fn GroupByFunc) *QueryBuilder {
	b.mutable()
	b.groupBy = id
	b.groupFn = fn
	return b
}

// MatchPrefabs makes the query match prefabs without naming Prefab in a term
func (b *QueryBuilder) MatchPrefabs() *QueryBuilder {
	b.mutable()
	b.matchPrefab = true
	return b
}

// AllowUnresolved lets terms name entities that do not exist when the query
// is built. Such terms never match instead of panicking.
func (b *QueryBuilder) AllowUnresolved() *QueryBuilder {
	b.mutable()
	b.allowUnresolved = true
	return b
}

// TermCount returns the number of terms added so far
func (b *QueryBuilder) TermCount() int {
	return len(b.terms)
}

// World returns the world of the builder
func (b *QueryBuilder) World() *World {
	return b.world
}

func (b *QueryBuilder) last() *Term {
	b.mutable()
	if len(b.terms) == 0 {
		panic("ecs: query builder modifier called before any term was added")
	}
	return &b.terms[len(b.terms)-1]
}

func (b *QueryBuilder) mutable() {
	if b.built {
		panic("ecs: query builder used after Build")
	}
}

func orDefault(id, fallback Id) Id {
	if id == 0 {
		return fallback
	}
	return id
}

// Build compiles the terms into a query. The builder cannot be used afterwards.
func (b *QueryBuilder) Build() *Query {
	b.mutable()
	if len(b.terms) == 0 {
		panic("ecs: cannot build a query without terms")
	}
	b.built = true
	return newQuery(b)
}

// DefaultGroupBy groups an archetype by the target of its first (id, *) pair
func DefaultGroupBy(w *World, a *Archetype, id Id) uint64 {
	for pair := range a.Match(Pair(id, Wildcard)) {
		return uint64(pair.Second().Index())
	}
	return 0
}
