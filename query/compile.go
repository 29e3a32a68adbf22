package query

import (
	"fmt"
	"iter"

	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/entity"
	"github.com/plus3/reflecs/registry"
)

// Build resolves every term through the registry and compiles the spec into a
// world query. Types are registered on demand when the registry allows it.
func (s *Spec) Build(reg *registry.Registry) *Compiled {
	s.mutable("Build")
	if len(s.Terms) == 0 {
		panic("query: cannot build a spec without terms")
	}

	w := reg.World()
	b := w.Query()
	if s.Flags&MatchPrefabs != 0 {
		b.MatchPrefabs()
	}
	if s.Flags&AllowUnresolvedByName != 0 {
		b.AllowUnresolved()
	}
	fields := make([]int, len(s.Terms))
	for i, t := range s.Terms {
		fields[i] = b.TermCount()
		compileTerm(b, reg, i, t, s.Flags)
	}
	compileExpressions(b, reg, s.Expressions)

	s.compiled = true
	return &Compiled{
		spec:   s,
		reg:    reg,
		query:  b.Build(),
		fields: fields,
	}
}

func compileTerm(b *ecs.QueryBuilder, reg *registry.Registry, i int, t Term, flags Flags) {
	defer func() {
		if r := recover(); r != nil {
			panic(fmt.Sprintf("query: term %d (%s): %v", i, t, r))
		}
	}()

	in := t.Input
	switch in.Kind {
	case InputNone:
		panic("term has no input")
	case InputCustom:
		if in.Custom == nil {
			panic(fmt.Sprintf("custom input %q has no callback", in.Name))
		}
		before := b.TermCount()
		in.Custom(b, reg)
		if b.TermCount() == before {
			if hasModifiers(t) {
				panic("custom input added no term to modify")
			}
			return
		}
	case InputPair:
		if in.First == nil || in.Second == nil {
			panic("pair input needs two sides")
		}
		b.WithPair(in.First.operand(reg, flags), in.Second.operand(reg, flags))
	case InputEnumConstant:
		b.WithPair(ecs.OperandId(reg.Resolve(in.Type)), ecs.OperandId(resolveConstant(reg, in)))
	case InputString, InputName:
		b.WithOperand(in.operand(reg, flags))
	case InputID:
		if in.ID == 0 {
			panic("zero id input")
		}
		b.With(in.ID)
	default:
		b.With(in.resolve(reg))
	}

	if t.Oper != ecs.And {
		b.Oper(t.Oper)
	}
	if t.InOut != ecs.InOutDefault {
		b.InOut(t.InOut)
	}

	switch t.Source.Kind {
	case SourceEntity:
		src := t.Source.Entity
		if src == 0 {
			found, ok := reg.World().Lookup(t.Source.Path)
			if !ok {
				if flags&AllowUnresolvedByName != 0 {
					b.SrcName(t.Source.Path)
					break
				}
				panic(fmt.Sprintf("source %q does not exist", t.Source.Path))
			}
			src = found
		}
		b.Src(src)
	case SourceSingleton:
		if in.Kind == InputCustom {
			panic("custom input cannot be a singleton")
		}
		b.Singleton()
	case SourceVar:
		if t.Source.Var == "" {
			panic("variable source has no name")
		}
		b.SrcVar(t.Source.Var)
	}

	switch t.Trav.Kind {
	case TraverseUp:
		b.Up(relationship(reg, t.Trav.Relationship))
	case TraverseCascade:
		b.Cascade(relationship(reg, t.Trav.Relationship))
	}
}

func hasModifiers(t Term) bool {
	return t.Oper != ecs.And || t.InOut != ecs.InOutDefault ||
		t.Source.Kind != SourceSelf || t.Trav.Kind != TraverseNone
}

func relationship(reg *registry.Registry, in Input) ecs.Id {
	if in.IsZero() {
		return 0
	}
	return in.resolve(reg)
}

func compileExpressions(b *ecs.QueryBuilder, reg *registry.Registry, exprs []Expression) {
	var ordered, grouped bool
	for _, e := range exprs {
		id := expressionId(reg, e.Input)
		switch e.Kind {
		case ExprOrderBy:
			if ordered {
				panic("query: spec has more than one order_by expression")
			}
			if e.Compare == nil {
				panic(fmt.Sprintf("query: order_by %s has no comparator", e.Input))
			}
			ordered = true
			b.OrderBy(id, e.Compare)
		case ExprGroupBy:
			if grouped {
				panic("query: spec has more than one group_by expression")
			}
			grouped = true
			b.GroupBy(id, e.Group)
		}
	}
}

func expressionId(reg *registry.Registry, in Input) ecs.Id {
	switch in.Kind {
	case InputPair:
		if in.First == nil || in.Second == nil {
			panic("query: expression pair needs two sides")
		}
		return ecs.Pair(expressionId(reg, *in.First), expressionId(reg, *in.Second))
	case InputEnumConstant:
		return resolveConstant(reg, in)
	case InputString:
		if in.IsVar() {
			panic(fmt.Sprintf("query: expression cannot use variable %s", in.Name))
		}
		id, ok := reg.World().Lookup(in.Name)
		if !ok {
			panic(fmt.Sprintf("query: expression references unknown entity %q", in.Name))
		}
		return id
	}
	return in.resolve(reg)
}

// Compiled is a built spec bound to a world
type Compiled struct {
	spec   *Spec
	reg    *registry.Registry
	query  *ecs.Query
	fields []int
}

// Query returns the underlying world query
func (c *Compiled) Query() *ecs.Query {
	return c.query
}

// Spec returns the spec the query was built from
func (c *Compiled) Spec() *Spec {
	return c.spec
}

// Fields returns the id of every field in term order
func (c *Compiled) Fields() []ecs.Id {
	return c.query.Fields()
}

// Field returns the field index of a term of the spec
func (c *Compiled) Field(ref TermRef) int {
	if ref < 0 || int(ref) >= len(c.fields) {
		panic(fmt.Sprintf("query: term %d does not exist", ref))
	}
	return c.fields[ref]
}

// Count returns the number of results
func (c *Compiled) Count() int {
	return c.query.Count()
}

// IsTrue reports whether the query has at least one result
func (c *Compiled) IsTrue() bool {
	return c.query.IsTrue()
}

// Changed reports whether data matched by the query changed since the last
// iteration. The spec must enable change detection.
func (c *Compiled) Changed() bool {
	if !c.spec.DetectChanges {
		panic("query: Changed called on a query built without change detection")
	}
	return c.query.Changed()
}

// Iter iterates the results
func (c *Compiled) Iter() iter.Seq[*ecs.Row] {
	return c.query.Iter()
}

// Each calls fn for every result with the world deferred
func (c *Compiled) Each(fn func(e entity.Handle, row *ecs.Row)) {
	c.query.Each(func(row *ecs.Row) {
		fn(entity.New(c.reg, row.Entity()), row)
	})
}

// Entities returns a handle for the entity of every result
func (c *Compiled) Entities() []entity.Handle {
	ids := c.query.Entities()
	handles := make([]entity.Handle, len(ids))
	for i, id := range ids {
		handles[i] = entity.New(c.reg, id)
	}
	return handles
}

// SetVar binds a variable to an entity. The zero handle unbinds it. Binding a
// variable no term declares panics.
func (c *Compiled) SetVar(name string, e entity.Handle) *Compiled {
	if !c.query.HasVar(name) {
		panic(fmt.Sprintf("query: variable %q is not declared by any term", name))
	}
	c.query.SetVar(name, e.ID())
	return c
}

// Var returns the entity a variable is bound to in a result
func (c *Compiled) Var(row *ecs.Row, name string) entity.Handle {
	id := row.Var(name)
	if id == 0 {
		return entity.Handle{}
	}
	return entity.New(c.reg, id)
}

// FieldValue returns the value of a term in a result, or nil
func FieldValue[T any](c *Compiled, row *ecs.Row, ref TermRef) *T {
	return (*T)(row.Field(c.Field(ref)))
}
