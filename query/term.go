package query

import (
	"fmt"
	"strings"

	"github.com/plus3/reflecs/ecs"
)

// SourceKind tags the variant of a Source
type SourceKind uint8

const (
	// SourceSelf matches the term on the iterated entity
	SourceSelf SourceKind = iota
	// SourceEntity matches the term on a fixed entity
	SourceEntity
	// SourceVar matches the term on the entity bound to a variable
	SourceVar
	// SourceSingleton matches the term on the entity of its own component,
	// where ecs.Singleton stores the value
	SourceSingleton
)

// Source is the entity a term is matched on
type Source struct {
	Kind SourceKind

	// Entity is the fixed source. Path is used when Entity is zero.
	Entity ecs.Id
	Path   string

	Var string
}

// Self is the default source
func Self() Source {
	return Source{}
}

// FromEntity matches on a fixed entity
func FromEntity(e ecs.Id) Source {
	return Source{Kind: SourceEntity, Entity: e}
}

// FromPath matches on the entity at path
func FromPath(path string) Source {
	return Source{Kind: SourceEntity, Path: path}
}

// FromVar matches on the entity bound to a variable
func FromVar(name string) Source {
	return Source{Kind: SourceVar, Var: strings.TrimPrefix(name, ecs.VarPrefix)}
}

// FromSingleton matches the term on its own component entity
func FromSingleton() Source {
	return Source{Kind: SourceSingleton}
}

func (s Source) String() string {
	switch s.Kind {
	case SourceSingleton:
		return ecs.VarPrefix
	case SourceEntity:
		if s.Entity == 0 {
			return s.Path
		}
		return s.Entity.String()
	case SourceVar:
		return ecs.VarPrefix + s.Var
	}
	return ecs.VarPrefix + ecs.This
}

// TraversalKind tags the variant of a Traversal
type TraversalKind uint8

const (
	TraverseNone TraversalKind = iota
	TraverseUp
	TraverseCascade
)

func (k TraversalKind) String() string {
	switch k {
	case TraverseUp:
		return "up"
	case TraverseCascade:
		return "cascade"
	}
	return "none"
}

// Traversal makes a term look for its id on ancestors along a relationship.
// A zero Relationship means ChildOf.
type Traversal struct {
	Kind         TraversalKind
	Relationship Input
}

// Term is one clause of a query spec
type Term struct {
	Input  Input
	Oper   ecs.Oper
	InOut  ecs.InOut
	Source Source
	Trav   Traversal
}

func (t Term) String() string {
	var b strings.Builder
	if t.Oper != ecs.And {
		fmt.Fprintf(&b, "%s ", t.Oper)
	}
	b.WriteString(t.Input.String())
	if t.Source.Kind != SourceSelf {
		fmt.Fprintf(&b, "(%s)", t.Source)
	}
	if t.Trav.Kind != TraverseNone {
		fmt.Fprintf(&b, " %s", t.Trav.Kind)
	}
	return b.String()
}

// ExpressionKind tags the variant of an Expression
type ExpressionKind uint8

const (
	ExprOrderBy ExpressionKind = iota
	ExprGroupBy
)

func (k ExpressionKind) String() string {
	if k == ExprGroupBy {
		return "group_by"
	}
	return "order_by"
}

// Expression orders or groups query results by a component. Expressions apply
// after every term.
type Expression struct {
	Kind  ExpressionKind
	Input Input

	Compare ecs.OrderByFunc
	Group   ecs.GroupByFunc

	// Callback names Compare or Group when serialized
	Callback string
}
