package query

import (
	"fmt"

	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/refl"
)

// Library resolves the names a serialized spec refers to: reflected types by
// catalog name and callbacks by the name they were added under.
type Library struct {
	types   *refl.Catalog
	custom  map[string]CustomFunc
	orderBy map[string]ecs.OrderByFunc
	groupBy map[string]ecs.GroupByFunc
}

// NewLibrary creates a library resolving types through catalog
func NewLibrary(catalog *refl.Catalog) *Library {
	if catalog == nil {
		catalog = refl.NewCatalog()
	}
	return &Library{
		types:   catalog,
		custom:  make(map[string]CustomFunc),
		orderBy: make(map[string]ecs.OrderByFunc),
		groupBy: make(map[string]ecs.GroupByFunc),
	}
}

// Types returns the type catalog
func (l *Library) Types() *refl.Catalog {
	return l.types
}

// AddCustom makes a custom term callback available under name
func (l *Library) AddCustom(name string, fn CustomFunc) *Library {
	mustName("custom", name, fn == nil)
	l.custom[name] = fn
	return l
}

// AddOrderBy makes a comparator available under name
func (l *Library) AddOrderBy(name string, fn ecs.OrderByFunc) *Library {
	mustName("order_by", name, fn == nil)
	l.orderBy[name] = fn
	return l
}

// AddGroupBy makes a grouping callback available under name
func (l *Library) AddGroupBy(name string, fn ecs.GroupByFunc) *Library {
	mustName("group_by", name, fn == nil)
	l.groupBy[name] = fn
	return l
}

func mustName(kind, name string, nilFn bool) {
	if name == "" {
		panic(fmt.Sprintf("query: %s callback needs a name", kind))
	}
	if nilFn {
		panic(fmt.Sprintf("query: %s callback %q is nil", kind, name))
	}
}

// OrderByNamed sorts results by the value of in with the comparator the
// library holds under name
func (b *Builder) OrderByNamed(lib *Library, in Input, name string) *Builder {
	cmp, ok := lib.orderBy[name]
	if !ok {
		panic(fmt.Sprintf("query: library has no order_by callback %q", name))
	}
	return b.Expression(Expression{Kind: ExprOrderBy, Input: in, Compare: cmp, Callback: name})
}

// GroupByNamed groups results with the callback the library holds under name
func (b *Builder) GroupByNamed(lib *Library, in Input, name string) *Builder {
	fn, ok := lib.groupBy[name]
	if !ok {
		panic(fmt.Sprintf("query: library has no group_by callback %q", name))
	}
	return b.Expression(Expression{Kind: ExprGroupBy, Input: in, Group: fn, Callback: name})
}

// Custom returns a custom input bound to the callback the library holds
// under name
func (l *Library) Custom(name string) Input {
	fn, ok := l.custom[name]
	if !ok {
		panic(fmt.Sprintf("query: library has no custom callback %q", name))
	}
	return ByCustom(name, fn)
}
