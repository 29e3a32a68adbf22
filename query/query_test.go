package query_test

import (
	"cmp"
	"slices"
	"testing"
	"unsafe"

	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/entity"
	"github.com/plus3/reflecs/query"
	"github.com/plus3/reflecs/refl"
	"github.com/plus3/reflecs/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

type Health struct {
	Current, Max int
}

type Marker struct{}

type A struct{}

type B struct{}

type Healthy struct{}

type Color uint8

const (
	Red Color = iota
	Green
	Blue
)

var colorType = refl.EnumOf[Color](
	refl.Enum("Red", Red),
	refl.Enum("Green", Green),
	refl.Enum("Blue", Blue),
)

func newRegistry() *registry.Registry {
	return registry.New(ecs.NewWorld())
}

func byPositionX(e1 ecs.Id, v1 unsafe.Pointer, e2 ecs.Id, v2 unsafe.Pointer) int {
	return cmp.Compare((*Position)(v1).X, (*Position)(v2).X)
}

func TestTagQueryCount(t *testing.T) {
	reg := newRegistry()
	reg.Register(refl.StructOf[Marker](), true)

	for i := 0; i < 3; i++ {
		e := entity.Spawn(reg)
		if i < 2 {
			entity.Add[Marker](e)
		}
	}

	b := query.NewBuilder()
	b.With(query.ByStruct(refl.StructOf[Marker]()))
	assert.Equal(t, 2, b.Build(reg).Count())
}

func TestNotTermExcludes(t *testing.T) {
	reg := newRegistry()
	onlyA := entity.Spawn(reg)
	entity.Add[A](onlyA)
	both := entity.Spawn(reg)
	entity.Add[A](both)
	entity.Add[B](both)

	b := query.NewBuilder()
	b.With(query.ByStruct(refl.StructOf[A]()))
	notB := b.With(query.ByStruct(refl.StructOf[B]()))
	b.Oper(notB, ecs.Not)

	c := b.Build(reg)
	assert.Equal(t, []entity.Handle{onlyA}, c.Entities())
}

func TestWithoutIsNotTerm(t *testing.T) {
	b := query.NewBuilder()
	ref := b.Without(query.ByStruct(refl.StructOf[B]()))
	assert.Equal(t, ecs.Not, b.Spec().Terms[ref].Oper)
}

func TestTermOrderIsDeterministic(t *testing.T) {
	types := []*refl.Type{
		refl.StructOf[Position](),
		refl.StructOf[Velocity](),
		refl.StructOf[Health](),
	}
	modes := []ecs.InOut{ecs.In, ecs.Out, ecs.InOutBoth, ecs.InOutFilter, ecs.InOutNone}

	rapid.Check(t, func(t *rapid.T) {
		reg := newRegistry()
		b := query.NewBuilder()

		var refs []query.TermRef
		for _, typ := range types {
			refs = append(refs, b.With(query.ByStruct(typ)))
			if rapid.Bool().Draw(t, "modify early") {
				ref := rapid.SampledFrom(refs).Draw(t, "early term")
				b.InOut(ref, rapid.SampledFrom(modes).Draw(t, "early mode"))
			}
		}
		for _, ref := range rapid.Permutation(refs).Draw(t, "late order") {
			b.InOut(ref, rapid.SampledFrom(modes).Draw(t, "late mode"))
			if rapid.Bool().Draw(t, "optional") {
				b.Oper(ref, ecs.Optional)
			}
		}

		fields := b.Build(reg).Fields()
		want := make([]ecs.Id, len(types))
		for i, typ := range types {
			want[i] = reg.MustLookup(typ)
		}
		if !slices.Equal(fields, want) {
			t.Fatalf("fields %v, want %v", fields, want)
		}
	})
}

func TestStates(t *testing.T) {
	reg := newRegistry()
	b := query.NewBuilder()
	assert.Equal(t, query.StateEmpty, b.Spec().State())

	ref := b.With(query.ByStruct(refl.StructOf[Position]()))
	assert.Equal(t, query.StateAccumulating, b.Spec().State())

	b.Build(reg)
	assert.Equal(t, query.StateCompiled, b.Spec().State())

	assert.Panics(t, func() { b.With(query.ByStruct(refl.StructOf[Velocity]())) })
	assert.Panics(t, func() { b.Oper(ref, ecs.Not) })
	assert.Panics(t, func() { b.DetectChanges() })
	assert.Panics(t, func() { b.Build(reg) })
}

func TestModifierContracts(t *testing.T) {
	b := query.NewBuilder()
	assert.Panics(t, func() { b.Last() })
	assert.Panics(t, func() { b.Oper(0, ecs.Not) })
	assert.Panics(t, func() { b.Build(newRegistry()) })

	first := b.With(query.ByStruct(refl.StructOf[Position]()))
	assert.Equal(t, first, b.Last())
	assert.Panics(t, func() { b.InOut(first+1, ecs.In) })
}

func TestNestedCustomIsFatal(t *testing.T) {
	custom := query.ByCustom("positions", func(qb *ecs.QueryBuilder, reg *registry.Registry) {
		qb.With(reg.Resolve(refl.StructOf[Position]()))
	})

	b := query.NewBuilder()
	b.With(query.ByPair(custom, query.Wildcard()))
	assert.Panics(t, func() { b.Build(newRegistry()) })

	b = query.NewBuilder()
	b.With(query.ByPair(query.ByPair(query.Wildcard(), query.Wildcard()), query.Wildcard()))
	assert.Panics(t, func() { b.Build(newRegistry()) })
}

func TestCustomTerm(t *testing.T) {
	reg := newRegistry()
	moving := entity.Spawn(reg)
	entity.Set(moving, Position{})
	entity.Set(moving, Velocity{DX: 1})
	still := entity.Spawn(reg)
	entity.Set(still, Position{})

	b := query.NewBuilder()
	custom := b.With(query.ByCustom("movers", func(qb *ecs.QueryBuilder, reg *registry.Registry) {
		qb.With(reg.Resolve(refl.StructOf[Position]()))
		qb.With(reg.Resolve(refl.StructOf[Velocity]()))
	}))
	health := b.With(query.ByStruct(refl.StructOf[Health]()))
	b.Oper(health, ecs.Optional)

	c := b.Build(reg)
	assert.Equal(t, []entity.Handle{moving}, c.Entities())
	assert.Equal(t, 0, c.Field(custom))
	assert.Equal(t, 2, c.Field(health), "fields shift past the terms a custom input adds")
}

func TestEnumConstantTerm(t *testing.T) {
	reg := newRegistry()
	green := entity.Spawn(reg)
	entity.SetEnum(green, Green)
	blue := entity.Spawn(reg)
	entity.SetEnum(blue, Blue)

	b := query.NewBuilder()
	b.With(query.ByEnumConstant(colorType, int64(Green)))
	assert.Equal(t, []entity.Handle{green}, b.Build(reg).Entities())

	b = query.NewBuilder()
	b.With(query.ByPair(query.ByEnum(colorType), query.Wildcard()))
	assert.Equal(t, 2, b.Build(reg).Count())
}

func TestPairVariables(t *testing.T) {
	reg := newRegistry()
	apple := entity.Named(reg, "Apple")
	entity.Add[Healthy](apple)
	cake := entity.Named(reg, "Cake")

	alice := entity.Named(reg, "Alice").AddPair(entity.Label("Eats"), entity.ID(apple.ID()))
	entity.Named(reg, "Bob").AddPair(entity.Label("Eats"), entity.ID(cake.ID()))

	b := query.NewBuilder()
	b.With(query.ByPair(query.ByName("Eats"), query.Var("food")))
	healthy := b.With(query.ByStruct(refl.StructOf[Healthy]()))
	b.SrcVar(healthy, "food")

	c := b.Build(reg)
	var eaters []string
	for row := range c.Iter() {
		eaters = append(eaters, reg.World().Name(row.Entity()))
		assert.Equal(t, apple, c.Var(row, "food"))
	}
	assert.Equal(t, []string{"Alice"}, eaters)

	c.SetVar("food", cake)
	assert.Zero(t, c.Count())
	c.SetVar("$food", apple)
	assert.Equal(t, []entity.Handle{alice}, c.Entities())

	assert.Panics(t, func() { c.SetVar("drink", apple) })
}

func TestStringOperands(t *testing.T) {
	reg := newRegistry()
	bob := entity.Named(reg, "Bob")
	entity.Named(reg, "Alice").AddPair(entity.Label("Likes"), entity.ID(bob.ID()))

	b := query.NewBuilder()
	b.With(query.ByPair(query.ByString("Likes"), query.ByString("Bob")))
	assert.Equal(t, 1, b.Build(reg).Count())

	b = query.NewBuilder()
	b.With(query.ByPair(query.ByString("Hates"), query.Wildcard()))
	assert.Panics(t, func() { b.Build(reg) }, "late-bound names must exist at build time")
}

func TestFixedSource(t *testing.T) {
	reg := newRegistry()
	settings := entity.Named(reg, "Settings")
	entity.Set(settings, Health{Max: 3})
	e := entity.Spawn(reg)
	entity.Set(e, Position{})

	b := query.NewBuilder()
	b.With(query.ByStruct(refl.StructOf[Position]()))
	limits := b.With(query.ByStruct(refl.StructOf[Health]()))
	b.SrcPath(limits, "Settings")

	c := b.Build(reg)
	rows := 0
	for row := range c.Iter() {
		rows++
		assert.Equal(t, 3, query.FieldValue[Health](c, row, limits).Max)
		assert.Equal(t, settings.ID(), row.Src(c.Field(limits)))
	}
	assert.Equal(t, 1, rows)

	b = query.NewBuilder()
	missing := b.With(query.ByStruct(refl.StructOf[Health]()))
	b.SrcPath(missing, "Nowhere")
	assert.Panics(t, func() { b.Build(reg) })
}

func TestMatchPrefabsFlag(t *testing.T) {
	reg := newRegistry()
	template := entity.Spawn(reg).Add(entity.ID(ecs.Prefab))
	entity.Set(template, Position{})
	entity.Set(entity.Spawn(reg), Position{})

	b := query.NewBuilder()
	b.With(query.ByStruct(refl.StructOf[Position]()))
	plain := b.Spec().Clone()
	assert.Equal(t, 1, b.Build(reg).Count())

	withPrefabs := query.Edit(plain).Flags(query.MatchPrefabs)
	assert.Equal(t, query.MatchPrefabs, plain.Flags)
	assert.Equal(t, 2, withPrefabs.Build(reg).Count())
}

func TestAllowUnresolvedByName(t *testing.T) {
	reg := newRegistry()
	e := entity.Spawn(reg)
	entity.Set(e, Position{})

	strict := query.NewBuilder()
	strict.With(query.ByStruct(refl.StructOf[Position]()))
	strict.With(query.ByName("Ghost"))
	assert.Zero(t, strict.Build(reg).Count())
	_, created := reg.World().Lookup("Ghost")
	assert.True(t, created, "ByName creates its entity by default")

	b := query.NewBuilder().Flags(query.AllowUnresolvedByName)
	b.With(query.ByStruct(refl.StructOf[Position]()))
	b.Without(query.ByName("Phantom"))
	b.With(query.ByPair(query.ByString("Likes"), query.ByString("Nobody")))
	b.Oper(b.Last(), ecs.Optional)
	missing := b.With(query.ByStruct(refl.StructOf[Health]()))
	b.SrcPath(missing, "Nowhere").Oper(missing, ecs.Optional)

	c := b.Build(reg)
	assert.Equal(t, []entity.Handle{e}, c.Entities())
	_, created = reg.World().Lookup("Phantom")
	assert.False(t, created, "unresolved names are not created")
	for row := range c.Iter() {
		assert.Nil(t, query.FieldValue[Health](c, row, missing))
	}

	b = query.NewBuilder().Flags(query.AllowUnresolvedByName)
	b.With(query.ByStruct(refl.StructOf[Position]()))
	b.With(query.ByName("Phantom"))
	assert.Zero(t, b.Build(reg).Count())
}

func TestSingletonTerm(t *testing.T) {
	reg := newRegistry()
	for range 3 {
		entity.Set(entity.Spawn(reg), Position{})
	}
	id := reg.Resolve(refl.StructOf[Health]())
	limits := ecs.NewSingleton(reg.World(), id, Health{Max: 10})

	b := query.NewBuilder()
	b.With(query.ByStruct(refl.StructOf[Position]()))
	global := b.With(query.ByStruct(refl.StructOf[Health]()))
	b.Singleton(global)
	assert.Equal(t, "query_test.Health($)", b.Spec().Terms[global].String())

	c := b.Build(reg)
	rows := 0
	for row := range c.Iter() {
		rows++
		assert.Equal(t, id, row.Src(c.Field(global)))
		assert.Equal(t, 10, query.FieldValue[Health](c, row, global).Max)
	}
	assert.Equal(t, 3, rows)

	limits.Set(Health{Max: 20})
	only := query.NewBuilder()
	only.Singleton(only.With(query.ByStruct(refl.StructOf[Health]())))
	oc := only.Build(reg)
	for row := range oc.Iter() {
		assert.Zero(t, row.Entity())
		query.FieldValue[Health](oc, row, 0).Current = 5
	}
	assert.Equal(t, Health{Current: 5, Max: 20}, *limits.Get())
	assert.Equal(t, 5, entity.Get[Health](entity.New(reg, id)).Current)
}

func TestUpTraversal(t *testing.T) {
	reg := newRegistry()
	parent := entity.Spawn(reg)
	entity.Set(parent, Position{X: 7})
	child := entity.Spawn(reg).SetParent(parent)
	entity.Add[Marker](child)

	b := query.NewBuilder()
	b.With(query.ByStruct(refl.StructOf[Marker]()))
	inherited := b.With(query.ByStruct(refl.StructOf[Position]()))
	b.Up(inherited, query.Input{})

	c := b.Build(reg)
	require.Equal(t, []entity.Handle{child}, c.Entities())
	for row := range c.Iter() {
		assert.Equal(t, float32(7), query.FieldValue[Position](c, row, inherited).X)
	}
}

func TestCascadeOrdersByDepth(t *testing.T) {
	reg := newRegistry()
	root := entity.Spawn(reg)
	entity.Add[Marker](root)
	mid := entity.Spawn(reg).SetParent(root)
	entity.Add[Marker](mid)
	leaf := entity.Spawn(reg).SetParent(mid)
	entity.Add[Marker](leaf)

	b := query.NewBuilder()
	b.With(query.ByStruct(refl.StructOf[Marker]()))
	parent := b.With(query.ByStruct(refl.StructOf[Marker]()))
	b.Cascade(parent, query.ByID(ecs.ChildOf)).Oper(parent, ecs.Optional)

	assert.Equal(t, []entity.Handle{root, mid, leaf}, b.Build(reg).Entities())
}

func TestOrderBy(t *testing.T) {
	reg := newRegistry()
	var spawned []entity.Handle
	for _, x := range []float32{3, 1, 2} {
		e := entity.Spawn(reg)
		entity.Set(e, Position{X: x})
		spawned = append(spawned, e)
	}

	b := query.NewBuilder()
	position := query.ByStruct(refl.StructOf[Position]())
	b.With(position)
	b.OrderBy(position, byPositionX)

	assert.Equal(t, []entity.Handle{spawned[1], spawned[2], spawned[0]}, b.Build(reg).Entities())
}

func TestGroupBy(t *testing.T) {
	reg := newRegistry()
	red := entity.Named(reg, "Red")
	blue := entity.Named(reg, "Blue")

	b1 := entity.Spawn(reg).AddPair(entity.Label("Team"), entity.ID(blue.ID()))
	r1 := entity.Spawn(reg).AddPair(entity.Label("Team"), entity.ID(red.ID()))
	entity.Add[Marker](r1)

	b := query.NewBuilder()
	b.With(query.ByPair(query.ByName("Team"), query.Wildcard()))
	b.GroupBy(query.ByName("Team"), nil)

	c := b.Build(reg)
	var groups []uint64
	for row := range c.Iter() {
		groups = append(groups, row.Group())
	}
	assert.Equal(t, []uint64{uint64(red.ID().Index()), uint64(blue.ID().Index())}, groups)
	assert.Equal(t, []entity.Handle{r1, b1}, c.Entities())
}

func TestDuplicateExpressionsAreFatal(t *testing.T) {
	position := query.ByStruct(refl.StructOf[Position]())
	b := query.NewBuilder()
	b.With(position)
	b.OrderBy(position, byPositionX).OrderBy(position, byPositionX)
	assert.Panics(t, func() { b.Build(newRegistry()) })

	b = query.NewBuilder()
	b.With(position)
	b.OrderBy(position, nil)
	assert.Panics(t, func() { b.Build(newRegistry()) })
}

func TestChanged(t *testing.T) {
	reg := newRegistry()
	e := entity.Spawn(reg)
	entity.Set(e, Position{X: 1})

	b := query.NewBuilder()
	b.With(query.ByStruct(refl.StructOf[Position]()))
	plain := b.Build(reg)
	assert.Panics(t, func() { plain.Changed() })

	b = query.NewBuilder().DetectChanges()
	b.With(query.ByStruct(refl.StructOf[Position]()))
	c := b.Build(reg)

	assert.True(t, c.Changed())
	for range c.Iter() {
	}
	assert.False(t, c.Changed())

	entity.Set(e, Position{X: 1})
	assert.False(t, c.Changed(), "setting an equal value is not a change")

	entity.Set(e, Position{X: 2})
	assert.True(t, c.Changed())
}

func TestEachDefersStructuralChanges(t *testing.T) {
	reg := newRegistry()
	for i := 0; i < 3; i++ {
		entity.Set(entity.Spawn(reg), Position{X: float32(i)})
	}

	b := query.NewBuilder()
	b.With(query.ByStruct(refl.StructOf[Position]()))
	c := b.Build(reg)

	visited := 0
	c.Each(func(e entity.Handle, row *ecs.Row) {
		visited++
		e.Destroy()
	})
	assert.Equal(t, 3, visited)
	assert.Zero(t, c.Count())
	assert.False(t, c.IsTrue())
}

func TestAutoRegistrationPolicy(t *testing.T) {
	reg := registry.New(ecs.NewWorld(), registry.WithAutoRegister(false))

	b := query.NewBuilder()
	b.With(query.ByStruct(refl.StructOf[Velocity]()))
	assert.Panics(t, func() { b.Build(reg) })

	reg.Register(refl.StructOf[Velocity](), true)
	b = query.NewBuilder()
	b.With(query.ByStruct(refl.StructOf[Velocity]()))
	assert.Zero(t, b.Build(reg).Count())
}
