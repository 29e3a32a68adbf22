package ecs_test

import (
	"cmp"
	"testing"
	"unsafe"

	"github.com/plus3/reflecs/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowEntities(q *ecs.Query) []ecs.Id {
	var entities []ecs.Id
	for row := range q.Iter() {
		entities = append(entities, row.Entity())
	}
	return entities
}

func TestQueryWithAndWithout(t *testing.T) {
	w, c := newTestWorld()

	moving := w.Entity()
	ecs.SetValue(w, moving, c.Position, Position{})
	ecs.SetValue(w, moving, c.Velocity, Velocity{})
	static := w.Entity()
	ecs.SetValue(w, static, c.Position, Position{})

	assert.ElementsMatch(t, []ecs.Id{moving, static}, rowEntities(w.Query().With(c.Position).Build()))
	assert.Equal(t, []ecs.Id{static}, rowEntities(w.Query().With(c.Position).Without(c.Velocity).Build()))
	assert.Equal(t, []ecs.Id{moving}, rowEntities(w.Query().With(c.Position).With(c.Velocity).Build()))
}

func TestQueryFields(t *testing.T) {
	w, c := newTestWorld()

	e := w.Entity()
	ecs.SetValue(w, e, c.Position, Position{X: 1, Y: 2})
	ecs.SetValue(w, e, c.Velocity, Velocity{DX: 3, DY: 4})
	w.Add(e, c.Player)

	q := w.Query().With(c.Velocity).With(c.Player).With(c.Position).Build()
	assert.Equal(t, []ecs.Id{c.Velocity, c.Player, c.Position}, q.Fields())

	rows := 0
	for row := range q.Iter() {
		rows++
		assert.Equal(t, e, row.Entity())
		assert.Equal(t, Velocity{DX: 3, DY: 4}, *ecs.FieldValue[Velocity](row, 0))
		assert.Nil(t, row.Field(1), "tags have no data")
		assert.True(t, row.IsSet(1))
		assert.Equal(t, Position{X: 1, Y: 2}, *ecs.FieldValue[Position](row, 2))
		assert.Equal(t, e, row.Src(2))
	}
	assert.Equal(t, 1, rows)
}

func TestQueryOrChain(t *testing.T) {
	w, c := newTestWorld()

	player := w.Entity()
	w.Add(player, c.Player)
	enemy := w.Entity()
	w.Add(enemy, c.Enemy)
	other := w.Entity()
	ecs.SetValue(w, other, c.Position, Position{})

	q := w.Query().With(c.Player).Oper(ecs.Or).With(c.Enemy).Build()
	assert.ElementsMatch(t, []ecs.Id{player, enemy}, rowEntities(q))

	for row := range q.Iter() {
		if row.Entity() == player {
			assert.True(t, row.IsSet(0))
			assert.False(t, row.IsSet(1))
		} else {
			assert.False(t, row.IsSet(0))
			assert.True(t, row.IsSet(1))
		}
	}
}

func TestQueryOptional(t *testing.T) {
	w, c := newTestWorld()

	with := w.Entity()
	ecs.SetValue(w, with, c.Position, Position{})
	ecs.SetValue(w, with, c.Health, Health{Current: 9})
	without := w.Entity()
	ecs.SetValue(w, without, c.Position, Position{})

	q := w.Query().With(c.Position).With(c.Health).Oper(ecs.Optional).Build()
	assert.Equal(t, 2, q.Count())
	for row := range q.Iter() {
		if row.Entity() == with {
			require.True(t, row.IsSet(1))
			assert.Equal(t, 9, ecs.FieldValue[Health](row, 1).Current)
		} else {
			assert.False(t, row.IsSet(1))
			assert.Nil(t, row.Field(1))
		}
	}
}

func TestQueryPairWildcardAndVariables(t *testing.T) {
	w, c := newTestWorld()

	apples := w.NamedEntity("Apples")
	pears := w.NamedEntity("Pears")
	e := w.Entity()
	w.Add(e, ecs.Pair(c.Likes, apples))
	w.Add(e, ecs.Pair(c.Likes, pears))

	wildcard := w.Query().With(ecs.Pair(c.Likes, ecs.Wildcard)).Build()
	assert.Equal(t, 2, wildcard.Count(), "one result per matching pair")

	byName := w.Query().WithPair(ecs.OperandId(c.Likes), ecs.OperandName("Pears")).Build()
	assert.Equal(t, []ecs.Id{e}, rowEntities(byName))

	q := w.Query().WithPair(ecs.OperandId(c.Likes), ecs.OperandVar("fruit")).Build()
	var liked []ecs.Id
	for row := range q.Iter() {
		liked = append(liked, row.Var("fruit"))
		assert.Equal(t, ecs.Pair(c.Likes, row.Var("fruit")), row.FieldId(0))
	}
	assert.ElementsMatch(t, []ecs.Id{apples, pears}, liked)
	assert.Equal(t, []string{ecs.This, "fruit"}, q.Vars())

	q.SetVar("fruit", apples)
	assert.Equal(t, 1, q.Count())
	q.SetVar("$fruit", 0)
	assert.Equal(t, 2, q.Count())

	assert.Panics(t, func() { q.SetVar("vegetable", apples) })
	assert.Panics(t, func() {
		w.Query().WithPair(ecs.OperandId(c.Likes), ecs.OperandName("Bananas")).Build()
	})
}

func TestQuerySourceVariable(t *testing.T) {
	w, c := newTestWorld()

	healthy := w.Entity()
	ecs.SetValue(w, healthy, c.Health, Health{Current: 10})
	frail := w.Entity()

	child := w.Entity()
	ecs.SetValue(w, child, c.Position, Position{})
	w.Add(child, ecs.Pair(ecs.ChildOf, healthy))
	orphan := w.Entity()
	ecs.SetValue(w, orphan, c.Position, Position{})
	w.Add(orphan, ecs.Pair(ecs.ChildOf, frail))

	q := w.Query().
		With(c.Position).
		WithPair(ecs.OperandId(ecs.ChildOf), ecs.OperandVar("parent")).
		With(c.Health).SrcVar("parent").
		Build()

	rows := 0
	for row := range q.Iter() {
		rows++
		assert.Equal(t, child, row.Entity())
		assert.Equal(t, healthy, row.Var("parent"))
		assert.Equal(t, healthy, row.Src(2))
		assert.Equal(t, 10, ecs.FieldValue[Health](row, 2).Current)
	}
	assert.Equal(t, 1, rows)
}

func TestQueryFixedSource(t *testing.T) {
	w, c := newTestWorld()

	boss := w.Entity()
	for range 3 {
		ecs.SetValue(w, w.Entity(), c.Position, Position{})
	}

	q := w.Query().With(c.Position).With(c.Health).Src(boss).Build()
	assert.Equal(t, 0, q.Count())

	ecs.SetValue(w, boss, c.Health, Health{Current: 1})
	assert.Equal(t, 3, q.Count())

	singleton := w.Query().With(c.Health).Src(boss).Build()
	assert.Equal(t, 1, singleton.Count())
	for row := range singleton.Iter() {
		assert.Equal(t, ecs.Id(0), row.Entity())
		assert.Equal(t, boss, row.Src(0))
	}
}

func TestQueryUpTraversal(t *testing.T) {
	w, c := newTestWorld()

	parent := w.Entity()
	ecs.SetValue(w, parent, c.Health, Health{Current: 50})
	child := w.Entity()
	ecs.SetValue(w, child, c.Position, Position{})
	w.Add(child, ecs.Pair(ecs.ChildOf, parent))
	grandchild := w.Entity()
	ecs.SetValue(w, grandchild, c.Position, Position{})
	w.Add(grandchild, ecs.Pair(ecs.ChildOf, child))

	q := w.Query().With(c.Position).With(c.Health).Up(ecs.ChildOf).Build()
	assert.ElementsMatch(t, []ecs.Id{child, grandchild}, rowEntities(q))
	for row := range q.Iter() {
		assert.Equal(t, parent, row.Src(1))
		assert.Equal(t, 50, ecs.FieldValue[Health](row, 1).Current)
	}
}

func TestQueryCascadeOrdersByDepth(t *testing.T) {
	w, c := newTestWorld()

	grandchild := w.Entity()
	ecs.SetValue(w, grandchild, c.Position, Position{})
	child := w.Entity()
	ecs.SetValue(w, child, c.Position, Position{})
	root := w.Entity()
	ecs.SetValue(w, root, c.Position, Position{})
	w.Add(grandchild, ecs.Pair(ecs.ChildOf, child))
	w.Add(child, ecs.Pair(ecs.ChildOf, root))

	q := w.Query().
		With(c.Position).
		With(c.Position).Cascade(ecs.ChildOf).Oper(ecs.Optional).
		Build()

	assert.Equal(t, []ecs.Id{root, child, grandchild}, rowEntities(q))
}

func TestQueryOrderBy(t *testing.T) {
	w, c := newTestWorld()

	for _, x := range []float32{3, 1, 2} {
		ecs.SetValue(w, w.Entity(), c.Position, Position{X: x})
	}

	q := w.Query().
		With(c.Position).
		OrderBy(c.Position, func(_ ecs.Id, a unsafe.Pointer, _ ecs.Id, b unsafe.Pointer) int {
			return cmp.Compare((*Position)(a).X, (*Position)(b).X)
		}).
		Build()

	var xs []float32
	for row := range q.Iter() {
		xs = append(xs, ecs.FieldValue[Position](row, 0).X)
	}
	assert.Equal(t, []float32{1, 2, 3}, xs)
}

func TestQueryGroupBy(t *testing.T) {
	w, c := newTestWorld()

	a := w.Entity()
	b := w.Entity()
	likesB := w.Entity()
	w.Add(likesB, ecs.Pair(c.Likes, b))
	likesA := w.Entity()
	w.Add(likesA, ecs.Pair(c.Likes, a))

	q := w.Query().With(ecs.Pair(c.Likes, ecs.Wildcard)).GroupBy(c.Likes, nil).Build()

	var groups []uint64
	var entities []ecs.Id
	for row := range q.Iter() {
		groups = append(groups, row.Group())
		entities = append(entities, row.Entity())
	}
	assert.Equal(t, []uint64{uint64(a.Index()), uint64(b.Index())}, groups)
	assert.Equal(t, []ecs.Id{likesA, likesB}, entities)
}

func TestQueryAndFrom(t *testing.T) {
	w, c := newTestWorld()

	kind := w.Entity()
	w.Add(kind, ecs.Prefab)
	w.Add(kind, c.Position)
	w.Add(kind, c.Velocity)

	full := w.Entity()
	w.Add(full, c.Position)
	w.Add(full, c.Velocity)
	partial := w.Entity()
	w.Add(partial, c.Position)

	assert.Equal(t, []ecs.Id{full}, rowEntities(w.Query().With(kind).Oper(ecs.AndFrom).Build()))
	assert.ElementsMatch(t, []ecs.Id{full, partial}, rowEntities(w.Query().With(kind).Oper(ecs.OrFrom).Build()))
}

func TestQueryExcludesPrefabs(t *testing.T) {
	w, c := newTestWorld()

	prefab := w.Entity()
	w.Add(prefab, ecs.Prefab)
	ecs.SetValue(w, prefab, c.Position, Position{})
	instance := w.Entity()
	ecs.SetValue(w, instance, c.Position, Position{})

	assert.Equal(t, []ecs.Id{instance}, rowEntities(w.Query().With(c.Position).Build()))
	assert.Equal(t, []ecs.Id{prefab}, rowEntities(w.Query().With(c.Position).With(ecs.Prefab).Build()))
}

func TestQueryMatchPrefabs(t *testing.T) {
	w, c := newTestWorld()

	prefab := w.Entity()
	w.Add(prefab, ecs.Prefab)
	ecs.SetValue(w, prefab, c.Position, Position{})
	instance := w.Entity()
	ecs.SetValue(w, instance, c.Position, Position{})

	q := w.Query().With(c.Position).MatchPrefabs().Build()
	assert.ElementsMatch(t, []ecs.Id{prefab, instance}, rowEntities(q))

	src := w.Query().With(c.Position).SrcVar("p").MatchPrefabs().Build()
	assert.Equal(t, 2, src.Count())
}

func TestQueryAllowUnresolved(t *testing.T) {
	w, c := newTestWorld()

	e := w.Entity()
	ecs.SetValue(w, e, c.Position, Position{})

	assert.Panics(t, func() { w.Query().With(c.Position).WithOperand(ecs.OperandName("Missing")).Build() })

	and := w.Query().With(c.Position).WithOperand(ecs.OperandName("Missing")).AllowUnresolved().Build()
	assert.Empty(t, rowEntities(and))

	not := w.Query().With(c.Position).WithOperand(ecs.OperandName("Missing")).Oper(ecs.Not).AllowUnresolved().Build()
	assert.Equal(t, []ecs.Id{e}, rowEntities(not))

	pair := w.Query().With(c.Position).WithPair(ecs.OperandId(c.Likes), ecs.OperandName("Missing")).Oper(ecs.Optional).AllowUnresolved().Build()
	require.Equal(t, []ecs.Id{e}, rowEntities(pair))
	for row := range pair.Iter() {
		assert.False(t, row.IsSet(1))
	}

	src := w.Query().With(c.Position).SrcName("Missing").AllowUnresolved().Build()
	assert.Zero(t, src.Count())

	// names are looked up once, when the query is built
	w.SetName(w.Entity(), "Missing")
	assert.Empty(t, rowEntities(and))
}

func TestQuerySingletonTerm(t *testing.T) {
	w := ecs.NewWorld()
	config := w.Component(ecs.ComponentFor[GameConfig]("GameConfig"))
	position := w.Component(ecs.ComponentFor[Position]("Position"))

	q := w.Query().With(config).Singleton().Build()
	assert.Zero(t, q.Count(), "the singleton does not exist yet")

	s := ecs.NewSingleton(w, config, GameConfig{Difficulty: 2})
	rows := 0
	for row := range q.Iter() {
		rows++
		assert.Zero(t, row.Entity())
		assert.Equal(t, config, row.Src(0))
		ecs.FieldValue[GameConfig](row, 0).Difficulty = 4
	}
	assert.Equal(t, 1, rows)
	assert.Equal(t, 4, s.Get().Difficulty)

	a, b := w.Entity(), w.Entity()
	ecs.SetValue(w, a, position, Position{})
	ecs.SetValue(w, b, position, Position{})
	mixed := w.Query().With(position).With(config).Singleton().Build()
	assert.ElementsMatch(t, []ecs.Id{a, b}, rowEntities(mixed))

	assert.Panics(t, func() { w.Query().WithOperand(ecs.OperandVar("x")).Singleton() })
}

func TestQueryChanged(t *testing.T) {
	w, c := newTestWorld()

	q := w.Query().With(c.Position).Build()
	e := w.Entity()
	ecs.SetValue(w, e, c.Position, Position{X: 1})

	assert.True(t, q.Changed())
	for range q.Iter() {
	}
	assert.False(t, q.Changed())

	ecs.SetValue(w, e, c.Position, Position{X: 1})
	assert.False(t, q.Changed(), "setting an equal value is not a change")

	ecs.SetValue(w, e, c.Position, Position{X: 2})
	assert.True(t, q.Changed())
	for range q.Iter() {
	}

	ecs.SetValue(w, e, c.Health, Health{Current: 1})
	w.Modified(e, c.Health)
	assert.True(t, q.Changed(), "entity moved to a new archetype")
	for range q.Iter() {
	}

	w.Modified(e, c.Health)
	assert.False(t, q.Changed(), "untracked column")
}

func TestQueryCacheSeesNewArchetypes(t *testing.T) {
	w, c := newTestWorld()

	q := w.Query().With(c.Position).Build()
	assert.Equal(t, 0, q.Count())
	assert.False(t, q.IsTrue())

	e := w.Entity()
	ecs.SetValue(w, e, c.Position, Position{})
	w.Add(e, c.Enemy)

	assert.Equal(t, 1, q.Count())
	assert.True(t, q.IsTrue())
}

func TestQueryBuilderContract(t *testing.T) {
	w, c := newTestWorld()

	assert.Panics(t, func() { w.Query().Build() })
	assert.Panics(t, func() { w.Query().Oper(ecs.Not) })
	assert.Panics(t, func() { w.Query().Up(ecs.ChildOf) })

	b := w.Query().With(c.Position)
	b.Build()
	assert.Panics(t, func() { b.With(c.Velocity) })
	assert.Panics(t, func() { b.Build() })
}

func TestQueryBindThis(t *testing.T) {
	w, c := newTestWorld()

	a := w.Entity()
	ecs.SetValue(w, a, c.Position, Position{})
	b := w.Entity()
	ecs.SetValue(w, b, c.Position, Position{})

	q := w.Query().With(c.Position).Build()
	q.SetVar(ecs.This, b)
	assert.Equal(t, []ecs.Id{b}, rowEntities(q))
}
