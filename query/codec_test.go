package query_test

import (
	"strings"
	"testing"

	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/entity"
	"github.com/plus3/reflecs/query"
	"github.com/plus3/reflecs/refl"
	"github.com/plus3/reflecs/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLibrary() *query.Library {
	lib := query.NewLibrary(refl.NewCatalog(
		refl.StructOf[Position](),
		refl.StructOf[Velocity](),
		refl.StructOf[Health](),
		colorType,
	))
	lib.AddCustom("movers", func(qb *ecs.QueryBuilder, reg *registry.Registry) {
		qb.With(reg.Resolve(refl.StructOf[Position]()))
		qb.With(reg.Resolve(refl.StructOf[Velocity]()))
	})
	lib.AddOrderBy("x", byPositionX)
	return lib
}

func TestCodecRoundTrip(t *testing.T) {
	lib := testLibrary()

	b := query.NewBuilder().DetectChanges()
	b.With(lib.Custom("movers"))
	health := b.Without(query.ByStruct(refl.StructOf[Health]()))
	b.InOut(health, ecs.InOutFilter)
	b.With(query.ByPair(query.ByName("Team"), query.Var("team")))
	b.With(query.ByEnumConstant(colorType, int64(Blue)))
	parent := b.With(query.ByStruct(refl.StructOf[Position]()))
	b.Up(parent, query.ByID(ecs.ChildOf)).Oper(parent, ecs.Optional)
	b.OrderByNamed(lib, query.ByStruct(refl.StructOf[Position]()), "x")
	b.Singleton(b.With(query.ByStruct(refl.StructOf[Health]())))
	b.Flags(query.MatchPrefabs | query.AllowUnresolvedByName)

	data, err := query.Marshal(b.Spec())
	require.NoError(t, err)

	decoded, err := query.Unmarshal(data, lib)
	require.NoError(t, err)
	require.Len(t, decoded.Terms, len(b.Spec().Terms))
	assert.True(t, decoded.DetectChanges)
	assert.Equal(t, query.MatchPrefabs|query.AllowUnresolvedByName, decoded.Flags)
	assert.Equal(t, query.SourceSingleton, decoded.Terms[len(decoded.Terms)-1].Source.Kind)
	assert.Contains(t, string(data), "singleton: true")
	assert.Contains(t, string(data), "- match_prefabs")
	assert.Equal(t, query.StateAccumulating, decoded.State())

	for i, term := range b.Spec().Terms {
		assert.Equal(t, term.String(), decoded.Terms[i].String(), "term %d", i)
	}
	require.Len(t, decoded.Expressions, 1)
	assert.Equal(t, "x", decoded.Expressions[0].Callback)
	assert.NotNil(t, decoded.Expressions[0].Compare)

	again, err := query.Marshal(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestDecodedSpecBuilds(t *testing.T) {
	reg := registry.New(ecs.NewWorld())
	for _, x := range []float32{2, 1} {
		e := entity.Spawn(reg)
		entity.Set(e, Position{X: x})
		entity.Set(e, Velocity{})
	}
	entity.Set(entity.Spawn(reg), Position{})

	doc := `
terms:
  - kind: custom
    name: movers
expressions:
  - kind: order_by
    input: {kind: struct, type: query_test.Position}
    callback: x
`
	s, err := query.Decode(strings.NewReader(doc), testLibrary())
	require.NoError(t, err)

	c := s.Build(reg)
	var xs []float32
	for row := range c.Iter() {
		xs = append(xs, query.FieldValue[Position](c, row, 0).X)
	}
	assert.Equal(t, []float32{1, 2}, xs)
}

func TestDecodeJSON(t *testing.T) {
	doc := `{"terms": [` +
		`{"kind": "struct", "type": "query_test.Position", "inout": "in"}, ` +
		`{"kind": "pair", "first": {"kind": "name", "name": "Likes"}, "second": {"kind": "string", "name": "$who"}, "oper": "optional"}` +
		`]}`

	s, err := query.Unmarshal([]byte(doc), testLibrary())
	require.NoError(t, err)
	require.Len(t, s.Terms, 2)
	assert.Equal(t, ecs.In, s.Terms[0].InOut)
	assert.Same(t, refl.StructOf[Position](), s.Terms[0].Input.Type)
	assert.Equal(t, ecs.Optional, s.Terms[1].Oper)
	assert.True(t, s.Terms[1].Input.Second.IsVar())
}

func TestDecodeErrors(t *testing.T) {
	lib := testLibrary()
	cases := []struct {
		name string
		doc  string
		err  error
	}{
		{"unknown type", `terms: [{kind: struct, type: query_test.Missing}]`, query.ErrUnknownType},
		{"unknown custom", `terms: [{kind: custom, name: flyers}]`, query.ErrUnknownCallback},
		{"unknown comparator", `
terms: [{kind: struct, type: query_test.Position}]
expressions: [{kind: order_by, input: {kind: struct, type: query_test.Position}, callback: y}]`, query.ErrUnknownCallback},
		{"unknown kind", `terms: [{kind: tuple}]`, query.ErrInvalidDocument},
		{"unknown oper", `terms: [{kind: id, id: 1, oper: xor}]`, query.ErrInvalidDocument},
		{"half pair", `terms: [{kind: pair, first: {kind: id, id: 1}}]`, query.ErrInvalidDocument},
		{"bad traversal", `terms: [{kind: id, id: 1, trav: {kind: down}}]`, query.ErrInvalidDocument},
		{"unknown flag", `{terms: [{kind: id, id: 1}], flags: [match_everything]}`, query.ErrInvalidDocument},
		{"singleton with path", `terms: [{kind: id, id: 1, src: {singleton: true, path: A}}]`, query.ErrInvalidDocument},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := query.Unmarshal([]byte(tc.doc), lib)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	_, err := query.Unmarshal([]byte(`terms: [{kind: id, id: 1, colour: red}]`), lib)
	assert.Error(t, err, "unknown fields are rejected")
}

func TestEncodeErrors(t *testing.T) {
	anonymous := query.NewBuilder()
	anonymous.With(query.ByCustom("", func(*ecs.QueryBuilder, *registry.Registry) {}))
	_, err := query.Marshal(anonymous.Spec())
	assert.ErrorIs(t, err, query.ErrUnknownCallback)

	unnamed := query.NewBuilder()
	position := query.ByStruct(refl.StructOf[Position]())
	unnamed.With(position)
	unnamed.OrderBy(position, byPositionX)
	_, err = query.Marshal(unnamed.Spec())
	assert.ErrorIs(t, err, query.ErrUnknownCallback)
}
