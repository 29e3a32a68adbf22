package refl_test

import (
	"reflect"
	"testing"
	"unsafe"

	"github.com/plus3/reflecs/refl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Vec2 struct {
	X, Y float32
}

type Unit struct {
	Name     refl.Name
	Title    string
	Level    int32
	Alive    bool
	Position Vec2
	Target   *Unit
	Tags     []string
}

type Marker struct{}

type Color uint8

const (
	Red Color = iota
	Green
	Blue
)

type Shape interface {
	Area() float64
}

type Circle struct {
	Radius float64
}

func (c *Circle) Area() float64 {
	return 3 * c.Radius * c.Radius
}

type Pool struct {
	Capacity int
	Items    []int
	closed   *bool
}

func (p *Pool) Init() {
	p.Capacity = 8
	p.Items = make([]int, 0, p.Capacity)
}

func (p *Pool) Destroy() {
	if p.closed != nil {
		*p.closed = true
	}
}

func TestStructOfIsCached(t *testing.T) {
	a := refl.StructOf[Vec2]()
	b := refl.TypeOf(reflect.TypeFor[Vec2]())

	assert.Same(t, a, b)
	assert.Equal(t, refl.KindStruct, a.Kind())
	assert.Equal(t, "refl_test.Vec2", a.Name())
	assert.Equal(t, uintptr(8), a.Size())
	assert.Equal(t, uintptr(4), a.Align())
}

func TestMembers(t *testing.T) {
	unit := refl.StructOf[Unit]()

	kinds := make(map[string]refl.MemberKind)
	for _, m := range unit.Members() {
		kinds[m.Name] = m.Kind
	}
	assert.Equal(t, map[string]refl.MemberKind{
		"Name":     refl.MemberName,
		"Title":    refl.MemberString,
		"Level":    refl.MemberInt32,
		"Alive":    refl.MemberBool,
		"Position": refl.MemberStruct,
		"Target":   refl.MemberObjectRef,
		"Tags":     refl.MemberUnsupported,
	}, kinds)

	position := unit.Members()[4]
	assert.Same(t, refl.StructOf[Vec2](), position.Type)
	assert.Equal(t, reflect.TypeFor[Unit]().Field(4).Offset, position.Offset)
}

func TestEmptyStruct(t *testing.T) {
	marker := refl.StructOf[Marker]()

	assert.Equal(t, uintptr(0), marker.Size())
	assert.Empty(t, marker.Members())
}

func TestEnumOf(t *testing.T) {
	color := refl.EnumOf[Color](
		refl.Enum("Red", Red),
		refl.Enum("Green", Green),
		refl.Enum("Blue", Blue),
	)

	assert.Equal(t, refl.KindEnum, color.Kind())
	assert.Same(t, color, refl.EnumOf[Color]())
	assert.Same(t, color, refl.For[Color]())
	assert.Len(t, color.Enumerators(), 3)

	green, ok := color.Enumerator(1)
	require.True(t, ok)
	assert.Equal(t, "Green", green.Name)
}

func TestClassOf(t *testing.T) {
	shape := refl.ClassOf[Shape]()
	assert.True(t, shape.Abstract())
	assert.Equal(t, refl.KindClass, shape.Kind())

	circle := refl.ClassOf[*Circle]()
	assert.False(t, circle.Abstract())
	assert.Equal(t, "refl_test.Circle", circle.Name())

	assert.Panics(t, func() { refl.ClassOf[int]() })
	assert.Panics(t, func() { circle.New() })
}

func TestTypeOfRejectsNonStructs(t *testing.T) {
	assert.Panics(t, func() { refl.TypeOf(reflect.TypeFor[int]()) })
	assert.Panics(t, func() { refl.For[map[string]int]() })
}

func TestConstructAndDestroy(t *testing.T) {
	pool := refl.StructOf[Pool]()

	ptr := pool.New()
	pool.Construct(ptr)
	p := (*Pool)(ptr)
	assert.Equal(t, 8, p.Capacity)
	assert.NotNil(t, p.Items)

	closed := false
	p.closed = &closed
	pool.Destroy(ptr)
	assert.True(t, closed)
	assert.Equal(t, Pool{}, *p)
}

func TestCopyMoveEquals(t *testing.T) {
	unit := refl.StructOf[Unit]()

	src := &Unit{Title: "knight", Level: 3, Tags: []string{"melee"}}
	dst := &Unit{}
	unit.Copy(unsafe.Pointer(dst), unsafe.Pointer(src))
	assert.True(t, unit.Equals(unsafe.Pointer(dst), unsafe.Pointer(src)))

	moved := &Unit{}
	unit.Move(unsafe.Pointer(moved), unsafe.Pointer(src))
	assert.Equal(t, "knight", moved.Title)
	assert.Equal(t, Unit{}, *src)
	assert.False(t, unit.Equals(unsafe.Pointer(moved), unsafe.Pointer(src)))
}

func TestValue(t *testing.T) {
	v := refl.ValueOf(Vec2{X: 1, Y: 2})
	require.True(t, v.IsValid())
	assert.Same(t, refl.StructOf[Vec2](), v.Type())
	assert.Equal(t, Vec2{X: 1, Y: 2}, v.Interface())

	clone := v.Clone()
	refl.As[Vec2](clone).X = 10
	assert.Equal(t, float32(1), refl.As[Vec2](v).X)
	assert.False(t, v.Equal(clone))

	assert.Panics(t, func() { refl.As[Unit](v) })
}

func TestValueFromBytes(t *testing.T) {
	vec := refl.StructOf[Vec2]()
	source := Vec2{X: 3, Y: 4}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&source)), unsafe.Sizeof(source))

	v := refl.ValueFromBytes(vec, raw)
	assert.True(t, v.IsBuffer())
	assert.Equal(t, source, *refl.As[Vec2](v))

	clone := v.Clone()
	assert.True(t, clone.Equal(v))

	assert.Panics(t, func() { refl.ValueFromBytes(refl.StructOf[Unit](), nil) })
	assert.Panics(t, func() { refl.ValueFromBytes(vec, raw[:3]) })
}

func TestNewValueConstructs(t *testing.T) {
	v := refl.NewValue(refl.StructOf[Pool]())
	assert.Equal(t, 8, refl.As[Pool](v).Capacity)

	v.Destroy()
	assert.False(t, v.IsValid())
}

func TestCatalog(t *testing.T) {
	catalog := refl.NewCatalog(refl.StructOf[Vec2](), refl.StructOf[Unit]())

	found, ok := catalog.Lookup("refl_test.Vec2")
	require.True(t, ok)
	assert.Same(t, refl.StructOf[Vec2](), found)
	assert.Equal(t, []string{"refl_test.Unit", "refl_test.Vec2"}, catalog.Names())

	_, ok = catalog.Lookup("refl_test.Missing")
	assert.False(t, ok)
	assert.Panics(t, func() { catalog.Add(nil) })
}
