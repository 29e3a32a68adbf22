package ecs_test

import (
	"unsafe"

	"github.com/plus3/reflecs/ecs"
)

// Common test component types
type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

type Health struct {
	Current int
	Max     int
}

type Label struct {
	Value string
}

type testComponents struct {
	Position ecs.Id
	Velocity ecs.Id
	Health   ecs.Id
	Label    ecs.Id
	Player   ecs.Id
	Enemy    ecs.Id
	Likes    ecs.Id
}

func newTestWorld() (*ecs.World, testComponents) {
	w := ecs.NewWorld()
	c := testComponents{
		Position: w.Component(ecs.ComponentFor[Position]("Position")),
		Velocity: w.Component(ecs.ComponentFor[Velocity]("Velocity")),
		Health:   w.Component(ecs.ComponentFor[Health]("Health")),
		Label:    w.Component(ecs.ComponentFor[Label]("Label")),
		Player:   w.Component(ecs.ComponentDesc{Name: "Player"}),
		Enemy:    w.Component(ecs.ComponentDesc{Name: "Enemy"}),
		Likes:    w.Component(ecs.ComponentDesc{Name: "Likes"}),
	}
	return w, c
}

// hookCounts records how often each hook ran
type hookCounts struct {
	Ctor, Dtor, Copy, Move, Equals int
}

// countingComponent wraps the hooks of T and counts every invocation
func countingComponent[T comparable](name string, counts *hookCounts) ecs.ComponentDesc {
	desc := ecs.ComponentFor[T](name)
	base := *desc.Hooks
	desc.Hooks = &ecs.Hooks{
		Alloc: base.Alloc,
		Ctor: func(ptr unsafe.Pointer) {
			counts.Ctor++
		},
		Dtor: func(ptr unsafe.Pointer) {
			counts.Dtor++
		},
		Copy: func(dst, src unsafe.Pointer) {
			counts.Copy++
			base.Copy(dst, src)
		},
		Move: func(dst, src unsafe.Pointer) {
			counts.Move++
			base.Move(dst, src)
		},
		Equals: func(a, b unsafe.Pointer) bool {
			counts.Equals++
			return base.Equals(a, b)
		},
	}
	return desc
}
