package ecs_test

import (
	"testing"

	"github.com/plus3/reflecs/ecs"
)

func BenchmarkEntity(b *testing.B) {
	w, c := newTestWorld()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e := w.Entity()
		ecs.SetValue(w, e, c.Position, Position{X: 1.0, Y: 2.0})
		ecs.SetValue(w, e, c.Velocity, Velocity{DX: 0.5, DY: 0.5})
	}
}

func BenchmarkDelete(b *testing.B) {
	w, c := newTestWorld()

	ids := make([]ecs.Id, b.N)
	for i := 0; i < b.N; i++ {
		ids[i] = w.Entity()
		ecs.SetValue(w, ids[i], c.Position, Position{X: 1.0, Y: 2.0})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Delete(ids[i])
	}
}

func BenchmarkGet(b *testing.B) {
	w, c := newTestWorld()

	e := w.Entity()
	ecs.SetValue(w, e, c.Position, Position{X: 1.0, Y: 2.0})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ecs.GetValue[Position](w, e, c.Position)
	}
}

func BenchmarkAddRemoveTag(b *testing.B) {
	w, c := newTestWorld()

	e := w.Entity()
	ecs.SetValue(w, e, c.Position, Position{X: 1.0, Y: 2.0})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Add(e, c.Player)
		w.Remove(e, c.Player)
	}
}

func BenchmarkQueryIter(b *testing.B) {
	w, c := newTestWorld()
	for i := 0; i < 1000; i++ {
		e := w.Entity()
		ecs.SetValue(w, e, c.Position, Position{X: float32(i)})
		if i%2 == 0 {
			ecs.SetValue(w, e, c.Velocity, Velocity{DX: 1})
		}
	}
	q := w.Query().With(c.Position).With(c.Velocity).Build()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for row := range q.Iter() {
			pos := ecs.FieldValue[Position](row, 0)
			vel := ecs.FieldValue[Velocity](row, 1)
			pos.X += vel.DX
		}
	}
}
