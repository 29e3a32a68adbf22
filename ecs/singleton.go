package ecs

import "fmt"

// Singleton provides typed access to a component stored on its own entity.
// Use this for global state or configuration that belongs to the world rather
// than to any particular entity.
type Singleton[T any] struct {
	world     *World
	component Id
}

// NewSingleton creates a Singleton accessor for a data-carrying component.
// If the singleton does not exist yet it is created with the initializer
// value, or the zero value.
func NewSingleton[T any](w *World, component Id, initializer ...T) *Singleton[T] {
	info := w.TypeInfo(component)
	if info == nil {
		panic(fmt.Sprintf("ecs: singleton %s carries no data", w.Describe(component)))
	}

	if !w.Has(component, component) {
		var value T
		if len(initializer) > 0 {
			value = initializer[0]
		}
		w.DeferSuspend(func() {
			SetValue(w, component, component, value)
		})
	}

	return &Singleton[T]{world: w, component: component}
}

// Get returns a pointer to the singleton value, or nil if it was removed
func (s *Singleton[T]) Get() *T {
	return GetValue[T](s.world, s.component, s.component)
}

// Set replaces the singleton value
func (s *Singleton[T]) Set(value T) {
	SetValue(s.world, s.component, s.component, value)
}

// Exists returns true if the singleton value is present
func (s *Singleton[T]) Exists() bool {
	return s.world.Has(s.component, s.component)
}
