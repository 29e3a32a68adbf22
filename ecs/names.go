package ecs

import (
	"fmt"
	"strings"
)

// PathSeparator separates the segments of a hierarchical entity path
const PathSeparator = "::"

// SetName names an entity. Named entities whose ancestors are all named can be
// found by their path with Lookup. While the world is deferred the name is
// queued with the structural operations, so it is applied after a pending
// reparent of the same entity.
func (w *World) SetName(e Id, name string) {
	if strings.Contains(name, PathSeparator) {
		panic(fmt.Sprintf("ecs: entity name %q contains %q", name, PathSeparator))
	}
	rec := w.mustRecord(e, "SetName")
	if w.deferDepth > 0 {
		w.commands.deferFn(func() {
			if rec, ok := w.record(e); ok {
				w.setName(rec, name)
			}
		})
		return
	}
	w.setName(rec, name)
}

func (w *World) setName(rec *entityRecord, name string) {
	rec.name = name
	w.repath(rec)
}

// Name returns the name of an entity, or an empty string
func (w *World) Name(e Id) string {
	rec, ok := w.record(e)
	if !ok {
		return ""
	}
	return rec.name
}

// Path returns the full path of an entity, or an empty string when the entity
// or one of its ancestors is unnamed
func (w *World) Path(e Id) string {
	rec, ok := w.record(e)
	if !ok {
		return ""
	}
	return rec.path
}

// Lookup finds an entity by its full path
func (w *World) Lookup(path string) (Id, bool) {
	id, ok := w.names[path]
	return id, ok
}

// LookupChild finds a direct child of parent by name
func (w *World) LookupChild(parent Id, name string) (Id, bool) {
	for _, child := range w.Children(parent) {
		if w.Name(child) == name {
			return child, true
		}
	}
	return 0, false
}

// NamedEntity returns the entity with the given path, creating it and any
// missing ancestors.
func (w *World) NamedEntity(path string) Id {
	if id, ok := w.names[path]; ok {
		return id
	}

	var parent Id
	w.DeferSuspend(func() {
		segments := strings.Split(path, PathSeparator)
		for i, segment := range segments {
			if segment == "" {
				panic(fmt.Sprintf("ecs: invalid entity path %q", path))
			}
			current := strings.Join(segments[:i+1], PathSeparator)
			if id, ok := w.names[current]; ok {
				parent = id
				continue
			}

			e := w.Entity()
			if parent != 0 {
				w.Add(e, Pair(ChildOf, parent))
			}
			w.SetName(e, segment)
			parent = e
		}
	})
	return parent
}

// repath recomputes the registered path of a named entity and its descendants
func (w *World) repath(rec *entityRecord) {
	if rec.path != "" && w.names[rec.path] == rec.id {
		delete(w.names, rec.path)
	}
	rec.path = ""
	if rec.name == "" {
		return
	}

	path := rec.name
	if parent := w.Parent(rec.id); parent != 0 {
		parentPath := w.Path(parent)
		if parentPath == "" {
			// scoped to an unnamed parent, reachable through LookupChild only
			w.repathChildren(rec.id)
			return
		}
		path = parentPath + PathSeparator + rec.name
	}

	if existing, ok := w.names[path]; ok && existing != rec.id {
		panic(fmt.Sprintf("ecs: entity path %q already names %s", path, existing))
	}
	w.names[path] = rec.id
	rec.path = path
	w.repathChildren(rec.id)
}

func (w *World) repathChildren(e Id) {
	for _, child := range w.Children(e) {
		if rec, ok := w.record(child); ok && rec.name != "" {
			w.repath(rec)
		}
	}
}
