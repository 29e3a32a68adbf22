package ecs

import (
	"encoding/binary"
	"iter"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Archetype represents a unique combination of ids. Every entity lives in exactly
// one archetype; rows are dense and removals swap the last row into the gap.
type Archetype struct {
	id       uint32
	hash     uint64
	ids      []Id
	columns  []*column
	entities []Id

	// structTick is bumped whenever an entity enters or leaves the archetype
	structTick uint64

	addEdges    map[Id]*Archetype
	removeEdges map[Id]*Archetype
}

func newArchetype(w *World, id uint32, ids []Id, hash uint64) *Archetype {
	a := &Archetype{
		id:          id,
		hash:        hash,
		ids:         ids,
		columns:     make([]*column, len(ids)),
		addEdges:    make(map[Id]*Archetype),
		removeEdges: make(map[Id]*Archetype),
	}

	for idx, typ := range ids {
		if info := w.storageInfo(typ); info != nil && !info.IsTag() {
			a.columns[idx] = newColumn(info)
		}
	}

	return a
}

// ID returns the archetype's unique identifier
func (a *Archetype) ID() uint32 {
	return a.id
}

// Ids returns the sorted ids of this archetype
func (a *Archetype) Ids() []Id {
	return a.ids
}

// Count returns the number of entities stored in the archetype
func (a *Archetype) Count() int {
	return len(a.entities)
}

// Entities returns the entities of the archetype in row order
func (a *Archetype) Entities() []Id {
	return a.entities
}

// Has checks if this archetype has exactly the given id
func (a *Archetype) Has(id Id) bool {
	return a.indexOf(id) != -1
}

func (a *Archetype) indexOf(id Id) int {
	idx, found := slices.BinarySearch(a.ids, id)
	if !found {
		return -1
	}
	return idx
}

// Match returns every id of the archetype matching a pattern. Patterns may hold
// Wildcard or Any on either side of a pair.
func (a *Archetype) Match(pattern Id) iter.Seq[Id] {
	return func(yield func(Id) bool) {
		if !pattern.IsWildcard() {
			if a.Has(pattern) {
				yield(pattern)
			}
			return
		}

		for _, id := range a.ids {
			if matchId(pattern, id) && !yield(id) {
				return
			}
		}
	}
}

// HasMatch reports whether any id of the archetype matches the pattern
func (a *Archetype) HasMatch(pattern Id) bool {
	for range a.Match(pattern) {
		return true
	}
	return false
}

func matchId(pattern, id Id) bool {
	if !pattern.IsPair() {
		if isWildcardIndex(pattern.Index()) {
			return !id.IsPair()
		}
		return !id.IsPair() && pattern.Index() == id.Index()
	}

	if !id.IsPair() {
		return false
	}

	first, second := pattern.First().Index(), pattern.Second().Index()
	if !isWildcardIndex(first) && first != id.First().Index() {
		return false
	}
	if !isWildcardIndex(second) && second != id.Second().Index() {
		return false
	}
	return true
}

func (a *Archetype) column(id Id) *column {
	idx := a.indexOf(id)
	if idx == -1 {
		return nil
	}
	return a.columns[idx]
}

func (a *Archetype) append(entity Id) int {
	a.entities = append(a.entities, entity)
	return len(a.entities) - 1
}

// removeRow swaps the last row into row. The entity that moved is returned, or
// zero if row was the last one.
func (a *Archetype) removeRow(row int) Id {
	last := len(a.entities) - 1
	moved := Id(0)
	if row != last {
		moved = a.entities[last]
	}
	a.entities[row] = a.entities[last]
	a.entities = a.entities[:last]
	for _, col := range a.columns {
		if col != nil {
			col.swapRemove(row)
		}
	}
	return moved
}

// hashIds generates a 64-bit hash for a sorted slice of ids
func hashIds(ids []Id) uint64 {
	digest := xxhash.New()
	var buf [8]byte
	for _, id := range ids {
		binary.LittleEndian.PutUint64(buf[:], uint64(id))
		_, _ = digest.Write(buf[:])
	}
	return digest.Sum64()
}
