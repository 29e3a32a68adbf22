package ecs

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"unsafe"
)

const maxTraversalDepth = 256

// Query is a compiled set of terms. Matching archetypes are cached and the cache
// is rebuilt whenever the world creates new archetypes.
type Query struct {
	world *World
	terms []compiledTerm
	vars  []string
	bound []Id

	orderBy Id
	cmp     OrderByFunc
	groupBy Id
	groupFn GroupByFunc
	cascade int

	hasThis         bool
	matchPrefab     bool
	allowUnresolved bool

	cachedArchetypes   []*Archetype
	lastArchetypeCount int
	lastSeen           uint64
}

type compiledTerm struct {
	Term
	first, second Id
	firstVar      int
	secondVar     int
	srcVar        int
	src           Id
	pair          bool
	chainEnd      int
	chained       bool

	// unresolved terms name an entity that did not exist at build time and
	// never match
	unresolved bool
}

func newQuery(b *QueryBuilder) *Query {
	q := &Query{
		world:              b.world,
		vars:               []string{This},
		orderBy:            b.orderBy,
		cmp:                b.cmp,
		groupBy:            b.groupBy,
		groupFn:            b.groupFn,
		cascade:            -1,
		lastArchetypeCount: -1,
		matchPrefab:        b.matchPrefab,
		allowUnresolved:    b.allowUnresolved,
	}
	if q.groupBy != 0 && q.groupFn == nil {
		q.groupFn = DefaultGroupBy
	}

	q.terms = make([]compiledTerm, len(b.terms))
	for i, term := range b.terms {
		ct := compiledTerm{Term: term, firstVar: -1, secondVar: -1, srcVar: -1, chainEnd: i}
		ct.first, ct.firstVar = q.resolve(term.First, i)
		ct.unresolved = ct.first == 0 && ct.firstVar == -1
		if term.IsPair() {
			ct.pair = true
			ct.second, ct.secondVar = q.resolve(term.Second, i)
			ct.unresolved = ct.unresolved || (ct.second == 0 && ct.secondVar == -1)
		}

		switch {
		case term.Src.IsVar():
			ct.srcVar = q.declare(term.Src.VarName())
			if ct.srcVar == 0 {
				ct.srcVar = -1
				q.hasThis = true
			}
		case !term.Src.IsZero():
			src, _ := q.resolve(term.Src, i)
			ct.src = src
			ct.unresolved = ct.unresolved || src == 0
		default:
			q.hasThis = true
		}

		if (term.Oper == AndFrom || term.Oper == OrFrom) && !ct.unresolved {
			if ct.pair || ct.firstVar != -1 {
				panic(fmt.Sprintf("ecs: term %d: %s requires a plain entity", i, term.Oper))
			}
		}
		if term.Cascade && q.cascade == -1 {
			q.cascade = i
		}
		if ct.first.SameEntity(Prefab) || (ct.pair && ct.second.SameEntity(Prefab)) {
			q.matchPrefab = true
		}
		q.terms[i] = ct
	}

	for i := 0; i < len(q.terms); i++ {
		if q.terms[i].Oper != Or {
			continue
		}
		end := i
		for end < len(q.terms)-1 && q.terms[end].Oper == Or {
			end++
		}
		q.terms[i].chainEnd = end
		for j := i + 1; j <= end; j++ {
			q.terms[j].chained = true
		}
		i = end
	}

	q.bound = make([]Id, len(q.vars))
	return q
}

// resolve turns an operand into an id or a variable slot
func (q *Query) resolve(o Operand, term int) (Id, int) {
	if o.IsVar() {
		slot := q.declare(o.VarName())
		if slot == 0 {
			// $this inside an id behaves as a regular variable bound to the iterated entity
			return 0, 0
		}
		return 0, slot
	}
	if name, ok := o.Name(); ok {
		id, found := q.world.Lookup(name)
		if !found {
			if q.allowUnresolved {
				return 0, -1
			}
			panic(fmt.Sprintf("ecs: query term %d references unknown entity %q", term, name))
		}
		return id, -1
	}
	if o.Id == 0 {
		panic(fmt.Sprintf("ecs: query term %d has an empty operand", term))
	}
	return o.Id, -1
}

func (q *Query) declare(name string) int {
	if idx := slices.Index(q.vars, name); idx != -1 {
		return idx
	}
	q.vars = append(q.vars, name)
	return len(q.vars) - 1
}

// World returns the world the query runs on
func (q *Query) World() *World {
	return q.world
}

// Terms returns the terms the query was built from
func (q *Query) Terms() []Term {
	terms := make([]Term, len(q.terms))
	for i, t := range q.terms {
		terms[i] = t.Term
	}
	return terms
}

// Fields returns the id of every field in term order. Variables appear as Wildcard.
func (q *Query) Fields() []Id {
	fields := make([]Id, len(q.terms))
	for i := range q.terms {
		fields[i] = q.terms[i].pattern(nil)
	}
	return fields
}

// Vars returns the declared variable names, starting with This
func (q *Query) Vars() []string {
	return q.vars
}

// SetVar binds a variable to an entity for subsequent iterations. Binding zero
// unbinds it. Panics when the query does not declare the variable.
func (q *Query) SetVar(name string, e Id) {
	idx := slices.Index(q.vars, trimVar(name))
	if idx == -1 {
		panic(fmt.Sprintf("ecs: query has no variable %q", name))
	}
	q.bound[idx] = e
}

// HasVar reports whether the query declares a variable
func (q *Query) HasVar(name string) bool {
	return slices.Contains(q.vars, trimVar(name))
}

func trimVar(name string) string {
	if len(name) > 0 && name[:1] == VarPrefix {
		return name[1:]
	}
	return name
}

// pattern builds the id of a term from the current variable bindings. Unbound
// variables become Wildcard.
func (t *compiledTerm) pattern(vars []Id) Id {
	first := t.first
	if t.firstVar != -1 {
		first = boundOr(vars, t.firstVar)
	}
	if !t.pair {
		return first
	}
	second := t.second
	if t.secondVar != -1 {
		second = boundOr(vars, t.secondVar)
	}
	return Pair(first, second)
}

func boundOr(vars []Id, slot int) Id {
	if slot < len(vars) && vars[slot] != 0 {
		return vars[slot]
	}
	return Wildcard
}

func (q *Query) invalidateIfNeeded() {
	currentCount := len(q.world.archetypeList)
	if currentCount != q.lastArchetypeCount {
		q.cachedArchetypes = nil
		q.lastArchetypeCount = currentCount
	}
}

func (q *Query) ensureArchetypeCache() {
	if q.cachedArchetypes != nil {
		return
	}

	q.cachedArchetypes = make([]*Archetype, 0)
	for _, archetype := range q.world.archetypeList {
		if q.matchesArchetype(archetype) {
			q.cachedArchetypes = append(q.cachedArchetypes, archetype)
		}
	}
}

// matchesArchetype filters on the terms that only depend on the iterated
// entity's own ids. The remaining terms are evaluated per entity.
func (q *Query) matchesArchetype(a *Archetype) bool {
	if !q.matchPrefab && a.Has(Prefab) {
		return false
	}
	for i := range q.terms {
		t := &q.terms[i]
		if !t.Src.IsZero() && !(t.Src.IsVar() && t.Src.VarName() == This) {
			continue
		}
		if t.Trav != 0 || t.chained || t.firstVar == 0 || t.secondVar == 0 {
			continue
		}
		if t.unresolved {
			if t.Oper == And {
				return false
			}
			continue
		}
		switch t.Oper {
		case And:
			if !a.HasMatch(t.pattern(nil)) {
				return false
			}
		case Not:
			if t.firstVar == -1 && t.secondVar == -1 && a.HasMatch(t.pattern(nil)) {
				return false
			}
		}
	}
	return true
}

type matchState struct {
	vars []Id
	ids  []Id
	srcs []Id
	set  []bool
}

func (q *Query) newState() *matchState {
	st := &matchState{
		vars: make([]Id, len(q.vars)),
		ids:  make([]Id, len(q.terms)),
		srcs: make([]Id, len(q.terms)),
		set:  make([]bool, len(q.terms)),
	}
	copy(st.vars, q.bound)
	return st
}

// eval matches terms from i onwards, calling yield for every complete result.
// It returns false once yield asks to stop.
func (q *Query) eval(i int, st *matchState, yield func(*matchState) bool) bool {
	if i == len(q.terms) {
		return yield(st)
	}

	t := &q.terms[i]
	if t.Oper == Or {
		return q.evalChain(i, st, yield)
	}

	return q.forSource(t, st, func(src Id) bool {
		switch t.Oper {
		case Not:
			if q.matchOne(t, src, st, func(Id, Id) bool { return false }) {
				return true
			}
			st.ids[i], st.srcs[i], st.set[i] = t.pattern(st.vars), src, false
			return q.eval(i+1, st, yield)

		case Optional:
			matched := false
			cont := true
			q.matchOne(t, src, st, func(id, holder Id) bool {
				matched = true
				cont = q.bindAndEval(i, t, id, holder, st, yield)
				return false
			})
			if matched {
				return cont
			}
			st.ids[i], st.srcs[i], st.set[i] = t.pattern(st.vars), src, false
			return q.eval(i+1, st, yield)

		case AndFrom, OrFrom:
			if !q.matchFrom(t, src) {
				return true
			}
			st.ids[i], st.srcs[i], st.set[i] = t.first, src, true
			return q.eval(i+1, st, yield)

		default:
			cont := true
			q.matchOne(t, src, st, func(id, holder Id) bool {
				cont = q.bindAndEval(i, t, id, holder, st, yield)
				return cont
			})
			return cont
		}
	})
}

// evalChain matches the first alternative of an Or chain that holds
func (q *Query) evalChain(start int, st *matchState, yield func(*matchState) bool) bool {
	end := q.terms[start].chainEnd
	for i := start; i <= end; i++ {
		st.set[i] = false
		st.ids[i] = q.terms[i].pattern(st.vars)
	}

	for i := start; i <= end; i++ {
		t := &q.terms[i]
		var (
			matchedId, matchedSrc Id
			found                 bool
		)
		q.forSource(t, st, func(src Id) bool {
			q.matchOne(t, src, st, func(id, holder Id) bool {
				matchedId, matchedSrc, found = id, holder, true
				return false
			})
			return !found
		})
		if !found {
			continue
		}

		restore := q.bind(t, matchedId, st)
		st.ids[i], st.srcs[i], st.set[i] = matchedId, matchedSrc, true
		cont := q.eval(end+1, st, yield)
		st.set[i] = false
		restore()
		return cont
	}
	return true
}

func (q *Query) bindAndEval(i int, t *compiledTerm, id, holder Id, st *matchState, yield func(*matchState) bool) bool {
	restore := q.bind(t, id, st)
	defer restore()
	st.ids[i], st.srcs[i], st.set[i] = id, holder, true
	return q.eval(i+1, st, yield)
}

// bind assigns unbound variables of t from a matched id
func (q *Query) bind(t *compiledTerm, id Id, st *matchState) func() {
	prev := slices.Clone(st.vars)
	if !id.IsPair() {
		if t.firstVar > 0 && st.vars[t.firstVar] == 0 {
			st.vars[t.firstVar] = q.world.Alive(id)
		}
	} else {
		if t.firstVar > 0 && st.vars[t.firstVar] == 0 {
			st.vars[t.firstVar] = q.world.Alive(id.First())
		}
		if t.secondVar > 0 && st.vars[t.secondVar] == 0 {
			st.vars[t.secondVar] = q.world.Alive(id.Second())
		}
	}
	return func() {
		copy(st.vars, prev)
	}
}

// forSource calls fn with the entity a term is matched on. An unbound source
// variable is bound, in turn, to every entity that has the term's id.
func (q *Query) forSource(t *compiledTerm, st *matchState, fn func(src Id) bool) bool {
	switch {
	case t.unresolved:
		return fn(st.vars[0])
	case t.src != 0:
		return fn(t.src)
	case t.srcVar == -1:
		return fn(st.vars[0])
	case st.vars[t.srcVar] != 0:
		return fn(st.vars[t.srcVar])
	}

	pattern := t.pattern(st.vars)
	for _, a := range q.world.archetypeList {
		if a.Count() == 0 || !a.HasMatch(pattern) {
			continue
		}
		if !q.matchPrefab && a.Has(Prefab) {
			continue
		}
		for _, e := range slices.Clone(a.entities) {
			st.vars[t.srcVar] = e
			cont := fn(e)
			st.vars[t.srcVar] = 0
			if !cont {
				return false
			}
		}
	}
	return true
}

// matchOne calls fn with every id matching the term on src, or on the first
// ancestor holding it when the term traverses. It reports whether anything matched.
func (q *Query) matchOne(t *compiledTerm, src Id, st *matchState, fn func(id, holder Id) bool) bool {
	if src == 0 || t.unresolved {
		return false
	}
	pattern := t.pattern(st.vars)

	holder := src
	if t.Trav != 0 {
		holder = q.world.Target(src, t.Trav, 0)
	}
	for depth := 0; holder != 0 && depth < maxTraversalDepth; depth++ {
		rec, ok := q.world.record(holder)
		if !ok {
			return false
		}
		matched := false
		for id := range rec.arch.Match(pattern) {
			matched = true
			if !fn(id, holder) {
				break
			}
		}
		if matched || t.Trav == 0 {
			return matched
		}
		holder = q.world.Target(holder, t.Trav, 0)
	}
	return false
}

func (q *Query) matchFrom(t *compiledTerm, src Id) bool {
	rec, ok := q.world.record(src)
	if !ok || t.unresolved {
		return false
	}
	for _, id := range q.world.Type(t.first) {
		if id == Prefab || (id.IsPair() && id.First().SameEntity(ChildOf)) {
			continue
		}
		has := rec.arch.Has(id)
		if t.Oper == OrFrom && has {
			return true
		}
		if t.Oper == AndFrom && !has {
			return false
		}
	}
	return t.Oper == AndFrom
}

// collect evaluates the query into rows, ordered by group, cascade depth and
// the order-by comparator
func (q *Query) collect() []*Row {
	q.invalidateIfNeeded()
	q.ensureArchetypeCache()

	var rows []*Row
	emit := func(st *matchState) bool {
		rows = append(rows, q.newRow(st))
		return true
	}

	switch {
	case q.bound[0] != 0:
		if q.world.IsAlive(q.bound[0]) {
			q.eval(0, q.newState(), emit)
		}
	case !q.hasThis:
		q.eval(0, q.newState(), emit)
	default:
		for _, a := range q.cachedArchetypes {
			for _, e := range slices.Clone(a.entities) {
				st := q.newState()
				st.vars[0] = e
				q.eval(0, st, emit)
			}
		}
	}

	q.sortRows(rows)
	return rows
}

func (q *Query) sortRows(rows []*Row) {
	if q.groupFn == nil && q.cascade == -1 && q.cmp == nil {
		return
	}

	for _, row := range rows {
		if rec, ok := q.world.record(row.entity); ok {
			if q.groupFn != nil {
				row.group = q.groupFn(q.world, rec.arch, q.groupBy)
			}
			if q.cascade != -1 {
				row.depth = q.depth(row.entity, q.terms[q.cascade].Trav)
			}
		}
	}

	slices.SortStableFunc(rows, func(a, b *Row) int {
		if c := cmp.Compare(a.group, b.group); c != 0 {
			return c
		}
		if c := cmp.Compare(a.depth, b.depth); c != 0 {
			return c
		}
		if q.cmp != nil {
			return q.cmp(a.entity, q.world.Get(a.entity, q.orderBy), b.entity, q.world.Get(b.entity, q.orderBy))
		}
		return 0
	})
}

func (q *Query) depth(e, relationship Id) int {
	depth := 0
	for parent := q.world.Target(e, relationship, 0); parent != 0 && depth < maxTraversalDepth; parent = q.world.Target(parent, relationship, 0) {
		depth++
	}
	return depth
}

// Iter returns an iterator over the results of the query. Results are
// evaluated up front, so the world may be changed while iterating.
func (q *Query) Iter() iter.Seq[*Row] {
	return func(yield func(*Row) bool) {
		rows := q.collect()
		q.lastSeen = q.world.tick
		for _, row := range rows {
			if !yield(row) {
				return
			}
		}
	}
}

// Each calls fn for every result with the world deferred, so structural
// changes made by fn are applied once iteration completes
func (q *Query) Each(fn func(*Row)) {
	q.world.DeferBegin()
	defer q.world.DeferEnd()
	for row := range q.Iter() {
		fn(row)
	}
}

// Entities returns the iterated entity of every result
func (q *Query) Entities() []Id {
	rows := q.collect()
	entities := make([]Id, len(rows))
	for i, row := range rows {
		entities[i] = row.entity
	}
	return entities
}

// Count returns the number of results
func (q *Query) Count() int {
	return len(q.collect())
}

// IsTrue reports whether the query has at least one result
func (q *Query) IsTrue() bool {
	return len(q.collect()) > 0
}

// Changed reports whether data matched by the query changed since the last
// time it was iterated
func (q *Query) Changed() bool {
	q.invalidateIfNeeded()
	q.ensureArchetypeCache()
	return q.stateTick() > q.lastSeen
}

func (q *Query) stateTick() uint64 {
	var tick uint64
	observe := func(a *Archetype) {
		tick = max(tick, a.structTick)
		for i, col := range a.columns {
			if col != nil && q.tracks(a.ids[i]) {
				tick = max(tick, col.tick)
			}
		}
	}

	for _, a := range q.cachedArchetypes {
		observe(a)
	}
	for i := range q.terms {
		if src := q.terms[i].src; src != 0 {
			if rec, ok := q.world.record(src); ok {
				observe(rec.arch)
			}
		}
	}
	return tick
}

func (q *Query) tracks(id Id) bool {
	for i := range q.terms {
		if matchId(q.terms[i].pattern(nil), id) {
			return true
		}
	}
	return false
}

// Row is one result of a query
type Row struct {
	query  *Query
	entity Id
	ids    []Id
	srcs   []Id
	set    []bool
	vars   []Id
	group  uint64
	depth  int
}

func (q *Query) newRow(st *matchState) *Row {
	return &Row{
		query:  q,
		entity: st.vars[0],
		ids:    slices.Clone(st.ids),
		srcs:   slices.Clone(st.srcs),
		set:    slices.Clone(st.set),
		vars:   slices.Clone(st.vars),
	}
}

// Entity returns the iterated entity, or zero for queries without one
func (r *Row) Entity() Id {
	return r.entity
}

// FieldId returns the id matched by field i
func (r *Row) FieldId(i int) Id {
	return r.ids[i]
}

// Src returns the entity field i was matched on
func (r *Row) Src(i int) Id {
	return r.srcs[i]
}

// IsSet reports whether field i matched. Not and unmatched optional fields are unset.
func (r *Row) IsSet(i int) bool {
	return r.set[i]
}

// Field returns a pointer to the value of field i, or nil for tags and unset fields
func (r *Row) Field(i int) unsafe.Pointer {
	if !r.set[i] {
		return nil
	}
	return r.query.world.Get(r.srcs[i], r.ids[i])
}

// Var returns the entity bound to a variable in this result
func (r *Row) Var(name string) Id {
	idx := slices.Index(r.query.vars, trimVar(name))
	if idx == -1 {
		panic(fmt.Sprintf("ecs: query has no variable %q", name))
	}
	return r.vars[idx]
}

// Group returns the group of the result when the query groups
func (r *Row) Group() uint64 {
	return r.group
}

// FieldValue returns a typed pointer to the value of field i
func FieldValue[T any](r *Row, i int) *T {
	return (*T)(r.Field(i))
}
