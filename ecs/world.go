package ecs

import (
	"fmt"
	"slices"
	"unsafe"

	"github.com/kamstrup/intmap"
	"go.uber.org/zap"
)

type entityRecord struct {
	id   Id
	arch *Archetype
	row  int
	name string
	path string
}

// WorldOption configures a World
type WorldOption func(*World)

// WithLogger sets the logger used by the world
func WithLogger(logger *zap.Logger) WorldOption {
	return func(w *World) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// World owns every entity, component and archetype of one runtime instance.
// It is not safe for concurrent use; structural changes issued while the world
// is deferred are queued and applied by the outermost DeferEnd.
type World struct {
	records    *intmap.Map[uint32, *entityRecord]
	free       []Id
	nextIndex  uint32
	components *intmap.Map[uint32, *ComponentInfo]
	pairTypes  *intmap.Map[Id, uint32]
	exclusive  map[uint32]bool

	archetypes    map[uint64][]*Archetype
	archetypeList []*Archetype
	root          *Archetype

	names map[string]Id
	tick  uint64

	deferDepth int
	commands   *Commands

	context any
	logger  *zap.Logger
}

// Stats summarises the contents of a world
type Stats struct {
	Entities   int
	Archetypes int
	Components int
	Tick       uint64
}

var builtinNames = map[Id]string{
	Wildcard: "*",
	Any:      "_",
	ChildOf:  "ChildOf",
	IsA:      "IsA",
	Prefab:   "Prefab",
	Constant: "Constant",
	Bool:     "bool",
	U8:       "u8",
	U16:      "u16",
	U32:      "u32",
	U64:      "u64",
	I8:       "i8",
	I16:      "i16",
	I32:      "i32",
	I64:      "i64",
	F32:      "f32",
	F64:      "f64",
	String:   "string",
	Name:     "name",
	Entity:   "entity",
}

// NewWorld creates an empty world holding only the builtin entities
func NewWorld(opts ...WorldOption) *World {
	w := &World{
		records:    intmap.New[uint32, *entityRecord](256),
		components: intmap.New[uint32, *ComponentInfo](64),
		pairTypes:  intmap.New[Id, uint32](64),
		exclusive:  make(map[uint32]bool),
		archetypes: make(map[uint64][]*Archetype),
		names:      make(map[string]Id),
		commands:   newCommands(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.root = w.archetypeFor(nil)
	w.bootstrap()
	return w
}

func (w *World) bootstrap() {
	for id := Wildcard; id < lastBuiltin; id++ {
		rec := &entityRecord{id: id, arch: w.root}
		rec.row = w.root.append(id)
		w.records.Put(id.Index(), rec)
		w.setName(rec, builtinNames[id])
	}
	w.nextIndex = FirstUserIndex

	w.primitive(Bool, ComponentFor[bool]("bool"))
	w.primitive(U8, ComponentFor[uint8]("u8"))
	w.primitive(U16, ComponentFor[uint16]("u16"))
	w.primitive(U32, ComponentFor[uint32]("u32"))
	w.primitive(U64, ComponentFor[uint64]("u64"))
	w.primitive(I8, ComponentFor[int8]("i8"))
	w.primitive(I16, ComponentFor[int16]("i16"))
	w.primitive(I32, ComponentFor[int32]("i32"))
	w.primitive(I64, ComponentFor[int64]("i64"))
	w.primitive(F32, ComponentFor[float32]("f32"))
	w.primitive(F64, ComponentFor[float64]("f64"))
	w.primitive(String, ComponentFor[string]("string"))
	w.primitive(Name, ComponentFor[string]("name"))
	w.primitive(Entity, ComponentFor[Id]("entity"))

	w.exclusive[ChildOf.Index()] = true
}

func (w *World) primitive(id Id, desc ComponentDesc) {
	desc.Entity = id
	w.Component(desc)
}

// Logger returns the logger of the world
func (w *World) Logger() *zap.Logger {
	return w.logger
}

// SetContext stores an opaque binding context on the world. Subsystems that
// must exist at most once per world claim the context on construction.
func (w *World) SetContext(ctx any) {
	w.context = ctx
}

// Context returns the binding context set with SetContext
func (w *World) Context() any {
	return w.context
}

// Tick returns the current change tick
func (w *World) Tick() uint64 {
	return w.tick
}

func (w *World) nextTick() uint64 {
	w.tick++
	return w.tick
}

// Stats returns counters describing the world
func (w *World) Stats() Stats {
	return Stats{
		Entities:   w.records.Len(),
		Archetypes: len(w.archetypeList),
		Components: w.components.Len(),
		Tick:       w.tick,
	}
}

// Archetypes returns every archetype in creation order
func (w *World) Archetypes() []*Archetype {
	return w.archetypeList
}

// Entity creates a new empty entity
func (w *World) Entity() Id {
	var id Id
	if n := len(w.free); n > 0 {
		id = w.free[n-1]
		w.free = w.free[:n-1]
	} else {
		id = NewId(w.nextIndex, 0)
		w.nextIndex++
	}

	rec := &entityRecord{id: id, arch: w.root}
	rec.row = w.root.append(id)
	w.root.structTick = w.nextTick()
	w.records.Put(id.Index(), rec)
	return id
}

// IsAlive reports whether id refers to a live entity of the current generation
func (w *World) IsAlive(id Id) bool {
	if id == 0 || id.IsPair() {
		return false
	}
	rec, ok := w.records.Get(id.Index())
	return ok && rec.id == id
}

// Alive returns the live id, generation included, of the entity with the same
// index as id. Zero is returned when no such entity exists.
func (w *World) Alive(id Id) Id {
	if id == 0 || id.IsPair() {
		return 0
	}
	rec, ok := w.records.Get(id.Index())
	if !ok {
		return 0
	}
	return rec.id
}

func (w *World) record(id Id) (*entityRecord, bool) {
	if id.IsPair() {
		return nil, false
	}
	rec, ok := w.records.Get(id.Index())
	if !ok || rec.id != id {
		return nil, false
	}
	return rec, true
}

func (w *World) mustRecord(id Id, op string) *entityRecord {
	rec, ok := w.record(id)
	if !ok {
		panic(fmt.Sprintf("ecs: %s called on dead or invalid entity %s", op, id))
	}
	return rec
}

// PairFirst returns the live relationship entity of a pair. Panics on a plain id.
func (w *World) PairFirst(pair Id) Id {
	if !pair.IsPair() {
		panic(fmt.Sprintf("ecs: PairFirst called on non-pair id %s", pair))
	}
	return w.Alive(pair.First())
}

// PairSecond returns the live target entity of a pair. Panics on a plain id.
func (w *World) PairSecond(pair Id) Id {
	if !pair.IsPair() {
		panic(fmt.Sprintf("ecs: PairSecond called on non-pair id %s", pair))
	}
	return w.Alive(pair.Second())
}

// Component creates a component, or updates the component information of the
// entity named by desc. Registering the same name twice with the same size
// returns the existing component.
func (w *World) Component(desc ComponentDesc) Id {
	var e Id
	switch {
	case desc.Entity != 0:
		e = w.mustRecord(desc.Entity, "Component").id
	case desc.Name != "":
		e = w.NamedEntity(desc.Name)
	default:
		e = w.Entity()
	}

	if existing, ok := w.components.Get(e.Index()); ok {
		if existing.Size != desc.Size {
			panic(fmt.Sprintf("ecs: component %q re-registered with size %d, was %d", existing.Name, desc.Size, existing.Size))
		}
		if desc.Hooks != nil {
			existing.Hooks = desc.Hooks
		}
		return e
	}

	alignment := desc.Alignment
	if alignment == 0 && desc.Size > 0 {
		alignment = 1
	}
	name := desc.Name
	if name == "" {
		name = w.Path(e)
	}

	info := &ComponentInfo{
		Id:        e,
		Name:      name,
		Size:      desc.Size,
		Alignment: alignment,
		Hooks:     desc.Hooks,
	}
	if info.IsTag() {
		info.Hooks = nil
	}
	w.components.Put(e.Index(), info)
	w.logger.Debug("component created",
		zap.String("name", name),
		zap.Stringer("id", e),
		zap.Uintptr("size", info.Size))
	return e
}

// ComponentInfo returns the type information of a plain component id
func (w *World) ComponentInfo(id Id) (*ComponentInfo, bool) {
	if id == 0 || id.IsPair() {
		return nil, false
	}
	info, ok := w.components.Get(id.Index())
	return info, ok
}

func (w *World) mustComponent(id Id, op string) *ComponentInfo {
	info, ok := w.ComponentInfo(id)
	if !ok {
		panic(fmt.Sprintf("ecs: %s called on %s which is not a component", op, id))
	}
	return info
}

// TypeInfo returns the type information of the data stored for id, which may
// be a pair. Nil is returned for tags and ids that carry no data.
func (w *World) TypeInfo(id Id) *ComponentInfo {
	info := w.typeInfo(id)
	if info == nil || info.IsTag() {
		return nil
	}
	return info
}

func (w *World) typeInfo(id Id) *ComponentInfo {
	if !id.IsPair() {
		info, _ := w.components.Get(id.Index())
		return info
	}
	if index, ok := w.pairTypes.Get(id); ok {
		if index == 0 {
			return nil
		}
		info, _ := w.components.Get(index)
		return info
	}
	info, _ := w.components.Get(w.defaultPairStorage(id))
	return info
}

// storageInfo is typeInfo that memoizes the storage decision of a pair
func (w *World) storageInfo(id Id) *ComponentInfo {
	if id.IsPair() && !id.IsWildcard() {
		if _, ok := w.pairTypes.Get(id); !ok {
			w.pairTypes.Put(id, w.defaultPairStorage(id))
		}
	}
	return w.typeInfo(id)
}

// defaultPairStorage picks the element whose type a pair stores: the
// relationship if it carries data, otherwise the target. Zero means none.
func (w *World) defaultPairStorage(pair Id) uint32 {
	if info, ok := w.components.Get(pair.First().Index()); ok && !info.IsTag() {
		return pair.First().Index()
	}
	if info, ok := w.components.Get(pair.Second().Index()); ok && !info.IsTag() {
		return pair.Second().Index()
	}
	return 0
}

func (w *World) pinPairStorage(pair, element Id) {
	want := element.Index()
	if info, ok := w.components.Get(want); !ok || info.IsTag() {
		panic(fmt.Sprintf("ecs: pair %s cannot store data of %s which carries none", pair, element))
	}
	if current, ok := w.pairTypes.Get(pair); ok {
		if current != want {
			panic(fmt.Sprintf("ecs: pair %s already stores data of #%d, cannot switch to %s", pair, current, element))
		}
		return
	}
	w.pairTypes.Put(pair, want)
}

// SetExclusive marks a relationship as exclusive: an entity holds at most one
// pair with it, adding another replaces the previous one.
func (w *World) SetExclusive(relationship Id) {
	w.exclusive[relationship.Index()] = true
}

// IsExclusive reports whether a relationship is exclusive
func (w *World) IsExclusive(relationship Id) bool {
	return w.exclusive[relationship.Index()]
}

// AddMember appends a member to the data layout of a component
func (w *World) AddMember(component Id, member Member) {
	info := w.mustComponent(component, "AddMember")
	if member.Count == 0 {
		member.Count = 1
	}
	info.Members = append(info.Members, member)
}

// SetUnderlying sets the primitive type an enum component is stored as
func (w *World) SetUnderlying(enum, primitive Id) {
	info := w.mustComponent(enum, "SetUnderlying")
	info.Underlying = primitive
}

// AddConstant creates a named constant entity for an enum component. The
// constant is parented to the enum and tagged with Constant.
func (w *World) AddConstant(enum Id, name string, value uint64) Id {
	info := w.mustComponent(enum, "AddConstant")

	var constant Id
	w.DeferSuspend(func() {
		constant = w.Entity()
		w.Add(constant, Pair(ChildOf, enum))
		w.SetName(constant, name)
		w.Add(constant, Constant)
	})

	info.Constants = append(info.Constants, EnumConstant{Name: name, Value: value, Entity: constant})
	return constant
}

// Has reports whether an entity has id. Wildcard ids match any matching id.
func (w *World) Has(e, id Id) bool {
	rec, ok := w.record(e)
	if !ok {
		return false
	}
	if id.IsWildcard() {
		return rec.arch.HasMatch(id)
	}
	return rec.arch.Has(id)
}

// Add adds an id to an entity. Adding an id the entity already has is a no-op.
func (w *World) Add(e, id Id) {
	if w.deferDepth > 0 {
		w.commands.add(e, id)
		return
	}

	rec := w.mustRecord(e, "Add")
	w.validateId(id, "Add")
	if rec.arch.Has(id) {
		return
	}

	dst := rec.arch
	if id.IsPair() && w.exclusive[id.First().Index()] {
		for existing := range rec.arch.Match(Pair(id.First(), Wildcard)) {
			dst = w.archetypeWithout(dst, existing)
		}
	}
	dst = w.archetypeWith(dst, id)
	w.moveEntity(rec, dst)

	if id.IsPair() && id.First().Index() == ChildOf.Index() && rec.name != "" {
		w.repath(rec)
	}
}

// Remove removes an id from an entity. Wildcard ids remove every match.
func (w *World) Remove(e, id Id) {
	if w.deferDepth > 0 {
		w.commands.remove(e, id)
		return
	}

	rec, ok := w.record(e)
	if !ok {
		return
	}

	dst := rec.arch
	for existing := range rec.arch.Match(id) {
		dst = w.archetypeWithout(dst, existing)
	}
	if dst == rec.arch {
		return
	}
	reparented := rec.arch.HasMatch(Pair(ChildOf, Wildcard)) && !dst.HasMatch(Pair(ChildOf, Wildcard))
	w.moveEntity(rec, dst)

	if reparented && rec.name != "" {
		w.repath(rec)
	}
}

// Set copies the value at src into the storage of id, adding id first when
// needed. The value is not written, and the change tick is left alone, when
// the component reports it equal to the stored one.
func (w *World) Set(e, id Id, src unsafe.Pointer) {
	info := w.TypeInfo(id)
	if info == nil {
		panic(fmt.Sprintf("ecs: cannot set %s on %s: id carries no data", w.describe(id), e))
	}

	if w.deferDepth > 0 {
		value := info.alloc()
		info.copy(value, src)
		w.commands.set(e, id, value, info)
		return
	}

	w.Add(e, id)
	w.write(w.mustRecord(e, "Set"), id, src, false)
}

func (w *World) write(rec *entityRecord, id Id, src unsafe.Pointer, move bool) {
	col := rec.arch.column(id)
	if col == nil {
		panic(fmt.Sprintf("ecs: cannot write %s on %s: no storage", w.describe(id), rec.id))
	}

	dst := col.data[rec.row]
	if equal, known := col.info.equals(dst, src); known && equal {
		return
	}
	if move {
		col.info.move(dst, src)
	} else {
		col.info.copy(dst, src)
	}
	col.tick = w.nextTick()
}

// SetPairFirst sets the value of a pair stored as the relationship's type
func (w *World) SetPairFirst(e, first, second Id, src unsafe.Pointer) {
	pair := Pair(first, second)
	w.pinPairStorage(pair, first)
	w.Set(e, pair, src)
}

// SetPairSecond sets the value of a pair stored as the target's type. This is
// how a tag relationship carries data of its target.
func (w *World) SetPairSecond(e, first, second Id, src unsafe.Pointer) {
	pair := Pair(first, second)
	w.pinPairStorage(pair, second)
	w.Set(e, pair, src)
}

// Get returns a pointer to the value of id on an entity, or nil when the entity
// does not have it or id carries no data. Writes through the pointer are not
// tracked; call Modified afterwards for change detection.
func (w *World) Get(e, id Id) unsafe.Pointer {
	rec, ok := w.record(e)
	if !ok {
		return nil
	}
	if id.IsWildcard() {
		for match := range rec.arch.Match(id) {
			id = match
			break
		}
	}
	col := rec.arch.column(id)
	if col == nil {
		return nil
	}
	return col.data[rec.row]
}

// Modified bumps the change tick of id on the archetype of an entity
func (w *World) Modified(e, id Id) {
	rec, ok := w.record(e)
	if !ok {
		return
	}
	if col := rec.arch.column(id); col != nil {
		col.tick = w.nextTick()
	}
}

// Type returns the sorted ids of an entity
func (w *World) Type(e Id) []Id {
	rec, ok := w.record(e)
	if !ok {
		return nil
	}
	return slices.Clone(rec.arch.ids)
}

// Target returns the index-th target of a relationship on an entity, or zero
func (w *World) Target(e, relationship Id, index int) Id {
	rec, ok := w.record(e)
	if !ok {
		return 0
	}
	n := 0
	for pair := range rec.arch.Match(Pair(relationship, Wildcard)) {
		if n == index {
			return w.Alive(pair.Second())
		}
		n++
	}
	return 0
}

// Parent returns the ChildOf target of an entity, or zero
func (w *World) Parent(e Id) Id {
	return w.Target(e, ChildOf, 0)
}

// Children returns the entities that are ChildOf e
func (w *World) Children(e Id) []Id {
	pair := Pair(ChildOf, e)
	var children []Id
	for _, a := range w.archetypeList {
		if a.Count() > 0 && a.Has(pair) {
			children = append(children, a.entities...)
		}
	}
	return children
}

// Delete deletes an entity, its children, and every id that refers to it
func (w *World) Delete(e Id) {
	if w.deferDepth > 0 {
		w.commands.delete(e)
		return
	}

	rec, ok := w.record(e)
	if !ok {
		return
	}

	for _, child := range w.Children(e) {
		w.Delete(child)
	}
	w.removeReferences(e)

	src := rec.arch
	for _, col := range src.columns {
		if col != nil {
			col.info.destroy(col.data[rec.row])
		}
	}
	w.detach(rec)

	if rec.path != "" && w.names[rec.path] == e {
		delete(w.names, rec.path)
	}
	w.records.Del(e.Index())
	w.free = append(w.free, NewId(e.Index(), e.Generation()+1))
}

// removeReferences strips every id that names e from the entities holding it
func (w *World) removeReferences(e Id) {
	index := e.Index()
	for i := 0; i < len(w.archetypeList); i++ {
		a := w.archetypeList[i]
		if a.Count() == 0 {
			continue
		}

		dst := a
		for _, id := range a.ids {
			if refersTo(id, index) {
				dst = w.archetypeWithout(dst, id)
			}
		}
		if dst == a {
			continue
		}

		for _, ent := range slices.Clone(a.entities) {
			if rec, ok := w.record(ent); ok {
				w.moveEntity(rec, dst)
			}
		}
	}
}

func refersTo(id Id, index uint32) bool {
	if id.IsPair() {
		return id.First().Index() == index || id.Second().Index() == index
	}
	return id.Index() == index
}

// Clone creates a new entity with copies of every value of src. Children are
// cloned recursively and parented to the clone; the Prefab tag is not copied.
func (w *World) Clone(src Id) Id {
	if w.deferDepth > 0 {
		panic(fmt.Sprintf("ecs: Clone of %s while deferred", src))
	}
	srcRec := w.mustRecord(src, "Clone")

	ids := make([]Id, 0, len(srcRec.arch.ids))
	for _, id := range srcRec.arch.ids {
		if id != Prefab {
			ids = append(ids, id)
		}
	}

	dst := w.Entity()
	dstRec := w.mustRecord(dst, "Clone")
	w.moveEntity(dstRec, w.archetypeFor(ids))

	srcRec = w.mustRecord(src, "Clone")
	for i, col := range dstRec.arch.columns {
		if col == nil {
			continue
		}
		from := srcRec.arch.column(dstRec.arch.ids[i])
		col.info.copy(col.data[dstRec.row], from.data[srcRec.row])
	}

	for _, child := range w.Children(src) {
		clone := w.Clone(child)
		cloneRec := w.mustRecord(clone, "Clone")
		cloneRec.name = w.mustRecord(child, "Clone").name
		w.Add(clone, Pair(ChildOf, dst))
	}
	return dst
}

func (w *World) validateId(id Id, op string) {
	if id == 0 {
		panic(fmt.Sprintf("ecs: %s called with zero id", op))
	}
	if id.IsWildcard() {
		panic(fmt.Sprintf("ecs: %s called with wildcard id %s", op, id))
	}
	if id.IsPair() {
		if w.Alive(id.First()) == 0 || w.Alive(id.Second()) == 0 {
			panic(fmt.Sprintf("ecs: %s called with pair %s of dead entities", op, id))
		}
		return
	}
	if !w.IsAlive(id) && w.Alive(id) == 0 {
		panic(fmt.Sprintf("ecs: %s called with dead id %s", op, id))
	}
}

// describe names an id for diagnostics
func (w *World) describe(id Id) string {
	if id.IsPair() {
		return fmt.Sprintf("(%s, %s)", w.describe(id.First()), w.describe(id.Second()))
	}
	if rec, ok := w.records.Get(id.Index()); ok && rec.name != "" {
		if rec.path != "" {
			return rec.path
		}
		return rec.name
	}
	return id.String()
}

// Describe returns a readable name for an id
func (w *World) Describe(id Id) string {
	return w.describe(id)
}

// archetypeFor returns the archetype for a sorted id set, creating it on demand
func (w *World) archetypeFor(ids []Id) *Archetype {
	hash := hashIds(ids)
	for _, a := range w.archetypes[hash] {
		if slices.Equal(a.ids, ids) {
			return a
		}
	}

	a := newArchetype(w, uint32(len(w.archetypeList)), ids, hash)
	w.archetypes[hash] = append(w.archetypes[hash], a)
	w.archetypeList = append(w.archetypeList, a)
	w.logger.Debug("archetype created",
		zap.Uint32("archetype", a.id),
		zap.Int("ids", len(ids)))
	return a
}

func (w *World) archetypeWith(src *Archetype, id Id) *Archetype {
	if dst, ok := src.addEdges[id]; ok {
		return dst
	}

	idx, found := slices.BinarySearch(src.ids, id)
	if found {
		return src
	}
	ids := make([]Id, 0, len(src.ids)+1)
	ids = append(ids, src.ids[:idx]...)
	ids = append(ids, id)
	ids = append(ids, src.ids[idx:]...)

	dst := w.archetypeFor(ids)
	src.addEdges[id] = dst
	dst.removeEdges[id] = src
	return dst
}

func (w *World) archetypeWithout(src *Archetype, id Id) *Archetype {
	if dst, ok := src.removeEdges[id]; ok {
		return dst
	}

	idx := src.indexOf(id)
	if idx == -1 {
		return src
	}
	ids := make([]Id, 0, len(src.ids)-1)
	ids = append(ids, src.ids[:idx]...)
	ids = append(ids, src.ids[idx+1:]...)

	dst := w.archetypeFor(ids)
	src.removeEdges[id] = dst
	dst.addEdges[id] = src
	return dst
}

// moveEntity moves an entity to dst, carrying over shared values, constructing
// values for new ids and destroying values of dropped ones
func (w *World) moveEntity(rec *entityRecord, dst *Archetype) {
	src := rec.arch
	if src == dst {
		return
	}

	tick := w.nextTick()
	row := dst.append(rec.id)
	for i, id := range dst.ids {
		col := dst.columns[i]
		if col == nil {
			continue
		}
		if from := src.column(id); from != nil {
			col.append(from.data[rec.row])
		} else {
			col.append(col.info.alloc())
		}
		col.tick = tick
	}

	for i, id := range src.ids {
		col := src.columns[i]
		if col != nil && dst.column(id) == nil {
			col.info.destroy(col.data[rec.row])
		}
	}

	w.detach(rec)
	rec.arch = dst
	rec.row = row
	dst.structTick = tick
}

// detach removes the row of rec from its archetype without touching values
func (w *World) detach(rec *entityRecord) {
	src := rec.arch
	if moved := src.removeRow(rec.row); moved != 0 {
		if movedRec, ok := w.records.Get(moved.Index()); ok {
			movedRec.row = rec.row
		}
	}
	src.structTick = w.nextTick()
}

// SetValue sets a typed value of id on an entity
func SetValue[T any](w *World, e, id Id, value T) {
	w.Set(e, id, unsafe.Pointer(&value))
}

// GetValue returns a typed pointer to the value of id on an entity, or nil
func GetValue[T any](w *World, e, id Id) *T {
	return (*T)(w.Get(e, id))
}
