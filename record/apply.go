package record

import (
	"fmt"
	"strings"

	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/entity"
	"github.com/plus3/reflecs/refl"
	"github.com/plus3/reflecs/registry"
	"go.uber.org/zap"
)

// InstanceName carries the name a child keeps when its prefab is instantiated
type InstanceName struct {
	Name string
}

type step func(h entity.Handle)

// plan is a record whose entries are resolved and validated, ready to be
// executed without further checks
type plan struct {
	record   *Record
	pre      []step
	steps    []step
	children []*plan
	sub      SubEntity
}

// Validator is implemented by fragments that can check their preconditions
// before the record touches its entity. A failed validation aborts the
// application with nothing applied.
type Validator interface {
	Validate(reg *registry.Registry) error
}

// preparer is implemented by fragments whose pre-apply work can be done while
// planning. The returned step replaces PreApply.
type preparer interface {
	prepare(reg *registry.Registry) (step, error)
}

// ApplyTo stamps the record onto h. Every entry, fragment and sub-entity name
// of the record tree is resolved and validated before h is touched; invalid
// records panic without modifying the entity.
func (r *Record) ApplyTo(h entity.Handle) entity.Handle {
	if !h.IsAlive() {
		panic(fmt.Sprintf("record: cannot apply %s to dead entity %s", r.ID, h.ID()))
	}
	reg := h.Registry()
	p := r.prepare(reg, func(c *nameCheck) place { return c.existing(h.ID()) })
	p.execute(h)
	r.log(h, "record applied")
	return h
}

// Spawn applies the record to a new entity
func (r *Record) Spawn(reg *registry.Registry) entity.Handle {
	p := r.prepare(reg, func(c *nameCheck) place { return c.fresh("") })
	h := entity.Spawn(reg)
	p.execute(h)
	r.log(h, "record spawned")
	return h
}

// Prefab applies the record to a new template entity named name, or after the
// record ID when name is empty. The template and its children are tagged
// Prefab, so queries skip them.
func (r *Record) Prefab(reg *registry.Registry, name string) entity.Handle {
	if name == "" {
		name = r.ID.String()
	}

	p := r.prepare(reg, func(c *nameCheck) place { return c.fresh(name) })
	h := entity.Spawn(reg).SetName(name)
	h.Add(entity.ID(ecs.Prefab))
	p.execute(h)
	reg.World().Defer(func() { markPrefab(h) })
	r.log(h, "prefab created")
	return h
}

func markPrefab(h entity.Handle) {
	for _, child := range h.Children() {
		child.Add(entity.ID(ecs.Prefab))
		markPrefab(child)
	}
}

// Instantiate copies a prefab and its children into a new entity that is an
// instance of it. Children keep their names only when they carry InstanceName.
func Instantiate(template entity.Handle) entity.Handle {
	w := template.World()
	if !w.Has(template.ID(), ecs.Prefab) {
		panic(fmt.Sprintf("record: %s is not a prefab", template))
	}

	instance := template.Clone()
	instance.AddPair(entity.ID(ecs.IsA), entity.ID(template.ID()))

	keep, tracked := template.Registry().Lookup(refl.StructOf[InstanceName]())
	var forget func(h entity.Handle)
	forget = func(h entity.Handle) {
		for _, child := range h.Children() {
			if !tracked || !w.Has(child.ID(), keep) {
				child.SetName("")
			}
			forget(child)
		}
	}
	forget(instance)
	return instance
}

func (r *Record) log(h entity.Handle, msg string) {
	h.Registry().Logger().Debug(msg,
		zap.Stringer("record", r.ID),
		zap.Stringer("entity", h),
		zap.Int("components", len(r.Components)),
		zap.Int("sub_entities", len(r.SubEntities)),
		zap.Int("fragments", len(r.Fragments)),
	)
}

// prepare plans the whole record tree, checks the names it will give its
// entities starting from the place root returns, and freezes it
func (r *Record) prepare(reg *registry.Registry, root func(c *nameCheck) place) *plan {
	p := r.plan(reg, make(map[*Record]bool))
	c := &nameCheck{w: reg.World(), claimed: make(map[string]int)}
	func() {
		defer func() {
			if e := recover(); e != nil {
				panic(fmt.Sprintf("record: %s: %v", r.ID, e))
			}
		}()
		c.walk(p, root(c))
	}()
	r.freeze()
	return p
}

func (r *Record) plan(reg *registry.Registry, visiting map[*Record]bool) *plan {
	if visiting[r] {
		panic(fmt.Sprintf("record: %s contains itself", r.ID))
	}
	visiting[r] = true
	defer delete(visiting, r)

	p := &plan{record: r, steps: make([]step, len(r.Components)), pre: make([]step, len(r.Fragments))}
	for i, c := range r.Components {
		p.steps[i] = planComponent(reg, r, i, c)
	}
	for i, f := range r.Fragments {
		p.pre[i] = planFragment(reg, r, i, f)
	}
	for i, sub := range r.SubEntities {
		if sub.Record == nil {
			panic(fmt.Sprintf("record: %s: sub-entity %d has no record", r.ID, i))
		}
		child := sub.Record.plan(reg, visiting)
		child.sub = sub
		p.children = append(p.children, child)
	}
	return p
}

func planFragment(reg *registry.Registry, r *Record, i int, f Fragment) step {
	if f == nil {
		panic(fmt.Sprintf("record: %s: fragment %d is nil", r.ID, i))
	}
	if v, ok := f.(Validator); ok {
		if err := v.Validate(reg); err != nil {
			panic(fmt.Sprintf("record: %s: fragment %d (%s): %v", r.ID, i, f.Kind(), err))
		}
	}
	if pf, ok := f.(preparer); ok {
		s, err := pf.prepare(reg)
		if err != nil {
			panic(fmt.Sprintf("record: %s: fragment %d (%s): %v", r.ID, i, f.Kind(), err))
		}
		return s
	}
	return f.PreApply
}

func (p *plan) execute(h entity.Handle) {
	for _, s := range p.pre {
		s(h)
	}
	for _, s := range p.steps {
		s(h)
	}
	for _, child := range p.children {
		e := entity.Spawn(h.Registry()).SetParent(h)
		if name := child.sub.Name; name != "" {
			e.SetName(name)
			setInstanceName(e, name)
		}
		child.execute(e)
	}
	for _, f := range p.record.Fragments {
		f.PostApply(h)
	}
}

// place is where an entity sits in the hierarchy while names are checked
type place struct {
	token  int
	self   ecs.Id // zero for entities the application creates
	parent ecs.Id // existing parent, zero at the root or for created parents
	scope  string // path of the parent, a private key when the parent is unnamed
	global bool   // scope is a world path or the root
	name   string
}

func (p place) key() string {
	if p.name == "" {
		return ""
	}
	if p.scope == "" {
		return p.name
	}
	return p.scope + ecs.PathSeparator + p.name
}

// nameCheck replays the naming a plan performs against the world, so sibling
// duplicates and taken paths are found before the first mutation
type nameCheck struct {
	w       *ecs.World
	claimed map[string]int
	tokens  int
}

func (c *nameCheck) next() int {
	c.tokens++
	return c.tokens
}

func (c *nameCheck) private() string {
	return fmt.Sprintf("\x00%d", c.next())
}

func (c *nameCheck) fresh(name string) place {
	return place{token: c.next(), name: name, global: true}
}

func (c *nameCheck) existing(id ecs.Id) place {
	p := place{token: c.next(), self: id, name: c.w.Name(id), global: true}
	if parent := c.w.Parent(id); parent != 0 {
		p.parent = parent
		if p.scope = c.w.Path(parent); p.scope == "" {
			p.scope, p.global = c.private(), false
		}
	}
	return p
}

func (c *nameCheck) child(of place, name string) place {
	p := place{token: c.next(), parent: of.self, name: name, global: of.global}
	if p.scope = of.key(); p.scope == "" {
		p.scope, p.global = c.private(), false
	}
	return p
}

func (c *nameCheck) claim(p place) {
	k := p.key()
	if k == "" {
		return
	}
	if strings.Contains(p.name, ecs.PathSeparator) {
		panic(fmt.Sprintf("entity name %q contains %q", p.name, ecs.PathSeparator))
	}
	if owner, ok := c.claimed[k]; ok && owner != p.token {
		panic(fmt.Sprintf("entity name %q is given twice under the same parent", p.name))
	}
	c.claimed[k] = p.token

	var existing ecs.Id
	var found bool
	switch {
	case p.global:
		existing, found = c.w.Lookup(k)
	case p.parent != 0:
		existing, found = c.w.LookupChild(p.parent, p.name)
	}
	if found && existing != p.self {
		panic(fmt.Sprintf("entity name %q is already taken by %s", p.name, existing))
	}
}

func (c *nameCheck) walk(p *plan, at place) {
	c.claim(at)
	for _, f := range p.record.Fragments {
		switch f := f.(type) {
		case *ParentFragment:
			at.parent, _ = c.w.Lookup(f.Path)
			at.scope, at.global = f.Path, true
		case *NamedFragment:
			at.name = f.Name
		default:
			continue
		}
		c.claim(at)
	}
	for _, child := range p.children {
		c.walk(child, c.child(at, child.sub.Name))
	}
}

func setInstanceName(h entity.Handle, name string) {
	t := refl.StructOf[InstanceName]()
	h.Registry().Register(t, true)
	h.Set(entity.TypeRef(t), refl.ValueOf(InstanceName{Name: name}))
}

func planComponent(reg *registry.Registry, r *Record, i int, c Component) step {
	defer func() {
		if e := recover(); e != nil {
			panic(fmt.Sprintf("record: %s: component %d (%s): %v", r.ID, i, c, e))
		}
	}()

	switch c.Kind {
	case EntryStruct:
		t := mustStruct(c.Type)
		id := reg.Resolve(t)
		if !c.Value.IsValid() || isTag(reg, id) {
			return addStep(id)
		}
		if c.Value.Type() != t {
			panic(fmt.Sprintf("value of %s given for %s", c.Value.Type(), t))
		}
		ref, value := entity.TypeRef(t), c.Value
		return func(h entity.Handle) { h.Set(ref, value) }
	case EntryID:
		mustId(reg.World(), c.ID, true)
		return addStep(c.ID)
	case EntryLabel:
		return addStep(labelId(reg, c.Label))
	case EntryEnum:
		t := c.Type
		if t == nil || t.Kind() != refl.KindEnum {
			panic(fmt.Sprintf("%s is not an enumeration", t))
		}
		reg.Resolve(t)
		if reg.EnumConstant(t, c.EnumValue) == 0 {
			panic(fmt.Sprintf("%s has no enumerator with value %d", t, c.EnumValue))
		}
		value := c.EnumValue
		return func(h entity.Handle) { h.AddEnum(t, value) }
	case EntryPair:
		if c.Pair == nil {
			panic("pair entry without pair")
		}
		return planPair(reg, *c.Pair)
	}
	panic(fmt.Sprintf("unknown entry kind %s", c.Kind))
}

func addStep(id ecs.Id) step {
	return func(h entity.Handle) { h.Add(entity.ID(id)) }
}

func mustStruct(t *refl.Type) *refl.Type {
	if t == nil {
		panic("struct entry without type")
	}
	if t.Kind() != refl.KindStruct && t.Kind() != refl.KindClass {
		panic(fmt.Sprintf("%s is not a struct or class", t))
	}
	return t
}

func isTag(reg *registry.Registry, id ecs.Id) bool {
	info, ok := reg.Info(id)
	return !ok || info.IsTag
}

func mustId(w *ecs.World, id ecs.Id, pairOk bool) {
	switch {
	case id == 0:
		panic("zero id")
	case id.IsWildcard():
		panic(fmt.Sprintf("wildcard id %s", id))
	case id.IsPair():
		if !pairOk {
			panic(fmt.Sprintf("pair %s cannot be one side of a pair", id))
		}
		if w.Alive(id.First()) == 0 || w.Alive(id.Second()) == 0 {
			panic(fmt.Sprintf("pair %s of dead entities", id))
		}
	case !w.IsAlive(id):
		panic(fmt.Sprintf("dead id %s", id))
	}
}

func labelId(reg *registry.Registry, path string) ecs.Id {
	if path == "" {
		panic("empty label")
	}
	return reg.World().NamedEntity(path)
}

// slot is a resolved side of a pair entry. data is set when the side can
// store the pair's value.
type slot struct {
	ref   entity.Ref
	data  *refl.Type
	value refl.Value
}

func planSlot(reg *registry.Registry, s PairSlot) slot {
	switch s.Kind {
	case SlotKindStruct:
		t := mustStruct(s.Type)
		id := reg.Resolve(t)
		if s.Value.IsValid() && s.Value.Type() != t {
			panic(fmt.Sprintf("value of %s given for %s", s.Value.Type(), t))
		}
		sl := slot{ref: entity.TypeRef(t), value: s.Value}
		if !isTag(reg, id) {
			sl.data = t
		}
		return sl
	case SlotKindID:
		mustId(reg.World(), s.ID, false)
		return slot{ref: entity.ID(s.ID)}
	case SlotKindLabel:
		return slot{ref: entity.ID(labelId(reg, s.Label))}
	}
	panic(fmt.Sprintf("unknown slot kind %s", s.Kind))
}

func (s slot) valueOrDefault() refl.Value {
	if s.value.IsValid() {
		return s.value
	}
	return refl.NewValue(s.data)
}

func planPair(reg *registry.Registry, p Pair) step {
	first, second := planSlot(reg, p.First), planSlot(reg, p.Second)

	side := p.Side
	switch side {
	case SideNone:
		switch {
		case first.data != nil && second.data != nil:
			panic(fmt.Sprintf("both %s and %s carry data and no value side is set", first.data, second.data))
		case first.data != nil:
			side = SideFirst
		case second.data != nil:
			side = SideSecond
		}
	case SideFirst:
		if first.data == nil {
			panic(fmt.Sprintf("value side is first but %s carries no data", first.ref))
		}
	case SideSecond:
		if second.data == nil {
			panic(fmt.Sprintf("value side is second but %s carries no data", second.ref))
		}
	default:
		panic(fmt.Sprintf("invalid value side %d", side))
	}

	switch side {
	case SideFirst:
		value := first.valueOrDefault()
		return func(h entity.Handle) { h.SetPairFirst(first.ref, second.ref, value) }
	case SideSecond:
		value := second.valueOrDefault()
		return func(h entity.Handle) { h.SetPairSecond(first.ref, second.ref, value) }
	}
	return func(h entity.Handle) { h.AddPair(first.ref, second.ref) }
}
