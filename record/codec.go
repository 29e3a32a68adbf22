package record

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/google/uuid"
	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/query"
	"github.com/plus3/reflecs/refl"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownType is returned when a document names a type the catalog lacks
	ErrUnknownType = query.ErrUnknownType
	// ErrUnknownFragment is returned when a document names a fragment kind the
	// codec cannot create
	ErrUnknownFragment = errors.New("unknown fragment kind")
	// ErrInvalidDocument is returned for malformed documents
	ErrInvalidDocument = errors.New("invalid record document")
)

// FragmentFactory creates an empty fragment that a document is decoded into
type FragmentFactory func() Fragment

// Codec reads and writes records as YAML. Types are resolved through the
// catalog of a query library, which also resolves the callbacks of query
// fragments.
type Codec struct {
	types     *refl.Catalog
	queries   *query.Library
	fragments map[string]FragmentFactory
}

// NewCodec creates a codec knowing the bundled fragment kinds
func NewCodec(lib *query.Library) *Codec {
	if lib == nil {
		lib = query.NewLibrary(nil)
	}
	c := &Codec{
		types:     lib.Types(),
		queries:   lib,
		fragments: make(map[string]FragmentFactory),
	}
	c.AddFragment("named", func() Fragment { return &NamedFragment{} })
	c.AddFragment("parent", func() Fragment { return &ParentFragment{} })
	c.AddFragment("query", func() Fragment { return &QueryFragment{} })
	return c
}

// AddFragment makes a fragment kind decodable. The fragments a factory
// creates must be pointers the YAML decoder can fill.
func (c *Codec) AddFragment(kind string, fn FragmentFactory) *Codec {
	if kind == "" || fn == nil {
		panic("record: fragment factory needs a kind and a function")
	}
	c.fragments[kind] = fn
	return c
}

type recordDoc struct {
	ID          string        `yaml:"id,omitempty"`
	Components  []entryDoc    `yaml:"components,omitempty"`
	SubEntities []subDoc      `yaml:"sub_entities,omitempty"`
	Fragments   []fragmentDoc `yaml:"fragments,omitempty"`
}

type entryDoc struct {
	Kind       string   `yaml:"kind"`
	Type       string   `yaml:"type,omitempty"`
	Value      *rawNode `yaml:"value,omitempty"`
	ID         uint64   `yaml:"id,omitempty"`
	Label      string   `yaml:"label,omitempty"`
	Enumerator string   `yaml:"enumerator,omitempty"`
	First      *slotDoc `yaml:"first,omitempty"`
	Second     *slotDoc `yaml:"second,omitempty"`
	Side       string   `yaml:"side,omitempty"`
}

type slotDoc struct {
	Kind  string   `yaml:"kind"`
	Type  string   `yaml:"type,omitempty"`
	Value *rawNode `yaml:"value,omitempty"`
	ID    uint64   `yaml:"id,omitempty"`
	Label string   `yaml:"label,omitempty"`
}

type subDoc struct {
	Name         string    `yaml:"name,omitempty"`
	DontFragment bool      `yaml:"dont_fragment,omitempty"`
	Record       recordDoc `yaml:"record"`
}

type fragmentDoc struct {
	Kind string   `yaml:"kind"`
	Spec *rawNode `yaml:"spec,omitempty"`
}

// rawNode holds a subtree whose shape depends on a type named elsewhere in
// the document. Unknown keys are only rejected in the document structs; the
// subtree is decoded once its type is resolved.
type rawNode struct {
	node *yaml.Node
}

func raw(n *yaml.Node) *rawNode {
	if n == nil {
		return nil
	}
	return &rawNode{node: n}
}

func (r *rawNode) UnmarshalYAML(n *yaml.Node) error {
	r.node = n
	return nil
}

func (r *rawNode) MarshalYAML() (any, error) {
	return r.node, nil
}

// fragmentCodec is implemented by fragments that cannot be written by the
// YAML encoder directly
type fragmentCodec interface {
	encodeSpec(c *Codec) (*yaml.Node, error)
	decodeSpec(c *Codec, n *yaml.Node) error
}

// Marshal encodes a record as YAML
func (c *Codec) Marshal(r *Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes a record as YAML
func (c *Codec) Encode(w io.Writer, r *Record) error {
	doc, err := c.encodeRecord(r, make(map[*Record]bool))
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func (c *Codec) encodeRecord(r *Record, visiting map[*Record]bool) (recordDoc, error) {
	if visiting[r] {
		return recordDoc{}, fmt.Errorf("%w: record %s contains itself", ErrInvalidDocument, r.ID)
	}
	visiting[r] = true
	defer delete(visiting, r)

	doc := recordDoc{ID: r.ID.String()}
	for i, comp := range r.Components {
		ed, err := encodeEntry(comp)
		if err != nil {
			return doc, fmt.Errorf("encoding component %d: %w", i, err)
		}
		doc.Components = append(doc.Components, ed)
	}
	for i, sub := range r.SubEntities {
		if sub.Record == nil {
			return doc, fmt.Errorf("%w: sub-entity %d has no record", ErrInvalidDocument, i)
		}
		child, err := c.encodeRecord(sub.Record, visiting)
		if err != nil {
			return doc, fmt.Errorf("encoding sub-entity %d: %w", i, err)
		}
		doc.SubEntities = append(doc.SubEntities, subDoc{Name: sub.Name, DontFragment: sub.DontFragment, Record: child})
	}
	for i, f := range r.Fragments {
		fd, err := c.encodeFragment(f)
		if err != nil {
			return doc, fmt.Errorf("encoding fragment %d: %w", i, err)
		}
		doc.Fragments = append(doc.Fragments, fd)
	}
	return doc, nil
}

func encodeValue(v refl.Value) (*rawNode, error) {
	if !v.IsValid() {
		return nil, nil
	}
	node := &yaml.Node{}
	if err := node.Encode(v.Interface()); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", v.Type(), err)
	}
	return raw(node), nil
}

func typeName(t *refl.Type) (string, error) {
	if t == nil {
		return "", fmt.Errorf("%w: entry without type", ErrInvalidDocument)
	}
	return t.Name(), nil
}

func encodeEntry(comp Component) (entryDoc, error) {
	doc := entryDoc{Kind: comp.Kind.String()}
	var err error
	switch comp.Kind {
	case EntryStruct:
		if doc.Type, err = typeName(comp.Type); err != nil {
			return doc, err
		}
		doc.Value, err = encodeValue(comp.Value)
	case EntryID:
		doc.ID = uint64(comp.ID)
	case EntryLabel:
		doc.Label = comp.Label
	case EntryEnum:
		if doc.Type, err = typeName(comp.Type); err != nil {
			return doc, err
		}
		e, ok := comp.Type.Enumerator(comp.EnumValue)
		if !ok {
			return doc, fmt.Errorf("%w: %s has no enumerator with value %d", ErrInvalidDocument, comp.Type, comp.EnumValue)
		}
		doc.Enumerator = e.Name
	case EntryPair:
		if comp.Pair == nil {
			return doc, fmt.Errorf("%w: pair entry without pair", ErrInvalidDocument)
		}
		if doc.First, err = encodeSlot(comp.Pair.First); err != nil {
			return doc, err
		}
		if doc.Second, err = encodeSlot(comp.Pair.Second); err != nil {
			return doc, err
		}
		if comp.Pair.Side != SideNone {
			doc.Side = comp.Pair.Side.String()
		}
	default:
		return doc, fmt.Errorf("%w: entry kind %s", ErrInvalidDocument, comp.Kind)
	}
	return doc, err
}

func encodeSlot(s PairSlot) (*slotDoc, error) {
	doc := &slotDoc{Kind: s.Kind.String()}
	var err error
	switch s.Kind {
	case SlotKindStruct:
		if doc.Type, err = typeName(s.Type); err != nil {
			return nil, err
		}
		doc.Value, err = encodeValue(s.Value)
	case SlotKindID:
		doc.ID = uint64(s.ID)
	case SlotKindLabel:
		doc.Label = s.Label
	default:
		return nil, fmt.Errorf("%w: slot kind %s", ErrInvalidDocument, s.Kind)
	}
	return doc, err
}

func (c *Codec) encodeFragment(f Fragment) (fragmentDoc, error) {
	doc := fragmentDoc{Kind: f.Kind()}
	if _, ok := c.fragments[doc.Kind]; !ok {
		return doc, fmt.Errorf("%w: %q", ErrUnknownFragment, doc.Kind)
	}
	if custom, ok := f.(fragmentCodec); ok {
		node, err := custom.encodeSpec(c)
		doc.Spec = raw(node)
		return doc, err
	}
	node := &yaml.Node{}
	if err := node.Encode(f); err != nil {
		return doc, fmt.Errorf("encoding %s fragment: %w", doc.Kind, err)
	}
	doc.Spec = raw(node)
	return doc, nil
}

// Unmarshal decodes a YAML or JSON record
func (c *Codec) Unmarshal(data []byte) (*Record, error) {
	return c.Decode(bytes.NewReader(data))
}

// Decode reads a YAML or JSON record
func (c *Codec) Decode(r io.Reader) (*Record, error) {
	var doc recordDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return c.decodeRecord(doc)
}

func (c *Codec) decodeRecord(doc recordDoc) (*Record, error) {
	r := New()
	if doc.ID != "" {
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: record id %q: %w", ErrInvalidDocument, doc.ID, err)
		}
		r.ID = id
	}

	for i, ed := range doc.Components {
		comp, err := c.decodeEntry(ed)
		if err != nil {
			return nil, fmt.Errorf("decoding component %d: %w", i, err)
		}
		r.Components = append(r.Components, comp)
	}
	for i, sd := range doc.SubEntities {
		child, err := c.decodeRecord(sd.Record)
		if err != nil {
			return nil, fmt.Errorf("decoding sub-entity %d: %w", i, err)
		}
		r.SubEntities = append(r.SubEntities, SubEntity{Name: sd.Name, DontFragment: sd.DontFragment, Record: child})
	}
	for i, fd := range doc.Fragments {
		f, err := c.decodeFragment(fd)
		if err != nil {
			return nil, fmt.Errorf("decoding fragment %d: %w", i, err)
		}
		r.Fragments = append(r.Fragments, f)
	}
	return r, nil
}

func (c *Codec) lookupType(name string, kinds ...refl.Kind) (*refl.Type, error) {
	t, ok := c.types.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	for _, k := range kinds {
		if t.Kind() == k {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is a %s", ErrInvalidDocument, t, t.Kind())
}

func decodeValue(t *refl.Type, node *rawNode) (refl.Value, error) {
	if node == nil {
		return refl.Value{}, nil
	}
	if t.Kind() != refl.KindStruct {
		return refl.Value{}, fmt.Errorf("%w: %s cannot hold a value", ErrInvalidDocument, t)
	}
	v := refl.NewValue(t)
	if err := node.node.Decode(reflect.NewAt(t.GoType(), v.Ptr()).Interface()); err != nil {
		return refl.Value{}, fmt.Errorf("decoding %s: %w", t, err)
	}
	return v, nil
}

func (c *Codec) decodeEntry(doc entryDoc) (Component, error) {
	switch doc.Kind {
	case "struct":
		t, err := c.lookupType(doc.Type, refl.KindStruct, refl.KindClass)
		if err != nil {
			return Component{}, err
		}
		v, err := decodeValue(t, doc.Value)
		if err != nil {
			return Component{}, err
		}
		return Component{Kind: EntryStruct, Type: t, Value: v}, nil
	case "id":
		if doc.ID == 0 {
			return Component{}, fmt.Errorf("%w: id entry without id", ErrInvalidDocument)
		}
		return ID(ecs.Id(doc.ID)), nil
	case "label":
		if doc.Label == "" {
			return Component{}, fmt.Errorf("%w: label entry without label", ErrInvalidDocument)
		}
		return Label(doc.Label), nil
	case "enum":
		t, err := c.lookupType(doc.Type, refl.KindEnum)
		if err != nil {
			return Component{}, err
		}
		for _, e := range t.Enumerators() {
			if e.Name == doc.Enumerator {
				return Enum(t, e.Value), nil
			}
		}
		return Component{}, fmt.Errorf("%w: %s has no enumerator %q", ErrInvalidDocument, t, doc.Enumerator)
	case "pair":
		if doc.First == nil || doc.Second == nil {
			return Component{}, fmt.Errorf("%w: pair entry needs first and second", ErrInvalidDocument)
		}
		first, err := c.decodeSlot(*doc.First)
		if err != nil {
			return Component{}, err
		}
		second, err := c.decodeSlot(*doc.Second)
		if err != nil {
			return Component{}, err
		}
		var side ValueSide
		switch doc.Side {
		case "", "none":
		case "first":
			side = SideFirst
		case "second":
			side = SideSecond
		default:
			return Component{}, fmt.Errorf("%w: value side %q", ErrInvalidDocument, doc.Side)
		}
		return PairEntry(NewPair(first, second, side)), nil
	}
	return Component{}, fmt.Errorf("%w: entry kind %q", ErrInvalidDocument, doc.Kind)
}

func (c *Codec) decodeSlot(doc slotDoc) (PairSlot, error) {
	switch doc.Kind {
	case "struct":
		t, err := c.lookupType(doc.Type, refl.KindStruct, refl.KindClass)
		if err != nil {
			return PairSlot{}, err
		}
		v, err := decodeValue(t, doc.Value)
		if err != nil {
			return PairSlot{}, err
		}
		return PairSlot{Kind: SlotKindStruct, Type: t, Value: v}, nil
	case "id":
		if doc.ID == 0 {
			return PairSlot{}, fmt.Errorf("%w: id slot without id", ErrInvalidDocument)
		}
		return SlotID(ecs.Id(doc.ID)), nil
	case "label":
		if doc.Label == "" {
			return PairSlot{}, fmt.Errorf("%w: label slot without label", ErrInvalidDocument)
		}
		return SlotLabel(doc.Label), nil
	}
	return PairSlot{}, fmt.Errorf("%w: slot kind %q", ErrInvalidDocument, doc.Kind)
}

func (c *Codec) decodeFragment(doc fragmentDoc) (Fragment, error) {
	factory, ok := c.fragments[doc.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFragment, doc.Kind)
	}
	f := factory()
	if doc.Spec == nil {
		return f, nil
	}
	if custom, ok := f.(fragmentCodec); ok {
		return f, custom.decodeSpec(c, doc.Spec.node)
	}
	if err := doc.Spec.node.Decode(f); err != nil {
		return nil, fmt.Errorf("decoding %s fragment: %w", doc.Kind, err)
	}
	return f, nil
}

func (f *QueryFragment) encodeSpec(*Codec) (*yaml.Node, error) {
	if f.Spec == nil {
		return nil, nil
	}
	data, err := query.Marshal(f.Spec)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	return node.Content[0], nil
}

func (f *QueryFragment) decodeSpec(c *Codec, n *yaml.Node) error {
	data, err := yaml.Marshal(n)
	if err != nil {
		return err
	}
	spec, err := query.Unmarshal(data, c.queries)
	if err != nil {
		return err
	}
	f.Spec = spec
	return nil
}
