package query

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/plus3/reflecs/ecs"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownType is returned when a document names a type the catalog lacks
	ErrUnknownType = errors.New("unknown type")
	// ErrUnknownCallback is returned when a document names a callback the
	// library lacks
	ErrUnknownCallback = errors.New("unknown callback")
	// ErrInvalidDocument is returned for malformed documents
	ErrInvalidDocument = errors.New("invalid query document")
)

type specDoc struct {
	Terms         []termDoc `yaml:"terms"`
	Expressions   []exprDoc `yaml:"expressions,omitempty"`
	DetectChanges bool      `yaml:"detect_changes,omitempty"`
	Flags         []string  `yaml:"flags,omitempty"`
}

type inputDoc struct {
	Kind   string    `yaml:"kind"`
	ID     uint64    `yaml:"id,omitempty"`
	Type   string    `yaml:"type,omitempty"`
	Name   string    `yaml:"name,omitempty"`
	Value  int64     `yaml:"value,omitempty"`
	First  *inputDoc `yaml:"first,omitempty"`
	Second *inputDoc `yaml:"second,omitempty"`
}

type termDoc struct {
	Input inputDoc   `yaml:",inline"`
	Oper  string     `yaml:"oper,omitempty"`
	InOut string     `yaml:"inout,omitempty"`
	Src   *sourceDoc `yaml:"src,omitempty"`
	Trav  *travDoc   `yaml:"trav,omitempty"`
}

type sourceDoc struct {
	Entity    uint64 `yaml:"entity,omitempty"`
	Path      string `yaml:"path,omitempty"`
	Var       string `yaml:"var,omitempty"`
	Singleton bool   `yaml:"singleton,omitempty"`
}

type travDoc struct {
	Kind         string    `yaml:"kind"`
	Relationship *inputDoc `yaml:"relationship,omitempty"`
}

type exprDoc struct {
	Kind     string   `yaml:"kind"`
	Input    inputDoc `yaml:"input"`
	Callback string   `yaml:"callback,omitempty"`
}

var (
	opers  = make(map[string]ecs.Oper)
	inouts = make(map[string]ecs.InOut)
	inputs = make(map[string]InputKind)
)

func init() {
	for op := ecs.And; op <= ecs.OrFrom; op++ {
		opers[op.String()] = op
	}
	for mode := ecs.InOutDefault; mode <= ecs.InOutFilter; mode++ {
		inouts[mode.String()] = mode
	}
	for k := InputID; k <= InputString; k++ {
		inputs[k.String()] = k
	}
}

// Marshal encodes a spec as YAML. Custom inputs and callbacks are written by
// name, reflected types by their catalog name.
func Marshal(s *Spec) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes a spec as YAML
func Encode(w io.Writer, s *Spec) error {
	doc := specDoc{
		Terms:         make([]termDoc, len(s.Terms)),
		DetectChanges: s.DetectChanges,
		Flags:         s.Flags.Names(),
	}
	for i, t := range s.Terms {
		td, err := encodeTerm(t)
		if err != nil {
			return fmt.Errorf("encoding term %d: %w", i, err)
		}
		doc.Terms[i] = td
	}
	for i, e := range s.Expressions {
		ed, err := encodeExpression(e)
		if err != nil {
			return fmt.Errorf("encoding expression %d: %w", i, err)
		}
		doc.Expressions = append(doc.Expressions, ed)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func encodeInput(in Input) (inputDoc, error) {
	doc := inputDoc{Kind: in.Kind.String()}
	switch in.Kind {
	case InputNone:
		return doc, fmt.Errorf("%w: empty input", ErrInvalidDocument)
	case InputID:
		doc.ID = uint64(in.ID)
	case InputStruct, InputEnum:
		if in.Type == nil {
			return doc, fmt.Errorf("%w: %s input without type", ErrInvalidDocument, in.Kind)
		}
		doc.Type = in.Type.Name()
	case InputEnumConstant:
		if in.Type == nil {
			return doc, fmt.Errorf("%w: enum constant without type", ErrInvalidDocument)
		}
		doc.Type = in.Type.Name()
		doc.Value = in.Value
	case InputName, InputString:
		doc.Name = in.Name
	case InputCustom:
		if in.Name == "" {
			return doc, fmt.Errorf("%w: custom input without name", ErrUnknownCallback)
		}
		doc.Name = in.Name
	case InputPair:
		if in.First == nil || in.Second == nil {
			return doc, fmt.Errorf("%w: pair input needs two sides", ErrInvalidDocument)
		}
		first, err := encodeInput(*in.First)
		if err != nil {
			return doc, err
		}
		second, err := encodeInput(*in.Second)
		if err != nil {
			return doc, err
		}
		doc.First, doc.Second = &first, &second
	}
	return doc, nil
}

func encodeTerm(t Term) (termDoc, error) {
	in, err := encodeInput(t.Input)
	if err != nil {
		return termDoc{}, err
	}
	doc := termDoc{Input: in}
	if t.Oper != ecs.And {
		doc.Oper = t.Oper.String()
	}
	if t.InOut != ecs.InOutDefault {
		doc.InOut = t.InOut.String()
	}
	switch t.Source.Kind {
	case SourceEntity:
		doc.Src = &sourceDoc{Entity: uint64(t.Source.Entity), Path: t.Source.Path}
	case SourceVar:
		doc.Src = &sourceDoc{Var: t.Source.Var}
	case SourceSingleton:
		doc.Src = &sourceDoc{Singleton: true}
	}
	if t.Trav.Kind != TraverseNone {
		doc.Trav = &travDoc{Kind: t.Trav.Kind.String()}
		if !t.Trav.Relationship.IsZero() {
			rel, err := encodeInput(t.Trav.Relationship)
			if err != nil {
				return termDoc{}, err
			}
			doc.Trav.Relationship = &rel
		}
	}
	return doc, nil
}

func encodeExpression(e Expression) (exprDoc, error) {
	in, err := encodeInput(e.Input)
	if err != nil {
		return exprDoc{}, err
	}
	hasFn := e.Compare != nil || e.Group != nil
	if hasFn && e.Callback == "" {
		return exprDoc{}, fmt.Errorf("%w: %s callback without name", ErrUnknownCallback, e.Kind)
	}
	return exprDoc{Kind: e.Kind.String(), Input: in, Callback: e.Callback}, nil
}

// Unmarshal decodes a YAML or JSON spec, resolving names through lib
func Unmarshal(data []byte, lib *Library) (*Spec, error) {
	return Decode(bytes.NewReader(data), lib)
}

// Decode reads a YAML or JSON spec, resolving names through lib
func Decode(r io.Reader, lib *Library) (*Spec, error) {
	var doc specDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding query spec: %w", err)
	}

	s := &Spec{DetectChanges: doc.DetectChanges}
	for _, name := range doc.Flags {
		f, ok := ParseFlag(name)
		if !ok {
			return nil, fmt.Errorf("%w: flag %q", ErrInvalidDocument, name)
		}
		s.Flags |= f
	}
	for i, td := range doc.Terms {
		t, err := decodeTerm(td, lib)
		if err != nil {
			return nil, fmt.Errorf("decoding term %d: %w", i, err)
		}
		s.Terms = append(s.Terms, t)
	}
	for i, ed := range doc.Expressions {
		e, err := decodeExpression(ed, lib)
		if err != nil {
			return nil, fmt.Errorf("decoding expression %d: %w", i, err)
		}
		s.Expressions = append(s.Expressions, e)
	}
	return s, nil
}

func decodeInput(doc inputDoc, lib *Library) (Input, error) {
	kind, ok := inputs[doc.Kind]
	if !ok {
		return Input{}, fmt.Errorf("%w: input kind %q", ErrInvalidDocument, doc.Kind)
	}

	in := Input{Kind: kind}
	switch kind {
	case InputID:
		in.ID = ecs.Id(doc.ID)
	case InputStruct, InputEnum, InputEnumConstant:
		t, ok := lib.types.Lookup(doc.Type)
		if !ok {
			return Input{}, fmt.Errorf("%w: %q", ErrUnknownType, doc.Type)
		}
		in.Type = t
		in.Value = doc.Value
	case InputName, InputString:
		if doc.Name == "" {
			return Input{}, fmt.Errorf("%w: %s input without name", ErrInvalidDocument, kind)
		}
		in.Name = doc.Name
	case InputCustom:
		fn, ok := lib.custom[doc.Name]
		if !ok {
			return Input{}, fmt.Errorf("%w: custom %q", ErrUnknownCallback, doc.Name)
		}
		in.Name, in.Custom = doc.Name, fn
	case InputPair:
		if doc.First == nil || doc.Second == nil {
			return Input{}, fmt.Errorf("%w: pair input needs first and second", ErrInvalidDocument)
		}
		first, err := decodeInput(*doc.First, lib)
		if err != nil {
			return Input{}, err
		}
		second, err := decodeInput(*doc.Second, lib)
		if err != nil {
			return Input{}, err
		}
		in.First, in.Second = &first, &second
	}
	return in, nil
}

func decodeTerm(doc termDoc, lib *Library) (Term, error) {
	in, err := decodeInput(doc.Input, lib)
	if err != nil {
		return Term{}, err
	}
	t := Term{Input: in}

	if doc.Oper != "" {
		op, ok := opers[doc.Oper]
		if !ok {
			return Term{}, fmt.Errorf("%w: oper %q", ErrInvalidDocument, doc.Oper)
		}
		t.Oper = op
	}
	if doc.InOut != "" {
		mode, ok := inouts[doc.InOut]
		if !ok {
			return Term{}, fmt.Errorf("%w: inout %q", ErrInvalidDocument, doc.InOut)
		}
		t.InOut = mode
	}

	if src := doc.Src; src != nil {
		switch {
		case src.Singleton:
			if src.Var != "" || src.Entity != 0 || src.Path != "" {
				return Term{}, fmt.Errorf("%w: singleton source names an entity", ErrInvalidDocument)
			}
			t.Source = FromSingleton()
		case src.Var != "":
			t.Source = FromVar(src.Var)
		case src.Entity != 0:
			t.Source = FromEntity(ecs.Id(src.Entity))
		case src.Path != "":
			t.Source = FromPath(src.Path)
		default:
			return Term{}, fmt.Errorf("%w: empty source", ErrInvalidDocument)
		}
	}

	if trav := doc.Trav; trav != nil {
		switch trav.Kind {
		case "up":
			t.Trav.Kind = TraverseUp
		case "cascade":
			t.Trav.Kind = TraverseCascade
		default:
			return Term{}, fmt.Errorf("%w: traversal %q", ErrInvalidDocument, trav.Kind)
		}
		if trav.Relationship != nil {
			rel, err := decodeInput(*trav.Relationship, lib)
			if err != nil {
				return Term{}, err
			}
			t.Trav.Relationship = rel
		}
	}
	return t, nil
}

func decodeExpression(doc exprDoc, lib *Library) (Expression, error) {
	in, err := decodeInput(doc.Input, lib)
	if err != nil {
		return Expression{}, err
	}
	e := Expression{Input: in, Callback: doc.Callback}

	switch doc.Kind {
	case "order_by":
		e.Kind = ExprOrderBy
		cmp, ok := lib.orderBy[doc.Callback]
		if !ok {
			return Expression{}, fmt.Errorf("%w: order_by %q", ErrUnknownCallback, doc.Callback)
		}
		e.Compare = cmp
	case "group_by":
		e.Kind = ExprGroupBy
		if doc.Callback != "" {
			fn, ok := lib.groupBy[doc.Callback]
			if !ok {
				return Expression{}, fmt.Errorf("%w: group_by %q", ErrUnknownCallback, doc.Callback)
			}
			e.Group = fn
		}
	default:
		return Expression{}, fmt.Errorf("%w: expression kind %q", ErrInvalidDocument, doc.Kind)
	}
	return e, nil
}
