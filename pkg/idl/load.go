package idl

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

type rawDocument struct {
	Address      string            `json:"address"`
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Metadata     *rawMetadata      `json:"metadata"`
	Instructions []json.RawMessage `json:"instructions"`
	Accounts     []rawTypeDef      `json:"accounts"`
	Types        []rawTypeDef      `json:"types"`
}

type rawMetadata struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type rawInstruction struct {
	Name          string            `json:"name"`
	Accounts      []json.RawMessage `json:"accounts"`
	Args          []rawField        `json:"args"`
	Returns       json.RawMessage   `json:"returns"`
	Discriminator []int             `json:"discriminator"`
}

type rawAccount struct {
	Name       string            `json:"name"`
	IsMut      bool              `json:"isMut"`
	Writable   bool              `json:"writable"`
	IsSigner   bool              `json:"isSigner"`
	Signer     bool              `json:"signer"`
	IsOptional bool              `json:"isOptional"`
	Optional   bool              `json:"optional"`
	Accounts   []json.RawMessage `json:"accounts"`
}

type rawField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

type rawTypeDef struct {
	Name string       `json:"name"`
	Type *rawTypeBody `json:"type"`
}

type rawTypeBody struct {
	Kind             string            `json:"kind"`
	Fields           []json.RawMessage `json:"fields"`
	Variants         []rawVariant      `json:"variants"`
	DiscriminantSize int               `json:"discriminantSize"`
	Value            json.RawMessage   `json:"value"`
	Alias            json.RawMessage   `json:"alias"`
}

type rawVariant struct {
	Name         string            `json:"name"`
	Fields       []json.RawMessage `json:"fields"`
	Discriminant *uint32           `json:"discriminant"`
}

// Load parses an IDL document. Both the legacy Anchor layout emitted by
// Solang (isMut, isSigner, "defined": "Name") and the current Anchor layout
// (writable, signer, "defined": {"name": ...}) are accepted.
func Load(b []byte) (*Definition, error) {
	var doc rawDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrapf(ErrMalformedIdl, "invalid json: %v", err)
	}
	if doc.Instructions == nil {
		return nil, errors.Wrap(ErrMalformedIdl, "missing instructions")
	}

	d := &Definition{
		Name:         doc.Name,
		Version:      doc.Version,
		instructions: make(map[string]*Instruction),
		types:        make(map[string]*Type),
	}

	address := doc.Address
	if doc.Metadata != nil {
		if address == "" {
			address = doc.Metadata.Address
		}
		if d.Name == "" {
			d.Name = doc.Metadata.Name
		}
		if d.Version == "" {
			d.Version = doc.Metadata.Version
		}
	}
	if address != "" {
		programID, err := parseProgramID(address)
		if err != nil {
			return nil, err
		}
		d.programID = programID
	}

	// Legacy documents declare account layouts alongside types. Current ones
	// only list a discriminator here and keep the layout under types.
	defs := make([]rawTypeDef, 0, len(doc.Accounts)+len(doc.Types))
	for _, def := range doc.Accounts {
		if def.Type != nil {
			defs = append(defs, def)
		}
	}
	defs = append(defs, doc.Types...)

	for _, def := range defs {
		t, err := parseTypeDef(def)
		if err != nil {
			return nil, err
		}
		if _, exists := d.types[def.Name]; exists {
			return nil, errors.Wrapf(ErrMalformedIdl, "duplicate type %q", def.Name)
		}
		d.types[def.Name] = t
	}

	for i, raw := range doc.Instructions {
		ix, err := parseInstruction(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "instruction %d", i)
		}
		if _, exists := d.instructions[ix.Name]; exists {
			return nil, errors.Wrapf(ErrMalformedIdl, "duplicate instruction %q", ix.Name)
		}
		d.instructions[ix.Name] = ix
		d.order = append(d.order, ix.Name)
	}

	if err := link(d); err != nil {
		return nil, err
	}

	return d, nil
}

func parseInstruction(raw json.RawMessage) (*Instruction, error) {
	var r rawInstruction
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errors.Wrapf(ErrMalformedIdl, "invalid instruction: %v", err)
	}
	if r.Name == "" {
		return nil, errors.Wrap(ErrMalformedIdl, "missing instruction name")
	}
	if r.Accounts == nil {
		return nil, errors.Wrapf(ErrMalformedIdl, "instruction %q: missing accounts", r.Name)
	}
	if r.Args == nil {
		return nil, errors.Wrapf(ErrMalformedIdl, "instruction %q: missing args", r.Name)
	}

	ix := &Instruction{Name: r.Name}

	accounts, err := parseAccounts(r.Accounts, "")
	if err != nil {
		return nil, errors.Wrapf(err, "instruction %q", r.Name)
	}
	seen := make(map[string]struct{})
	for _, slot := range accounts {
		if _, dup := seen[slot.Name]; dup {
			return nil, errors.Wrapf(ErrMalformedIdl, "instruction %q: duplicate account %q", r.Name, slot.Name)
		}
		seen[slot.Name] = struct{}{}
	}
	ix.Accounts = accounts

	seen = make(map[string]struct{})
	for _, arg := range r.Args {
		if arg.Name == "" {
			return nil, errors.Wrapf(ErrMalformedIdl, "instruction %q: unnamed arg", r.Name)
		}
		if _, dup := seen[arg.Name]; dup {
			return nil, errors.Wrapf(ErrMalformedIdl, "instruction %q: duplicate arg %q", r.Name, arg.Name)
		}
		seen[arg.Name] = struct{}{}

		t, err := parseType(arg.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "instruction %q: arg %q", r.Name, arg.Name)
		}
		ix.Args = append(ix.Args, Arg{Name: arg.Name, Type: t})
	}

	if !isNull(r.Returns) {
		if ix.Returns, err = parseType(r.Returns); err != nil {
			return nil, errors.Wrapf(err, "instruction %q: returns", r.Name)
		}
	}

	if r.Discriminator != nil {
		if len(r.Discriminator) != DiscriminatorSize {
			return nil, errors.Wrapf(ErrMalformedIdl, "instruction %q: discriminator must be %d bytes", r.Name, DiscriminatorSize)
		}
		ix.Discriminator = make([]byte, DiscriminatorSize)
		for i, v := range r.Discriminator {
			if v < 0 || v > 255 {
				return nil, errors.Wrapf(ErrMalformedIdl, "instruction %q: invalid discriminator byte %d", r.Name, v)
			}
			ix.Discriminator[i] = byte(v)
		}
	}

	return ix, nil
}

// parseAccounts flattens nested account groups in declaration order. Members
// of a group are named "<group>.<member>".
func parseAccounts(raws []json.RawMessage, prefix string) ([]AccountSlot, error) {
	var slots []AccountSlot
	for _, raw := range raws {
		var r rawAccount
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, errors.Wrapf(ErrMalformedIdl, "invalid account: %v", err)
		}
		if r.Name == "" {
			return nil, errors.Wrap(ErrMalformedIdl, "missing account name")
		}

		name := prefix + r.Name
		if r.Accounts != nil {
			nested, err := parseAccounts(r.Accounts, name+".")
			if err != nil {
				return nil, err
			}
			slots = append(slots, nested...)
			continue
		}

		slots = append(slots, AccountSlot{
			Name:     name,
			Signer:   r.IsSigner || r.Signer,
			Writable: r.IsMut || r.Writable,
			Optional: r.IsOptional || r.Optional,
		})
	}
	return slots, nil
}

func parseTypeDef(def rawTypeDef) (*Type, error) {
	if def.Name == "" {
		return nil, errors.Wrap(ErrMalformedIdl, "missing type name")
	}
	if def.Type == nil {
		return nil, errors.Wrapf(ErrMalformedIdl, "type %q: missing type", def.Name)
	}

	body := def.Type
	switch body.Kind {
	case "struct":
		fields, err := parseFields(body.Fields)
		if err != nil {
			return nil, errors.Wrapf(err, "type %q", def.Name)
		}
		return &Type{Kind: KindStruct, Name: def.Name, Fields: fields}, nil
	case "enum":
		t, err := parseEnum(body)
		if err != nil {
			return nil, errors.Wrapf(err, "type %q", def.Name)
		}
		t.Name = def.Name
		return t, nil
	case "alias", "type":
		raw := body.Value
		if isNull(raw) {
			raw = body.Alias
		}
		t, err := parseType(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "type %q", def.Name)
		}
		return t, nil
	case "":
		return nil, errors.Wrapf(ErrMalformedIdl, "type %q: missing kind", def.Name)
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "type %q: kind %q", def.Name, body.Kind)
	}
}

func parseEnum(body *rawTypeBody) (*Type, error) {
	size := body.DiscriminantSize
	if size == 0 {
		size = 1
	}
	if size != 1 && size != 2 && size != 4 {
		return nil, errors.Wrapf(ErrMalformedIdl, "invalid discriminant size %d", size)
	}
	if len(body.Variants) == 0 {
		return nil, errors.Wrap(ErrMalformedIdl, "enum has no variants")
	}

	limit := uint64(1)<<(8*uint(size)) - 1

	t := &Type{Kind: KindEnum, DiscriminantSize: size}
	names := make(map[string]struct{})
	indices := make(map[uint32]struct{})
	for i, rv := range body.Variants {
		if rv.Name == "" {
			return nil, errors.Wrapf(ErrMalformedIdl, "variant %d: missing name", i)
		}
		if _, dup := names[rv.Name]; dup {
			return nil, errors.Wrapf(ErrMalformedIdl, "duplicate variant %q", rv.Name)
		}
		names[rv.Name] = struct{}{}

		index := uint32(i)
		if rv.Discriminant != nil {
			index = *rv.Discriminant
		}
		if uint64(index) > limit {
			return nil, errors.Wrapf(ErrMalformedIdl, "variant %q: discriminant %d exceeds %d byte width", rv.Name, index, size)
		}
		if _, dup := indices[index]; dup {
			return nil, errors.Wrapf(ErrMalformedIdl, "variant %q: duplicate discriminant %d", rv.Name, index)
		}
		indices[index] = struct{}{}

		v := Variant{Name: rv.Name, Index: index}
		if len(rv.Fields) > 0 {
			fields, err := parseFields(rv.Fields)
			if err != nil {
				return nil, errors.Wrapf(err, "variant %q", rv.Name)
			}
			v.Payload = Struct(fields...)
		}
		t.Variants = append(t.Variants, v)
	}

	return t, nil
}

// parseFields accepts named fields ({"name", "type"}) or tuple fields (bare
// types), which are named by position.
func parseFields(raws []json.RawMessage) ([]Field, error) {
	fields := make([]Field, 0, len(raws))
	seen := make(map[string]struct{})
	for i, raw := range raws {
		var keys map[string]json.RawMessage
		_ = json.Unmarshal(raw, &keys)

		name := strconv.Itoa(i)
		typeRaw := raw
		if nameRaw, ok := keys["name"]; ok {
			if err := json.Unmarshal(nameRaw, &name); err != nil || name == "" {
				return nil, errors.Wrapf(ErrMalformedIdl, "field %d: invalid name", i)
			}
			if typeRaw, ok = keys["type"]; !ok {
				return nil, errors.Wrapf(ErrMalformedIdl, "field %q: missing type", name)
			}
		}

		if _, dup := seen[name]; dup {
			return nil, errors.Wrapf(ErrMalformedIdl, "duplicate field %q", name)
		}
		seen[name] = struct{}{}

		t, err := parseType(typeRaw)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", name)
		}
		fields = append(fields, Field{Name: name, Type: t})
	}
	return fields, nil
}

func parseType(raw json.RawMessage) (*Type, error) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return nil, errors.Wrap(ErrMalformedIdl, "missing type")
	}

	switch raw[0] {
	case '"':
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, errors.Wrapf(ErrMalformedIdl, "invalid type: %v", err)
		}
		kind, ok := primitiveNames[name]
		if !ok {
			return nil, errors.Wrapf(ErrUnsupportedType, "%q", name)
		}
		return Primitive(kind), nil
	case '{':
	default:
		return nil, errors.Wrapf(ErrMalformedIdl, "invalid type %s", raw)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errors.Wrapf(ErrMalformedIdl, "invalid type: %v", err)
	}
	if len(obj) != 1 {
		return nil, errors.Wrapf(ErrMalformedIdl, "type object must have exactly one key: %s", raw)
	}

	for tag, value := range obj {
		switch tag {
		case "vec":
			elem, err := parseType(value)
			if err != nil {
				return nil, err
			}
			return Vector(elem), nil
		case "option":
			elem, err := parseType(value)
			if err != nil {
				return nil, err
			}
			return Option(elem), nil
		case "array":
			var parts []json.RawMessage
			if err := json.Unmarshal(value, &parts); err != nil || len(parts) != 2 {
				return nil, errors.Wrapf(ErrMalformedIdl, "array must be [type, length]: %s", value)
			}
			elem, err := parseType(parts[0])
			if err != nil {
				return nil, err
			}
			var length int
			if err := json.Unmarshal(parts[1], &length); err != nil {
				return nil, errors.Wrapf(ErrUnsupportedType, "array length %s", parts[1])
			}
			if length < 0 {
				return nil, errors.Wrapf(ErrMalformedIdl, "negative array length %d", length)
			}
			return Array(elem, length), nil
		case "defined":
			name, err := parseDefinedName(value)
			if err != nil {
				return nil, err
			}
			return &Type{Kind: KindDefined, Name: name}, nil
		default:
			return nil, errors.Wrapf(ErrUnsupportedType, "%q", tag)
		}
	}

	return nil, errors.Wrapf(ErrMalformedIdl, "invalid type %s", raw)
}

func parseDefinedName(raw json.RawMessage) (string, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		if name == "" {
			return "", errors.Wrap(ErrMalformedIdl, "empty defined type name")
		}
		return name, nil
	}

	var ref struct {
		Name     string            `json:"name"`
		Generics []json.RawMessage `json:"generics"`
	}
	if err := json.Unmarshal(raw, &ref); err != nil || ref.Name == "" {
		return "", errors.Wrapf(ErrMalformedIdl, "invalid defined type %s", raw)
	}
	if len(ref.Generics) > 0 {
		return "", errors.Wrapf(ErrUnsupportedType, "generic type %q", ref.Name)
	}
	return ref.Name, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

const (
	unvisited = iota
	visiting
	visited
)

type linker struct {
	types map[string]*Type
	state map[string]int
}

// link binds every defined reference to its target and rejects cyclic
// definitions.
func link(d *Definition) error {
	l := &linker{
		types: d.types,
		state: make(map[string]int),
	}

	for name := range d.types {
		if err := l.visit(name); err != nil {
			return err
		}
	}

	for _, name := range d.order {
		ix := d.instructions[name]
		for _, arg := range ix.Args {
			if err := l.link(arg.Type); err != nil {
				return errors.Wrapf(err, "instruction %q: arg %q", ix.Name, arg.Name)
			}
		}
		if err := l.link(ix.Returns); err != nil {
			return errors.Wrapf(err, "instruction %q: returns", ix.Name)
		}
	}

	return nil
}

func (l *linker) visit(name string) error {
	switch l.state[name] {
	case visited:
		return nil
	case visiting:
		return errors.Wrapf(ErrMalformedIdl, "cyclic type definition through %q", name)
	}

	l.state[name] = visiting
	if err := l.link(l.types[name]); err != nil {
		return err
	}
	l.state[name] = visited
	return nil
}

func (l *linker) link(t *Type) error {
	if t == nil {
		return nil
	}

	switch t.Kind {
	case KindDefined:
		target, ok := l.types[t.Name]
		if !ok {
			return errors.Wrapf(ErrMalformedIdl, "unresolvable type %q", t.Name)
		}
		t.target = target
		return l.visit(t.Name)
	case KindVector, KindOption, KindArray:
		return l.link(t.Elem)
	case KindStruct:
		for _, f := range t.Fields {
			if err := l.link(f.Type); err != nil {
				return err
			}
		}
	case KindEnum:
		for _, v := range t.Variants {
			if err := l.link(v.Payload); err != nil {
				return err
			}
		}
	}

	return nil
}
