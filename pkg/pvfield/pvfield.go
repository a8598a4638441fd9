// Package pvfield reads integer fields from process-variable structures
// served by a control-system channel.
//
// A Structure is a set of named fields. Each field carries a Descriptor
// that says at runtime whether it holds a single value or an array and
// which integer type the server reported; the descriptor alone decides
// whether a ScalarField or an ArrayField represents it.
package pvfield

import (
	"context"
	"fmt"
	"sort"
	"sync"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
)

// Kind separates single values from arrays.
type Kind int

const (
	// Scalar fields hold a single integer
	Scalar Kind = iota
	// Array fields hold a sequence of integers
	Array
)

func (k Kind) String() string {
	if k == Array {
		return "array"
	}
	return "scalar"
}

// Type is the integer type reported by the server.
type Type int

const (
	// Int8 is a signed 8-bit value ("byte")
	Int8 Type = iota
	// Int16 is a signed 16-bit value ("short")
	Int16
	// Int32 is a signed 32-bit value ("int")
	Int32
	// Int64 is a signed 64-bit value ("long")
	Int64
	// Uint8 is an unsigned 8-bit value ("ubyte")
	Uint8
	// Uint16 is an unsigned 16-bit value ("ushort")
	Uint16
	// Uint32 is an unsigned 32-bit value ("uint")
	Uint32
	// Uint64 is an unsigned 64-bit value ("ulong")
	Uint64
)

var typeNames = [...]string{"byte", "short", "int", "long", "ubyte", "ushort", "uint", "ulong"}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("type(%d)", int(t))
	}
	return typeNames[t]
}

// Descriptor is the runtime type information of a field.
type Descriptor struct {
	Name string
	Kind Kind
	Type Type
}

func (d Descriptor) String() string {
	if d.Kind == Array {
		return d.Type.String() + "[] " + d.Name
	}
	return d.Type.String() + " " + d.Name
}

// Field is one named value of a Structure.
type Field interface {
	Descriptor() Descriptor
}

// ScalarField holds a single integer.
type ScalarField struct {
	desc  Descriptor
	value int64
}

// Descriptor implements Field.
func (f *ScalarField) Descriptor() Descriptor { return f.desc }

// Value returns the field value.
func (f *ScalarField) Value() int64 { return f.value }

// Set replaces the field value.
func (f *ScalarField) Set(v int64) { f.value = v }

// ArrayField holds a sequence of integers.
type ArrayField struct {
	desc   Descriptor
	values []uint64
}

// Descriptor implements Field.
func (f *ArrayField) Descriptor() Descriptor { return f.desc }

// Len returns the reported length.
func (f *ArrayField) Len() int { return len(f.values) }

// Values returns the stored elements. Callers must not modify them.
func (f *ArrayField) Values() []uint64 { return f.values }

// Set replaces the stored elements with a copy of v.
func (f *ArrayField) Set(v []uint64) {
	f.values = append(f.values[:0:0], v...)
}

// NewField returns an empty field of the variant desc selects.
func NewField(desc Descriptor) (Field, error) {
	if desc.Name == "" {
		return nil, nerrors.New(nerrors.ErrorTypeConfig, "field name is required")
	}
	if desc.Type < Int8 || desc.Type > Uint64 {
		return nil, nerrors.Newf(nerrors.ErrorTypeFieldType, "unsupported type %s for field %q", desc.Type, desc.Name)
	}
	switch desc.Kind {
	case Scalar:
		return &ScalarField{desc: desc}, nil
	case Array:
		return &ArrayField{desc: desc}, nil
	default:
		return nil, nerrors.Newf(nerrors.ErrorTypeFieldType, "unsupported kind %d for field %q", int(desc.Kind), desc.Name)
	}
}

// NewScalar returns a scalar field holding v.
func NewScalar(name string, t Type, v int64) *ScalarField {
	return &ScalarField{desc: Descriptor{Name: name, Kind: Scalar, Type: t}, value: v}
}

// NewArray returns an array field holding a copy of v.
func NewArray(name string, t Type, v []uint64) *ArrayField {
	f := &ArrayField{desc: Descriptor{Name: name, Kind: Array, Type: t}}
	f.Set(v)
	return f
}

// Structure is the value of a process variable: a set of named fields.
type Structure struct {
	fields map[string]Field
}

// NewStructure builds a structure from fields. Names must be unique and no
// field may be nil.
func NewStructure(fields ...Field) (*Structure, error) {
	s := &Structure{fields: make(map[string]Field, len(fields))}
	for i, f := range fields {
		if isNil(f) {
			return nil, nerrors.Newf(nerrors.ErrorTypeConfig, "field %d is nil", i)
		}
		name := f.Descriptor().Name
		if _, dup := s.fields[name]; dup {
			return nil, nerrors.Newf(nerrors.ErrorTypeConfig, "duplicate field %q", name)
		}
		s.fields[name] = f
	}
	return s, nil
}

func isNil(f Field) bool {
	switch v := f.(type) {
	case nil:
		return true
	case *ScalarField:
		return v == nil
	case *ArrayField:
		return v == nil
	}
	return false
}

// Field returns the named field.
func (s *Structure) Field(name string) (Field, bool) {
	if s == nil {
		return nil, false
	}
	f, ok := s.fields[name]
	return f, ok
}

// Names returns the field names in sorted order.
func (s *Structure) Names() []string {
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Channel fetches the current structure of a process variable.
type Channel interface {
	Get(ctx context.Context, pv string) (*Structure, error)
}

// GetScalar reads a scalar field of pv.
func GetScalar(ctx context.Context, ch Channel, pv, field string) (int64, error) {
	f, err := lookup(ctx, ch, pv, field)
	if err != nil {
		return 0, err
	}
	sf, ok := f.(*ScalarField)
	if !ok {
		return 0, typeMismatch(pv, f.Descriptor(), Scalar)
	}
	return sf.Value(), nil
}

// GetArray reads an array field of pv into dst, resized to the reported
// length, and returns it.
func GetArray(ctx context.Context, ch Channel, pv, field string, dst []uint64) ([]uint64, error) {
	f, err := lookup(ctx, ch, pv, field)
	if err != nil {
		return dst, err
	}
	af, ok := f.(*ArrayField)
	if !ok {
		return dst, typeMismatch(pv, f.Descriptor(), Array)
	}

	n := af.Len()
	if cap(dst) < n {
		dst = make([]uint64, n)
	}
	dst = dst[:n]
	copy(dst, af.Values())
	return dst, nil
}

func lookup(ctx context.Context, ch Channel, pv, field string) (Field, error) {
	s, err := ch.Get(ctx, pv)
	if err != nil {
		return nil, err
	}
	f, ok := s.Field(field)
	if !ok {
		return nil, nerrors.Newf(nerrors.ErrorTypeMissingField, "field %q not found on %s", field, pv).
			WithDetail("pv", pv).
			WithDetail("field", field)
	}
	return f, nil
}

func typeMismatch(pv string, desc Descriptor, want Kind) error {
	return nerrors.Newf(nerrors.ErrorTypeFieldType, "field %q of %s is %s, not %s", desc.Name, pv, desc.Kind, want).
		WithDetail("pv", pv).
		WithDetail("descriptor", desc.String())
}

// MemoryChannel serves structures from memory.
type MemoryChannel struct {
	mu  sync.RWMutex
	pvs map[string]*Structure
}

// NewMemoryChannel returns an empty channel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{pvs: make(map[string]*Structure)}
}

// Put publishes s under pv, replacing any previous value.
func (c *MemoryChannel) Put(pv string, s *Structure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pvs[pv] = s
}

// Get implements Channel.
func (c *MemoryChannel) Get(ctx context.Context, pv string) (*Structure, error) {
	if err := ctx.Err(); err != nil {
		return nil, nerrors.Wrap(err, nerrors.ErrorTypeCancelled, "channel get cancelled")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.pvs[pv]
	if !ok {
		return nil, nerrors.Newf(nerrors.ErrorTypeSourceUnavailable, "process variable %s is not connected", pv).
			WithDetail("pv", pv)
	}
	return s, nil
}
