// Package schema defines the typed field model an index is built from.
// A Schema is an ordered list of uniquely named fields, each with a value
// type and independent stored/indexed flags. It is validated before any
// storage is touched and persisted inside the index as a YAML descriptor.
package schema

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FieldType is the declared value type of a field.
type FieldType uint8

const (
	Text FieldType = iota + 1
	U64
	I64
	F64
	Bool
)

var typeNames = map[FieldType]string{
	Text: "text",
	U64:  "u64",
	I64:  "i64",
	F64:  "f64",
	Bool: "bool",
}

func (t FieldType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", uint8(t))
}

// IsNumeric reports whether t is one of the numeric types.
func (t FieldType) IsNumeric() bool {
	return t == U64 || t == I64 || t == F64
}

// ParseFieldType maps a type name (text, u64, i64, f64, bool) to a FieldType.
// A few common aliases are accepted.
func ParseFieldType(name string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "text", "string":
		return Text, nil
	case "u64", "uint64":
		return U64, nil
	case "i64", "int64":
		return I64, nil
	case "f64", "float64":
		return F64, nil
	case "bool", "boolean":
		return Bool, nil
	default:
		return 0, apperrors.Newf(apperrors.ErrUnknownFieldType, "%q", name)
	}
}

func (t FieldType) MarshalText() ([]byte, error) {
	name, ok := typeNames[t]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnknownFieldType, "%d", uint8(t))
	}
	return []byte(name), nil
}

func (t *FieldType) UnmarshalText(data []byte) error {
	parsed, err := ParseFieldType(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Field is one named, typed column of a schema.
type Field struct {
	Name    string    `yaml:"name" json:"name"`
	Type    FieldType `yaml:"type" json:"type"`
	Stored  bool      `yaml:"stored" json:"stored"`
	Indexed bool      `yaml:"indexed" json:"indexed"`
}

// Options carries the storage flags of a field.
type Options struct {
	Stored  bool
	Indexed bool
}

// Schema is an ordered collection of fields. It is not safe for concurrent
// mutation; build it once, validate it, then hand it to the index.
type Schema struct {
	fields []Field
}

func New() *Schema {
	return &Schema{}
}

// FromFields builds a schema from an existing field list.
func FromFields(fields []Field) *Schema {
	s := New()
	s.fields = append(s.fields, fields...)
	return s
}

// FromConfig builds a schema from the YAML field declarations of the
// server configuration.
func FromConfig(fields []config.FieldConfig) (*Schema, error) {
	s := New()
	for _, fc := range fields {
		t, err := ParseFieldType(fc.Type)
		if err != nil {
			return nil, apperrors.ForField(apperrors.ErrUnknownFieldType, fc.Name, "%q", fc.Type)
		}
		s.AddField(fc.Name, t, Options{Stored: fc.Stored, Indexed: fc.Indexed})
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// AddField appends a field. Duplicates are accepted here and rejected by
// Validate.
func (s *Schema) AddField(name string, t FieldType, opts Options) *Schema {
	s.fields = append(s.fields, Field{
		Name:    name,
		Type:    t,
		Stored:  opts.Stored,
		Indexed: opts.Indexed,
	})
	return s
}

// Validate checks that the schema has at least one field, that every name is
// usable and that no name repeats.
func (s *Schema) Validate() error {
	if s == nil || len(s.fields) == 0 {
		return apperrors.New(apperrors.ErrEmptySchema, "at least one field is required")
	}
	seen := make(map[string]struct{}, len(s.fields))
	for _, f := range s.fields {
		if f.Name == "" {
			return apperrors.New(apperrors.ErrInvalidFieldName, "field name is empty")
		}
		if strings.HasPrefix(f.Name, "_") {
			return apperrors.ForField(apperrors.ErrInvalidFieldName, f.Name, "names starting with '_' are reserved")
		}
		if _, ok := typeNames[f.Type]; !ok {
			return apperrors.ForField(apperrors.ErrUnknownFieldType, f.Name, "%s", f.Type)
		}
		if _, dup := seen[f.Name]; dup {
			return apperrors.ForField(apperrors.ErrDuplicateFieldName, f.Name, "")
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// Fields returns a copy of the fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks a field up by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Lookup is Field with a FieldNotFound error for unknown names.
func (s *Schema) Lookup(name string) (Field, error) {
	f, ok := s.Field(name)
	if !ok {
		return Field{}, apperrors.ForField(apperrors.ErrFieldNotFound, name, "")
	}
	return f, nil
}

func (s *Schema) Len() int {
	return len(s.fields)
}

// Equal reports whether both schemas declare the same fields in the same
// order.
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.fields) != len(other.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != other.fields[i] {
			return false
		}
	}
	return true
}

type descriptor struct {
	Version int     `yaml:"version"`
	Fields  []Field `yaml:"fields"`
}

const descriptorVersion = 1

// Encode serialises the schema into the descriptor stored with the index.
func (s *Schema) Encode() ([]byte, error) {
	data, err := yaml.Marshal(descriptor{Version: descriptorVersion, Fields: s.fields})
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}
	return data, nil
}

// Decode parses a descriptor written by Encode and validates the result.
func Decode(data []byte) (*Schema, error) {
	var d descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	if d.Version != descriptorVersion {
		return nil, fmt.Errorf("decoding schema: unsupported descriptor version %d", d.Version)
	}
	s := FromFields(d.Fields)
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	return s, nil
}
