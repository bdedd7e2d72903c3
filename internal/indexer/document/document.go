// Package document converts dynamically typed documents into the field
// values the index engine accepts, checking every value against the schema.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// Document maps field names to values. Values may be strings, any Go integer
// or float type, json.Number, or bool. Keys unknown to the schema are ignored.
type Document map[string]any

// ToIndexable checks doc against s and returns the engine-ready field map.
// Numeric values are emitted as float64, which is the engine's numeric
// representation; integers above 2^53 lose precision. Fields that are
// neither stored nor indexed are checked but not emitted.
func ToIndexable(s *schema.Schema, doc Document) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	for _, f := range s.Fields() {
		raw, ok := doc[f.Name]
		if !ok || raw == nil {
			continue
		}
		v, err := coerce(f, raw)
		if err != nil {
			return nil, err
		}
		if !f.Stored && !f.Indexed {
			continue
		}
		out[f.Name] = v
	}
	return out, nil
}

// Coerce converts a single value to the Go type matching the field:
// string, uint64, int64, float64 or bool.
func Coerce(f schema.Field, raw any) (any, error) {
	switch f.Type {
	case schema.Text:
		s, ok := raw.(string)
		if !ok {
			return nil, mismatch(f, raw)
		}
		return s, nil
	case schema.U64:
		u, ok := toUint64(raw)
		if !ok {
			return nil, mismatch(f, raw)
		}
		return u, nil
	case schema.I64:
		i, ok := toInt64(raw)
		if !ok {
			return nil, mismatch(f, raw)
		}
		return i, nil
	case schema.F64:
		x, ok := toFloat64(raw)
		if !ok {
			return nil, mismatch(f, raw)
		}
		return x, nil
	case schema.Bool:
		b, ok := raw.(bool)
		if !ok {
			return nil, mismatch(f, raw)
		}
		return b, nil
	default:
		return nil, apperrors.ForField(apperrors.ErrUnknownFieldType, f.Name, "%s", f.Type)
	}
}

func coerce(f schema.Field, raw any) (any, error) {
	v, err := Coerce(f, raw)
	if err != nil {
		return nil, err
	}
	switch n := v.(type) {
	case uint64:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return v, nil
	}
}

func mismatch(f schema.Field, raw any) error {
	return apperrors.TypeMismatch(f.Name, f.Type.String(), describe(raw))
}

func toUint64(raw any) (uint64, bool) {
	switch n := raw.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case int, int8, int16, int32, int64:
		i, _ := toInt64(n)
		if i < 0 {
			return 0, false
		}
		return uint64(i), true
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		return u, err == nil
	default:
		return 0, false
	}
}

func toInt64(raw any) (int64, bool) {
	switch n := raw.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint, uint8, uint16, uint32, uint64:
		u, _ := toUint64(n)
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case json.Number:
		i, err := strconv.ParseInt(n.String(), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func toFloat64(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int, int8, int16, int32, int64:
		i, _ := toInt64(n)
		return float64(i), true
	case uint, uint8, uint16, uint32, uint64:
		u, _ := toUint64(n)
		return float64(u), true
	case json.Number:
		x, err := n.Float64()
		return x, err == nil
	default:
		return 0, false
	}
}

func describe(raw any) string {
	switch n := raw.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int8, int16, int32, int64:
		return "signed integer"
	case uint, uint8, uint16, uint32, uint64:
		return "unsigned integer"
	case float32, float64:
		return "float"
	case json.Number:
		return fmt.Sprintf("number %s", n.String())
	default:
		return fmt.Sprintf("%T", raw)
	}
}

// Decode reads one JSON object, keeping numbers as json.Number so integer
// fields are not routed through float64 before conversion.
func Decode(r io.Reader) (Document, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "decoding document: %v", err)
	}
	return doc, nil
}

// DecodeMany accepts either a single JSON object or an array of objects.
func DecodeMany(data []byte) ([]Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "empty document body")
	}
	if trimmed[0] != '[' {
		doc, err := Decode(bytes.NewReader(trimmed))
		if err != nil {
			return nil, err
		}
		return []Document{doc}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var docs []Document
	if err := dec.Decode(&docs); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "decoding documents: %v", err)
	}
	return docs, nil
}
