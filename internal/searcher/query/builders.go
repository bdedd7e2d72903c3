package query

import (
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	bquery "github.com/blevesearch/bleve/v2/search/query"
)

// Inclusive selects which range bounds are part of the range.
type Inclusive uint8

const (
	IncludeNeither Inclusive = 0
	IncludeLower   Inclusive = 1 << 0
	IncludeUpper   Inclusive = 1 << 1
	IncludeBoth              = IncludeLower | IncludeUpper
)

func (i Inclusive) Lower() bool { return i&IncludeLower != 0 }
func (i Inclusive) Upper() bool { return i&IncludeUpper != 0 }

func (i Inclusive) String() string {
	switch i {
	case IncludeBoth:
		return "both"
	case IncludeLower:
		return "lower"
	case IncludeUpper:
		return "upper"
	default:
		return "neither"
	}
}

// ParseInclusive accepts both, lower, upper and neither.
func ParseInclusive(s string) (Inclusive, error) {
	switch s {
	case "", "both":
		return IncludeBoth, nil
	case "lower":
		return IncludeLower, nil
	case "upper":
		return IncludeUpper, nil
	case "neither":
		return IncludeNeither, nil
	}
	return 0, apperrors.Newf(apperrors.ErrInvalidInput, "inclusive must be both, lower, upper or neither, got %q", s)
}

// Number is the set of types a numeric field can be searched with.
type Number interface {
	uint64 | int64 | float64
}

func typeOf[T Number]() schema.FieldType {
	var zero T
	switch any(zero).(type) {
	case uint64:
		return schema.U64
	case int64:
		return schema.I64
	default:
		return schema.F64
	}
}

// TextField resolves name to an indexed text field.
func TextField(s *schema.Schema, name string) (schema.Field, error) {
	f, err := s.Lookup(name)
	if err != nil {
		return schema.Field{}, err
	}
	if f.Type != schema.Text {
		return schema.Field{}, apperrors.ForField(apperrors.ErrNotTextField, name, "field is %s", f.Type)
	}
	return f, nil
}

// Term matches value exactly in one field. Text values are not analyzed;
// numeric and boolean fields compare by typed equality.
func Term(s *schema.Schema, field, value string) (bquery.Query, Highlights, error) {
	f, err := s.Lookup(field)
	if err != nil {
		return nil, nil, err
	}
	hl := Highlights{}
	if f.Type == schema.Text {
		q := bquery.NewTermQuery(value)
		q.SetField(f.Name)
		hl.Add(f.Name, value)
		return q, hl, nil
	}
	q, err := typedEquals(f, value)
	if err != nil {
		return nil, nil, err
	}
	return q, hl, nil
}

// Range builds a numeric range over field. The field's declared type must
// match T. A nil bound is open.
func Range[T Number](s *schema.Schema, field string, lower, upper *T, incl Inclusive) (bquery.Query, error) {
	f, err := s.Lookup(field)
	if err != nil {
		return nil, err
	}
	if want := typeOf[T](); f.Type != want {
		return nil, apperrors.ForField(apperrors.ErrNotNumericField, field, "field is %s, range is %s", f.Type, want)
	}
	var lo, hi *float64
	if lower != nil {
		v := float64(*lower)
		lo = &v
	}
	if upper != nil {
		v := float64(*upper)
		hi = &v
	}
	return numericRange(f.Name, lo, hi, incl.Lower(), incl.Upper()), nil
}

func numericRange(field string, lo, hi *float64, incLo, incHi bool) bquery.Query {
	q := bquery.NewNumericRangeInclusiveQuery(lo, hi, &incLo, &incHi)
	q.SetField(field)
	return q
}

// Prefix matches every indexed token of a text field starting with prefix.
// The prefix is normalized the way indexed tokens are.
func Prefix(s *schema.Schema, field, prefix string) (bquery.Query, error) {
	f, err := TextField(s, field)
	if err != nil {
		return nil, err
	}
	p := tokenizer.Normalize(prefix)
	if p == "" {
		return nil, apperrors.ForField(apperrors.ErrInvalidPrefix, field, "prefix is empty")
	}
	q := bquery.NewPrefixQuery(p)
	q.SetField(f.Name)
	return q, nil
}

func typedEquals(f schema.Field, raw string) (bquery.Query, error) {
	if f.Type == schema.Bool {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, apperrors.ForField(apperrors.ErrQueryParse, f.Name, "%q is not a valid bool", raw)
		}
		q := bquery.NewBoolFieldQuery(b)
		q.SetField(f.Name)
		return q, nil
	}
	v, err := parseNumber(f, raw)
	if err != nil {
		return nil, err
	}
	return numericRange(f.Name, &v, &v, true, true), nil
}

func parseNumber(f schema.Field, raw string) (float64, error) {
	var (
		v   float64
		err error
	)
	switch f.Type {
	case schema.U64:
		var u uint64
		u, err = strconv.ParseUint(raw, 10, 64)
		v = float64(u)
	case schema.I64:
		var i int64
		i, err = strconv.ParseInt(raw, 10, 64)
		v = float64(i)
	case schema.F64:
		v, err = strconv.ParseFloat(raw, 64)
	default:
		return 0, apperrors.ForField(apperrors.ErrNotNumericField, f.Name, "field is %s", f.Type)
	}
	if err != nil {
		return 0, apperrors.ForField(apperrors.ErrQueryParse, f.Name, "%q is not a valid %s", raw, f.Type)
	}
	return v, nil
}
