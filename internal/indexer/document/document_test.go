package document

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *schema.Schema {
	all := schema.Options{Stored: true, Indexed: true}
	return schema.New().
		AddField("title", schema.Text, all).
		AddField("views", schema.U64, all).
		AddField("delta", schema.I64, all).
		AddField("rating", schema.F64, all).
		AddField("draft", schema.Bool, all).
		AddField("scratch", schema.Text, schema.Options{})
}

func TestToIndexableTypedValues(t *testing.T) {
	out, err := ToIndexable(testSchema(), Document{
		"title":  "Elixir Guide",
		"views":  uint32(500),
		"delta":  -3,
		"rating": float32(4.5),
		"draft":  false,
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"title":  "Elixir Guide",
		"views":  float64(500),
		"delta":  float64(-3),
		"rating": float64(4.5),
		"draft":  false,
	}, out)
}

func TestToIndexableDropsUnknownAndMissing(t *testing.T) {
	out, err := ToIndexable(testSchema(), Document{
		"title":   "only a title",
		"unknown": 42,
		"views":   nil,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "only a title"}, out)
}

func TestToIndexableSkipsUnstoredUnindexed(t *testing.T) {
	out, err := ToIndexable(testSchema(), Document{"scratch": "kept out"})
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = ToIndexable(testSchema(), Document{"scratch": 12})
	assert.ErrorIs(t, err, apperrors.ErrFieldTypeMismatch)
}

func TestToIndexableMismatch(t *testing.T) {
	tests := []struct {
		name   string
		doc    Document
		field  string
		actual string
	}{
		{"text from int", Document{"title": 12}, "title", "signed integer"},
		{"u64 from negative", Document{"views": -1}, "views", "signed integer"},
		{"u64 from float", Document{"views": 1.5}, "views", "float"},
		{"u64 from string", Document{"views": "100"}, "views", "string"},
		{"i64 from huge unsigned", Document{"delta": uint64(math.MaxUint64)}, "delta", "unsigned integer"},
		{"f64 from bool", Document{"rating": true}, "rating", "bool"},
		{"bool from string", Document{"draft": "false"}, "draft", "string"},
		{"slice", Document{"title": []string{"a"}}, "title", "[]string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToIndexable(testSchema(), tt.doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrFieldTypeMismatch)
			assert.Equal(t, apperrors.KindConversion, apperrors.KindOf(err))
			assert.Equal(t, tt.field, apperrors.FieldOf(err))
			assert.Contains(t, err.Error(), tt.actual)
		})
	}
}

func TestCoerceNumericCrossing(t *testing.T) {
	s := testSchema()
	views, _ := s.Field("views")
	delta, _ := s.Field("delta")
	rating, _ := s.Field("rating")

	v, err := Coerce(views, int64(7))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)

	v, err = Coerce(delta, uint8(9))
	require.NoError(t, err)
	assert.Equal(t, int64(9), v)

	v, err = Coerce(rating, 3)
	require.NoError(t, err)
	assert.Equal(t, float64(3), v)
}

func TestCoerceJSONNumber(t *testing.T) {
	s := testSchema()
	views, _ := s.Field("views")
	delta, _ := s.Field("delta")
	rating, _ := s.Field("rating")

	v, err := Coerce(views, json.Number("18446744073709551615"))
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), v)

	v, err = Coerce(delta, json.Number("-42"))
	require.NoError(t, err)
	assert.Equal(t, int64(-42), v)

	v, err = Coerce(rating, json.Number("2.25"))
	require.NoError(t, err)
	assert.Equal(t, 2.25, v)

	_, err = Coerce(views, json.Number("2.5"))
	assert.ErrorIs(t, err, apperrors.ErrFieldTypeMismatch)
}

func TestDecodeKeepsNumbers(t *testing.T) {
	doc, err := Decode(strings.NewReader(`{"title":"x","views":9007199254740993}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), doc["views"])

	_, err = Decode(strings.NewReader(`{"title":`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDecodeMany(t *testing.T) {
	docs, err := DecodeMany([]byte(`{"title":"one"}`))
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	docs, err = DecodeMany([]byte(` [{"title":"one"},{"title":"two","views":3}] `))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, json.Number("3"), docs[1]["views"])

	_, err = DecodeMany([]byte("   "))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
