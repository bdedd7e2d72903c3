package validator

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *schema.Schema {
	return schema.New().
		AddField("title", schema.Text, schema.Options{Stored: true, Indexed: true}).
		AddField("views", schema.U64, schema.Options{Stored: true})
}

func TestValidateBatch(t *testing.T) {
	s := testSchema()
	tests := []struct {
		name    string
		docs    []document.Document
		maxDocs int
		fields  []string
	}{
		{name: "valid", docs: []document.Document{{"title": "a"}, {"views": 1}}, maxDocs: 2},
		{name: "unbounded", docs: []document.Document{{"title": "a"}, {"title": "b"}, {"title": "c"}}},
		{name: "empty", docs: nil, fields: []string{"batch"}},
		{name: "too many", docs: []document.Document{{"title": "a"}, {"title": "b"}}, maxDocs: 1, fields: []string{"batch"}},
		{name: "null document", docs: []document.Document{{"title": "a"}, nil}, fields: []string{"documents[1]"}},
		{name: "unknown fields only", docs: []document.Document{{"other": "x"}}, fields: []string{"documents[0]"}},
		{name: "oversized text", docs: []document.Document{{"title": strings.Repeat("x", maxTextLength+1)}}, fields: []string{"documents[0].title"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatch(s, tt.docs, tt.maxDocs)
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			for _, f := range tt.fields {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}
}

func TestValidateEvent(t *testing.T) {
	s := testSchema()
	assert.NoError(t, ValidateEvent(s, "doc-1", document.Document{"title": "x"}))

	var verr *ValidationError
	require.ErrorAs(t, ValidateEvent(s, strings.Repeat("a", maxDocumentIDLength+1), document.Document{}), &verr)
	assert.Contains(t, verr.Fields, "document_id")
	assert.Contains(t, verr.Fields, "document")
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "second", "a": "first"}}
	assert.Equal(t, "a: first; b: second", err.Error())
}
