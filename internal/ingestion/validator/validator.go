// Package validator checks ingestion requests before they reach the writer.
// It rejects malformed batches with per-item details; type checking against
// the schema is left to the document converter.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
)

const (
	maxTextLength       = 1 << 20
	maxDocumentIDLength = 255
)

// ValidationError maps a location ("documents[2].title", "batch") to what
// is wrong there.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

// ValidateBatch checks batch size and that every document has at least one
// schema field and no oversized text.
func ValidateBatch(s *schema.Schema, docs []document.Document, maxDocs int) error {
	errs := make(map[string]string)
	switch {
	case len(docs) == 0:
		errs["batch"] = "at least one document is required"
	case maxDocs > 0 && len(docs) > maxDocs:
		errs["batch"] = fmt.Sprintf("at most %d documents per request, got %d", maxDocs, len(docs))
	}
	for i, doc := range docs {
		validateDocument(s, doc, fmt.Sprintf("documents[%d]", i), errs)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateEvent checks one document from the ingest stream.
func ValidateEvent(s *schema.Schema, id string, doc document.Document) error {
	errs := make(map[string]string)
	if len(id) > maxDocumentIDLength {
		errs["document_id"] = fmt.Sprintf("must be at most %d characters", maxDocumentIDLength)
	}
	validateDocument(s, doc, "document", errs)
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func validateDocument(s *schema.Schema, doc document.Document, loc string, errs map[string]string) {
	if doc == nil {
		errs[loc] = "must be a JSON object"
		return
	}
	known := 0
	for name, v := range doc {
		if _, ok := s.Field(name); !ok {
			continue
		}
		known++
		if text, ok := v.(string); ok && len(text) > maxTextLength {
			errs[loc+"."+name] = fmt.Sprintf("must be at most %d bytes", maxTextLength)
		}
	}
	if known == 0 {
		errs[loc] = "has no schema fields"
	}
}
