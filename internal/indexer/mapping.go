package indexer

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildMapping translates a schema into a static engine mapping. Only the
// declared fields are stored or indexed; nothing is dynamic and nothing is
// copied into the composite _all field.
func buildMapping(s *schema.Schema) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := tokenizer.Register(im); err != nil {
		return nil, fmt.Errorf("registering analyzer: %w", err)
	}
	im.DefaultAnalyzer = tokenizer.AnalyzerName
	im.StoreDynamic = false
	im.IndexDynamic = false
	im.DocValuesDynamic = false

	dm := bleve.NewDocumentStaticMapping()
	for _, f := range s.Fields() {
		var fm *mapping.FieldMapping
		switch f.Type {
		case schema.Text:
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = tokenizer.AnalyzerName
			fm.IncludeTermVectors = f.Indexed
		case schema.U64, schema.I64, schema.F64:
			fm = bleve.NewNumericFieldMapping()
		case schema.Bool:
			fm = bleve.NewBooleanFieldMapping()
		default:
			return nil, fmt.Errorf("field %q: unsupported type %s", f.Name, f.Type)
		}
		fm.Store = f.Stored
		fm.Index = f.Indexed
		fm.IncludeInAll = false
		fm.DocValues = false
		dm.AddFieldMappingsAt(f.Name, fm)
	}
	im.DefaultMapping = dm
	return im, nil
}
