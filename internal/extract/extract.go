// Package extract implements the field extraction cascade.
//
// Extraction runs an ordered list of strategies over one entity. Each
// strategy reports the fields it could find; the fold keeps the first
// non-empty value per field, except for override strategies whose values
// replace anything found before them. The default order is:
//   - canonical: elements named <base>_<field>
//   - table:     label/value rows of the entity's table
//   - text:      "Label: value" patterns in the nearest container
//   - rowtext:   the same patterns inside the row or details container
//   - override:  data-<field> attributes on the name element
package extract

import (
	"log/slog"

	"golang.org/x/net/html"

	"github.com/hazyhaar/poundlens/dom"
	"github.com/hazyhaar/poundlens/entity"
)

// Scope is what a strategy sees: the document, the entity and its name
// element.
type Scope struct {
	Doc    *dom.Document
	ID     entity.ID
	Name   *html.Node
	Base   string
	Naming entity.Naming
	// Skip reports subtrees that must not be read (injected controls).
	Skip func(*html.Node) bool
	// Patterns is the label/value scanner for text strategies.
	Patterns *Patterns
}

// Strategy is one extraction method.
type Strategy struct {
	Name     string
	Override bool
	Fn       func(s Scope, fields []entity.Field) entity.Partial
}

// DefaultStrategies returns the cascade in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "canonical", Fn: Canonical},
		{Name: "table", Fn: Table},
		{Name: "text", Fn: ContainerText},
		{Name: "rowtext", Fn: RowText},
		{Name: "override", Override: true, Fn: DataOverride},
	}
}

// Options configures an Extractor.
type Options struct {
	Naming       entity.Naming
	MarkerClass  string
	LegacyGender bool
	Strategies   []Strategy // nil = DefaultStrategies()
	Logger       *slog.Logger
}

// Extractor runs the cascade. It never mutates the document.
type Extractor struct {
	naming     entity.Naming
	marker     string
	strategies []Strategy
	patterns   *Patterns
	logger     *slog.Logger
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Strategies == nil {
		opts.Strategies = DefaultStrategies()
	}
	if opts.Naming == (entity.Naming{}) {
		opts.Naming = entity.DefaultNaming
	}
	return &Extractor{
		naming:     opts.Naming,
		marker:     opts.MarkerClass,
		strategies: opts.Strategies,
		patterns:   NewPatterns(opts.LegacyGender),
		logger:     opts.Logger,
	}
}

// Naming returns the id conventions in use.
func (e *Extractor) Naming() entity.Naming { return e.naming }

// Patterns returns the label/value scanner, for page handlers that reuse it.
func (e *Extractor) Patterns() *Patterns { return e.patterns }

// Skip reports whether n is an injected control.
func (e *Extractor) Skip(n *html.Node) bool {
	return e.marker != "" && dom.HasClass(n, e.marker)
}

// NameElement resolves the name element of id, or nil.
func (e *Extractor) NameElement(doc *dom.Document, id entity.ID) *html.Node {
	if id.IsCell() {
		return doc.ElementByXPath(id.CellPath())
	}
	return doc.ElementByID(e.naming.NameElementID(id))
}

// ReadName returns the trimmed name held by a name element.
func (e *Extractor) ReadName(n *html.Node) string {
	return dom.ReadValue(n, e.Skip)
}

// Extract builds the attribute record of id for the requested fields. A
// missing name element yields an empty record.
func (e *Extractor) Extract(doc *dom.Document, id entity.ID, fields []entity.Field) entity.Record {
	rec := entity.NewRecord()
	name := e.NameElement(doc, id)
	if name == nil {
		e.logger.Debug("extract: name element missing", "entity", id)
		return rec
	}
	scope := Scope{
		Doc:      doc,
		ID:       id,
		Name:     name,
		Base:     e.naming.Base(id),
		Naming:   e.naming,
		Skip:     e.Skip,
		Patterns: e.patterns,
	}
	for _, st := range e.strategies {
		found := st.Fn(scope, fields)
		// Iterate the request order so provenance is deterministic.
		for _, f := range fields {
			v, ok := found[f]
			if !ok {
				continue
			}
			if st.Override {
				rec.Override(f, v, st.Name)
			} else {
				rec.Fill(f, v, st.Name)
			}
		}
	}
	e.logger.Debug("extract: record built", "entity", id, "fields", rec.Len())
	return rec
}
