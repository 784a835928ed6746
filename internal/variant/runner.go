package variant

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/poundlens/dom"
	"github.com/hazyhaar/poundlens/entity"
	"github.com/hazyhaar/poundlens/internal/annotate"
	"github.com/hazyhaar/poundlens/internal/config"
	"github.com/hazyhaar/poundlens/internal/extract"
	"github.com/hazyhaar/poundlens/internal/idgen"
	"github.com/hazyhaar/poundlens/internal/orchestrate"
)

// Runner is what a session drives on the document.
type Runner interface {
	RunPass(doc *dom.Document, reason string) orchestrate.Report
	Entities(doc *dom.Document) []orchestrate.EntityReport
	Summary(doc *dom.Document, format string) (string, error)
}

// Deps are the shared components a handler is built from.
type Deps struct {
	Extractor *extract.Extractor
	Injector  *annotate.Injector
	IDs       idgen.Generator
	Now       func() time.Time
	Logger    *slog.Logger
}

// Build returns the handler of v for the page at pageURL.
func Build(v config.VariantConfig, pageURL string, d Deps) (Runner, error) {
	fields, ok := entity.FieldSet(v.Fields)
	if !ok {
		return nil, fmt.Errorf("variant: %s: unknown field set %q", v.Name, v.Fields)
	}
	tmpl, err := annotate.TemplateFor(v.Fields)
	if err != nil {
		return nil, fmt.Errorf("variant: %s: %w", v.Name, err)
	}
	switch v.Kind {
	case "inline", "":
		return orchestrate.New(orchestrate.Options{
			Plan: orchestrate.Plan{
				Variant:  v.Name,
				Slots:    v.Slots,
				Discover: v.Discover,
				CellScan: v.CellScan,
				Fields:   fields,
				Template: tmpl,
			},
			Extractor: d.Extractor,
			Injector:  d.Injector,
			IDs:       d.IDs,
			Now:       d.Now,
			Logger:    d.Logger,
		}), nil
	case "listing", "detail":
		return NewPage(PageOptions{
			Variant:  v,
			PageURL:  pageURL,
			Fields:   fields,
			Template: tmpl,
			Deps:     d,
		}), nil
	}
	return nil, fmt.Errorf("variant: %s: unknown kind %q", v.Name, v.Kind)
}
