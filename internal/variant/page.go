package variant

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"

	"github.com/hazyhaar/poundlens/dom"
	"github.com/hazyhaar/poundlens/entity"
	"github.com/hazyhaar/poundlens/internal/annotate"
	"github.com/hazyhaar/poundlens/internal/config"
	"github.com/hazyhaar/poundlens/internal/idgen"
	"github.com/hazyhaar/poundlens/internal/orchestrate"
)

// SummaryID is the entity id of the page summary control.
const SummaryID entity.ID = "summary"

// nameSelector finds the name inside a listing entry.
const nameSelector = ".pet-name, b, strong, a"

// PageOptions configures a Page.
type PageOptions struct {
	Variant  config.VariantConfig
	PageURL  string
	Fields   []entity.Field
	Template annotate.Template
	Deps     Deps
}

// Page handles listing and detail pages: one summary copy control instead
// of per-entity annotations.
type Page struct {
	v        config.VariantConfig
	pageURL  string
	fields   []entity.Field
	template annotate.Template
	d        Deps
	md       *converter.Converter
	logger   *slog.Logger
}

// NewPage creates a Page.
func NewPage(opts PageOptions) *Page {
	d := opts.Deps
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.IDs == nil {
		d.IDs = idgen.Default
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Page{
		v:        opts.Variant,
		pageURL:  opts.PageURL,
		fields:   opts.Fields,
		template: opts.Template,
		d:        d,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		logger: d.Logger,
	}
}

func (p *Page) skip(n *html.Node) bool { return p.d.Extractor.Skip(n) }

// Records extracts the entities shown on the page.
func (p *Page) Records(doc *dom.Document) []entity.Record {
	if p.v.Kind == "detail" {
		rec := p.detail(doc)
		if !rec.Has(entity.Name) {
			return nil
		}
		return []entity.Record{rec}
	}
	return p.listing(doc)
}

func (p *Page) listing(doc *dom.Document) []entity.Record {
	var out []entity.Record
	var seen []*html.Node
	for _, block := range doc.QueryAll(p.v.Blocks) {
		if within(block, seen) {
			continue
		}
		seen = append(seen, block)
		name := p.blockName(block)
		if name == "" {
			continue
		}
		rec := entity.NewRecord()
		rec.Fill(entity.Name, name, "listing")
		text := dom.TextLines(block, p.skip)
		for f, v := range p.d.Extractor.Patterns().Scan(text, p.fields) {
			rec.Fill(f, v, "listing")
		}
		out = append(out, rec)
	}
	return out
}

// blockName reads the first emphasised or linked text of an entry, else its
// first line without a label.
func (p *Page) blockName(block *html.Node) string {
	for _, n := range dom.QueryAll(block, nameSelector) {
		if v := strings.TrimSpace(dom.TextContent(n, p.skip)); v != "" && !strings.Contains(v, ":") {
			return v
		}
	}
	for _, line := range strings.Split(dom.TextLines(block, p.skip), "\n") {
		if line = strings.TrimSpace(line); line != "" && !strings.Contains(line, ":") {
			return line
		}
	}
	return ""
}

func (p *Page) detail(doc *dom.Document) entity.Record {
	rec := entity.NewRecord()
	if p.v.Query != "" {
		if u, err := url.Parse(p.pageURL); err == nil {
			rec.Fill(entity.Name, u.Query().Get(p.v.Query), "url")
		}
	}
	if a := dom.Query(doc.Root(), p.v.Anchor); a != nil {
		rec.Fill(entity.Name, dom.TextContent(a, p.skip), "anchor")
	}
	if p.v.Trophies != "" {
		var trophies []string
		for _, n := range doc.QueryAll(p.v.Trophies) {
			if t := trophyName(n, p.skip); t != "" {
				trophies = append(trophies, t)
			}
		}
		rec.Fill(entity.Trophies, strings.Join(trophies, ", "), "trophies")
	}
	if p.v.Companion != "" {
		if n := dom.Query(doc.Root(), p.v.Companion); n != nil {
			rec.Fill(entity.Description, p.describe(n), "companion")
		}
	}
	body := dom.Query(doc.Root(), "body")
	if body == nil {
		body = doc.Root()
	}
	for f, v := range p.d.Extractor.Patterns().Scan(dom.TextLines(body, p.skip), p.fields) {
		rec.Fill(f, v, "text")
	}
	return rec
}

func trophyName(n *html.Node, skip func(*html.Node) bool) string {
	for _, key := range []string{"alt", "title"} {
		if v := strings.TrimSpace(dom.Attr(n, key)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(dom.TextContent(n, skip))
}

// describe converts the companion description to one line of markdown.
func (p *Page) describe(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if p.skip(c) {
			continue
		}
		sb.WriteString(dom.RenderNode(c))
	}
	md, err := p.md.ConvertString(sb.String())
	if err != nil {
		p.logger.Warn("variant: convert description", "error", err)
		md = dom.TextContent(n, p.skip)
	}
	return strings.Join(strings.Fields(md), " ")
}

// Entities reports the page entities. None carries inline annotations.
func (p *Page) Entities(doc *dom.Document) []orchestrate.EntityReport {
	var out []orchestrate.EntityReport
	for i, rec := range p.Records(doc) {
		out = append(out, orchestrate.EntityReport{
			ID:     entity.ID(fmt.Sprintf("entry%d", i)),
			Name:   rec.Value(entity.Name),
			Fields: rec.Map(),
		})
	}
	return out
}

// Summary formats every record with the variant template, or as export
// rows when format is "tsv".
func (p *Page) Summary(doc *dom.Document, format string) (string, error) {
	tmpl, sep := p.template, "\n\n"
	if format != "" {
		t, err := annotate.TemplateFor(format)
		if err != nil {
			return "", err
		}
		tmpl = t
		if format == "tsv" {
			sep = "\n"
		}
	}
	now := p.d.Now()
	var parts []string
	for _, rec := range p.Records(doc) {
		parts = append(parts, tmpl(rec, now))
	}
	return strings.Join(parts, sep), nil
}

// RunPass places the summary control on the page anchor.
func (p *Page) RunPass(doc *dom.Document, reason string) orchestrate.Report {
	start := p.d.Now()
	rep := orchestrate.Report{PassID: p.d.IDs(), Variant: p.v.Name, Reason: reason, StartedAt: start}
	p.d.Injector.Tagger().Prune(doc)

	rep.Entities = p.Entities(doc)
	rep.Discovered = len(rep.Entities)

	var anchor *html.Node
	if rep.Discovered > 0 {
		anchor = dom.Query(doc.Root(), p.v.Anchor)
	}
	target := annotate.Target{
		ID:   SummaryID,
		Name: anchor,
		Payload: func(doc *dom.Document, _ entity.ID) string {
			s, _ := p.Summary(doc, "")
			return s
		},
	}
	if p.d.Injector.AnnotateSummary(doc, target) {
		rep.Annotated = 1
	}
	rep.Duration = p.d.Now().Sub(start)
	p.logger.Debug("variant: pass done", "variant", p.v.Name, "entries", rep.Discovered, "reason", reason)
	return rep
}

func within(n *html.Node, roots []*html.Node) bool {
	for _, r := range roots {
		for a := n.Parent; a != nil; a = a.Parent {
			if a == r {
				return true
			}
		}
	}
	return false
}
