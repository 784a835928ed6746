package annotate

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/poundlens/dom"
	"github.com/hazyhaar/poundlens/entity"
	"github.com/hazyhaar/poundlens/internal/clipboard"
)

// Control labels.
const (
	LookupLabel = "[lookup]"
	CopyLabel   = "[Copy]"
	FailedLabel = "[Copy failed]"
)

// writeTimeout bounds a single clipboard write.
const writeTimeout = 10 * time.Second

// Scheduler runs functions on the goroutine that owns the document.
type Scheduler interface {
	Post(fn func())
	After(d time.Duration, fn func())
}

// PayloadFunc builds the copy text of an entity from the document as it is
// when called.
type PayloadFunc func(doc *dom.Document, id entity.ID) string

// Target is one entity to annotate.
type Target struct {
	ID entity.ID
	// Name is the element holding the entity's name. For table-cell
	// entities it is the cell itself.
	Name    *html.Node
	Payload PayloadFunc
}

// Options configures an Injector.
type Options struct {
	Tagger     *Tagger
	LookupURL  string // fmt template, %s = escaped name
	Style      string
	ErrorFlash time.Duration
	Writer     clipboard.Writer
	Presenter  clipboard.Presenter
	Scheduler  Scheduler
	// ReadName reads the name held by a name element.
	ReadName func(*html.Node) string
	Logger   *slog.Logger
}

// Injector builds and places annotation sets.
type Injector struct {
	opts   Options
	logger *slog.Logger
}

// NewInjector creates an Injector.
func NewInjector(opts Options) *Injector {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Writer == nil {
		opts.Writer = clipboard.System{}
	}
	if opts.ErrorFlash <= 0 {
		opts.ErrorFlash = 2 * time.Second
	}
	if opts.ReadName == nil {
		tagger := opts.Tagger
		opts.ReadName = func(n *html.Node) string { return dom.ReadValue(n, tagger.IsMarked) }
	}
	return &Injector{opts: opts, logger: opts.Logger}
}

// Tagger returns the tagger shared with click surfaces.
func (in *Injector) Tagger() *Tagger { return in.opts.Tagger }

// Annotate replaces the annotation set of t. An empty name only evicts.
// It reports whether a new set was inserted.
func (in *Injector) Annotate(doc *dom.Document, t Target) bool {
	in.opts.Tagger.Evict(doc, t.ID)

	if t.Name == nil || t.Name.Parent == nil {
		return false
	}
	name := in.opts.ReadName(t.Name)
	if name == "" {
		in.logger.Debug("annotate: empty name", "entity", t.ID)
		return false
	}

	lookup := in.lookupControl(t.ID, name)
	cp := in.copyControl(doc, t)

	switch {
	case t.ID.IsCell():
		doc.AppendChild(t.Name, lookup.Node)
		doc.AppendChild(t.Name, cp.Node)
	case t.Name.NextSibling != nil:
		// Each insert lands right after the name, so insert in reverse.
		doc.InsertBefore(t.Name.Parent, cp.Node, t.Name.NextSibling)
		doc.InsertBefore(t.Name.Parent, lookup.Node, t.Name.NextSibling)
	default:
		doc.AppendChild(t.Name.Parent, lookup.Node)
		doc.AppendChild(t.Name.Parent, cp.Node)
	}
	in.opts.Tagger.register(lookup)
	in.opts.Tagger.register(cp)
	return true
}

// LookupURL returns the lookup address for name.
func (in *Injector) LookupURL(name string) string {
	return fmt.Sprintf(in.opts.LookupURL, strings.ReplaceAll(url.QueryEscape(name), "+", "%20"))
}

func (in *Injector) lookupControl(id entity.ID, name string) *Control {
	href := in.LookupURL(name)
	n := dom.NewElement("a",
		"href", href,
		"target", "_blank",
		"rel", "noopener",
		"title", fmt.Sprintf("Open %s's lookup in a new tab", name),
		"style", in.opts.Style,
	)
	in.opts.Tagger.Tag(n, id, RoleLookup)
	n.AppendChild(dom.NewText(LookupLabel))
	return &Control{
		Entity: id,
		Role:   RoleLookup,
		Node:   n,
		click: func(context.Context) CopyResult {
			return CopyResult{Entity: id, Role: RoleLookup, Text: href}
		},
	}
}

func (in *Injector) copyControl(doc *dom.Document, t Target) *Control {
	n := dom.NewElement("button",
		"type", "button",
		"title", "Copy details to the clipboard",
		"style", in.opts.Style,
	)
	in.opts.Tagger.Tag(n, t.ID, RoleCopy)
	n.AppendChild(dom.NewText(CopyLabel))
	c := &Control{Entity: t.ID, Role: RoleCopy, Node: n}
	c.click = func(ctx context.Context) CopyResult {
		text := t.Payload(doc, t.ID)
		return CopyResult{Entity: t.ID, Role: RoleCopy, Text: text, Done: in.write(ctx, doc, n, text)}
	}
	return c
}

// write hands text to the clipboard without blocking the caller. A failure
// flashes the control label and passes the text to the fallback presenter.
func (in *Injector) write(ctx context.Context, doc *dom.Document, n *html.Node, text string) <-chan error {
	done := make(chan error, 1)
	base := context.WithoutCancel(ctx)
	go func() {
		wctx, cancel := context.WithTimeout(base, writeTimeout)
		defer cancel()
		err := in.opts.Writer.Write(wctx, text)
		if err != nil {
			in.logger.Warn("annotate: clipboard write failed", "error", err)
			if in.opts.Scheduler != nil {
				in.opts.Scheduler.Post(func() { in.flash(doc, n) })
			}
			if in.opts.Presenter != nil {
				if perr := in.opts.Presenter.Present(wctx, text); perr != nil {
					in.logger.Error("annotate: fallback failed", "error", perr)
				}
			}
		}
		done <- err
	}()
	return done
}

func (in *Injector) flash(doc *dom.Document, n *html.Node) {
	if !dom.Attached(doc.Root(), n) {
		return
	}
	doc.SetText(n, FailedLabel)
	in.opts.Scheduler.After(in.opts.ErrorFlash, func() {
		if dom.Attached(doc.Root(), n) && dom.TextContent(n, nil) == FailedLabel {
			doc.SetText(n, CopyLabel)
		}
	})
}

// AnnotateSummary replaces the single copy control of a page summary. The
// control is appended inside t.Name, which is the page anchor.
func (in *Injector) AnnotateSummary(doc *dom.Document, t Target) bool {
	in.opts.Tagger.Evict(doc, t.ID)
	if t.Name == nil || t.Name.Parent == nil {
		return false
	}
	cp := in.copyControl(doc, t)
	doc.AppendChild(t.Name, cp.Node)
	in.opts.Tagger.register(cp)
	return true
}
