package orchestrate

import (
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/poundlens/dom"
	"github.com/hazyhaar/poundlens/entity"
	"github.com/hazyhaar/poundlens/internal/annotate"
	"github.com/hazyhaar/poundlens/internal/extract"
	"github.com/hazyhaar/poundlens/internal/idgen"
)

// Plan is what a page variant asks of the orchestrator.
type Plan struct {
	Variant  string
	Slots    int
	Discover string
	CellScan bool
	Fields   []entity.Field
	Template annotate.Template
}

// Options configures an Orchestrator.
type Options struct {
	Plan      Plan
	Extractor *extract.Extractor
	Injector  *annotate.Injector
	IDs       idgen.Generator
	Now       func() time.Time
	Logger    *slog.Logger
}

// Orchestrator is the only component that runs discovery and injection.
type Orchestrator struct {
	plan   Plan
	ex     *extract.Extractor
	in     *annotate.Injector
	ids    idgen.Generator
	now    func() time.Time
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IDs == nil {
		opts.IDs = idgen.Default
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Plan.Fields == nil {
		opts.Plan.Fields = entity.SpeciesFields
	}
	if opts.Plan.Template == nil {
		opts.Plan.Template = annotate.Species
	}
	return &Orchestrator{
		plan:   opts.Plan,
		ex:     opts.Extractor,
		in:     opts.Injector,
		ids:    opts.IDs,
		now:    opts.Now,
		logger: opts.Logger,
	}
}

// Plan returns the active plan.
func (o *Orchestrator) Plan() Plan { return o.plan }

// EntityReport is the state of one entity after a pass.
type EntityReport struct {
	ID        entity.ID         `json:"id"`
	Name      string            `json:"name,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Annotated bool              `json:"annotated"`
}

// Report summarises one pass.
type Report struct {
	PassID     string         `json:"pass_id"`
	Variant    string         `json:"variant,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration_ns"`
	Discovered int            `json:"discovered"`
	Annotated  int            `json:"annotated"`
	Orphans    int            `json:"orphans_evicted"`
	Entities   []EntityReport `json:"entities"`
}

// Payload builds the copy text of id from the document as it is now.
func (o *Orchestrator) Payload(doc *dom.Document, id entity.ID) string {
	return o.plan.Template(o.ex.Extract(doc, id, o.plan.Fields), o.now())
}

// Entity extracts the current state of id without touching the document.
func (o *Orchestrator) Entity(doc *dom.Document, id entity.ID) EntityReport {
	rec := o.ex.Extract(doc, id, o.plan.Fields)
	return EntityReport{ID: id, Name: rec.Value(entity.Name), Fields: rec.Map()}
}

// RunPass discovers every entity and re-annotates it. Entities without a
// name element are skipped, and any annotations they still carry are
// evicted. Passes are idempotent.
func (o *Orchestrator) RunPass(doc *dom.Document, reason string) Report {
	start := o.now()
	rep := Report{PassID: o.ids(), Variant: o.plan.Variant, Reason: reason, StartedAt: start}

	tagger := o.in.Tagger()
	tagger.Prune(doc)

	ids := o.Discover(doc)
	rep.Discovered = len(ids)
	live := make(map[entity.ID]bool, len(ids))
	for _, id := range ids {
		name := o.ex.NameElement(doc, id)
		if name == nil {
			continue
		}
		live[id] = true
		er := o.Entity(doc, id)
		er.Annotated = o.in.Annotate(doc, annotate.Target{ID: id, Name: name, Payload: o.Payload})
		if er.Annotated {
			rep.Annotated++
		}
		rep.Entities = append(rep.Entities, er)
	}
	rep.Orphans = o.evictOrphans(doc, live)
	rep.Duration = o.now().Sub(start)

	o.logger.Debug("orchestrate: pass done",
		"pass", rep.PassID, "reason", reason,
		"discovered", rep.Discovered, "annotated", rep.Annotated)
	return rep
}

func (o *Orchestrator) evictOrphans(doc *dom.Document, live map[entity.ID]bool) int {
	tagger := o.in.Tagger()
	stale := make(map[entity.ID]bool)
	for _, n := range doc.QueryAll("." + tagger.Marker().Class) {
		id := entity.ID(dom.Attr(n, tagger.Marker().EntityAttr))
		if !live[id] {
			stale[id] = true
		}
	}
	evicted := 0
	for id := range stale {
		evicted += tagger.Evict(doc, id)
	}
	return evicted
}

// Entities reports every discovered entity that has a name element.
func (o *Orchestrator) Entities(doc *dom.Document) []EntityReport {
	var out []EntityReport
	for _, id := range o.Discover(doc) {
		if o.ex.NameElement(doc, id) == nil {
			continue
		}
		er := o.Entity(doc, id)
		er.Annotated = len(o.in.Tagger().Marked(doc, id)) > 0
		out = append(out, er)
	}
	return out
}

// Summary joins the copy payloads of every entity, or their export rows
// when format is "tsv".
func (o *Orchestrator) Summary(doc *dom.Document, format string) (string, error) {
	tmpl := o.plan.Template
	sep := "\n\n"
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
	var parts []string
	for _, id := range o.Discover(doc) {
		if o.ex.NameElement(doc, id) == nil {
			continue
		}
		parts = append(parts, tmpl(o.ex.Extract(doc, id, o.plan.Fields), o.now()))
	}
	return strings.Join(parts, sep), nil
}
