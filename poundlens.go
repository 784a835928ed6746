// Package poundlens annotates pages that describe pets with lookup links
// and clipboard-copy controls, and keeps those annotations in step with a
// document that keeps changing.
//
// A Session is the composition root: it matches the page to a variant,
// builds the extraction and injection pipeline for it, and runs the
// monitor loop that owns the document. Every operation on the document
// goes through that loop.
package poundlens

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/poundlens/dom"
	"github.com/hazyhaar/poundlens/entity"
	"github.com/hazyhaar/poundlens/internal/annotate"
	"github.com/hazyhaar/poundlens/internal/clipboard"
	"github.com/hazyhaar/poundlens/internal/config"
	"github.com/hazyhaar/poundlens/internal/extract"
	"github.com/hazyhaar/poundlens/internal/idgen"
	"github.com/hazyhaar/poundlens/internal/monitor"
	"github.com/hazyhaar/poundlens/internal/orchestrate"
	"github.com/hazyhaar/poundlens/internal/sink"
	"github.com/hazyhaar/poundlens/internal/variant"
)

// ErrNoVariant is returned by New when no variant activates on the page.
var ErrNoVariant = errors.New("poundlens: no variant matches the page")

// ReasonRequest marks passes run on demand through the API.
const ReasonRequest = "request"

// Options configures a Session.
type Options struct {
	Config  config.Config
	PageURL string

	// Writer is the clipboard. Default: the system clipboard.
	Writer clipboard.Writer
	// Presenter shows text after a failed write, in addition to the
	// session's fallback log.
	Presenter clipboard.Presenter
	// Sinks receive pass reports and copy events, after the configured
	// ones.
	Sinks []sink.Sink
	// Observe is handed every batch of document records, see
	// monitor.Config.
	Observe func(doc *dom.Document, recs []dom.Record)

	IDs    idgen.Generator
	Now    func() time.Time
	Logger *slog.Logger
}

type event struct {
	report *orchestrate.Report
	copy   *sink.CopyEvent
}

// Session drives one page.
type Session struct {
	cfg      config.Config
	variant  config.VariantConfig
	runner   variant.Runner
	tagger   *annotate.Tagger
	ex       *extract.Extractor
	mon      *monitor.Monitor
	router   *sink.Router
	fallback *clipboard.Fallback
	pattern  *regexp.Regexp
	now      func() time.Time
	logger   *slog.Logger

	events chan event

	mu      sync.Mutex
	last    orchestrate.Report
	hasLast bool
}

// New builds a Session over doc. It returns ErrNoVariant when the page URL
// activates no variant.
func New(doc *dom.Document, opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IDs == nil {
		opts.IDs = idgen.Default
	}
	cfg := opts.Config

	v, err := variant.Match(cfg.Variants, opts.PageURL)
	if err != nil {
		if errors.Is(err, variant.ErrNoMatch) {
			return nil, fmt.Errorf("%w: %s", ErrNoVariant, opts.PageURL)
		}
		return nil, fmt.Errorf("poundlens: %w", err)
	}
	fields, ok := entity.FieldSet(v.Fields)
	if !ok {
		return nil, fmt.Errorf("poundlens: variant %s: unknown field set %q", v.Name, v.Fields)
	}

	router, err := sink.FromConfig(cfg.Sinks, opts.Logger, opts.Sinks...)
	if err != nil {
		return nil, fmt.Errorf("poundlens: %w", err)
	}

	s := &Session{
		cfg:      cfg,
		variant:  v,
		router:   router,
		fallback: clipboard.NewFallback(0, opts.Logger),
		now:      opts.Now,
		logger:   opts.Logger.With("variant", v.Name),
		events:   make(chan event, 64),
	}

	naming := entity.Naming(cfg.Naming)
	s.pattern = naming.Pattern(fields)
	s.tagger = annotate.NewTagger(annotate.Marker(cfg.Marker))
	s.ex = extract.New(extract.Options{
		Naming:       naming,
		MarkerClass:  cfg.Marker.Class,
		LegacyGender: cfg.Extract.LegacyGender,
		Logger:       opts.Logger,
	})

	var presenter clipboard.Presenter = s.fallback
	if opts.Presenter != nil {
		presenter = clipboard.Presenters{opts.Presenter, s.fallback}
	}

	// The monitor is the injector's scheduler, so it exists first.
	s.mon = monitor.New(doc, monitor.Config{
		Filter:       monitor.NewFilter(s.pattern, cfg.Marker.Class),
		Pass:         s.pass,
		InitialDelay: cfg.Timing.InitialDelay,
		Debounce:     cfg.Timing.Debounce,
		MaxWait:      cfg.Timing.MaxWait,
		Interval:     cfg.Timing.Interval,
		Observe:      opts.Observe,
		Logger:       opts.Logger,
	})

	injector := annotate.NewInjector(annotate.Options{
		Tagger:     s.tagger,
		LookupURL:  cfg.LookupURL,
		Style:      cfg.Style,
		ErrorFlash: cfg.Timing.ErrorFlash,
		Writer:     opts.Writer,
		Presenter:  presenter,
		Scheduler:  s.mon,
		ReadName:   s.ex.ReadName,
		Logger:     opts.Logger,
	})

	s.runner, err = variant.Build(v, opts.PageURL, variant.Deps{
		Extractor: s.ex,
		Injector:  injector,
		IDs:       opts.IDs,
		Now:       opts.Now,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("poundlens: %w", err)
	}
	s.logger.Info("poundlens: session ready", "page", opts.PageURL, "kind", v.Kind, "sinks", router.Len())
	return s, nil
}

// Variant returns the active variant.
func (s *Session) Variant() config.VariantConfig { return s.variant }

// Tagger returns the marker registry shared with live hosts.
func (s *Session) Tagger() *annotate.Tagger { return s.tagger }

// Pattern matches the ids of the entity and field elements the variant
// reads.
func (s *Session) Pattern() *regexp.Regexp { return s.pattern }

// Monitor returns the loop that owns the document.
func (s *Session) Monitor() *monitor.Monitor { return s.mon }

// Fallback returns the log of texts that could not be copied.
func (s *Session) Fallback() *clipboard.Fallback { return s.fallback }

// Run runs the monitor loop and delivers events to the sinks until ctx
// ends. Sinks are closed on return.
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		if err := s.router.Close(); err != nil {
			s.logger.Warn("poundlens: close sinks", "error", err)
		}
	}()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.mon.Run(gctx) })
	g.Go(func() error { return s.deliver(gctx) })
	return g.Wait()
}

func (s *Session) pass(ctx context.Context, doc *dom.Document, reason string) {
	s.runPass(ctx, doc, reason)
}

func (s *Session) runPass(_ context.Context, doc *dom.Document, reason string) orchestrate.Report {
	rep := s.runner.RunPass(doc, reason)
	s.mu.Lock()
	s.last, s.hasLast = rep, true
	s.mu.Unlock()
	s.logger.Debug("poundlens: pass",
		"pass_id", rep.PassID, "reason", reason, "discovered", rep.Discovered, "annotated", rep.Annotated)
	s.emit(event{report: &rep})
	return rep
}

// emit queues an event without blocking the loop.
func (s *Session) emit(ev event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("poundlens: event queue full, dropping event")
	}
}

func (s *Session) deliver(ctx context.Context) error {
	for {
		select {
		case ev := <-s.events:
			s.send(ctx, ev)
		case <-ctx.Done():
			flush, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			for {
				select {
				case ev := <-s.events:
					s.send(flush, ev)
				default:
					return nil
				}
			}
		}
	}
}

func (s *Session) send(ctx context.Context, ev event) {
	var err error
	switch {
	case ev.report != nil:
		err = s.router.SendReport(ctx, *ev.report)
	case ev.copy != nil:
		err = s.router.SendCopy(ctx, *ev.copy)
	}
	if err != nil {
		s.logger.Warn("poundlens: deliver", "error", err)
	}
}

// LastReport returns the report of the latest pass.
func (s *Session) LastReport() (orchestrate.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// Pass runs a pass now and returns its report.
func (s *Session) Pass(ctx context.Context) (orchestrate.Report, error) {
	var rep orchestrate.Report
	err := s.mon.Do(ctx, func(doc *dom.Document) error {
		rep = s.runPass(ctx, doc, ReasonRequest)
		return nil
	})
	if err != nil {
		return orchestrate.Report{}, err
	}
	return rep, nil
}

// Entities extracts every entity of the page as it is now.
func (s *Session) Entities(ctx context.Context) ([]orchestrate.EntityReport, error) {
	var out []orchestrate.EntityReport
	err := s.mon.Do(ctx, func(doc *dom.Document) error {
		out = s.runner.Entities(doc)
		return nil
	})
	return out, err
}

// Summary renders every entity with the variant's template, or as
// tab-separated rows when format is "tsv".
func (s *Session) Summary(ctx context.Context, format string) (string, error) {
	var out string
	err := s.mon.Do(ctx, func(doc *dom.Document) error {
		var serr error
		out, serr = s.runner.Summary(doc, format)
		return serr
	})
	return out, err
}

// HTML renders the annotated document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var out string
	err := s.mon.Do(ctx, func(doc *dom.Document) error {
		out = doc.String()
		return nil
	})
	return out, err
}

// Replace swaps in a new page, as a full content replacement would. The
// change is picked up by the next debounced pass.
func (s *Session) Replace(ctx context.Context, r io.Reader) error {
	next, err := dom.Parse(r)
	if err != nil {
		return fmt.Errorf("poundlens: replace: %w", err)
	}
	return s.Load(ctx, next)
}

// Load swaps in the tree of next. next must not be used afterwards.
func (s *Session) Load(ctx context.Context, next *dom.Document) error {
	return s.mon.Do(ctx, func(doc *dom.Document) error {
		doc.Replace(next.Root())
		return nil
	})
}

// Click activates the control of id with the given role. For a copy
// control the returned Done channel yields the clipboard outcome, which
// is also reported to the sinks.
func (s *Session) Click(ctx context.Context, id entity.ID, role annotate.Role) (annotate.CopyResult, error) {
	var res annotate.CopyResult
	err := s.mon.Do(ctx, func(doc *dom.Document) error {
		var cerr error
		res, cerr = s.tagger.Click(ctx, doc, id, role)
		return cerr
	})
	if err != nil {
		return annotate.CopyResult{}, err
	}
	if res.Done != nil {
		res.Done = s.track(res)
	}
	return res, nil
}

// track forwards the clipboard outcome of res and records it as a copy
// event.
func (s *Session) track(res annotate.CopyResult) <-chan error {
	out := make(chan error, 1)
	go func() {
		err := <-res.Done
		ev := sink.CopyEvent{Entity: res.Entity, Text: res.Text, OK: err == nil, At: s.now()}
		if err != nil {
			ev.Error = err.Error()
		}
		s.emit(event{copy: &ev})
		out <- err
	}()
	return out
}

// FallbackPage renders the clipboard fallback log as HTML.
func (s *Session) FallbackPage() ([]byte, error) { return s.fallback.Page() }
