package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/poundlens/dom"
	"github.com/hazyhaar/poundlens/entity"
	"github.com/hazyhaar/poundlens/internal/annotate"
	"github.com/hazyhaar/poundlens/internal/clipboard"
	"github.com/hazyhaar/poundlens/internal/monitor"
)

// Event is a message sent by the observer script.
type Event struct {
	Op     string `json:"op"` // ready | changed | click
	URL    string `json:"url,omitempty"`
	Count  int    `json:"count,omitempty"`
	Entity string `json:"entity,omitempty"`
	Role   string `json:"role,omitempty"`
}

// ParseEvent decodes a binding payload.
func ParseEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("browser: decode event: %w", err)
	}
	switch ev.Op {
	case "ready", "changed":
	case "click":
		if ev.Entity == "" {
			return Event{}, errors.New("browser: click without entity")
		}
	default:
		return Event{}, fmt.Errorf("browser: unknown event %q", ev.Op)
	}
	return ev, nil
}

// JSPattern turns a Go regular expression into a JavaScript source
// matched with the "i" flag.
func JSPattern(re *regexp.Regexp) string {
	return strings.TrimPrefix(re.String(), "(?i)")
}

// LiveOptions configures a Live session.
type LiveOptions struct {
	Tab     *Tab
	Monitor *monitor.Monitor
	Tagger  *annotate.Tagger
	// Pattern selects the element ids whose changes matter.
	Pattern *regexp.Regexp
	// Click activates a control. Nil clicks through Tagger on the
	// monitor loop.
	Click  func(ctx context.Context, id entity.ID, role annotate.Role) (annotate.CopyResult, error)
	Logger *slog.Logger
}

// Live keeps a page and the monitored document in step: page changes are
// read back into the document, and annotations made on the document are
// mirrored into the page.
type Live struct {
	opts   LiveOptions
	logger *slog.Logger
	plans  chan []Placement
}

// NewLive creates a Live session. Observe must be set as the monitor's
// Config.Observe hook.
func NewLive(opts LiveOptions) *Live {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Live{opts: opts, logger: opts.Logger, plans: make(chan []Placement, 1)}
}

// Observe is the monitor hook. It runs on the monitor loop and queues a
// fresh plan whenever injected elements changed.
func (l *Live) Observe(doc *dom.Document, recs []dom.Record) {
	if !Touches(recs, l.opts.Tagger.IsMarked) {
		return
	}
	plan := Plan(doc, l.opts.Tagger.IsMarked)
	// Only the newest plan matters.
	select {
	case <-l.plans:
	default:
	}
	l.plans <- plan
}

// Run installs the observer and serves page events until ctx ends.
func (l *Live) Run(ctx context.Context) error {
	m := l.opts.Tagger.Marker()
	err := l.opts.Tab.InjectObserver(ctx, ObserverOptions{
		Marker:     m.Class,
		EntityAttr: m.EntityAttr,
		RoleAttr:   m.RoleAttr,
		Pattern:    JSPattern(l.opts.Pattern),
	})
	if err != nil {
		return err
	}

	wait := l.opts.Tab.Page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		ev, err := ParseEvent(e.Payload)
		if err != nil {
			l.logger.Warn("browser: bad event", "error", err)
			return
		}
		go l.handle(ctx, ev)
	})
	go wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case plan := <-l.plans:
			n, err := l.opts.Tab.Apply(ctx, plan)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				l.logger.Warn("browser: mirror failed", "error", err)
				continue
			}
			l.logger.Debug("browser: mirrored", "controls", n)
		}
	}
}

func (l *Live) handle(ctx context.Context, ev Event) {
	switch ev.Op {
	case "ready", "changed":
		if err := l.Refresh(ctx); err != nil && ctx.Err() == nil {
			l.logger.Warn("browser: refresh failed", "error", err)
		}
	case "click":
		l.click(ctx, ev)
	}
}

// Refresh reads the page back into the monitored document.
func (l *Live) Refresh(ctx context.Context) error {
	snap, err := l.opts.Tab.Snapshot(ctx)
	if err != nil {
		return err
	}
	return l.opts.Monitor.Do(ctx, func(doc *dom.Document) error {
		doc.Replace(snap.Root())
		return nil
	})
}

func (l *Live) click(ctx context.Context, ev Event) {
	role, err := annotate.ParseRole(ev.Role)
	if err != nil {
		l.logger.Warn("browser: click", "error", err)
		return
	}
	click := l.opts.Click
	if click == nil {
		click = l.tagClick
	}
	res, err := click(ctx, entity.ID(ev.Entity), role)
	if err != nil {
		l.logger.Warn("browser: click", "entity", ev.Entity, "role", ev.Role, "error", err)
		return
	}
	l.logger.Debug("browser: clicked", "entity", res.Entity, "role", res.Role)
}

func (l *Live) tagClick(ctx context.Context, id entity.ID, role annotate.Role) (annotate.CopyResult, error) {
	var res annotate.CopyResult
	err := l.opts.Monitor.Do(ctx, func(doc *dom.Document) error {
		var cerr error
		res, cerr = l.opts.Tagger.Click(ctx, doc, id, role)
		return cerr
	})
	return res, err
}

var (
	_ clipboard.Writer    = PageWriter{}
	_ clipboard.Presenter = Overlay{}
)

// PageWriter writes to the clipboard of the page's origin.
type PageWriter struct {
	Tab *Tab
}

// Write implements clipboard.Writer.
func (w PageWriter) Write(ctx context.Context, text string) error {
	_, err := w.Tab.Page.Context(ctx).Evaluate(
		rod.Eval(`(text) => navigator.clipboard.writeText(text)`, text).ByUser().ByPromise())
	if err != nil {
		return fmt.Errorf("browser: clipboard write: %w", err)
	}
	return nil
}

const overlayJS = `(cls, text) => {
	document.querySelectorAll('.' + CSS.escape(cls)).forEach((el) => el.remove());
	const box = document.createElement('div');
	box.className = cls;
	box.style.cssText = 'position:fixed;right:12px;bottom:12px;z-index:2147483647;' +
		'background:#fff;border:1px solid #888;padding:6px;box-shadow:0 2px 8px rgba(0,0,0,.3)';
	const area = document.createElement('textarea');
	area.readOnly = true;
	area.rows = 8;
	area.cols = 48;
	area.value = text;
	const close = document.createElement('button');
	close.type = 'button';
	close.textContent = 'Close';
	close.addEventListener('click', () => box.remove());
	box.append(area, document.createElement('br'), close);
	document.body.appendChild(box);
	area.focus();
	area.select();
}`

// Overlay shows text in a selectable box on the page when the clipboard
// is unavailable. It does not block the page.
type Overlay struct {
	Tab *Tab
}

// Present implements clipboard.Presenter.
func (o Overlay) Present(ctx context.Context, text string) error {
	if _, err := o.Tab.Page.Context(ctx).Eval(overlayJS, o.Tab.overlayClass(), text); err != nil {
		return fmt.Errorf("browser: overlay: %w", err)
	}
	return nil
}
