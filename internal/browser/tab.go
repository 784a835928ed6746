package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/poundlens/dom"
)

//go:embed observer.js
var observerJS string

// bindingName is the page function the observer script reports through.
const bindingName = "__poundlens_binding"

// Tab wraps a Rod page opened on the target URL.
type Tab struct {
	Page    *rod.Page
	PageURL string
	marker  string
	router  *rod.HijackRouter
	mgr     *Manager
}

// OpenTab creates a tab, navigates to pageURL and waits for the load
// event. marker is the class of injected elements, which snapshots leave
// out.
func OpenTab(ctx context.Context, mgr *Manager, pageURL, marker string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, errors.New("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{Page: page, PageURL: pageURL, marker: marker, mgr: mgr}
	if len(mgr.cfg.ResourceBlocking) > 0 {
		t.router = applyResourceBlocking(page, mgr.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, mgr.cfg.NavigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return t, nil
}

// Snapshot reads the page into a document, without injected elements.
func (t *Tab) Snapshot(ctx context.Context) (*dom.Document, error) {
	res, err := t.Page.Context(ctx).Eval(`(classes) => {
		const root = document.documentElement.cloneNode(true);
		for (const cls of classes) {
			root.querySelectorAll('.' + CSS.escape(cls)).forEach((el) => el.remove());
		}
		return root.outerHTML;
	}`, []string{t.marker, t.overlayClass()})
	if err != nil {
		return nil, fmt.Errorf("browser: snapshot: %w", err)
	}
	doc, err := dom.Parse(strings.NewReader(res.Value.Str()))
	if err != nil {
		return nil, fmt.Errorf("browser: parse snapshot: %w", err)
	}
	return doc, nil
}

func (t *Tab) overlayClass() string { return t.marker + "-fallback" }

// ObserverOptions are handed to the injected observer script.
type ObserverOptions struct {
	Binding    string `json:"binding"`
	Marker     string `json:"marker"`
	EntityAttr string `json:"entityAttr"`
	RoleAttr   string `json:"roleAttr"`
	// Pattern is a JavaScript regular expression source, matched
	// case-insensitively against element ids.
	Pattern string `json:"pattern"`
}

// InjectObserver installs the binding and the observer script. It is
// installed for future navigations too.
func (t *Tab) InjectObserver(ctx context.Context, opts ObserverOptions) error {
	opts.Binding = bindingName
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(t.Page); err != nil {
		t.mgr.cfg.Logger.Warn("browser: addBinding failed (may already exist)", "error", err)
	}
	cfg, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("browser: marshal observer options: %w", err)
	}
	script := fmt.Sprintf("window.__poundlens_config = %s;\n%s", cfg, observerJS)
	if _, err := t.Page.EvalOnNewDocument(script); err != nil {
		return fmt.Errorf("browser: register observer: %w", err)
	}
	if _, err := t.Page.Context(ctx).Eval("() => {" + script + "}"); err != nil {
		return fmt.Errorf("browser: inject observer: %w", err)
	}
	return nil
}

// Close stops request interception and closes the tab.
func (t *Tab) Close() error {
	if t.router != nil {
		_ = t.router.Stop()
		t.router = nil
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
