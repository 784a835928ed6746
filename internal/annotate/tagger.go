// Package annotate injects lookup and copy controls next to entity names
// and keeps at most one set of them per entity.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/poundlens/dom"
	"github.com/hazyhaar/poundlens/entity"
)

// ErrNoControl is returned when no live control matches a click request.
var ErrNoControl = errors.New("annotate: no such control")

// Role distinguishes the two controls of an annotation set.
type Role string

const (
	RoleLookup Role = "lookup"
	RoleCopy   Role = "copy"
)

// ParseRole accepts the role names used in markup and URLs.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleLookup, RoleCopy:
		return Role(s), nil
	}
	return "", fmt.Errorf("annotate: unknown role %q", s)
}

// Marker names the attributes that tag injected elements.
type Marker struct {
	Class      string
	EntityAttr string
	RoleAttr   string
}

// CopyResult describes one activation. For a copy control Text is the
// payload and Done yields the clipboard outcome exactly once; for a lookup
// control Text is the target URL and Done is nil.
type CopyResult struct {
	Entity entity.ID    `json:"entity"`
	Role   Role         `json:"role"`
	Text   string       `json:"text"`
	Done   <-chan error `json:"-"`
}

// Wait blocks until the clipboard outcome is known or ctx ends.
func (r CopyResult) Wait(ctx context.Context) error {
	if r.Done == nil {
		return nil
	}
	select {
	case err := <-r.Done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Control is one injected element and its activation handler.
type Control struct {
	Entity entity.ID
	Role   Role
	Node   *html.Node
	click  func(ctx context.Context) CopyResult
}

// Tagger marks injected elements and remembers their handlers, keyed by
// the live element. It is used from the goroutine that owns the document.
type Tagger struct {
	marker Marker

	mu       sync.Mutex
	controls map[*html.Node]*Control
}

// NewTagger creates a Tagger for the given marker attributes.
func NewTagger(m Marker) *Tagger {
	return &Tagger{marker: m, controls: make(map[*html.Node]*Control)}
}

// Marker returns the marker attributes.
func (t *Tagger) Marker() Marker { return t.marker }

// Tag sets the marker class, entity and role attributes on a detached
// element.
func (t *Tagger) Tag(n *html.Node, id entity.ID, role Role) {
	n.Attr = append(n.Attr,
		html.Attribute{Key: "class", Val: t.marker.Class},
		html.Attribute{Key: t.marker.EntityAttr, Val: string(id)},
		html.Attribute{Key: t.marker.RoleAttr, Val: string(role)},
	)
}

// IsMarked reports whether n is an injected element.
func (t *Tagger) IsMarked(n *html.Node) bool {
	return dom.HasClass(n, t.marker.Class)
}

// Marked returns every injected element of id attached to doc, in
// document order.
func (t *Tagger) Marked(doc *dom.Document, id entity.ID) []*html.Node {
	var out []*html.Node
	for _, n := range doc.QueryAll("." + t.marker.Class) {
		if dom.Attr(n, t.marker.EntityAttr) == string(id) {
			out = append(out, n)
		}
	}
	return out
}

// Evict removes every injected element of id and forgets its handlers.
// It returns the number of elements removed.
func (t *Tagger) Evict(doc *dom.Document, id entity.ID) int {
	marked := t.Marked(doc, id)
	for _, n := range marked {
		doc.Remove(n)
		t.forget(n)
	}
	return len(marked)
}

func (t *Tagger) register(c *Control) {
	t.mu.Lock()
	t.controls[c.Node] = c
	t.mu.Unlock()
}

func (t *Tagger) forget(n *html.Node) {
	t.mu.Lock()
	delete(t.controls, n)
	t.mu.Unlock()
}

// Prune drops handlers whose element is no longer attached to doc, which
// happens when the page replaces content under us.
func (t *Tagger) Prune(doc *dom.Document) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	pruned := 0
	for n := range t.controls {
		if !dom.Attached(doc.Root(), n) {
			delete(t.controls, n)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of registered handlers.
func (t *Tagger) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.controls)
}

// Control returns the live control of (id, role), or nil.
func (t *Tagger) Control(doc *dom.Document, id entity.ID, role Role) *Control {
	t.mu.Lock()
	defer t.mu.Unlock()
	for n, c := range t.controls {
		if c.Entity == id && c.Role == role && dom.Attached(doc.Root(), n) {
			return c
		}
	}
	return nil
}

// Click activates the control of (id, role). It must run on the goroutine
// that owns doc.
func (t *Tagger) Click(ctx context.Context, doc *dom.Document, id entity.ID, role Role) (CopyResult, error) {
	c := t.Control(doc, id, role)
	if c == nil {
		return CopyResult{}, fmt.Errorf("%w: %s/%s", ErrNoControl, id, role)
	}
	return c.click(ctx), nil
}
