package browser

import (
	"context"
	"fmt"

	"golang.org/x/net/html"

	"github.com/hazyhaar/poundlens/dom"
)

// Placement puts one injected element back into the live page.
type Placement struct {
	// Parent is the XPath of the page element that holds the control.
	Parent string `json:"parent"`
	// Index counts the unmarked element children of Parent that precede
	// the control.
	Index int    `json:"index"`
	HTML  string `json:"html"`
}

// Plan lists every injected element of doc in document order.
func Plan(doc *dom.Document, marked func(*html.Node) bool) []Placement {
	var out []Placement
	dom.Walk(doc.Root(), func(n *html.Node) bool {
		if !marked(n) {
			return true
		}
		if n.Parent != nil {
			out = append(out, Placement{
				Parent: dom.XPath(n.Parent),
				Index:  unmarkedBefore(n, marked),
				HTML:   dom.RenderNode(n),
			})
		}
		return false
	})
	return out
}

func unmarkedBefore(n *html.Node, marked func(*html.Node) bool) int {
	i := 0
	for s := n.Parent.FirstChild; s != nil && s != n; s = s.NextSibling {
		if dom.IsElement(s) && !marked(s) {
			i++
		}
	}
	return i
}

// Touches reports whether any record concerns an injected element.
func Touches(recs []dom.Record, marked func(*html.Node) bool) bool {
	in := func(n *html.Node) bool {
		return n != nil && (marked(n) || dom.Closest(n, marked) != nil)
	}
	for _, r := range recs {
		if r.Op == dom.OpDocReset || in(r.Node) || in(r.Target) {
			return true
		}
	}
	return false
}

const applyJS = `(marker, plan) => {
	document.querySelectorAll('.' + CSS.escape(marker)).forEach((el) => el.remove());
	let placed = 0;
	for (const p of plan) {
		const parent = document.evaluate(p.parent, document, null,
			XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (!parent) {
			continue;
		}
		const tpl = document.createElement('template');
		tpl.innerHTML = p.html;
		const el = tpl.content.firstElementChild;
		if (!el) {
			continue;
		}
		let ref = null;
		let i = 0;
		for (const c of parent.children) {
			if (c.classList.contains(marker)) {
				continue;
			}
			if (i === p.index) {
				ref = c;
				break;
			}
			i++;
		}
		parent.insertBefore(el, ref);
		placed++;
	}
	return placed;
}`

// Apply replaces the injected elements of the page with plan.
func (t *Tab) Apply(ctx context.Context, plan []Placement) (int, error) {
	if plan == nil {
		plan = []Placement{}
	}
	res, err := t.Page.Context(ctx).Eval(applyJS, t.marker, plan)
	if err != nil {
		return 0, fmt.Errorf("browser: apply: %w", err)
	}
	return res.Value.Int(), nil
}
