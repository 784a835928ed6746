package monitor

import (
	"regexp"

	"golang.org/x/net/html"

	"github.com/hazyhaar/poundlens/dom"
)

// Filter decides which mutation records may change what a pass would do.
type Filter struct {
	pattern *regexp.Regexp
	marker  string
}

// NewFilter creates a Filter. pattern matches the ids of entity and field
// elements; marker is the class of injected elements, which are never
// relevant.
func NewFilter(pattern *regexp.Regexp, marker string) *Filter {
	return &Filter{pattern: pattern, marker: marker}
}

// Count returns how many records are relevant.
func (f *Filter) Count(recs []dom.Record) int {
	n := 0
	for _, r := range recs {
		if f.Relevant(r) {
			n++
		}
	}
	return n
}

// Relevant reports whether one record is relevant.
func (f *Filter) Relevant(r dom.Record) bool {
	switch r.Op {
	case dom.OpDocReset:
		return true
	case dom.OpInsert, dom.OpRemove:
		if r.Node == nil || r.Node.Type != html.ElementNode {
			return false
		}
		return f.subtreeMatches(r.Node)
	case dom.OpAttr, dom.OpAttrDel:
		if r.Target == nil || f.marked(r.Target) {
			return false
		}
		if r.Name == "id" && f.pattern.MatchString(r.OldValue) {
			return true
		}
		return f.pattern.MatchString(dom.ID(r.Target))
	case dom.OpText:
		el := r.Target
		if el != nil && el.Type == html.TextNode {
			el = el.Parent
		}
		return f.ancestorMatches(el)
	}
	return false
}

func (f *Filter) marked(n *html.Node) bool {
	return f.marker != "" && dom.HasClass(n, f.marker)
}

func (f *Filter) subtreeMatches(n *html.Node) bool {
	found := false
	dom.Walk(n, func(c *html.Node) bool {
		if found || c.Type != html.ElementNode {
			return false
		}
		if f.marked(c) {
			return false
		}
		if f.pattern.MatchString(dom.ID(c)) {
			found = true
			return false
		}
		return true
	})
	return found
}

// ancestorMatches walks from n to the root. A marked ancestor makes the
// change irrelevant.
func (f *Filter) ancestorMatches(n *html.Node) bool {
	match := false
	for ; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if f.marked(n) {
			return false
		}
		if !match && f.pattern.MatchString(dom.ID(n)) {
			match = true
		}
	}
	return match
}
