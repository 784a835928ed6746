package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// Attr returns the value of attribute key on n, or "".
func Attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether n carries attribute key.
func HasAttr(n *html.Node, key string) bool {
	if n == nil {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// ID returns the id attribute of n.
func ID(n *html.Node) string {
	return Attr(n, "id")
}

// HasClass reports whether the class list of n contains class.
func HasClass(n *html.Node, class string) bool {
	if class == "" {
		return false
	}
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// IsInput reports whether n holds its value in a form control rather than
// in its text content.
func IsInput(n *html.Node) bool {
	if !IsElement(n) {
		return false
	}
	switch n.DataAtom {
	case atom.Input, atom.Select, atom.Textarea:
		return true
	}
	return false
}

// Value returns the current value of a form control: the value attribute for
// inputs, the text for textareas, and the selected (or first) option for
// selects.
func Value(n *html.Node) string {
	switch n.DataAtom {
	case atom.Textarea:
		return TextContent(n, nil)
	case atom.Select:
		var first *html.Node
		var selected *html.Node
		Walk(n, func(c *html.Node) bool {
			if IsElement(c) && c.DataAtom == atom.Option {
				if first == nil {
					first = c
				}
				if selected == nil && HasAttr(c, "selected") {
					selected = c
				}
			}
			return true
		})
		if selected == nil {
			selected = first
		}
		if selected == nil {
			return ""
		}
		if HasAttr(selected, "value") {
			return Attr(selected, "value")
		}
		return TextContent(selected, nil)
	}
	return Attr(n, "value")
}

// ReadValue returns the trimmed value of n: the form value for controls,
// otherwise the text content with skipped subtrees left out.
func ReadValue(n *html.Node, skip func(*html.Node) bool) string {
	if n == nil {
		return ""
	}
	if IsInput(n) {
		return strings.TrimSpace(Value(n))
	}
	return strings.TrimSpace(TextContent(n, skip))
}

// Walk visits n and its descendants in document order. Returning false from
// fn prunes the subtree below the visited node.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// TextContent concatenates the text nodes under n, like the DOM textContent
// property. Subtrees for which skip returns true are left out, as are
// script and style elements.
func TextContent(n *html.Node, skip func(*html.Node) bool) string {
	var sb strings.Builder
	Walk(n, func(c *html.Node) bool {
		if IsElement(c) {
			if skip != nil && skip(c) {
				return false
			}
			switch c.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return false
			}
		}
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		return true
	})
	return sb.String()
}

// TextLines renders the text under n with block elements on their own lines
// and table cells of a row separated by a space. Whitespace inside a line is
// collapsed. It is the input for label/value pattern scans.
func TextLines(n *html.Node, skip func(*html.Node) bool) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			sb.WriteString(c.Data)
			return
		case html.ElementNode:
			if skip != nil && skip(c) {
				return
			}
			switch c.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			case atom.Br:
				sb.WriteByte('\n')
				return
			case atom.Td, atom.Th:
				sb.WriteByte(' ')
			}
		}
		block := IsElement(c) && isBlock(c.DataAtom)
		if block {
			sb.WriteByte('\n')
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
		if block {
			sb.WriteByte('\n')
		}
	}
	walk(n)

	var lines []string
	for _, line := range strings.Split(sb.String(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.Div, atom.P, atom.Tr, atom.Table, atom.Tbody, atom.Thead,
		atom.Li, atom.Ul, atom.Ol, atom.Dl, atom.Dt, atom.Dd,
		atom.Section, atom.Article, atom.Main, atom.Header, atom.Footer,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Form, atom.Fieldset, atom.Blockquote, atom.Pre, atom.Body:
		return true
	}
	return false
}

// Closest returns the nearest ancestor of n (excluding n) satisfying pred.
func Closest(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if IsElement(p) && pred(p) {
			return p
		}
	}
	return nil
}

// NextElementSibling returns the next sibling of n that is an element.
func NextElementSibling(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if IsElement(s) {
			return s
		}
	}
	return nil
}

// Attached reports whether n is still reachable from root.
func Attached(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// XPath returns a positional path for an element, in the form
// /html/body/table/tbody/tr[2]/td. A position index is only emitted when
// the parent has more than one child with the same tag.
func XPath(n *html.Node) string {
	if !IsElement(n) {
		if n != nil && n.Parent != nil {
			return XPath(n.Parent) + "/text()"
		}
		return ""
	}
	var parts []string
	for e := n; IsElement(e); e = e.Parent {
		parts = append(parts, step(e))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

func step(n *html.Node) string {
	if n.Parent == nil {
		return n.Data
	}
	idx, total := 0, 0
	for s := n.Parent.FirstChild; s != nil; s = s.NextSibling {
		if IsElement(s) && s.Data == n.Data {
			total++
			if s == n {
				idx = total
			}
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s[%d]", n.Data, idx)
	}
	return n.Data
}
