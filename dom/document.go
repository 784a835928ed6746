// Package dom is the in-memory document model the annotator works on.
//
// A Document wraps an x/net/html tree and routes every structural change
// through methods that queue mutation Records. Consumers drain the queue
// with TakeRecords, which is how the change monitor learns about page
// updates and about its own insertions.
//
// A Document is not safe for concurrent use. One goroutine owns it.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Document is a mutable HTML document with a mutation record queue.
type Document struct {
	root    *html.Node
	records []Record
}

// New wraps an already parsed tree.
func New(root *html.Node) *Document {
	return &Document{root: root}
}

// Parse reads HTML from r.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return New(root), nil
}

// ParseString parses an HTML string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// ParseFragment parses markup in the context of a <body> element and
// returns the resulting nodes, detached.
func ParseFragment(s string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body"}
	nodes, err := html.ParseFragment(strings.NewReader(s), ctx)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	return nodes, nil
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// Replace swaps the whole tree, as a document.open/write or a full page
// swap would. It queues a single doc_reset record.
func (d *Document) Replace(root *html.Node) {
	d.root = root
	d.records = append(d.records, Record{Op: OpDocReset, Target: root})
}

// Render serialises the document.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String serialises the document, ignoring render errors.
func (d *Document) String() string {
	var buf bytes.Buffer
	_ = html.Render(&buf, d.root)
	return buf.String()
}

// RenderNode serialises a single subtree.
func RenderNode(n *html.Node) string {
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	return buf.String()
}

// TakeRecords returns and clears the pending mutation records.
func (d *Document) TakeRecords() []Record {
	recs := d.records
	d.records = nil
	return recs
}

// Pending reports how many records are queued.
func (d *Document) Pending() int { return len(d.records) }

// ElementByID returns the first element in document order with the given
// id, or nil.
func (d *Document) ElementByID(id string) *html.Node {
	if id == "" {
		return nil
	}
	var found *html.Node
	Walk(d.root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if IsElement(n) && ID(n) == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// ElementByXPath resolves a path produced by XPath.
func (d *Document) ElementByXPath(path string) *html.Node {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	cur := d.root
	for _, s := range strings.Split(path, "/") {
		tag, pos := s, 1
		if i := strings.IndexByte(s, '['); i >= 0 {
			tag = s[:i]
			if _, err := fmt.Sscanf(s[i:], "[%d]", &pos); err != nil {
				return nil
			}
		}
		var next *html.Node
		n := 0
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if IsElement(c) && c.Data == tag {
				n++
				if n == pos {
					next = c
					break
				}
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// QueryAll returns the elements matching a selector group, in document
// order and without duplicates.
func (d *Document) QueryAll(selector string) []*html.Node {
	return QueryAll(d.root, selector)
}

// InsertBefore inserts n as a child of parent, immediately before ref. A
// nil ref appends.
func (d *Document) InsertBefore(parent, n, ref *html.Node) {
	if n.Parent != nil {
		d.Remove(n)
	}
	parent.InsertBefore(n, ref)
	d.records = append(d.records, Record{Op: OpInsert, Target: parent, Node: n})
}

// AppendChild appends n to parent.
func (d *Document) AppendChild(parent, n *html.Node) {
	d.InsertBefore(parent, n, nil)
}

// Remove detaches n from its parent. Removing a detached node is a no-op.
func (d *Document) Remove(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	parent.RemoveChild(n)
	d.records = append(d.records, Record{Op: OpRemove, Target: parent, Node: n})
}

// SetAttr sets attribute key on n.
func (d *Document) SetAttr(n *html.Node, key, val string) {
	old := ""
	for i, a := range n.Attr {
		if a.Key == key {
			old = a.Val
			n.Attr[i].Val = val
			d.records = append(d.records, Record{Op: OpAttr, Target: n, Name: key, Value: val, OldValue: old})
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	d.records = append(d.records, Record{Op: OpAttr, Target: n, Name: key, Value: val})
}

// RemoveAttr deletes attribute key from n.
func (d *Document) RemoveAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			d.records = append(d.records, Record{Op: OpAttrDel, Target: n, Name: key, OldValue: a.Val})
			return
		}
	}
}

// SetText replaces the children of n with a single text node.
func (d *Document) SetText(n *html.Node, text string) {
	old := TextContent(n, nil)
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	d.records = append(d.records, Record{Op: OpText, Target: n, Value: text, OldValue: old})
}

// NewElement builds a detached element with the given attributes, given as
// key/value pairs.
func NewElement(tag string, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: lookupAtom(tag)}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// NewText builds a detached text node.
func NewText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}
