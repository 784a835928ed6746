package dom

import (
	"golang.org/x/net/html"
)

// Op is the type of document mutation recorded.
type Op string

const (
	OpInsert   Op = "insert"    // node inserted under Target
	OpRemove   Op = "remove"    // node removed from Target
	OpText     Op = "text"      // character data of Target replaced
	OpAttr     Op = "attr"      // attribute set on Target
	OpAttrDel  Op = "attr_del"  // attribute removed from Target
	OpDocReset Op = "doc_reset" // entire tree replaced
)

// Record is a single document mutation. Records are queued by the Document
// as mutations happen and drained with TakeRecords, the same way a
// MutationObserver record queue works.
type Record struct {
	Op     Op
	Target *html.Node // parent for insert/remove, element for attr/text
	Node   *html.Node // inserted or removed node (insert/remove only)

	Name     string // attribute name for attr/attr_del
	Value    string
	OldValue string
}

// Element returns the element the mutation is about: the inserted/removed
// node for structural ops, otherwise the target.
func (r Record) Element() *html.Node {
	switch r.Op {
	case OpInsert, OpRemove:
		return r.Node
	}
	return r.Target
}
