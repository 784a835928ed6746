// Package orchestrate discovers the entities of a page and drives
// annotation passes over them.
package orchestrate

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/poundlens/dom"
	"github.com/hazyhaar/poundlens/entity"
)

// maxCellName is the longest cell text taken for a name.
const maxCellName = 20

// cellHints are the words a neighbouring cell must mention for a bare
// table cell to count as a name.
var cellHints = []string{"Level", "Species", "Colour"}

// Discover lists the entity ids of doc in order: fixed slots, then name
// elements matched by the discovery selector, then table-cell candidates.
// Ids are unique.
func (o *Orchestrator) Discover(doc *dom.Document) []entity.ID {
	naming := o.ex.Naming()
	seen := make(map[entity.ID]bool)
	var ids []entity.ID
	add := func(id entity.ID) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	slotNames := make(map[string]bool, o.plan.Slots)
	for i := 0; i < o.plan.Slots; i++ {
		id := entity.SlotID(i)
		slotNames[naming.NameElementID(id)] = true
		add(id)
	}

	if o.plan.Discover != "" {
		for _, n := range doc.QueryAll(o.plan.Discover) {
			id := dom.ID(n)
			if id == "" || slotNames[id] {
				continue
			}
			if !strings.Contains(id, naming.SlotPrefix) || !strings.Contains(id, "name") {
				continue
			}
			add(entity.ID(id))
		}
	}

	if o.plan.CellScan {
		names := o.nameElements(doc, ids)
		for _, cell := range doc.QueryAll("td") {
			if o.isNameCell(cell, names) {
				add(entity.ID(entity.CellPrefix + dom.XPath(cell)))
			}
		}
	}
	return ids
}

func (o *Orchestrator) nameElements(doc *dom.Document, ids []entity.ID) []*html.Node {
	var out []*html.Node
	for _, id := range ids {
		if n := o.ex.NameElement(doc, id); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// isNameCell applies the table-cell heuristic: short text without a colon,
// in a multi-cell row, followed by a cell that mentions an attribute. Cells
// already holding a known name element are left to that entity.
func (o *Orchestrator) isNameCell(cell *html.Node, names []*html.Node) bool {
	text := strings.TrimSpace(dom.TextContent(cell, o.ex.Skip))
	if text == "" || utf8.RuneCountInString(text) > maxCellName || strings.Contains(text, ":") {
		return false
	}
	row := cell.Parent
	if row == nil || row.DataAtom != atom.Tr || countCells(row) < 2 {
		return false
	}
	next := dom.NextElementSibling(cell)
	if next == nil {
		return false
	}
	hint := dom.TextContent(next, o.ex.Skip)
	found := false
	for _, h := range cellHints {
		if strings.Contains(hint, h) {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	for _, n := range names {
		if n == cell || dom.Closest(n, func(a *html.Node) bool { return a == cell }) != nil {
			return false
		}
	}
	return true
}

func countCells(row *html.Node) int {
	n := 0
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			n++
		}
	}
	return n
}
