package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/poundlens/dom"
	"github.com/hazyhaar/poundlens/entity"
)

// Canonical reads <base>_<field> elements. The name field is the name
// element itself.
func Canonical(s Scope, fields []entity.Field) entity.Partial {
	out := entity.Partial{}
	for _, f := range fields {
		var n *html.Node
		if f == entity.Name {
			n = s.Name
		} else if id := s.Naming.FieldElementID(s.ID, f); id != "" {
			n = s.Doc.ElementByID(id)
		}
		if n == nil {
			continue
		}
		if v := dom.ReadValue(n, s.Skip); v != "" {
			out[f] = v
		}
	}
	return out
}

// Table scans the rows of the entity's table: the <base>_table element, or
// the nearest table around the name element. Cell 0 is the label, cell 1
// the value.
func Table(s Scope, fields []entity.Field) entity.Partial {
	var table *html.Node
	if s.Base != "" {
		table = s.Doc.ElementByID(s.Base + s.Naming.Separator + "table")
	}
	if table == nil {
		table = dom.Closest(s.Name, func(n *html.Node) bool { return n.DataAtom == atom.Table })
	}
	if table == nil {
		return nil
	}
	want := wanted(fields)
	out := entity.Partial{}
	for _, row := range dom.QueryAll(table, "tr") {
		if dom.Closest(row, func(n *html.Node) bool { return n.DataAtom == atom.Table }) != table {
			continue // nested table
		}
		cells := rowCells(row)
		if len(cells) < 2 {
			continue
		}
		label := strings.TrimSpace(dom.TextContent(cells[0], s.Skip))
		value := cellValue(cells[1], s.Skip)
		f, ok := labelField(label, value)
		if !ok || !want[f] {
			continue
		}
		if _, dup := out[f]; !dup && value != "" {
			out[f] = value
		}
	}
	return out
}

// ContainerText scans the text of the nearest container around the name
// element.
func ContainerText(s Scope, fields []entity.Field) entity.Partial {
	c := dom.Closest(s.Name, isContainer)
	if c == nil {
		return nil
	}
	return s.Patterns.Scan(dom.TextLines(c, s.Skip), fields)
}

// RowText scans the entity's table row, falling back to a details
// container: <base>_details, or the nearest ancestor with a "details" class.
func RowText(s Scope, fields []entity.Field) entity.Partial {
	c := dom.Closest(s.Name, func(n *html.Node) bool { return n.DataAtom == atom.Tr })
	if c == nil && s.Base != "" {
		c = s.Doc.ElementByID(s.Base + s.Naming.Separator + "details")
	}
	if c == nil {
		c = dom.Closest(s.Name, func(n *html.Node) bool {
			return strings.Contains(dom.Attr(n, "class"), "details")
		})
	}
	if c == nil {
		return nil
	}
	return s.Patterns.Scan(dom.TextLines(c, s.Skip), fields)
}

// DataOverride reads data-<field> attributes from the name element.
func DataOverride(s Scope, fields []entity.Field) entity.Partial {
	out := entity.Partial{}
	for _, f := range fields {
		key := "data-" + strings.ToLower(string(f))
		if dom.HasAttr(s.Name, key) {
			if v := strings.TrimSpace(dom.Attr(s.Name, key)); v != "" {
				out[f] = v
			}
		}
	}
	return out
}

func isContainer(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Div, atom.Section, atom.Article, atom.Li, atom.Form,
		atom.Fieldset, atom.Dd, atom.Body:
		return true
	}
	return false
}

func rowCells(row *html.Node) []*html.Node {
	var cells []*html.Node
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if dom.IsElement(c) && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			cells = append(cells, c)
		}
	}
	return cells
}

func cellValue(cell *html.Node, skip func(*html.Node) bool) string {
	if v := strings.TrimSpace(dom.TextContent(cell, skip)); v != "" {
		return v
	}
	if in := dom.Query(cell, "input, select, textarea"); in != nil {
		return dom.ReadValue(in, skip)
	}
	return ""
}

func wanted(fields []entity.Field) map[entity.Field]bool {
	m := make(map[entity.Field]bool, len(fields))
	for _, f := range fields {
		m[f] = true
	}
	return m
}
