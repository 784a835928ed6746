package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// QueryAll returns all elements under root matching a selector group.
// Supports a practical subset of CSS:
//   - tag, .class, #id, and their combinations: "td.name", "span#pet0_name"
//   - attribute tests: [attr], [attr=val], [attr*=val], [attr^=val], [attr$=val]
//   - descendant combinator: "table.stats td"
//   - groups: "input[name*=pet_name], td[id*=pet_name]"
func QueryAll(root *html.Node, selector string) []*html.Node {
	seen := make(map[*html.Node]bool)
	var groups [][]compound
	for _, g := range strings.Split(selector, ",") {
		if parts := parseChain(g); len(parts) > 0 {
			groups = append(groups, parts)
		}
	}
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		if !IsElement(n) || seen[n] {
			return true
		}
		for _, chain := range groups {
			if matchChain(n, chain) {
				seen[n] = true
				out = append(out, n)
				break
			}
		}
		return true
	})
	return out
}

// Query returns the first element under root matching selector, or nil.
func Query(root *html.Node, selector string) *html.Node {
	if all := QueryAll(root, selector); len(all) > 0 {
		return all[0]
	}
	return nil
}

// Matches reports whether n matches any selector of the group.
func Matches(n *html.Node, selector string) bool {
	if !IsElement(n) {
		return false
	}
	for _, g := range strings.Split(selector, ",") {
		if chain := parseChain(g); len(chain) > 0 && matchChain(n, chain) {
			return true
		}
	}
	return false
}

type attrTest struct {
	key string
	op  byte // 0 = presence, '=', '*', '^', '$'
	val string
}

type compound struct {
	tag   string
	id    string
	class string
	attrs []attrTest
}

func parseChain(sel string) []compound {
	var chain []compound
	for _, part := range splitOutsideBrackets(strings.TrimSpace(sel)) {
		chain = append(chain, parseCompound(part))
	}
	return chain
}

// splitOutsideBrackets splits on whitespace that is not inside [...].
func splitOutsideBrackets(s string) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '[':
			depth++
		case r == ']':
			depth--
		case (r == ' ' || r == '\t' || r == '\n') && depth == 0:
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// parseCompound parses "tag.class#id[attr*=val][other]".
func parseCompound(sel string) compound {
	var c compound
	for {
		open := strings.IndexByte(sel, '[')
		if open < 0 {
			break
		}
		end := strings.IndexByte(sel[open:], ']')
		if end < 0 {
			break
		}
		c.attrs = append(c.attrs, parseAttrTest(sel[open+1:open+end]))
		sel = sel[:open] + sel[open+end+1:]
	}
	if idx := strings.IndexByte(sel, '#'); idx >= 0 {
		rest := sel[idx+1:]
		if dot := strings.IndexByte(rest, '.'); dot >= 0 {
			c.class = rest[dot+1:]
			rest = rest[:dot]
		}
		c.id = rest
		sel = sel[:idx]
	}
	if idx := strings.IndexByte(sel, '.'); idx >= 0 {
		c.class = sel[idx+1:]
		sel = sel[:idx]
	}
	c.tag = strings.ToLower(sel)
	return c
}

func parseAttrTest(expr string) attrTest {
	eq := strings.IndexByte(expr, '=')
	if eq < 0 {
		return attrTest{key: strings.TrimSpace(expr)}
	}
	t := attrTest{op: '=', val: strings.Trim(strings.TrimSpace(expr[eq+1:]), `"'`)}
	key := expr[:eq]
	if n := len(key); n > 0 {
		switch key[n-1] {
		case '*', '^', '$':
			t.op = key[n-1]
			key = key[:n-1]
		}
	}
	t.key = strings.TrimSpace(key)
	return t
}

func matchChain(n *html.Node, chain []compound) bool {
	last := len(chain) - 1
	if !matchCompound(n, chain[last]) {
		return false
	}
	i := last - 1
	for p := n.Parent; p != nil && i >= 0; p = p.Parent {
		if IsElement(p) && matchCompound(p, chain[i]) {
			i--
		}
	}
	return i < 0
}

func matchCompound(n *html.Node, c compound) bool {
	if c.tag != "" && c.tag != "*" && n.Data != c.tag {
		return false
	}
	if c.id != "" && ID(n) != c.id {
		return false
	}
	if c.class != "" && !HasClass(n, c.class) {
		return false
	}
	for _, t := range c.attrs {
		if !HasAttr(n, t.key) {
			return false
		}
		v := Attr(n, t.key)
		switch t.op {
		case '=':
			if v != t.val {
				return false
			}
		case '*':
			if !strings.Contains(v, t.val) {
				return false
			}
		case '^':
			if !strings.HasPrefix(v, t.val) {
				return false
			}
		case '$':
			if !strings.HasSuffix(v, t.val) {
				return false
			}
		}
	}
	return true
}

func lookupAtom(tag string) atom.Atom {
	return atom.Lookup([]byte(strings.ToLower(tag)))
}
