package fetcher

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/poundlens/dom"
)

// minText is the visible text a server-rendered page must carry.
const minText = 200

// shellRoots are the mount points of script-rendered applications.
const shellRoots = "#root, #app, #__next"

// IsSufficient reports whether a fetched page carries its content in the
// markup, so a browser is not needed. size is the raw body length.
func IsSufficient(doc *dom.Document, size int) bool {
	if size < 256 {
		return false
	}
	body := dom.Query(doc.Root(), "body")
	if body == nil {
		return false
	}
	text := len(strings.Join(strings.Fields(dom.TextContent(body, nil)), ""))
	if text < minText {
		return false
	}
	// Less than 10% text is likely an application shell.
	if float64(text)/float64(size) < 0.10 {
		return false
	}
	for _, root := range dom.QueryAll(doc.Root(), shellRoots) {
		if root.FirstChild == nil {
			return false
		}
	}
	for _, ns := range dom.QueryAll(doc.Root(), "noscript") {
		if strings.Contains(strings.ToLower(rawText(ns)), "enable javascript") {
			return false
		}
	}
	return true
}

// rawText reads the text children of n. TextContent skips noscript, whose
// content the parser keeps as raw text.
func rawText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
