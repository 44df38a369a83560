package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Snapshot is a cleaned rendering of a document: scripts, styles and other
// noise removed, semantic structure and targeting attributes kept.
type Snapshot struct {
	HTML      string
	Title     string
	Truncated bool
}

// snapshotNode renders root into a Snapshot of at most maxLength bytes of content.
func snapshotNode(root *html.Node, maxLength int) *Snapshot {
	w := &snapshotWriter{max: maxLength}
	truncated := w.node(root, 0)

	return &Snapshot{
		HTML:      w.b.String(),
		Title:     documentTitle(root),
		Truncated: truncated,
	}
}

// snapshotHTML parses raw markup and renders its snapshot.
func snapshotHTML(raw string, maxLength int) (*Snapshot, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return snapshotNode(doc, maxLength), nil
}

type snapshotWriter struct {
	b   strings.Builder
	n   int
	max int
}

// node writes n and its subtree; it reports true once the budget is spent.
func (w *snapshotWriter) node(n *html.Node, depth int) bool {
	if w.n >= w.max {
		return true
	}

	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return false
	case html.TextNode:
		return w.text(n.Data)
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if droppedTags[tag] {
			return false
		}
		return w.element(n, tag, depth)
	default:
		return w.children(n, depth)
	}
}

func (w *snapshotWriter) text(data string) bool {
	text := strings.TrimSpace(data)
	if text == "" {
		return false
	}

	if w.n+len(text) > w.max {
		w.b.WriteString(html.EscapeString(text[:w.max-w.n]))
		w.b.WriteString("...")
		w.n = w.max
		return true
	}

	w.b.WriteString(html.EscapeString(text))
	w.n += len(text)
	return false
}

func (w *snapshotWriter) element(n *html.Node, tag string, depth int) bool {
	block := blockTags[tag]
	if block && depth > 0 {
		w.indent(depth)
	}

	w.b.WriteString("<" + tag)
	for _, attr := range n.Attr {
		if keepAttribute(tag, strings.ToLower(attr.Key)) {
			fmt.Fprintf(&w.b, ` %s="%s"`, attr.Key, html.EscapeString(attr.Val))
		}
	}
	w.b.WriteString(">")
	w.n += len(tag) + 2

	truncated := w.children(n, depth+1)

	if !voidTags[tag] {
		if block {
			w.indent(depth)
		}
		w.b.WriteString("</" + tag + ">")
		w.n += len(tag) + 3
	}
	return truncated
}

func (w *snapshotWriter) children(n *html.Node, depth int) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if w.node(c, depth) {
			return true
		}
	}
	return false
}

func (w *snapshotWriter) indent(depth int) {
	w.b.WriteString("\n")
	w.b.WriteString(strings.Repeat("  ", depth))
}

var droppedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true,
	"embed": true, "object": true, "svg": true, "template": true,
}

var blockTags = map[string]bool{
	"html": true, "head": true, "body": true, "div": true, "p": true,
	"section": true, "article": true, "header": true, "footer": true,
	"nav": true, "main": true, "aside": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "ul": true, "ol": true,
	"li": true, "table": true, "tr": true, "td": true, "th": true,
	"form": true, "fieldset": true, "blockquote": true, "pre": true,
}

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// keepAttribute reports whether an attribute helps locate the element later.
func keepAttribute(tag, key string) bool {
	switch key {
	case "id", "class", "role", "name", "aria-label":
		return true
	}
	if strings.HasPrefix(key, "data-") {
		return true
	}

	switch tag {
	case "a":
		return key == "href"
	case "img":
		return key == "src" || key == "alt"
	case "input", "textarea", "select", "option":
		return key == "type" || key == "placeholder" || key == "value" || key == "selected"
	case "button":
		return key == "type"
	case "form":
		return key == "action" || key == "method"
	}
	return false
}

// documentTitle returns the trimmed text of the first <title>.
func documentTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			return strings.TrimSpace(n.FirstChild.Data)
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := documentTitle(c); title != "" {
			return title
		}
	}
	return ""
}
