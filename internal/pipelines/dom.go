package pipelines

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is the DOM adapter the HTML middlewares operate through. It
// wraps the parsed tree behind a typed API so no middleware touches the
// parser directly.
type Document struct {
	root *html.Node
}

// ParseDocument parses an HTML byte stream.
func ParseDocument(content []byte) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return &Document{root: root}, nil
}

// Title returns the <title> text, or the first <h1> text, or empty.
func (d *Document) Title() string {
	if n := d.find(atom.Title); n != nil {
		if t := strings.TrimSpace(textOf(n)); t != "" {
			return t
		}
	}
	if n := d.find(atom.H1); n != nil {
		return strings.TrimSpace(textOf(n))
	}
	return ""
}

// Links returns the href of every <a> in document order.
func (d *Document) Links() []string {
	var links []string
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if href := attr(n, "href"); href != "" {
				links = append(links, href)
			}
		}
		return true
	})
	return links
}

// TextLength returns the length of the document's visible text. Used by
// the sanitizer's safety net.
func (d *Document) TextLength() int {
	return len(textOf(d.body()))
}

// Remove detaches every element matching one of the selectors. A selector
// is a tag name, ".class" or "#id".
func (d *Document) Remove(selectors []string) int {
	var doomed []*html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		for _, sel := range selectors {
			if matchSelector(n, sel) {
				doomed = append(doomed, n)
				return false // No need to descend into removed subtrees.
			}
		}
		return true
	})
	for _, n := range doomed {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	return len(doomed)
}

// Clone deep-copies the document so destructive passes can be reverted.
func (d *Document) Clone() *Document {
	return &Document{root: cloneNode(d.root)}
}

// RewriteLinks applies fn to every <a href>. Returning an empty string
// unwraps the anchor, keeping its text in place.
func (d *Document) RewriteLinks(fn func(href string) string) {
	var anchors []*html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			anchors = append(anchors, n)
		}
		return true
	})
	for _, a := range anchors {
		href := attr(a, "href")
		if href == "" {
			continue
		}
		next := fn(href)
		if next == "" {
			unwrap(a)
			continue
		}
		setAttr(a, "href", next)
	}
}

// HasScripts reports whether the document contains script elements.
func (d *Document) HasScripts() bool {
	return d.find(atom.Script) != nil
}

// body returns the <body> element, or the root when parsing produced none.
func (d *Document) body() *html.Node {
	if n := d.find(atom.Body); n != nil {
		return n
	}
	return d.root
}

// find returns the first element with the given atom, depth-first.
func (d *Document) find(a atom.Atom) *html.Node {
	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if found == nil && n.Type == html.ElementNode && n.DataAtom == a {
			found = n
			return false
		}
		return found == nil
	})
	return found
}

// walk visits nodes depth-first; fn returning false skips the subtree.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// textOf concatenates the text nodes beneath n, skipping script and style.
func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		switch c.DataAtom {
		case atom.Script, atom.Style, atom.Noscript:
			return false
		}
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// attr returns the named attribute value.
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// setAttr replaces or adds the named attribute.
func setAttr(n *html.Node, name, val string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: val})
}

// matchSelector matches a tag name, ".class" or "#id" selector.
func matchSelector(n *html.Node, sel string) bool {
	switch {
	case strings.HasPrefix(sel, "."):
		for _, class := range strings.Fields(attr(n, "class")) {
			if class == sel[1:] {
				return true
			}
		}
		return false
	case strings.HasPrefix(sel, "#"):
		return attr(n, "id") == sel[1:]
	default:
		return strings.EqualFold(n.Data, sel)
	}
}

// unwrap replaces a node with its children.
func unwrap(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
		c = next
	}
	parent.RemoveChild(n)
}

// cloneNode deep-copies an html node tree.
func cloneNode(n *html.Node) *html.Node {
	cp := &html.Node{
		Type:     n.Type,
		DataAtom: n.DataAtom,
		Data:     n.Data,
		Attr:     append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		cp.AppendChild(cloneNode(c))
	}
	return cp
}
