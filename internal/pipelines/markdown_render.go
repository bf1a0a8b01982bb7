package pipelines

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Markdown renders the document body as Markdown. Headings, emphasis,
// links, lists, tables, code and blockquotes are preserved; everything
// else degrades to text.
func (d *Document) Markdown() string {
	var r mdRenderer
	r.block(d.body())
	out := r.b.String()
	out = collapseBlankLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out) + "\n"
}

var collapseBlankLines = regexp.MustCompile(`\n{3,}`)

// mdRenderer walks the DOM emitting Markdown.
type mdRenderer struct {
	b strings.Builder
}

// block renders flow content, separating block elements by blank lines.
func (r *mdRenderer) block(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.node(c)
	}
}

//nolint:gocyclo // One case per element kind.
func (r *mdRenderer) node(n *html.Node) {
	if n.Type == html.TextNode {
		r.b.WriteString(collapseSpace(n.Data))
		return
	}
	if n.Type != html.ElementNode {
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head, atom.Svg:
		return
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level := int(n.Data[1] - '0')
		r.para()
		r.b.WriteString(strings.Repeat("#", level))
		r.b.WriteString(" ")
		r.b.WriteString(strings.TrimSpace(collapseSpace(textOf(n))))
		r.para()
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main, atom.Figure, atom.Figcaption:
		r.para()
		r.block(n)
		r.para()
	case atom.Br:
		r.b.WriteString("\n")
	case atom.Hr:
		r.para()
		r.b.WriteString("---")
		r.para()
	case atom.Pre:
		r.para()
		r.b.WriteString("```")
		if lang := codeLanguage(n); lang != "" {
			r.b.WriteString(lang)
		}
		r.b.WriteString("\n")
		r.b.WriteString(strings.TrimRight(rawTextOf(n), "\n"))
		r.b.WriteString("\n```")
		r.para()
	case atom.Code:
		// Inline code; <pre><code> is handled by the pre case.
		r.b.WriteString("`")
		r.b.WriteString(strings.TrimSpace(rawTextOf(n)))
		r.b.WriteString("`")
	case atom.Strong, atom.B:
		r.b.WriteString("**")
		r.block(n)
		r.b.WriteString("**")
	case atom.Em, atom.I:
		r.b.WriteString("*")
		r.block(n)
		r.b.WriteString("*")
	case atom.A:
		href := attr(n, "href")
		text := strings.TrimSpace(collapseSpace(textOf(n)))
		if href == "" || text == "" {
			r.block(n)
			return
		}
		fmt.Fprintf(&r.b, "[%s](%s)", text, href)
	case atom.Img:
		if alt := attr(n, "alt"); alt != "" {
			fmt.Fprintf(&r.b, "![%s](%s)", alt, attr(n, "src"))
		}
	case atom.Ul, atom.Ol:
		r.para()
		r.list(n, n.DataAtom == atom.Ol)
		r.para()
	case atom.Blockquote:
		r.para()
		inner := renderFragment(n)
		for _, line := range strings.Split(strings.TrimSpace(inner), "\n") {
			r.b.WriteString("> ")
			r.b.WriteString(line)
			r.b.WriteString("\n")
		}
		r.b.WriteString("\n")
	case atom.Table:
		r.para()
		r.table(n)
		r.para()
	default:
		r.block(n)
	}
}

// list renders <ul>/<ol> items, nested lists indented.
func (r *mdRenderer) list(n *html.Node, ordered bool) {
	i := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			continue
		}
		i++
		marker := "- "
		if ordered {
			marker = fmt.Sprintf("%d. ", i)
		}
		item := strings.TrimSpace(renderFragment(c))
		lines := strings.Split(item, "\n")
		r.b.WriteString(marker)
		r.b.WriteString(lines[0])
		r.b.WriteString("\n")
		for _, line := range lines[1:] {
			if strings.TrimSpace(line) == "" {
				continue
			}
			r.b.WriteString("  ")
			r.b.WriteString(line)
			r.b.WriteString("\n")
		}
	}
}

// table renders rows as pipe-delimited lines with a separator after the
// first row.
func (r *mdRenderer) table(n *html.Node) {
	var rows [][]string
	walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && c.DataAtom == atom.Tr {
			var cells []string
			for td := c.FirstChild; td != nil; td = td.NextSibling {
				if td.Type == html.ElementNode && (td.DataAtom == atom.Td || td.DataAtom == atom.Th) {
					cells = append(cells, strings.TrimSpace(collapseSpace(textOf(td))))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
			return false
		}
		return true
	})

	for i, cells := range rows {
		r.b.WriteString("| ")
		r.b.WriteString(strings.Join(cells, " | "))
		r.b.WriteString(" |\n")
		if i == 0 {
			r.b.WriteString("|")
			r.b.WriteString(strings.Repeat(" --- |", len(cells)))
			r.b.WriteString("\n")
		}
	}
}

// para ensures the output ends with a blank line separator.
func (r *mdRenderer) para() {
	out := r.b.String()
	switch {
	case out == "" || strings.HasSuffix(out, "\n\n"):
	case strings.HasSuffix(out, "\n"):
		r.b.WriteString("\n")
	default:
		r.b.WriteString("\n\n")
	}
}

// renderFragment renders a subtree independently.
func renderFragment(n *html.Node) string {
	var r mdRenderer
	r.block(n)
	return r.b.String()
}

// rawTextOf returns text content preserving whitespace, for code blocks.
func rawTextOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// codeLanguage extracts a language hint from class="language-x" on the
// pre element or its code child.
func codeLanguage(n *html.Node) string {
	check := func(n *html.Node) string {
		for _, class := range strings.Fields(attr(n, "class")) {
			if lang, ok := strings.CutPrefix(class, "language-"); ok {
				return lang
			}
			if lang, ok := strings.CutPrefix(class, "lang-"); ok {
				return lang
			}
		}
		return ""
	}
	if lang := check(n); lang != "" {
		return lang
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Code {
			return check(c)
		}
	}
	return ""
}

// collapseSpace folds runs of whitespace into single spaces.
func collapseSpace(s string) string {
	return spaceRun.ReplaceAllString(s, " ")
}

var spaceRun = regexp.MustCompile(`[ \t\r\n]+`)
