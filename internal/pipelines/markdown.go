package pipelines

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontMatterRe matches a leading YAML front-matter block.
var frontMatterRe = regexp.MustCompile(`(?s)\A---\r?\n(.*?)\r?\n---\r?\n`)

// FrontMatterMiddleware strips YAML front matter and lifts its title into
// the context.
type FrontMatterMiddleware struct{}

// Name identifies the stage.
func (m *FrontMatterMiddleware) Name() string { return "frontmatter" }

// Process removes the front-matter block, recording its fields as
// metadata.
func (m *FrontMatterMiddleware) Process(_ context.Context, p *Context, next func() error) error {
	match := frontMatterRe.FindStringSubmatch(p.Text)
	if match == nil {
		return next()
	}

	var fields map[string]any
	if err := yaml.Unmarshal([]byte(match[1]), &fields); err != nil {
		// Malformed front matter is left in place and reported.
		p.Errors = append(p.Errors, fmt.Errorf("front matter: %w", err))
		return next()
	}

	p.Text = p.Text[len(match[0]):]
	for k, v := range fields {
		p.Metadata[k] = v
	}
	if title, ok := fields["title"].(string); ok && title != "" {
		p.Title = title
	}
	return next()
}

// markdownLinkRe matches inline markdown links, skipping images.
var markdownLinkRe = regexp.MustCompile(`(^|[^!])\[([^\]]*)\]\(([^)\s]+)\)`)

// MarkdownLinksMiddleware resolves relative markdown links against the
// source URL and records the absolute targets as discovered links.
type MarkdownLinksMiddleware struct{}

// Name identifies the stage.
func (m *MarkdownLinksMiddleware) Name() string { return "links" }

// Process rewrites and collects the document's links.
func (m *MarkdownLinksMiddleware) Process(_ context.Context, p *Context, next func() error) error {
	base, err := url.Parse(p.Source)
	if err != nil {
		return next()
	}

	seen := make(map[string]bool)
	p.Text = markdownLinkRe.ReplaceAllStringFunc(p.Text, func(link string) string {
		sub := markdownLinkRe.FindStringSubmatch(link)
		abs, ok := resolveLink(base, sub[3])
		if !ok {
			// Anchors and non-document schemes keep their text only.
			return sub[1] + sub[2]
		}
		if !seen[abs] {
			seen[abs] = true
			p.Links = append(p.Links, abs)
		}
		return fmt.Sprintf("%s[%s](%s)", sub[1], sub[2], abs)
	})

	// Title fallback: first H1.
	if p.Title == "" {
		for _, line := range strings.SplitN(p.Text, "\n", 50) {
			if strings.HasPrefix(line, "# ") {
				p.Title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
				break
			}
		}
	}
	return next()
}
