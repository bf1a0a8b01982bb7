package pipelines

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/logger"
)

// RenderMiddleware runs the dynamic renderer when the job asks for it.
// In auto mode the static document is rendered only when it looks
// JavaScript-dependent (near-empty body with scripts present).
type RenderMiddleware struct {
	Renderer driven.DynamicRenderer
}

// Name identifies the stage.
func (m *RenderMiddleware) Name() string { return "render" }

// Process replaces the raw content with the rendered DOM when needed.
func (m *RenderMiddleware) Process(ctx context.Context, p *Context, next func() error) error {
	if m.Renderer == nil {
		return next()
	}

	mode := p.Options.RenderMode
	if mode == "" || mode == domain.RenderStatic {
		return next()
	}
	if mode == domain.RenderAuto && !needsRendering(p.Content) {
		return next()
	}

	result, err := m.Renderer.Render(ctx, driven.RenderRequest{
		URL:     p.Source,
		Headers: p.Options.Headers,
	})
	if err != nil {
		// Rendering problems degrade to the static content.
		p.Errors = append(p.Errors, fmt.Errorf("dynamic render: %w", err))
		return next()
	}

	p.Content = []byte(result.HTML)
	if result.FinalURL != "" {
		p.Source = result.FinalURL
	}
	return next()
}

// needsRendering is the auto-mode heuristic: scripts present and almost
// no visible text.
func needsRendering(content []byte) bool {
	doc, err := ParseDocument(content)
	if err != nil {
		return false
	}
	return doc.HasScripts() && doc.TextLength() < 200
}

// ParseMiddleware parses the content into the DOM adapter.
type ParseMiddleware struct{}

// Name identifies the stage.
func (m *ParseMiddleware) Name() string { return "parse" }

// Process parses the document; a parse failure aborts the HTML chain.
func (m *ParseMiddleware) Process(_ context.Context, p *Context, next func() error) error {
	doc, err := ParseDocument(p.Content)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPipelineAborted, err)
	}
	p.DOM = doc
	return next()
}

// MetadataMiddleware extracts the title from <title> or the first <h1>.
type MetadataMiddleware struct{}

// Name identifies the stage.
func (m *MetadataMiddleware) Name() string { return "metadata" }

// Process records the document title.
func (m *MetadataMiddleware) Process(_ context.Context, p *Context, next func() error) error {
	if p.DOM != nil {
		p.Title = p.DOM.Title()
	}
	return next()
}

// LinkDiscoveryMiddleware collects absolute URLs from every <a href> in
// the full DOM, before sanitization removes navigation.
type LinkDiscoveryMiddleware struct{}

// Name identifies the stage.
func (m *LinkDiscoveryMiddleware) Name() string { return "links" }

// Process resolves and records the document's links.
func (m *LinkDiscoveryMiddleware) Process(_ context.Context, p *Context, next func() error) error {
	if p.DOM == nil {
		return next()
	}
	base, err := url.Parse(p.Source)
	if err != nil {
		return next()
	}
	seen := make(map[string]bool)
	for _, href := range p.DOM.Links() {
		abs, ok := resolveLink(base, href)
		if !ok || seen[abs] {
			continue
		}
		seen[abs] = true
		p.Links = append(p.Links, abs)
	}
	return next()
}

// resolveLink makes href absolute against base, rejecting non-document
// schemes and pure fragments.
func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "data:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" && abs.Scheme != "file" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

// defaultStripSelectors are the elements removed by sanitization.
var defaultStripSelectors = []string{
	"script", "style", "noscript", "template", "iframe", "form",
	"nav", "header", "footer", "aside",
	".nav", ".navbar", ".navigation", ".sidebar", ".footer", ".header",
	".ads", ".advertisement", ".banner", ".cookie-banner",
	"#nav", "#navbar", "#sidebar", "#footer", "#header",
}

// maxSanitizeLoss is the safety-net threshold: when removal would drop
// more than this fraction of the visible text, the removal is reverted.
const maxSanitizeLoss = 0.7

// SanitizeMiddleware removes navigation, chrome and script elements, with
// a safety net against over-aggressive selectors.
type SanitizeMiddleware struct {
	// Selectors overrides the default strip list when non-nil.
	Selectors []string
}

// Name identifies the stage.
func (m *SanitizeMiddleware) Name() string { return "sanitize" }

// Process strips the configured selectors, reverting when too much text
// would vanish.
func (m *SanitizeMiddleware) Process(_ context.Context, p *Context, next func() error) error {
	if p.DOM == nil {
		return next()
	}
	selectors := m.Selectors
	if selectors == nil {
		selectors = defaultStripSelectors
	}

	before := p.DOM.TextLength()
	backup := p.DOM.Clone()
	removed := p.DOM.Remove(selectors)
	after := p.DOM.TextLength()

	if before > 0 && float64(before-after)/float64(before) > maxSanitizeLoss {
		logger.Warn("sanitize would remove %d%% of text on %s, reverting", (before-after)*100/before, p.Source)
		p.DOM = backup
	} else if removed > 0 {
		logger.Debug("sanitize removed %d elements from %s", removed, p.Source)
	}
	return next()
}

// NormalizeLinksMiddleware rewrites relative hrefs to absolute URLs and
// unwraps anchor, javascript and mailto links preserving their text.
type NormalizeLinksMiddleware struct{}

// Name identifies the stage.
func (m *NormalizeLinksMiddleware) Name() string { return "normalize" }

// Process rewrites the DOM's anchors in place.
func (m *NormalizeLinksMiddleware) Process(_ context.Context, p *Context, next func() error) error {
	if p.DOM == nil {
		return next()
	}
	base, err := url.Parse(p.Source)
	if err != nil {
		return next()
	}
	p.DOM.RewriteLinks(func(href string) string {
		abs, ok := resolveLink(base, href)
		if !ok {
			return "" // Unwrap, keeping the text.
		}
		return abs
	})
	return next()
}

// MarkdownConvertMiddleware renders the sanitized DOM as Markdown and
// retags the context for the markdown splitter.
type MarkdownConvertMiddleware struct{}

// Name identifies the stage.
func (m *MarkdownConvertMiddleware) Name() string { return "markdown" }

// Process sets the context text to the Markdown rendering.
func (m *MarkdownConvertMiddleware) Process(_ context.Context, p *Context, next func() error) error {
	if p.DOM != nil {
		p.Text = p.DOM.Markdown()
	}
	return next()
}
