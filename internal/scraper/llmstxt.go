package scraper

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/logger"
)

// llmsLinkRe extracts markdown link targets from an llms.txt body.
var llmsLinkRe = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)\)`)

// bareURLRe extracts bare http(s) URLs from plain list lines.
var bareURLRe = regexp.MustCompile(`https?://[^\s)\]]+`)

// ProbeLlmsTxt locates and parses an llms.txt seed list for the input
// URL: the parent directory is tried first (last path segment stripped),
// then the site root. Returns the listed absolute URLs, nil when no file
// was found.
func ProbeLlmsTxt(ctx context.Context, fetch driven.Fetcher, inputURL string) []string {
	base, err := url.Parse(inputURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil
	}

	for _, candidate := range llmsTxtCandidates(base) {
		res, err := fetch.Fetch(ctx, candidate, driven.FetchOptions{})
		if err != nil || res.Status != 200 {
			continue
		}
		urls := parseLlmsTxt(base, string(res.Content))
		if len(urls) > 0 {
			logger.Info("llms.txt at %s seeded %d urls", candidate, len(urls))
			return urls
		}
	}
	return nil
}

// llmsTxtCandidates returns the probe locations in order. The parent
// directory strips the input's last path segment directly; site root is
// the fallback, skipped when the parent already is the root.
func llmsTxtCandidates(base *url.URL) []string {
	parent := *base
	parent.RawQuery = ""
	parent.Fragment = ""

	p := parent.Path
	p = strings.TrimSuffix(p, "/")
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		p = p[:idx+1]
	} else {
		p = "/"
	}
	parent.Path = p + "llms.txt"

	root := *base
	root.RawQuery = ""
	root.Fragment = ""
	root.Path = "/llms.txt"

	if parent.Path == root.Path {
		return []string{root.String()}
	}
	return []string{parent.String(), root.String()}
}

// parseLlmsTxt extracts absolute link targets from the file body.
func parseLlmsTxt(base *url.URL, body string) []string {
	seen := make(map[string]bool)
	var urls []string

	add := func(raw string) {
		ref, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		key := CanonicalURL(abs.String())
		if seen[key] {
			return
		}
		seen[key] = true
		urls = append(urls, abs.String())
	}

	for _, line := range strings.Split(body, "\n") {
		if m := llmsLinkRe.FindAllStringSubmatch(line, -1); m != nil {
			for _, sub := range m {
				add(sub[1])
			}
			continue
		}
		for _, raw := range bareURLRe.FindAllString(line, -1) {
			add(raw)
		}
	}
	return urls
}

// MarkdownSibling derives the .md sibling probed before the primary
// fetch of an llms.txt-seeded URL: file-like paths get ".md" appended,
// directory-like paths get "index.html.md".
func MarkdownSibling(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Path, ".md") {
		return ""
	}
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		u.Path += "index.html.md"
	} else {
		u.Path += ".md"
	}
	return u.String()
}

// TextLike reports whether a content type is acceptable for an .md
// sibling response.
func TextLike(contentType string) bool {
	switch {
	case strings.HasPrefix(contentType, "text/"):
		return true
	case contentType == "application/markdown":
		return true
	}
	return false
}
