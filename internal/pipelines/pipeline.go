package pipelines

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/logger"
	"github.com/custodia-labs/docdex/internal/splitter"
)

// Context is the mutable state shared by a pipeline's middlewares. The
// runner owns it and hands it to each middleware in turn.
type Context struct {
	// Source is the page URL after redirects.
	Source string

	// Content is the raw fetched body.
	Content []byte

	// Text is the textual content as it flows through the chain.
	Text string

	// ContentType is the negotiated MIME type.
	ContentType string

	// Title is the extracted document title.
	Title string

	// Links are absolute URLs discovered on the page.
	Links []string

	// Metadata collects auxiliary values (language, front matter).
	Metadata map[string]any

	// Errors collects non-fatal processing problems.
	Errors []error

	// Options are the per-job pipeline knobs.
	Options driven.ProcessOptions

	// DOM is the parsed tree, set by the parse middleware.
	DOM *Document
}

// Middleware is one stage of a pipeline. Process may short-circuit the
// chain by not calling next.
type Middleware interface {
	// Name identifies the stage in logs.
	Name() string

	// Process transforms the shared context and calls next to continue.
	Process(ctx context.Context, p *Context, next func() error) error
}

// splitKind selects the phase-1 semantic splitter.
type splitKind int

const (
	splitMarkdown splitKind = iota
	splitJSON
	splitSource
	splitText
)

// Pipeline is an ordered middleware chain plus a splitter selection.
type Pipeline struct {
	name        string
	middlewares []Middleware
	split       splitKind
}

// NewPipeline builds a pipeline from stages.
func NewPipeline(name string, split splitKind, stages ...Middleware) *Pipeline {
	return &Pipeline{name: name, middlewares: stages, split: split}
}

// Run executes the chain over the shared context.
func (p *Pipeline) Run(ctx context.Context, pctx *Context) error {
	var exec func(i int) error
	exec = func(i int) error {
		if i >= len(p.middlewares) {
			return nil
		}
		m := p.middlewares[i]
		logger.Debug("pipeline %s: %s", p.name, m.Name())
		return m.Process(ctx, pctx, func() error { return exec(i + 1) })
	}
	return exec(0)
}

// Processor selects and runs a pipeline per content type, then applies
// the two-phase splitter. It implements driven.ContentProcessor.
type Processor struct {
	renderer driven.DynamicRenderer

	htmlPipe     *Pipeline
	markdownPipe *Pipeline
	jsonPipe     *Pipeline
	sourcePipe   *Pipeline
	textPipe     *Pipeline
}

var _ driven.ContentProcessor = (*Processor)(nil)

// NewProcessor wires the standard pipelines. The renderer is optional;
// without one the render stage is a no-op.
func NewProcessor(renderer driven.DynamicRenderer) *Processor {
	return &Processor{
		renderer: renderer,
		htmlPipe: NewPipeline("html", splitMarkdown,
			&RenderMiddleware{Renderer: renderer},
			&ParseMiddleware{},
			&MetadataMiddleware{},
			&LinkDiscoveryMiddleware{},
			&SanitizeMiddleware{},
			&NormalizeLinksMiddleware{},
			&MarkdownConvertMiddleware{},
		),
		markdownPipe: NewPipeline("markdown", splitMarkdown,
			&FrontMatterMiddleware{},
			&MarkdownLinksMiddleware{},
		),
		jsonPipe: NewPipeline("json", splitJSON,
			&JSONValidateMiddleware{},
		),
		sourcePipe: NewPipeline("source", splitSource,
			&LanguageDetectMiddleware{},
		),
		textPipe: NewPipeline("text", splitText),
	}
}

// Process runs the pipeline for the fetched document and splits the
// outcome into chunks.
func (pr *Processor) Process(ctx context.Context, fetched *driven.FetchResult, sourceURL string, opts driven.ProcessOptions) (*domain.ScrapeResult, error) {
	pctx := &Context{
		Source:      fetched.FinalURL,
		Content:     fetched.Content,
		Text:        string(fetched.Content),
		ContentType: fetched.ContentType,
		Metadata:    make(map[string]any),
		Options:     opts,
	}
	if pctx.Source == "" {
		pctx.Source = sourceURL
	}

	pipe := pr.selectPipeline(fetched.ContentType, pctx.Source)
	if err := pipe.Run(ctx, pctx); err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", pipe.name, err)
	}

	if pctx.Title == "" {
		pctx.Title = titleFromPath(pctx.Source)
	}

	chunks, err := pr.splitChunks(pipe.split, pctx.Text, opts.Splitter)
	if err != nil {
		// Splitting problems are per-page, not fatal: fall back to the
		// plain-text splitter and record the error.
		pctx.Errors = append(pctx.Errors, err)
		chunks, _ = pr.splitChunks(splitText, pctx.Text, opts.Splitter)
	}

	return &domain.ScrapeResult{
		URL:          pctx.Source,
		Title:        pctx.Title,
		ContentType:  pctx.ContentType,
		ETag:         fetched.ETag,
		LastModified: fetched.LastModified,
		Chunks:       chunks,
		Links:        pctx.Links,
		Errors:       pctx.Errors,
	}, nil
}

// selectPipeline maps content type (and extension for source files) onto
// a pipeline. Responses negotiated as markdown or plain text bypass the
// HTML stages entirely.
func (pr *Processor) selectPipeline(contentType, source string) *Pipeline {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case ct == "text/markdown" || ct == "text/x-markdown":
		return pr.markdownPipe
	case ct == "application/json" || strings.HasSuffix(ct, "+json"):
		return pr.jsonPipe
	case ct == "text/html" || ct == "application/xhtml+xml":
		return pr.htmlPipe
	case isSourceType(ct, source):
		return pr.sourcePipe
	case ct == "text/plain" && looksLikeMarkdown(source):
		return pr.markdownPipe
	default:
		return pr.textPipe
	}
}

// splitChunks runs phase 1 and phase 2 and assigns sort order.
func (pr *Processor) splitChunks(kind splitKind, text string, cfg domain.SplitterConfig) ([]domain.Chunk, error) {
	var sem splitter.Splitter
	switch kind {
	case splitJSON:
		sem = splitter.NewJSON(cfg.MaxChunkSize)
	case splitSource:
		sem = splitter.NewSourceCode(cfg.MaxChunkSize)
	case splitText:
		sem = splitter.NewText(cfg.MaxChunkSize)
	default:
		sem = splitter.NewMarkdown(cfg.MaxChunkSize)
	}

	pieces, err := sem.Split(text)
	if err != nil {
		return nil, fmt.Errorf("semantic split: %w", err)
	}
	pieces = splitter.NewGreedy(cfg).Optimize(pieces)

	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, domain.Chunk{
			Content:   piece.Content,
			SortOrder: i,
			Section:   piece.Section,
			Types:     piece.Types,
		})
	}
	return chunks, nil
}

// sourceExtensions maps file extensions handled by the source pipeline.
var sourceExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true,
	".jsx": true, ".rs": true, ".java": true, ".rb": true, ".c": true,
	".h": true, ".cpp": true, ".hpp": true, ".cs": true, ".php": true,
	".swift": true, ".kt": true, ".scala": true, ".sh": true,
}

// isSourceType recognises source files by MIME prefix or extension.
func isSourceType(ct, source string) bool {
	if strings.HasPrefix(ct, "text/x-") && ct != "text/x-markdown" {
		return true
	}
	if ct == "application/javascript" || ct == "application/typescript" {
		return true
	}
	return sourceExtensions[strings.ToLower(filepath.Ext(urlPath(source)))]
}

// looksLikeMarkdown reports whether the path has a markdown extension.
func looksLikeMarkdown(source string) bool {
	switch strings.ToLower(filepath.Ext(urlPath(source))) {
	case ".md", ".markdown", ".mdx":
		return true
	}
	return false
}

// urlPath strips query and fragment for extension checks.
func urlPath(source string) string {
	if i := strings.IndexAny(source, "?#"); i >= 0 {
		source = source[:i]
	}
	return source
}

// titleFromPath derives a fallback title from the URL's last segment.
func titleFromPath(source string) string {
	base := filepath.Base(urlPath(source))
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	if base == "." || base == "/" {
		return ""
	}
	return base
}
