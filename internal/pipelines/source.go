package pipelines

import (
	"context"
	"path/filepath"

	"github.com/go-enry/go-enry/v2"
)

// LanguageDetectMiddleware identifies the programming language of a
// source file by filename and content.
type LanguageDetectMiddleware struct{}

// Name identifies the stage.
func (m *LanguageDetectMiddleware) Name() string { return "language" }

// Process records the detected language as metadata.
func (m *LanguageDetectMiddleware) Process(_ context.Context, p *Context, next func() error) error {
	name := filepath.Base(urlPath(p.Source))
	if lang := enry.GetLanguage(name, p.Content); lang != "" && lang != "Text" {
		p.Metadata["language"] = lang
	}
	return next()
}
