package pipelines

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

// JSONValidateMiddleware checks the document is well-formed JSON before
// the structural splitter runs.
type JSONValidateMiddleware struct{}

// Name identifies the stage.
func (m *JSONValidateMiddleware) Name() string { return "validate" }

// Process aborts the chain on malformed input.
func (m *JSONValidateMiddleware) Process(_ context.Context, p *Context, next func() error) error {
	if !json.Valid(p.Content) {
		return fmt.Errorf("%w: malformed json document", domain.ErrPipelineAborted)
	}
	p.Text = string(p.Content)
	return next()
}
