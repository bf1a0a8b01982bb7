package strategies

import (
	"fmt"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
)

// Registry holds the ordered strategy list.
type Registry struct {
	strategies []driven.ScraperStrategy
}

// NewRegistry creates a registry with the given strategies, consulted in
// order.
func NewRegistry(strategies ...driven.ScraperStrategy) *Registry {
	return &Registry{strategies: strategies}
}

// Resolve returns the first strategy that handles the URL.
func (r *Registry) Resolve(rawURL string) (driven.ScraperStrategy, error) {
	for _, s := range r.strategies {
		if s.CanHandle(rawURL) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: no strategy for %s", domain.ErrUnsupportedType, rawURL)
}
