// Package ollama provides an embedding service adapter using a local
// Ollama instance.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "nomic-embed-text"
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for the Ollama embedding service.
type Config struct {
	// BaseURL is the Ollama server address (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model to use (default: nomic-embed-text).
	Model string

	// Timeout is the request timeout (default: 120s; local models can be slow).
	Timeout time.Duration

	// Dimensions is the model's output dimension. Probed on first use
	// when zero.
	Dimensions int
}

// EmbeddingService generates embeddings using the Ollama embed API.
type EmbeddingService struct {
	client     *http.Client
	baseURL    string
	model      string
	dimensions int
}

// embedRequest is the Ollama /api/embed request format.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the Ollama /api/embed response format.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewEmbeddingService creates a new Ollama embedding service and probes
// the model's dimension when not configured.
func NewEmbeddingService(ctx context.Context, cfg Config) (*EmbeddingService, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	s := &EmbeddingService{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}

	if s.dimensions == 0 {
		probe, err := s.Embed(ctx, []string{"dimension probe"})
		if err != nil {
			return nil, fmt.Errorf("probing model dimension: %w", err)
		}
		s.dimensions = len(probe[0])
	}
	return s, nil
}

// Dimensions returns the model's native vector dimension.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the provider:model spec for display.
func (s *EmbeddingService) ModelName() string {
	return "ollama:" + s.model
}

// Embed returns one vector per input text, in input order.
func (s *EmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(embedRequest{Model: s.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &domain.EmbedError{Kind: domain.EmbedUnreachable, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.EmbedError{Kind: domain.EmbedUnreachable, Err: err}
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &domain.EmbedError{Kind: domain.EmbedProvider, Code: resp.StatusCode,
			Message: fmt.Sprintf("unparseable response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK || parsed.Error != "" {
		kind := domain.EmbedProvider
		if resp.StatusCode == http.StatusRequestEntityTooLarge {
			kind = domain.EmbedSizeLimit
		}
		return nil, &domain.EmbedError{Kind: kind, Code: resp.StatusCode, Message: parsed.Error}
	}

	if len(parsed.Embeddings) != len(texts) {
		return nil, &domain.EmbedError{Kind: domain.EmbedProvider, Code: resp.StatusCode,
			Message: fmt.Sprintf("got %d embeddings for %d inputs", len(parsed.Embeddings), len(texts))}
	}
	return parsed.Embeddings, nil
}
