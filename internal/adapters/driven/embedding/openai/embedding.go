// Package openai provides an embedding service adapter using OpenAI API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second
)

// Model dimensions for OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds configuration for the OpenAI embedding service.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-3-small).
	Model string

	// Timeout is the request timeout (default: 60s).
	Timeout time.Duration

	// Dimensions overrides the default dimension for the model.
	// Only applicable to text-embedding-3-* models.
	Dimensions int
}

// EmbeddingService generates embeddings using OpenAI API.
type EmbeddingService struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

// embeddingRequest is the OpenAI API request format.
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the OpenAI API response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// NewEmbeddingService creates a new OpenAI embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, &domain.EmbedError{Kind: domain.EmbedAuth, Message: "openai: API key is required"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		var ok bool
		dimensions, ok = modelDimensions[cfg.Model]
		if !ok {
			dimensions = 1536 // Default fallback
		}
	}

	return &EmbeddingService{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: dimensions,
	}, nil
}

// Dimensions returns the model's native vector dimension.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the provider:model spec for display.
func (s *EmbeddingService) ModelName() string {
	return "openai:" + s.model
}

// Embed returns one vector per input text, in input order.
func (s *EmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := embeddingRequest{
		Model: s.model,
		Input: texts,
	}
	// Only text-embedding-3-* models accept a dimension override.
	if native, ok := modelDimensions[s.model]; ok && s.dimensions != native &&
		strings.HasPrefix(s.model, "text-embedding-3") {
		request.Dimensions = s.dimensions
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &domain.EmbedError{Kind: domain.EmbedUnreachable, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.EmbedError{Kind: domain.EmbedUnreachable, Err: err}
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &domain.EmbedError{Kind: domain.EmbedProvider, Code: resp.StatusCode,
			Message: fmt.Sprintf("unparseable response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK || parsed.Error != nil {
		return nil, classifyAPIError(resp.StatusCode, &parsed)
	}

	vectors := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			continue
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		vectors[item.Index] = vec
	}
	for i, vec := range vectors {
		if vec == nil {
			return nil, &domain.EmbedError{Kind: domain.EmbedProvider, Code: resp.StatusCode,
				Message: fmt.Sprintf("missing embedding for input %d", i)}
		}
	}
	return vectors, nil
}

// classifyAPIError maps an API failure onto the embed error taxonomy so
// callers branch on the kind, not on message text.
func classifyAPIError(status int, parsed *embeddingResponse) *domain.EmbedError {
	msg := ""
	if parsed.Error != nil {
		msg = parsed.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.EmbedError{Kind: domain.EmbedAuth, Code: status, Message: msg}
	case status == http.StatusRequestEntityTooLarge:
		return &domain.EmbedError{Kind: domain.EmbedSizeLimit, Code: status, Message: msg}
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "maximum context length"):
		return &domain.EmbedError{Kind: domain.EmbedSizeLimit, Code: status, Message: msg}
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "too large"):
		return &domain.EmbedError{Kind: domain.EmbedSizeLimit, Code: status, Message: msg}
	default:
		return &domain.EmbedError{Kind: domain.EmbedProvider, Code: status, Message: msg}
	}
}
