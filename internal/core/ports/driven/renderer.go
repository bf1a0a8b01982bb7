package driven

import (
	"context"
	"time"
)

// RenderRequest configures one dynamic page render.
type RenderRequest struct {
	// URL is the page to render.
	URL string

	// Headers are forwarded to every request issued by the page.
	Headers map[string]string

	// Timeout bounds the render.
	Timeout time.Duration
}

// RenderResult is the rendered document.
type RenderResult struct {
	// HTML is the serialized DOM after settling, including extracted
	// shadow DOM content and merged frames.
	HTML string

	// FinalURL is the page URL after client-side redirects.
	FinalURL string

	// Status is the main document's HTTP status.
	Status int
}

// DynamicRenderer drives a headless browser for pages that require
// JavaScript. The concrete driver is an external collaborator; the core
// owns the lifecycle contract: one shared instance per process, one
// isolated context per render, contexts always disposed.
type DynamicRenderer interface {
	// Render loads the page, waits for content, and returns the DOM.
	Render(ctx context.Context, req RenderRequest) (*RenderResult, error)

	// Close shuts the shared browser down. Safe to call when already
	// disconnected; zombie processes are reaped regardless.
	Close() error
}
