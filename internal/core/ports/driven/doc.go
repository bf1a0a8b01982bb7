// Package driven defines the interfaces the core depends on: fetchers,
// the document store, embedding providers, the dynamic renderer, scraper
// strategies and the event bus. Adapters implement these; the core never
// imports an adapter.
package driven
