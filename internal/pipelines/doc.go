// Package pipelines implements the per-content-type middleware chains
// that transform fetched bytes into ordered chunks with hierarchy.
//
// A pipeline is a linear list of middlewares sharing one mutable context.
// Each middleware runs in order and may short-circuit. Pipelines are
// selected by content type; the HTML chain is the richest (render, parse,
// metadata, links, sanitize, normalize, markdown conversion) and the text
// chain the plainest. Splitting runs after the chain: a semantic phase-1
// splitter chosen by content type followed by the greedy size optimizer.
package pipelines
