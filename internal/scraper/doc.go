// Package scraper implements the breadth-first crawl shared by every
// strategy: the queue-and-worker-pool executor, URL canonicalization,
// scope and pattern filtering, and llms.txt seeding.
package scraper
