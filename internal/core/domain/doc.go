// Package domain contains the core business entities and rules for docdex.
// It has no dependencies on adapters or infrastructure; everything here is
// plain data and pure logic shared by the scraper, the content pipeline,
// the store and the pipeline manager.
package domain
