// Package sqlite implements the embedded document store: relational
// tables for libraries, versions, pages and chunks, an FTS5 mirror for
// keyword search, vector blobs for semantic search, and the durable jobs
// table. A single connection owns the database file; writes run inside
// transactions and schema migrations run at startup with retry.
package sqlite
