// Package services contains the core orchestration: the pipeline manager
// scheduling durable jobs, the embedding coordinator batching vectors,
// and the hybrid search service fusing keyword and vector retrieval.
package services
