// Package fetcher implements byte retrieval: the retrying HTTP fetcher,
// the local file fetcher, archive expansion and the browser fetch path
// with its shared resource cache. All fetchers classify failures as
// *domain.FetchError so callers branch on the kind.
package fetcher
