// Package strategies implements the source-specific URL discovery
// plug-ins consumed by the BFS executor: web sites, local file trees,
// the npm and PyPI registries and GitHub-hosted repositories. Strategies
// are registered in order; the first that matches the input wins.
package strategies
