// Package driving defines the service surface the core exposes to its
// consumers: the CLI, the web dashboard and the MCP shell. Only these
// interfaces cross the boundary; consumers never reach into the core.
package driving
