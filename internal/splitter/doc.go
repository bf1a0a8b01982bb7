// Package splitter implements the two-phase content splitter: semantic
// splitters produce structure-aligned pieces per content type, and the
// greedy optimizer merges adjacent pieces toward the preferred chunk size
// without crossing major section boundaries or the hard size ceiling.
package splitter
