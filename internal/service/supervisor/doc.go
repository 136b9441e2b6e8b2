// Package supervisor drives deployment cycles: it builds the Application
// state from the metadata record and a fresh version query, runs the
// pipeline and persists the outcome. Cycles never overlap, neither inside
// one process nor across processes sharing the same root directory.
package supervisor
