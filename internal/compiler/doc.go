// Package compiler turns model descriptions into the ir forms the runtime
// consumes.
//
// A model is a CUE package with a top-level model field (variables, code
// objects as Go-syntax assignment statements, schedule, optional clock).
// LoadModel unifies it with the embedded #Model definition, parses every
// statement with go/parser, and validates references.
//
// Compilation of statements into executable code is not done here; see
// package kernel.
package compiler
