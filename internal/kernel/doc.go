// Package kernel turns per-element update statements into executable code
// objects.
//
// Compile lowers a statement sequence, checked against a schema, into a
// Program: a register program split into a prologue (run once per Execute)
// and a body (run once per block of BlockSize elements). During lowering:
//
//   - literal sub-expressions are folded
//   - identities such as x*0, x*1, x+0, x-0, x/1, 0/x and --x are simplified
//   - sub-expressions over literals and constant variables are hoisted into
//     the prologue as scalar registers
//   - repeated sub-expressions share one register
//
// Link binds every instruction to a typed loop or a support-library
// function, producing a CodeObject. A Program is plain JSON so that it can
// be stored as an artifact and linked again in a later process; a linked
// CodeObject is immutable and safe for concurrent use.
//
// Execution contract:
//   - the address map must be fresh (STALE_ADDRESS_MAP otherwise)
//   - every schema name must be present with matching type and constness
//   - the loop bound must not exceed the shortest buffer in the schema
//
// Loads convert from the element type to float64; all arithmetic is float64;
// stores convert back (integers truncate toward zero, bool is x != 0).
package kernel
