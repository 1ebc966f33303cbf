// Package ir provides the foundational types for stepc: element types,
// variable schemas, the abstract statement AST consumed by the kernel
// compiler, and the content-addressed fingerprint used as a cache key.
//
// This package imports nothing internal. Every other internal package
// imports ir; ir is the bottom layer so there are no cycles.
//
// Key design constraints:
//   - Fingerprints are computed over canonical JSON only (RFC 8785 key order,
//     NFC strings). Float literals are hex-float strings so the encoding is exact.
//   - Schemas are hashed sorted by name; statements are hashed in order.
//   - All structured errors are *Error values carrying an ErrorCode.
package ir
