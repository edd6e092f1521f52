// Package ir holds the leaf value model shared by plan documents.
//
// It defines the sealed literal value types used inside expressions, the
// RFC 8785 canonical JSON encoding used for content addressing, and the
// domain-separated hashes derived from it.
//
// ir imports nothing internal. Every other internal package may import it.
//
// Key constraints:
//   - no float literals: doubles travel as strings with an explicit cast
//   - canonical JSON rejects null and floats so hashes stay stable
//   - all JSON tags use snake_case
package ir
