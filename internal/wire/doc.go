// Package wire owns the binary value encoding for portal messages.
//
// Ownership boundary:
// - primitive and aggregate byte layout
// - length-prefixed, optional, and discriminant-tagged shapes
// - the descriptor side channel consumed in traversal order
package wire
