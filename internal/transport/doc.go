// Package transport owns the framed byte channel between two local
// processes.
//
// Ownership boundary:
// - unix stream socket setup (dial, listen-side adoption, socketpair)
// - length-prefixed frame boundaries over the byte stream
// - SCM_RIGHTS descriptor attachment, associated with the frame that
//   carried it
package transport
