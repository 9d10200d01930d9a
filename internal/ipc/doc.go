// Package ipc owns connection lifecycle and message dispatch.
//
// Ownership boundary:
// - Connection: one transport, one stub, correlation of synchronous
//   calls with their replies, FIFO dispatch of inbound messages
// - MultiServer: the listening socket, client-id allocation, and the
//   table of live connections
//
// Concurrency contract: each connection has a single dispatch
// goroutine that owns the socket's read side. Stub handlers run on it,
// so dispatch order equals wire order. Callers of Call park on a
// per-call slot while the dispatch goroutine keeps reading, which is
// what lets replies arrive out of order and lets handlers call other
// connections synchronously without livelock. A handler must not call
// synchronously back over its own connection from the dispatch
// goroutine.
package ipc
