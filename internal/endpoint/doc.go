// Package endpoint owns the per-service message schema.
//
// Ownership boundary:
// - the opcode table: message names and request/response/async kinds
// - the envelope layout shared by every message on a connection
// - the Stub dispatch contract
//
// An Endpoint is built at configuration time and passed explicitly to
// each Connection and Stub; there is no process-wide registry.
package endpoint
