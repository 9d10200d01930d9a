// Package lifecycle knows where a portal daemon lives on disk: the
// per-session directory its sockets go in, the pid file, and the state
// file other processes read to find a running daemon.
package lifecycle
