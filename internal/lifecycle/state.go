package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sys/unix"
)

var ErrNotRunning = errors.New("lifecycle: daemon not running")

// State is what a daemon records about itself for other processes.
type State struct {
	PID        int       `cbor:"pid"`
	SessionID  string    `cbor:"session_id"`
	Service    string    `cbor:"service"`
	SocketPath string    `cbor:"socket_path"`
	StartedAt  time.Time `cbor:"started_at"`
}

func statePath(sid, service string) string {
	return filepath.Join(SessionDirectory(sid), service+".state")
}

func pidPath(sid, service string) string {
	return filepath.Join(SessionDirectory(sid), service+".pid")
}

// WriteState records the daemon's state and pid files. Both are
// written to a temporary name first so readers never observe a partial
// file.
func WriteState(st State) error {
	dir := SessionDirectory(st.SessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("lifecycle: create session directory: %w", err)
	}

	raw, err := cbor.Marshal(st)
	if err != nil {
		return fmt.Errorf("lifecycle: encode state: %w", err)
	}
	if err := writeAtomic(statePath(st.SessionID, st.Service), raw); err != nil {
		return err
	}
	return writeAtomic(pidPath(st.SessionID, st.Service), []byte(strconv.Itoa(st.PID)))
}

// ReadState loads the recorded state for a service in a session.
// Returns ErrNotRunning when no state file exists or its process is
// gone.
func ReadState(sid, service string) (State, error) {
	raw, err := os.ReadFile(statePath(sid, service))
	if errors.Is(err, os.ErrNotExist) {
		return State{}, ErrNotRunning
	}
	if err != nil {
		return State{}, fmt.Errorf("lifecycle: read state: %w", err)
	}

	var st State
	if err := cbor.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("lifecycle: decode state: %w", err)
	}
	if !Alive(st.PID) {
		return st, ErrNotRunning
	}
	return st, nil
}

// RemoveState deletes the state and pid files, ignoring missing ones.
func RemoveState(sid, service string) {
	os.Remove(statePath(sid, service))
	os.Remove(pidPath(sid, service))
}

// Alive reports whether pid names a live process we can signal.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("lifecycle: write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("lifecycle: commit %s: %w", filepath.Base(path), err)
	}
	return nil
}
