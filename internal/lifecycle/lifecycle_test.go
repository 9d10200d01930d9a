package lifecycle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSessionIDPrefersEnvironment(t *testing.T) {
	t.Setenv(SessionEnv, "session-from-env")
	if got := SessionID(); got != "session-from-env" {
		t.Fatalf("session id = %q", got)
	}
}

func TestSessionIDMintsWhenUnset(t *testing.T) {
	t.Setenv(SessionEnv, "")
	a := SessionID()
	b := SessionID()
	if a == "" || a == b {
		t.Fatalf("minted ids: %q, %q", a, b)
	}
}

func TestSocketPathLayout(t *testing.T) {
	t.Setenv("TMPDIR", "/custom-tmp")
	got := SocketPath("sid-1", "request")
	want := filepath.Join("/custom-tmp", "session", "sid-1", "portal", "request")
	if got != want {
		t.Fatalf("socket path = %q, want %q", got, want)
	}
}

func TestEnsurePortalDirectoryRestrictsMode(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	dir, err := EnsurePortalDirectory("sid-2")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o700 {
		t.Fatalf("mode = %o, want 700", mode)
	}
}

func TestStateRoundTrip(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	in := State{
		PID:        os.Getpid(),
		SessionID:  "sid-3",
		Service:    "request",
		SocketPath: SocketPath("sid-3", "request"),
		StartedAt:  time.Now().Truncate(time.Second),
	}
	if err := WriteState(in); err != nil {
		t.Fatalf("write state: %v", err)
	}

	out, err := ReadState("sid-3", "request")
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if out.PID != in.PID || out.SocketPath != in.SocketPath || out.Service != in.Service {
		t.Fatalf("state mismatch: got=%+v want=%+v", out, in)
	}

	RemoveState("sid-3", "request")
	if _, err := ReadState("sid-3", "request"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning after removal, got %v", err)
	}
}

func TestReadStateDeadProcessIsNotRunning(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	in := State{
		PID:       1 << 22, // beyond pid_max on any default config
		SessionID: "sid-4",
		Service:   "request",
		StartedAt: time.Now(),
	}
	if err := WriteState(in); err != nil {
		t.Fatalf("write state: %v", err)
	}
	if _, err := ReadState("sid-4", "request"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning for dead pid, got %v", err)
	}
}

func TestAlive(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Fatal("own process reported dead")
	}
	if Alive(0) || Alive(-1) {
		t.Fatal("nonsense pids reported alive")
	}
}
