package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// SessionEnv names the environment variable carrying the session id.
const SessionEnv = "PORTAL_SESSION"

// SessionID returns the ambient session id, minting a random one when
// the environment does not provide it. A minted id is not exported
// back to the environment; callers that spawn children should pass it
// explicitly.
func SessionID() string {
	if sid := os.Getenv(SessionEnv); sid != "" {
		return sid
	}
	return uuid.NewString()
}

// SessionDirectory is the root for one session's runtime files.
func SessionDirectory(sid string) string {
	return filepath.Join(os.TempDir(), "session", sid)
}

// PortalDirectory holds the session's portal sockets.
func PortalDirectory(sid string) string {
	return filepath.Join(SessionDirectory(sid), "portal")
}

// SocketPath is where the named service listens within a session.
func SocketPath(sid, service string) string {
	return filepath.Join(PortalDirectory(sid), service)
}

// EnsurePortalDirectory creates the portal directory with permissions
// restricting it to the owning user.
func EnsurePortalDirectory(sid string) (string, error) {
	dir := PortalDirectory(sid)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("lifecycle: create portal directory: %w", err)
	}
	return dir, nil
}
