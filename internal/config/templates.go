package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "daemon":
		return daemonTemplate, nil
	case "client":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const daemonTemplate = `service = "request"
# session_id = ""        # default: $PORTAL_SESSION or a fresh id
# max_frame_bytes = 0    # default: 8 MiB
debug_addr = "localhost:9400"
cors_origins = ["http://localhost:3000"]
`

const clientTemplate = `service = "request"
# session_id = ""        # default: $PORTAL_SESSION
call_timeout_ms = 10000
`
