package portalreq

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/portal/internal/endpoint"
	"github.com/danmuck/portal/internal/ipc"
	"github.com/danmuck/portal/internal/lifecycle"
)

// The full daemon path: server listening on the session-directory
// socket, client resolving the same path and dialing it.
func TestGetHeadersOverSessionSocket(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	const sid = "test-session"

	if _, err := lifecycle.EnsurePortalDirectory(sid); err != nil {
		t.Fatalf("ensure portal directory: %v", err)
	}
	server, err := ipc.Listen(ipc.ServerConfig{
		SocketPath: lifecycle.SocketPath(sid, "request"),
		Endpoint:   Endpoint(),
		Logger:     zerolog.Nop(),
		NewStub: func(conn *ipc.Connection, _ uint64) endpoint.Stub {
			return NewStub(NewMemoryService(zerolog.Nop()), conn)
		},
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	client, err := Dial(context.Background(), lifecycle.SocketPath(sid, "request"), ClientOptions{
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("dial portal socket: %v", err)
	}
	defer client.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()

	id := mustStart(t, client, &StartRequest{
		Method:  "GET",
		URL:     "https://example.com/session",
		Headers: []Header{{Name: "X-Session", Value: sid}},
	})
	resp, err := client.GetHeaders(callCtx, id)
	if err != nil {
		t.Fatalf("get headers: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("status = %d", resp.Status)
	}
	found := false
	for _, h := range resp.Headers {
		if h.Name == "X-Session" && h.Value == sid {
			found = true
		}
	}
	if !found {
		t.Fatalf("session header not echoed: %+v", resp.Headers)
	}
}
