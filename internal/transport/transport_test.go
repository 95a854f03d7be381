package transport

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/omnish-sh/omnish/internal/wire"
)

func startTestServer(t *testing.T, token string, handler HandlerFunc) string {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "omnish.sock")
	ln, err := ListenUnix(sockPath)
	if err != nil {
		t.Fatalf("ListenUnix: %v", err)
	}
	srv := NewServer(ln, token, handler)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(cancel)
	return sockPath
}

func TestAuthHandshakeSuccessThenCall(t *testing.T) {
	sockPath := startTestServer(t, "secret", func(m wire.Message) wire.Message {
		req, ok := m.(wire.Request)
		if !ok {
			return nil
		}
		return wire.Response{RequestID: req.RequestID, Content: "ok:" + req.Query, IsFinal: true}
	})

	c, err := Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := c.Call(ctx, wire.Auth{Token: "secret"})
	if err != nil {
		t.Fatalf("Auth call: %v", err)
	}
	if _, ok := reply.(wire.Ack); !ok {
		t.Fatalf("expected Ack, got %T", reply)
	}

	reply, err = c.Call(ctx, wire.Request{RequestID: "r1", Query: "hello"})
	if err != nil {
		t.Fatalf("Request call: %v", err)
	}
	resp, ok := reply.(wire.Response)
	if !ok || resp.Content != "ok:hello" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestAuthHandshakeWrongTokenRejected(t *testing.T) {
	sockPath := startTestServer(t, "secret", func(m wire.Message) wire.Message { return nil })

	c, err := Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := c.Call(ctx, wire.Auth{Token: "wrong"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if _, ok := reply.(wire.AuthFailed); !ok {
		t.Fatalf("expected AuthFailed, got %T", reply)
	}
}

func TestNonAuthFirstFrameRejected(t *testing.T) {
	sockPath := startTestServer(t, "secret", func(m wire.Message) wire.Message { return nil })

	c, err := Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := c.Call(ctx, wire.Request{RequestID: "r1", Query: "x"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if _, ok := reply.(wire.AuthFailed); !ok {
		t.Fatalf("expected AuthFailed for non-Auth first frame, got %T", reply)
	}
}

func TestHandlerPanicDoesNotKillConnection(t *testing.T) {
	sockPath := startTestServer(t, "secret", func(m wire.Message) wire.Message {
		if _, ok := m.(wire.Request); ok {
			panic("boom")
		}
		return wire.Ack{}
	})

	c, err := Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.Call(ctx, wire.Auth{Token: "secret"}); err != nil {
		t.Fatalf("auth: %v", err)
	}

	// The panicking handler never replies, so this call should time out
	// rather than the connection dying outright.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer shortCancel()
	if _, err := c.Call(shortCtx, wire.Request{RequestID: "r1", Query: "x"}); err == nil {
		t.Fatal("expected timeout error for panicking handler")
	}

	// The connection itself must still be usable afterwards.
	reply, err := c.Call(ctx, wire.Event{SessionID: "s1", Kind: "ping"})
	if err != nil {
		t.Fatalf("call after panic: %v", err)
	}
	if _, ok := reply.(wire.Request); ok {
		t.Fatalf("unexpected echo")
	}
}

func TestConnectWithReconnectInitialDial(t *testing.T) {
	sockPath := startTestServer(t, "secret", func(m wire.Message) wire.Message { return wire.Ack{} })

	var reconnectCount int
	rc, err := ConnectWithReconnect("unix", sockPath, func(c *Client) error {
		reconnectCount++
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := c.Call(ctx, wire.Auth{Token: "secret"})
		return err
	})
	if err != nil {
		t.Fatalf("ConnectWithReconnect: %v", err)
	}
	defer rc.Close()

	if reconnectCount != 1 {
		t.Fatalf("onReconnect called %d times, want 1", reconnectCount)
	}
	if !rc.Connected() {
		t.Fatal("expected Connected() true after initial dial")
	}
}
