// Package clientrt implements the omnish-client runtime: it forks the
// user's shell behind a pty, mirrors the session to the daemon over a
// reconnecting transport connection, and layers the chat interceptor and
// ghost-completion UX on top of the raw keystroke stream.
package clientrt

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/omnish-sh/omnish/internal/config"
	"github.com/omnish-sh/omnish/internal/daemon"
	"github.com/omnish-sh/omnish/internal/interceptor"
	"github.com/omnish-sh/omnish/internal/logger"
	"github.com/omnish-sh/omnish/internal/outputthrottle"
	"github.com/omnish-sh/omnish/internal/ptyengine"
	"github.com/omnish-sh/omnish/internal/tracker"
	"github.com/omnish-sh/omnish/internal/transport"
	"github.com/omnish-sh/omnish/internal/wire"
)

const requestTimeout = 30 * time.Second

// Runtime is one running omnish-client process.
type Runtime struct {
	cfg *config.Config

	pty    *ptyengine.Pty
	raw    *ptyengine.RawModeGuard
	rc     *transport.ReconnectingClient
	tr     *tracker.Tracker
	ic     *interceptor.Interceptor
	thr    *outputthrottle.Bucket
	outbox *Outbox
	comp   *CompletionState

	sessionID       string
	parentSessionID string
	token           string

	stdinFd      int
	outputOffset int64
}

// Run spawns the shell and blocks until it exits, returning the exit code
// that should be propagated to the OS.
func Run(cfg *config.Config) (int, error) {
	rt, err := newRuntime(cfg)
	if err != nil {
		return 1, err
	}
	defer rt.cleanup()
	return rt.mainLoop()
}

func newRuntime(cfg *config.Config) (*Runtime, error) {
	sessionID := shortSessionID()
	parent := os.Getenv("OMNISH_SESSION_ID")
	os.Setenv("OMNISH_SESSION_ID", sessionID)

	stdinFd := int(os.Stdin.Fd())
	cols, rows := ptyengine.TerminalSize(stdinFd)

	pty, err := ptyengine.Spawn(cfg.Shell.Command, nil, os.Environ(), cols, rows)
	if err != nil {
		return nil, err
	}

	raw, err := ptyengine.EnterRawMode(stdinFd)
	if err != nil {
		pty.Wait()
		return nil, err
	}

	cwd, _ := os.Getwd()

	rt := &Runtime{
		cfg:             cfg,
		pty:             pty,
		raw:             raw,
		tr:              tracker.New(sessionID, cwd),
		ic:              interceptor.New(cfg.Shell.CommandPrefix),
		thr:             outputthrottle.New(),
		outbox:          NewOutbox(0),
		comp:            NewCompletionState(),
		sessionID:       sessionID,
		parentSessionID: parent,
		stdinFd:         stdinFd,
	}

	tokenPath, err := config.AuthTokenPath()
	if err != nil {
		raw.Restore()
		pty.Wait()
		return nil, err
	}
	token, err := daemon.LoadOrCreateToken(tokenPath)
	if err != nil {
		raw.Restore()
		pty.Wait()
		return nil, err
	}
	rt.token = token

	rc, err := dialReconnecting(cfg, rt.onReconnect)
	if err != nil {
		raw.Restore()
		pty.Wait()
		return nil, err
	}
	rt.rc = rc

	ptyengine.WatchResize(pty, stdinFd, nil)

	return rt, nil
}

// dialReconnecting picks Unix-domain vs TCP+TLS dialing based on whether
// the configured socket path parses as a host:port address, mirroring the
// daemon's own bind-side decision.
func dialReconnecting(cfg *config.Config, onReconnect func(*transport.Client) error) (*transport.ReconnectingClient, error) {
	addr := cfg.Daemon.SocketPath
	if daemon.LooksLikeTCPAddr(addr) {
		// The daemon's cert is self-signed and never distributed to a CA
		// trust store, so the client can only verify it knows *a* cert was
		// presented, not which one; localhost-only deployments accept that.
		clientTLSConfig := &tls.Config{InsecureSkipVerify: true}
		return transport.ConnectWithReconnectTLS(addr, clientTLSConfig, onReconnect)
	}
	return transport.ConnectWithReconnect("unix", addr, onReconnect)
}

// onReconnect is the transport's on_reconnect callback: Auth, then
// SessionStart, then replay of anything buffered while disconnected.
func (rt *Runtime) onReconnect(c *transport.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if _, err := c.Call(ctx, wire.Auth{Token: rt.token}); err != nil {
		return err
	}

	attrs := hostAttrs(rt.cfg.Shell.Command, ttyName(rt.stdinFd))
	start := wire.SessionStart{
		SessionID:       rt.sessionID,
		ParentSessionID: rt.parentSessionID,
		TimestampMs:     nowMs(),
		Attrs:           attrs,
	}
	if _, err := c.Call(ctx, start); err != nil {
		return err
	}

	for _, m := range rt.outbox.Drain() {
		if _, err := c.Call(ctx, m); err != nil {
			logger.Warn("failed to replay buffered message on reconnect", "err", err)
		}
	}
	return nil
}

// send delivers m to the daemon if connected, otherwise buffers it in the
// Outbox for replay after the next reconnect.
func (rt *Runtime) send(m wire.Message) {
	if !rt.rc.Connected() {
		rt.outbox.Push(m)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if _, err := rt.rc.Call(ctx, m); err != nil {
		rt.outbox.Push(m)
	}
}

func (rt *Runtime) cleanup() {
	rt.raw.Restore()
	rt.rc.Close()
}

func nowMs() uint64 { return uint64(time.Now().UnixMilli()) }

func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func ttyName(fd int) string {
	if f, err := os.Readlink(fmt.Sprintf("/proc/self/fd/%d", fd)); err == nil {
		return f
	}
	return ""
}
