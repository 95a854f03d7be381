package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omnish-sh/omnish/internal/logger"
	"github.com/omnish-sh/omnish/internal/omnerr"
	"github.com/omnish-sh/omnish/internal/wire"
)

// Client is a single connected session over the framed wire format: one
// background read loop fulfills an in-memory map of pending calls keyed by
// request id.
type Client struct {
	conn   net.Conn
	writer *connWriter
	reader *bufio.Reader

	nextID uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan wire.Message

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens a plain (non-reconnecting) connection to addr over network
// ("unix" or "tcp") and starts its read loop.
func Dial(network, addr string) (*Client, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, omnerr.New("transport.Dial", omnerr.TransportConnect, err)
	}
	return newClient(conn), nil
}

// DialTLS opens a TLS-terminated TCP connection, the counterpart to a
// ListenTCP server bound with a non-nil tls.Config.
func DialTLS(addr string, tlsConfig *tls.Config) (*Client, error) {
	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return nil, omnerr.New("transport.DialTLS", omnerr.TransportConnect, err)
	}
	return newClient(conn), nil
}

func newClient(conn net.Conn) *Client {
	c := &Client{
		conn:    conn,
		writer:  newConnWriter(conn),
		reader:  bufio.NewReader(conn),
		pending: make(map[uint64]chan wire.Message),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Call sends msg as a new request and blocks until the matching reply frame
// arrives, ctx is done, or the connection closes.
func (c *Client) Call(ctx context.Context, msg wire.Message) (wire.Message, error) {
	id := atomic.AddUint64(&c.nextID, 1)
	slot := make(chan wire.Message, 1)

	c.pendingMu.Lock()
	c.pending[id] = slot
	c.pendingMu.Unlock()

	if err := encodeAndWrite(c.writer, id, msg); err != nil {
		c.removePending(id)
		return nil, omnerr.New("transport.Call", omnerr.TransportConnect, err)
	}

	select {
	case reply := <-slot:
		return reply, nil
	case <-ctx.Done():
		c.removePending(id)
		return nil, omnerr.New("transport.Call", omnerr.TransportConnect, ctx.Err())
	case <-c.closed:
		c.removePending(id)
		return nil, omnerr.New("transport.Call", omnerr.TransportConnect, errNotConnected)
	}
}

func (c *Client) removePending(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		frame, err := wire.ReadFrame(c.reader)
		if err != nil {
			return
		}
		msg, err := wire.DecodeMessage(frame.Payload)
		if err != nil {
			logger.Warn("client dropping undecodable frame", "err", err)
			continue
		}
		c.pendingMu.Lock()
		slot, ok := c.pending[frame.RequestID]
		if ok {
			delete(c.pending, frame.RequestID)
		}
		c.pendingMu.Unlock()
		if ok {
			slot <- msg
		}
		// Stray ids (no matching pending call) are dropped.
	}
}

// Closed reports a channel closed when the underlying connection has
// stopped (read loop exited or Close was called).
func (c *Client) Closed() <-chan struct{} { return c.closed }

// Close terminates the connection and fails every pending call.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		close(c.closed)
	})
	return err
}

// backoffSchedule yields 1s, 2s, 4s, ... capped at 30s, indefinitely.
func backoffSchedule() func() time.Duration {
	delay := time.Second
	return func() time.Duration {
		d := delay
		delay *= 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		return d
	}
}

// ReconnectingClient wraps Client with an automatic reconnect watchdog.
// Calls made while disconnected fail immediately; buffering belongs to the
// caller (see the client runtime's outbound message queue).
type ReconnectingClient struct {
	dial        func() (*Client, error)
	onReconnect func(*Client) error

	mu        sync.RWMutex
	inner     *Client
	connected bool

	stop chan struct{}
}

// ConnectWithReconnect dials addr over network ("unix" or "tcp") and, on any
// future disconnect, keeps retrying with exponential backoff (1s up to 30s)
// until it reconnects, invoking onReconnect with the fresh Client before
// marking itself connected again.
func ConnectWithReconnect(network, addr string, onReconnect func(*Client) error) (*ReconnectingClient, error) {
	return connectWithReconnect(func() (*Client, error) { return Dial(network, addr) }, onReconnect)
}

// ConnectWithReconnectTLS is the TLS-dialing counterpart of
// ConnectWithReconnect, used when the daemon socket is a TCP+TLS endpoint.
func ConnectWithReconnectTLS(addr string, tlsConfig *tls.Config, onReconnect func(*Client) error) (*ReconnectingClient, error) {
	return connectWithReconnect(func() (*Client, error) { return DialTLS(addr, tlsConfig) }, onReconnect)
}

func connectWithReconnect(dial func() (*Client, error), onReconnect func(*Client) error) (*ReconnectingClient, error) {
	rc := &ReconnectingClient{dial: dial, onReconnect: onReconnect, stop: make(chan struct{})}
	if err := rc.dialAndHandshake(); err != nil {
		return nil, err
	}
	go rc.watch()
	return rc, nil
}

func (rc *ReconnectingClient) dialAndHandshake() error {
	c, err := rc.dial()
	if err != nil {
		return err
	}
	if rc.onReconnect != nil {
		if err := rc.onReconnect(c); err != nil {
			c.Close()
			return err
		}
	}
	rc.mu.Lock()
	rc.inner = c
	rc.connected = true
	rc.mu.Unlock()
	return nil
}

func (rc *ReconnectingClient) watch() {
	for {
		rc.mu.RLock()
		inner := rc.inner
		rc.mu.RUnlock()
		if inner == nil {
			return
		}
		select {
		case <-inner.Closed():
		case <-rc.stop:
			return
		}

		rc.mu.Lock()
		rc.connected = false
		rc.mu.Unlock()

		next := backoffSchedule()
		for {
			select {
			case <-rc.stop:
				return
			case <-time.After(next()):
			}
			if err := rc.dialAndHandshake(); err == nil {
				break
			}
			logger.Warn("reconnect attempt failed")
		}
	}
}

// Call proxies to the current inner Client, failing immediately with
// errNotConnected if currently disconnected.
func (rc *ReconnectingClient) Call(ctx context.Context, msg wire.Message) (wire.Message, error) {
	rc.mu.RLock()
	inner, connected := rc.inner, rc.connected
	rc.mu.RUnlock()
	if !connected || inner == nil {
		return nil, omnerr.New("transport.Call", omnerr.TransportConnect, errNotConnected)
	}
	return inner.Call(ctx, msg)
}

// Connected reports whether the reconnecting client currently believes it
// has a live connection.
func (rc *ReconnectingClient) Connected() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.connected
}

// Close stops the reconnect watchdog and closes the current connection.
func (rc *ReconnectingClient) Close() error {
	close(rc.stop)
	rc.mu.RLock()
	inner := rc.inner
	rc.mu.RUnlock()
	if inner == nil {
		return nil
	}
	return inner.Close()
}
