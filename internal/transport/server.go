package transport

import (
	"bufio"
	"context"
	"crypto/subtle"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/omnish-sh/omnish/internal/logger"
	"github.com/omnish-sh/omnish/internal/omnerr"
	"github.com/omnish-sh/omnish/internal/wire"
)

// HandlerFunc dispatches one decoded Message to a reply Message. It must
// never panic out — the server recovers and logs, dropping the reply.
type HandlerFunc func(wire.Message) wire.Message

const defaultAuthTimeout = 5 * time.Second

// ListenUnix binds a Unix-domain socket at path, removing any stale socket
// file first, and restricts its permissions to the owning user.
func ListenUnix(path string) (net.Listener, error) {
	os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, omnerr.New("transport.ListenUnix", omnerr.TransportConnect, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, omnerr.New("transport.ListenUnix", omnerr.TransportConnect, err)
	}
	return ln, nil
}

// ListenTCP binds a TCP listener at addr, wrapping it in tlsConfig if
// non-nil so every accepted connection is TLS-terminated before any frame
// is read.
func ListenTCP(addr string, tlsConfig *tls.Config) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, omnerr.New("transport.ListenTCP", omnerr.TransportConnect, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}
	return ln, nil
}

// Server accepts connections, verifies the peer UID on Unix sockets, runs
// the Auth handshake, and dispatches authenticated frames to a handler.
type Server struct {
	ln           net.Listener
	token        string
	handler      HandlerFunc
	checkPeerUID bool
	myUID        uint32
	authTimeout  time.Duration
}

// NewServer wraps ln with the given shared auth token and message handler.
// Peer-UID verification is enabled automatically when ln is a Unix-domain
// listener.
func NewServer(ln net.Listener, token string, handler HandlerFunc) *Server {
	_, isUnix := ln.(*net.UnixListener)
	s := &Server{
		ln:          ln,
		token:       token,
		handler:     handler,
		authTimeout: defaultAuthTimeout,
	}
	if isUnix {
		s.checkPeerUID = true
		s.myUID = uint32(os.Geteuid())
	}
	return s
}

// Serve accepts connections until ctx is canceled or the listener errors.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return omnerr.New("transport.Serve", omnerr.TransportConnect, err)
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	if s.checkPeerUID {
		uid, err := peerUID(conn)
		if err != nil || uid != s.myUID {
			logger.Warn("rejected connection: peer uid check failed", "err", err, "uid", uid)
			return
		}
	}

	reader := bufio.NewReader(conn)
	writer := newConnWriter(conn)

	conn.SetReadDeadline(time.Now().Add(s.authTimeout))
	frame, err := wire.ReadFrame(reader)
	if err != nil {
		return
	}
	msg, err := wire.DecodeMessage(frame.Payload)
	if err != nil {
		return
	}
	auth, ok := msg.(wire.Auth)
	if !ok {
		_ = encodeAndWrite(writer, frame.RequestID, wire.AuthFailed{})
		return
	}
	if !constantTimeEqual(auth.Token, s.token) {
		_ = encodeAndWrite(writer, frame.RequestID, wire.AuthFailed{})
		return
	}
	conn.SetReadDeadline(time.Time{})
	if err := encodeAndWrite(writer, frame.RequestID, wire.Ack{}); err != nil {
		return
	}

	for {
		frame, err := wire.ReadFrame(reader)
		if err != nil {
			return
		}
		msg, err := wire.DecodeMessage(frame.Payload)
		if err != nil {
			logger.Warn("dropping undecodable frame", "err", err)
			continue
		}
		go s.dispatch(writer, frame.RequestID, msg)
	}
}

func (s *Server) dispatch(writer *connWriter, requestID uint64, msg wire.Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic recovered", "panic", fmt.Sprint(r))
		}
	}()
	reply := s.handler(msg)
	if reply == nil {
		return
	}
	if err := encodeAndWrite(writer, requestID, reply); err != nil {
		logger.Warn("failed writing reply frame", "err", err)
	}
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
