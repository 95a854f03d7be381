// Package transport implements the two roles sharing the framed wire
// format: a peer-verified RPC server and a reconnecting RPC client.
// Grounded on the teacher's HTTP-over-unix-socket server (now replaced) for
// the socket lifecycle idiom, generalized to a message-dispatch model.
package transport

import (
	"bufio"
	"net"
	"sync"

	"github.com/omnish-sh/omnish/internal/wire"
)

// connWriter serializes frame writes to a connection — both the server (for
// replies) and the client (for calls) may write from multiple goroutines.
type connWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func newConnWriter(conn net.Conn) *connWriter {
	return &connWriter{w: bufio.NewWriter(conn)}
}

func (cw *connWriter) writeFrame(f wire.Frame) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if _, err := cw.w.Write(wire.Encode(f)); err != nil {
		return err
	}
	return cw.w.Flush()
}

func encodeAndWrite(cw *connWriter, requestID uint64, msg wire.Message) error {
	payload, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return cw.writeFrame(wire.Frame{RequestID: requestID, Payload: payload})
}
