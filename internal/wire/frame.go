// Package wire implements the bit-exact framed envelope and the
// self-describing tagged-union message encoding used by the transport.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTruncated is returned when a byte slice or reader ends before a
// complete frame could be decoded.
var ErrTruncated = errors.New("wire: truncated frame")

// minFrameBody is the request_id width; a frame whose declared length is
// smaller than this can never be valid.
const minFrameBody = 8

// maxFrameLength guards against a corrupt or hostile length field forcing a
// huge allocation.
const maxFrameLength = 64 * 1024 * 1024

// Frame is the on-wire envelope: a length-prefixed, request-id-tagged
// serialized Message payload. Frame is transport-agnostic — it knows
// nothing about sockets, only bytes.
type Frame struct {
	RequestID uint64
	Payload   []byte
}

// Encode serializes f as: length(4, BE, excludes itself) | request_id(8, BE) | payload.
func Encode(f Frame) []byte {
	body := minFrameBody + len(f.Payload)
	buf := make([]byte, 4+body)
	binary.BigEndian.PutUint32(buf[0:4], uint32(body))
	binary.BigEndian.PutUint64(buf[4:12], f.RequestID)
	copy(buf[12:], f.Payload)
	return buf
}

// Decode parses a single frame from the head of b. It does not require b to
// contain exactly one frame's worth of bytes — any trailing bytes beyond the
// frame are simply not consumed — but a b that ends before the declared
// length is fully available yields ErrTruncated.
func Decode(b []byte) (Frame, error) {
	if len(b) < 4 {
		return Frame{}, ErrTruncated
	}
	length := binary.BigEndian.Uint32(b[0:4])
	if length < minFrameBody {
		return Frame{}, fmt.Errorf("wire: invalid frame length %d", length)
	}
	if length > maxFrameLength {
		return Frame{}, fmt.Errorf("wire: frame length %d exceeds max %d", length, maxFrameLength)
	}
	if len(b) < 4+int(length) {
		return Frame{}, ErrTruncated
	}
	body := b[4 : 4+int(length)]
	requestID := binary.BigEndian.Uint64(body[0:8])
	payload := make([]byte, len(body)-8)
	copy(payload, body[8:])
	return Frame{RequestID: requestID, Payload: payload}, nil
}

// ReadFrame reads exactly one frame from r, blocking until the full frame is
// available. A short read before the declared length is reached reports
// ErrTruncated itself; the underlying io error is not included.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrTruncated
		}
		return Frame{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < minFrameBody {
		return Frame{}, fmt.Errorf("wire: invalid frame length %d", length)
	}
	if length > maxFrameLength {
		return Frame{}, fmt.Errorf("wire: frame length %d exceeds max %d", length, maxFrameLength)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrTruncated
		}
		return Frame{}, err
	}
	requestID := binary.BigEndian.Uint64(body[0:8])
	payload := make([]byte, len(body)-8)
	copy(payload, body[8:])
	return Frame{RequestID: requestID, Payload: payload}, nil
}

// WriteFrame writes f to w in the same format Encode produces.
func WriteFrame(w io.Writer, f Frame) error {
	_, err := w.Write(Encode(f))
	return err
}
