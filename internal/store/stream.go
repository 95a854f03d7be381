// Package store implements the on-disk layout for a session: an append-only
// binary stream log with random-range reads, JSON session metadata, and a
// JSON command index. Grounded on the teacher's replay buffer
// (internal/egg/server.go) for the append-only-log-with-position precedent.
package store

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/omnish-sh/omnish/internal/omnerr"
)

// StreamEntry is one timestamped, directional chunk of I/O as persisted in
// stream.bin: {timestamp_ms u64 BE, direction u8, length u32 BE, data}.
type StreamEntry struct {
	TimestampMs uint64
	Direction   uint8 // 0=input, 1=output
	Data        []byte
}

const (
	DirectionInput  uint8 = 0
	DirectionOutput uint8 = 1
)

func (e StreamEntry) encodedLen() int { return 8 + 1 + 4 + len(e.Data) }

func (e StreamEntry) encode() []byte {
	b := make([]byte, e.encodedLen())
	binary.BigEndian.PutUint64(b[0:8], e.TimestampMs)
	b[8] = e.Direction
	binary.BigEndian.PutUint32(b[9:13], uint32(len(e.Data)))
	copy(b[13:], e.Data)
	return b
}

// StreamWriter appends StreamEntry records to a session's stream.bin and
// tracks the file's current write position.
type StreamWriter struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	pos  int64
}

// CreateStreamWriter opens path for append, creating it if necessary, and
// positions the writer at the file's current end.
func CreateStreamWriter(path string) (*StreamWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, omnerr.New("store.CreateStreamWriter", omnerr.StoreIo, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, omnerr.New("store.CreateStreamWriter", omnerr.StoreIo, err)
	}
	return &StreamWriter{f: f, w: bufio.NewWriter(f), pos: info.Size()}, nil
}

// WriteEntry serializes one StreamEntry, flushes it, and returns the offset
// at which it was written (i.e. position() before the write).
func (sw *StreamWriter) WriteEntry(ts uint64, direction uint8, data []byte) (posBefore int64, err error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	entry := StreamEntry{TimestampMs: ts, Direction: direction, Data: data}
	posBefore = sw.pos
	n, err := sw.w.Write(entry.encode())
	if err != nil {
		return posBefore, omnerr.New("store.WriteEntry", omnerr.StoreIo, err)
	}
	if err := sw.w.Flush(); err != nil {
		return posBefore, omnerr.New("store.WriteEntry", omnerr.StoreIo, err)
	}
	sw.pos += int64(n)
	return posBefore, nil
}

// Position returns the offset the next WriteEntry call will start at.
func (sw *StreamWriter) Position() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.pos
}

// Close flushes and closes the underlying file.
func (sw *StreamWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if err := sw.w.Flush(); err != nil {
		return omnerr.New("store.Close", omnerr.StoreIo, err)
	}
	return sw.f.Close()
}

// ReadRange seeks to offset in path and parses as many complete StreamEntry
// records as fit within length bytes; a trailing partial entry at the end
// of the requested range is ignored rather than erroring.
func ReadRange(path string, offset, length int64) ([]StreamEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, omnerr.New("store.ReadRange", omnerr.StoreIo, err)
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, omnerr.New("store.ReadRange", omnerr.StoreIo, err)
	}
	buf := make([]byte, length)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, omnerr.New("store.ReadRange", omnerr.StoreIo, err)
	}
	buf = buf[:n]

	var entries []StreamEntry
	off := 0
	for off+13 <= len(buf) {
		ts := binary.BigEndian.Uint64(buf[off : off+8])
		dir := buf[off+8]
		dataLen := int(binary.BigEndian.Uint32(buf[off+9 : off+13]))
		if off+13+dataLen > len(buf) {
			break // trailing partial entry — ignored
		}
		data := make([]byte, dataLen)
		copy(data, buf[off+13:off+13+dataLen])
		entries = append(entries, StreamEntry{TimestampMs: ts, Direction: dir, Data: data})
		off += 13 + dataLen
	}
	return entries, nil
}
