package wire

import (
	"encoding/binary"
	"fmt"
)

// Message is the tagged-union payload carried inside a Frame. Each concrete
// type below is a variant; EncodeMessage/DecodeMessage translate between the
// Go value and the self-describing binary form.
type Message interface {
	messageTag() uint8
}

// Variant tags. Stable once assigned — renumbering breaks the wire format.
const (
	tagSessionStart uint8 = iota + 1
	tagSessionEnd
	tagSessionUpdate
	tagIoData
	tagCommandComplete
	tagEvent
	tagRequest
	tagResponse
	tagCompletionRequest
	tagCompletionResponse
	tagAuth
	tagAuthFailed
	tagAck
)

// Scope selects which sessions a Request's context should be assembled from.
type Scope struct {
	Kind     ScopeKind
	Sessions []string // populated only when Kind == ScopeSessions
}

type ScopeKind uint8

const (
	ScopeCurrentSession ScopeKind = iota
	ScopeAllSessions
	ScopeSessions
)

type CommandRecord struct {
	CommandID     string
	SessionID     string
	CommandLine   string // empty means absent
	Cwd           string // empty means absent
	StartedAtMs   uint64
	EndedAtMs     uint64
	HasEndedAt    bool
	OutputSummary string
	StreamOffset  uint64
	StreamLength  uint64
	ExitCode      int32
	HasExitCode   bool
}

type SessionStart struct {
	SessionID       string
	ParentSessionID string // empty means absent
	TimestampMs     uint64
	Attrs           map[string]string
}

type SessionEnd struct {
	SessionID   string
	TimestampMs uint64
	ExitCode    int32
	HasExitCode bool
}

type SessionUpdate struct {
	SessionID   string
	TimestampMs uint64
	Attrs       map[string]string
}

// Direction values for IoData.
const (
	DirectionInput  uint8 = 0
	DirectionOutput uint8 = 1
)

type IoData struct {
	SessionID   string
	Direction   uint8
	TimestampMs uint64
	Data        []byte
}

type CommandComplete struct {
	SessionID string
	Record    CommandRecord
}

// Event carries an out-of-band notification not otherwise modeled. The wire
// layer does not interpret Kind/Data; the daemon logs the event's kind and
// replies Ack.
type Event struct {
	SessionID   string
	TimestampMs uint64
	Kind        string
	Data        string
}

type Request struct {
	RequestID string
	SessionID string
	Query     string
	Scope     Scope
}

type Response struct {
	RequestID   string
	Content     string
	IsStreaming bool
	IsFinal     bool
}

type CompletionRequest struct {
	SessionID  string
	Input      string
	CursorPos  uint32
	SequenceID uint64
}

type Suggestion struct {
	Text       string
	Confidence float64
}

type CompletionResponse struct {
	SequenceID  uint64
	Suggestions []Suggestion
}

type Auth struct {
	Token string
}

type AuthFailed struct{}
type Ack struct{}

func (SessionStart) messageTag() uint8       { return tagSessionStart }
func (SessionEnd) messageTag() uint8         { return tagSessionEnd }
func (SessionUpdate) messageTag() uint8      { return tagSessionUpdate }
func (IoData) messageTag() uint8             { return tagIoData }
func (CommandComplete) messageTag() uint8    { return tagCommandComplete }
func (Event) messageTag() uint8              { return tagEvent }
func (Request) messageTag() uint8            { return tagRequest }
func (Response) messageTag() uint8           { return tagResponse }
func (CompletionRequest) messageTag() uint8  { return tagCompletionRequest }
func (CompletionResponse) messageTag() uint8 { return tagCompletionResponse }
func (Auth) messageTag() uint8               { return tagAuth }
func (AuthFailed) messageTag() uint8         { return tagAuthFailed }
func (Ack) messageTag() uint8                { return tagAck }

// field wire types.
const (
	wtUint64 uint8 = iota + 1
	wtInt64
	wtString
	wtBytes
	wtBool
	wtStringMap
)

// fieldEncoder accumulates (id, type, bytes) triples for one message and
// renders them into the self-describing field list.
type fieldEncoder struct {
	fields []encField
}

type encField struct {
	id uint8
	wt uint8
	b  []byte
}

func (e *fieldEncoder) putUint64(id uint8, v uint64) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	e.fields = append(e.fields, encField{id, wtUint64, b})
}

func (e *fieldEncoder) putInt64(id uint8, v int64) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	e.fields = append(e.fields, encField{id, wtInt64, b})
}

func (e *fieldEncoder) putString(id uint8, v string) {
	if v == "" {
		return
	}
	e.fields = append(e.fields, encField{id, wtString, []byte(v)})
}

func (e *fieldEncoder) putBytes(id uint8, v []byte) {
	if len(v) == 0 {
		return
	}
	e.fields = append(e.fields, encField{id, wtBytes, v})
}

func (e *fieldEncoder) putBool(id uint8, v bool) {
	if !v {
		return
	}
	e.fields = append(e.fields, encField{id, wtBool, []byte{1}})
}

func (e *fieldEncoder) putStringMap(id uint8, m map[string]string) {
	if len(m) == 0 {
		return
	}
	var b []byte
	count := make([]byte, 4)
	binary.BigEndian.PutUint32(count, uint32(len(m)))
	b = append(b, count...)
	for k, v := range m {
		kl := make([]byte, 4)
		binary.BigEndian.PutUint32(kl, uint32(len(k)))
		b = append(b, kl...)
		b = append(b, k...)
		vl := make([]byte, 4)
		binary.BigEndian.PutUint32(vl, uint32(len(v)))
		b = append(b, vl...)
		b = append(b, v...)
	}
	e.fields = append(e.fields, encField{id, wtStringMap, b})
}

func (e *fieldEncoder) render(tag uint8) []byte {
	out := []byte{tag}
	count := make([]byte, 2)
	binary.BigEndian.PutUint16(count, uint16(len(e.fields)))
	out = append(out, count...)
	for _, f := range e.fields {
		out = append(out, f.id, f.wt)
		l := make([]byte, 4)
		binary.BigEndian.PutUint32(l, uint32(len(f.b)))
		out = append(out, l...)
		out = append(out, f.b...)
	}
	return out
}

// fieldDecoder holds the raw fields pulled off the wire, keyed by field id
// for lookup.
type fieldDecoder struct {
	byID map[uint8]encField
}

func decodeFields(payload []byte) (tag uint8, fd fieldDecoder, err error) {
	if len(payload) < 3 {
		return 0, fieldDecoder{}, fmt.Errorf("wire: message payload too short")
	}
	tag = payload[0]
	count := binary.BigEndian.Uint16(payload[1:3])
	off := 3
	byID := make(map[uint8]encField, count)
	for i := 0; i < int(count); i++ {
		if off+6 > len(payload) {
			return 0, fieldDecoder{}, fmt.Errorf("wire: truncated field header")
		}
		id := payload[off]
		wt := payload[off+1]
		length := binary.BigEndian.Uint32(payload[off+2 : off+6])
		off += 6
		if off+int(length) > len(payload) {
			return 0, fieldDecoder{}, fmt.Errorf("wire: truncated field data")
		}
		byID[id] = encField{id: id, wt: wt, b: payload[off : off+int(length)]}
		off += int(length)
	}
	return tag, fieldDecoder{byID: byID}, nil
}

func (fd fieldDecoder) getUint64(id uint8) uint64 {
	f, ok := fd.byID[id]
	if !ok || len(f.b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(f.b)
}

func (fd fieldDecoder) getInt64(id uint8) (int64, bool) {
	f, ok := fd.byID[id]
	if !ok || len(f.b) < 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(f.b)), true
}

func (fd fieldDecoder) getString(id uint8) string {
	f, ok := fd.byID[id]
	if !ok {
		return ""
	}
	return string(f.b)
}

func (fd fieldDecoder) getBytes(id uint8) []byte {
	f, ok := fd.byID[id]
	if !ok {
		return nil
	}
	out := make([]byte, len(f.b))
	copy(out, f.b)
	return out
}

func (fd fieldDecoder) getBool(id uint8) bool {
	f, ok := fd.byID[id]
	return ok && len(f.b) >= 1 && f.b[0] != 0
}

func (fd fieldDecoder) getStringMap(id uint8) map[string]string {
	f, ok := fd.byID[id]
	if !ok || len(f.b) < 4 {
		return map[string]string{}
	}
	b := f.b
	count := binary.BigEndian.Uint32(b[0:4])
	off := 4
	m := make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(b) {
			break
		}
		kl := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if off+kl > len(b) {
			break
		}
		k := string(b[off : off+kl])
		off += kl
		if off+4 > len(b) {
			break
		}
		vl := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if off+vl > len(b) {
			break
		}
		v := string(b[off : off+vl])
		off += vl
		m[k] = v
	}
	return m
}

// field ids, scoped per-variant (ids are reused across variants — the tag
// selects the variant, so no global id space is needed).
const (
	fSessionID = iota + 1
	fParentSessionID
	fTimestampMs
	fAttrs
	fExitCode
	fDirection
	fData
	fRecordCommandID
	fRecordCommandLine
	fRecordCwd
	fRecordStartedAt
	fRecordEndedAt
	fRecordHasEndedAt
	fRecordOutputSummary
	fRecordStreamOffset
	fRecordStreamLength
	fRecordExitCode
	fRecordHasExitCode
	fKind
	fRequestID
	fQuery
	fScopeKind
	fScopeSessions
	fContent
	fIsStreaming
	fIsFinal
	fInput
	fCursorPos
	fSequenceID
	fSuggestions
	fToken
	fEventData
	fRecordSessionID
)

// EncodeMessage renders m into the self-describing payload carried by a Frame.
func EncodeMessage(m Message) ([]byte, error) {
	e := &fieldEncoder{}
	switch v := m.(type) {
	case SessionStart:
		e.putString(fSessionID, v.SessionID)
		e.putString(fParentSessionID, v.ParentSessionID)
		e.putUint64(fTimestampMs, v.TimestampMs)
		e.putStringMap(fAttrs, v.Attrs)
	case SessionEnd:
		e.putString(fSessionID, v.SessionID)
		e.putUint64(fTimestampMs, v.TimestampMs)
		if v.HasExitCode {
			e.putInt64(fExitCode, int64(v.ExitCode))
		}
	case SessionUpdate:
		e.putString(fSessionID, v.SessionID)
		e.putUint64(fTimestampMs, v.TimestampMs)
		e.putStringMap(fAttrs, v.Attrs)
	case IoData:
		e.putString(fSessionID, v.SessionID)
		e.putUint64(fDirection, uint64(v.Direction))
		e.putUint64(fTimestampMs, v.TimestampMs)
		e.putBytes(fData, v.Data)
	case CommandComplete:
		e.putString(fSessionID, v.SessionID)
		encodeRecord(e, v.Record)
	case Event:
		e.putString(fSessionID, v.SessionID)
		e.putUint64(fTimestampMs, v.TimestampMs)
		e.putString(fKind, v.Kind)
		e.putString(fEventData, v.Data)
	case Request:
		e.putString(fRequestID, v.RequestID)
		e.putString(fSessionID, v.SessionID)
		e.putString(fQuery, v.Query)
		e.putUint64(fScopeKind, uint64(v.Scope.Kind))
		if v.Scope.Kind == ScopeSessions {
			e.putBytes(fScopeSessions, encodeStringList(v.Scope.Sessions))
		}
	case Response:
		e.putString(fRequestID, v.RequestID)
		e.putString(fContent, v.Content)
		e.putBool(fIsStreaming, v.IsStreaming)
		e.putBool(fIsFinal, v.IsFinal)
	case CompletionRequest:
		e.putString(fSessionID, v.SessionID)
		e.putString(fInput, v.Input)
		e.putUint64(fCursorPos, uint64(v.CursorPos))
		e.putUint64(fSequenceID, v.SequenceID)
	case CompletionResponse:
		e.putUint64(fSequenceID, v.SequenceID)
		e.putBytes(fSuggestions, encodeSuggestions(v.Suggestions))
	case Auth:
		e.putString(fToken, v.Token)
	case AuthFailed:
	case Ack:
	default:
		return nil, fmt.Errorf("wire: unknown message type %T", m)
	}
	return e.render(m.messageTag()), nil
}

func encodeStringList(s []string) []byte {
	var b []byte
	count := make([]byte, 4)
	binary.BigEndian.PutUint32(count, uint32(len(s)))
	b = append(b, count...)
	for _, v := range s {
		l := make([]byte, 4)
		binary.BigEndian.PutUint32(l, uint32(len(v)))
		b = append(b, l...)
		b = append(b, v...)
	}
	return b
}

func decodeStringList(b []byte) []string {
	if len(b) < 4 {
		return nil
	}
	count := binary.BigEndian.Uint32(b[0:4])
	off := 4
	out := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(b) {
			break
		}
		l := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if off+l > len(b) {
			break
		}
		out = append(out, string(b[off:off+l]))
		off += l
	}
	return out
}

func encodeRecord(e *fieldEncoder, r CommandRecord) {
	e.putString(fRecordCommandID, r.CommandID)
	e.putString(fRecordSessionID, r.SessionID)
	e.putString(fRecordCommandLine, r.CommandLine)
	e.putString(fRecordCwd, r.Cwd)
	e.putUint64(fRecordStartedAt, r.StartedAtMs)
	if r.HasEndedAt {
		e.putUint64(fRecordEndedAt, r.EndedAtMs)
		e.putBool(fRecordHasEndedAt, true)
	}
	e.putString(fRecordOutputSummary, r.OutputSummary)
	e.putUint64(fRecordStreamOffset, r.StreamOffset)
	e.putUint64(fRecordStreamLength, r.StreamLength)
	if r.HasExitCode {
		e.putInt64(fRecordExitCode, int64(r.ExitCode))
		e.putBool(fRecordHasExitCode, true)
	}
}

func decodeRecord(fd fieldDecoder) CommandRecord {
	r := CommandRecord{
		CommandID:     fd.getString(fRecordCommandID),
		SessionID:     fd.getString(fRecordSessionID),
		CommandLine:   fd.getString(fRecordCommandLine),
		Cwd:           fd.getString(fRecordCwd),
		StartedAtMs:   fd.getUint64(fRecordStartedAt),
		OutputSummary: fd.getString(fRecordOutputSummary),
		StreamOffset:  fd.getUint64(fRecordStreamOffset),
		StreamLength:  fd.getUint64(fRecordStreamLength),
	}
	if fd.getBool(fRecordHasEndedAt) {
		r.EndedAtMs = fd.getUint64(fRecordEndedAt)
		r.HasEndedAt = true
	}
	if fd.getBool(fRecordHasExitCode) {
		if ec, ok := fd.getInt64(fRecordExitCode); ok {
			r.ExitCode = int32(ec)
			r.HasExitCode = true
		}
	}
	return r
}

func encodeSuggestions(s []Suggestion) []byte {
	var b []byte
	count := make([]byte, 4)
	binary.BigEndian.PutUint32(count, uint32(len(s)))
	b = append(b, count...)
	for _, sg := range s {
		tl := make([]byte, 4)
		binary.BigEndian.PutUint32(tl, uint32(len(sg.Text)))
		b = append(b, tl...)
		b = append(b, sg.Text...)
		cb := make([]byte, 8)
		binary.BigEndian.PutUint64(cb, uint64(int64(sg.Confidence*1e6)))
		b = append(b, cb...)
	}
	return b
}

func decodeSuggestions(b []byte) []Suggestion {
	if len(b) < 4 {
		return nil
	}
	count := binary.BigEndian.Uint32(b[0:4])
	off := 4
	out := make([]Suggestion, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(b) {
			break
		}
		tl := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if off+tl > len(b) {
			break
		}
		text := string(b[off : off+tl])
		off += tl
		if off+8 > len(b) {
			break
		}
		conf := float64(int64(binary.BigEndian.Uint64(b[off:off+8]))) / 1e6
		off += 8
		out = append(out, Suggestion{Text: text, Confidence: conf})
	}
	return out
}

// DecodeMessage parses payload (a Frame's Payload) into its concrete Message
// variant. An unrecognized variant tag is a typed decode error, not a panic.
func DecodeMessage(payload []byte) (Message, error) {
	tag, fd, err := decodeFields(payload)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagSessionStart:
		return SessionStart{
			SessionID:       fd.getString(fSessionID),
			ParentSessionID: fd.getString(fParentSessionID),
			TimestampMs:     fd.getUint64(fTimestampMs),
			Attrs:           fd.getStringMap(fAttrs),
		}, nil
	case tagSessionEnd:
		se := SessionEnd{
			SessionID:   fd.getString(fSessionID),
			TimestampMs: fd.getUint64(fTimestampMs),
		}
		if ec, ok := fd.getInt64(fExitCode); ok {
			se.ExitCode = int32(ec)
			se.HasExitCode = true
		}
		return se, nil
	case tagSessionUpdate:
		return SessionUpdate{
			SessionID:   fd.getString(fSessionID),
			TimestampMs: fd.getUint64(fTimestampMs),
			Attrs:       fd.getStringMap(fAttrs),
		}, nil
	case tagIoData:
		return IoData{
			SessionID:   fd.getString(fSessionID),
			Direction:   uint8(fd.getUint64(fDirection)),
			TimestampMs: fd.getUint64(fTimestampMs),
			Data:        fd.getBytes(fData),
		}, nil
	case tagCommandComplete:
		return CommandComplete{
			SessionID: fd.getString(fSessionID),
			Record:    decodeRecord(fd),
		}, nil
	case tagEvent:
		return Event{
			SessionID:   fd.getString(fSessionID),
			TimestampMs: fd.getUint64(fTimestampMs),
			Kind:        fd.getString(fKind),
			Data:        fd.getString(fEventData),
		}, nil
	case tagRequest:
		req := Request{
			RequestID: fd.getString(fRequestID),
			SessionID: fd.getString(fSessionID),
			Query:     fd.getString(fQuery),
			Scope:     Scope{Kind: ScopeKind(fd.getUint64(fScopeKind))},
		}
		if req.Scope.Kind == ScopeSessions {
			req.Scope.Sessions = decodeStringList(fd.getBytes(fScopeSessions))
		}
		return req, nil
	case tagResponse:
		return Response{
			RequestID:   fd.getString(fRequestID),
			Content:     fd.getString(fContent),
			IsStreaming: fd.getBool(fIsStreaming),
			IsFinal:     fd.getBool(fIsFinal),
		}, nil
	case tagCompletionRequest:
		return CompletionRequest{
			SessionID:  fd.getString(fSessionID),
			Input:      fd.getString(fInput),
			CursorPos:  uint32(fd.getUint64(fCursorPos)),
			SequenceID: fd.getUint64(fSequenceID),
		}, nil
	case tagCompletionResponse:
		return CompletionResponse{
			SequenceID:  fd.getUint64(fSequenceID),
			Suggestions: decodeSuggestions(fd.getBytes(fSuggestions)),
		}, nil
	case tagAuth:
		return Auth{Token: fd.getString(fToken)}, nil
	case tagAuthFailed:
		return AuthFailed{}, nil
	case tagAck:
		return Ack{}, nil
	default:
		return nil, fmt.Errorf("wire: unknown message variant tag %d", tag)
	}
}
