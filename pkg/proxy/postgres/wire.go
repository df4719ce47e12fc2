// Package postgres implements the interposing Postgres wire proxy: clients
// speak the native protocol, traffic is forwarded to the configured backend,
// and a lightweight inspector blocks deny-listed SQL before it reaches the
// server.
package postgres

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Message type bytes the inspector recognizes without payload parsing.
const (
	msgQuery     = 'Q'
	msgParse     = 'P'
	msgBind      = 'B'
	msgExecute   = 'E'
	msgTerminate = 'X'

	msgErrorResponse = 'E'
	msgReadyForQuery = 'Z'
)

// Startup request codes carried in the length-prefixed pre-auth packets.
const (
	protocolVersion3 = 196608
	sslRequestCode   = 80877103
	cancelRequest    = 80877102
	gssEncRequest    = 80877104
)

// maxMessageLen caps a single wire message at the protocol's own 1GiB
// limit. Anything beyond it is corruption, not a legal frame.
const maxMessageLen = 1 << 30

// Message is one typed frame: <type:1><length:4 BE, incl itself><payload>.
type Message struct {
	Type    byte
	Payload []byte
}

// ReadMessage reads one typed frame from r.
func ReadMessage(r io.Reader) (*Message, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[1:5])
	if length < 4 || length > maxMessageLen {
		return nil, fmt.Errorf("invalid message length %d for type %q", length, header[0])
	}

	payload := make([]byte, length-4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	return &Message{Type: header[0], Payload: payload}, nil
}

// WriteTo writes the frame to w.
func (m *Message) WriteTo(w io.Writer) error {
	header := make([]byte, 5)
	header[0] = m.Type
	binary.BigEndian.PutUint32(header[1:5], uint32(len(m.Payload)+4))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(m.Payload)
	return err
}

// QueryText extracts the SQL from a Simple Query payload (NUL-terminated).
func QueryText(payload []byte) string {
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		return string(payload[:i])
	}
	return string(payload)
}

// StartupPacket is one untyped pre-auth packet: <length:4 BE, incl itself>
// <payload>. The payload begins with a 4-byte request code.
type StartupPacket struct {
	Code    uint32
	Payload []byte // request code included
}

// ReadStartupPacket reads one untyped packet from r.
func ReadStartupPacket(r io.Reader) (*StartupPacket, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 8 || length > maxMessageLen {
		return nil, fmt.Errorf("invalid startup packet length %d", length)
	}

	payload := make([]byte, length-4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	return &StartupPacket{
		Code:    binary.BigEndian.Uint32(payload[:4]),
		Payload: payload,
	}, nil
}

// WriteTo writes the packet to w with its length prefix restored.
func (p *StartupPacket) WriteTo(w io.Writer) error {
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(p.Payload)+4))
	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	_, err := w.Write(p.Payload)
	return err
}

// IsSSLRequest reports whether this packet asks for TLS negotiation.
func (p *StartupPacket) IsSSLRequest() bool {
	return p.Code == sslRequestCode || p.Code == gssEncRequest
}

// IsCancelRequest reports whether this packet is a query cancellation.
func (p *StartupPacket) IsCancelRequest() bool {
	return p.Code == cancelRequest
}

// Parameters parses the key/value pairs of a v3 StartupMessage ("user",
// "database", "application_name", ...). Returns nil for non-startup codes.
func (p *StartupPacket) Parameters() map[string]string {
	if p.Code != protocolVersion3 {
		return nil
	}

	params := make(map[string]string)
	rest := p.Payload[4:]
	for {
		i := bytes.IndexByte(rest, 0)
		if i <= 0 {
			break
		}
		key := string(rest[:i])
		rest = rest[i+1:]

		j := bytes.IndexByte(rest, 0)
		if j < 0 {
			break
		}
		params[key] = string(rest[:j])
		rest = rest[j+1:]
	}
	return params
}

// errorField identifiers used in synthesized ErrorResponse messages.
const (
	fieldSeverity    = 'S'
	fieldSeverityV   = 'V'
	fieldCode        = 'C'
	fieldMessage     = 'M'
	sqlstateDenied   = "42501" // insufficient_privilege
	sqlstateConnFail = "08006" // connection_failure
)

// ErrorResponse synthesizes a wire-format ErrorResponse frame.
func ErrorResponse(code, message string) []byte {
	var payload bytes.Buffer
	writeField := func(id byte, value string) {
		payload.WriteByte(id)
		payload.WriteString(value)
		payload.WriteByte(0)
	}
	writeField(fieldSeverity, "ERROR")
	writeField(fieldSeverityV, "ERROR")
	writeField(fieldCode, code)
	writeField(fieldMessage, message)
	payload.WriteByte(0)

	msg := &Message{Type: msgErrorResponse, Payload: payload.Bytes()}
	var buf bytes.Buffer
	_ = msg.WriteTo(&buf)
	return buf.Bytes()
}

// operationKind names the recognized client message types for audit records.
func operationKind(msgType byte) (string, bool) {
	switch msgType {
	case msgQuery:
		return "QUERY", true
	case msgParse:
		return "PARSE", true
	case msgBind:
		return "BIND", true
	case msgExecute:
		return "EXECUTE", true
	case msgTerminate:
		return "TERMINATE", true
	default:
		return "", false
	}
}
