// Package transport implements the length-prefixed RexPro envelope framing
// and the pluggable socket adapter used to carry it.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Protocol constants fixed by the RexPro wire format.
const (
	ProtocolVersion byte = 1

	SerializerMsgPack byte = 0
	SerializerJSON    byte = 1
)

// Message types recognized on the wire.
const (
	TypeError          byte = 0
	TypeSessionRequest byte = 1
	TypeSessionReply   byte = 2
	TypeScriptRequest  byte = 3
	TypeScriptReply    byte = 5
)

// Sentinel errors raised while parsing or writing an envelope. Callers in
// the rexpro package map these onto the closed error taxonomy.
var (
	ErrUnsupportedVersion    = errors.New("transport: unsupported protocol version")
	ErrUnsupportedSerializer = errors.New("transport: unsupported serializer")
	ErrUnknownMessageType    = errors.New("transport: unknown message type")
	ErrEmptyBody             = errors.New("transport: insufficient data")
)

const headerLen = 1 + 1 + 4 + 1 + 4 // version, serializer, reserved, type, length

// Frame is the envelope described in the wire format: a fixed header plus a
// MessagePack-encoded body. Frame carries the body as raw bytes; decoding
// the body into a message variant is the wire codec's job, not the
// transport's.
type Frame struct {
	Type byte
	Body []byte
}

// WriteFrame serializes f using the exact byte layout of the RexPro
// envelope and writes it to w in a single call.
func WriteFrame(w io.Writer, f Frame) error {
	buf := make([]byte, headerLen+len(f.Body))
	buf[0] = ProtocolVersion
	buf[1] = SerializerMsgPack
	// bytes 2..5 are the reserved, zero-filled field
	buf[6] = f.Type
	binary.BigEndian.PutUint32(buf[7:11], uint32(len(f.Body)))
	copy(buf[headerLen:], f.Body)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads exactly one framed message from r, looping until the full
// body has been read or the stream ends.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("transport: connection closed while reading header: %w", err)
		}
		return Frame{}, err
	}

	if hdr[0] != ProtocolVersion {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, hdr[0])
	}
	if hdr[1] != SerializerMsgPack {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnsupportedSerializer, hdr[1])
	}

	msgType := hdr[6]
	switch msgType {
	case TypeError, TypeSessionRequest, TypeSessionReply, TypeScriptRequest, TypeScriptReply:
	default:
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownMessageType, msgType)
	}

	bodyLen := binary.BigEndian.Uint32(hdr[7:11])
	if bodyLen == 0 {
		return Frame{}, ErrEmptyBody
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("transport: connection closed mid-body: %w", err)
		}
		return Frame{}, err
	}

	return Frame{Type: msgType, Body: body}, nil
}
