package rexpro

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"rexpro.io/rexpro/transport"
)

// encodeMessage turns a message into its wire Frame: the body is the
// MessagePack encoding of the variant's array, and the length prefix is
// computed on the serialized body (§4.1).
func encodeMessage(msg message) (transport.Frame, error) {
	body, err := msgpack.Marshal(msg.toArray())
	if err != nil {
		return transport.Frame{}, wrapError(ScriptFailure, err, "failed to encode message body")
	}
	return transport.Frame{Type: msg.messageType(), Body: body}, nil
}

// decodeMessage parses a Frame's body back into the variant named by the
// frame's message type, normalizing byte strings to UTF-8 text throughout
// (§4.1).
func decodeMessage(f transport.Frame) (any, error) {
	var raw []any
	if err := msgpack.Unmarshal(f.Body, &raw); err != nil {
		return nil, wrapError(ConnectionFailure, err, "failed to decode message body")
	}
	if len(raw) < 3 {
		return nil, newError(ConnectionFailure, "malformed message body: expected at least 3 elements, got %d", len(raw))
	}

	session, err := toUUID(raw[0])
	if err != nil {
		return nil, wrapError(ConnectionFailure, err, "malformed session uuid")
	}
	request, err := toUUID(raw[1])
	if err != nil {
		return nil, wrapError(ConnectionFailure, err, "malformed request uuid")
	}
	meta := decodeMeta(raw[2])

	switch f.Type {
	case transport.TypeError:
		if len(raw) < 4 {
			return nil, newError(ConnectionFailure, "malformed error response")
		}
		msgText := newValue(raw[3])
		text, _ := msgText.AsString()
		flag := -1
		if flagVal, ok := meta["flag"]; ok {
			flag = toInt(flagVal)
		}
		return &ErrorResponse{Session: session, RequestID: request, Flag: flag, Message: text}, nil

	case transport.TypeSessionReply:
		if len(raw) < 4 {
			return nil, newError(ConnectionFailure, "malformed session response")
		}
		langs := decodeStringList(raw[3])
		return &SessionResponse{Session: session, RequestID: request, Meta: meta, Languages: langs}, nil

	case transport.TypeScriptReply:
		if len(raw) < 5 {
			return nil, newError(ConnectionFailure, "malformed script response")
		}
		return &ScriptResponse{
			Session:   session,
			RequestID: request,
			Meta:      meta,
			Results:   newValue(raw[3]),
			Bindings:  newValue(raw[4]),
		}, nil

	default:
		return nil, wrapError(ConnectionFailure, transport.ErrUnknownMessageType, "unexpected message type %d", f.Type)
	}
}

func toUUID(v any) ([16]byte, error) {
	var out [16]byte
	b, ok := v.([]byte)
	if !ok {
		return out, fmt.Errorf("expected 16-byte uuid, got %T", v)
	}
	if len(b) != 16 {
		return out, fmt.Errorf("expected 16-byte uuid, got %d bytes", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func decodeMeta(v any) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out
}

func decodeStringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		val := newValue(item)
		if s, ok := val.AsString(); ok {
			out = append(out, s)
		}
	}
	return out
}

func toInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int8:
		return int(x)
	case int16:
		return int(x)
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint8:
		return int(x)
	case uint16:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	case float32:
		return int(x)
	case float64:
		return int(x)
	default:
		return -1
	}
}
