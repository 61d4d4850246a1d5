package rexpro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"rexpro.io/rexpro/transport"
)

func TestEncodeDecodeSessionRequestRoundTrip(t *testing.T) {
	req := &SessionRequest{
		RequestID: newRequestUUID(),
		Meta:      map[string]any{"graphName": "graph"},
		Username:  "rexster",
		Password:  "rexster",
	}

	frame, err := encodeMessage(req)
	require.NoError(t, err)
	assert.Equal(t, transport.TypeSessionRequest, frame.Type)

	// Simulate the gateway's reply sharing the minted request id as its
	// session key, the usual first-session handshake.
	respBody, err := msgpack.Marshal([]any{req.RequestID[:], req.RequestID[:], map[string]any{}, []any{"groovy"}})
	require.NoError(t, err)
	respFrame := transport.Frame{Type: transport.TypeSessionReply, Body: respBody}

	decoded, err := decodeMessage(respFrame)
	require.NoError(t, err)
	sessResp, ok := decoded.(*SessionResponse)
	require.True(t, ok)
	assert.Equal(t, req.RequestID, sessResp.Session)
	assert.Equal(t, []string{"groovy"}, sessResp.Languages)
}

func TestEncodeScriptRequestArrayShape(t *testing.T) {
	req := &ScriptRequest{
		Session:   newRequestUUID(),
		RequestID: newRequestUUID(),
		Meta:      map[string]any{"isolate": false},
		Language:  LanguageGroovy,
		Script:    "g.V().count()",
		Params:    map[string]any{"x": 1},
	}

	arr := req.toArray()
	require.Len(t, arr, 6)
	assert.Equal(t, req.Session[:], arr[0])
	assert.Equal(t, req.RequestID[:], arr[1])
	assert.Equal(t, req.Meta, arr[2])
	assert.Equal(t, "groovy", arr[3])
	assert.Equal(t, "g.V().count()", arr[4])
	assert.Equal(t, map[string]any{"x": 1}, arr[5])
}

func TestDecodeScriptResponse(t *testing.T) {
	sessionID := newRequestUUID()
	requestID := newRequestUUID()

	body, err := msgpack.Marshal([]any{sessionID[:], requestID[:], map[string]any{}, nil, map[string]any{}})
	require.NoError(t, err)
	frame := transport.Frame{Type: transport.TypeScriptReply, Body: body}

	decoded, err := decodeMessage(frame)
	require.NoError(t, err)
	scriptResp, ok := decoded.(*ScriptResponse)
	require.True(t, ok)
	assert.Equal(t, sessionID, scriptResp.Session)
	assert.Equal(t, requestID, scriptResp.RequestID)
}

func TestDecodeErrorResponse(t *testing.T) {
	sessionID := newRequestUUID()
	requestID := newRequestUUID()

	body := []any{sessionID[:], requestID[:], map[string]any{"flag": 2}, "broken script"}
	raw, err := msgpack.Marshal(body)
	require.NoError(t, err)

	decoded, err := decodeMessage(transport.Frame{Type: transport.TypeError, Body: raw})
	require.NoError(t, err)
	errResp, ok := decoded.(*ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, 2, errResp.Flag)
	assert.Equal(t, "broken script", errResp.Message)

	asErr := errResp.AsError()
	assert.Equal(t, ScriptFailure, asErr.Kind)
}

func TestDecodeMessageRejectsShortBody(t *testing.T) {
	raw, err := msgpack.Marshal([]any{"only-one-element"})
	require.NoError(t, err)

	_, err = decodeMessage(transport.Frame{Type: transport.TypeError, Body: raw})
	require.Error(t, err)
}
