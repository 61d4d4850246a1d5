package rexpro

import "rexpro.io/rexpro/transport"

// Language is the scripting language a script-request is written in.
type Language string

// Recognized script languages (§6). Only groovy has been exercised against
// a real gateway upstream, but scala and java are accepted on the wire.
const (
	LanguageGroovy Language = "groovy"
	LanguageScala  Language = "scala"
	LanguageJava   Language = "java"
)

// message is satisfied by every request/response variant; it carries the
// three fields common to every body (§3): session, request, meta.
type message interface {
	messageType() byte
	toArray() []any
}

// SessionRequest opens or kills a server session (§3 session-req tail).
type SessionRequest struct {
	Session   [16]byte
	RequestID [16]byte
	Meta      map[string]any

	Username string
	Password string
}

func (m *SessionRequest) messageType() byte { return transport.TypeSessionRequest }

func (m *SessionRequest) toArray() []any {
	return []any{m.Session[:], m.RequestID[:], m.Meta, m.Username, m.Password}
}

// SessionResponse is the server's reply to a session-request (§3 session-resp tail).
type SessionResponse struct {
	Session   [16]byte
	RequestID [16]byte
	Meta      map[string]any

	Languages []string
}

// ScriptRequest executes a script against a session (§3 script-req tail).
type ScriptRequest struct {
	Session   [16]byte
	RequestID [16]byte
	Meta      map[string]any

	Language Language
	Script   string
	Params   map[string]any
}

func (m *ScriptRequest) messageType() byte { return transport.TypeScriptRequest }

func (m *ScriptRequest) toArray() []any {
	params := m.Params
	if params == nil {
		params = map[string]any{}
	}
	return []any{m.Session[:], m.RequestID[:], m.Meta, string(m.Language), m.Script, params}
}

// ScriptResponse is the server's reply to a script-request (§3 script-resp tail).
type ScriptResponse struct {
	Session   [16]byte
	RequestID [16]byte
	Meta      map[string]any

	Results  Value
	Bindings Value
}

// ErrorResponse is a server-reported failure (§3 error-resp tail).
type ErrorResponse struct {
	Session   [16]byte
	RequestID [16]byte

	Flag    int
	Message string
}

func (m *ErrorResponse) AsError() *Error {
	return errorFromFlag(m.Flag, m.Message)
}

// sessionRequestMeta assembles the meta map for a session-request per §4.2:
// killSession excludes every other meta key.
func sessionRequestMeta(graphName, graphObjName string, killSession bool) map[string]any {
	if killSession {
		return map[string]any{"killSession": true}
	}

	meta := map[string]any{}
	if graphName != "" {
		meta["graphName"] = graphName
		if graphObjName != "" {
			meta["graphObjName"] = graphObjName
		}
	}
	return meta
}

// scriptRequestMeta assembles the meta map for a script-request per §4.2,
// omitting every default value: inSession defaults false, isolate defaults
// true, transaction defaults true.
func scriptRequestMeta(graphName, graphObjName string, inSession, isolate, transaction bool) map[string]any {
	meta := map[string]any{}

	if graphName != "" {
		meta["graphName"] = graphName
		if graphObjName != "" {
			meta["graphObjName"] = graphObjName
		}
	}

	if inSession {
		meta["inSession"] = true
	}
	if !isolate {
		meta["isolate"] = false
	}
	if !transaction {
		meta["transaction"] = false
	}

	return meta
}
