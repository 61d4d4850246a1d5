package rexpro

import "fmt"

// Kind closes the set of failure kinds this client raises.
type Kind int

const (
	// InvalidConnectorType indicates an unsupported runtime adapter selector.
	InvalidConnectorType Kind = iota

	// ConnectionFailure covers socket connect/reconnect failures, a closed
	// transport, an unsupported protocol/serializer byte, an unknown
	// message-type byte, or a truncated frame.
	ConnectionFailure

	// ResponseFailure is a generic server-reported error whose flag falls
	// outside the known set.
	ResponseFailure

	// ScriptFailure maps server flag SCRIPT_FAILURE (2); also raised
	// client-side for transaction-state violations and unsupported
	// parameter types/names.
	ScriptFailure

	// InvalidSession maps server flag INVALID_SESSION (1).
	InvalidSession

	// AuthenticationFailure maps server flag AUTH_FAILURE (3).
	AuthenticationFailure

	// SerializationFailure maps server flag RESULT_SERIALIZATION_ERROR (6).
	SerializationFailure

	// GraphConfigFailure maps server flag GRAPH_CONFIG_ERROR (4).
	GraphConfigFailure

	// ChannelConfigFailure maps server flag CHANNEL_CONFIG_ERROR (5).
	ChannelConfigFailure

	// InvalidMessage maps server flag INVALID_MESSAGE_ERROR (0).
	InvalidMessage
)

func (k Kind) String() string {
	switch k {
	case InvalidConnectorType:
		return "InvalidConnectorType"
	case ConnectionFailure:
		return "ConnectionFailure"
	case ResponseFailure:
		return "ResponseFailure"
	case ScriptFailure:
		return "ScriptFailure"
	case InvalidSession:
		return "InvalidSession"
	case AuthenticationFailure:
		return "AuthenticationFailure"
	case SerializationFailure:
		return "SerializationFailure"
	case GraphConfigFailure:
		return "GraphConfigFailure"
	case ChannelConfigFailure:
		return "ChannelConfigFailure"
	case InvalidMessage:
		return "InvalidMessage"
	default:
		return "Unknown"
	}
}

// errFlagKind maps a server error-response flag (§4.5/§7) onto a Kind.
var errFlagKind = map[int]Kind{
	0: InvalidMessage,
	1: InvalidSession,
	2: ScriptFailure,
	3: AuthenticationFailure,
	4: GraphConfigFailure,
	5: ChannelConfigFailure,
	6: SerializationFailure,
}

// Error is the error type every failure from this client is expressed as.
type Error struct {
	Kind Kind

	// Message is the human-readable detail, either from the server's
	// error-response body or generated client-side.
	Message string

	// Flag is the raw server error flag when Kind was derived from one;
	// -1 for client-side errors with no associated flag.
	Flag int

	// Err, when set, is the underlying error this Error wraps (e.g. a
	// socket or transport-level error).
	Err error
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Flag: -1}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Flag: -1, Err: err}
}

// errorFromFlag builds an Error for a server flag, degrading unknown flags
// to a generic ResponseFailure carrying the raw flag and message.
func errorFromFlag(flag int, message string) *Error {
	kind, ok := errFlagKind[flag]
	if !ok {
		return &Error{Kind: ResponseFailure, Message: message, Flag: flag}
	}
	return &Error{Kind: kind, Message: message, Flag: flag}
}

func (e *Error) Error() string {
	if e.Flag >= 0 {
		return fmt.Sprintf("rexpro: %s (flag=%d): %s", e.Kind, e.Flag, e.Message)
	}
	return fmt.Sprintf("rexpro: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is supports errors.Is comparisons against a Kind sentinel built with
// &Error{Kind: k}, matching on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}
