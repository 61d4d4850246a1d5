package rexpro

import "regexp"

// Params are the parameter values bound to a script request. Keys must be
// valid identifiers; values must be scalars or sequences of scalars (§3).
type Params map[string]any

var (
	paramKeyLeadingDigit = regexp.MustCompile(`^[0-9]`)
	paramKeyBadChars     = regexp.MustCompile(`[\s.]`)
)

// Validate checks every key/value against the client-side constraints of
// §3, returning a ScriptFailure before any bytes are sent to the server.
func (p Params) Validate() error {
	for k, v := range p {
		if paramKeyLeadingDigit.MatchString(k) {
			return newError(ScriptFailure, "parameter names can't begin with a number: %q", k)
		}
		if paramKeyBadChars.MatchString(k) {
			return newError(ScriptFailure, "parameter names can't contain whitespace or a dot: %q", k)
		}
		if !isValidParamValue(v) {
			return newError(ScriptFailure, "%T is an unsupported parameter type for %q", v, k)
		}
	}
	return nil
}

func isValidParamValue(v any) bool {
	switch x := v.(type) {
	case string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	case []any:
		for _, item := range x {
			if !isValidParamValue(item) {
				return false
			}
		}
		return true
	case []string:
		return true
	case []int:
		return true
	case []float64:
		return true
	default:
		return false
	}
}
