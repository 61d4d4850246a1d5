package rexpro

import "github.com/google/uuid"

// zeroSessionUUID is the sentinel "no session" value: sixteen zero bytes.
var zeroSessionUUID [16]byte

// newRequestUUID mints a fresh time-ordered 16-byte request UUID for a
// single outgoing message, per §4.2.
func newRequestUUID() [16]byte {
	id, err := uuid.NewUUID()
	if err != nil {
		// uuid.NewUUID only fails if the host cannot provide a MAC address
		// or random node ID at all; fall back to a random (v4) UUID rather
		// than panicking on an otherwise-healthy host.
		id = uuid.New()
	}
	var out [16]byte
	copy(out[:], id[:])
	return out
}
