package rexpro

import (
	"context"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"rexpro.io/rexpro/transport"
)

// frameFor builds a wire Frame for a hand-assembled response body, bypassing
// encodeMessage since the message type only implements it for requests.
func frameFor(msgType byte, arr []any) transport.Frame {
	raw, err := msgpack.Marshal(arr)
	if err != nil {
		panic(err)
	}
	return transport.Frame{Type: msgType, Body: raw}
}

func sessionReplyFrame(sessionID [16]byte, languages []string) transport.Frame {
	langs := make([]any, len(languages))
	for i, l := range languages {
		langs[i] = l
	}
	reqID := newRequestUUID()
	return frameFor(transport.TypeSessionReply, []any{sessionID[:], reqID[:], map[string]any{}, langs})
}

func scriptReplyFrame(results any) transport.Frame {
	reqID := newRequestUUID()
	return frameFor(transport.TypeScriptReply, []any{zeroSessionUUID[:], reqID[:], map[string]any{}, results, map[string]any{}})
}

func errorReplyFrame(flag int, message string) transport.Frame {
	reqID := newRequestUUID()
	return frameFor(transport.TypeError, []any{zeroSessionUUID[:], reqID[:], map[string]any{"flag": flag}, message})
}

// emptyBodyTransport sends normally but fails every Recv with
// transport.ErrEmptyBody, simulating a zero-length frame body (§4.1).
type emptyBodyTransport struct {
	sent []transport.Frame
}

func (t *emptyBodyTransport) Send(f transport.Frame) error {
	t.sent = append(t.sent, f)
	return nil
}

func (t *emptyBodyTransport) Recv() (transport.Frame, error) {
	return transport.Frame{}, transport.ErrEmptyBody
}

func (t *emptyBodyTransport) Close() error { return nil }

// fakeDialer always hands back one pre-built Transport.
type fakeDialer struct {
	tr  transport.Transport
	err error
}

func (d *fakeDialer) DialContext(ctx context.Context, network, addr string, timeout time.Duration) (transport.Transport, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.tr, nil
}

// alwaysReadyProber reports every transport as live, short-circuiting
// TestConnection's reconnect loop.
type alwaysReadyProber struct{}

func (alwaysReadyProber) Ready(t transport.Transport, timeout time.Duration) (bool, bool, error) {
	return true, true, nil
}

// dialPlan is one scripted outcome for scriptedDialer.
type dialPlan struct {
	tr  transport.Transport
	err error
}

// scriptedDialer replays a fixed sequence of dial outcomes, falling back to
// a fresh TestTransport once the script is exhausted.
type scriptedDialer struct {
	mu    sync.Mutex
	plan  []dialPlan
	calls int
}

func (d *scriptedDialer) DialContext(ctx context.Context, network, addr string, timeout time.Duration) (transport.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	if i >= len(d.plan) {
		return &transport.TestTransport{}, nil
	}
	p := d.plan[i]
	if p.err != nil {
		return nil, p.err
	}
	return p.tr, nil
}

type proberResult struct {
	readable, writable bool
	err                 error
}

// scriptedProber replays a fixed sequence of readiness results, reporting
// live for every call once the script is exhausted.
type scriptedProber struct {
	mu      sync.Mutex
	results []proberResult
}

func (p *scriptedProber) Ready(t transport.Transport, timeout time.Duration) (bool, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.results) == 0 {
		return true, true, nil
	}
	r := p.results[0]
	p.results = p.results[1:]
	return r.readable, r.writable, r.err
}

// openTestConnection opens a Connection whose first handshake (session-open
// plus the automatic feature fetch) is served from tr, which must already
// be queued with the two matching reply frames.
func openTestConnection(ctx context.Context, tr transport.Transport, prober transport.ReadinessProber, cfg Config) (*Connection, error) {
	if prober == nil {
		prober = alwaysReadyProber{}
	}
	cfg.Adapter = &RuntimeAdapter{Dialer: &fakeDialer{tr: tr}, Prober: prober}
	return Open(ctx, cfg)
}
