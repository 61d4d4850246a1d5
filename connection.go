package rexpro

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"rexpro.io/rexpro/transport"
)

// RuntimeAdapter bundles the two runtime-supplied primitives (§4.7/§9): a
// socket constructor and a readiness-probe. Injecting this lets the same
// Connection/Pool logic run under a blocking caller, a cooperative task
// scheduler, or a parallel thread pool.
type RuntimeAdapter struct {
	Dialer transport.Dialer
	Prober transport.ReadinessProber
}

func defaultRuntimeAdapter() RuntimeAdapter {
	return RuntimeAdapter{Dialer: transport.NetDialer{}, Prober: transport.DeadlineProber{}}
}

// resolveRuntimeAdapter fills in the default blocking adapter when cfg
// carries none, and rejects a half-specified one: a caller wiring in a
// cooperative-scheduler adapter must supply both halves, since a Dialer
// without a matching ReadinessProber (or vice versa) can't honor §4.7's
// runtime contract.
func resolveRuntimeAdapter(cfg Config) (RuntimeAdapter, error) {
	if cfg.Adapter == nil {
		return defaultRuntimeAdapter(), nil
	}
	if cfg.Adapter.Dialer == nil || cfg.Adapter.Prober == nil {
		return RuntimeAdapter{}, newError(InvalidConnectorType, "runtime adapter must supply both a Dialer and a ReadinessProber")
	}
	return *cfg.Adapter, nil
}

// Config describes the endpoint and credentials a Connection or Pool
// targets (§6 "Configuration options").
type Config struct {
	Host string
	Port int

	GraphName    string
	GraphObjName string // defaults to "g"

	Username string
	Password string

	Timeout time.Duration

	// Adapter overrides the runtime adapter. Nil uses a default blocking
	// adapter backed by the standard net package.
	Adapter *RuntimeAdapter
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) graphObjName() string {
	if c.GraphObjName == "" {
		return "g"
	}
	return c.GraphObjName
}

// ExecuteOption customizes a single Execute call (§6 "script-request knobs").
type ExecuteOption interface{ apply(*executeConfig) }

type executeConfig struct {
	isolate     bool
	transaction bool
	language    Language
}

type isolateOpt bool

func (o isolateOpt) apply(c *executeConfig) { c.isolate = bool(o) }

// WithIsolate controls whether the script's top-level bindings persist to
// the next script request on the same session. Defaults to true.
func WithIsolate(isolate bool) ExecuteOption { return isolateOpt(isolate) }

type transactionOpt bool

func (o transactionOpt) apply(c *executeConfig) { c.transaction = bool(o) }

// WithTransactionFlag controls whether the server wraps the script in its
// own transaction. Defaults to true; forced to false while already inside
// an open transaction (§4.3).
func WithTransactionFlag(transaction bool) ExecuteOption { return transactionOpt(transaction) }

type languageOpt Language

func (o languageOpt) apply(c *executeConfig) { c.language = Language(o) }

// WithLanguage selects the script language. Defaults to LanguageGroovy.
func WithLanguage(l Language) ExecuteOption { return languageOpt(l) }

// Connection is the per-connection state machine of §4.3: unopened ->
// opened -> session-bound -> in-transaction.
type Connection struct {
	cfg     Config
	adapter RuntimeAdapter

	mu            sync.Mutex
	tr            transport.Transport
	sessionKey    [16]byte
	hasSession    bool
	inTransaction bool
	opened        bool

	// poolSession is true when this connection's session belongs to a pool
	// and must not be killed on soft close (§4.3 invariant, §9 "cyclic
	// reference" note: this is a plain value, never a handle back to the pool).
	poolSession bool

	graphFeatures Value
}

// Open constructs a Connection and performs a full hard open: dialing the
// socket and opening a session.
func Open(ctx context.Context, cfg Config) (*Connection, error) {
	cfg.GraphObjName = cfg.graphObjName()

	adapter, err := resolveRuntimeAdapter(cfg)
	if err != nil {
		return nil, err
	}

	c := &Connection{cfg: cfg, adapter: adapter}
	if err := c.open(ctx, false); err != nil {
		return nil, err
	}
	return c, nil
}

// Open re-opens the connection, per §4.3: soft=true on an already-opened
// connection skips the socket reconnect (and, if a session key is already
// present, skips minting a new session too).
func (c *Connection) Open(ctx context.Context, soft bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open(ctx, soft)
}

func (c *Connection) open(ctx context.Context, soft bool) error {
	if !soft || !c.opened {
		tr, err := c.adapter.Dialer.DialContext(ctx, "tcp", c.cfg.addr(), c.cfg.Timeout)
		if err != nil {
			return wrapError(ConnectionFailure, err, "could not connect to %s", c.cfg.addr())
		}
		if c.tr != nil {
			_ = c.tr.Close()
		}
		c.tr = tr
	}

	c.inTransaction = false
	c.opened = true

	if !c.hasSession {
		if err := c.openSession(ctx); err != nil {
			return err
		}
	}
	return nil
}

// openSession sends a session-request and, on success, immediately caches
// the server's feature map (§4.3).
func (c *Connection) openSession(ctx context.Context) error {
	req := &SessionRequest{
		Session:   zeroSessionUUID,
		RequestID: newRequestUUID(),
		Meta:      sessionRequestMeta(c.cfg.GraphName, c.cfg.GraphObjName, false),
		Username:  c.cfg.Username,
		Password:  c.cfg.Password,
	}

	resp, err := c.doRequest(ctx, req)
	if err != nil {
		return err
	}
	sessResp, ok := resp.(*SessionResponse)
	if !ok {
		return newError(ConnectionFailure, "unexpected response to session request")
	}

	c.sessionKey = sessResp.Session
	c.hasSession = true

	features, err := c.executeLocked(ctx, "g.getFeatures().toMap()", nil)
	if err != nil {
		return err
	}
	c.graphFeatures = features
	return nil
}

// Execute runs a script against the current session (§4.3).
func (c *Connection) Execute(ctx context.Context, script string, params Params, opts ...ExecuteOption) (Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executeLocked(ctx, script, params, opts...)
}

func (c *Connection) executeLocked(ctx context.Context, script string, params Params, opts ...ExecuteOption) (Value, error) {
	cfg := executeConfig{isolate: true, transaction: true, language: LanguageGroovy}
	for _, o := range opts {
		o.apply(&cfg)
	}

	// An outer transaction governs; a nested request never opens its own.
	transaction := cfg.transaction
	if c.inTransaction {
		transaction = false
	}

	if params == nil {
		params = Params{}
	}
	if err := params.Validate(); err != nil {
		return Value{}, err
	}

	req := &ScriptRequest{
		Session:   c.sessionKey,
		RequestID: newRequestUUID(),
		Meta:      scriptRequestMeta(c.cfg.GraphName, c.cfg.GraphObjName, c.hasSession, cfg.isolate, transaction),
		Language:  cfg.language,
		Script:    script,
		Params:    map[string]any(params),
	}

	resp, err := c.doRequest(ctx, req)
	if err != nil {
		return Value{}, err
	}
	scriptResp, ok := resp.(*ScriptResponse)
	if !ok {
		return Value{}, newError(ConnectionFailure, "unexpected response to script request")
	}
	return scriptResp.Results, nil
}

// OpenTransaction opens a server-side transaction (§4.3). The server's
// transactional idiom requires closing any prior lingering transaction
// before a fresh open, hence the stopTransaction(FAILURE) reset.
func (c *Connection) OpenTransaction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inTransaction {
		return newError(ScriptFailure, "transaction is already open")
	}

	if _, err := c.executeLocked(ctx, "g.stopTransaction(FAILURE)", nil, WithIsolate(false), WithTransactionFlag(false)); err != nil {
		return err
	}
	c.inTransaction = true
	return nil
}

// CloseTransaction closes the open transaction, committing on success=true
// and rolling back otherwise (§4.3).
func (c *Connection) CloseTransaction(ctx context.Context, success bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.inTransaction {
		return newError(ScriptFailure, "transaction is not open")
	}

	status := "FAILURE"
	if success {
		status = "SUCCESS"
	}
	script := fmt.Sprintf("g.stopTransaction(%s)", status)
	if _, err := c.executeLocked(ctx, script, nil, WithIsolate(false), WithTransactionFlag(false)); err != nil {
		return err
	}
	c.inTransaction = false
	return nil
}

// WithTransaction is the scoped-transaction helper of §4.3: it repairs a
// dead socket via TestConnection, opens a transaction, runs fn, and commits
// on a normal return or rolls back and re-raises on any failure.
func (c *Connection) WithTransaction(ctx context.Context, fn func(ctx context.Context, c *Connection) error) (err error) {
	if err := c.TestConnection(ctx); err != nil {
		return err
	}
	if err := c.OpenTransaction(ctx); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = c.CloseTransaction(ctx, false)
			panic(p)
		}
		if err != nil {
			_ = c.CloseTransaction(ctx, false)
			return
		}
		err = c.CloseTransaction(ctx, true)
	}()

	err = fn(ctx, c)
	return err
}

// Close releases the connection (§4.3). A soft close preserves the socket
// and, for a non-pool-owned session, still kills the server session; a
// hard close additionally drops the socket (glossary: "hard close").
func (c *Connection) Close(ctx context.Context, soft bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked(ctx, soft)
}

func (c *Connection) closeLocked(ctx context.Context, soft bool) error {
	var killErr error
	if !c.poolSession {
		req := &SessionRequest{
			Session:   c.sessionKey,
			RequestID: newRequestUUID(),
			Meta:      sessionRequestMeta(c.cfg.GraphName, c.cfg.GraphObjName, true),
		}
		resp, err := c.doRequest(ctx, req)
		switch {
		case err != nil:
			killErr = err
		default:
			if _, ok := resp.(*SessionResponse); !ok {
				killErr = newError(ConnectionFailure, "unexpected response to kill-session request")
			}
		}
	}

	c.inTransaction = false
	if !c.poolSession && killErr == nil {
		c.hasSession = false
		c.sessionKey = [16]byte{}
	}

	if !soft {
		c.opened = false
		if c.tr != nil {
			_ = c.tr.Close()
		}
	}

	return killErr
}

// TestConnection probes the socket and, if it looks dead, reconnects with
// an exponential backoff schedule of 2, 4, 8 seconds (§4.3). After three
// failed attempts it raises ConnectionFailure — resolving the open
// question in §9 in favor of treating "still not ready" as failure.
func (c *Connection) TestConnection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.testConnectionLocked(ctx)
}

var reconnectBackoff = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

func (c *Connection) testConnectionLocked(ctx context.Context) error {
	readable, writable, err := c.adapter.Prober.Ready(c.tr, time.Second)
	if err == nil && (readable || writable) {
		return nil
	}

	for _, wait := range reconnectBackoff {
		if c.tr != nil {
			_ = c.tr.Close()
		}

		tr, dialErr := c.adapter.Dialer.DialContext(ctx, "tcp", c.cfg.addr(), c.cfg.Timeout)
		if dialErr != nil {
			continue
		}
		c.tr = tr

		readable, writable, err = c.adapter.Prober.Ready(c.tr, wait)
		if err != nil || (!readable && !writable) {
			continue
		}

		c.inTransaction = false
		if c.poolSession {
			// session key already carries the pool-shared value; nothing
			// else to restore.
		} else {
			c.hasSession = false
			if err := c.openSession(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	return newError(ConnectionFailure, "could not reconnect to %s", c.cfg.addr())
}

// GraphFeatures returns the server feature map cached at session open.
func (c *Connection) GraphFeatures() Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graphFeatures
}

// Opened reports whether the connection believes its socket is live.
func (c *Connection) Opened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

// InTransaction reports whether a transaction is currently open.
func (c *Connection) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inTransaction
}

// SessionKey returns the current 16-byte session identifier, or the zero
// value if no session is bound.
func (c *Connection) SessionKey() [16]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionKey
}

func (c *Connection) doRequest(ctx context.Context, msg message) (any, error) {
	if c.tr == nil {
		return nil, newError(ConnectionFailure, "connection has no transport")
	}

	frame, err := encodeMessage(msg)
	if err != nil {
		return nil, err
	}

	if err := c.tr.Send(frame); err != nil {
		return nil, wrapError(ConnectionFailure, err, "failed to send message")
	}

	respFrame, err := c.tr.Recv()
	if err != nil {
		if errors.Is(err, transport.ErrEmptyBody) {
			return nil, newError(ScriptFailure, "insufficient data")
		}
		return nil, wrapError(ConnectionFailure, err, "failed to receive response")
	}

	resp, err := decodeMessage(respFrame)
	if err != nil {
		return nil, err
	}

	if errResp, ok := resp.(*ErrorResponse); ok {
		return nil, errResp.AsError()
	}

	_ = ctx // reserved for future per-call cancellation; sends/recvs are synchronous today.
	return resp, nil
}
