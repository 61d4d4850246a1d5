package rexpro

import (
	"context"
	"log"
	"sync"
)

// poolConfig holds the options assembled by PoolOption (§4.4).
type poolConfig struct {
	maxSize     int
	withSession bool
}

// PoolOption customizes a Pool at construction time.
type PoolOption interface{ apply(*poolConfig) }

type maxSizeOpt int

func (o maxSizeOpt) apply(c *poolConfig) { c.maxSize = int(o) }

// WithMaxSize bounds the pool's live connection count. Defaults to 10.
func WithMaxSize(n int) PoolOption { return maxSizeOpt(n) }

type sharedSessionOpt bool

func (o sharedSessionOpt) apply(c *poolConfig) { c.withSession = bool(o) }

// WithSharedSession puts the pool in shared-session mode (§4.4
// "with_session"): every connection the pool hands out reuses one session
// key minted up front, instead of each connection minting its own.
func WithSharedSession(on bool) PoolOption { return sharedSessionOpt(on) }

// Pool is the bounded FIFO connection pool of §4.4: idle connections are
// handed out in FIFO order, growth to the configured max is lazy, and
// checked-out connections are always returned with a soft close.
type Pool struct {
	cfg     Config
	adapter RuntimeAdapter
	maxSize int

	withSession    bool
	poolSessionKey [16]byte
	hasPoolSession bool

	mu   sync.Mutex
	cond *sync.Cond
	idle []*Connection
	live int
}

// NewPool constructs a pool and, in shared-session mode, eagerly opens the
// one connection used to mint the pool-wide session key.
func NewPool(ctx context.Context, cfg Config, opts ...PoolOption) (*Pool, error) {
	cfg.GraphObjName = cfg.graphObjName()

	pcfg := poolConfig{maxSize: 10}
	for _, o := range opts {
		o.apply(&pcfg)
	}
	if pcfg.maxSize < 1 {
		pcfg.maxSize = 1
	}

	adapter, err := resolveRuntimeAdapter(cfg)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		cfg:         cfg,
		adapter:     adapter,
		maxSize:     pcfg.maxSize,
		withSession: pcfg.withSession,
	}
	p.cond = sync.NewCond(&p.mu)

	if p.withSession {
		conn, err := p.newConnection(ctx)
		if err != nil {
			return nil, err
		}
		p.poolSessionKey = conn.SessionKey()
		p.hasPoolSession = true
		conn.poolSession = true

		p.live = 1
		p.idle = append(p.idle, conn)
	}

	return p, nil
}

// newConnection dials and opens a fresh connection. In shared-session mode
// it is pre-bound to the pool's session key so open() never mints its own.
func (p *Pool) newConnection(ctx context.Context) (*Connection, error) {
	c := &Connection{cfg: p.cfg, adapter: p.adapter}
	if p.hasPoolSession {
		c.sessionKey = p.poolSessionKey
		c.hasSession = true
		c.poolSession = true
	}

	if err := c.open(ctx, false); err != nil {
		return nil, err
	}
	return c, nil
}

// Get hands out an idle connection if one is available, otherwise grows
// the pool lazily up to the configured max, blocking if already at cap
// with nothing idle (§4.4).
func (p *Pool) Get(ctx context.Context) (*Connection, error) {
	p.mu.Lock()
	for p.live >= p.maxSize && len(p.idle) == 0 {
		p.cond.Wait()
	}

	if len(p.idle) > 0 {
		conn := p.idle[0]
		p.idle = p.idle[1:]
		p.mu.Unlock()
		return conn, nil
	}

	p.live++
	p.mu.Unlock()

	conn, err := p.newConnection(ctx)
	if err != nil {
		p.mu.Lock()
		p.live--
		p.mu.Unlock()
		p.cond.Signal()
		return nil, err
	}
	return conn, nil
}

// Put returns a connection to the idle set, waking one blocked Get.
func (p *Pool) Put(conn *Connection) {
	p.mu.Lock()
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
	p.cond.Signal()
}

// CreateConnection hands out a connection and re-opens it with soft equal
// to its own "already opened" state (§4.4): a live idle connection is
// reused without reconnecting, while one whose socket was dropped goes
// through a full handshake.
func (p *Pool) CreateConnection(ctx context.Context) (*Connection, error) {
	conn, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.Open(ctx, conn.Opened()); err != nil {
		p.Put(conn)
		return nil, err
	}
	return conn, nil
}

// CloseConnection closes conn with the given soft flag, if it is still
// open, and always returns it to the idle set.
func (p *Pool) CloseConnection(ctx context.Context, conn *Connection, soft bool) error {
	var err error
	if conn.Opened() {
		err = conn.Close(ctx, soft)
	}
	p.Put(conn)
	return err
}

// Acquire is the scoped pool-connection helper of §4.4: it checks out a
// connection, runs fn inside a WithTransaction scope, and always returns
// the connection to the pool with a soft close.
func (p *Pool) Acquire(ctx context.Context, fn func(ctx context.Context, conn *Connection) error) error {
	conn, err := p.CreateConnection(ctx)
	if err != nil {
		return wrapError(ConnectionFailure, err, "failed to acquire pooled connection")
	}

	err = conn.WithTransaction(ctx, fn)

	if closeErr := p.CloseConnection(ctx, conn, true); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// CloseAll drains the idle set and hard-closes every connection in it.
// Connections currently checked out are unaffected and will simply fail
// their next operation. When forceCommit is true, any lingering
// transaction left open by a prior caller's bug is committed rather than
// rolled back before closing. Errors and panics during drain are logged
// and swallowed so CloseAll always terminates (§4.4).
func (p *Pool) CloseAll(ctx context.Context, forceCommit bool) {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, conn := range idle {
		p.drainOne(ctx, conn, forceCommit)
		p.mu.Lock()
		p.live--
		p.mu.Unlock()
	}
}

func (p *Pool) drainOne(ctx context.Context, conn *Connection, forceCommit bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("rexpro: panic while draining pooled connection: %v", r)
		}
	}()

	if forceCommit && conn.Opened() && conn.InTransaction() {
		if _, err := conn.Execute(ctx, "g.stopTransaction(SUCCESS)", nil, WithIsolate(false), WithTransactionFlag(false)); err != nil {
			log.Printf("rexpro: error committing lingering transaction during drain: %v", err)
		}
	}

	if err := conn.Close(ctx, false); err != nil {
		log.Printf("rexpro: error closing pooled connection: %v", err)
	}
}

// Len reports the number of connections currently idle in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Live reports the number of connections the pool currently considers
// live (checked out or idle).
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}
