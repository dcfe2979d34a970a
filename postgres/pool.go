package postgres

import (
	"context"
	"net"

	"github.com/domsolutions/wtxgo/pool"
)

// Dialer opens the raw transport for a pooled Executor; a caller wiring in
// TLS does so here before handing the net.Conn back.
type Dialer func(cfg Config) (net.Conn, error)

// executorManager implements pool.ResourceManager for *Executor: Create
// dials and authenticates a fresh connection; IsInvalid checks the
// Executor's closed flag (Executor.IsClosed); Recycle dials
// and authenticates a replacement, since a connection that failed its
// wire protocol can't be repaired in place (spec §4.13: "any protocol
// violation ... transitioned to Closed").
type executorManager struct {
	cfg       Config
	dial      Dialer
	stmtCache int
	rng       func([]byte)
}

func (m *executorManager) connect() (*Executor, error) {
	conn, err := m.dial(m.cfg)
	if err != nil {
		return nil, err
	}
	exec := NewExecutor(conn, m.stmtCache)
	if err := exec.Connect(m.cfg, m.rng); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return exec, nil
}

func (m *executorManager) Create(Config) (*Executor, error) {
	return m.connect()
}

func (m *executorManager) IsInvalid(e **Executor) bool {
	return (*e).IsClosed()
}

func (m *executorManager) Recycle(_ struct{}, e **Executor) error {
	fresh, err := m.connect()
	if err != nil {
		return err
	}
	_ = (*e).Close()
	*e = fresh
	return nil
}

// ExecutorPool is a fixed-capacity pool of authenticated Executors (spec
// §2's C3, "a bounded set of equivalent, reusable resources checked out
// and back in"), applied here to Postgres connection acquisition: callers
// go through Get/Release instead of dialing and authenticating a fresh
// Executor per request.
type ExecutorPool struct {
	inner *pool.SimplePool[*Executor, Config, struct{}]
	cfg   Config
}

// NewExecutorPool builds a pool of capacity connections against cfg,
// dialing with dial and authenticating with the given nonce source.
func NewExecutorPool(capacity int, cfg Config, dial Dialer, stmtCacheCapacity int, rng func([]byte)) *ExecutorPool {
	mgr := &executorManager{cfg: cfg, dial: dial, stmtCache: stmtCacheCapacity, rng: rng}
	return &ExecutorPool{
		inner: pool.New[*Executor, Config, struct{}](capacity, mgr),
		cfg:   cfg,
	}
}

// PooledExecutor wraps a checked-out Executor; Release must be called
// exactly once to return it to the pool.
type PooledExecutor struct {
	guard *pool.Guard[*Executor, Config, struct{}]
}

// Executor returns the checked-out connection.
func (p *PooledExecutor) Executor() *Executor { return *p.guard.Deref() }

// Release returns the connection to the pool.
func (p *PooledExecutor) Release() { p.guard.Release() }

// Get checks out a connection, blocking until one is free or ctx is done.
// A slot whose Executor has gone Closed since its last use is transparently
// reconnected by executorManager.Recycle before being handed back.
func (ep *ExecutorPool) Get(ctx context.Context) (*PooledExecutor, error) {
	g, err := ep.inner.Get(ctx, ep.cfg, struct{}{})
	if err != nil {
		return nil, err
	}
	return &PooledExecutor{guard: g}, nil
}
