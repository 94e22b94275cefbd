// Package pool implements the connection pool and branch coordinator
// (spec §4.1): two sub-pools over the versioned SQL backend — ephemeral
// connections with no branch affinity, and persistent connections
// pinned to a single branch for the lifetime of a session.
package pool

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"

	"github.com/cognisys/memorybank/internal/config"
	"github.com/cognisys/memorybank/internal/errs"
)

// Mode selects which sub-pool an acquisition is drawn from.
type Mode int

const (
	// Ephemeral connections have no branch affinity; the caller must
	// issue its own checkout if it needs a specific branch.
	Ephemeral Mode = iota
	// Persistent connections stay pinned to one branch across calls
	// until explicitly released.
	Persistent
)

// Conn is a checked-out connection, still aware of the branch it is
// currently pinned to (spec §4.1).
type Conn struct {
	*sql.Conn
	Branch string
	mode   Mode
	pool   *Pool
}

// Release returns the connection to its originating sub-pool. Ephemeral
// connections are closed outright; persistent connections are returned
// to the persistent semaphore for reuse.
func (c *Conn) Release() {
	if c == nil {
		return
	}
	switch c.mode {
	case Persistent:
		c.pool.releasePersistent(c)
	default:
		_ = c.Conn.Close()
		c.pool.ephemeralSem.release()
	}
}

// Pool is the C1 connection pool and branch coordinator. It owns a
// single *sql.DB to the backend and layers two admission-controlled
// sub-pools on top of it.
type Pool struct {
	db     *sql.DB
	cfg    *config.Config
	logger *slog.Logger

	ephemeralSem *semaphore

	mu           sync.Mutex
	persistent   map[string][]*Conn // branch -> idle persistent conns pinned to it
	persistentN  int                // total persistent conns outstanding + idle
}

// New opens the backend connection and builds the two sub-pools.
func New(cfg *config.Config, logger *slog.Logger) (*Pool, error) {
	db, err := sql.Open("mysql", cfg.Backend.DSN())
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionError, "opening backend connection", err)
	}
	db.SetMaxOpenConns(cfg.Pool.PersistentMax + cfg.Pool.EphemeralMax)
	db.SetMaxIdleConns(cfg.Pool.PersistentMax + cfg.Pool.EphemeralMax)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Connection.Timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, errs.Wrap(errs.ConnectionError, "pinging backend on startup", err)
	}

	return &Pool{
		db:           db,
		cfg:          cfg,
		logger:       logger,
		ephemeralSem: newSemaphore(cfg.Pool.EphemeralMax),
		persistent:   make(map[string][]*Conn),
	}, nil
}

// Close releases the underlying *sql.DB. Intended for shutdown only.
func (p *Pool) Close() error {
	return p.db.Close()
}

// DB exposes the shared *sql.DB for components (C2's schema registry,
// the reconciler) that issue their own statements outside the checkout
// protocol.
func (p *Pool) DB() *sql.DB { return p.db }

// Acquire checks out a connection pinned to branch, retrying once on a
// connection error per spec §4.1 — a dropped connection is replaced and
// the branch checkout re-applied before the caller sees an error.
func (p *Pool) Acquire(ctx context.Context, branch string, mode Mode) (*Conn, error) {
	if mode == Persistent {
		if c := p.tryReusePersistent(branch); c != nil {
			return c, nil
		}
		if err := p.ephemeralGateForPersistent(ctx); err != nil {
			return nil, err
		}
	} else {
		if err := p.ephemeralSem.acquire(ctx); err != nil {
			return nil, errs.Wrap(errs.ConnectionError, "waiting for ephemeral connection slot", err)
		}
	}

	conn, err := p.acquireWithRetry(ctx, branch)
	if err != nil {
		if mode == Ephemeral {
			p.ephemeralSem.release()
		} else {
			p.mu.Lock()
			p.persistentN--
			p.mu.Unlock()
		}
		return nil, err
	}
	conn.mode = mode
	conn.pool = p
	return conn, nil
}

// acquireWithRetry pulls a raw *sql.Conn and checks it out onto branch,
// retrying exactly once if the first attempt fails with a connection
// error (spec §4.1, §7: ConnectionError is the sole retried Kind).
func (p *Pool) acquireWithRetry(ctx context.Context, branch string) (*Conn, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		conn, err := p.checkout(ctx, branch)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if !errs.IsConnectionError(err) {
			return nil, err
		}
		p.logger.Warn("connection error acquiring pool connection, retrying once",
			"branch", branch, "attempt", attempt, "error", err)
	}
	return nil, errs.Wrap(errs.BranchContextLost,
		fmt.Sprintf("failed to restore branch context for %q after retry", branch), lastErr)
}

func (p *Pool) checkout(ctx context.Context, branch string) (*Conn, error) {
	raw, err := p.db.Conn(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionError, "obtaining raw connection", err)
	}
	if err := checkoutBranch(ctx, raw, branch); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Conn{Conn: raw, Branch: branch}, nil
}

// checkoutBranch switches the session's active branch using Dolt's
// CALL DOLT_CHECKOUT procedure. It does not create a missing branch;
// any failure of the single CALL is returned as a ConnectionError.
func checkoutBranch(ctx context.Context, conn *sql.Conn, branch string) error {
	_, err := conn.ExecContext(ctx, "CALL DOLT_CHECKOUT(?)", branch)
	if err == nil {
		return nil
	}
	return errs.Wrap(errs.ConnectionError, fmt.Sprintf("checking out branch %q", branch), err)
}

func (p *Pool) tryReusePersistent(branch string) *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	idle := p.persistent[branch]
	if len(idle) == 0 {
		return nil
	}
	c := idle[len(idle)-1]
	p.persistent[branch] = idle[:len(idle)-1]
	return c
}

func (p *Pool) ephemeralGateForPersistent(ctx context.Context) error {
	p.mu.Lock()
	if p.persistentN < p.cfg.Pool.PersistentMax {
		p.persistentN++
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return errs.New(errs.ConnectionError, "persistent pool exhausted").
		WithDetails(map[string]any{"max": p.cfg.Pool.PersistentMax})
}

func (p *Pool) releasePersistent(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.persistent[c.Branch] = append(p.persistent[c.Branch], c)
}

// Rebind moves a persistent connection to a new branch, used by
// checkout_branch (spec §4.4). On failure the connection is dropped and
// BranchContextLost is returned so the caller knows the session's
// branch pin no longer holds.
func (p *Pool) Rebind(ctx context.Context, c *Conn, newBranch string) error {
	op := func() error {
		return checkoutBranch(ctx, c.Conn, newBranch)
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		_ = c.Conn.Close()
		return errs.Wrap(errs.BranchContextLost,
			fmt.Sprintf("rebinding persistent connection to branch %q", newBranch), err)
	}
	c.Branch = newBranch
	return nil
}

// Stats reports current pool occupancy, surfaced by the health tool.
type Stats struct {
	EphemeralInUse  int
	EphemeralMax    int
	PersistentInUse int
	PersistentMax   int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	idle := 0
	for _, conns := range p.persistent {
		idle += len(conns)
	}
	return Stats{
		EphemeralInUse:  p.ephemeralSem.inUse(),
		EphemeralMax:    p.cfg.Pool.EphemeralMax,
		PersistentInUse: p.persistentN - idle,
		PersistentMax:   p.cfg.Pool.PersistentMax,
	}
}

// semaphore is a small counting semaphore used to cap the ephemeral
// sub-pool without pulling in a separate dependency for it.
type semaphore struct {
	ch chan struct{}
}

func newSemaphore(n int) *semaphore {
	return &semaphore{ch: make(chan struct{}, n)}
}

func (s *semaphore) acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *semaphore) release() {
	select {
	case <-s.ch:
	default:
	}
}

func (s *semaphore) inUse() int { return len(s.ch) }
