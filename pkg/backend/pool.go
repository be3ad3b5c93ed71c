package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
)

// Pool implements the pooled networked backend variant shared by the mysql,
// postgres and sqlserver kinds. It owns a fixed-size database/sql pool and a
// registry of the connections currently borrowed from it.
//
// Every Query borrows a dedicated connection and releases it on return,
// whether the query succeeded or not. Close force-closes connections that are
// still registered and invalidates the pool.
type Pool struct {
	kind   Kind
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	db     *sql.DB
	active map[*sql.Conn]struct{}
}

// OpenPool opens a pool of size connections using the given driver and DSN
// and verifies it with a ping.
func OpenPool(ctx context.Context, kind Kind, driver, dsn string, s Settings, logger *slog.Logger) (*Pool, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &QueryError{Kind: string(kind), Err: fmt.Errorf("failed to open connection pool: %w", err)}
	}

	size := s.EffectivePoolSize()
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &QueryError{Kind: string(kind), Err: fmt.Errorf("failed to ping: %w", err)}
	}

	name := s.PoolName
	if name == "" {
		name = "pool"
	}
	return NewPool(kind, db, name, logger), nil
}

// NewPool wraps an already opened *sql.DB.
// A nil logger uses a discard logger.
func NewPool(kind Kind, db *sql.DB, name string, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pool{
		kind:   kind,
		name:   name,
		logger: logger.With(slog.String("pool", name)),
		db:     db,
		active: make(map[*sql.Conn]struct{}),
	}
}

// Query borrows a connection, executes text and releases the connection.
func (p *Pool) Query(ctx context.Context, text string) ([]Row, error) {
	conn, err := p.borrow(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release(conn)

	p.logger.Debug("executing query", slog.String("query", text))

	//nolint:rowserrcheck // ScanRows checks rows.Err()
	rows, err := conn.QueryContext(ctx, text)
	if err != nil {
		p.logger.Error("query failed", slog.String("error", err.Error()))
		return nil, &QueryError{Kind: string(p.kind), Err: err}
	}
	defer func() { _ = rows.Close() }()

	results, err := ScanRows(rows)
	if err != nil {
		return nil, &QueryError{Kind: string(p.kind), Err: err}
	}
	return results, nil
}

// Ping verifies that the pool can still reach the database.
func (p *Pool) Ping(ctx context.Context) error {
	p.mu.Lock()
	db := p.db
	p.mu.Unlock()
	if db == nil {
		return ErrClosed
	}
	if err := db.PingContext(ctx); err != nil {
		return &QueryError{Kind: string(p.kind), Err: err}
	}
	return nil
}

// ActiveCount returns the number of connections currently borrowed.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Close closes any connection still borrowed and then the pool itself.
// Calling Close more than once is safe.
func (p *Pool) Close() error {
	p.mu.Lock()
	db := p.db
	if db == nil {
		p.mu.Unlock()
		return nil
	}
	p.db = nil
	abandoned := make([]*sql.Conn, 0, len(p.active))
	for conn := range p.active {
		abandoned = append(abandoned, conn)
	}
	p.active = make(map[*sql.Conn]struct{})
	p.mu.Unlock()

	for _, conn := range abandoned {
		if err := conn.Close(); err != nil {
			p.logger.Warn("error closing connection", slog.String("error", err.Error()))
		}
	}

	p.logger.Debug("closing connection pool", slog.Int("abandoned", len(abandoned)))
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close %s pool: %w", p.kind, err)
	}
	return nil
}

func (p *Pool) borrow(ctx context.Context) (*sql.Conn, error) {
	p.mu.Lock()
	db := p.db
	p.mu.Unlock()
	if db == nil {
		return nil, ErrClosed
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, &QueryError{Kind: string(p.kind), Err: fmt.Errorf("failed to borrow connection: %w", err)}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		// Close ran while we were waiting for a connection.
		_ = conn.Close()
		return nil, ErrClosed
	}
	p.active[conn] = struct{}{}
	return conn, nil
}

func (p *Pool) release(conn *sql.Conn) {
	p.mu.Lock()
	delete(p.active, conn)
	p.mu.Unlock()

	// Returns sql.ErrConnDone if Close already closed it.
	_ = conn.Close()
}
