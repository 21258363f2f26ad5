package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryJobLock implements ports.JobLock with Postgres session advisory
// locks. Advisory locks are tied to a session, so each held lock pins a
// dedicated connection from the pool until Unlock releases it. This gives
// the at-most-one-running-instance guarantee for each periodic job even
// when several service replicas share the database.
type AdvisoryJobLock struct {
	pool *pgxpool.Pool

	mu   sync.Mutex
	held map[string]*pgxpool.Conn
}

// NewAdvisoryJobLock creates a new advisory lock manager
func NewAdvisoryJobLock(pool *pgxpool.Pool) *AdvisoryJobLock {
	return &AdvisoryJobLock{
		pool: pool,
		held: make(map[string]*pgxpool.Conn),
	}
}

// TryLock acquires the named lock without blocking. Returns false when
// another session (or this one) already holds it.
func (l *AdvisoryJobLock) TryLock(ctx context.Context, jobName string) (bool, error) {
	l.mu.Lock()
	if _, ok := l.held[jobName]; ok {
		l.mu.Unlock()
		return false, nil
	}
	l.mu.Unlock()

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection for job lock: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, lockKey(jobName)).Scan(&acquired); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock %q: %w", jobName, err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}

	l.mu.Lock()
	l.held[jobName] = conn
	l.mu.Unlock()
	return true, nil
}

// Unlock releases the named lock and returns its connection to the pool
func (l *AdvisoryJobLock) Unlock(ctx context.Context, jobName string) error {
	l.mu.Lock()
	conn, ok := l.held[jobName]
	delete(l.held, jobName)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, lockKey(jobName)); err != nil {
		return fmt.Errorf("advisory unlock %q: %w", jobName, err)
	}
	return nil
}

// lockKey maps a job name onto the bigint keyspace advisory locks use
func lockKey(jobName string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(jobName))
	return int64(h.Sum64())
}
