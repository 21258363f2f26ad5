package ports

import "context"

// JobLock guarantees at most one concurrently-running instance of a given
// periodic job. An overlapping trigger of the same job must observe the
// lock as held and skip its run; without this guarantee a concurrent
// sweeper could double-advance a renewal or double-fire a reminder.
type JobLock interface {
	// TryLock acquires the named lock without blocking. Returns false when
	// another instance of the job already holds it.
	TryLock(ctx context.Context, jobName string) (bool, error)

	// Unlock releases the named lock
	Unlock(ctx context.Context, jobName string) error
}
