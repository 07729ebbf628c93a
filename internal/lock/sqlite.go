package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/recon/internal/store"
)

// Clock supplies the wall time leases are measured against.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// SQLiteLocker stores lock records in the store's mutexes table.
type SQLiteLocker struct {
	store *store.Store
	clock Clock
}

// NewSQLiteLocker creates a Locker over st. A nil clock uses SystemClock.
func NewSQLiteLocker(st *store.Store, clock Clock) *SQLiteLocker {
	if clock == nil {
		clock = SystemClock{}
	}
	return &SQLiteLocker{store: st, clock: clock}
}

// TryAcquire implements Locker.
func (l *SQLiteLocker) TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	return l.store.TryAcquireMutex(ctx, name, holder, l.clock.Now(), ttl)
}

// Release implements Locker.
func (l *SQLiteLocker) Release(ctx context.Context, name, holder string) error {
	released, err := l.store.ReleaseMutex(ctx, name, holder)
	if err != nil {
		return err
	}
	if !released {
		// The lease expired and someone else took over, or it was
		// already released.
		slog.Debug("mutex not owned at release", "name", name, "holder", holder)
	}
	return nil
}
