package store

import (
	"context"
	"fmt"
	"time"
)

// MutexRecord is the persisted ownership record of one named mutex.
type MutexRecord struct {
	Name       string
	Holder     string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the lease has lapsed at now.
func (m MutexRecord) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// TryAcquireMutex attempts to take the named mutex for holder until
// now+ttl. It never blocks on contention.
//
// The conditional write succeeds when:
//   - no record exists for name
//   - the existing record's lease expired at now (takeover)
//   - holder already owns the record (lease renewal)
//
// Returns acquired=false, err=nil when another live holder owns it.
func (s *Store) TryAcquireMutex(ctx context.Context, name, holder string, now time.Time, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("acquire mutex %s: ttl must be positive", name)
	}
	nowMs := now.UnixMilli()
	expiresMs := now.Add(ttl).UnixMilli()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO mutexes (name, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			holder      = excluded.holder,
			acquired_at = excluded.acquired_at,
			expires_at  = excluded.expires_at
		WHERE mutexes.expires_at <= ? OR mutexes.holder = excluded.holder
	`, name, holder, nowMs, expiresMs, nowMs)
	if err != nil {
		return false, fmt.Errorf("acquire mutex %s: %w", name, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire mutex %s: rows affected: %w", name, err)
	}
	return n > 0, nil
}

// ReleaseMutex deletes the named mutex if holder still owns it.
// Releasing a mutex that is absent or owned by someone else is a no-op
// and reports released=false.
func (s *Store) ReleaseMutex(ctx context.Context, name, holder string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM mutexes WHERE name = ? AND holder = ?
	`, name, holder)
	if err != nil {
		return false, fmt.Errorf("release mutex %s: %w", name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release mutex %s: rows affected: %w", name, err)
	}
	return n > 0, nil
}

// ReadMutex returns the current record for name.
// Returns sql.ErrNoRows (wrapped) if nobody holds it.
func (s *Store) ReadMutex(ctx context.Context, name string) (MutexRecord, error) {
	var rec MutexRecord
	var acquiredMs, expiresMs int64
	err := s.db.QueryRowContext(ctx, `
		SELECT name, holder, acquired_at, expires_at FROM mutexes WHERE name = ?
	`, name).Scan(&rec.Name, &rec.Holder, &acquiredMs, &expiresMs)
	if err != nil {
		return MutexRecord{}, fmt.Errorf("read mutex %s: %w", name, err)
	}
	rec.AcquiredAt = time.UnixMilli(acquiredMs).UTC()
	rec.ExpiresAt = time.UnixMilli(expiresMs).UTC()
	return rec, nil
}
