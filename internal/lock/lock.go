package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a lock could not be acquired within the
// coordinator's timeout.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// UnlockError reports that work under a lock finished but the release
// failed. The lease still bounds how long the record stays held.
type UnlockError struct {
	Name string
	Err  error
}

func (e *UnlockError) Error() string {
	return fmt.Sprintf("unlock %s: %v", e.Name, e.Err)
}

func (e *UnlockError) Unwrap() error { return e.Err }

// Defaults for Coordinator options.
const (
	DefaultLeaseTTL        = 15 * time.Minute
	DefaultTimeout         = 60 * time.Second
	DefaultPollInterval    = 50 * time.Millisecond
	DefaultMaxPollInterval = 2 * time.Second
)

// Locker is a backend providing non-blocking conditional lock writes.
//
// TryAcquire must succeed only if no unexpired record exists for name or
// holder already owns it. Release must remove the record only if holder
// still owns it, and must be idempotent.
type Locker interface {
	TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, holder string) error
}

// Coordinator turns a Locker into blocking, bounded lock acquisition.
//
// Thread-safety: Coordinator is safe for concurrent use.
type Coordinator struct {
	locker          Locker
	leaseTTL        time.Duration
	timeout         time.Duration
	pollInterval    time.Duration
	maxPollInterval time.Duration
	logger          *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLeaseTTL sets how long an acquired lock stays valid without release.
func WithLeaseTTL(d time.Duration) Option {
	return func(c *Coordinator) { c.leaseTTL = d }
}

// WithTimeout bounds how long Lock waits before returning ErrLockTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithPollInterval sets the first and maximum retry delay while waiting.
// The delay doubles after each failed attempt up to max.
func WithPollInterval(first, max time.Duration) Option {
	return func(c *Coordinator) {
		c.pollInterval = first
		c.maxPollInterval = max
	}
}

// WithLogger sets the logger used for lock diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator creates a Coordinator over the given backend.
func NewCoordinator(locker Locker, opts ...Option) *Coordinator {
	c := &Coordinator{
		locker:          locker,
		leaseTTL:        DefaultLeaseTTL,
		timeout:         DefaultTimeout,
		pollInterval:    DefaultPollInterval,
		maxPollInterval: DefaultMaxPollInterval,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxPollInterval < c.pollInterval {
		c.maxPollInterval = c.pollInterval
	}
	return c
}

// Handle represents one acquired lock. Unlock is idempotent.
type Handle struct {
	Name       string
	Holder     string
	AcquiredAt time.Time
	Lease      time.Duration

	c    *Coordinator
	once sync.Once
	err  error
}

// Lock blocks until name is acquired for holder, the timeout elapses
// (ErrLockTimeout), or ctx is done (ctx.Err()).
func (c *Coordinator) Lock(ctx context.Context, name, holder string) (*Handle, error) {
	if name == "" || holder == "" {
		return nil, fmt.Errorf("lock: name and holder are required")
	}

	deadline := time.Now().Add(c.timeout)
	delay := c.pollInterval
	attempts := 0

	for {
		attempts++
		ok, err := c.locker.TryAcquire(ctx, name, holder, c.leaseTTL)
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", name, err)
		}
		if ok {
			c.logger.Debug("lock acquired",
				"name", name,
				"holder", holder,
				"attempts", attempts,
			)
			return &Handle{
				Name:       name,
				Holder:     holder,
				AcquiredAt: time.Now(),
				Lease:      c.leaseTTL,
				c:          c,
			}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.logger.Warn("lock timeout",
				"name", name,
				"holder", holder,
				"attempts", attempts,
				"timeout", c.timeout,
			)
			return nil, fmt.Errorf("lock %s after %s: %w", name, c.timeout, ErrLockTimeout)
		}
		wait := min(delay, remaining)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, c.maxPollInterval)
	}
}

// Unlock releases the lock. Only the first call reaches the backend;
// later calls return the first call's result.
func (h *Handle) Unlock(ctx context.Context) error {
	h.once.Do(func() {
		h.err = h.c.locker.Release(ctx, h.Name, h.Holder)
		if h.err != nil {
			h.c.logger.Error("lock release failed",
				"name", h.Name,
				"holder", h.Holder,
				"error", h.err,
			)
			return
		}
		h.c.logger.Debug("lock released",
			"name", h.Name,
			"holder", h.Holder,
			"held", time.Since(h.AcquiredAt),
		)
	})
	return h.err
}

// keepAlive renews the lease every third of its TTL until the returned
// func is called. The returned func waits for the renewal loop to exit.
func (h *Handle) keepAlive(ctx context.Context) (stop func()) {
	interval := h.Lease / 3
	if interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			ok, err := h.c.locker.TryAcquire(ctx, h.Name, h.Holder, h.Lease)
			switch {
			case err != nil:
				if ctx.Err() == nil {
					h.c.logger.Warn("lock renewal failed",
						"name", h.Name,
						"holder", h.Holder,
						"error", err,
					)
				}
			case !ok:
				h.c.logger.Error("lock lost to another holder",
					"name", h.Name,
					"holder", h.Holder,
				)
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// WithLock acquires name for holder, runs fn, and releases the lock on
// every exit path, including a panic in fn. Release runs even when ctx
// was cancelled while fn ran. The lease is renewed while fn runs.
//
// fn's error is returned as is; a release error is returned as an
// *UnlockError only when fn succeeded.
func (c *Coordinator) WithLock(ctx context.Context, name, holder string, fn func(ctx context.Context) error) (err error) {
	h, err := c.Lock(ctx, name, holder)
	if err != nil {
		return err
	}
	stop := h.keepAlive(ctx)
	defer func() {
		stop()
		relErr := h.Unlock(context.WithoutCancel(ctx))
		if err == nil && relErr != nil {
			err = &UnlockError{Name: name, Err: relErr}
		}
	}()
	return fn(ctx)
}
