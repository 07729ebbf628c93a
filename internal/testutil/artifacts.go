package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/recon/internal/job"
)

// MemArtifacts is an in-memory artifact store that records write order.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemArtifacts struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	order   []string
	failKey string
	failErr error
}

// NewMemArtifacts creates an empty store.
func NewMemArtifacts() *MemArtifacts {
	return &MemArtifacts{blobs: make(map[string][]byte)}
}

// FailOn makes Put of key return err.
func (m *MemArtifacts) FailOn(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failKey = key
	m.failErr = err
}

// Put stores content and returns a mem:// locator.
func (m *MemArtifacts) Put(_ context.Context, key string, content []byte) (job.Locator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil && key == m.failKey {
		return job.Locator{}, m.failErr
	}
	m.blobs[key] = append([]byte(nil), content...)
	m.order = append(m.order, key)
	return job.Locator{URL: "mem://" + key}, nil
}

// SignedReadURL returns the locator URL with a fake expiry.
func (m *MemArtifacts) SignedReadURL(_ context.Context, loc job.Locator, ttl time.Duration) (string, error) {
	return fmt.Sprintf("%s?ttl=%d", loc.URL, int64(ttl.Seconds())), nil
}

// Keys returns keys in the order they were written.
func (m *MemArtifacts) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Blob returns the content under key.
func (m *MemArtifacts) Blob(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	return b, ok
}
