package artifact

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/recon/internal/job"
	"github.com/roach88/recon/internal/store"
)

// PathPrefix is the URL path artifacts are served under.
const PathPrefix = "/artifacts/"

// ErrForeignLocator is returned for a locator this store did not issue.
var ErrForeignLocator = errors.New("locator not issued by this artifact store")

// Store persists blobs under caller-chosen keys.
type Store interface {
	// Put stores content under key and returns its locator. Overwriting
	// an existing key is allowed.
	Put(ctx context.Context, key string, content []byte) (job.Locator, error)

	// SignedReadURL returns a URL that grants read access to the blob
	// behind loc until ttl elapses.
	SignedReadURL(ctx context.Context, loc job.Locator, ttl time.Duration) (string, error)
}

// DBStore keeps blobs in the SQLite artifacts table.
type DBStore struct {
	st      *store.Store
	baseURL string
	signer  *Signer
	now     func() time.Time
}

// NewDBStore creates a DBStore. baseURL is the externally reachable root
// of the HTTP server, e.g. "http://localhost:8080".
func NewDBStore(st *store.Store, baseURL string, signer *Signer) *DBStore {
	return &DBStore{
		st:      st,
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
		now:     time.Now,
	}
}

// WithClock overrides the time source used for stamps and expiries.
func (s *DBStore) WithClock(now func() time.Time) *DBStore {
	s.now = now
	return s
}

// Put implements Store.
func (s *DBStore) Put(ctx context.Context, key string, content []byte) (job.Locator, error) {
	key = strings.TrimLeft(key, "/")
	if err := s.st.PutArtifact(ctx, key, content, ContentType(key), s.now()); err != nil {
		return job.Locator{}, err
	}
	return job.Locator{URL: s.LocatorURL(key)}, nil
}

// Get returns the blob stored under key.
func (s *DBStore) Get(ctx context.Context, key string) (store.ArtifactRecord, error) {
	return s.st.GetArtifact(ctx, key)
}

// List returns stored keys under prefix, in key order.
func (s *DBStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.st.ListArtifactKeys(ctx, prefix)
}

// LocatorURL returns the unsigned URL for key. Each path segment is
// escaped, so a key holding '?', '#' or spaces still names one resource.
func (s *DBStore) LocatorURL(key string) string {
	return s.baseURL + PathPrefix + escapeKey(key)
}

// escapeKey escapes each '/'-separated segment of key for use in a URL path.
func escapeKey(key string) string {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}

// Key extracts the storage key from a locator this store issued.
func (s *DBStore) Key(loc job.Locator) (string, error) {
	root := s.baseURL + PathPrefix
	if !strings.HasPrefix(loc.URL, root) {
		return "", fmt.Errorf("%w: %s", ErrForeignLocator, loc.URL)
	}
	escaped := loc.URL[len(root):]
	if i := strings.IndexAny(escaped, "?#"); i >= 0 {
		escaped = escaped[:i]
	}
	key, err := url.PathUnescape(escaped)
	if err != nil || key == "" {
		return "", fmt.Errorf("%w: %s", ErrForeignLocator, loc.URL)
	}
	return key, nil
}

// SignedReadURL implements Store.
func (s *DBStore) SignedReadURL(ctx context.Context, loc job.Locator, ttl time.Duration) (string, error) {
	key, err := s.Key(loc)
	if err != nil {
		return "", err
	}
	if _, err := s.st.GetArtifact(ctx, key); err != nil {
		return "", err
	}
	return s.signer.SignURL(s.LocatorURL(key), key, s.now().Add(ttl)), nil
}
