package lock

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultEtcdPrefix namespaces lock keys in etcd.
const DefaultEtcdPrefix = "/recon/locks"

// EtcdLocker stores lock records as etcd keys bound to a lease.
//
// Acquisition is a transaction that puts the key only if it has never been
// created (CreateRevision == 0). Expiry is enforced by etcd revoking the
// lease, which deletes the key.
type EtcdLocker struct {
	client *clientv3.Client
	prefix string

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID
}

// NewEtcdLocker connects to the given endpoints.
func NewEtcdLocker(endpoints []string, dialTimeout time.Duration, prefix string) (*EtcdLocker, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	return NewEtcdLockerWithClient(cli, prefix), nil
}

// NewEtcdLockerWithClient wraps an existing client.
func NewEtcdLockerWithClient(cli *clientv3.Client, prefix string) *EtcdLocker {
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	return &EtcdLocker{
		client: cli,
		prefix: prefix,
		leases: make(map[string]clientv3.LeaseID),
	}
}

// Close closes the underlying client.
func (l *EtcdLocker) Close() error {
	return l.client.Close()
}

func (l *EtcdLocker) key(name string) string {
	return l.prefix + "/" + name
}

// TryAcquire implements Locker.
func (l *EtcdLocker) TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	key := l.key(name)

	seconds := int64(math.Ceil(ttl.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	lease, err := l.client.Grant(ctx, seconds)
	if err != nil {
		return false, fmt.Errorf("grant lease: %w", err)
	}

	resp, err := l.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, holder, clientv3.WithLease(lease.ID))).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		l.revoke(lease.ID)
		return false, fmt.Errorf("acquire %s: %w", key, err)
	}

	if !resp.Succeeded {
		l.revoke(lease.ID)
		kvs := resp.Responses[0].GetResponseRange().Kvs
		if len(kvs) > 0 && string(kvs[0].Value) == holder {
			// Re-entrant acquire: refresh the lease we already hold.
			if id, ok := l.lease(key, holder); ok {
				if _, err := l.client.KeepAliveOnce(ctx, id); err != nil {
					return false, fmt.Errorf("renew %s: %w", key, err)
				}
			}
			return true, nil
		}
		return false, nil
	}

	l.mu.Lock()
	l.leases[key+"\x00"+holder] = lease.ID
	l.mu.Unlock()
	return true, nil
}

// Release implements Locker.
func (l *EtcdLocker) Release(ctx context.Context, name, holder string) error {
	key := l.key(name)

	_, err := l.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", holder)).
		Then(clientv3.OpDelete(key)).
		Commit()
	if err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}

	if id, ok := l.lease(key, holder); ok {
		l.mu.Lock()
		delete(l.leases, key+"\x00"+holder)
		l.mu.Unlock()
		l.revoke(id)
	}
	return nil
}

func (l *EtcdLocker) lease(key, holder string) (clientv3.LeaseID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.leases[key+"\x00"+holder]
	return id, ok
}

func (l *EtcdLocker) revoke(id clientv3.LeaseID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = l.client.Revoke(ctx, id)
}
