// Package lock provides named, holder-identified exclusive locks with a
// bounded lease.
//
// A Coordinator serializes all work for the same name across processes by
// delegating to a Locker backend whose TryAcquire is a single conditional
// write. Different names never contend.
//
// Every lock carries an expiry. A holder that crashes without releasing
// strands its lock for at most the lease TTL; the next acquirer after
// expiry takes it over. Acquisition itself is bounded by a timeout and
// fails with ErrLockTimeout.
//
// Callers should prefer WithLock, which renews the lease while its work
// runs and releases on every exit path including panics, over pairing
// Lock and Unlock by hand.
package lock
