// Package reconcile applies an external job's outcome to its job
// assignment exactly once.
//
// Engine.Handle is the single entry point. For one notification it:
//
//  1. loads the assignment, failing fast if it does not exist
//  2. acquires the assignment's lock and re-loads it under the lock
//  3. skips if the assignment is already terminal
//  4. records a domain failure if the external job did not succeed
//  5. otherwise collects every result page and records completion
//  6. records a generic failure if collection or the completion write fails
//  7. releases the lock
//
// Duplicate and concurrent notifications for the same assignment are
// serialized by the lock, and the terminal check makes every one after
// the first a no-op. Notifications for different assignments never
// contend.
//
// Outcomes are returned as a Result rather than errors. Only a missing
// assignment, lock timeout, invalid notification, and context
// cancellation are returned as errors.
package reconcile
