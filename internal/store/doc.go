// Package store provides SQLite-backed durable storage for reconciliation.
//
// The store holds three tables:
//   - job_assignments: one row per job assignment, JSON-encoded bags
//   - mutexes: lease-bounded exclusive ownership records
//   - artifacts: append-mostly blobs for persisted result pages
//
// # Invariants
//
// Terminal rows are immutable: PutAssignment refuses to overwrite a row
// whose status is Completed, Failed or Canceled and reports job.ErrTerminal.
//
// A mutex row is taken only by a conditional write that succeeds when no
// row exists, the existing row's lease expired, or the caller already
// holds it. Release deletes only the caller's own row.
//
// # Connection settings
//
// Open passes WAL journaling, synchronous=NORMAL, a 5s busy timeout and
// foreign key enforcement as DSN parameters. Schema changes are numbered
// migrations tracked in PRAGMA user_version.
package store
