// Package job provides the data model shared by every reconciliation component.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import job; job imports nothing internal.
//
// Key constraints:
//   - Completed, Failed and Canceled are terminal: no transition leaves them
//   - JobOutput is written only on the transition to Completed
//   - Error is written only on the transition to Failed
//   - Tracker is carried through untouched and never interpreted
package job
