// Package aggregate turns a finished external job's results into an
// ordered list of persisted artifacts.
//
// Every kind maps to exactly one result source through a table indexed by
// job.Kind. The table's length is checked against job.NumKinds at compile
// time, so adding a kind without a source does not build.
//
// Collection is strictly sequential: fetch a page, persist it, follow the
// cursor. Pages are never buffered together, and the first fetch or
// persist error aborts the whole collection.
package aggregate
