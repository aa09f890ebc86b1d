// Package ledger records which keys under a destination root have been
// fetched, so an interrupted or repeated run skips completed work.
//
// The ledger lives at root/ledger.json as indented JSON mapping each key to
// its status (pending, done, failed), failure reason and kind, artifact
// path and attempt count. Every state change is flushed with a
// write-to-temp, fsync, rename sequence, so a crash leaves either the old
// or the new file on disk and never a partial one.
//
// A key is marked done only after its artifact is in place. Failed keys
// stay in the file with their reason and are retried by the next run.
//
// At most one process may write a given ledger at a time. No file
// locking is performed.
package ledger
