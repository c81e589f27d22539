// Package registry contains concrete implementations of core.FileRegistry,
// the per-session catalogue of uploaded tables.
//
// DiskStore is the durable backend: each registered file owns a directory
// holding a metadata record, the table payload in parquet (columnar, compact
// and cheap to re-read column-wise) and an append-only collection of saved
// analysis results. InMemoryStore mirrors the same contract for tests and
// single-process demos.
//
// Registration delegates the per-session file-count check to the
// SessionStore, so the check and the reference insert happen atomically
// under the store's per-session discipline.
package registry
