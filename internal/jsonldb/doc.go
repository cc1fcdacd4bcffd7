// Package jsonldb provides a generic, concurrent-safe, JSONL-backed data store.
//
// # Overview
//
// The package centers around [Table], a generic container that stores rows in a
// JSONL (JSON Lines) file with full in-memory caching for fast reads. Tables are
// safe for concurrent use by multiple goroutines.
//
// # Concurrency: Pessimistic Locking
//
// Table uses pessimistic locking: [Table.Modify] holds the write lock for the
// entire read-modify-write operation. This guarantees success without retries,
// unlike optimistic CAS which requires retry loops when concurrent writes collide.
// The tradeoff is lower throughput under high contention, but this is acceptable
// for local file storage with low concurrency.
//
// # Secondary Indexes
//
// [UniqueIndex], [Index] and [MultiIndex] provide O(1) lookups by arbitrary
// keys, staying synchronized with table mutations via [TableObserver].
//
// # Change Streams
//
// [Table.Watch] returns a [Stream] of mutation events delivered in commit
// order. Streams have a bounded buffer; a stream that falls too far behind is
// marked lost and its consumer must re-subscribe.
//
// # Blobs
//
// [BlobStore] keeps opaque binary payloads outside the JSONL files. Rows
// reference blobs through the [Blob] value type, which serializes as its
// handle only.
package jsonldb
