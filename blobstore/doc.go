// Package blobstore provides storage abstraction for index snapshots.
//
// BlobStore is the interface for reading and writing snapshot blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: Local filesystem with atomic rename on write
//   - MemoryStore: In-memory store for testing
//   - minio.Store: MinIO and S3-compatible object storage
package blobstore
