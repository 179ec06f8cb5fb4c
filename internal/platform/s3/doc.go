// Package s3 provides a client for S3-compatible object storage.
//
// It backs the object store variant of the deployment store: one JSON
// object per spoke under a common key prefix. Any S3-compatible endpoint
// works; path-style addressing is available for stores that need it.
package s3
