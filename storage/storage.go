// Package storage is the object-store collaborator of the converter.
package storage

import (
	"context"
)

// Store fetches and stores whole objects. Put must be atomic: afterwards the
// object holds the new bytes, or Put returned an error.
type Store interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
}
