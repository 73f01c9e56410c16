package interfaces

import (
	"context"
	"time"
)

// ObjectFetcher retrieves the raw bytes of an object addressed by bucket and key
type ObjectFetcher interface {
	// Fetch downloads the whole object into memory
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)

	// PresignGet returns an opaque URL granting read access until expiry
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}
