package port

import "context"

// DocumentStore is durable storage for uploaded files. A handle, once
// issued, must always resolve to the same bytes.
type DocumentStore interface {
	Store(ctx context.Context, content []byte, contentType string) (handle string, err error)
	Fetch(ctx context.Context, handle string) ([]byte, error)
	Exists(ctx context.Context, handle string) bool
}
