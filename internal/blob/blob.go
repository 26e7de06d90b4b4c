package blob

import (
	"context"
	"errors"
	"io"
)

// ErrDisabled is returned by the noop store when no bucket is configured.
var ErrDisabled = errors.New("object store disabled")

// Store uploads binary blobs and returns retrievable URLs. Delete is
// best-effort; deleting an absent object is not an error for callers.
type Store interface {
	Upload(ctx context.Context, path string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
}

// Disabled is the Store used when no bucket is configured. Uploads fail,
// deletes succeed silently.
type Disabled struct{}

func (Disabled) Upload(ctx context.Context, path string, r io.Reader, contentType string) (string, error) {
	return "", ErrDisabled
}

func (Disabled) Delete(ctx context.Context, path string) error {
	return nil
}
