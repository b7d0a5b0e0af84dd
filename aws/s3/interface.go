package s3

import (
	"context"
	"errors"
	"io"
)

var ErrKeyNotFound = errors.New("key not found")

type BasicClient interface {
	Opener
	Putter
}

type Opener interface {
	// Open streams the object. It returns ErrKeyNotFound if the given key doesn't exist.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type Putter interface {
	// Put writes body to key, replacing any existing object.
	Put(ctx context.Context, key string, body io.ReadSeeker, contentType string) error
}
