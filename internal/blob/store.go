package blob

import (
	"context"
	"errors"
)

var (
	ErrFileTooLarge   = errors.New("blob file too large")
	ErrDisallowedType = errors.New("disallowed blob mime type")
	ErrExecutableFile = errors.New("executable files are not allowed")
	ErrInvalidPath    = errors.New("invalid blob path")
	ErrInvalidImage   = errors.New("invalid image data")
	ErrNotFound       = errors.New("blob not found")
)

// Asset is a stored media file. URL is what clients fetch; PublicID is the
// handle the store needs to delete it later.
type Asset struct {
	URL      string
	PublicID string
}

// Store uploads files from a local path and deletes them by public id.
type Store interface {
	Upload(ctx context.Context, localPath string) (*Asset, error)
	Delete(ctx context.Context, publicID string) error
}
