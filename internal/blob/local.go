package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"streamhub/internal/db"
	"streamhub/internal/mediaurl"
)

const imagesDir = "images"

// LocalStore keeps uploads on disk under rootDir and exposes them through
// the /media/ route.
type LocalStore struct {
	rootDir        string
	baseURL        string
	maxUploadBytes int64
}

func NewLocalStore(rootDir, baseURL string, maxUploadBytes int64) (*LocalStore, error) {
	if strings.TrimSpace(rootDir) == "" {
		return nil, fmt.Errorf("blob root directory is required")
	}
	if maxUploadBytes <= 0 {
		return nil, fmt.Errorf("max upload bytes must be > 0")
	}

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root directory: %w", err)
	}

	return &LocalStore{
		rootDir:        rootDir,
		baseURL:        baseURL,
		maxUploadBytes: maxUploadBytes,
	}, nil
}

func (s *LocalStore) Upload(_ context.Context, localPath string) (*Asset, error) {
	info, err := inspectImage(localPath, s.maxUploadBytes)
	if err != nil {
		return nil, err
	}

	blobID, err := db.GenerateID("blb")
	if err != nil {
		return nil, fmt.Errorf("generating blob id: %w", err)
	}
	publicID := path.Join(imagesDir, blobID+info.Extension)

	absPath, err := s.resolveStoragePath(publicID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}

	if err := copyFile(localPath, absPath); err != nil {
		return nil, err
	}

	return &Asset{
		URL:      mediaurl.Local(s.baseURL, publicID),
		PublicID: publicID,
	}, nil
}

// Delete removes the asset. Deleting an asset that is already gone is not an
// error.
func (s *LocalStore) Delete(_ context.Context, publicID string) error {
	absPath, err := s.resolveStoragePath(publicID)
	if err != nil {
		return err
	}

	err = os.Remove(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting blob file: %w", err)
	}
	return nil
}

func (s *LocalStore) Open(publicID string) (*os.File, error) {
	absPath, err := s.resolveStoragePath(publicID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening blob file: %w", err)
	}
	return f, nil
}

func (s *LocalStore) resolveStoragePath(publicID string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(publicID))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", ErrInvalidPath
	}

	return filepath.Join(s.rootDir, clean), nil
}

func copyFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening upload: %w", err)
	}
	defer src.Close()

	tmpFile, err := os.CreateTemp(filepath.Dir(dstPath), filepath.Base(dstPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary blob file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmpFile, src); err != nil {
		return fmt.Errorf("writing blob file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temporary blob file: %w", err)
	}

	if err := os.Rename(tmpPath, dstPath); err != nil {
		return fmt.Errorf("finalizing blob file: %w", err)
	}
	return nil
}
