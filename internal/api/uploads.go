package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"streamhub/internal/blob"
)

// multipartFormMemory is how much of a multipart body is kept in memory
// before the rest spills to disk.
const multipartFormMemory = 1 << 20

// spooledUpload holds uploaded files copied to a private temp directory so
// the media store can read them from a local path.
type spooledUpload struct {
	dir   string
	files map[string]string
	form  *multipart.Form
}

func (u *spooledUpload) Path(field string) string {
	return u.files[field]
}

func (u *spooledUpload) Cleanup() {
	if u.form != nil {
		_ = u.form.RemoveAll()
	}
	if u.dir != "" {
		_ = os.RemoveAll(u.dir)
	}
}

// readMultipartUpload parses a multipart body limited to maxBytes and spools
// each present file field to disk. Absent fields are left for the caller to
// reject. On failure the error response is already written.
func readMultipartUpload(w http.ResponseWriter, r *http.Request, maxBytes int64, fields ...string) (*spooledUpload, bool) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	if err := r.ParseMultipartForm(multipartFormMemory); err != nil {
		if isBodyTooLargeError(err) {
			payloadTooLarge(w, "File exceeds maximum upload size")
		} else {
			badRequest(w, "Invalid multipart upload")
		}
		return nil, false
	}

	dir, err := os.MkdirTemp("", "streamhub-upload-*")
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		slog.Error("error creating upload directory", "error", err)
		internalError(w, "")
		return nil, false
	}

	upload := &spooledUpload{dir: dir, files: map[string]string{}, form: r.MultipartForm}
	for _, field := range fields {
		headers := r.MultipartForm.File[field]
		if len(headers) == 0 {
			continue
		}
		if len(headers) > 1 {
			upload.Cleanup()
			badRequest(w, fmt.Sprintf("Only one %s file is allowed", field))
			return nil, false
		}

		path, err := spoolFile(headers[0], dir, field)
		if err != nil {
			upload.Cleanup()
			slog.Error("error spooling upload", "error", err, "field", field)
			internalError(w, "")
			return nil, false
		}
		upload.files[field] = path
	}

	return upload, true
}

func spoolFile(header *multipart.FileHeader, dir, field string) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("opening form file: %w", err)
	}
	defer src.Close()

	path := filepath.Join(dir, field+filepath.Ext(filepath.Base(header.Filename)))
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("creating spool file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("writing spool file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("closing spool file: %w", err)
	}
	return path, nil
}

// imageUploader prepares spooled images and hands them to the media store.
type imageUploader struct {
	store blob.Store
}

func (u imageUploader) upload(ctx context.Context, path string) (*blob.Asset, error) {
	if _, err := blob.NormalizeImageFile(path, blob.DefaultImageMaxEdge, blob.DefaultJPEGQuality); err != nil {
		return nil, err
	}
	return u.store.Upload(ctx, path)
}

// deleteBestEffort removes assets that are no longer referenced. Failures
// are logged and otherwise ignored.
func (u imageUploader) deleteBestEffort(ctx context.Context, publicIDs ...string) {
	for _, publicID := range publicIDs {
		if publicID == "" {
			continue
		}
		if err := u.store.Delete(ctx, publicID); err != nil {
			slog.Warn("error deleting media asset", "error", err, "public_id", publicID)
		}
	}
}

// handleUploadError writes the response for a failed image upload. label
// names the image in the generic failure message.
func handleUploadError(w http.ResponseWriter, err error, label string) {
	switch {
	case errors.Is(err, blob.ErrInvalidImage):
		badRequest(w, "Invalid image file")
	case errors.Is(err, blob.ErrFileTooLarge):
		payloadTooLarge(w, "File exceeds maximum upload size")
	case errors.Is(err, blob.ErrDisallowedType):
		badRequest(w, "Unsupported file type")
	case errors.Is(err, blob.ErrExecutableFile):
		badRequest(w, "Executable files are not allowed")
	default:
		slog.Error("error uploading image", "error", err, "image", label)
		internalError(w, "Failed to upload "+label)
	}
}

func isBodyTooLargeError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "request body too large")
}
