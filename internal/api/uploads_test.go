package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestReadMultipartUploadReturnsJSON413OnOversizeBody(t *testing.T) {
	body := bytes.NewBuffer(nil)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("avatar", "large.png")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(bytes.Repeat([]byte{'a'}, 2048)); err != nil {
		t.Fatalf("part.Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPatch, "/users/update-avatar", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()

	upload, ok := readMultipartUpload(rr, req, 1024, "avatar")
	if ok {
		upload.Cleanup()
		t.Fatalf("readMultipartUpload() ok = true, want false")
	}

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusRequestEntityTooLarge)
	}
	decodeError(t, rr)
}

func TestReadMultipartUploadSpoolsAndCleansUp(t *testing.T) {
	req := multipartRequest(t, http.MethodPost, "/users/register", map[string]string{"fullname": "A"}, map[string][]byte{
		"avatar": testPNG(t),
	})
	rr := httptest.NewRecorder()

	upload, ok := readMultipartUpload(rr, req, 1<<20, "avatar", "coverImage")
	if !ok {
		t.Fatalf("readMultipartUpload() ok = false, body=%q", rr.Body.String())
	}

	path := upload.Path("avatar")
	if path == "" {
		t.Fatal("avatar was not spooled")
	}
	if upload.Path("coverImage") != "" {
		t.Fatal("absent field has a path")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Stat(spooled) error = %v", err)
	}

	upload.Cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("Stat(after cleanup) error = %v, want not exist", err)
	}
}

func TestReadMultipartUploadRejectsRepeatedField(t *testing.T) {
	body := bytes.NewBuffer(nil)
	writer := multipart.NewWriter(body)
	for i := 0; i < 2; i++ {
		part, err := writer.CreateFormFile("avatar", "a.png")
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write(testPNG(t)); err != nil {
			t.Fatalf("part.Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/users/register", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()

	if _, ok := readMultipartUpload(rr, req, 1<<20, "avatar"); ok {
		t.Fatal("readMultipartUpload() ok = true, want false")
	}
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
