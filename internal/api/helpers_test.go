package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"streamhub/internal/auth"
	"streamhub/internal/blob"
	"streamhub/internal/config"
	"streamhub/internal/db"
)

const (
	testAccessSecret  = "access-secret-0123456789abcdefghijklmnop"
	testRefreshSecret = "refresh-secret-0123456789abcdefghijklmno"
)

// fakeMediaStore records every call. failAt makes the n-th upload (1-based)
// fail; beforeUpload runs ahead of each upload with its call number.
type fakeMediaStore struct {
	mu           sync.Mutex
	calls        int
	uploads      []string
	deletes      []string
	failAt       int
	beforeUpload func(call int)
}

func (s *fakeMediaStore) Upload(_ context.Context, _ string) (*blob.Asset, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	hook := s.beforeUpload
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if call == s.failAt {
		return nil, fmt.Errorf("media store unavailable")
	}

	publicID := fmt.Sprintf("images/fake_%d.png", call)
	s.mu.Lock()
	s.uploads = append(s.uploads, publicID)
	s.mu.Unlock()
	return &blob.Asset{URL: "https://media.test/" + publicID, PublicID: publicID}, nil
}

func (s *fakeMediaStore) Delete(_ context.Context, publicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, publicID)
	return nil
}

type testEnv struct {
	cfg      *config.Config
	database *db.DB
	users    *db.UserRepository
	store    *fakeMediaStore
	server   *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, &fakeMediaStore{})
}

func newTestEnvWithStore(t *testing.T, store *fakeMediaStore) *testEnv {
	t.Helper()

	cfg := testConfig(t)
	database := openTestDB(t)

	server, err := NewServer(cfg, database, store)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	return &testEnv{
		cfg:      cfg,
		database: database,
		users:    db.NewUserRepository(database),
		store:    store,
		server:   server,
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.Parse([]byte("auth:\n" +
		"  access_token_secret: " + testAccessSecret + "\n" +
		"  refresh_token_secret: " + testRefreshSecret + "\n" +
		"storage:\n" +
		"  root: " + t.TempDir() + "\n"))
	if err != nil {
		t.Fatalf("config.Parse() error = %v", err)
	}
	return cfg
}

func openTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

func (e *testEnv) jwt() *auth.JWTService {
	return auth.NewJWTService(testAccessSecret, testRefreshSecret, e.cfg.Auth.AccessTokenTTL, e.cfg.Auth.RefreshTokenTTL)
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// createUser inserts a user directly and returns its id.
func (e *testEnv) createUser(t *testing.T, username, password string) string {
	t.Helper()

	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	user, err := e.users.Create(context.Background(), db.CreateUserParams{
		Username:     username,
		Email:        username + "@x.com",
		Fullname:     "User " + username,
		PasswordHash: hash,
		Avatar:       "https://media.test/images/" + username + ".png",
	})
	if err != nil {
		t.Fatalf("Create(%s) error = %v", username, err)
	}
	return user.ID
}

// login returns the access and refresh tokens of a successful login.
func (e *testEnv) login(t *testing.T, body string) (string, string) {
	t.Helper()

	rr := e.do(jsonRequest(http.MethodPost, "/users/login", body))
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d, body=%q", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeEnvelope[LoginResponse](t, rr)
	return resp.Data.AccessToken, resp.Data.RefreshToken
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()

	body := bytes.NewBuffer(nil)
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	for name, data := range files {
		part, err := writer.CreateFormFile(name, name+".png")
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("part.Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close() error = %v", err)
	}

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func registerRequest(t *testing.T, username, email, password string, files map[string][]byte) *http.Request {
	t.Helper()

	return multipartRequest(t, http.MethodPost, "/users/register", map[string]string{
		"fullname": "Alice Liddell",
		"username": username,
		"email":    email,
		"password": password,
	}, files)
}

func testPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

type envelope[T any] struct {
	StatusCode int    `json:"statusCode"`
	Data       T      `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func decodeEnvelope[T any](t *testing.T, rr *httptest.ResponseRecorder) envelope[T] {
	t.Helper()

	var resp envelope[T]
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body=%q", err, rr.Body.String())
	}
	if resp.StatusCode != rr.Code {
		t.Fatalf("envelope statusCode = %d, want %d", resp.StatusCode, rr.Code)
	}
	return resp
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body=%q", err, rr.Body.String())
	}
	if resp.Success || resp.StatusCode != rr.Code || resp.Errors == nil {
		t.Fatalf("error envelope = %+v, want success=false statusCode=%d errors=[]", resp, rr.Code)
	}
	return resp
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
