package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"streamhub/internal/constants"
	"streamhub/internal/db"
	"streamhub/internal/models"
)

func TestRegisterLoginRefreshEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(registerRequest(t, "alice", "alice@x.com", "pw123", map[string][]byte{
		constants.AvatarField: testPNG(t),
	}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want %d, body=%q", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if body := rr.Body.String(); strings.Contains(body, "password") || strings.Contains(body, "refreshToken") {
		t.Fatalf("register body leaks credentials: %s", body)
	}
	registered := decodeEnvelope[models.User](t, rr)
	if registered.Data.ID == "" || registered.Data.Username != "alice" {
		t.Fatalf("registered user = %+v, want alice", registered.Data)
	}
	if registered.Data.Avatar != "https://media.test/images/fake_1.png" {
		t.Fatalf("avatar = %q, want uploaded URL", registered.Data.Avatar)
	}

	rr = env.do(jsonRequest(http.MethodPost, "/users/login", `{"email":"alice@x.com","password":"pw123"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d, body=%q", rr.Code, http.StatusOK, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "passwordHash") || strings.Contains(rr.Body.String(), `"password"`) {
		t.Fatalf("login body leaks password: %s", rr.Body.String())
	}
	login := decodeEnvelope[LoginResponse](t, rr)

	accessCookie := findCookie(rr, constants.AccessTokenCookie)
	refreshCookie := findCookie(rr, constants.RefreshTokenCookie)
	if accessCookie == nil || refreshCookie == nil {
		t.Fatal("login did not set both credential cookies")
	}
	if !accessCookie.HttpOnly || !refreshCookie.HttpOnly {
		t.Fatal("credential cookies must be http-only")
	}
	if accessCookie.Secure {
		t.Fatal("credential cookies must not be secure outside production")
	}
	if accessCookie.Value != login.Data.AccessToken || refreshCookie.Value != login.Data.RefreshToken {
		t.Fatal("cookie values differ from response tokens")
	}

	accessClaims, err := env.jwt().ParseAccessToken(login.Data.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}
	refreshClaims, err := env.jwt().ParseRefreshToken(login.Data.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefreshToken() error = %v", err)
	}
	if accessClaims.UserID != registered.Data.ID || refreshClaims.UserID != registered.Data.ID {
		t.Fatalf("token user ids = %q/%q, want %q", accessClaims.UserID, refreshClaims.UserID, registered.Data.ID)
	}

	original := login.Data.RefreshToken
	rr = env.do(jsonRequest(http.MethodPost, "/users/refresh-token", `{"refreshToken":"`+original+`"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, want %d, body=%q", rr.Code, http.StatusOK, rr.Body.String())
	}
	refreshed := decodeEnvelope[map[string]string](t, rr)
	if refreshed.Data["refreshToken"] == "" || refreshed.Data["refreshToken"] == original {
		t.Fatalf("refreshed token = %q, want a new token", refreshed.Data["refreshToken"])
	}
	if refreshed.Data["accessToken"] == "" {
		t.Fatal("refresh response missing accessToken")
	}
	if c := findCookie(rr, constants.RefreshTokenCookie); c == nil || c.Value != refreshed.Data["refreshToken"] {
		t.Fatal("refresh did not set the new refresh cookie")
	}

	rr = env.do(jsonRequest(http.MethodPost, "/users/refresh-token", `{"refreshToken":"`+original+`"}`))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	decodeError(t, rr)
}

func TestRefreshReadsCookie(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", "pw123")
	_, refresh := env.login(t, `{"username":"alice","password":"pw123"}`)

	req := httptest.NewRequest(http.MethodPost, "/users/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: constants.RefreshTokenCookie, Value: refresh})
	rr := env.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%q", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestRefreshRejectsMissingAndGarbageTokens(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{``, `{}`, `{"refreshToken":"garbage"}`} {
		rr := env.do(jsonRequest(http.MethodPost, "/users/refresh-token", body))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("body %q: status = %d, want %d", body, rr.Code, http.StatusUnauthorized)
		}
	}
}

func TestRegisterTwiceReturnsConflict(t *testing.T) {
	env := newTestEnv(t)
	files := map[string][]byte{constants.AvatarField: testPNG(t)}

	if rr := env.do(registerRequest(t, "alice", "alice@x.com", "pw123", files)); rr.Code != http.StatusCreated {
		t.Fatalf("first register status = %d, body=%q", rr.Code, rr.Body.String())
	}

	for _, tc := range []struct{ username, email string }{
		{"alice", "other@x.com"},
		{"other", "ALICE@x.com"},
	} {
		rr := env.do(registerRequest(t, tc.username, tc.email, "pw123", files))
		if rr.Code != http.StatusConflict {
			t.Fatalf("register(%s, %s) status = %d, want %d", tc.username, tc.email, rr.Code, http.StatusConflict)
		}
		decodeError(t, rr)
	}

	if len(env.store.uploads) != 1 {
		t.Fatalf("uploads = %v, want only the first registration's avatar", env.store.uploads)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	avatar := map[string][]byte{constants.AvatarField: testPNG(t)}

	tests := []struct {
		name   string
		fields map[string]string
		files  map[string][]byte
	}{
		{
			name:   "blank_fullname",
			fields: map[string]string{"fullname": "   ", "username": "alice", "email": "alice@x.com", "password": "pw123"},
			files:  avatar,
		},
		{
			name:   "markup_only_fullname",
			fields: map[string]string{"fullname": "<script></script>", "username": "alice", "email": "alice@x.com", "password": "pw123"},
			files:  avatar,
		},
		{
			name:   "bad_email",
			fields: map[string]string{"fullname": "Alice", "username": "alice", "email": "not-an-email", "password": "pw123"},
			files:  avatar,
		},
		{
			name:   "blank_password",
			fields: map[string]string{"fullname": "Alice", "username": "alice", "email": "alice@x.com", "password": "  "},
			files:  avatar,
		},
		{
			name:   "missing_avatar",
			fields: map[string]string{"fullname": "Alice", "username": "alice", "email": "alice@x.com", "password": "pw123"},
		},
		{
			name:   "cover_without_avatar",
			fields: map[string]string{"fullname": "Alice", "username": "alice", "email": "alice@x.com", "password": "pw123"},
			files:  map[string][]byte{constants.CoverImageField: testPNG(t)},
		},
		{
			name:   "avatar_not_an_image",
			fields: map[string]string{"fullname": "Alice", "username": "alice", "email": "alice@x.com", "password": "pw123"},
			files:  map[string][]byte{constants.AvatarField: []byte("definitely not a png")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(multipartRequest(t, http.MethodPost, "/users/register", tt.fields, tt.files))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d, body=%q", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
			decodeError(t, rr)
		})
	}

	if len(env.store.uploads) != 0 {
		t.Fatalf("uploads = %v, want none", env.store.uploads)
	}
}

func TestRegisterCompensatesUploadsWhenCreateFails(t *testing.T) {
	store := &fakeMediaStore{}
	env := newTestEnvWithStore(t, store)

	// Another registration claims the username while the cover is uploading.
	store.beforeUpload = func(call int) {
		if call == 2 {
			env.createUser(t, "alice", "other")
		}
	}

	rr := env.do(registerRequest(t, "alice", "alice@x.com", "pw123", map[string][]byte{
		constants.AvatarField:     testPNG(t),
		constants.CoverImageField: testPNG(t),
	}))
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d, body=%q", rr.Code, http.StatusConflict, rr.Body.String())
	}

	want := []string{"images/fake_1.png", "images/fake_2.png"}
	if strings.Join(store.deletes, ",") != strings.Join(want, ",") {
		t.Fatalf("deletes = %v, want %v", store.deletes, want)
	}
}

func TestRegisterUploadFailures(t *testing.T) {
	t.Run("avatar", func(t *testing.T) {
		env := newTestEnvWithStore(t, &fakeMediaStore{failAt: 1})
		rr := env.do(registerRequest(t, "alice", "alice@x.com", "pw123", map[string][]byte{
			constants.AvatarField: testPNG(t),
		}))
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
		}
		if resp := decodeError(t, rr); resp.Message != "Failed to upload avatar" {
			t.Fatalf("message = %q", resp.Message)
		}
		if strings.Contains(rr.Body.String(), "unavailable") {
			t.Fatalf("error body leaks cause: %s", rr.Body.String())
		}
	})

	t.Run("cover_removes_avatar", func(t *testing.T) {
		env := newTestEnvWithStore(t, &fakeMediaStore{failAt: 2})
		rr := env.do(registerRequest(t, "alice", "alice@x.com", "pw123", map[string][]byte{
			constants.AvatarField:     testPNG(t),
			constants.CoverImageField: testPNG(t),
		}))
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
		}
		if len(env.store.deletes) != 1 || env.store.deletes[0] != "images/fake_1.png" {
			t.Fatalf("deletes = %v, want the avatar", env.store.deletes)
		}
		exists, err := env.users.ExistsByUsernameOrEmail(context.Background(), "alice", "alice@x.com")
		if err != nil || exists {
			t.Fatalf("ExistsByUsernameOrEmail() = %v, %v, want no account", exists, err)
		}
	})
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", "pw123")
	env.createUser(t, "bob", "pw456")

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "email", body: `{"email":"alice@x.com","password":"pw123"}`, want: http.StatusOK},
		{name: "email_case_insensitive", body: `{"email":"Alice@X.com","password":"pw123"}`, want: http.StatusOK},
		{name: "username_only", body: `{"username":"alice","password":"pw123"}`, want: http.StatusOK},
		{name: "wrong_password", body: `{"email":"alice@x.com","password":"nope"}`, want: http.StatusUnauthorized},
		{name: "unknown_account", body: `{"email":"carol@x.com","password":"pw123"}`, want: http.StatusUnauthorized},
		{name: "email_does_not_match_username", body: `{"email":"carol@x.com","username":"alice","password":"pw123"}`, want: http.StatusUnauthorized},
		{name: "no_identifier", body: `{"password":"pw123"}`, want: http.StatusBadRequest},
		{name: "no_password", body: `{"email":"alice@x.com"}`, want: http.StatusBadRequest},
		{name: "malformed", body: `{"email":`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(jsonRequest(http.MethodPost, "/users/login", tt.body))
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d, body=%q", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestSecondLoginInvalidatesFirstRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", "pw123")

	_, first := env.login(t, `{"username":"alice","password":"pw123"}`)
	env.login(t, `{"username":"alice","password":"pw123"}`)

	rr := env.do(jsonRequest(http.MethodPost, "/users/refresh-token", `{"refreshToken":"`+first+`"}`))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestLogoutClearsSessionAndCookies(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "alice", "pw123")
	access, refresh := env.login(t, `{"username":"alice","password":"pw123"}`)

	req := jsonRequest(http.MethodPost, "/users/logout", "")
	req.AddCookie(&http.Cookie{Name: constants.AccessTokenCookie, Value: access})
	rr := env.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout status = %d, want %d, body=%q", rr.Code, http.StatusOK, rr.Body.String())
	}
	for _, name := range []string{constants.AccessTokenCookie, constants.RefreshTokenCookie} {
		c := findCookie(rr, name)
		if c == nil || c.Value != "" || c.MaxAge >= 0 {
			t.Fatalf("cookie %s = %+v, want cleared", name, c)
		}
	}

	user, err := env.users.FindByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if user.RefreshTokenHash != nil {
		t.Fatal("refresh token slot not cleared")
	}

	rr = env.do(jsonRequest(http.MethodPost, "/users/refresh-token", `{"refreshToken":"`+refresh+`"}`))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestLogoutRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(jsonRequest(http.MethodPost, "/users/logout", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestProductionCookiesAreSecure(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Server.Environment = "production"
	server, err := NewServer(env.cfg, env.database, env.store)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	env.server = server
	env.createUser(t, "alice", "pw123")

	rr := env.do(jsonRequest(http.MethodPost, "/users/login", `{"username":"alice","password":"pw123"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%q", rr.Code, rr.Body.String())
	}
	if c := findCookie(rr, constants.AccessTokenCookie); c == nil || !c.Secure {
		t.Fatalf("access cookie = %+v, want secure", c)
	}
}

func TestDeletedAccountCannotLogIn(t *testing.T) {
	env := newTestEnv(t)
	id := env.createUser(t, "alice", "pw123")
	if err := env.users.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := env.users.FindByID(context.Background(), id); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("FindByID() error = %v, want ErrNotFound", err)
	}

	rr := env.do(jsonRequest(http.MethodPost, "/users/login", `{"username":"alice","password":"pw123"}`))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
