package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"streamhub/internal/auth"
	"streamhub/internal/constants"
	"streamhub/internal/db"
	"streamhub/internal/models"
)

type AuthHandler struct {
	users          *db.UserRepository
	sessions       *auth.SessionService
	images         imageUploader
	cookies        credentialCookies
	uploadMaxBytes int64
}

func NewAuthHandler(
	users *db.UserRepository,
	sessions *auth.SessionService,
	images imageUploader,
	cookies credentialCookies,
	uploadMaxBytes int64,
) *AuthHandler {
	return &AuthHandler{
		users:          users,
		sessions:       sessions,
		images:         images,
		cookies:        cookies,
		uploadMaxBytes: uploadMaxBytes,
	}
}

type RegisterForm struct {
	Fullname string `validate:"required,max=100"`
	Username string `validate:"required,min=3,max=32,username"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,max=72"`
}

// POST /users/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	upload, ok := readMultipartUpload(w, r, 2*h.uploadMaxBytes+multipartFormMemory,
		constants.AvatarField, constants.CoverImageField)
	if !ok {
		return
	}
	defer upload.Cleanup()

	form := RegisterForm{
		Fullname: cleanText(r.FormValue("fullname")),
		Username: normalizeIdentifier(r.FormValue("username")),
		Email:    normalizeIdentifier(r.FormValue("email")),
		Password: r.FormValue("password"),
	}
	if strings.TrimSpace(form.Password) == "" {
		form.Password = ""
	}
	if err := validateStruct(&form); err != nil {
		badRequest(w, err.Error())
		return
	}

	exists, err := h.users.ExistsByUsernameOrEmail(r.Context(), form.Username, form.Email)
	if err != nil {
		slog.Error("error checking existing user", "error", err)
		internalError(w, "")
		return
	}
	if exists {
		conflict(w, "User with username or email already exists")
		return
	}

	avatarPath := upload.Path(constants.AvatarField)
	if avatarPath == "" {
		badRequest(w, "Avatar file is required")
		return
	}

	passwordHash, err := auth.HashPassword(form.Password)
	if err != nil {
		slog.Error("error hashing password", "error", err)
		internalError(w, "")
		return
	}

	avatar, err := h.images.upload(r.Context(), avatarPath)
	if err != nil {
		handleUploadError(w, err, "avatar")
		return
	}

	params := db.CreateUserParams{
		Username:       form.Username,
		Email:          form.Email,
		Fullname:       form.Fullname,
		PasswordHash:   passwordHash,
		Avatar:         avatar.URL,
		AvatarPublicID: avatar.PublicID,
	}

	if coverPath := upload.Path(constants.CoverImageField); coverPath != "" {
		cover, err := h.images.upload(r.Context(), coverPath)
		if err != nil {
			h.images.deleteBestEffort(r.Context(), avatar.PublicID)
			handleUploadError(w, err, "cover image")
			return
		}
		params.CoverImage = cover.URL
		params.CoverPublicID = cover.PublicID
	}

	user, err := h.users.Create(r.Context(), params)
	if err != nil {
		h.images.deleteBestEffort(r.Context(), params.AvatarPublicID, params.CoverPublicID)
		if errors.Is(err, db.ErrDuplicate) {
			conflict(w, "User with username or email already exists")
			return
		}
		slog.Error("error creating user", "error", err)
		internalError(w, "Something went wrong while registering the user")
		return
	}

	slog.Info("user registered", "user_id", user.ID, "username", user.Username)
	writeSuccess(w, http.StatusCreated, user.Sanitized(), "User registered successfully")
}

type LoginRequest struct {
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Username string `json:"username" validate:"omitempty,max=32"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

// POST /users/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	req.Email = normalizeIdentifier(req.Email)
	req.Username = normalizeIdentifier(req.Username)
	if req.Email == "" && req.Username == "" {
		badRequest(w, "username or email is required")
		return
	}

	user, err := h.users.FindByEmailOrUsername(r.Context(), req.Email, req.Username)
	if errors.Is(err, db.ErrNotFound) {
		unauthorized(w, "Invalid credentials")
		return
	}
	if err != nil {
		slog.Error("error finding user for login", "error", err)
		internalError(w, "")
		return
	}
	if req.Email != "" && user.Email != req.Email {
		unauthorized(w, "Invalid credentials")
		return
	}

	valid, err := auth.CheckPassword(user.PasswordHash, req.Password)
	if err != nil {
		slog.Error("error checking password", "error", err, "user_id", user.ID)
		internalError(w, "")
		return
	}
	if !valid {
		unauthorized(w, "Invalid credentials")
		return
	}

	pair, err := h.sessions.IssueTokenPair(r.Context(), user.ID)
	if err != nil {
		internalError(w, "Something went wrong while generating access and refresh tokens")
		return
	}

	h.cookies.set(w, pair)
	writeSuccess(w, http.StatusOK, LoginResponse{
		User:         user.Sanitized(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "User logged in successfully")
}

// POST /users/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		unauthorized(w, "Unauthorized request")
		return
	}

	err := h.sessions.Revoke(r.Context(), user.ID)
	if errors.Is(err, db.ErrNotFound) {
		unauthorized(w, "Invalid access token")
		return
	}
	if err != nil {
		slog.Error("error revoking refresh token", "error", err, "user_id", user.ID)
		internalError(w, "")
		return
	}

	h.cookies.clear(w)
	writeSuccess(w, http.StatusOK, user, "User logged out successfully")
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// POST /users/refresh-token
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := cookieValue(r, constants.RefreshTokenCookie)
	if token == "" {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = strings.TrimSpace(req.RefreshToken)
		}
	}
	if token == "" {
		unauthorized(w, "Refresh token is required")
		return
	}

	pair, err := h.sessions.Rotate(r.Context(), token)
	if errors.Is(err, auth.ErrInvalidRefreshToken) {
		unauthorized(w, "Invalid refresh token")
		return
	}
	if errors.Is(err, auth.ErrTokenGeneration) {
		internalError(w, "Something went wrong while generating access and refresh tokens")
		return
	}
	if err != nil {
		slog.Error("error rotating refresh token", "error", err)
		internalError(w, "")
		return
	}

	h.cookies.set(w, pair)
	writeSuccess(w, http.StatusOK, pair, "Access token refreshed")
}
