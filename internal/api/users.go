package api

import (
	"errors"
	"log/slog"
	"net/http"

	"streamhub/internal/auth"
	"streamhub/internal/constants"
	"streamhub/internal/db"
)

type UserHandler struct {
	users          *db.UserRepository
	images         imageUploader
	uploadMaxBytes int64
}

func NewUserHandler(users *db.UserRepository, images imageUploader, uploadMaxBytes int64) *UserHandler {
	return &UserHandler{users: users, images: images, uploadMaxBytes: uploadMaxBytes}
}

// GET /users/current-user
func (h *UserHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		unauthorized(w, "Unauthorized request")
		return
	}

	writeSuccess(w, http.StatusOK, user, "Current user details")
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,max=72"`
}

// PATCH /users/change-password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	current := CurrentUser(r)
	if current == nil {
		unauthorized(w, "Unauthorized request")
		return
	}

	var req ChangePasswordRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	user, err := h.users.FindByID(r.Context(), current.ID)
	if errors.Is(err, db.ErrNotFound) {
		unauthorized(w, "Invalid access token")
		return
	}
	if err != nil {
		slog.Error("error loading user for password change", "error", err, "user_id", current.ID)
		internalError(w, "")
		return
	}

	valid, err := auth.CheckPassword(user.PasswordHash, req.OldPassword)
	if err != nil {
		slog.Error("error checking password", "error", err, "user_id", user.ID)
		internalError(w, "")
		return
	}
	if !valid {
		unauthorized(w, "Old password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		slog.Error("error hashing password", "error", err, "user_id", user.ID)
		internalError(w, "")
		return
	}
	if err := h.users.UpdatePassword(r.Context(), user.ID, hash); err != nil {
		slog.Error("error updating password", "error", err, "user_id", user.ID)
		internalError(w, "")
		return
	}

	writeSuccess(w, http.StatusOK, struct{}{}, "Password changed successfully")
}

type UpdateAccountRequest struct {
	Fullname string `json:"fullname" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
}

// PATCH /users/update-account
func (h *UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	current := CurrentUser(r)
	if current == nil {
		unauthorized(w, "Unauthorized request")
		return
	}

	var req UpdateAccountRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	fullname := cleanText(req.Fullname)
	if fullname == "" {
		badRequest(w, "fullname is required")
		return
	}
	email := normalizeIdentifier(req.Email)

	user, err := h.users.UpdateAccount(r.Context(), current.ID, fullname, email)
	if errors.Is(err, db.ErrDuplicate) {
		conflict(w, "Email is already in use")
		return
	}
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "User not found")
		return
	}
	if err != nil {
		slog.Error("error updating account", "error", err, "user_id", current.ID)
		internalError(w, "")
		return
	}

	writeSuccess(w, http.StatusOK, user.Sanitized(), "Account details updated successfully")
}

// PATCH /users/update-avatar
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, constants.AvatarField, db.SlotAvatar, "avatar", "Avatar updated successfully")
}

// PATCH /users/update-cover
func (h *UserHandler) UpdateCover(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, constants.CoverImageField, db.SlotCover, "cover image", "Cover image updated successfully")
}

// replaceImage uploads the new image, points the user at it and then drops
// the image it replaced from the media store.
func (h *UserHandler) replaceImage(w http.ResponseWriter, r *http.Request, field string, slot db.ImageSlot, label, message string) {
	current := CurrentUser(r)
	if current == nil {
		unauthorized(w, "Unauthorized request")
		return
	}

	upload, ok := readMultipartUpload(w, r, h.uploadMaxBytes+multipartFormMemory, field)
	if !ok {
		return
	}
	defer upload.Cleanup()

	path := upload.Path(field)
	if path == "" {
		badRequest(w, "File is required")
		return
	}

	asset, err := h.images.upload(r.Context(), path)
	if err != nil {
		handleUploadError(w, err, label)
		return
	}
	if asset.URL == "" {
		h.images.deleteBestEffort(r.Context(), asset.PublicID)
		badRequest(w, "Something went wrong while uploading the "+label)
		return
	}

	previous, err := h.users.ReplaceImage(r.Context(), current.ID, slot, asset.URL, asset.PublicID)
	if err != nil {
		h.images.deleteBestEffort(r.Context(), asset.PublicID)
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "User not found")
			return
		}
		slog.Error("error replacing image", "error", err, "user_id", current.ID, "image", label)
		internalError(w, "")
		return
	}
	if previous != asset.PublicID {
		h.images.deleteBestEffort(r.Context(), previous)
	}

	user, err := h.users.FindByID(r.Context(), current.ID)
	if err != nil {
		slog.Error("error loading user after image update", "error", err, "user_id", current.ID)
		internalError(w, "")
		return
	}

	writeSuccess(w, http.StatusOK, user.Sanitized(), message)
}
