package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"streamhub/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)

const userColumns = `id, username, email, fullname, password_hash, avatar_url, avatar_public_id,
	cover_image_url, cover_public_id, refresh_token_hash, created_at, updated_at`

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

type CreateUserParams struct {
	Username       string
	Email          string
	Fullname       string
	PasswordHash   string
	Avatar         string
	AvatarPublicID string
	CoverImage     string
	CoverPublicID  string
}

func (r *UserRepository) Create(ctx context.Context, p CreateUserParams) (*models.User, error) {
	id, err := GenerateID("usr")
	if err != nil {
		return nil, fmt.Errorf("generating user ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, fullname, password_hash, avatar_url, avatar_public_id,
			cover_image_url, cover_public_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.Username, p.Email, p.Fullname, p.PasswordHash, p.Avatar, p.AvatarPublicID,
		p.CoverImage, p.CoverPublicID, now, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return r.FindByID(ctx, id)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// FindByEmailOrUsername matches either identifier; empty values never match.
// When both match different accounts the email match wins.
func (r *UserRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error) {
	return r.findOne(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE (? <> '' AND email = ?) OR (? <> '' AND username = ?)
		 ORDER BY (email = ?) DESC
		 LIMIT 1`,
		email, email, username, username, email,
	)
}

func (r *UserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`,
		username, email,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking user existence: %w", err)
	}
	return count > 0, nil
}

// SetRefreshTokenHash overwrites the single refresh token slot. A nil hash
// clears it.
func (r *UserRepository) SetRefreshTokenHash(ctx context.Context, id string, hash *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET refresh_token_hash = ? WHERE id = ?`,
		hash, id,
	)
	if err != nil {
		return fmt.Errorf("updating refresh token: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdateAccount(ctx context.Context, id, fullname, email string) (*models.User, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET fullname = ?, email = ?, updated_at = ? WHERE id = ?`,
		fullname, email, time.Now().UTC(), id,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("updating account: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// ImageSlot selects which profile image an update targets.
type ImageSlot int

const (
	SlotAvatar ImageSlot = iota
	SlotCover
)

// ReplaceImage swaps the image in slot and returns the public id of the image
// it replaced ("" if there was none).
func (r *UserRepository) ReplaceImage(ctx context.Context, id string, slot ImageSlot, url, publicID string) (string, error) {
	urlColumn, idColumn := "avatar_url", "avatar_public_id"
	if slot == SlotCover {
		urlColumn, idColumn = "cover_image_url", "cover_public_id"
	}

	var previous string
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT `+idColumn+` FROM users WHERE id = ?`, id).Scan(&previous)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading current image: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE users SET `+urlColumn+` = ?, `+idColumn+` = ?, updated_at = ? WHERE id = ?`,
			url, publicID, time.Now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("updating image: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

// AppendWatchHistory records mediaID as the newest entry of the user's history.
func (r *UserRepository) AppendWatchHistory(ctx context.Context, userID, mediaID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO watch_history (user_id, position, media_id)
		 SELECT ?, COALESCE(MAX(position), 0) + 1, ? FROM watch_history WHERE user_id = ?`,
		userID, mediaID, userID,
	)
	if err != nil {
		return fmt.Errorf("appending watch history: %w", err)
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	var u models.User
	var refreshHash sql.NullString
	var updatedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.Fullname,
		&u.PasswordHash,
		&u.Avatar,
		&u.AvatarPublicID,
		&u.CoverImage,
		&u.CoverPublicID,
		&refreshHash,
		&u.CreatedAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.RefreshTokenHash = nullStringToPtr(refreshHash)
	u.UpdatedAt = nullTimeToPtr(updatedAt)

	history, err := r.watchHistoryIDs(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.WatchHistory = history

	return &u, nil
}

func (r *UserRepository) watchHistoryIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT media_id FROM watch_history WHERE user_id = ? ORDER BY position`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying watch history: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning watch history: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
