package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"streamhub/internal/models"
)

// ChannelRepository builds the read-only aggregate views over users,
// subscriptions and media.
type ChannelRepository struct {
	db *DB
}

func NewChannelRepository(db *DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// Profile returns the channel view of the account named username as seen by
// viewerID. viewerID may be empty, in which case IsSubscribed is false.
func (r *ChannelRepository) Profile(ctx context.Context, username, viewerID string) (*models.ChannelProfile, error) {
	var p models.ChannelProfile

	err := r.db.QueryRowContext(ctx,
		`SELECT u.fullname, u.username, u.avatar_url, u.cover_image_url, u.email,
			(SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id),
			(SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id),
			EXISTS (SELECT 1 FROM subscriptions s WHERE s.channel_id = u.id AND s.subscriber_id = ?)
		 FROM users u
		 WHERE u.username = ?`,
		viewerID, strings.ToLower(username),
	).Scan(
		&p.Fullname,
		&p.Username,
		&p.Avatar,
		&p.CoverImage,
		&p.Email,
		&p.SubscribersCount,
		&p.ChannelsSubscribedToCount,
		&p.IsSubscribed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying channel profile: %w", err)
	}

	return &p, nil
}

// WatchHistory resolves the user's history to media records in stored order,
// each carrying its owner's minimal projection. Owner is nil when the owning
// account no longer exists.
func (r *ChannelRepository) WatchHistory(ctx context.Context, userID string) ([]models.WatchHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.owner_id, m.title, m.description, m.duration, m.views, m.is_published,
			m.video_file_url, m.thumbnail_url, m.created_at, m.updated_at,
			o.id, o.fullname, o.username, o.avatar_url
		 FROM watch_history w
		 JOIN media m ON m.id = w.media_id
		 LEFT JOIN users o ON o.id = m.owner_id
		 WHERE w.user_id = ?
		 ORDER BY w.position`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying watch history: %w", err)
	}
	defer rows.Close()

	entries := []models.WatchHistoryEntry{}
	for rows.Next() {
		var e models.WatchHistoryEntry
		var mediaOwnerID sql.NullString
		var updatedAt sql.NullTime
		var ownerID, ownerFullname, ownerUsername, ownerAvatar sql.NullString

		if err := rows.Scan(
			&e.ID, &mediaOwnerID, &e.Title, &e.Description, &e.Duration, &e.Views, &e.IsPublished,
			&e.VideoFile, &e.Thumbnail, &e.CreatedAt, &updatedAt,
			&ownerID, &ownerFullname, &ownerUsername, &ownerAvatar,
		); err != nil {
			return nil, fmt.Errorf("scanning watch history entry: %w", err)
		}

		e.OwnerID = mediaOwnerID.String
		e.UpdatedAt = nullTimeToPtr(updatedAt)
		if ownerID.Valid {
			e.Owner = &models.MediaOwner{
				ID:       ownerID.String,
				Fullname: ownerFullname.String,
				Username: ownerUsername.String,
				Avatar:   ownerAvatar.String,
			}
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
