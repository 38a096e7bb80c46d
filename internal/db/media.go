package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"streamhub/internal/models"
)

type MediaRepository struct {
	db *DB
}

func NewMediaRepository(db *DB) *MediaRepository {
	return &MediaRepository{db: db}
}

type CreateMediaParams struct {
	OwnerID     string
	Title       string
	Description string
	Duration    float64
	VideoFile   string
	Thumbnail   string
	IsPublished bool
}

func (r *MediaRepository) Create(ctx context.Context, p CreateMediaParams) (*models.Media, error) {
	id, err := GenerateID("med")
	if err != nil {
		return nil, fmt.Errorf("generating media ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO media (id, owner_id, title, description, duration, views, is_published,
			video_file_url, thumbnail_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		id, p.OwnerID, p.Title, p.Description, p.Duration, p.IsPublished,
		p.VideoFile, p.Thumbnail, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating media: %w", err)
	}

	return &models.Media{
		ID:          id,
		OwnerID:     p.OwnerID,
		Title:       p.Title,
		Description: p.Description,
		Duration:    p.Duration,
		IsPublished: p.IsPublished,
		VideoFile:   p.VideoFile,
		Thumbnail:   p.Thumbnail,
		CreatedAt:   now,
		UpdatedAt:   &now,
	}, nil
}

func (r *MediaRepository) FindByID(ctx context.Context, id string) (*models.Media, error) {
	var m models.Media
	var ownerID sql.NullString
	var updatedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, description, duration, views, is_published,
			video_file_url, thumbnail_url, created_at, updated_at
		 FROM media WHERE id = ?`,
		id,
	).Scan(&m.ID, &ownerID, &m.Title, &m.Description, &m.Duration, &m.Views, &m.IsPublished,
		&m.VideoFile, &m.Thumbnail, &m.CreatedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying media: %w", err)
	}

	m.OwnerID = ownerID.String
	m.UpdatedAt = nullTimeToPtr(updatedAt)
	return &m, nil
}
