package db

import (
	"context"
	"fmt"
	"time"

	"streamhub/internal/models"
)

// SubscriptionRepository only creates rows; the API reads subscriptions
// through ChannelRepository aggregates.
type SubscriptionRepository struct {
	db *DB
}

func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, subscriberID, channelID string) (*models.Subscription, error) {
	id, err := GenerateID("sub")
	if err != nil {
		return nil, fmt.Errorf("generating subscription ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, subscriber_id, channel_id, created_at) VALUES (?, ?, ?, ?)`,
		id, subscriberID, channelID, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating subscription: %w", err)
	}

	return &models.Subscription{
		ID:           id,
		SubscriberID: subscriberID,
		ChannelID:    channelID,
		CreatedAt:    now,
	}, nil
}
