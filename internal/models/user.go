package models

import "time"

// User is a registered account. Credential material (password hash, refresh
// token hash) and storage ids never leave the server.
type User struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	Fullname         string     `json:"fullname"`
	Avatar           string     `json:"avatar"`
	CoverImage       string     `json:"coverImage"`
	WatchHistory     []string   `json:"watchHistory"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
	PasswordHash     string     `json:"-"`
	RefreshTokenHash *string    `json:"-"`
	AvatarPublicID   string     `json:"-"`
	CoverPublicID    string     `json:"-"`
}

// Sanitized returns a copy without credential fields, safe to hand to handlers
// that should not see them.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.PasswordHash = ""
	c.RefreshTokenHash = nil
	if c.WatchHistory == nil {
		c.WatchHistory = []string{}
	}
	return &c
}

type Subscription struct {
	ID           string    `json:"id"`
	SubscriberID string    `json:"subscriber"`
	ChannelID    string    `json:"channel"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ChannelProfile is the public view of an account seen as a channel.
type ChannelProfile struct {
	Fullname                  string `json:"fullname"`
	Username                  string `json:"username"`
	Avatar                    string `json:"avatar"`
	CoverImage                string `json:"coverImage"`
	Email                     string `json:"email"`
	SubscribersCount          int64  `json:"subscribersCount"`
	ChannelsSubscribedToCount int64  `json:"channelsSubscribedToCount"`
	IsSubscribed              bool   `json:"isSubscribed"`
}
