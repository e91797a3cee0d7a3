package model

import "time"

// Channel is a cached channel. UploadedPlaylistID is zero when the platform
// has no uploads playlist for it.
type Channel struct {
	ID                 Identifier
	Title              string
	IconURL            string
	UploadedPlaylistID Identifier
	CacheControl       CacheControl
}

// ChannelDetail holds the slowly changing part of a channel.
type ChannelDetail struct {
	ChannelID       Identifier
	Description     string
	BannerURL       string
	SubscriberCount *int64
	UpdatedAt       time.Time
}

// ChannelActivity records that a channel's uploads changed.
type ChannelActivity struct {
	ID        int64
	ChannelID Identifier
	VideoIDs  []Identifier
	LoggedAt  time.Time
}

// Subscription anchors a channel to an account. Twitch follows are stored as
// subscriptions too.
type Subscription struct {
	ID              Identifier
	AccountID       string
	ChannelID       Identifier
	SubscribedSince time.Time
	DisplayOrder    int
}
