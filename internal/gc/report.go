package gc

import (
	"time"

	"github.com/google/uuid"
)

// Report summarizes a committed pass.
type Report struct {
	RunID                uuid.UUID     `json:"run_id"`
	StartedAt            time.Time     `json:"started_at"`
	Duration             time.Duration `json:"duration"`
	SubscriptionsDeleted int64         `json:"subscriptions_deleted"`
	ActivityDeleted      int64         `json:"activity_deleted"`
	ItemsDeleted         int64         `json:"items_deleted"`
	PlaylistsDeleted     int64         `json:"playlists_deleted"`
	VideosDeleted        int64         `json:"videos_deleted"`
	ChannelsDeleted      int64         `json:"channels_deleted"`
	ChannelsDetached     int64         `json:"channels_detached"`
}

// Evictions returns the deleted row counts keyed by kind.
func (r *Report) Evictions() map[string]int {
	return map[string]int{
		"subscriptions":    int(r.SubscriptionsDeleted),
		"channel_activity": int(r.ActivityDeleted),
		"playlist_items":   int(r.ItemsDeleted),
		"playlists":        int(r.PlaylistsDeleted),
		"videos":           int(r.VideosDeleted),
		"channels":         int(r.ChannelsDeleted),
	}
}

// Total returns the number of deleted rows across all kinds.
func (r *Report) Total() int64 {
	return r.SubscriptionsDeleted + r.ActivityDeleted + r.ItemsDeleted +
		r.PlaylistsDeleted + r.VideosDeleted + r.ChannelsDeleted
}
