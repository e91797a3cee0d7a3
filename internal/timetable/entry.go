// Package timetable publishes the current timetable view to Redis: one hash
// per channel holding its live, upcoming and free chat videos.
package timetable

import (
	"time"

	"github.com/timetable/timetable-sync/internal/model"
)

// Status is the timetable slot of a video.
type Status string

const (
	StatusLive     Status = "live"
	StatusUpcoming Status = "upcoming"
	StatusFreeChat Status = "free_chat"
)

// Entry is the published form of a video.
type Entry struct {
	VideoID      string `json:"video_id"`
	Platform     string `json:"platform"`
	ChannelID    string `json:"channel_id"`
	Status       Status `json:"status"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`

	ScheduledStartTime *time.Time `json:"scheduled_start_time,omitempty"`
	ActualStartTime    *time.Time `json:"actual_start_time,omitempty"`
	ConcurrentViewers  *int64     `json:"concurrent_viewers,omitempty"`
	UpdatableAt        *time.Time `json:"updatable_at,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntry maps a classified video. ok is false for videos that do not
// belong in the timetable.
func NewEntry(v *model.ClassifiedVideo, now time.Time) (Entry, bool) {
	var status Status
	switch {
	case v.BroadcastState == model.BroadcastLive:
		status = StatusLive
	case v.IsFreeChat:
		status = StatusFreeChat
	case v.BroadcastState == model.BroadcastUpcoming:
		status = StatusUpcoming
	default:
		return Entry{}, false
	}

	return Entry{
		VideoID:            v.ID.Value,
		Platform:           string(v.ID.Platform),
		ChannelID:          v.ChannelID.Value,
		Status:             status,
		Title:              v.Title,
		ThumbnailURL:       v.ThumbnailURL,
		ScheduledStartTime: v.ScheduledStart,
		ActualStartTime:    v.ActualStart,
		ConcurrentViewers:  v.ViewerCount,
		UpdatableAt:        v.UpdatableAt,
		UpdatedAt:          now,
	}, true
}

// group maps channel keys to their entries keyed by video key.
func group(videos []model.ClassifiedVideo, now time.Time) map[string]map[string]Entry {
	out := make(map[string]map[string]Entry)
	for i := range videos {
		v := &videos[i]
		e, ok := NewEntry(v, now)
		if !ok || v.ChannelID.IsZero() {
			continue
		}
		ch := v.ChannelID.Key()
		if out[ch] == nil {
			out[ch] = make(map[string]Entry)
		}
		out[ch][v.ID.Key()] = e
	}
	return out
}
