package memory

import (
	"context"
	"slices"

	"github.com/timetable/timetable-sync/internal/gc"
	"github.com/timetable/timetable-sync/internal/model"
)

// tx mutates the working copy of a transaction.
type tx struct {
	state *state
}

func (t *tx) LoadGraph(_ context.Context) (*gc.Graph, error) {
	s := t.state
	g := &gc.Graph{}
	for _, sub := range s.subscriptions {
		g.Subscriptions = append(g.Subscriptions, gc.SubscriptionRow{ID: sub.ID, AccountID: sub.AccountID, ChannelID: sub.ChannelID})
	}
	for id := range s.channels {
		g.Channels = append(g.Channels, gc.ChannelRow{ID: id, UploadedPlaylistID: s.channelPlaylists[id]})
	}
	for id, p := range s.playlists {
		g.Playlists = append(g.Playlists, id)
		for _, it := range p.Items {
			g.Items = append(g.Items, gc.PlaylistItemRow{PlaylistID: id, ItemID: it.ID, VideoID: it.VideoID})
		}
	}
	for id, v := range s.videos {
		g.Videos = append(g.Videos, gc.VideoRow{ID: id, ChannelID: v.ChannelID, BroadcastState: v.BroadcastState, IsFreeChat: v.IsFreeChat})
	}
	return g, nil
}

func (t *tx) DeleteSubscriptions(_ context.Context, ids []model.Identifier) (int64, error) {
	return deleteKeys(t.state.subscriptions, ids), nil
}

func (t *tx) DeleteChannelActivity(_ context.Context, channelIDs []model.Identifier) (int64, error) {
	drop := model.NewIDSet(channelIDs...)
	before := len(t.state.activity)
	t.state.activity = slices.DeleteFunc(t.state.activity, func(a model.ChannelActivity) bool {
		return drop.Has(a.ChannelID)
	})
	return int64(before - len(t.state.activity)), nil
}

func (t *tx) DeletePlaylistItems(_ context.Context, playlistIDs []model.Identifier) (int64, error) {
	var n int64
	for _, id := range playlistIDs {
		p, ok := t.state.playlists[id]
		if !ok {
			continue
		}
		n += int64(len(p.Items))
		p.Items = nil
		t.state.playlists[id] = p
	}
	return n, nil
}

func (t *tx) DeleteChannelPlaylists(_ context.Context, channelIDs []model.Identifier) (int64, error) {
	return deleteKeys(t.state.channelPlaylists, channelIDs), nil
}

func (t *tx) DeletePlaylists(_ context.Context, ids []model.Identifier) (int64, error) {
	for _, id := range ids {
		if p, ok := t.state.playlists[id]; ok && len(p.Items) > 0 {
			return 0, fkViolation("playlist_items", id)
		}
		for ch, p := range t.state.channelPlaylists {
			if p == id {
				return 0, fkViolation("channel_playlists", ch)
			}
		}
	}
	return deleteKeys(t.state.playlists, ids), nil
}

func (t *tx) DeleteVideos(_ context.Context, ids []model.Identifier) (int64, error) {
	return deleteKeys(t.state.videos, ids), nil
}

func (t *tx) DeleteChannelDetails(_ context.Context, channelIDs []model.Identifier) (int64, error) {
	return deleteKeys(t.state.details, channelIDs), nil
}

func (t *tx) DeleteChannels(_ context.Context, ids []model.Identifier) (int64, error) {
	drop := model.NewIDSet(ids...)
	for _, id := range ids {
		if _, ok := t.state.details[id]; ok {
			return 0, fkViolation("channel_details", id)
		}
		if _, ok := t.state.channelPlaylists[id]; ok {
			return 0, fkViolation("channel_playlists", id)
		}
	}
	for _, a := range t.state.activity {
		if drop.Has(a.ChannelID) {
			return 0, fkViolation("channel_activity_logs", a.ChannelID)
		}
	}
	return deleteKeys(t.state.channels, ids), nil
}

func deleteKeys[V any](m map[model.Identifier]V, ids []model.Identifier) int64 {
	var n int64
	for _, id := range ids {
		if _, ok := m[id]; ok {
			delete(m, id)
			n++
		}
	}
	return n
}
