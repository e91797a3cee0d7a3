// Package gc removes cached rows that no subscription can reach any more.
//
// A pass has two phases. Scan is a pure function over an in-memory Graph
// and yields a Plan; Collector.Run loads the graph, scans it and applies
// the plan inside a single store transaction.
package gc

import "github.com/timetable/timetable-sync/internal/model"

// SubscriptionRow is the part of a subscription the collector needs.
type SubscriptionRow struct {
	ID        model.Identifier
	AccountID string
	ChannelID model.Identifier
}

// ChannelRow links a channel to its uploads playlist. UploadedPlaylistID is
// zero when no mapping is stored.
type ChannelRow struct {
	ID                 model.Identifier
	UploadedPlaylistID model.Identifier
}

// PlaylistItemRow is one playlist membership edge.
type PlaylistItemRow struct {
	PlaylistID model.Identifier
	ItemID     string
	VideoID    model.Identifier
}

// VideoRow carries what decides whether a video is retained on its own.
type VideoRow struct {
	ID             model.Identifier
	ChannelID      model.Identifier
	BroadcastState model.BroadcastState
	IsFreeChat     bool
}

// Retained reports whether the video is kept regardless of playlist
// membership.
func (v VideoRow) Retained() bool {
	return v.BroadcastState.IsUnfinished() || v.IsFreeChat
}

// Graph is the arena of cached rows as loaded at the start of a pass.
type Graph struct {
	Subscriptions []SubscriptionRow
	Channels      []ChannelRow
	Playlists     []model.Identifier
	Items         []PlaylistItemRow
	Videos        []VideoRow
}

// index holds the adjacency tables derived from a Graph.
type index struct {
	playlistOwners map[model.Identifier][]model.Identifier // playlist -> channels
	itemsByList    map[model.Identifier][]PlaylistItemRow
	videosByChan   map[model.Identifier][]VideoRow
}

func (g *Graph) index() index {
	idx := index{
		playlistOwners: make(map[model.Identifier][]model.Identifier),
		itemsByList:    make(map[model.Identifier][]PlaylistItemRow),
		videosByChan:   make(map[model.Identifier][]VideoRow),
	}
	for _, ch := range g.Channels {
		if !ch.UploadedPlaylistID.IsZero() {
			idx.playlistOwners[ch.UploadedPlaylistID] = append(idx.playlistOwners[ch.UploadedPlaylistID], ch.ID)
		}
	}
	for _, it := range g.Items {
		idx.itemsByList[it.PlaylistID] = append(idx.itemsByList[it.PlaylistID], it)
	}
	for _, v := range g.Videos {
		idx.videosByChan[v.ChannelID] = append(idx.videosByChan[v.ChannelID], v)
	}
	return idx
}
