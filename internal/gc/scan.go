package gc

import "github.com/timetable/timetable-sync/internal/model"

// Plan lists what a pass deletes, grouped by table. Entries are sorted so
// that plans are stable across runs.
type Plan struct {
	Subscriptions []model.Identifier
	// channels whose activity log rows go
	ChannelActivity []model.Identifier
	// playlists whose items go
	PlaylistItems []model.Identifier
	// channels whose uploads playlist mapping goes
	ChannelPlaylists []model.Identifier
	Playlists        []model.Identifier
	Videos           []model.Identifier
	ChannelDetails   []model.Identifier
	Channels         []model.Identifier

	// Detached channels are unreachable but pinned by a retained video. They
	// keep their channel and detail rows.
	Detached []model.Identifier

	// ItemCount is the number of playlist item rows removed with
	// PlaylistItems.
	ItemCount int
}

// Empty reports whether the plan deletes nothing.
func (p *Plan) Empty() bool {
	return len(p.Subscriptions) == 0 &&
		len(p.ChannelActivity) == 0 &&
		len(p.PlaylistItems) == 0 &&
		len(p.ChannelPlaylists) == 0 &&
		len(p.Playlists) == 0 &&
		len(p.Videos) == 0 &&
		len(p.ChannelDetails) == 0 &&
		len(p.Channels) == 0
}

// Scan computes reachability over g and returns the rows to delete. live
// maps every configured account id to its current subscription ids. A stored
// subscription survives only when its account is in live and its id is in
// that account's set, so subscriptions of accounts no longer configured are
// dropped too. A nil live map keeps every subscription. Scan never mutates g.
func Scan(g *Graph, live map[string]model.IDSet) Plan {
	var plan Plan
	idx := g.index()

	// subscriptions -> reachable channels
	removedSubs := model.NewIDSet()
	reachable := model.NewIDSet()
	for _, s := range g.Subscriptions {
		if live != nil && !live[s.AccountID].Has(s.ID) {
			removedSubs.Add(s.ID)
			continue
		}
		reachable.Add(s.ChannelID)
	}

	// channels -> kept playlists
	unreachable := model.NewIDSet()
	keptPlaylists := model.NewIDSet()
	for _, ch := range g.Channels {
		if reachable.Has(ch.ID) {
			if !ch.UploadedPlaylistID.IsZero() {
				keptPlaylists.Add(ch.UploadedPlaylistID)
			}
			continue
		}
		unreachable.Add(ch.ID)
	}

	droppedPlaylists := model.NewIDSet()
	for _, p := range g.Playlists {
		if !keptPlaylists.Has(p) {
			droppedPlaylists.Add(p)
		}
	}
	for p := range idx.playlistOwners {
		if !keptPlaylists.Has(p) {
			droppedPlaylists.Add(p)
		}
	}
	for p, items := range idx.itemsByList {
		if !keptPlaylists.Has(p) {
			droppedPlaylists.Add(p)
			plan.ItemCount += len(items)
		}
	}

	// kept items -> referenced videos
	referenced := model.NewIDSet()
	for p := range keptPlaylists {
		for _, it := range idx.itemsByList[p] {
			referenced.Add(it.VideoID)
		}
	}

	deletedVideos := model.NewIDSet()
	for _, v := range g.Videos {
		if referenced.Has(v.ID) || v.Retained() {
			continue
		}
		deletedVideos.Add(v.ID)
	}

	detached := model.NewIDSet()
	deletedChannels := model.NewIDSet()
	for ch := range unreachable {
		if pinned(idx.videosByChan[ch], deletedVideos) {
			detached.Add(ch)
		} else {
			deletedChannels.Add(ch)
		}
	}

	withMapping := model.NewIDSet()
	for _, ch := range g.Channels {
		if unreachable.Has(ch.ID) && !ch.UploadedPlaylistID.IsZero() {
			withMapping.Add(ch.ID)
		}
	}

	plan.Subscriptions = removedSubs.Sorted()
	plan.ChannelActivity = unreachable.Sorted()
	plan.PlaylistItems = keysWithItems(droppedPlaylists, idx)
	plan.ChannelPlaylists = withMapping.Sorted()
	plan.Playlists = droppedPlaylists.Sorted()
	plan.Videos = deletedVideos.Sorted()
	plan.ChannelDetails = deletedChannels.Sorted()
	plan.Channels = deletedChannels.Sorted()
	plan.Detached = detached.Sorted()
	return plan
}

// pinned reports whether any of videos survives the pass.
func pinned(videos []VideoRow, deleted model.IDSet) bool {
	for _, v := range videos {
		if !deleted.Has(v.ID) {
			return true
		}
	}
	return false
}

func keysWithItems(playlists model.IDSet, idx index) []model.Identifier {
	out := model.NewIDSet()
	for p := range playlists {
		if len(idx.itemsByList[p]) > 0 {
			out.Add(p)
		}
	}
	return out.Sorted()
}
