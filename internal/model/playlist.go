package model

import (
	"fmt"
	"time"
)

// PlaylistItem is one entry of a playlist snapshot.
type PlaylistItem struct {
	ID          string
	VideoID     Identifier
	PublishedAt time.Time
}

// PlaylistSnapshot is the cached item list of a playlist.
type PlaylistSnapshot struct {
	ID           Identifier
	Items        []PlaylistItem
	CacheControl CacheControl
	ETag         string
}

// ValidateItems checks that item ids are unique.
func ValidateItems(items []PlaylistItem) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("%w: duplicate playlist item %q", ErrInvalidArgument, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

// ItemIDs returns the set of item ids of items.
func ItemIDs(items []PlaylistItem) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it.ID] = struct{}{}
	}
	return out
}

// ItemIDs returns the set of item ids.
func (p *PlaylistSnapshot) ItemIDs() map[string]struct{} {
	return ItemIDs(p.Items)
}

// VideoIDs returns the videos referenced by the snapshot.
func (p *PlaylistSnapshot) VideoIDs() IDSet {
	out := make(IDSet, len(p.Items))
	for _, it := range p.Items {
		out.Add(it.VideoID)
	}
	return out
}

// Latest returns the most recently published item, or nil for an empty
// snapshot.
func (p *PlaylistSnapshot) Latest() *PlaylistItem {
	var latest *PlaylistItem
	for i := range p.Items {
		if latest == nil || p.Items[i].PublishedAt.After(latest.PublishedAt) {
			latest = &p.Items[i]
		}
	}
	return latest
}
