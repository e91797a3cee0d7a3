package freshness

import (
	"maps"
	"time"

	"github.com/timetable/timetable-sync/internal/model"
)

// PlaylistAdapter adapts the max age of playlist item caches: unchanged
// content doubles the interval up to an activity-dependent ceiling, any
// change snaps it back to the default.
type PlaylistAdapter struct {
	policy PlaylistPolicy
}

// NewPlaylistAdapter validates policy and returns an adapter.
func NewPlaylistAdapter(policy PlaylistPolicy) (*PlaylistAdapter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &PlaylistAdapter{policy: policy}, nil
}

// Policy returns the bounds in use.
func (a *PlaylistAdapter) Policy() PlaylistPolicy {
	return a.policy
}

// NewPlaylist builds the first snapshot of a playlist. Empty playlists are
// polled at MaxAgeMax.
func (a *PlaylistAdapter) NewPlaylist(id model.Identifier, items []model.PlaylistItem, fetchedAt time.Time) (model.PlaylistSnapshot, error) {
	if err := model.ValidateItems(items); err != nil {
		return model.PlaylistSnapshot{}, err
	}
	return a.snapshot(id, items, fetchedAt, a.initialMaxAge(items))
}

// Update folds a freshly fetched item list of playlist id into the cached
// snapshot. A nil cached snapshot behaves as NewPlaylist. The returned
// snapshot carries no ETag; callers set the one of the fetch.
func (a *PlaylistAdapter) Update(id model.Identifier, cached *model.PlaylistSnapshot, items []model.PlaylistItem, fetchedAt time.Time) (model.PlaylistSnapshot, error) {
	if cached == nil {
		return a.NewPlaylist(id, items, fetchedAt)
	}
	if err := model.ValidateItems(items); err != nil {
		return model.PlaylistSnapshot{}, err
	}

	if ItemsChanged(cached, items) {
		return a.snapshot(id, items, fetchedAt, a.initialMaxAge(items))
	}

	base := cached.CacheControl.MaxAgeOr(a.policy.MaxAgeDefault)
	if base <= 0 {
		base = a.policy.MaxAgeDefault
	}
	limit := a.policy.UpperLimitInactive
	if a.IsActive(&model.PlaylistSnapshot{Items: items}, fetchedAt) {
		limit = a.policy.UpperLimitActive
	}
	return a.snapshot(id, items, fetchedAt, min(base*2, limit))
}

// IsActive reports whether the latest item was published within
// RecentlyBorder of fetchedAt.
func (a *PlaylistAdapter) IsActive(p *model.PlaylistSnapshot, fetchedAt time.Time) bool {
	latest := p.Latest()
	if latest == nil {
		return false
	}
	return fetchedAt.Sub(latest.PublishedAt) <= a.policy.RecentlyBorder
}

// ItemsChanged compares item id sets, ignoring order.
func ItemsChanged(cached *model.PlaylistSnapshot, items []model.PlaylistItem) bool {
	return !maps.Equal(cached.ItemIDs(), model.ItemIDs(items))
}

func (a *PlaylistAdapter) initialMaxAge(items []model.PlaylistItem) time.Duration {
	if len(items) == 0 {
		return a.policy.MaxAgeMax
	}
	return a.policy.MaxAgeDefault
}

func (a *PlaylistAdapter) snapshot(id model.Identifier, items []model.PlaylistItem, fetchedAt time.Time, maxAge time.Duration) (model.PlaylistSnapshot, error) {
	cc, err := model.NewCacheControl(fetchedAt, maxAge)
	if err != nil {
		return model.PlaylistSnapshot{}, err
	}
	return model.PlaylistSnapshot{ID: id, Items: items, CacheControl: cc}, nil
}
