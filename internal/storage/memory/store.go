// Package memory is an in-process cache store with the same foreign key
// behaviour as the Postgres schema. It backs the syncer and gc unit tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/timetable/timetable-sync/internal/db"
	"github.com/timetable/timetable-sync/internal/gc"
	"github.com/timetable/timetable-sync/internal/model"
)

type state struct {
	subscriptions    map[model.Identifier]model.Subscription
	following        map[model.Identifier]model.FollowingSet
	channels         map[model.Identifier]model.Channel
	details          map[model.Identifier]model.ChannelDetail
	activity         []model.ChannelActivity
	nextActivityID   int64
	playlists        map[model.Identifier]model.PlaylistSnapshot
	channelPlaylists map[model.Identifier]model.Identifier
	videos           map[model.Identifier]model.ClassifiedVideo
}

func newState() *state {
	return &state{
		subscriptions:    make(map[model.Identifier]model.Subscription),
		following:        make(map[model.Identifier]model.FollowingSet),
		channels:         make(map[model.Identifier]model.Channel),
		details:          make(map[model.Identifier]model.ChannelDetail),
		playlists:        make(map[model.Identifier]model.PlaylistSnapshot),
		channelPlaylists: make(map[model.Identifier]model.Identifier),
		videos:           make(map[model.Identifier]model.ClassifiedVideo),
	}
}

// clone copies the maps. Stored values are never mutated in place, so the
// copy shares them.
func (s *state) clone() *state {
	return &state{
		subscriptions:    maps.Clone(s.subscriptions),
		following:        maps.Clone(s.following),
		channels:         maps.Clone(s.channels),
		details:          maps.Clone(s.details),
		activity:         slices.Clone(s.activity),
		nextActivityID:   s.nextActivityID,
		playlists:        maps.Clone(s.playlists),
		channelPlaylists: maps.Clone(s.channelPlaylists),
		videos:           maps.Clone(s.videos),
	}
}

// Store keeps the whole cache in maps guarded by one mutex. A transaction
// works on a copy that replaces the live state only on success.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Transaction implements gc.Store.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx gc.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &tx{state: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.state = work
	return nil
}

func (s *Store) ListSubscriptions(_ context.Context, accountID string) ([]model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Subscription
	for _, sub := range s.state.subscriptions {
		if sub.AccountID == accountID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) UpsertSubscriptions(_ context.Context, subs []model.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range subs {
		s.state.subscriptions[sub.ID] = sub
	}
	return nil
}

func (s *Store) GetFollowingSet(_ context.Context, followerID model.Identifier) (*model.FollowingSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.state.following[followerID]
	if !ok {
		return nil, fmt.Errorf("get following set %s: %w", followerID, db.ErrNotFound)
	}
	set.Broadcasters = slices.Clone(set.Broadcasters)
	return &set, nil
}

func (s *Store) PutFollowingSet(_ context.Context, set model.FollowingSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set.Broadcasters = slices.Clone(set.Broadcasters)
	s.state.following[set.FollowerID] = set
	return nil
}

func (s *Store) GetChannel(_ context.Context, id model.Identifier) (*model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.state.channels[id]
	if !ok {
		return nil, fmt.Errorf("get channel %s: %w", id, db.ErrNotFound)
	}
	return &ch, nil
}

func (s *Store) UpsertChannel(_ context.Context, ch model.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.channels[ch.ID] = ch
	return nil
}

func (s *Store) UpsertChannelDetail(_ context.Context, d model.ChannelDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.channels[d.ChannelID]; !ok {
		return fmt.Errorf("upsert channel detail %s: %w", d.ChannelID, db.ErrForeignKeyViolation)
	}
	s.state.details[d.ChannelID] = d
	return nil
}

func (s *Store) AppendChannelActivity(_ context.Context, a model.ChannelActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.channels[a.ChannelID]; !ok {
		return fmt.Errorf("append channel activity %s: %w", a.ChannelID, db.ErrForeignKeyViolation)
	}
	s.state.nextActivityID++
	a.ID = s.state.nextActivityID
	a.VideoIDs = slices.Clone(a.VideoIDs)
	s.state.activity = append(s.state.activity, a)
	return nil
}

// ChannelActivity returns the activity rows of channelID in insertion order.
func (s *Store) ChannelActivity(channelID model.Identifier) []model.ChannelActivity {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.ChannelActivity
	for _, a := range s.state.activity {
		if a.ChannelID == channelID {
			out = append(out, a)
		}
	}
	return out
}

// ChannelDetail returns the detail row of channelID.
func (s *Store) ChannelDetail(channelID model.Identifier) (model.ChannelDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.state.details[channelID]
	return d, ok
}

func (s *Store) GetPlaylist(_ context.Context, id model.Identifier) (*model.PlaylistSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.state.playlists[id]
	if !ok {
		return nil, fmt.Errorf("get playlist %s: %w", id, db.ErrNotFound)
	}
	p.Items = slices.Clone(p.Items)
	return &p, nil
}

func (s *Store) PutPlaylist(_ context.Context, channelID model.Identifier, p model.PlaylistSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.channels[channelID]; !ok {
		return fmt.Errorf("put playlist %s: %w", p.ID, db.ErrForeignKeyViolation)
	}
	p.Items = slices.Clone(p.Items)
	s.state.playlists[p.ID] = p
	s.state.channelPlaylists[channelID] = p.ID
	return nil
}

func (s *Store) GetVideos(_ context.Context, ids []model.Identifier) (map[model.Identifier]model.ClassifiedVideo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[model.Identifier]model.ClassifiedVideo, len(ids))
	for _, id := range ids {
		if v, ok := s.state.videos[id]; ok {
			out[id] = model.RestoreClassifiedVideo(v.Video, v.IsFreeChat, v.UpdatableAt)
		}
	}
	return out, nil
}

func (s *Store) ListExpiredVideos(_ context.Context, now time.Time, limit int) ([]model.Identifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []model.ClassifiedVideo
	for _, v := range s.state.videos {
		if v.IsExpired(now) {
			due = append(due, v)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].UpdatableAt.Equal(*due[j].UpdatableAt) {
			return due[i].UpdatableAt.Before(*due[j].UpdatableAt)
		}
		return due[i].ID.String() < due[j].ID.String()
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]model.Identifier, len(due))
	for i, v := range due {
		out[i] = v.ID
	}
	return out, nil
}

// PutVideos rejects the whole batch when any video is invalid, as the
// Postgres repository does.
func (s *Store) PutVideos(_ context.Context, videos []model.ClassifiedVideo) error {
	for i := range videos {
		if err := videos[i].Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range videos {
		s.state.videos[v.ID] = v
	}
	return nil
}

func (s *Store) ListTimetableVideos(_ context.Context) ([]model.ClassifiedVideo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.ClassifiedVideo
	for _, v := range s.state.videos {
		if v.IsRetained() {
			out = append(out, model.RestoreClassifiedVideo(v.Video, v.IsFreeChat, v.UpdatableAt))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// Counts returns the number of rows per table, for assertions.
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := 0
	for _, p := range s.state.playlists {
		items += len(p.Items)
	}
	return map[string]int{
		"subscriptions":     len(s.state.subscriptions),
		"following_sets":    len(s.state.following),
		"channels":          len(s.state.channels),
		"channel_details":   len(s.state.details),
		"channel_activity":  len(s.state.activity),
		"playlists":         len(s.state.playlists),
		"channel_playlists": len(s.state.channelPlaylists),
		"playlist_items":    items,
		"videos":            len(s.state.videos),
	}
}

// HasVideo reports whether id is cached.
func (s *Store) HasVideo(id model.Identifier) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.state.videos[id]
	return ok
}

// HasChannel reports whether id is cached.
func (s *Store) HasChannel(id model.Identifier) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.state.channels[id]
	return ok
}
