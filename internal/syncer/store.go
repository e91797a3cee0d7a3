package syncer

import (
	"context"
	"time"

	"github.com/timetable/timetable-sync/internal/model"
)

// Store is the cache written by a sync pass. Lookups of a single missing
// row return db.ErrNotFound.
type Store interface {
	ListSubscriptions(ctx context.Context, accountID string) ([]model.Subscription, error)
	UpsertSubscriptions(ctx context.Context, subs []model.Subscription) error

	GetFollowingSet(ctx context.Context, followerID model.Identifier) (*model.FollowingSet, error)
	PutFollowingSet(ctx context.Context, set model.FollowingSet) error

	GetChannel(ctx context.Context, id model.Identifier) (*model.Channel, error)
	UpsertChannel(ctx context.Context, ch model.Channel) error
	UpsertChannelDetail(ctx context.Context, d model.ChannelDetail) error
	AppendChannelActivity(ctx context.Context, a model.ChannelActivity) error

	GetPlaylist(ctx context.Context, id model.Identifier) (*model.PlaylistSnapshot, error)
	// PutPlaylist replaces the snapshot and maps it as channelID's uploads.
	PutPlaylist(ctx context.Context, channelID model.Identifier, p model.PlaylistSnapshot) error

	GetVideos(ctx context.Context, ids []model.Identifier) (map[model.Identifier]model.ClassifiedVideo, error)
	ListExpiredVideos(ctx context.Context, now time.Time, limit int) ([]model.Identifier, error)
	PutVideos(ctx context.Context, videos []model.ClassifiedVideo) error

	// ListTimetableVideos returns the unfinished and free chat videos.
	ListTimetableVideos(ctx context.Context) ([]model.ClassifiedVideo, error)
}
