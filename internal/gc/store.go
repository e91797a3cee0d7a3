package gc

import (
	"context"

	"github.com/timetable/timetable-sync/internal/model"
)

// Store scopes a pass to one atomic transaction. When fn returns an error
// every deletion made through tx is rolled back.
type Store interface {
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of the cache inside a transaction. Delete methods return
// the number of rows removed.
type Tx interface {
	LoadGraph(ctx context.Context) (*Graph, error)

	DeleteSubscriptions(ctx context.Context, ids []model.Identifier) (int64, error)
	DeleteChannelActivity(ctx context.Context, channelIDs []model.Identifier) (int64, error)
	DeletePlaylistItems(ctx context.Context, playlistIDs []model.Identifier) (int64, error)
	DeleteChannelPlaylists(ctx context.Context, channelIDs []model.Identifier) (int64, error)
	DeletePlaylists(ctx context.Context, ids []model.Identifier) (int64, error)
	DeleteVideos(ctx context.Context, ids []model.Identifier) (int64, error)
	DeleteChannelDetails(ctx context.Context, channelIDs []model.Identifier) (int64, error)
	DeleteChannels(ctx context.Context, ids []model.Identifier) (int64, error)
}

// Locker serializes passes. TryLock never blocks: acquired is false when
// another holder owns the lock.
type Locker interface {
	TryLock(ctx context.Context) (release func(context.Context) error, acquired bool, err error)
}

// ReportPublisher is notified of every committed pass.
type ReportPublisher interface {
	PublishGCReport(ctx context.Context, report *Report) error
}
