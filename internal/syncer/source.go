package syncer

import (
	"context"

	"github.com/timetable/timetable-sync/internal/gc"
	"github.com/timetable/timetable-sync/internal/model"
)

// SubscriptionSource lists the channels a YouTube account subscribes to.
type SubscriptionSource interface {
	FetchSubscriptions(ctx context.Context, accountID string) ([]model.Subscription, error)
}

// FollowingSource lists the broadcasters a Twitch user follows.
type FollowingSource interface {
	FetchFollowing(ctx context.Context, followerID model.Identifier) ([]model.Broadcaster, error)
}

// ContentSource fetches channel, upload and video metadata of one platform.
// Entities that no longer exist remotely are absent from the results.
type ContentSource interface {
	FetchChannels(ctx context.Context, ids []model.Identifier) ([]model.Channel, []model.ChannelDetail, error)
	// FetchPlaylistItems returns model.ErrNotModified when etag still
	// matches the remote list.
	FetchPlaylistItems(ctx context.Context, playlistID model.Identifier, etag string) ([]model.PlaylistItem, string, error)
	FetchVideos(ctx context.Context, ids []model.Identifier) ([]model.Video, error)
}

// ThumbnailPublisher requests a refresh of a video's cached thumbnail.
type ThumbnailPublisher interface {
	PublishThumbnailRefresh(ctx context.Context, video *model.ClassifiedVideo) error
}

// TimetablePublisher replaces the published timetable view.
type TimetablePublisher interface {
	PublishTimetable(ctx context.Context, videos []model.ClassifiedVideo) error
}

// GarbageCollector evicts rows no longer reachable from live subscriptions.
// live holds an entry for every configured account.
type GarbageCollector interface {
	Run(ctx context.Context, live map[string]model.IDSet) (*gc.Report, error)
}
