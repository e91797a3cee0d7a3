// Package youtube fetches subscriptions, channels, uploads and videos from
// the YouTube Data API v3 and maps them to cache snapshots.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/timetable/timetable-sync/internal/model"
	"github.com/timetable/timetable-sync/internal/quota"
)

// MaxBatch is the largest id list a list call accepts.
const MaxBatch = 50

// listCost is the quota cost of every list call used here.
const listCost = 1

// QuotaSpender accounts API units around a call.
type QuotaSpender interface {
	Spend(ctx context.Context, quotaCost int, operationType string, call func() error) error
}

// Option configures the Client.
type Option func(*Client)

// WithQuota charges every call against q.
func WithQuota(q QuotaSpender) Option {
	return func(c *Client) {
		c.quota = q
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFeed falls back to the public uploads feed when the quota is spent.
func WithFeed(f *FeedClient) Option {
	return func(c *Client) {
		c.feed = f
	}
}

// Client wraps the YouTube Data API v3 client.
type Client struct {
	service *youtube.Service
	quota   QuotaSpender
	feed    *FeedClient
	logger  *zap.Logger
}

// NewClient creates a new YouTube API client. clientOpts are passed to the
// API service, e.g. option.WithEndpoint in tests.
func NewClient(ctx context.Context, apiKey string, opts []Option, clientOpts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: YouTube API key is required", model.ErrInvalidArgument)
	}

	service, err := youtube.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, clientOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("create YouTube service: %w", err)
	}

	c := &Client{service: service, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) spend(ctx context.Context, op string, call func() error) error {
	if c.quota == nil {
		return call()
	}
	return c.quota.Spend(ctx, listCost, op, call)
}

// FetchSubscriptions lists the public subscriptions of the channel accountID,
// following every page.
func (c *Client) FetchSubscriptions(ctx context.Context, accountID string) ([]model.Subscription, error) {
	var (
		subs      []model.Subscription
		pageToken string
	)

	for {
		var resp *youtube.SubscriptionListResponse
		err := c.spend(ctx, "subscriptions.list", func() error {
			call := c.service.Subscriptions.List([]string{"snippet"}).
				ChannelId(accountID).
				MaxResults(MaxBatch).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list subscriptions of %s: %w", accountID, err)
		}

		for _, item := range resp.Items {
			if item.Snippet == nil || item.Snippet.ResourceId == nil || item.Snippet.ResourceId.ChannelId == "" {
				continue
			}
			since, err := parseTime(item.Snippet.PublishedAt)
			if err != nil {
				c.logger.Warn("subscription without publish time", zap.String("subscription", item.Id), zap.Error(err))
			}
			subs = append(subs, model.Subscription{
				ID:              model.YouTubeID(model.KindSubscription, item.Id),
				AccountID:       accountID,
				ChannelID:       model.YouTubeID(model.KindChannel, item.Snippet.ResourceId.ChannelId),
				SubscribedSince: since,
				DisplayOrder:    len(subs),
			})
		}

		if resp.NextPageToken == "" {
			return subs, nil
		}
		pageToken = resp.NextPageToken
	}
}

// FetchChannels returns the channels among ids that still exist, with their
// details.
func (c *Client) FetchChannels(ctx context.Context, ids []model.Identifier) ([]model.Channel, []model.ChannelDetail, error) {
	var (
		channels []model.Channel
		details  []model.ChannelDetail
	)

	for _, batch := range batches(ids) {
		var resp *youtube.ChannelListResponse
		err := c.spend(ctx, "channels.list", func() error {
			var err error
			resp, err = c.service.Channels.List([]string{"snippet", "contentDetails", "statistics", "brandingSettings"}).
				Id(values(batch)...).
				MaxResults(MaxBatch).
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			return nil, nil, fmt.Errorf("list channels: %w", err)
		}

		for _, item := range resp.Items {
			ch, detail := mapChannel(item)
			channels = append(channels, ch)
			details = append(details, detail)
		}
	}
	return channels, details, nil
}

func mapChannel(item *youtube.Channel) (model.Channel, model.ChannelDetail) {
	id := model.YouTubeID(model.KindChannel, item.Id)
	ch := model.Channel{ID: id}
	detail := model.ChannelDetail{ChannelID: id}

	if item.Snippet != nil {
		ch.Title = item.Snippet.Title
		ch.IconURL = bestThumbnail(item.Snippet.Thumbnails)
		detail.Description = item.Snippet.Description
	}
	if item.ContentDetails != nil && item.ContentDetails.RelatedPlaylists != nil && item.ContentDetails.RelatedPlaylists.Uploads != "" {
		ch.UploadedPlaylistID = model.YouTubeID(model.KindPlaylist, item.ContentDetails.RelatedPlaylists.Uploads)
	}
	if item.Statistics != nil && !item.Statistics.HiddenSubscriberCount {
		n := int64(item.Statistics.SubscriberCount)
		detail.SubscriberCount = &n
	}
	if item.BrandingSettings != nil && item.BrandingSettings.Image != nil {
		detail.BannerURL = item.BrandingSettings.Image.BannerExternalUrl
	}
	return ch, detail
}

// FetchPlaylistItems returns the newest page of a playlist. When etag still
// matches it returns model.ErrNotModified. Once the quota is spent the public
// uploads feed is used instead, if configured.
func (c *Client) FetchPlaylistItems(ctx context.Context, playlistID model.Identifier, etag string) ([]model.PlaylistItem, string, error) {
	var resp *youtube.PlaylistItemListResponse
	err := c.spend(ctx, "playlistItems.list", func() error {
		call := c.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID.Value).
			MaxResults(MaxBatch).
			Context(ctx)
		if etag != "" {
			call.IfNoneMatch(etag)
		}
		var err error
		resp, err = call.Do()
		return err
	})
	switch {
	case googleapi.IsNotModified(err):
		return nil, etag, model.ErrNotModified
	case isQuotaExhausted(err) && c.feed != nil:
		c.logger.Info("quota exhausted, reading uploads feed", zap.String("playlist", playlistID.Value))
		items, err := c.feed.FetchPlaylistItems(ctx, playlistID)
		return items, "", err
	case err != nil:
		return nil, "", fmt.Errorf("list playlist items of %s: %w", playlistID.Value, err)
	}

	items := make([]model.PlaylistItem, 0, len(resp.Items))
	seen := make(map[string]struct{}, len(resp.Items))
	for _, item := range resp.Items {
		if item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
			continue
		}
		videoID := item.ContentDetails.VideoId
		if _, dup := seen[videoID]; dup {
			continue
		}
		seen[videoID] = struct{}{}

		published := item.ContentDetails.VideoPublishedAt
		if published == "" && item.Snippet != nil {
			published = item.Snippet.PublishedAt
		}
		at, err := parseTime(published)
		if err != nil {
			c.logger.Warn("playlist item without publish time", zap.String("video", videoID), zap.Error(err))
		}

		items = append(items, model.PlaylistItem{
			ID:          videoID,
			VideoID:     model.YouTubeID(model.KindVideo, videoID),
			PublishedAt: at,
		})
	}
	return items, resp.Etag, nil
}

// FetchVideos returns the videos among ids that still exist. Deleted and
// private videos are simply absent.
func (c *Client) FetchVideos(ctx context.Context, ids []model.Identifier) ([]model.Video, error) {
	var videos []model.Video

	for _, batch := range batches(ids) {
		var resp *youtube.VideoListResponse
		err := c.spend(ctx, "videos.list", func() error {
			var err error
			resp, err = c.service.Videos.List([]string{"snippet", "liveStreamingDetails"}).
				Id(values(batch)...).
				MaxResults(MaxBatch).
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list videos: %w", err)
		}

		for _, item := range resp.Items {
			v := mapVideo(item)
			if err := v.Validate(); err != nil {
				c.logger.Warn("skipping inconsistent video", zap.String("video", item.Id), zap.Error(err))
				continue
			}
			videos = append(videos, v)
		}
	}
	return videos, nil
}

func mapVideo(item *youtube.Video) model.Video {
	v := model.Video{
		ID:             model.YouTubeID(model.KindVideo, item.Id),
		BroadcastState: model.BroadcastNone,
	}

	if s := item.Snippet; s != nil {
		v.ChannelID = model.YouTubeID(model.KindChannel, s.ChannelId)
		v.Title = s.Title
		v.Description = s.Description
		v.ThumbnailURL = bestThumbnail(s.Thumbnails)
		switch s.LiveBroadcastContent {
		case "live":
			v.BroadcastState = model.BroadcastLive
		case "upcoming":
			v.BroadcastState = model.BroadcastUpcoming
		}
	}

	if d := item.LiveStreamingDetails; d != nil {
		v.ScheduledStart = optionalTime(d.ScheduledStartTime)
		v.ScheduledEnd = optionalTime(d.ScheduledEndTime)
		v.ActualStart = optionalTime(d.ActualStartTime)
		v.ActualEnd = optionalTime(d.ActualEndTime)
		// liveBroadcastContent lags liveStreamingDetails around transitions
		v.Reconcile()
		if v.BroadcastState == model.BroadcastLive {
			n := int64(d.ConcurrentViewers)
			v.ViewerCount = &n
		}
	}
	return v
}

func bestThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.Maxres, t.Standard, t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

func isQuotaExhausted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, quota.ErrExhausted) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusForbidden {
		for _, e := range gerr.Errors {
			if e.Reason == "quotaExceeded" || e.Reason == "dailyLimitExceeded" {
				return true
			}
		}
	}
	return false
}

func batches(ids []model.Identifier) [][]model.Identifier {
	var out [][]model.Identifier
	for i := 0; i < len(ids); i += MaxBatch {
		out = append(out, ids[i:min(i+MaxBatch, len(ids))])
	}
	return out
}

func values(ids []model.Identifier) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Value
	}
	return out
}

// parseTime parses RFC3339 timestamps from the API.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func optionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := parseTime(s)
	if err != nil {
		return nil
	}
	return &t
}
