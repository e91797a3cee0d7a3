// Package twitch fetches followed broadcasters, users, archives and live
// streams from the Twitch Helix API and maps them to cache snapshots.
package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/timetable/timetable-sync/internal/model"
)

const (
	defaultBaseURL = "https://api.twitch.tv/helix"
	// MaxBatch is the largest id list and page size Helix accepts.
	MaxBatch = 100
	// DefaultRequestsPerSecond keeps under the 800 points per minute bucket.
	DefaultRequestsPerSecond = 12

	archivePage = 20
)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithRateLimit replaces the request rate limiter.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client is a Twitch Helix API client authenticated with a static user
// access token.
type Client struct {
	clientID   string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a new Helix client.
func NewClient(ctx context.Context, clientID, accessToken string, opts ...ClientOption) (*Client, error) {
	if clientID == "" || accessToken == "" {
		return nil, fmt.Errorf("%w: Twitch client id and access token are required", model.ErrInvalidArgument)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	c := &Client{
		clientID:   clientID,
		baseURL:    defaultBaseURL,
		httpClient: oauth2.NewClient(ctx, ts),
		limiter:    rate.NewLimiter(DefaultRequestsPerSecond, DefaultRequestsPerSecond),
		logger:     zap.NewNop(),
	}
	c.httpClient.Timeout = 20 * time.Second

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type pagination struct {
	Cursor string `json:"cursor"`
}

type followedResponse struct {
	Data []struct {
		BroadcasterID string `json:"broadcaster_id"`
		FollowedAt    string `json:"followed_at"`
	} `json:"data"`
	Pagination pagination `json:"pagination"`
}

type usersResponse struct {
	Data []struct {
		ID              string `json:"id"`
		DisplayName     string `json:"display_name"`
		Description     string `json:"description"`
		ProfileImageURL string `json:"profile_image_url"`
		OfflineImageURL string `json:"offline_image_url"`
	} `json:"data"`
}

type helixVideo struct {
	ID           string  `json:"id"`
	StreamID     *string `json:"stream_id"`
	UserID       string  `json:"user_id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	CreatedAt    string  `json:"created_at"`
	PublishedAt  string  `json:"published_at"`
	ThumbnailURL string  `json:"thumbnail_url"`
	Duration     string  `json:"duration"`
}

type videosResponse struct {
	Data       []helixVideo `json:"data"`
	Pagination pagination   `json:"pagination"`
}

type helixStream struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Title        string `json:"title"`
	ViewerCount  int64  `json:"viewer_count"`
	StartedAt    string `json:"started_at"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type streamsResponse struct {
	Data []helixStream `json:"data"`
}

type followedParams struct {
	UserID string `url:"user_id"`
	First  int    `url:"first"`
	After  string `url:"after,omitempty"`
}

type idsParams struct {
	ID     []string `url:"id,omitempty"`
	UserID []string `url:"user_id,omitempty"`
	First  int      `url:"first,omitempty"`
	Type   string   `url:"type,omitempty"`
}

// FetchFollowing returns every broadcaster followerID follows.
func (c *Client) FetchFollowing(ctx context.Context, followerID model.Identifier) ([]model.Broadcaster, error) {
	var (
		out   []model.Broadcaster
		after string
	)
	for {
		var resp followedResponse
		params := followedParams{UserID: followerID.Value, First: MaxBatch, After: after}
		if err := c.get(ctx, "/channels/followed", params, &resp); err != nil {
			return nil, fmt.Errorf("list followed channels of %s: %w", followerID.Value, err)
		}

		for _, f := range resp.Data {
			at, err := parseTime(f.FollowedAt)
			if err != nil {
				c.logger.Warn("follow without timestamp", zap.String("broadcaster", f.BroadcasterID), zap.Error(err))
			}
			out = append(out, model.Broadcaster{
				ID:         model.TwitchID(model.KindBroadcaster, f.BroadcasterID),
				FollowedAt: at,
			})
		}

		if resp.Pagination.Cursor == "" || len(resp.Data) == 0 {
			return out, nil
		}
		after = resp.Pagination.Cursor
	}
}

// FetchChannels returns the users among ids. A Twitch channel's uploads
// playlist is the user's archive list, keyed by the user id.
func (c *Client) FetchChannels(ctx context.Context, ids []model.Identifier) ([]model.Channel, []model.ChannelDetail, error) {
	var (
		channels []model.Channel
		details  []model.ChannelDetail
	)
	for _, batch := range batches(ids) {
		var resp usersResponse
		if err := c.get(ctx, "/users", idsParams{ID: values(batch)}, &resp); err != nil {
			return nil, nil, fmt.Errorf("list users: %w", err)
		}
		for _, u := range resp.Data {
			id := model.TwitchID(model.KindChannel, u.ID)
			channels = append(channels, model.Channel{
				ID:                 id,
				Title:              u.DisplayName,
				IconURL:            u.ProfileImageURL,
				UploadedPlaylistID: model.TwitchID(model.KindPlaylist, u.ID),
			})
			details = append(details, model.ChannelDetail{
				ChannelID:   id,
				Description: u.Description,
				BannerURL:   u.OfflineImageURL,
			})
		}
	}
	return channels, details, nil
}

// FetchPlaylistItems returns the newest archives of the user owning
// playlistID. Helix has no entity tags, so etag is ignored.
func (c *Client) FetchPlaylistItems(ctx context.Context, playlistID model.Identifier, _ string) ([]model.PlaylistItem, string, error) {
	var resp videosResponse
	params := idsParams{UserID: []string{playlistID.Value}, First: archivePage, Type: "archive"}
	if err := c.get(ctx, "/videos", params, &resp); err != nil {
		return nil, "", fmt.Errorf("list archives of %s: %w", playlistID.Value, err)
	}

	items := make([]model.PlaylistItem, 0, len(resp.Data))
	for _, v := range resp.Data {
		at, err := parseTime(v.CreatedAt)
		if err != nil {
			c.logger.Warn("archive without creation time", zap.String("video", v.ID), zap.Error(err))
		}
		items = append(items, model.PlaylistItem{
			ID:          v.ID,
			VideoID:     model.TwitchID(model.KindVideo, v.ID),
			PublishedAt: at,
		})
	}
	return items, "", nil
}

// FetchVideos returns the videos among ids. An archive whose stream is
// still running is live; any other archive has ended.
func (c *Client) FetchVideos(ctx context.Context, ids []model.Identifier) ([]model.Video, error) {
	var raw []helixVideo
	for _, batch := range batches(ids) {
		var resp videosResponse
		if err := c.get(ctx, "/videos", idsParams{ID: values(batch)}, &resp); err != nil {
			return nil, fmt.Errorf("list videos: %w", err)
		}
		raw = append(raw, resp.Data...)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	streams, err := c.liveStreams(ctx, raw)
	if err != nil {
		return nil, err
	}

	videos := make([]model.Video, 0, len(raw))
	for _, hv := range raw {
		v := mapVideo(hv, streams[hv.UserID])
		if err := v.Validate(); err != nil {
			c.logger.Warn("skipping inconsistent video", zap.String("video", hv.ID), zap.Error(err))
			continue
		}
		videos = append(videos, v)
	}
	return videos, nil
}

func (c *Client) liveStreams(ctx context.Context, videos []helixVideo) (map[string]helixStream, error) {
	seen := make(map[string]struct{})
	var users []model.Identifier
	for _, v := range videos {
		if _, ok := seen[v.UserID]; ok {
			continue
		}
		seen[v.UserID] = struct{}{}
		users = append(users, model.TwitchID(model.KindChannel, v.UserID))
	}

	out := make(map[string]helixStream)
	for _, batch := range batches(users) {
		var resp streamsResponse
		if err := c.get(ctx, "/streams", idsParams{UserID: values(batch), First: MaxBatch}, &resp); err != nil {
			return nil, fmt.Errorf("list streams: %w", err)
		}
		for _, s := range resp.Data {
			out[s.UserID] = s
		}
	}
	return out, nil
}

func mapVideo(hv helixVideo, stream helixStream) model.Video {
	v := model.Video{
		ID:             model.TwitchID(model.KindVideo, hv.ID),
		ChannelID:      model.TwitchID(model.KindChannel, hv.UserID),
		Title:          hv.Title,
		Description:    hv.Description,
		ThumbnailURL:   thumbnail(hv.ThumbnailURL),
		BroadcastState: model.BroadcastNone,
	}

	created, err := parseTime(hv.CreatedAt)
	if err != nil {
		return v
	}

	if hv.StreamID != nil && stream.ID != "" && *hv.StreamID == stream.ID {
		v.BroadcastState = model.BroadcastLive
		start := created
		if t, err := parseTime(stream.StartedAt); err == nil {
			start = t
		}
		v.ActualStart = &start
		if stream.Title != "" {
			v.Title = stream.Title
		}
		viewers := stream.ViewerCount
		v.ViewerCount = &viewers
		return v
	}

	v.ActualStart = &created
	if d, err := time.ParseDuration(hv.Duration); err == nil {
		end := created.Add(d)
		v.ActualEnd = &end
	}
	return v
}

// thumbnail fills the size placeholders of Helix thumbnail templates.
func thumbnail(tmpl string) string {
	r := strings.NewReplacer("%{width}", "1280", "%{height}", "720", "{width}", "1280", "{height}", "720")
	return r.Replace(tmpl)
}

func (c *Client) get(ctx context.Context, path string, params any, out any) error {
	values, err := query.Values(params)
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+values.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// APIError is a non-200 Helix response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return "twitch API authentication failed: " + e.Body
	case http.StatusTooManyRequests:
		return "twitch API rate limit exceeded"
	default:
		return fmt.Sprintf("twitch API error (status %d): %s", e.StatusCode, e.Body)
	}
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

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
