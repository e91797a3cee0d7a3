package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/timetable/timetable-sync/internal/model"
)

const defaultFeedURL = "https://www.youtube.com/feeds/videos.xml"

// atomFeed is the public Atom 1.0 uploads feed with the YouTube namespace.
type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	VideoID   string    `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	Published time.Time `xml:"published"`
}

// FeedClient reads the newest uploads of a playlist from the quota-free
// Atom feed. The feed carries no broadcast state, so it only replaces
// playlistItems.list.
type FeedClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewFeedClient creates a FeedClient. An empty baseURL uses YouTube's.
func NewFeedClient(httpClient *http.Client, baseURL string) *FeedClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultFeedURL
	}
	return &FeedClient{httpClient: httpClient, baseURL: baseURL}
}

// FetchPlaylistItems returns the entries of the playlist feed.
func (f *FeedClient) FetchPlaylistItems(ctx context.Context, playlistID model.Identifier) ([]model.PlaylistItem, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("playlist_id", playlistID.Value)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed of %s: status %d", playlistID.Value, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	return ParseFeed(body)
}

// ParseFeed extracts playlist items from an uploads feed document.
func ParseFeed(raw []byte) ([]model.PlaylistItem, error) {
	var feed atomFeed
	if err := xml.Unmarshal(raw, &feed); err != nil {
		return nil, fmt.Errorf("unmarshal atom feed: %w", err)
	}

	items := make([]model.PlaylistItem, 0, len(feed.Entries))
	seen := make(map[string]struct{}, len(feed.Entries))
	for i, e := range feed.Entries {
		if e.VideoID == "" {
			return nil, fmt.Errorf("atom entry %d missing video ID", i)
		}
		if _, dup := seen[e.VideoID]; dup {
			continue
		}
		seen[e.VideoID] = struct{}{}
		items = append(items, model.PlaylistItem{
			ID:          e.VideoID,
			VideoID:     model.YouTubeID(model.KindVideo, e.VideoID),
			PublishedAt: e.Published.UTC(),
		})
	}
	return items, nil
}
