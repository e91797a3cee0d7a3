package twitch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timetable/timetable-sync/internal/model"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		assert.Equal(t, "client-id", r.Header.Get("Client-Id"))
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(context.Background(), "client-id", "user-token",
		WithBaseURL(server.URL),
		WithRateLimit(1000, 100),
	)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), "", "token")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
	_, err = NewClient(context.Background(), "id", "")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestClient_FetchFollowing_Paginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/channels/followed", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("user_id"))
		assert.Equal(t, "100", r.URL.Query().Get("first"))
		if r.URL.Query().Get("after") == "" {
			writeJSON(w, map[string]any{
				"data":       []any{map[string]any{"broadcaster_id": "1", "followed_at": "2024-01-01T00:00:00Z"}},
				"pagination": map[string]any{"cursor": "c1"},
			})
			return
		}
		writeJSON(w, map[string]any{
			"data":       []any{map[string]any{"broadcaster_id": "2", "followed_at": "2024-02-01T00:00:00Z"}},
			"pagination": map[string]any{},
		})
	})
	c := newTestClient(t, mux)

	got, err := c.FetchFollowing(context.Background(), model.TwitchID(model.KindBroadcaster, "42"))
	require.NoError(t, err)
	assert.Equal(t, []model.Broadcaster{
		{ID: model.TwitchID(model.KindBroadcaster, "1"), FollowedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: model.TwitchID(model.KindBroadcaster, "2"), FollowedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	}, got)
}

func TestClient_FetchChannels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"1", "2"}, r.URL.Query()["id"])
		writeJSON(w, map[string]any{"data": []any{
			map[string]any{"id": "1", "display_name": "One", "description": "first", "profile_image_url": "https://img/1", "offline_image_url": "https://img/off"},
		}})
	})
	c := newTestClient(t, mux)

	channels, details, err := c.FetchChannels(context.Background(), []model.Identifier{
		model.TwitchID(model.KindChannel, "1"),
		model.TwitchID(model.KindChannel, "2"),
	})
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "One", channels[0].Title)
	assert.Equal(t, model.TwitchID(model.KindPlaylist, "1"), channels[0].UploadedPlaylistID)
	assert.Equal(t, "https://img/off", details[0].BannerURL)
}

func TestClient_FetchPlaylistItems(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("user_id"))
		assert.Equal(t, "archive", r.URL.Query().Get("type"))
		writeJSON(w, map[string]any{"data": []any{
			map[string]any{"id": "v2", "user_id": "1", "created_at": "2024-05-02T10:00:00Z"},
			map[string]any{"id": "v1", "user_id": "1", "created_at": "2024-05-01T10:00:00Z"},
		}})
	})
	c := newTestClient(t, mux)

	items, etag, err := c.FetchPlaylistItems(context.Background(), model.TwitchID(model.KindPlaylist, "1"), "ignored")
	require.NoError(t, err)
	assert.Empty(t, etag)
	require.Len(t, items, 2)
	assert.Equal(t, model.TwitchID(model.KindVideo, "v2"), items[0].VideoID)
}

func TestClient_FetchVideos_LiveAndArchived(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": []any{
			map[string]any{"id": "live", "stream_id": "s1", "user_id": "1", "title": "vod title", "created_at": "2024-05-01T10:00:00Z", "duration": "1h2m", "thumbnail_url": "https://img/%{width}x%{height}.jpg"},
			map[string]any{"id": "old", "stream_id": "s0", "user_id": "1", "title": "yesterday", "created_at": "2024-04-30T10:00:00Z", "duration": "3h8m33s"},
		}})
	})
	mux.HandleFunc("/streams", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"1"}, r.URL.Query()["user_id"])
		writeJSON(w, map[string]any{"data": []any{
			map[string]any{"id": "s1", "user_id": "1", "title": "live title", "viewer_count": 77, "started_at": "2024-05-01T10:00:05Z"},
		}})
	})
	c := newTestClient(t, mux)

	videos, err := c.FetchVideos(context.Background(), []model.Identifier{
		model.TwitchID(model.KindVideo, "live"),
		model.TwitchID(model.KindVideo, "old"),
	})
	require.NoError(t, err)
	require.Len(t, videos, 2)

	live := videos[0]
	assert.Equal(t, model.BroadcastLive, live.BroadcastState)
	assert.Equal(t, "live title", live.Title)
	assert.Equal(t, int64(77), *live.ViewerCount)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 5, 0, time.UTC), *live.ActualStart)
	assert.Nil(t, live.ActualEnd)
	assert.Equal(t, "https://img/1280x720.jpg", live.ThumbnailURL)

	old := videos[1]
	assert.Equal(t, model.BroadcastNone, old.BroadcastState)
	assert.Equal(t, time.Date(2024, 4, 30, 13, 8, 33, 0, time.UTC), *old.ActualEnd)
}

func TestClient_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid token"}`))
	})
	c := newTestClient(t, mux)

	_, _, err := c.FetchChannels(context.Background(), []model.Identifier{model.TwitchID(model.KindChannel, "1")})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	mux := http.NewServeMux()
	c := newTestClient(t, mux)
	c.limiter.SetBurst(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.FetchChannels(ctx, []model.Identifier{model.TwitchID(model.KindChannel, "1")})
	assert.Error(t, err)
}
