package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/timetable/timetable-sync/internal/config"
	"github.com/timetable/timetable-sync/internal/gc"
	"github.com/timetable/timetable-sync/internal/model"
)

func TestNewThumbnailRefresh(t *testing.T) {
	now := time.Date(2024, 5, 1, 21, 0, 0, 0, time.FixedZone("JST", 9*3600))
	v := model.RestoreClassifiedVideo(model.Video{
		ID:             model.TwitchID(model.KindVideo, "1007"),
		ChannelID:      model.TwitchID(model.KindChannel, "7"),
		ThumbnailURL:   "https://static-cdn.jtvnw.net/thumb.jpg",
		BroadcastState: model.BroadcastUpcoming,
	}, true, nil)

	e := NewThumbnailRefresh(&v, now)

	assert.NotEqual(t, [16]byte{}, [16]byte(e.EventID))
	assert.Equal(t, "1007", e.VideoID)
	assert.Equal(t, "twitch", e.Platform)
	assert.Equal(t, "7", e.ChannelID)
	assert.Equal(t, "upcoming", e.State)
	assert.Equal(t, time.UTC, e.RequestedAt.Location())
	assert.True(t, e.RequestedAt.Equal(now))
}

func TestMessagePublisher_Unconnected(t *testing.T) {
	mp := &MessagePublisher{config: &config.RabbitMQConfig{Exchange: "x"}, logger: zap.NewNop()}

	assert.False(t, mp.IsHealthy())
	err := mp.PublishGCReport(context.Background(), &gc.Report{})
	assert.EqualError(t, err, "channel is not initialized")
	assert.NoError(t, mp.Close())
}
