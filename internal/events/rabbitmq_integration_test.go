//go:build integration
// +build integration

package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/timetable/timetable-sync/internal/config"
	"github.com/timetable/timetable-sync/internal/gc"
	"github.com/timetable/timetable-sync/internal/model"
)

func setupTestRabbitMQ(t *testing.T) (*config.RabbitMQConfig, string) {
	t.Helper()
	ctx := context.Background()

	rabbitmqContainer, err := rabbitmq.Run(ctx,
		"rabbitmq:3.13-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := rabbitmqContainer.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := rabbitmqContainer.Host(ctx)
	require.NoError(t, err)
	port, err := rabbitmqContainer.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)
	amqpURL, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	return &config.RabbitMQConfig{
		Enabled:             true,
		Host:                host,
		Port:                port.Int(),
		User:                "guest",
		Password:            "guest",
		Exchange:            "test.events",
		ThumbnailQueue:      "test.thumbnails",
		ThumbnailRoutingKey: "thumbnail.refresh",
		GCRoutingKey:        "cache.gc.completed",
	}, amqpURL
}

func TestMessagePublisher_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	cfg, amqpURL := setupTestRabbitMQ(t)

	mp, err := NewMessagePublisher(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Close() })
	assert.True(t, mp.IsHealthy())

	conn, err := amqp.Dial(amqpURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	consumer, err := conn.Channel()
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("thumbnail refresh lands in the work queue", func(t *testing.T) {
		v := model.RestoreClassifiedVideo(model.Video{
			ID:             model.YouTubeID(model.KindVideo, "v1"),
			ChannelID:      model.YouTubeID(model.KindChannel, "UCa"),
			ThumbnailURL:   "https://i.ytimg.com/vi/v1/maxresdefault.jpg",
			BroadcastState: model.BroadcastLive,
		}, false, nil)

		require.NoError(t, mp.PublishThumbnailRefresh(ctx, &v))

		var msg amqp.Delivery
		require.Eventually(t, func() bool {
			var ok bool
			msg, ok, err = consumer.Get(cfg.ThumbnailQueue, true)
			return err == nil && ok
		}, 5*time.Second, 100*time.Millisecond)

		var got ThumbnailRefresh
		require.NoError(t, json.Unmarshal(msg.Body, &got))
		assert.Equal(t, "v1", got.VideoID)
		assert.Equal(t, "youtube", got.Platform)
		assert.Equal(t, "live", got.State)
		assert.Equal(t, got.EventID.String(), msg.MessageId)
	})

	t.Run("gc report is routed by its key", func(t *testing.T) {
		q, err := consumer.QueueDeclare("", false, true, true, false, nil)
		require.NoError(t, err)
		require.NoError(t, consumer.QueueBind(q.Name, cfg.GCRoutingKey, cfg.Exchange, false, nil))

		report := &gc.Report{RunID: uuid.New(), ChannelsDeleted: 2}
		require.NoError(t, mp.PublishGCReport(ctx, report))

		var msg amqp.Delivery
		require.Eventually(t, func() bool {
			var ok bool
			msg, ok, err = consumer.Get(q.Name, true)
			return err == nil && ok
		}, 5*time.Second, 100*time.Millisecond)

		var got gc.Report
		require.NoError(t, json.Unmarshal(msg.Body, &got))
		assert.Equal(t, report.RunID, got.RunID)
		assert.EqualValues(t, 2, got.ChannelsDeleted)
	})

	t.Run("closed publisher is unhealthy and refuses to publish", func(t *testing.T) {
		require.NoError(t, mp.Close())
		assert.False(t, mp.IsHealthy())
		assert.Error(t, mp.PublishGCReport(ctx, &gc.Report{RunID: uuid.New()}))
	})
}
