// Package events publishes cache events to RabbitMQ: thumbnail refresh
// requests and garbage collection reports.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/timetable/timetable-sync/internal/config"
	"github.com/timetable/timetable-sync/internal/gc"
	"github.com/timetable/timetable-sync/internal/model"
)

const confirmTimeout = 5 * time.Second

// ThumbnailRefresh asks the thumbnail worker to re-download a video's image.
type ThumbnailRefresh struct {
	EventID      uuid.UUID `json:"event_id"`
	VideoID      string    `json:"video_id"`
	Platform     string    `json:"platform"`
	ChannelID    string    `json:"channel_id"`
	ThumbnailURL string    `json:"thumbnail_url"`
	State        string    `json:"broadcast_state"`
	RequestedAt  time.Time `json:"requested_at"`
}

// NewThumbnailRefresh builds the event for v.
func NewThumbnailRefresh(v *model.ClassifiedVideo, now time.Time) ThumbnailRefresh {
	return ThumbnailRefresh{
		EventID:      uuid.New(),
		VideoID:      v.ID.Value,
		Platform:     string(v.ID.Platform),
		ChannelID:    v.ChannelID.Value,
		ThumbnailURL: v.ThumbnailURL,
		State:        string(v.BroadcastState),
		RequestedAt:  now.UTC(),
	}
}

// MessagePublisher publishes JSON events with publisher confirms.
type MessagePublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	logger  *zap.Logger
	mu      sync.RWMutex
}

// NewMessagePublisher connects and declares the exchange and the thumbnail
// queue.
func NewMessagePublisher(cfg *config.RabbitMQConfig, logger *zap.Logger) (*MessagePublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mp := &MessagePublisher{
		config: cfg,
		logger: logger,
	}

	if err := mp.connect(); err != nil {
		return nil, err
	}

	return mp, nil
}

func (mp *MessagePublisher) connect() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	connURL := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		mp.config.User, mp.config.Password, mp.config.Host, mp.config.Port)

	conn, err := amqp.Dial(connURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// Enable publisher confirms
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	if err := ch.ExchangeDeclare(
		mp.config.Exchange, // name
		"topic",            // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Thumbnail requests are work items; gc reports are broadcast and
	// consumers bind their own queues.
	_, err = ch.QueueDeclare(
		mp.config.ThumbnailQueue, // name
		true,                     // durable
		false,                    // delete when unused
		false,                    // exclusive
		false,                    // no-wait
		amqp.Table{
			"x-message-ttl": 86400000, // 24 hours
			"x-max-length":  100000,
		},
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(
		mp.config.ThumbnailQueue,
		mp.config.ThumbnailRoutingKey,
		mp.config.Exchange,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	mp.conn = conn
	mp.channel = ch

	mp.logger.Info("Connected to RabbitMQ",
		zap.String("exchange", mp.config.Exchange),
		zap.String("queue", mp.config.ThumbnailQueue),
	)

	return nil
}

// PublishThumbnailRefresh publishes a thumbnail.refresh event for v.
func (mp *MessagePublisher) PublishThumbnailRefresh(ctx context.Context, v *model.ClassifiedVideo) error {
	event := NewThumbnailRefresh(v, time.Now())
	return mp.publish(ctx, mp.config.ThumbnailRoutingKey, event.EventID.String(), event)
}

// PublishGCReport publishes a cache.gc.completed event.
func (mp *MessagePublisher) PublishGCReport(ctx context.Context, report *gc.Report) error {
	return mp.publish(ctx, mp.config.GCRoutingKey, report.RunID.String(), report)
}

func (mp *MessagePublisher) publish(ctx context.Context, routingKey, messageID string, payload any) error {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if mp.channel == nil {
		return errors.New("channel is not initialized")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	confirmation, err := mp.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		mp.config.Exchange, // exchange
		routingKey,         // routing key
		false,              // mandatory
		false,              // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    messageID,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()
	acked, err := confirmation.WaitContext(waitCtx)
	if err != nil {
		return fmt.Errorf("waiting for publish confirmation: %w", err)
	}
	if !acked {
		return errors.New("message was not acknowledged by broker")
	}

	mp.logger.Debug("Published event to RabbitMQ",
		zap.String("messageId", messageID),
		zap.String("routingKey", routingKey),
	)

	return nil
}

// Close closes the channel and the connection.
func (mp *MessagePublisher) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var errs []error
	if mp.channel != nil {
		if err := mp.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if mp.conn != nil {
		if err := mp.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing publisher: %w", errors.Join(errs...))
	}

	mp.logger.Info("RabbitMQ publisher closed")
	return nil
}

// IsHealthy reports whether the connection and channel are open.
func (mp *MessagePublisher) IsHealthy() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.conn != nil && !mp.conn.IsClosed() && mp.channel != nil
}
