package timetable

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/timetable/timetable-sync/internal/model"
)

const (
	DefaultPrefix = "timetable"
	// DefaultTTL covers upcoming streams scheduled days ahead; every publish
	// refreshes it.
	DefaultTTL = 7 * 24 * time.Hour
)

// RedisStore keeps the published view in Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisStore returns a store writing under prefix. Empty prefix and
// non-positive ttl select the defaults.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, logger: logger, now: time.Now}
}

// KeyForChannel returns the hash key of a channel. The braces keep a
// channel's key on one Redis Cluster slot.
func (s *RedisStore) KeyForChannel(channelKey string) string {
	return fmt.Sprintf("%s:{%s}", s.prefix, channelKey)
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":channels"
}

// PublishTimetable replaces the whole view with videos. Entries and channels
// absent from videos are removed.
func (s *RedisStore) PublishTimetable(ctx context.Context, videos []model.ClassifiedVideo) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("nil redis client")
	}

	byChannel := group(videos, s.now().UTC())

	published, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("redis SMEMBERS %s: %w", s.indexKey(), err)
	}

	for channel, entries := range byChannel {
		if err := s.upsertChannel(ctx, channel, entries); err != nil {
			return err
		}
	}

	var gone []string
	for _, channel := range published {
		if _, ok := byChannel[channel]; !ok {
			gone = append(gone, channel)
		}
	}

	pipe := s.client.Pipeline()
	for _, channel := range gone {
		pipe.Del(ctx, s.KeyForChannel(channel))
	}
	if len(gone) > 0 {
		pipe.SRem(ctx, s.indexKey(), toAny(gone)...)
	}
	if len(byChannel) > 0 {
		channels := make([]string, 0, len(byChannel))
		for channel := range byChannel {
			channels = append(channels, channel)
		}
		slices.Sort(channels)
		pipe.SAdd(ctx, s.indexKey(), toAny(channels)...)
	}
	pipe.Expire(ctx, s.indexKey(), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline exec %s: %w", s.indexKey(), err)
	}

	s.logger.Debug("timetable published",
		zap.Int("channels", len(byChannel)),
		zap.Int("channels_removed", len(gone)),
	)
	return nil
}

func (s *RedisStore) upsertChannel(ctx context.Context, channel string, entries map[string]Entry) error {
	key := s.KeyForChannel(channel)

	existing, err := s.client.HKeys(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis HKEYS %s: %w", key, err)
	}

	pipe := s.client.Pipeline()
	for field, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", field, err)
		}
		pipe.HSet(ctx, key, field, string(b))
	}

	var stale []string
	for _, field := range existing {
		if _, ok := entries[field]; !ok {
			stale = append(stale, field)
		}
	}
	if len(stale) > 0 {
		pipe.HDel(ctx, key, stale...)
	}
	pipe.Expire(ctx, key, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline exec %s: %w", key, err)
	}
	return nil
}

// Channel returns the published entries of a channel, earliest start first.
func (s *RedisStore) Channel(ctx context.Context, channelID model.Identifier) ([]Entry, error) {
	key := s.KeyForChannel(channelID.Key())
	raw, err := s.client.HVals(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HVALS %s: %w", key, err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			s.logger.Warn("skipping malformed timetable entry", zap.String("key", key), zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	Sort(entries)
	return entries, nil
}

// Channels returns the channel keys currently published.
func (s *RedisStore) Channels(ctx context.Context) ([]string, error) {
	channels, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS %s: %w", s.indexKey(), err)
	}
	slices.Sort(channels)
	return channels, nil
}

// Sort orders entries by actual or scheduled start, unscheduled last.
func Sort(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		ta, tb := a.start(), b.start()
		switch {
		case ta == nil && tb == nil:
		case ta == nil:
			return 1
		case tb == nil:
			return -1
		default:
			if c := ta.Compare(*tb); c != 0 {
				return c
			}
		}
		if a.VideoID < b.VideoID {
			return -1
		}
		if a.VideoID > b.VideoID {
			return 1
		}
		return 0
	})
}

func (e Entry) start() *time.Time {
	if e.ActualStartTime != nil {
		return e.ActualStartTime
	}
	return e.ScheduledStartTime
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
