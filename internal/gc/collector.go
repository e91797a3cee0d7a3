package gc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/timetable/timetable-sync/internal/db"
	"github.com/timetable/timetable-sync/internal/metrics"
	"github.com/timetable/timetable-sync/internal/model"
)

// DefaultTimeout bounds the transaction of a single pass.
const DefaultTimeout = 2 * time.Minute

// Collector runs garbage collection passes against a Store.
type Collector struct {
	store     Store
	locker    Locker
	logger    *zap.Logger
	metrics   *metrics.Collector
	publisher ReportPublisher
	timeout   time.Duration
	now       func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Collector) { c.metrics = m }
}

// WithPublisher sets the publisher notified after each committed pass.
func WithPublisher(p ReportPublisher) Option {
	return func(c *Collector) { c.publisher = p }
}

// WithTimeout bounds the transaction of a pass.
func WithTimeout(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock replaces the wall clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCollector returns a collector deleting through store and serialized by
// locker.
func NewCollector(store Store, locker Locker, opts ...Option) *Collector {
	c := &Collector{
		store:   store,
		locker:  locker,
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run performs one pass. live maps every configured account id to its
// current subscription ids, see Scan; stored subscriptions of other accounts
// are deleted. A nil live map keeps every subscription and only reconciles
// reachability.
//
// Either the whole plan commits or nothing does; failures are reported as
// db.ErrStorageFailure. Once the transaction has started it is not
// cancelled by ctx, only bounded by the collector timeout.
func (c *Collector) Run(ctx context.Context, live map[string]model.IDSet) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	release, acquired, err := c.locker.TryLock(ctx)
	if err != nil {
		return nil, db.StorageFailure(err, "acquire gc lock")
	}
	if !acquired {
		c.metrics.RecordGCSkipped()
		return nil, ErrPassInProgress
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("failed to release gc lock", zap.Error(err))
		}
	}()

	report := &Report{RunID: uuid.New(), StartedAt: c.now().UTC()}
	log := c.logger.With(zap.String("run_id", report.RunID.String()))
	log.Debug("gc pass started", zap.Int("accounts", len(live)))

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	start := time.Now()
	err = c.store.Transaction(txCtx, func(ctx context.Context, tx Tx) error {
		graph, err := tx.LoadGraph(ctx)
		if err != nil {
			return fmt.Errorf("load graph: %w", err)
		}
		plan := Scan(graph, live)
		if plan.Empty() {
			return nil
		}
		return apply(ctx, tx, &plan, report)
	})
	report.Duration = time.Since(start)

	if err != nil {
		c.metrics.RecordGC(report.Duration, nil, err)
		log.Error("gc pass rolled back", zap.Error(err), zap.Duration("duration", report.Duration))
		return nil, db.StorageFailure(err, "gc pass")
	}

	c.metrics.RecordGC(report.Duration, report.Evictions(), nil)
	log.Info("gc pass committed",
		zap.Int64("subscriptions", report.SubscriptionsDeleted),
		zap.Int64("channels", report.ChannelsDeleted),
		zap.Int64("channels_detached", report.ChannelsDetached),
		zap.Int64("playlists", report.PlaylistsDeleted),
		zap.Int64("items", report.ItemsDeleted),
		zap.Int64("videos", report.VideosDeleted),
		zap.Duration("duration", report.Duration),
	)

	if c.publisher != nil {
		if err := c.publisher.PublishGCReport(ctx, report); err != nil {
			log.Warn("failed to publish gc report", zap.Error(err))
		}
	}
	return report, nil
}

// apply deletes children before parents.
func apply(ctx context.Context, tx Tx, plan *Plan, report *Report) error {
	steps := []struct {
		name string
		ids  []model.Identifier
		del  func(context.Context, []model.Identifier) (int64, error)
		out  *int64
	}{
		{"subscriptions", plan.Subscriptions, tx.DeleteSubscriptions, &report.SubscriptionsDeleted},
		{"channel activity", plan.ChannelActivity, tx.DeleteChannelActivity, &report.ActivityDeleted},
		{"playlist items", plan.PlaylistItems, tx.DeletePlaylistItems, &report.ItemsDeleted},
		{"channel playlists", plan.ChannelPlaylists, tx.DeleteChannelPlaylists, nil},
		{"playlists", plan.Playlists, tx.DeletePlaylists, &report.PlaylistsDeleted},
		{"videos", plan.Videos, tx.DeleteVideos, &report.VideosDeleted},
		{"channel details", plan.ChannelDetails, tx.DeleteChannelDetails, nil},
		{"channels", plan.Channels, tx.DeleteChannels, &report.ChannelsDeleted},
	}

	for _, s := range steps {
		if len(s.ids) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.del(ctx, s.ids)
		if err != nil {
			return fmt.Errorf("delete %s: %w", s.name, err)
		}
		if s.out != nil {
			*s.out = n
		}
	}
	report.ChannelsDetached = int64(len(plan.Detached))
	return nil
}

// IsPassInProgress reports whether err came from a concurrent pass.
func IsPassInProgress(err error) bool {
	return errors.Is(err, ErrPassInProgress)
}
