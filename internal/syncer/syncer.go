// Package syncer runs sync passes: it pulls subscriptions, channels, uploads
// and videos from the platform sources, stamps them with the freshness
// engine, stores them and finally garbage collects the cache.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/timetable/timetable-sync/internal/db"
	"github.com/timetable/timetable-sync/internal/freshness"
	"github.com/timetable/timetable-sync/internal/gc"
	"github.com/timetable/timetable-sync/internal/metrics"
	"github.com/timetable/timetable-sync/internal/model"
)

const (
	DefaultAccountTimeout    = 2 * time.Minute
	DefaultConcurrency       = 4
	DefaultChannelMaxAge     = 24 * time.Hour
	DefaultExpiredVideoLimit = 500
)

// ErrPassInProgress is returned by Sync while another pass is running.
var ErrPassInProgress = errors.New("sync pass already in progress")

// Account is a platform user whose subscriptions or follows feed the cache.
type Account struct {
	Platform model.Platform
	ID       string
}

func (a Account) String() string {
	return string(a.Platform) + "/" + a.ID
}

// Config tunes a Syncer. Zero values fall back to the defaults.
type Config struct {
	Accounts          []Account
	AccountTimeout    time.Duration
	Concurrency       int
	ChannelMaxAge     time.Duration
	ExpiredVideoLimit int
}

func (c *Config) applyDefaults() {
	if c.AccountTimeout <= 0 {
		c.AccountTimeout = DefaultAccountTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.ChannelMaxAge <= 0 {
		c.ChannelMaxAge = DefaultChannelMaxAge
	}
	if c.ExpiredVideoLimit <= 0 {
		c.ExpiredVideoLimit = DefaultExpiredVideoLimit
	}
}

// Engine bundles the freshness calculators used by a pass.
type Engine struct {
	Playlists *freshness.PlaylistAdapter
	Videos    *freshness.VideoCalculator
	Following *freshness.FollowingDiff
	Heuristic freshness.FreeChatHeuristic
}

// NewEngine builds an Engine from policies.
func NewEngine(video freshness.VideoPolicy, playlist freshness.PlaylistPolicy, following freshness.FollowingPolicy, heuristic freshness.FreeChatHeuristic) (Engine, error) {
	videos, err := freshness.NewVideoCalculator(video)
	if err != nil {
		return Engine{}, fmt.Errorf("video policy: %w", err)
	}
	playlists, err := freshness.NewPlaylistAdapter(playlist)
	if err != nil {
		return Engine{}, fmt.Errorf("playlist policy: %w", err)
	}
	diff, err := freshness.NewFollowingDiff(following)
	if err != nil {
		return Engine{}, fmt.Errorf("following policy: %w", err)
	}
	if heuristic == nil {
		return Engine{}, fmt.Errorf("%w: nil free chat heuristic", model.ErrInvalidArgument)
	}
	return Engine{Playlists: playlists, Videos: videos, Following: diff, Heuristic: heuristic}, nil
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithSubscriptionSource sets the source of YouTube subscriptions.
func WithSubscriptionSource(src SubscriptionSource) Option {
	return func(s *Syncer) { s.subscriptions = src }
}

// WithFollowingSource sets the source of Twitch follows.
func WithFollowingSource(src FollowingSource) Option {
	return func(s *Syncer) { s.following = src }
}

// WithContentSource registers the content source of a platform.
func WithContentSource(p model.Platform, src ContentSource) Option {
	return func(s *Syncer) { s.content[p] = src }
}

// WithCollector runs gc after every pass in which all accounts synced.
func WithCollector(c GarbageCollector) Option {
	return func(s *Syncer) { s.collector = c }
}

// WithThumbnailPublisher sets where thumbnail refresh requests go.
func WithThumbnailPublisher(p ThumbnailPublisher) Option {
	return func(s *Syncer) { s.thumbnails = p }
}

// WithTimetablePublisher sets where the timetable view is published.
func WithTimetablePublisher(p TimetablePublisher) Option {
	return func(s *Syncer) { s.timetable = p }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Syncer) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c freshness.Clock) Option {
	return func(s *Syncer) {
		if c != nil {
			s.clock = c
		}
	}
}

// Syncer orchestrates sync passes. Only one pass runs at a time.
type Syncer struct {
	store  Store
	engine Engine
	cfg    Config

	subscriptions SubscriptionSource
	following     FollowingSource
	content       map[model.Platform]ContentSource

	collector  GarbageCollector
	thumbnails ThumbnailPublisher
	timetable  TimetablePublisher

	metrics *metrics.Collector
	logger  *zap.Logger
	clock   freshness.Clock

	running sync.Mutex
}

// New returns a Syncer writing to store.
func New(store Store, engine Engine, cfg Config, opts ...Option) (*Syncer, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", model.ErrInvalidArgument)
	}
	if engine.Playlists == nil || engine.Videos == nil || engine.Following == nil || engine.Heuristic == nil {
		return nil, fmt.Errorf("%w: incomplete freshness engine", model.ErrInvalidArgument)
	}
	cfg.applyDefaults()

	s := &Syncer{
		store:   store,
		engine:  engine,
		cfg:     cfg,
		content: make(map[model.Platform]ContentSource),
		logger:  zap.NewNop(),
		clock:   freshness.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, acc := range cfg.Accounts {
		switch {
		case !acc.Platform.Valid():
			return nil, fmt.Errorf("%w: account %s has unknown platform", model.ErrInvalidArgument, acc)
		case acc.ID == "":
			return nil, fmt.Errorf("%w: account without id on %s", model.ErrInvalidArgument, acc.Platform)
		case acc.Platform == model.PlatformYouTube && s.subscriptions == nil:
			return nil, fmt.Errorf("%w: account %s needs a subscription source", model.ErrInvalidArgument, acc)
		case acc.Platform == model.PlatformTwitch && s.following == nil:
			return nil, fmt.Errorf("%w: account %s needs a following source", model.ErrInvalidArgument, acc)
		}
	}
	return s, nil
}

// Result summarizes a pass.
type Result struct {
	PassID            uuid.UUID  `json:"pass_id"`
	StartedAt         time.Time  `json:"started_at"`
	Duration          string     `json:"duration"`
	Accounts          int        `json:"accounts"`
	FailedAccounts    int        `json:"failed_accounts"`
	ChannelsRefreshed int        `json:"channels_refreshed"`
	PlaylistsFetched  int        `json:"playlists_fetched"`
	PlaylistsChanged  int        `json:"playlists_changed"`
	VideosFetched     int        `json:"videos_fetched"`
	VideosVanished    int        `json:"videos_vanished"`
	VideosInvalid     int        `json:"videos_invalid"`
	ThumbnailRequests int        `json:"thumbnail_requests"`
	GC                *gc.Report `json:"gc,omitempty"`
}

// Sync runs one pass. A failing account does not stop the others; the
// returned error joins every failure and gc is skipped when any account
// failed, since a partial subscription set would evict reachable rows.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	if !s.running.TryLock() {
		return nil, ErrPassInProgress
	}
	defer s.running.Unlock()

	start := time.Now()
	now := s.clock.Now()
	res := &Result{PassID: uuid.New(), StartedAt: now, Accounts: len(s.cfg.Accounts)}
	log := s.logger.With(zap.String("pass_id", res.PassID.String()))
	log.Info("sync pass started", zap.Int("accounts", res.Accounts))

	err := s.sync(ctx, log, now, res)

	elapsed := time.Since(start)
	res.Duration = elapsed.String()
	s.metrics.RecordSyncPass(elapsed, err)

	fields := []zap.Field{
		zap.Int("failed_accounts", res.FailedAccounts),
		zap.Int("channels_refreshed", res.ChannelsRefreshed),
		zap.Int("playlists_fetched", res.PlaylistsFetched),
		zap.Int("playlists_changed", res.PlaylistsChanged),
		zap.Int("videos_fetched", res.VideosFetched),
		zap.Int("videos_invalid", res.VideosInvalid),
		zap.Int("thumbnail_requests", res.ThumbnailRequests),
		zap.Duration("duration", elapsed),
	}
	if err != nil {
		log.Error("sync pass finished with errors", append(fields, zap.Error(err))...)
		return res, err
	}
	log.Info("sync pass finished", fields...)
	return res, nil
}

func (s *Syncer) sync(ctx context.Context, log *zap.Logger, now time.Time, res *Result) error {
	subs, live, accountErr := s.syncAccounts(ctx, log, now, res)
	errs := []error{accountErr}
	if err := ctx.Err(); err != nil {
		return errors.Join(accountErr, err)
	}

	channels, err := s.refreshChannels(ctx, log, subs, now, res)
	errs = append(errs, err)

	pending, err := s.syncPlaylists(ctx, log, channels, now, res)
	errs = append(errs, err)

	errs = append(errs, s.syncVideos(ctx, log, pending, now, res))

	if s.collector != nil {
		if accountErr != nil {
			log.Warn("skipping garbage collection after account failures", zap.Int("failed_accounts", res.FailedAccounts))
		} else {
			report, err := s.collector.Run(ctx, live)
			if err != nil && !gc.IsPassInProgress(err) {
				errs = append(errs, fmt.Errorf("garbage collection: %w", err))
			}
			res.GC = report
		}
	}

	if s.timetable != nil {
		errs = append(errs, s.publishTimetable(ctx))
	}
	return errors.Join(errs...)
}

// syncAccounts stores the current subscriptions of every account and returns
// them with the live subscription ids of each account that succeeded. Stored
// subscriptions of accounts missing from the config are absent from live and
// are evicted by gc.
func (s *Syncer) syncAccounts(ctx context.Context, log *zap.Logger, now time.Time, res *Result) ([]model.Subscription, map[string]model.IDSet, error) {
	var (
		mu   sync.Mutex
		subs []model.Subscription
		live = make(map[string]model.IDSet, len(s.cfg.Accounts))
		errs []error
	)

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for _, acc := range s.cfg.Accounts {
		g.Go(func() error {
			actx, cancel := context.WithTimeout(ctx, s.cfg.AccountTimeout)
			defer cancel()

			got, err := s.syncAccount(actx, log, acc, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.FailedAccounts++
				s.metrics.RecordAccountFailure(string(acc.Platform))
				log.Error("account sync failed", zap.Stringer("account", acc), zap.Error(err))
				errs = append(errs, fmt.Errorf("account %s: %w", acc, err))
				return nil
			}
			ids, ok := live[acc.ID]
			if !ok {
				ids = make(model.IDSet, len(got))
				live[acc.ID] = ids
			}
			for _, sub := range got {
				ids.Add(sub.ID)
			}
			subs = append(subs, got...)
			return nil
		})
	}
	_ = g.Wait()

	return subs, live, errors.Join(errs...)
}

func (s *Syncer) syncAccount(ctx context.Context, log *zap.Logger, acc Account, now time.Time) ([]model.Subscription, error) {
	var (
		subs []model.Subscription
		err  error
	)
	switch acc.Platform {
	case model.PlatformYouTube:
		subs, err = s.subscriptions.FetchSubscriptions(ctx, acc.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch subscriptions: %w", err)
		}
	case model.PlatformTwitch:
		set, err := s.syncFollowing(ctx, log, acc, now)
		if err != nil {
			return nil, err
		}
		subs = followSubscriptions(acc.ID, set)
	}

	if err := s.store.UpsertSubscriptions(ctx, subs); err != nil {
		return nil, fmt.Errorf("store subscriptions: %w", err)
	}
	log.Debug("account synced", zap.Stringer("account", acc), zap.Int("subscriptions", len(subs)))
	return subs, nil
}

// syncFollowing refreshes an expired following set and reports the
// broadcasters dropped since the cached one.
func (s *Syncer) syncFollowing(ctx context.Context, log *zap.Logger, acc Account, now time.Time) (model.FollowingSet, error) {
	followerID := model.TwitchID(model.KindBroadcaster, acc.ID)

	old, err := s.store.GetFollowingSet(ctx, followerID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		old = nil
	case err != nil:
		return model.FollowingSet{}, fmt.Errorf("load following set: %w", err)
	}
	if old != nil && !old.CacheControl.IsExpired(now) {
		return *old, nil
	}

	broadcasters, err := s.following.FetchFollowing(ctx, followerID)
	if err != nil {
		return model.FollowingSet{}, fmt.Errorf("fetch following: %w", err)
	}
	set, err := s.engine.Following.CreateAtFetched(followerID, broadcasters, now)
	if err != nil {
		return model.FollowingSet{}, err
	}

	if old != nil {
		removed, err := freshness.GetRemovedFollowingIDs(*old, set)
		if err != nil {
			log.Warn("cannot diff following sets", zap.Stringer("account", acc), zap.Error(err))
		} else if removed.Len() > 0 {
			s.metrics.RecordFollowingRemovals(removed.Len())
			log.Info("broadcasters unfollowed", zap.Stringer("account", acc), zap.Strings("broadcasters", removed.Keys()))
		}
	}

	if err := s.store.PutFollowingSet(ctx, set); err != nil {
		return model.FollowingSet{}, fmt.Errorf("store following set: %w", err)
	}
	return set, nil
}

// followSubscriptions turns follows into subscriptions keyed by follower and
// broadcaster.
func followSubscriptions(accountID string, set model.FollowingSet) []model.Subscription {
	subs := make([]model.Subscription, len(set.Broadcasters))
	for i, b := range set.Broadcasters {
		subs[i] = model.Subscription{
			ID:              model.TwitchID(model.KindSubscription, accountID+":"+b.ID.Value),
			AccountID:       accountID,
			ChannelID:       b.ID.As(model.KindChannel),
			SubscribedSince: b.FollowedAt,
			DisplayOrder:    i,
		}
	}
	return subs
}

// refreshChannels returns the subscribed channels, fetching the ones missing
// or expired. A channel that could not be refreshed is returned as cached.
func (s *Syncer) refreshChannels(ctx context.Context, log *zap.Logger, subs []model.Subscription, now time.Time, res *Result) ([]model.Channel, error) {
	var (
		channels []model.Channel
		stale    = make(map[model.Platform][]model.Identifier)
		cached   = make(map[model.Identifier]model.Channel)
		seen     = make(model.IDSet, len(subs))
		errs     []error
	)

	for _, sub := range subs {
		if seen.Has(sub.ChannelID) {
			continue
		}
		seen.Add(sub.ChannelID)

		ch, err := s.store.GetChannel(ctx, sub.ChannelID)
		switch {
		case errors.Is(err, db.ErrNotFound):
		case err != nil:
			errs = append(errs, fmt.Errorf("load channel %s: %w", sub.ChannelID, err))
			continue
		case !ch.CacheControl.IsExpired(now):
			channels = append(channels, *ch)
			continue
		default:
			cached[ch.ID] = *ch
		}
		stale[sub.ChannelID.Platform] = append(stale[sub.ChannelID.Platform], sub.ChannelID)
	}

	for platform, ids := range stale {
		fetched, err := s.fetchChannels(ctx, platform, ids, now)
		if err != nil {
			log.Warn("channel refresh failed", zap.String("platform", string(platform)), zap.Int("channels", len(ids)), zap.Error(err))
			errs = append(errs, err)
		}
		res.ChannelsRefreshed += len(fetched)
		for _, ch := range fetched {
			delete(cached, ch.ID)
		}
		channels = append(channels, fetched...)
	}

	for _, ch := range cached {
		channels = append(channels, ch)
	}
	return channels, errors.Join(errs...)
}

func (s *Syncer) fetchChannels(ctx context.Context, platform model.Platform, ids []model.Identifier, now time.Time) ([]model.Channel, error) {
	src, ok := s.content[platform]
	if !ok {
		return nil, fmt.Errorf("no content source for %s", platform)
	}

	channels, details, err := src.FetchChannels(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch %s channels: %w", platform, err)
	}

	cc, err := model.NewCacheControl(now, s.cfg.ChannelMaxAge)
	if err != nil {
		return nil, err
	}
	stored := make([]model.Channel, 0, len(channels))
	for _, ch := range channels {
		ch.CacheControl = cc
		if err := s.store.UpsertChannel(ctx, ch); err != nil {
			return stored, fmt.Errorf("store channel %s: %w", ch.ID, err)
		}
		stored = append(stored, ch)
	}
	for _, d := range details {
		d.UpdatedAt = now
		if err := s.store.UpsertChannelDetail(ctx, d); err != nil {
			return stored, fmt.Errorf("store channel detail %s: %w", d.ChannelID, err)
		}
	}
	return stored, nil
}

// pendingVideos collects the video ids a pass has to look at.
type pendingVideos struct {
	mu sync.Mutex
	// added are new to their snapshot and always fetched.
	added model.IDSet
	// listed are every item of a refreshed snapshot; fetched when not cached.
	listed model.IDSet
}

func (p *pendingVideos) record(added, listed model.IDSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range added {
		p.added.Add(id)
	}
	for id := range listed {
		p.listed.Add(id)
	}
}

// syncPlaylists refreshes the expired uploads playlists of channels.
func (s *Syncer) syncPlaylists(ctx context.Context, log *zap.Logger, channels []model.Channel, now time.Time, res *Result) (*pendingVideos, error) {
	var (
		mu      sync.Mutex
		errs    []error
		pending = &pendingVideos{added: make(model.IDSet), listed: make(model.IDSet)}
	)

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for _, ch := range channels {
		if ch.UploadedPlaylistID.IsZero() {
			continue
		}
		g.Go(func() error {
			fetched, changed, err := s.syncPlaylist(ctx, ch, now, pending)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("playlist sync failed", zap.Stringer("channel", ch.ID), zap.Stringer("playlist", ch.UploadedPlaylistID), zap.Error(err))
				errs = append(errs, fmt.Errorf("playlist %s: %w", ch.UploadedPlaylistID, err))
				return nil
			}
			if fetched {
				res.PlaylistsFetched++
			}
			if changed {
				res.PlaylistsChanged++
			}
			return nil
		})
	}
	_ = g.Wait()

	return pending, errors.Join(errs...)
}

func (s *Syncer) syncPlaylist(ctx context.Context, ch model.Channel, now time.Time, pending *pendingVideos) (fetched, changed bool, err error) {
	src, ok := s.content[ch.ID.Platform]
	if !ok {
		return false, false, fmt.Errorf("no content source for %s", ch.ID.Platform)
	}
	id := ch.UploadedPlaylistID

	cached, err := s.store.GetPlaylist(ctx, id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		cached = nil
	case err != nil:
		return false, false, fmt.Errorf("load playlist: %w", err)
	case !cached.CacheControl.IsExpired(now):
		return false, false, nil
	}

	etag := ""
	if cached != nil {
		etag = cached.ETag
	}
	items, newTag, err := src.FetchPlaylistItems(ctx, id, etag)
	switch {
	case errors.Is(err, model.ErrNotModified) && cached != nil:
		items, newTag = cached.Items, etag
	case err != nil:
		return false, false, fmt.Errorf("fetch items: %w", err)
	}

	snap, err := s.engine.Playlists.Update(id, cached, items, now)
	if err != nil {
		return true, false, err
	}
	snap.ETag = newTag
	if err := s.store.PutPlaylist(ctx, ch.ID, snap); err != nil {
		return true, false, fmt.Errorf("store playlist: %w", err)
	}

	changed = cached == nil || freshness.ItemsChanged(cached, items)
	s.metrics.RecordPlaylistMaxAge(snap.CacheControl.MaxAgeOr(0), changed)

	listed := snap.VideoIDs()
	added := listed
	if cached != nil {
		added = listed.Difference(cached.VideoIDs())
		if added.Len() > 0 {
			activity := model.ChannelActivity{ChannelID: ch.ID, VideoIDs: added.Sorted(), LoggedAt: now}
			if err := s.store.AppendChannelActivity(ctx, activity); err != nil {
				return true, changed, fmt.Errorf("log channel activity: %w", err)
			}
		}
	}
	pending.record(added, listed)
	return true, changed, nil
}

// syncVideos fetches new, uncached and expired videos and stores their
// classification.
func (s *Syncer) syncVideos(ctx context.Context, log *zap.Logger, pending *pendingVideos, now time.Time, res *Result) error {
	expired, err := s.store.ListExpiredVideos(ctx, now, s.cfg.ExpiredVideoLimit)
	if err != nil {
		return fmt.Errorf("list expired videos: %w", err)
	}

	lookup := make(model.IDSet, pending.listed.Len()+len(expired))
	for id := range pending.listed {
		lookup.Add(id)
	}
	for _, id := range expired {
		lookup.Add(id)
	}
	previous, err := s.store.GetVideos(ctx, lookup.Sorted())
	if err != nil {
		return fmt.Errorf("load cached videos: %w", err)
	}

	wanted := make(model.IDSet, lookup.Len())
	for id := range pending.added {
		wanted.Add(id)
	}
	for id := range pending.listed {
		if _, ok := previous[id]; !ok {
			wanted.Add(id)
		}
	}
	for _, id := range expired {
		wanted.Add(id)
	}
	if wanted.Len() == 0 {
		return nil
	}

	byPlatform := make(map[model.Platform][]model.Identifier)
	for _, id := range wanted.Sorted() {
		byPlatform[id.Platform] = append(byPlatform[id.Platform], id)
	}

	var (
		classified []model.ClassifiedVideo
		errs       []error
	)
	for platform, ids := range byPlatform {
		src, ok := s.content[platform]
		if !ok {
			errs = append(errs, fmt.Errorf("no content source for %s", platform))
			continue
		}
		videos, err := src.FetchVideos(ctx, ids)
		if err != nil {
			log.Warn("video fetch failed", zap.String("platform", string(platform)), zap.Int("videos", len(ids)), zap.Error(err))
			errs = append(errs, fmt.Errorf("fetch %s videos: %w", platform, err))
			continue
		}
		res.VideosFetched += len(videos)

		returned := make(model.IDSet, len(videos))
		for _, v := range videos {
			returned.Add(v.ID)
			v.Reconcile()
			if err := v.Validate(); err != nil {
				res.VideosInvalid++
				s.metrics.RecordInvalidVideo(string(platform))
				log.Warn("skipping invalid video", zap.Stringer("video", v.ID), zap.Error(err))
				continue
			}
			classified = append(classified, s.classify(v, previous, now))
		}

		for _, id := range ids {
			prev, ok := previous[id]
			if returned.Has(id) || !ok || !prev.BroadcastState.IsUnfinished() {
				continue
			}
			res.VideosVanished++
			log.Info("video vanished remotely", zap.Stringer("video", id))
			classified = append(classified, s.classify(vanished(prev.Video), previous, now))
		}
	}

	if len(classified) > 0 {
		if err := s.store.PutVideos(ctx, classified); err != nil {
			return errors.Join(append(errs, fmt.Errorf("store videos: %w", err))...)
		}
	}

	for i := range classified {
		v := &classified[i]
		if !v.IsThumbnailUpdatable || s.thumbnails == nil {
			continue
		}
		if err := s.thumbnails.PublishThumbnailRefresh(ctx, v); err != nil {
			log.Warn("thumbnail refresh request failed", zap.Stringer("video", v.ID), zap.Error(err))
			continue
		}
		res.ThumbnailRequests++
		s.metrics.RecordThumbnailRefresh()
	}
	return errors.Join(errs...)
}

func (s *Syncer) classify(v model.Video, previous map[model.Identifier]model.ClassifiedVideo, now time.Time) model.ClassifiedVideo {
	var prev *model.ClassifiedVideo
	if p, ok := previous[v.ID]; ok {
		prev = &p
	}
	c := s.engine.Videos.Classify(v, prev, s.engine.Heuristic.IsFreeChat(v.Title), now)
	s.metrics.RecordClassification(string(v.ID.Platform), string(c.BroadcastState), c.IsFreeChat)
	return c
}

// vanished turns a deleted or privated video into a finished one so it stops
// being polled.
func vanished(v model.Video) model.Video {
	v.BroadcastState = model.BroadcastNone
	v.ViewerCount = nil
	if v.ActualStart == nil {
		v.ActualEnd = nil
	}
	return v
}

func (s *Syncer) publishTimetable(ctx context.Context) error {
	videos, err := s.store.ListTimetableVideos(ctx)
	if err != nil {
		return fmt.Errorf("list timetable videos: %w", err)
	}
	if err := s.timetable.PublishTimetable(ctx, videos); err != nil {
		return fmt.Errorf("publish timetable: %w", err)
	}
	return nil
}
