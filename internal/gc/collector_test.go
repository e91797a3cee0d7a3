package gc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/timetable/timetable-sync/internal/db"
	"github.com/timetable/timetable-sync/internal/gc"
	"github.com/timetable/timetable-sync/internal/lock"
	"github.com/timetable/timetable-sync/internal/metrics"
	"github.com/timetable/timetable-sync/internal/model"
	"github.com/timetable/timetable-sync/internal/storage/memory"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishGCReport(ctx context.Context, report *gc.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

// failingStore fails the named deletion inside the transaction.
type failingStore struct {
	*memory.Store
	failOn string
}

func (s *failingStore) Transaction(ctx context.Context, fn func(ctx context.Context, tx gc.Tx) error) error {
	return s.Store.Transaction(ctx, func(ctx context.Context, tx gc.Tx) error {
		return fn(ctx, &failingTx{Tx: tx, failOn: s.failOn})
	})
}

type failingTx struct {
	gc.Tx
	failOn string
}

var errDisk = errors.New("disk on fire")

func (t *failingTx) DeleteVideos(ctx context.Context, ids []model.Identifier) (int64, error) {
	if t.failOn == "videos" {
		return 0, errDisk
	}
	return t.Tx.DeleteVideos(ctx, ids)
}

func (t *failingTx) DeleteChannels(ctx context.Context, ids []model.Identifier) (int64, error) {
	if t.failOn == "channels" {
		return 0, errDisk
	}
	return t.Tx.DeleteChannels(ctx, ids)
}

func video(id, channel string, state model.BroadcastState) model.ClassifiedVideo {
	v := model.Video{
		ID:             model.YouTubeID(model.KindVideo, id),
		ChannelID:      model.YouTubeID(model.KindChannel, channel),
		Title:          id,
		BroadcastState: state,
	}
	if state != model.BroadcastUpcoming {
		v.ActualStart = &t0
	}
	return model.NewClassifiedVideo(v, false, nil, false)
}

// seed stores two subscribed channels, "keep" and "drop", each with an
// uploads playlist of archived videos; "drop" also has an activity row and
// a detail row.
func seed(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()

	for _, name := range []string{"keep", "drop"} {
		ch := model.YouTubeID(model.KindChannel, name)
		pl := model.YouTubeID(model.KindPlaylist, name+"-uploads")
		require.NoError(t, store.UpsertChannel(ctx, model.Channel{ID: ch, Title: name, UploadedPlaylistID: pl}))
		require.NoError(t, store.UpsertChannelDetail(ctx, model.ChannelDetail{ChannelID: ch, UpdatedAt: t0}))
		require.NoError(t, store.UpsertSubscriptions(ctx, []model.Subscription{{
			ID:        model.YouTubeID(model.KindSubscription, "sub-"+name),
			AccountID: "acct",
			ChannelID: ch,
		}}))
		require.NoError(t, store.PutPlaylist(ctx, ch, model.PlaylistSnapshot{
			ID: pl,
			Items: []model.PlaylistItem{
				{ID: name + "-1", VideoID: model.YouTubeID(model.KindVideo, name+"-v1"), PublishedAt: t0},
				{ID: name + "-2", VideoID: model.YouTubeID(model.KindVideo, name+"-v2"), PublishedAt: t0},
			},
		}))
		require.NoError(t, store.PutVideos(ctx, []model.ClassifiedVideo{
			video(name+"-v1", name, model.BroadcastNone),
			video(name+"-v2", name, model.BroadcastNone),
		}))
		require.NoError(t, store.AppendChannelActivity(ctx, model.ChannelActivity{ChannelID: ch, LoggedAt: t0}))
	}
}

func liveKeepOnly() map[string]model.IDSet {
	return map[string]model.IDSet{"acct": model.NewIDSet(model.YouTubeID(model.KindSubscription, "sub-keep"))}
}

func TestCollector_Run_CommitsPlan(t *testing.T) {
	store := memory.NewStore()
	seed(t, store)

	pub := new(mockPublisher)
	pub.On("PublishGCReport", mock.Anything, mock.AnythingOfType("*gc.Report")).Return(nil)

	c := gc.NewCollector(store, lock.NewLocalLocker(),
		gc.WithPublisher(pub),
		gc.WithMetrics(metrics.New(prometheus.NewRegistry())),
		gc.WithClock(func() time.Time { return t0 }),
	)

	report, err := c.Run(context.Background(), liveKeepOnly())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, t0, report.StartedAt)
	assert.Equal(t, int64(1), report.SubscriptionsDeleted)
	assert.Equal(t, int64(1), report.ActivityDeleted)
	assert.Equal(t, int64(2), report.ItemsDeleted)
	assert.Equal(t, int64(1), report.PlaylistsDeleted)
	assert.Equal(t, int64(2), report.VideosDeleted)
	assert.Equal(t, int64(1), report.ChannelsDeleted)
	assert.Equal(t, int64(0), report.ChannelsDetached)
	assert.Equal(t, int64(8), report.Total())

	keep := model.YouTubeID(model.KindChannel, "keep")
	drop := model.YouTubeID(model.KindChannel, "drop")
	assert.True(t, store.HasChannel(keep))
	assert.False(t, store.HasChannel(drop))
	assert.True(t, store.HasVideo(model.YouTubeID(model.KindVideo, "keep-v1")))
	assert.False(t, store.HasVideo(model.YouTubeID(model.KindVideo, "drop-v1")))
	_, hasDetail := store.ChannelDetail(drop)
	assert.False(t, hasDetail)
	assert.Empty(t, store.ChannelActivity(drop))
	assert.Len(t, store.ChannelActivity(keep), 1)

	pub.AssertExpectations(t)

	again, err := c.Run(context.Background(), liveKeepOnly())
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.Total(), "second pass finds nothing")
}

func TestCollector_Run_DetachesChannelWithUpcomingVideo(t *testing.T) {
	store := memory.NewStore()
	seed(t, store)
	require.NoError(t, store.PutVideos(context.Background(), []model.ClassifiedVideo{
		video("drop-upcoming", "drop", model.BroadcastUpcoming),
	}))

	c := gc.NewCollector(store, lock.NewLocalLocker())
	report, err := c.Run(context.Background(), liveKeepOnly())
	require.NoError(t, err)

	drop := model.YouTubeID(model.KindChannel, "drop")
	assert.Equal(t, int64(1), report.ChannelsDetached)
	assert.Equal(t, int64(0), report.ChannelsDeleted)
	assert.True(t, store.HasChannel(drop))
	_, hasDetail := store.ChannelDetail(drop)
	assert.True(t, hasDetail)
	assert.True(t, store.HasVideo(model.YouTubeID(model.KindVideo, "drop-upcoming")))
	assert.False(t, store.HasVideo(model.YouTubeID(model.KindVideo, "drop-v1")))
	assert.Equal(t, 1, store.Counts()["channel_playlists"])
}

func TestCollector_Run_RollsBackOnFailure(t *testing.T) {
	for _, failOn := range []string{"videos", "channels"} {
		t.Run(failOn, func(t *testing.T) {
			mem := memory.NewStore()
			seed(t, mem)
			before := mem.Counts()

			pub := new(mockPublisher)
			c := gc.NewCollector(&failingStore{Store: mem, failOn: failOn}, lock.NewLocalLocker(), gc.WithPublisher(pub))

			report, err := c.Run(context.Background(), liveKeepOnly())
			require.Error(t, err)
			assert.Nil(t, report)
			assert.True(t, db.IsStorageFailure(err))
			assert.ErrorIs(t, err, errDisk)

			assert.Equal(t, before, mem.Counts(), "no partial eviction")
			pub.AssertNotCalled(t, "PublishGCReport", mock.Anything, mock.Anything)
		})
	}
}

type heldLocker struct{}

func (heldLocker) TryLock(context.Context) (func(context.Context) error, bool, error) {
	return nil, false, nil
}

type brokenLocker struct{}

func (brokenLocker) TryLock(context.Context) (func(context.Context) error, bool, error) {
	return nil, false, errors.New("redis down")
}

func TestCollector_Run_Locking(t *testing.T) {
	store := memory.NewStore()
	seed(t, store)
	before := store.Counts()

	_, err := gc.NewCollector(store, heldLocker{}).Run(context.Background(), liveKeepOnly())
	assert.ErrorIs(t, err, gc.ErrPassInProgress)
	assert.True(t, gc.IsPassInProgress(err))

	_, err = gc.NewCollector(store, brokenLocker{}).Run(context.Background(), liveKeepOnly())
	assert.True(t, db.IsStorageFailure(err))

	assert.Equal(t, before, store.Counts())
}

func TestCollector_Run_SerializesConcurrentPasses(t *testing.T) {
	store := memory.NewStore()
	seed(t, store)
	locker := lock.NewLocalLocker()

	release, ok, err := locker.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	c := gc.NewCollector(store, locker)
	_, err = c.Run(context.Background(), liveKeepOnly())
	assert.ErrorIs(t, err, gc.ErrPassInProgress)

	require.NoError(t, release(context.Background()))
	_, err = c.Run(context.Background(), liveKeepOnly())
	assert.NoError(t, err)
}

func TestCollector_Run_CancelledBeforeStart(t *testing.T) {
	store := memory.NewStore()
	seed(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gc.NewCollector(store, lock.NewLocalLocker()).Run(ctx, liveKeepOnly())
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, store.HasChannel(model.YouTubeID(model.KindChannel, "drop")))
}

func TestCollector_Run_PublishFailureDoesNotFailPass(t *testing.T) {
	store := memory.NewStore()
	seed(t, store)

	pub := new(mockPublisher)
	pub.On("PublishGCReport", mock.Anything, mock.Anything).Return(errors.New("broker gone"))

	report, err := gc.NewCollector(store, lock.NewLocalLocker(), gc.WithPublisher(pub)).Run(context.Background(), liveKeepOnly())
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.ChannelsDeleted)
	pub.AssertExpectations(t)
}
