package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/timetable/timetable-sync/internal/db"
	"github.com/timetable/timetable-sync/internal/gc"
	"github.com/timetable/timetable-sync/internal/model"
)

// Store is the PostgreSQL cache. It implements syncer.Store and gc.Store on
// top of the repositories.
type Store struct {
	pool *pgxpool.Pool

	subscriptions SubscriptionRepository
	channels      ChannelRepository
	playlists     PlaylistRepository
	videos        VideoRepository
	following     FollowingRepository
	quota         QuotaRepository
}

// NewStore creates a Store on pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:          pool,
		subscriptions: NewSubscriptionRepository(pool),
		channels:      NewChannelRepository(pool),
		playlists:     NewPlaylistRepository(pool),
		videos:        NewVideoRepository(pool),
		following:     NewFollowingRepository(pool),
		quota:         NewQuotaRepository(pool),
	}
}

// Quota returns the quota repository sharing the store's pool.
func (s *Store) Quota() QuotaRepository {
	return s.quota
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// inTx runs fn inside a read-committed transaction.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return db.WrapError(err, op+": begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return db.WrapError(err, op+": commit")
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, accountID string) ([]model.Subscription, error) {
	return s.subscriptions.ListByAccount(ctx, accountID)
}

func (s *Store) UpsertSubscriptions(ctx context.Context, subs []model.Subscription) error {
	return s.subscriptions.Upsert(ctx, subs)
}

func (s *Store) GetFollowingSet(ctx context.Context, followerID model.Identifier) (*model.FollowingSet, error) {
	return s.following.Get(ctx, followerID)
}

func (s *Store) PutFollowingSet(ctx context.Context, set model.FollowingSet) error {
	return s.inTx(ctx, "put following set", func(tx pgx.Tx) error {
		return NewFollowingRepository(tx).Replace(ctx, set)
	})
}

func (s *Store) GetChannel(ctx context.Context, id model.Identifier) (*model.Channel, error) {
	return s.channels.GetByID(ctx, id)
}

func (s *Store) UpsertChannel(ctx context.Context, ch model.Channel) error {
	return s.channels.Upsert(ctx, ch)
}

func (s *Store) UpsertChannelDetail(ctx context.Context, d model.ChannelDetail) error {
	return s.channels.UpsertDetail(ctx, d)
}

func (s *Store) AppendChannelActivity(ctx context.Context, a model.ChannelActivity) error {
	_, err := s.channels.AppendActivity(ctx, a)
	return err
}

// ListChannelActivity returns the newest activity rows of a channel.
func (s *Store) ListChannelActivity(ctx context.Context, id model.Identifier, limit int) ([]model.ChannelActivity, error) {
	return s.channels.ListActivity(ctx, id, limit)
}

func (s *Store) GetPlaylist(ctx context.Context, id model.Identifier) (*model.PlaylistSnapshot, error) {
	return s.playlists.Get(ctx, id)
}

func (s *Store) PutPlaylist(ctx context.Context, channelID model.Identifier, p model.PlaylistSnapshot) error {
	return s.inTx(ctx, "put playlist", func(tx pgx.Tx) error {
		repo := NewPlaylistRepository(tx)
		if err := repo.Replace(ctx, p); err != nil {
			return err
		}
		return repo.MapChannel(ctx, channelID, p.ID)
	})
}

func (s *Store) GetVideos(ctx context.Context, ids []model.Identifier) (map[model.Identifier]model.ClassifiedVideo, error) {
	return s.videos.GetByIDs(ctx, ids)
}

func (s *Store) ListExpiredVideos(ctx context.Context, now time.Time, limit int) ([]model.Identifier, error) {
	return s.videos.ListExpired(ctx, now, limit)
}

func (s *Store) PutVideos(ctx context.Context, videos []model.ClassifiedVideo) error {
	return s.videos.Upsert(ctx, videos)
}

func (s *Store) ListTimetableVideos(ctx context.Context) ([]model.ClassifiedVideo, error) {
	return s.videos.ListTimetable(ctx)
}

// Transaction implements gc.Store with a serializable transaction that is
// rolled back unless fn succeeds.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx gc.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return db.WrapError(err, "begin gc transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, &gcTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return db.WrapError(err, "commit gc transaction")
	}
	return nil
}

// gcTx is the deletion side of a GC pass.
type gcTx struct {
	tx pgx.Tx
}

func (t *gcTx) LoadGraph(ctx context.Context) (*gc.Graph, error) {
	g := &gc.Graph{}

	rows, err := t.tx.Query(ctx, `SELECT subscription_id, account_id, channel_id FROM subscriptions`)
	if err != nil {
		return nil, db.WrapError(err, "load subscriptions")
	}
	err = eachRow(rows, func() error {
		var r gc.SubscriptionRow
		var subKey, chanKey string
		if err := rows.Scan(&subKey, &r.AccountID, &chanKey); err != nil {
			return err
		}
		var err error
		if r.ID, err = model.ParseKey(model.KindSubscription, subKey); err != nil {
			return err
		}
		if r.ChannelID, err = model.ParseKey(model.KindChannel, chanKey); err != nil {
			return err
		}
		g.Subscriptions = append(g.Subscriptions, r)
		return nil
	})
	if err != nil {
		return nil, db.WrapError(err, "scan subscriptions")
	}

	rows, err = t.tx.Query(ctx, `
		SELECT c.channel_id, cp.playlist_id
		FROM channels c
		LEFT JOIN channel_playlists cp ON cp.channel_id = c.channel_id
	`)
	if err != nil {
		return nil, db.WrapError(err, "load channels")
	}
	err = eachRow(rows, func() error {
		var r gc.ChannelRow
		var chanKey string
		var playlistKey *string
		if err := rows.Scan(&chanKey, &playlistKey); err != nil {
			return err
		}
		var err error
		if r.ID, err = model.ParseKey(model.KindChannel, chanKey); err != nil {
			return err
		}
		if r.UploadedPlaylistID, err = parseOptionalKey(model.KindPlaylist, playlistKey); err != nil {
			return err
		}
		g.Channels = append(g.Channels, r)
		return nil
	})
	if err != nil {
		return nil, db.WrapError(err, "scan channels")
	}

	rows, err = t.tx.Query(ctx, `SELECT playlist_id FROM playlists`)
	if err != nil {
		return nil, db.WrapError(err, "load playlists")
	}
	raw, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, db.WrapError(err, "scan playlists")
	}
	if g.Playlists, err = parseKeys(model.KindPlaylist, raw); err != nil {
		return nil, err
	}

	rows, err = t.tx.Query(ctx, `SELECT playlist_id, item_id, video_id FROM playlist_items`)
	if err != nil {
		return nil, db.WrapError(err, "load playlist items")
	}
	err = eachRow(rows, func() error {
		var r gc.PlaylistItemRow
		var playlistKey, videoKey string
		if err := rows.Scan(&playlistKey, &r.ItemID, &videoKey); err != nil {
			return err
		}
		var err error
		if r.PlaylistID, err = model.ParseKey(model.KindPlaylist, playlistKey); err != nil {
			return err
		}
		if r.VideoID, err = model.ParseKey(model.KindVideo, videoKey); err != nil {
			return err
		}
		g.Items = append(g.Items, r)
		return nil
	})
	if err != nil {
		return nil, db.WrapError(err, "scan playlist items")
	}

	rows, err = t.tx.Query(ctx, `SELECT video_id, channel_id, broadcast_state, is_free_chat FROM videos`)
	if err != nil {
		return nil, db.WrapError(err, "load videos")
	}
	err = eachRow(rows, func() error {
		var r gc.VideoRow
		var videoKey, chanKey, state string
		if err := rows.Scan(&videoKey, &chanKey, &state, &r.IsFreeChat); err != nil {
			return err
		}
		var err error
		if r.ID, err = model.ParseKey(model.KindVideo, videoKey); err != nil {
			return err
		}
		if r.ChannelID, err = model.ParseKey(model.KindChannel, chanKey); err != nil {
			return err
		}
		r.BroadcastState = model.BroadcastState(state)
		g.Videos = append(g.Videos, r)
		return nil
	})
	if err != nil {
		return nil, db.WrapError(err, "scan videos")
	}

	return g, nil
}

func eachRow(rows pgx.Rows, fn func() error) error {
	defer rows.Close()
	for rows.Next() {
		if err := fn(); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (t *gcTx) deleteWhere(ctx context.Context, table, column string, ids []model.Identifier) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := t.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = ANY($1)`, table, column), keys(ids))
	if err != nil {
		return 0, db.WrapError(err, "delete from "+table)
	}
	return tag.RowsAffected(), nil
}

func (t *gcTx) DeleteSubscriptions(ctx context.Context, ids []model.Identifier) (int64, error) {
	return t.deleteWhere(ctx, "subscriptions", "subscription_id", ids)
}

func (t *gcTx) DeleteChannelActivity(ctx context.Context, channelIDs []model.Identifier) (int64, error) {
	return t.deleteWhere(ctx, "channel_activity_logs", "channel_id", channelIDs)
}

func (t *gcTx) DeletePlaylistItems(ctx context.Context, playlistIDs []model.Identifier) (int64, error) {
	return t.deleteWhere(ctx, "playlist_items", "playlist_id", playlistIDs)
}

func (t *gcTx) DeleteChannelPlaylists(ctx context.Context, channelIDs []model.Identifier) (int64, error) {
	return t.deleteWhere(ctx, "channel_playlists", "channel_id", channelIDs)
}

func (t *gcTx) DeletePlaylists(ctx context.Context, ids []model.Identifier) (int64, error) {
	return t.deleteWhere(ctx, "playlists", "playlist_id", ids)
}

func (t *gcTx) DeleteVideos(ctx context.Context, ids []model.Identifier) (int64, error) {
	return t.deleteWhere(ctx, "videos", "video_id", ids)
}

func (t *gcTx) DeleteChannelDetails(ctx context.Context, channelIDs []model.Identifier) (int64, error) {
	return t.deleteWhere(ctx, "channel_details", "channel_id", channelIDs)
}

func (t *gcTx) DeleteChannels(ctx context.Context, ids []model.Identifier) (int64, error) {
	return t.deleteWhere(ctx, "channels", "channel_id", ids)
}
