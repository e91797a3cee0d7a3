package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/timetable/timetable-sync/internal/db"
	"github.com/timetable/timetable-sync/internal/model"
)

// PlaylistRepository manages playlist snapshots, their items and the
// channel to uploads-playlist mapping.
type PlaylistRepository interface {
	// Get retrieves a snapshot with its items ordered by publish time.
	Get(ctx context.Context, id model.Identifier) (*model.PlaylistSnapshot, error)

	// Replace overwrites the snapshot and all its items.
	Replace(ctx context.Context, p model.PlaylistSnapshot) error

	// MapChannel records p as the uploads playlist of channelID.
	MapChannel(ctx context.Context, channelID, playlistID model.Identifier) error
}

type playlistRepository struct {
	q DBTX
}

// NewPlaylistRepository creates a new PlaylistRepository. Replace issues
// several statements, so q should be a transaction.
func NewPlaylistRepository(q DBTX) PlaylistRepository {
	return &playlistRepository{q: q}
}

func (r *playlistRepository) Get(ctx context.Context, id model.Identifier) (*model.PlaylistSnapshot, error) {
	var (
		fetchedAt *time.Time
		maxAgeMs  *int64
	)
	p := model.PlaylistSnapshot{ID: id}

	err := r.q.QueryRow(ctx,
		`SELECT etag, fetched_at, max_age_ms FROM playlists WHERE playlist_id = $1`,
		id.Key(),
	).Scan(&p.ETag, &fetchedAt, &maxAgeMs)
	if err != nil {
		return nil, db.WrapError(err, "get playlist")
	}
	p.CacheControl = cacheControl(fetchedAt, maxAgeMs)

	rows, err := r.q.Query(ctx, `
		SELECT item_id, video_id, published_at
		FROM playlist_items
		WHERE playlist_id = $1
		ORDER BY published_at, item_id
	`, id.Key())
	if err != nil {
		return nil, db.WrapError(err, "list playlist items")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it       model.PlaylistItem
			videoKey string
		)
		if err := rows.Scan(&it.ID, &videoKey, &it.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan playlist item: %w", err)
		}
		if it.VideoID, err = model.ParseKey(model.KindVideo, videoKey); err != nil {
			return nil, err
		}
		it.PublishedAt = it.PublishedAt.UTC()
		p.Items = append(p.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, db.WrapError(err, "iterate playlist items")
	}

	return &p, nil
}

func (r *playlistRepository) Replace(ctx context.Context, p model.PlaylistSnapshot) error {
	if err := model.ValidateItems(p.Items); err != nil {
		return err
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO playlists (playlist_id, etag, fetched_at, max_age_ms)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (playlist_id) DO UPDATE
		SET etag = EXCLUDED.etag,
		    fetched_at = EXCLUDED.fetched_at,
		    max_age_ms = EXCLUDED.max_age_ms,
		    updated_at = NOW()
	`, p.ID.Key(), p.ETag, utc(p.CacheControl.FetchedAt), maxAgeMillis(p.CacheControl))
	if err != nil {
		return db.WrapError(err, "upsert playlist")
	}

	if _, err := r.q.Exec(ctx, `DELETE FROM playlist_items WHERE playlist_id = $1`, p.ID.Key()); err != nil {
		return db.WrapError(err, "clear playlist items")
	}

	if len(p.Items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, it := range p.Items {
		batch.Queue(`
			INSERT INTO playlist_items (playlist_id, item_id, video_id, published_at)
			VALUES ($1, $2, $3, $4)
		`, p.ID.Key(), it.ID, it.VideoID.Key(), it.PublishedAt.UTC())
	}
	if err := r.q.SendBatch(ctx, batch).Close(); err != nil {
		return db.WrapError(err, "insert playlist items")
	}
	return nil
}

func (r *playlistRepository) MapChannel(ctx context.Context, channelID, playlistID model.Identifier) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO channel_playlists (channel_id, playlist_id)
		VALUES ($1, $2)
		ON CONFLICT (channel_id) DO UPDATE SET playlist_id = EXCLUDED.playlist_id
	`, channelID.Key(), playlistID.Key())
	if err != nil {
		return db.WrapError(err, "map channel playlist")
	}
	return nil
}
