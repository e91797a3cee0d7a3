package repository

import (
	"context"
	"fmt"
	"time"


	"github.com/timetable/timetable-sync/internal/db"
	"github.com/timetable/timetable-sync/internal/model"
)

// ChannelRepository manages cached channels, their details and the
// append-only activity log.
type ChannelRepository interface {
	// Upsert creates a channel or refreshes its cached fields.
	Upsert(ctx context.Context, ch model.Channel) error

	// GetByID retrieves a single channel. Returns db.ErrNotFound if absent.
	GetByID(ctx context.Context, id model.Identifier) (*model.Channel, error)

	// UpsertDetail stores the long-form metadata of an existing channel.
	UpsertDetail(ctx context.Context, d model.ChannelDetail) error

	// GetDetail retrieves the details of a channel.
	GetDetail(ctx context.Context, id model.Identifier) (*model.ChannelDetail, error)

	// AppendActivity logs the videos a channel published in one fetch.
	AppendActivity(ctx context.Context, a model.ChannelActivity) (int64, error)

	// ListActivity returns the activity of a channel, newest first.
	ListActivity(ctx context.Context, id model.Identifier, limit int) ([]model.ChannelActivity, error)
}

type channelRepository struct {
	q DBTX
}

// NewChannelRepository creates a new ChannelRepository.
func NewChannelRepository(q DBTX) ChannelRepository {
	return &channelRepository{q: q}
}

func (r *channelRepository) Upsert(ctx context.Context, ch model.Channel) error {
	query := `
		INSERT INTO channels (channel_id, platform, title, icon_url, uploaded_playlist_id, fetched_at, max_age_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (channel_id) DO UPDATE
		SET title = EXCLUDED.title,
		    icon_url = EXCLUDED.icon_url,
		    uploaded_playlist_id = EXCLUDED.uploaded_playlist_id,
		    fetched_at = EXCLUDED.fetched_at,
		    max_age_ms = EXCLUDED.max_age_ms,
		    updated_at = NOW()
	`

	_, err := r.q.Exec(ctx, query,
		ch.ID.Key(),
		string(ch.ID.Platform),
		ch.Title,
		ch.IconURL,
		optionalKey(ch.UploadedPlaylistID),
		utc(ch.CacheControl.FetchedAt),
		maxAgeMillis(ch.CacheControl),
	)
	if err != nil {
		return db.WrapError(err, "upsert channel")
	}
	return nil
}

func (r *channelRepository) GetByID(ctx context.Context, id model.Identifier) (*model.Channel, error) {
	query := `
		SELECT channel_id, title, icon_url, uploaded_playlist_id, fetched_at, max_age_ms
		FROM channels
		WHERE channel_id = $1
	`

	var (
		ch          model.Channel
		key         string
		playlistKey *string
		fetchedAt   *time.Time
		maxAgeMs    *int64
	)
	err := r.q.QueryRow(ctx, query, id.Key()).Scan(&key, &ch.Title, &ch.IconURL, &playlistKey, &fetchedAt, &maxAgeMs)
	if err != nil {
		return nil, db.WrapError(err, "get channel")
	}

	if ch.ID, err = model.ParseKey(model.KindChannel, key); err != nil {
		return nil, err
	}
	if ch.UploadedPlaylistID, err = parseOptionalKey(model.KindPlaylist, playlistKey); err != nil {
		return nil, err
	}
	ch.CacheControl = cacheControl(fetchedAt, maxAgeMs)

	return &ch, nil
}

func (r *channelRepository) UpsertDetail(ctx context.Context, d model.ChannelDetail) error {
	query := `
		INSERT INTO channel_details (channel_id, description, banner_url, subscriber_count, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (channel_id) DO UPDATE
		SET description = EXCLUDED.description,
		    banner_url = EXCLUDED.banner_url,
		    subscriber_count = EXCLUDED.subscriber_count,
		    updated_at = EXCLUDED.updated_at
	`

	updatedAt := d.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.q.Exec(ctx, query, d.ChannelID.Key(), d.Description, d.BannerURL, d.SubscriberCount, updatedAt.UTC())
	if err != nil {
		return db.WrapError(err, "upsert channel detail")
	}
	return nil
}

func (r *channelRepository) GetDetail(ctx context.Context, id model.Identifier) (*model.ChannelDetail, error) {
	query := `
		SELECT description, banner_url, subscriber_count, updated_at
		FROM channel_details
		WHERE channel_id = $1
	`

	d := model.ChannelDetail{ChannelID: id}
	err := r.q.QueryRow(ctx, query, id.Key()).Scan(&d.Description, &d.BannerURL, &d.SubscriberCount, &d.UpdatedAt)
	if err != nil {
		return nil, db.WrapError(err, "get channel detail")
	}
	d.UpdatedAt = d.UpdatedAt.UTC()

	return &d, nil
}

func (r *channelRepository) AppendActivity(ctx context.Context, a model.ChannelActivity) (int64, error) {
	query := `
		INSERT INTO channel_activity_logs (channel_id, video_ids, logged_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	var id int64
	err := r.q.QueryRow(ctx, query, a.ChannelID.Key(), keys(a.VideoIDs), a.LoggedAt.UTC()).Scan(&id)
	if err != nil {
		return 0, db.WrapError(err, "append channel activity")
	}
	return id, nil
}

func (r *channelRepository) ListActivity(ctx context.Context, id model.Identifier, limit int) ([]model.ChannelActivity, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, video_ids, logged_at
		FROM channel_activity_logs
		WHERE channel_id = $1
		ORDER BY logged_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, id.Key(), limit)
	if err != nil {
		return nil, db.WrapError(err, "list channel activity")
	}
	defer rows.Close()

	var out []model.ChannelActivity
	for rows.Next() {
		a := model.ChannelActivity{ChannelID: id}
		var videoKeys []string
		if err := rows.Scan(&a.ID, &videoKeys, &a.LoggedAt); err != nil {
			return nil, fmt.Errorf("scan channel activity: %w", err)
		}
		if a.VideoIDs, err = parseKeys(model.KindVideo, videoKeys); err != nil {
			return nil, err
		}
		a.LoggedAt = a.LoggedAt.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, db.WrapError(err, "iterate channel activity")
	}

	return out, nil
}
