package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/timetable/timetable-sync/internal/db"
	"github.com/timetable/timetable-sync/internal/model"
)

// VideoRepository manages classified video snapshots.
type VideoRepository interface {
	// Upsert stores the classified state of videos.
	Upsert(ctx context.Context, videos []model.ClassifiedVideo) error

	// GetByIDs returns the stored videos among ids, keyed by id.
	GetByIDs(ctx context.Context, ids []model.Identifier) (map[model.Identifier]model.ClassifiedVideo, error)

	// ListExpired returns videos whose refresh deadline is at or before now,
	// earliest deadline first.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Identifier, error)

	// ListTimetable returns live, upcoming and free chat videos ordered by
	// scheduled start.
	ListTimetable(ctx context.Context) ([]model.ClassifiedVideo, error)
}

type videoRepository struct {
	q DBTX
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(q DBTX) VideoRepository {
	return &videoRepository{q: q}
}

const videoColumns = `
	video_id, channel_id, title, description, thumbnail_url,
	scheduled_start_at, scheduled_end_at, actual_start_at, actual_end_at,
	broadcast_state, viewer_count, is_free_chat, updatable_at
`

func (r *videoRepository) Upsert(ctx context.Context, videos []model.ClassifiedVideo) error {
	if len(videos) == 0 {
		return nil
	}

	query := `
		INSERT INTO videos (` + videoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (video_id) DO UPDATE
		SET channel_id = EXCLUDED.channel_id,
		    title = EXCLUDED.title,
		    description = EXCLUDED.description,
		    thumbnail_url = EXCLUDED.thumbnail_url,
		    scheduled_start_at = EXCLUDED.scheduled_start_at,
		    scheduled_end_at = EXCLUDED.scheduled_end_at,
		    actual_start_at = EXCLUDED.actual_start_at,
		    actual_end_at = EXCLUDED.actual_end_at,
		    broadcast_state = EXCLUDED.broadcast_state,
		    viewer_count = EXCLUDED.viewer_count,
		    is_free_chat = EXCLUDED.is_free_chat,
		    updatable_at = EXCLUDED.updatable_at,
		    updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for i := range videos {
		v := &videos[i]
		if err := v.Validate(); err != nil {
			return err
		}
		batch.Queue(query,
			v.ID.Key(),
			v.ChannelID.Key(),
			v.Title,
			v.Description,
			v.ThumbnailURL,
			utc(v.ScheduledStart),
			utc(v.ScheduledEnd),
			utc(v.ActualStart),
			utc(v.ActualEnd),
			string(v.BroadcastState),
			v.ViewerCount,
			v.IsFreeChat,
			utc(v.UpdatableAt),
		)
	}

	if err := r.q.SendBatch(ctx, batch).Close(); err != nil {
		return db.WrapError(err, "upsert videos")
	}
	return nil
}

func (r *videoRepository) GetByIDs(ctx context.Context, ids []model.Identifier) (map[model.Identifier]model.ClassifiedVideo, error) {
	out := make(map[model.Identifier]model.ClassifiedVideo, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.q.Query(ctx, `SELECT `+videoColumns+` FROM videos WHERE video_id = ANY($1)`, keys(ids))
	if err != nil {
		return nil, db.WrapError(err, "get videos")
	}
	defer rows.Close()

	videos, err := scanVideos(rows)
	if err != nil {
		return nil, err
	}
	for _, v := range videos {
		out[v.ID] = v
	}
	return out, nil
}

func (r *videoRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Identifier, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.q.Query(ctx, `
		SELECT video_id
		FROM videos
		WHERE updatable_at IS NOT NULL AND updatable_at <= $1
		ORDER BY updatable_at, video_id
		LIMIT $2
	`, now.UTC(), limit)
	if err != nil {
		return nil, db.WrapError(err, "list expired videos")
	}
	defer rows.Close()

	raw, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, db.WrapError(err, "scan expired videos")
	}
	return parseKeys(model.KindVideo, raw)
}

func (r *videoRepository) ListTimetable(ctx context.Context) ([]model.ClassifiedVideo, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+videoColumns+`
		FROM videos
		WHERE broadcast_state IN ('live', 'upcoming') OR is_free_chat
		ORDER BY scheduled_start_at NULLS LAST, video_id
	`)
	if err != nil {
		return nil, db.WrapError(err, "list timetable videos")
	}
	defer rows.Close()

	return scanVideos(rows)
}

func scanVideos(rows pgx.Rows) ([]model.ClassifiedVideo, error) {
	var out []model.ClassifiedVideo

	for rows.Next() {
		var (
			v                 model.Video
			videoKey, chanKey string
			state             string
			isFreeChat        bool
			updatableAt       *time.Time
		)
		err := rows.Scan(
			&videoKey,
			&chanKey,
			&v.Title,
			&v.Description,
			&v.ThumbnailURL,
			&v.ScheduledStart,
			&v.ScheduledEnd,
			&v.ActualStart,
			&v.ActualEnd,
			&state,
			&v.ViewerCount,
			&isFreeChat,
			&updatableAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}

		if v.ID, err = model.ParseKey(model.KindVideo, videoKey); err != nil {
			return nil, err
		}
		if v.ChannelID, err = model.ParseKey(model.KindChannel, chanKey); err != nil {
			return nil, err
		}
		v.BroadcastState = model.BroadcastState(state)
		v.ScheduledStart = utc(v.ScheduledStart)
		v.ScheduledEnd = utc(v.ScheduledEnd)
		v.ActualStart = utc(v.ActualStart)
		v.ActualEnd = utc(v.ActualEnd)

		out = append(out, model.RestoreClassifiedVideo(v, isFreeChat, utc(updatableAt)))
	}

	if err := rows.Err(); err != nil {
		return nil, db.WrapError(err, "iterate videos")
	}
	return out, nil
}
