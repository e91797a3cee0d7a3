package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/timetable/timetable-sync/internal/db"
	"github.com/timetable/timetable-sync/internal/model"
)

// FollowingRepository manages the cached following list of each follower.
type FollowingRepository interface {
	// Get retrieves a following set. Returns db.ErrNotFound if absent.
	Get(ctx context.Context, followerID model.Identifier) (*model.FollowingSet, error)

	// Replace overwrites the set and its broadcasters.
	Replace(ctx context.Context, set model.FollowingSet) error
}

type followingRepository struct {
	q DBTX
}

// NewFollowingRepository creates a new FollowingRepository.
func NewFollowingRepository(q DBTX) FollowingRepository {
	return &followingRepository{q: q}
}

func (r *followingRepository) Get(ctx context.Context, followerID model.Identifier) (*model.FollowingSet, error) {
	var (
		fetchedAt time.Time
		maxAgeMs  *int64
	)
	err := r.q.QueryRow(ctx,
		`SELECT fetched_at, max_age_ms FROM following_sets WHERE follower_id = $1`,
		followerID.Key(),
	).Scan(&fetchedAt, &maxAgeMs)
	if err != nil {
		return nil, db.WrapError(err, "get following set")
	}

	set := model.FollowingSet{
		FollowerID:   followerID,
		CacheControl: cacheControl(&fetchedAt, maxAgeMs),
	}

	rows, err := r.q.Query(ctx, `
		SELECT broadcaster_id, followed_at
		FROM following_broadcasters
		WHERE follower_id = $1
		ORDER BY followed_at, broadcaster_id
	`, followerID.Key())
	if err != nil {
		return nil, db.WrapError(err, "list broadcasters")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b   model.Broadcaster
			key string
		)
		if err := rows.Scan(&key, &b.FollowedAt); err != nil {
			return nil, fmt.Errorf("scan broadcaster: %w", err)
		}
		if b.ID, err = model.ParseKey(model.KindBroadcaster, key); err != nil {
			return nil, err
		}
		b.FollowedAt = b.FollowedAt.UTC()
		set.Broadcasters = append(set.Broadcasters, b)
	}
	if err := rows.Err(); err != nil {
		return nil, db.WrapError(err, "iterate broadcasters")
	}

	return &set, nil
}

func (r *followingRepository) Replace(ctx context.Context, set model.FollowingSet) error {
	if set.CacheControl.FetchedAt == nil {
		return fmt.Errorf("%w: following set %s has no fetch time", model.ErrInvalidArgument, set.FollowerID)
	}
	if err := model.ValidateBroadcasters(set.Broadcasters); err != nil {
		return err
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO following_sets (follower_id, fetched_at, max_age_ms)
		VALUES ($1, $2, $3)
		ON CONFLICT (follower_id) DO UPDATE
		SET fetched_at = EXCLUDED.fetched_at,
		    max_age_ms = EXCLUDED.max_age_ms,
		    updated_at = NOW()
	`, set.FollowerID.Key(), set.CacheControl.FetchedAt.UTC(), maxAgeMillis(set.CacheControl))
	if err != nil {
		return db.WrapError(err, "upsert following set")
	}

	if _, err := r.q.Exec(ctx, `DELETE FROM following_broadcasters WHERE follower_id = $1`, set.FollowerID.Key()); err != nil {
		return db.WrapError(err, "clear broadcasters")
	}
	if len(set.Broadcasters) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range set.Broadcasters {
		batch.Queue(`
			INSERT INTO following_broadcasters (follower_id, broadcaster_id, followed_at)
			VALUES ($1, $2, $3)
		`, set.FollowerID.Key(), b.ID.Key(), b.FollowedAt.UTC())
	}
	if err := r.q.SendBatch(ctx, batch).Close(); err != nil {
		return db.WrapError(err, "insert broadcasters")
	}
	return nil
}
