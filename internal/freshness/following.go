package freshness

import (
	"fmt"
	"time"

	"github.com/timetable/timetable-sync/internal/model"
)

// FollowingDiff builds following-list snapshots and detects unfollows
// between two of them.
type FollowingDiff struct {
	policy FollowingPolicy
}

// NewFollowingDiff validates policy and returns a diff engine.
func NewFollowingDiff(policy FollowingPolicy) (*FollowingDiff, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &FollowingDiff{policy: policy}, nil
}

// CreateAtFetched wraps a fetched broadcaster list into a FollowingSet that
// expires MaxAgeBroadcaster after fetchedAt.
func (d *FollowingDiff) CreateAtFetched(followerID model.Identifier, broadcasters []model.Broadcaster, fetchedAt time.Time) (model.FollowingSet, error) {
	if followerID.IsZero() {
		return model.FollowingSet{}, fmt.Errorf("%w: empty follower id", model.ErrInvalidArgument)
	}
	if err := model.ValidateBroadcasters(broadcasters); err != nil {
		return model.FollowingSet{}, err
	}
	cc, err := model.NewCacheControl(fetchedAt, d.policy.MaxAgeBroadcaster)
	if err != nil {
		return model.FollowingSet{}, err
	}
	return model.FollowingSet{
		FollowerID:   followerID,
		Broadcasters: broadcasters,
		CacheControl: cc,
	}, nil
}

// GetRemovedFollowingIDs returns the broadcasters present in old and absent
// from newer. Both sets must belong to the same follower and newer must have
// been fetched strictly after old.
func GetRemovedFollowingIDs(old, newer model.FollowingSet) (model.IDSet, error) {
	if old.FollowerID != newer.FollowerID {
		return nil, fmt.Errorf("%w: follower mismatch %s != %s", model.ErrInvalidArgument, old.FollowerID, newer.FollowerID)
	}
	if old.CacheControl.FetchedAt == nil || newer.CacheControl.FetchedAt == nil {
		return nil, fmt.Errorf("%w: following set without fetch time", model.ErrInvalidArgument)
	}
	if !newer.CacheControl.FetchedAt.After(*old.CacheControl.FetchedAt) {
		return nil, fmt.Errorf("%w: following set fetched at %s is not newer than %s",
			model.ErrInvalidArgument, newer.CacheControl.FetchedAt.Format(time.RFC3339Nano),
			old.CacheControl.FetchedAt.Format(time.RFC3339Nano))
	}
	return old.BroadcasterIDs().Difference(newer.BroadcasterIDs()), nil
}
