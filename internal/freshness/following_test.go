package freshness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timetable/timetable-sync/internal/model"
)

var follower = model.TwitchID(model.KindBroadcaster, "follower")

func broadcasters(ids ...string) []model.Broadcaster {
	out := make([]model.Broadcaster, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Broadcaster{ID: model.TwitchID(model.KindBroadcaster, id), FollowedAt: now.Add(-time.Hour)})
	}
	return out
}

func followingAt(t *testing.T, fetchedAt time.Time, ids ...string) model.FollowingSet {
	t.Helper()
	d, err := NewFollowingDiff(DefaultFollowingPolicy())
	require.NoError(t, err)
	set, err := d.CreateAtFetched(follower, broadcasters(ids...), fetchedAt)
	require.NoError(t, err)
	return set
}

func TestFollowingDiff_CreateAtFetched(t *testing.T) {
	set := followingAt(t, now, "a", "b")

	at, ok := set.CacheControl.UpdatableAt()
	require.True(t, ok)
	assert.Equal(t, now.Add(12*time.Hour), at)
	assert.Equal(t, follower, set.FollowerID)

	d, err := NewFollowingDiff(DefaultFollowingPolicy())
	require.NoError(t, err)
	_, err = d.CreateAtFetched(follower, broadcasters("a", "a"), now)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
	_, err = d.CreateAtFetched(model.Identifier{}, nil, now)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestGetRemovedFollowingIDs(t *testing.T) {
	later := now.Add(time.Minute)

	tests := []struct {
		name string
		old  []string
		new  []string
		want []string
	}{
		{name: "both empty", want: nil},
		{name: "no change", old: []string{"a", "b"}, new: []string{"b", "a"}},
		{name: "pure addition", old: []string{"a"}, new: []string{"a", "b"}},
		{name: "removal", old: []string{"a", "b", "c"}, new: []string{"b"}, want: []string{"a", "c"}},
		{name: "all removed", old: []string{"a"}, want: []string{"a"}},
		{name: "swap", old: []string{"a"}, new: []string{"b"}, want: []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := followingAt(t, now, tt.old...)
			newer := followingAt(t, later, tt.new...)

			got, err := GetRemovedFollowingIDs(old, newer)
			require.NoError(t, err)

			want := model.NewIDSet()
			for _, id := range tt.want {
				want.Add(model.TwitchID(model.KindBroadcaster, id))
			}
			assert.True(t, want.Equal(got), "got %v want %v", got.Sorted(), want.Sorted())

			newIDs := newer.BroadcasterIDs()
			for id := range got {
				assert.False(t, newIDs.Has(id), "removed id %s still followed", id)
			}
		})
	}
}

func TestGetRemovedFollowingIDs_FollowedAtIgnored(t *testing.T) {
	old := followingAt(t, now, "a")
	newer := followingAt(t, now.Add(time.Minute), "a")
	newer.Broadcasters[0].FollowedAt = now

	got, err := GetRemovedFollowingIDs(old, newer)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestGetRemovedFollowingIDs_Preconditions(t *testing.T) {
	old := followingAt(t, now, "a")

	tests := []struct {
		name  string
		newer func() model.FollowingSet
	}{
		{name: "same fetch time", newer: func() model.FollowingSet { return followingAt(t, now) }},
		{name: "older fetch time", newer: func() model.FollowingSet { return followingAt(t, now.Add(-time.Second)) }},
		{name: "other follower", newer: func() model.FollowingSet {
			s := followingAt(t, now.Add(time.Minute))
			s.FollowerID = model.TwitchID(model.KindBroadcaster, "someone else")
			return s
		}},
		{name: "unset fetch time", newer: func() model.FollowingSet {
			return model.FollowingSet{FollowerID: follower}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetRemovedFollowingIDs(old, tt.newer())
			require.Error(t, err)
			assert.True(t, model.IsInvalidArgument(err))
			assert.Nil(t, got)
		})
	}
}
