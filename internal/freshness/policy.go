// Package freshness decides when cached metadata has to be fetched again.
//
// Everything here is a pure function of its inputs: no storage, no logging,
// no clock reads. Callers pass the current time explicitly.
package freshness

import (
	"fmt"
	"time"

	"github.com/timetable/timetable-sync/internal/model"
)

// VideoPolicy holds the intervals used by the video calculator.
type VideoPolicy struct {
	FreeChatDuration time.Duration
	LiveDuration     time.Duration
	DefaultDuration  time.Duration
	SoonLimit        time.Duration
}

// DefaultVideoPolicy returns the production intervals.
func DefaultVideoPolicy() VideoPolicy {
	return VideoPolicy{
		FreeChatDuration: 24 * time.Hour,
		LiveDuration:     10 * time.Minute,
		DefaultDuration:  30 * time.Minute,
		SoonLimit:        10 * time.Minute,
	}
}

// Validate rejects negative intervals.
func (p VideoPolicy) Validate() error {
	return nonNegative(map[string]time.Duration{
		"free chat duration": p.FreeChatDuration,
		"live duration":      p.LiveDuration,
		"default duration":   p.DefaultDuration,
		"soon limit":         p.SoonLimit,
	})
}

// PlaylistPolicy holds the bounds of the playlist backoff.
type PlaylistPolicy struct {
	MaxAgeDefault      time.Duration
	MaxAgeMax          time.Duration
	RecentlyBorder     time.Duration
	UpperLimitActive   time.Duration
	UpperLimitInactive time.Duration
}

// DefaultPlaylistPolicy returns the production bounds.
func DefaultPlaylistPolicy() PlaylistPolicy {
	return PlaylistPolicy{
		MaxAgeDefault:      5 * time.Minute,
		MaxAgeMax:          24 * time.Hour,
		RecentlyBorder:     72 * time.Hour,
		UpperLimitActive:   30 * time.Minute,
		UpperLimitInactive: 24 * time.Hour,
	}
}

// Validate rejects negative bounds and a zero default, which would never grow.
func (p PlaylistPolicy) Validate() error {
	if err := nonNegative(map[string]time.Duration{
		"max age max":          p.MaxAgeMax,
		"recently border":      p.RecentlyBorder,
		"upper limit active":   p.UpperLimitActive,
		"upper limit inactive": p.UpperLimitInactive,
	}); err != nil {
		return err
	}
	if p.MaxAgeDefault <= 0 {
		return fmt.Errorf("%w: max age default must be positive, got %s", model.ErrInvalidArgument, p.MaxAgeDefault)
	}
	return nil
}

// FollowingPolicy holds the following-list cache lifetime.
type FollowingPolicy struct {
	MaxAgeBroadcaster time.Duration
}

// DefaultFollowingPolicy returns the production lifetime.
func DefaultFollowingPolicy() FollowingPolicy {
	return FollowingPolicy{MaxAgeBroadcaster: 12 * time.Hour}
}

// Validate rejects a negative lifetime.
func (p FollowingPolicy) Validate() error {
	return nonNegative(map[string]time.Duration{"max age broadcaster": p.MaxAgeBroadcaster})
}

func nonNegative(durations map[string]time.Duration) error {
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%w: %s is negative (%s)", model.ErrInvalidArgument, name, d)
		}
	}
	return nil
}
