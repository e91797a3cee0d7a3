package model

import (
	"fmt"
	"time"
)

// Broadcaster is a followed account on a following list.
type Broadcaster struct {
	ID         Identifier
	FollowedAt time.Time
}

// FollowingSet is one snapshot of a follower's following list.
type FollowingSet struct {
	FollowerID   Identifier
	Broadcasters []Broadcaster
	CacheControl CacheControl
}

// ValidateBroadcasters checks that broadcaster ids are unique.
func ValidateBroadcasters(broadcasters []Broadcaster) error {
	seen := make(IDSet, len(broadcasters))
	for _, b := range broadcasters {
		if seen.Has(b.ID) {
			return fmt.Errorf("%w: duplicate broadcaster %s", ErrInvalidArgument, b.ID)
		}
		seen.Add(b.ID)
	}
	return nil
}

// BroadcasterIDs returns the ids on the list.
func (f *FollowingSet) BroadcasterIDs() IDSet {
	out := make(IDSet, len(f.Broadcasters))
	for _, b := range f.Broadcasters {
		out.Add(b.ID)
	}
	return out
}
