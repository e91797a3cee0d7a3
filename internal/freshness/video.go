package freshness

import (
	"time"

	"github.com/timetable/timetable-sync/internal/model"
)

// VideoCalculator stamps video snapshots with their refresh deadline and
// free-chat classification.
type VideoCalculator struct {
	policy VideoPolicy
}

// NewVideoCalculator validates policy and returns a calculator.
func NewVideoCalculator(policy VideoPolicy) (*VideoCalculator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &VideoCalculator{policy: policy}, nil
}

// Policy returns the intervals in use.
func (c *VideoCalculator) Policy() VideoPolicy {
	return c.policy
}

// Classify produces the new classified state of current. previous is the
// last stored classification; unstamped values are ignored. isFreeChatHint
// is the title heuristic's verdict for current.
func (c *VideoCalculator) Classify(current model.Video, previous *model.ClassifiedVideo, isFreeChatHint bool, now time.Time) model.ClassifiedVideo {
	if !previous.IsStamped() {
		previous = nil
	}
	isFreeChat := c.isFreeChat(&current, previous, isFreeChatHint)
	return model.NewClassifiedVideo(
		current,
		isFreeChat,
		c.UpdatableAt(&current, isFreeChatHint, now),
		c.isThumbnailUpdatable(&current, previous, isFreeChat, now),
	)
}

// UpdatableAt returns when v must be fetched again, or nil for never.
func (c *VideoCalculator) UpdatableAt(v *model.Video, isFreeChatHint bool, now time.Time) *time.Time {
	switch {
	case v.BroadcastState == model.BroadcastNone:
		return nil
	case isFreeChatHint:
		return at(now.Add(c.policy.FreeChatDuration))
	case v.BroadcastState == model.BroadcastLive:
		return at(now.Add(c.policy.LiveDuration))
	case v.ScheduledStart == nil:
		return at(now.Add(c.policy.DefaultDuration))
	}

	start := *v.ScheduledStart
	if start.Sub(now) > c.policy.DefaultDuration {
		return at(now.Add(c.policy.DefaultDuration))
	}
	if now.Sub(start) <= c.policy.SoonLimit {
		return at(start)
	}
	// postponed well past its slot
	return at(now.Add(c.policy.DefaultDuration))
}

func (c *VideoCalculator) isFreeChat(current *model.Video, previous *model.ClassifiedVideo, hint bool) bool {
	if previous == nil {
		return hint
	}
	if current.BroadcastState != model.BroadcastUpcoming {
		return false
	}
	titleChanged := previous.Title != current.Title
	if previous.IsFreeChat {
		return !titleChanged && previous.BroadcastState == current.BroadcastState
	}
	return hint && titleChanged
}

func (c *VideoCalculator) isThumbnailUpdatable(current *model.Video, previous *model.ClassifiedVideo, isFreeChat bool, now time.Time) bool {
	switch {
	case previous == nil:
		return false
	case previous.Title != current.Title:
		return true
	case current.BroadcastState == model.BroadcastNone:
		return false
	case current.BroadcastState == model.BroadcastLive && previous.BroadcastState != model.BroadcastLive:
		return true
	case isFreeChat && previous.IsExpired(now):
		return true
	}
	return false
}

func at(t time.Time) *time.Time {
	return &t
}
