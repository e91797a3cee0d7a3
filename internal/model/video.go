package model

import (
	"fmt"
	"time"
)

// BroadcastState classifies a video. None covers both uploads and finished
// streams; actual start/end tell them apart.
type BroadcastState string

const (
	BroadcastNone     BroadcastState = "none"
	BroadcastUpcoming BroadcastState = "upcoming"
	BroadcastLive     BroadcastState = "live"
)

// Valid reports whether s is a known state.
func (s BroadcastState) Valid() bool {
	switch s {
	case BroadcastNone, BroadcastUpcoming, BroadcastLive:
		return true
	}
	return false
}

// IsUnfinished reports whether the video is still live or scheduled.
func (s BroadcastState) IsUnfinished() bool {
	return s == BroadcastLive || s == BroadcastUpcoming
}

// Video is the raw remote snapshot of a video.
type Video struct {
	ID             Identifier
	ChannelID      Identifier
	Title          string
	Description    string
	ThumbnailURL   string
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
	ActualStart    *time.Time
	ActualEnd      *time.Time
	BroadcastState BroadcastState
	ViewerCount    *int64
}

// Validate checks the broadcast invariants of the snapshot.
func (v *Video) Validate() error {
	if v.ID.IsZero() || v.ID.Kind != KindVideo {
		return fmt.Errorf("%w: video id %q is not a video identifier", ErrInvalidArgument, v.ID)
	}
	if !v.BroadcastState.Valid() {
		return fmt.Errorf("%w: video %s has unknown broadcast state %q", ErrInvalidArgument, v.ID, v.BroadcastState)
	}
	if v.ActualStart != nil && v.BroadcastState == BroadcastUpcoming {
		return fmt.Errorf("%w: video %s is upcoming but has started", ErrInvalidArgument, v.ID)
	}
	if v.BroadcastState == BroadcastLive && v.ActualStart == nil {
		return fmt.Errorf("%w: video %s is live without actual start", ErrInvalidArgument, v.ID)
	}
	if v.ActualEnd != nil {
		if v.ActualStart == nil {
			return fmt.Errorf("%w: video %s ended without starting", ErrInvalidArgument, v.ID)
		}
		if v.BroadcastState != BroadcastNone {
			return fmt.Errorf("%w: video %s ended but is %s", ErrInvalidArgument, v.ID, v.BroadcastState)
		}
	}
	if v.ScheduledStart != nil && v.ScheduledEnd != nil && v.ScheduledEnd.Before(*v.ScheduledStart) {
		return fmt.Errorf("%w: video %s scheduled end precedes scheduled start", ErrInvalidArgument, v.ID)
	}
	return nil
}

// Reconcile aligns the broadcast state with the actual start and end times
// when a remote reports them out of step: a video with both is None, a
// started upcoming video is Live.
func (v *Video) Reconcile() {
	switch {
	case v.ActualStart != nil && v.ActualEnd != nil:
		v.BroadcastState = BroadcastNone
		v.ViewerCount = nil
	case v.ActualStart != nil && v.BroadcastState == BroadcastUpcoming:
		v.BroadcastState = BroadcastLive
	}
}

// IsArchived reports whether the video is a finished stream.
func (v *Video) IsArchived() bool {
	return v.BroadcastState == BroadcastNone && v.ActualEnd != nil
}

// ClassifiedVideo is a video stamped with its refresh deadline and free-chat
// classification.
type ClassifiedVideo struct {
	Video
	IsFreeChat           bool
	UpdatableAt          *time.Time // nil means never
	IsThumbnailUpdatable bool

	stamped bool
}

// NewClassifiedVideo returns a stamped classification. It is meant for the
// freshness calculator; storage reloads go through RestoreClassifiedVideo.
func NewClassifiedVideo(v Video, isFreeChat bool, updatableAt *time.Time, thumbnailUpdatable bool) ClassifiedVideo {
	return ClassifiedVideo{
		Video:                v,
		IsFreeChat:           isFreeChat,
		UpdatableAt:          updatableAt,
		IsThumbnailUpdatable: thumbnailUpdatable,
		stamped:              true,
	}
}

// RestoreClassifiedVideo rebuilds a previously persisted classification.
func RestoreClassifiedVideo(v Video, isFreeChat bool, updatableAt *time.Time) ClassifiedVideo {
	return NewClassifiedVideo(v, isFreeChat, updatableAt, false)
}

// IsStamped reports whether the value came from the calculator or storage.
// Literal values are unstamped.
func (c *ClassifiedVideo) IsStamped() bool {
	return c != nil && c.stamped
}

// IsExpired reports whether the video must be re-fetched at now.
func (c *ClassifiedVideo) IsExpired(now time.Time) bool {
	if c.UpdatableAt == nil {
		return false
	}
	return !now.Before(*c.UpdatableAt)
}

// IsRetained reports whether the garbage collector keeps the video regardless
// of playlist membership.
func (c *ClassifiedVideo) IsRetained() bool {
	return c.BroadcastState.IsUnfinished() || c.IsFreeChat
}
