package model

import (
	"fmt"
	"time"
)

// CacheControl is the (fetched_at, max_age) pair attached to cached data.
// A nil field means unset, and an unset field makes the data always expired.
type CacheControl struct {
	FetchedAt *time.Time
	MaxAge    *time.Duration
}

// NewCacheControl builds a CacheControl with both fields set.
func NewCacheControl(fetchedAt time.Time, maxAge time.Duration) (CacheControl, error) {
	if maxAge < 0 {
		return CacheControl{}, fmt.Errorf("%w: negative max age %s", ErrInvalidArgument, maxAge)
	}
	return CacheControl{FetchedAt: &fetchedAt, MaxAge: &maxAge}, nil
}

// UpdatableAt returns fetched_at + max_age; ok is false when either is unset.
func (c CacheControl) UpdatableAt() (t time.Time, ok bool) {
	if c.FetchedAt == nil || c.MaxAge == nil {
		return time.Time{}, false
	}
	return c.FetchedAt.Add(*c.MaxAge), true
}

// IsExpired reports whether the data must be re-fetched at now.
func (c CacheControl) IsExpired(now time.Time) bool {
	at, ok := c.UpdatableAt()
	if !ok {
		return true
	}
	return !now.Before(at)
}

// MaxAgeOr returns the max age, or def when it is unset.
func (c CacheControl) MaxAgeOr(def time.Duration) time.Duration {
	if c.MaxAge == nil {
		return def
	}
	return *c.MaxAge
}
