// Package quota keeps YouTube Data API usage under the daily limit.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/timetable/timetable-sync/internal/model"
)

const (
	// DefaultDailyLimit is the YouTube Data API v3 default.
	DefaultDailyLimit = 10000
	// DefaultThresholdPercent stops calls once this share of the limit is spent.
	DefaultThresholdPercent = 90
)

// ErrExhausted is returned when a call would cross the threshold.
var ErrExhausted = errors.New("api quota exhausted")

// Repository persists usage per day.
type Repository interface {
	UsedOn(ctx context.Context, t time.Time) (used, calls int, err error)
	IncrementQuota(ctx context.Context, t time.Time, quotaCost int, operationType string) error
}

// Manager handles YouTube API quota management.
type Manager struct {
	repo             Repository
	dailyLimit       int
	thresholdPercent int
	logger           *zap.Logger
	now              func() time.Time
}

// NewManager creates a new quota manager. Out of range values fall back to
// the defaults.
func NewManager(repo Repository, dailyLimit, thresholdPercent int, logger *zap.Logger) *Manager {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	if thresholdPercent <= 0 || thresholdPercent > 100 {
		thresholdPercent = DefaultThresholdPercent
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		repo:             repo,
		dailyLimit:       dailyLimit,
		thresholdPercent: thresholdPercent,
		logger:           logger,
		now:              time.Now,
	}
}

func (m *Manager) threshold() int {
	return m.dailyLimit * m.thresholdPercent / 100
}

// GetQuotaInfo returns today's usage.
func (m *Manager) GetQuotaInfo(ctx context.Context) (*model.QuotaInfo, error) {
	used, calls, err := m.repo.UsedOn(ctx, m.now())
	if err != nil {
		return nil, fmt.Errorf("get quota info: %w", err)
	}
	return &model.QuotaInfo{
		QuotaUsed:      used,
		QuotaLimit:     m.dailyLimit,
		QuotaRemaining: max(m.dailyLimit-used, 0),
		Calls:          calls,
	}, nil
}

// CheckQuotaAvailable reports whether requiredQuota fits under the threshold.
func (m *Manager) CheckQuotaAvailable(ctx context.Context, requiredQuota int) (bool, *model.QuotaInfo, error) {
	info, err := m.GetQuotaInfo(ctx)
	if err != nil {
		return false, nil, err
	}

	if info.QuotaUsed+requiredQuota > m.threshold() {
		m.logger.Warn("quota threshold reached",
			zap.Int("used", info.QuotaUsed),
			zap.Int("required", requiredQuota),
			zap.Int("threshold", m.threshold()),
			zap.Int("limit", m.dailyLimit),
		)
		return false, info, nil
	}
	return true, info, nil
}

// RecordQuotaUsage records API quota usage.
func (m *Manager) RecordQuotaUsage(ctx context.Context, quotaCost int, operationType string) error {
	if err := m.repo.IncrementQuota(ctx, m.now(), quotaCost, operationType); err != nil {
		return fmt.Errorf("record quota usage: %w", err)
	}
	m.logger.Debug("quota used", zap.Int("cost", quotaCost), zap.String("operation", operationType))
	return nil
}

// Spend checks the quota, runs call and records its cost. The cost is
// recorded even when call fails, since the API charges failed requests.
func (m *Manager) Spend(ctx context.Context, quotaCost int, operationType string, call func() error) error {
	ok, _, err := m.CheckQuotaAvailable(ctx, quotaCost)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", operationType, ErrExhausted)
	}

	callErr := call()
	if err := m.RecordQuotaUsage(ctx, quotaCost, operationType); err != nil {
		m.logger.Warn("failed to record quota usage", zap.Error(err))
	}
	return callErr
}
