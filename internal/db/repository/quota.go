package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/timetable/timetable-sync/internal/db"
	"github.com/timetable/timetable-sync/internal/model"
)

// QuotaRepository tracks API quota usage per day.
type QuotaRepository interface {
	// UsedOn returns the quota spent and calls made on the day of t (UTC).
	UsedOn(ctx context.Context, t time.Time) (used, calls int, err error)

	// IncrementQuota adds quotaCost to the day of t for operationType.
	IncrementQuota(ctx context.Context, t time.Time, quotaCost int, operationType string) error

	// GetQuotaHistory returns usage of the last days days, newest first.
	GetQuotaHistory(ctx context.Context, days int) ([]model.QuotaUsage, error)
}

type quotaRepository struct {
	q DBTX
}

// NewQuotaRepository creates a new QuotaRepository.
func NewQuotaRepository(q DBTX) QuotaRepository {
	return &quotaRepository{q: q}
}

func usageDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func (r *quotaRepository) UsedOn(ctx context.Context, t time.Time) (int, int, error) {
	var used, calls int
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(quota_used), 0), COALESCE(SUM(calls), 0)
		FROM api_quota_usage
		WHERE usage_date = $1::date
	`, usageDate(t)).Scan(&used, &calls)
	if err != nil {
		return 0, 0, db.WrapError(err, "get quota usage")
	}
	return used, calls, nil
}

func (r *quotaRepository) IncrementQuota(ctx context.Context, t time.Time, quotaCost int, operationType string) error {
	if quotaCost < 0 {
		return fmt.Errorf("%w: negative quota cost %d", model.ErrInvalidArgument, quotaCost)
	}
	if operationType == "" {
		operationType = "other"
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO api_quota_usage (usage_date, operation_type, quota_used, calls)
		VALUES ($1::date, $2, $3, 1)
		ON CONFLICT (usage_date, operation_type) DO UPDATE
		SET quota_used = api_quota_usage.quota_used + EXCLUDED.quota_used,
		    calls = api_quota_usage.calls + 1,
		    updated_at = NOW()
	`, usageDate(t), operationType, quotaCost)
	if err != nil {
		return db.WrapError(err, "increment quota")
	}
	return nil
}

func (r *quotaRepository) GetQuotaHistory(ctx context.Context, days int) ([]model.QuotaUsage, error) {
	if days <= 0 {
		days = 7
	}

	rows, err := r.q.Query(ctx, `
		SELECT usage_date, operation_type, quota_used, calls
		FROM api_quota_usage
		WHERE usage_date > CURRENT_DATE - $1::int
		ORDER BY usage_date DESC, operation_type
	`, days)
	if err != nil {
		return nil, db.WrapError(err, "get quota history")
	}
	defer rows.Close()

	var history []model.QuotaUsage
	for rows.Next() {
		var u model.QuotaUsage
		if err := rows.Scan(&u.Date, &u.OperationType, &u.QuotaUsed, &u.Calls); err != nil {
			return nil, db.WrapError(err, "scan quota history")
		}
		history = append(history, u)
	}
	if err := rows.Err(); err != nil {
		return nil, db.WrapError(err, "iterate quota history")
	}

	return history, nil
}
