package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/timetable/timetable-sync/internal/db"
	"github.com/timetable/timetable-sync/internal/model"
)

// SubscriptionRepository manages the channels each account is subscribed to.
type SubscriptionRepository interface {
	// Upsert creates or updates subscriptions.
	Upsert(ctx context.Context, subs []model.Subscription) error

	// ListByAccount returns the subscriptions of accountID in display order.
	ListByAccount(ctx context.Context, accountID string) ([]model.Subscription, error)

	// ListAccounts returns every account id with at least one subscription.
	ListAccounts(ctx context.Context) ([]string, error)
}

type subscriptionRepository struct {
	q DBTX
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(q DBTX) SubscriptionRepository {
	return &subscriptionRepository{q: q}
}

func (r *subscriptionRepository) Upsert(ctx context.Context, subs []model.Subscription) error {
	if len(subs) == 0 {
		return nil
	}

	query := `
		INSERT INTO subscriptions (subscription_id, account_id, channel_id, subscribed_since, display_order)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subscription_id) DO UPDATE
		SET account_id = EXCLUDED.account_id,
		    channel_id = EXCLUDED.channel_id,
		    subscribed_since = EXCLUDED.subscribed_since,
		    display_order = EXCLUDED.display_order,
		    updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for _, s := range subs {
		batch.Queue(query, s.ID.Key(), s.AccountID, s.ChannelID.Key(), s.SubscribedSince, s.DisplayOrder)
	}
	if err := r.q.SendBatch(ctx, batch).Close(); err != nil {
		return db.WrapError(err, "upsert subscriptions")
	}
	return nil
}

func (r *subscriptionRepository) ListByAccount(ctx context.Context, accountID string) ([]model.Subscription, error) {
	query := `
		SELECT subscription_id, account_id, channel_id, subscribed_since, display_order
		FROM subscriptions
		WHERE account_id = $1
		ORDER BY display_order, subscription_id
	`

	rows, err := r.q.Query(ctx, query, accountID)
	if err != nil {
		return nil, db.WrapError(err, "list subscriptions")
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

func (r *subscriptionRepository) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT DISTINCT account_id FROM subscriptions ORDER BY account_id`)
	if err != nil {
		return nil, db.WrapError(err, "list accounts")
	}
	defer rows.Close()

	accounts, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, db.WrapError(err, "scan accounts")
	}
	return accounts, nil
}

func scanSubscriptions(rows pgx.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription

	for rows.Next() {
		var (
			s                  model.Subscription
			subKey, channelKey string
		)
		if err := rows.Scan(&subKey, &s.AccountID, &channelKey, &s.SubscribedSince, &s.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		var err error
		if s.ID, err = model.ParseKey(model.KindSubscription, subKey); err != nil {
			return nil, err
		}
		if s.ChannelID, err = model.ParseKey(model.KindChannel, channelKey); err != nil {
			return nil, err
		}
		s.SubscribedSince = s.SubscribedSince.UTC()
		subs = append(subs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}

	return subs, nil
}
