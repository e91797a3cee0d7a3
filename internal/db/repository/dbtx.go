// Package repository implements the cache on PostgreSQL.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/timetable/timetable-sync/internal/model"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so every repository can
// run inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func keys(ids []model.Identifier) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Key()
	}
	return out
}

// optionalKey maps the zero identifier to NULL.
func optionalKey(id model.Identifier) *string {
	if id.IsZero() {
		return nil
	}
	k := id.Key()
	return &k
}

func parseOptionalKey(kind model.Kind, key *string) (model.Identifier, error) {
	if key == nil || *key == "" {
		return model.Identifier{}, nil
	}
	return model.ParseKey(kind, *key)
}

func maxAgeMillis(cc model.CacheControl) *int64 {
	if cc.MaxAge == nil {
		return nil
	}
	ms := cc.MaxAge.Milliseconds()
	return &ms
}

func cacheControl(fetchedAt *time.Time, maxAgeMs *int64) model.CacheControl {
	var cc model.CacheControl
	if fetchedAt != nil {
		t := fetchedAt.UTC()
		cc.FetchedAt = &t
	}
	if maxAgeMs != nil {
		d := time.Duration(*maxAgeMs) * time.Millisecond
		cc.MaxAge = &d
	}
	return cc
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func parseKeys(kind model.Kind, raw []string) ([]model.Identifier, error) {
	out := make([]model.Identifier, 0, len(raw))
	for _, k := range raw {
		id, err := model.ParseKey(kind, k)
		if err != nil {
			return nil, fmt.Errorf("parse %s key: %w", kind, err)
		}
		out = append(out, id)
	}
	return out, nil
}
