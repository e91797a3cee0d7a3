package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/timetable/timetable-sync/internal/syncer"
)

// passRunner runs one sync pass.
type passRunner interface {
	Sync(ctx context.Context) (*syncer.Result, error)
}

// runLoop runs a pass immediately and then once per interval until ctx is
// done.
func runLoop(ctx context.Context, runner passRunner, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("running initial sync pass")
	runPass(ctx, runner, logger)

	for {
		select {
		case <-ticker.C:
			logger.Debug("running scheduled sync pass")
			runPass(ctx, runner, logger)
		case <-ctx.Done():
			logger.Info("sync loop stopped")
			return nil
		}
	}
}

func runPass(ctx context.Context, runner passRunner, logger *zap.Logger) {
	res, err := runner.Sync(ctx)
	switch {
	case errors.Is(err, syncer.ErrPassInProgress):
		logger.Info("skipping scheduled pass, another pass is running")
	case ctx.Err() != nil:
		// shutting down
	case err != nil:
		fields := []zap.Field{zap.Error(err)}
		if res != nil {
			fields = append(fields,
				zap.Int("accounts", res.Accounts),
				zap.Int("failed_accounts", res.FailedAccounts),
			)
		}
		logger.Error("sync pass failed", fields...)
	}
}
