package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"parley/pkg/config"
	"parley/pkg/logger"
	"parley/pkg/store"
)

const defaultPeriod = 30 * 24 * time.Hour

// Start starts the notification retention scheduler if enabled. Each
// run drops read notifications older than the configured period.
// Returns a cancel func.
func Start(ctx context.Context, cfg config.RetentionConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	period := defaultPeriod
	if cfg.Period != "" {
		d, err := time.ParseDuration(cfg.Period)
		if err != nil {
			logger.Error("retention_invalid_period", "period", cfg.Period, "error", err)
			return nil, fmt.Errorf("invalid retention period: %s", cfg.Period)
		}
		period = d
	}

	// map empty cron to default daily @02:00
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", period.String())
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, period)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured
// cron expression and sleeps until that time.
func runScheduler(ctx context.Context, cronExpr string, period time.Duration) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			runOnce(period)
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// runOnce sweeps read notifications older than the retention period.
func runOnce(period time.Duration) {
	cutoff := time.Now().UTC().Add(-period)
	n, err := store.SweepReadNotifications(cutoff)
	if err != nil {
		logger.Error("retention_run_error", "error", err)
		return
	}
	logger.Info("retention_run_complete", "swept", n, "cutoff", cutoff.Format(time.RFC3339))
}
