package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/primex-iptv/primex-backend/pkg/logger"
	"github.com/primex-iptv/primex-backend/pkg/metrics"
)

type lapsedExpirer interface {
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
}

// ExpirySweepJobParams configure the expiry sweep.
type ExpirySweepJobParams struct {
	Logger   *logger.Logger
	Codes    lapsedExpirer
	Devices  lapsedExpirer
	Accounts lapsedExpirer
	Metrics  *metrics.ProvisioningMetrics
}

// NewExpirySweepJob builds the job that flips overdue codes, device pairings
// and accounts to expired. The lazy-expiry reads in the engines converge the
// hot rows; this sweep converges everything else.
func NewExpirySweepJob(params ExpirySweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Codes == nil {
		return nil, fmt.Errorf("codes repository required")
	}
	if params.Devices == nil {
		return nil, fmt.Errorf("devices repository required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	return &expirySweepJob{
		logg:     params.Logger,
		codes:    params.Codes,
		devices:  params.Devices,
		accounts: params.Accounts,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

type expirySweepJob struct {
	logg     *logger.Logger
	codes    lapsedExpirer
	devices  lapsedExpirer
	accounts lapsedExpirer
	metrics  *metrics.ProvisioningMetrics
	now      func() time.Time
}

func (j *expirySweepJob) Name() string { return "expiry-sweep" }

// Run sweeps all three tables even when one fails; errors are aggregated so a
// broken table does not starve the others.
func (j *expirySweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()

	var errs error
	swept := map[string]int64{}
	for name, expirer := range map[string]lapsedExpirer{
		"codes":    j.codes,
		"devices":  j.devices,
		"accounts": j.accounts,
	} {
		rows, err := expirer.ExpireLapsed(ctx, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", name, err))
			continue
		}
		swept[name] = rows
		j.metrics.AddSweptRows(rows)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"codes_expired":    swept["codes"],
		"devices_expired":  swept["devices"],
		"accounts_expired": swept["accounts"],
	})
	if errs != nil {
		j.logg.Error(logCtx, "expiry sweep finished with errors", errs)
		return errs
	}
	j.logg.Info(logCtx, "expiry sweep complete")
	return nil
}
