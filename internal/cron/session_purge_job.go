package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/primex-iptv/primex-backend/pkg/logger"
)

type sessionPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionPurgeJobParams configure the operator session purge.
type SessionPurgeJobParams struct {
	Logger   *logger.Logger
	Sessions sessionPurger
}

// NewSessionPurgeJob builds the job that removes expired operator sessions.
// Expired rows are already rejected lazily at auth time; the purge keeps the
// table from growing unbounded.
func NewSessionPurgeJob(params SessionPurgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager required")
	}
	return &sessionPurgeJob{
		logg:     params.Logger,
		sessions: params.Sessions,
		now:      time.Now,
	}, nil
}

type sessionPurgeJob struct {
	logg     *logger.Logger
	sessions sessionPurger
	now      func() time.Time
}

func (j *sessionPurgeJob) Name() string { return "session-purge" }

func (j *sessionPurgeJob) Run(ctx context.Context) error {
	purged, err := j.sessions.PurgeExpired(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("session purge: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "sessions_purged", purged), "session purge complete")
	return nil
}
