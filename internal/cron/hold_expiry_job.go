package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/eventbook-backend/internal/holds"
	"github.com/angelmondragon/eventbook-backend/pkg/logger"
)

const HoldExpiryJobName = "hold-expiry"

type holdSweeper interface {
	Sweep(ctx context.Context) (holds.Report, error)
}

type HoldExpiryJobParams struct {
	Logger  *logger.Logger
	Sweeper holdSweeper
}

// NewHoldExpiryJob runs one scheduled sweep per cron cycle.
func NewHoldExpiryJob(params HoldExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("hold sweeper required")
	}
	return &holdExpiryJob{logg: params.Logger, sweeper: params.Sweeper}, nil
}

type holdExpiryJob struct {
	logg    *logger.Logger
	sweeper holdSweeper
}

func (j *holdExpiryJob) Name() string { return HoldExpiryJobName }

func (j *holdExpiryJob) Run(ctx context.Context) error {
	report, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("hold expiry sweep: %w", err)
	}
	if report.ReleasedCount() > 0 {
		j.logg.Debug(j.logg.WithFields(ctx, map[string]any{
			"scanned":  report.Scanned,
			"released": report.ReleasedCount(),
		}), "expired holds released")
	}
	return nil
}
