package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/eventbook-backend/internal/holds"
	"github.com/angelmondragon/eventbook-backend/pkg/logger"
)

type fakeSweeper struct {
	report holds.Report
	err    error
	calls  int
}

func (f *fakeSweeper) Sweep(context.Context) (holds.Report, error) {
	f.calls++
	return f.report, f.err
}

func TestHoldExpiryJobRunsSweep(t *testing.T) {
	sweeper := &fakeSweeper{report: holds.Report{Scanned: 3, Released: []holds.UnitKey{{Code: "A1"}}}}
	job, err := NewHoldExpiryJob(HoldExpiryJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Sweeper: sweeper,
	})
	if err != nil {
		t.Fatalf("NewHoldExpiryJob: %v", err)
	}
	if job.Name() != HoldExpiryJobName {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
}

func TestHoldExpiryJobPropagatesSweepError(t *testing.T) {
	sweeper := &fakeSweeper{err: holds.ErrStoreUnavailable}
	job, err := NewHoldExpiryJob(HoldExpiryJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Sweeper: sweeper,
	})
	if err != nil {
		t.Fatalf("NewHoldExpiryJob: %v", err)
	}
	err = job.Run(context.Background())
	if !errors.Is(err, holds.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestNewHoldExpiryJobRequiresSweeper(t *testing.T) {
	if _, err := NewHoldExpiryJob(HoldExpiryJobParams{Logger: logger.New(logger.Options{ServiceName: "test"})}); err == nil {
		t.Fatal("expected error")
	}
}
