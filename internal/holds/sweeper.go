package holds

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventbook-backend/pkg/config"
	"github.com/angelmondragon/eventbook-backend/pkg/db/models"
	"github.com/angelmondragon/eventbook-backend/pkg/enums"
	"github.com/angelmondragon/eventbook-backend/pkg/logger"
	"github.com/angelmondragon/eventbook-backend/pkg/metrics"
	"github.com/angelmondragon/eventbook-backend/pkg/outbox"
	"github.com/angelmondragon/eventbook-backend/pkg/outbox/payloads"
)

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"

	defaultSweepConcurrency = 4
)

// Store is the inventory read and conditional write used by a sweep.
type Store interface {
	ListBlocked(ctx context.Context) ([]models.InventoryHold, error)
	ReleaseIfEligible(ctx context.Context, tx *gorm.DB, key UnitKey, expect Expectation, at time.Time) error
}

// ConfirmationLookup reports whether a confirmed booking references a unit.
type ConfirmationLookup interface {
	IsUnitConfirmed(ctx context.Context, key UnitKey) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type SweeperParams struct {
	Config  config.HoldsConfig
	Logger  *logger.Logger
	Store   Store
	Lookup  ConfirmationLookup
	DB      txRunner
	Events  eventEmitter
	Metrics *metrics.HoldSweepMetrics
	Now     func() time.Time
}

// Sweeper releases holds whose checkout never completed.
type Sweeper struct {
	cfg     config.HoldsConfig
	logg    *logger.Logger
	store   Store
	lookup  ConfirmationLookup
	db      txRunner
	events  eventEmitter
	metrics *metrics.HoldSweepMetrics
	breaker *storeBreaker
	now     func() time.Time
	limit   int
}

// Report summarizes one sweep.
type Report struct {
	Trigger   string           `json:"trigger"`
	Scanned   int              `json:"scanned"`
	Released  []UnitKey        `json:"released"`
	Decisions map[Decision]int `json:"decisions"`
	Duration  time.Duration    `json:"-"`
}

// ReleasedCount is the number of holds this sweep released.
func (r Report) ReleasedCount() int {
	return len(r.Released)
}

// TriggerResult is the outcome returned to a manual caller.
type TriggerResult struct {
	OK            bool   `json:"ok"`
	ReleasedCount int    `json:"releasedCount"`
	Error         string `json:"error,omitempty"`
}

func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Store == nil {
		return nil, errors.New("hold store required")
	}
	if params.Lookup == nil {
		return nil, errors.New("confirmation lookup required")
	}
	if params.DB == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Events == nil {
		return nil, errors.New("event emitter required")
	}
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	limit := params.Config.SweepConcurrency
	if limit <= 0 {
		limit = defaultSweepConcurrency
	}
	return &Sweeper{
		cfg:     params.Config,
		logg:    params.Logger,
		store:   params.Store,
		lookup:  params.Lookup,
		db:      params.DB,
		events:  params.Events,
		metrics: params.Metrics,
		breaker: newStoreBreaker(params.Config, params.Logger, params.Metrics),
		now:     now,
		limit:   limit,
	}, nil
}

// Sweep runs one scheduled pass over every blocked hold.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	return s.run(ctx, TriggerScheduled)
}

// Trigger runs a sweep now on behalf of a caller and never panics or returns an error value.
func (s *Sweeper) Trigger(ctx context.Context) TriggerResult {
	report, err := s.run(ctx, TriggerManual)
	if err != nil {
		return TriggerResult{OK: false, ReleasedCount: report.ReleasedCount(), Error: err.Error()}
	}
	return TriggerResult{OK: true, ReleasedCount: report.ReleasedCount()}
}

type outcome struct {
	key      UnitKey
	decision Decision
	err      error
}

func (s *Sweeper) run(ctx context.Context, trigger string) (report Report, err error) {
	start := s.now()
	report = Report{Trigger: trigger, Decisions: make(map[Decision]int)}
	defer func() {
		report.Duration = time.Since(start)
		s.metrics.ObserveSweep(trigger, err == nil, report.Duration)
		for decision, n := range report.Decisions {
			s.metrics.AddDecision(string(decision), n)
		}
		s.logSweep(ctx, report, err)
	}()

	var rows []models.InventoryHold
	listErr := s.breaker.do(func() error {
		var lerr error
		rows, lerr = s.store.ListBlocked(ctx)
		return lerr
	})
	if listErr != nil {
		return report, storeUnavailable(listErr)
	}
	report.Scanned = len(rows)

	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(o outcome) {
		mu.Lock()
		defer mu.Unlock()
		report.Decisions[o.decision]++
		if o.decision == DecisionRelease {
			report.Released = append(report.Released, o.key)
		}
		if o.err != nil {
			errs = append(errs, o.err)
		}
	}

	now := start.UTC()
	var g errgroup.Group
	g.SetLimit(s.limit)
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			record(s.evaluate(ctx, row, now))
			return nil
		})
	}
	_ = g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		errs = append(errs, ctxErr)
	}

	sort.Slice(report.Released, func(i, j int) bool {
		return report.Released[i].String() < report.Released[j].String()
	})
	return report, multierr.Combine(errs...)
}

func (s *Sweeper) evaluate(ctx context.Context, row models.InventoryHold, now time.Time) outcome {
	rec, err := NewRecord(row)
	if err != nil {
		return outcome{decision: DecisionInvalid, err: storeUnavailable(err)}
	}
	out := outcome{key: rec.Key}

	out.decision = Classify(rec, now, s.cfg.Timeout, s.cfg.SystemOwner)
	if out.decision != DecisionRelease {
		return out
	}

	var confirmed bool
	lookupErr := s.breaker.do(func() error {
		var lerr error
		confirmed, lerr = s.lookup.IsUnitConfirmed(ctx, rec.Key)
		return lerr
	})
	if lookupErr != nil {
		out.decision = DecisionSkipLookupFailed
		out.err = fmt.Errorf("%w for %s: %w", ErrConfirmationLookupFailed, rec.Key, lookupErr)
		return out
	}
	if confirmed {
		out.decision = DecisionSkipConfirmed
		return out
	}

	err = s.breaker.do(func() error {
		return s.release(ctx, rec, now)
	})
	switch {
	case err == nil:
		s.logRelease(ctx, rec, now)
	case errors.Is(err, ErrPreconditionFailed):
		out.decision = DecisionSkipPrecondition
	default:
		out.decision = DecisionReleaseFailed
		out.err = fmt.Errorf("release %s: %w", rec.Key, storeUnavailable(err))
	}
	return out
}

// release applies the conditional write and queues the audit event in one transaction.
func (s *Sweeper) release(ctx context.Context, rec Record, now time.Time) error {
	expect := Expectation{HoldToken: rec.HoldToken, SystemOwner: s.cfg.SystemOwner}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.store.ReleaseIfEligible(ctx, tx, rec.Key, expect, now); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, releasedEvent(rec, enums.HoldReleaseExpired, now, outbox.SystemActor(s.cfg.SystemOwner)))
	})
}

func releasedEvent(rec Record, cause enums.HoldReleaseCause, at time.Time, actor *outbox.ActorRef) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventHoldReleased,
		AggregateType: enums.AggregateInventoryUnit,
		AggregateID:   rec.Key.String(),
		Actor:         actor,
		OccurredAt:    at,
		Data: payloads.HoldReleasedEvent{
			Kind:       rec.Key.Kind,
			EventDate:  rec.Key.Date,
			Shift:      rec.Key.Shift,
			UnitCode:   rec.Key.Code,
			BlockedBy:  rec.BlockedBy,
			Cause:      cause,
			BlockedAt:  rec.BlockedAt,
			ReleasedAt: at,
		},
	}
}

func (s *Sweeper) logRelease(ctx context.Context, rec Record, now time.Time) {
	fields := map[string]any{
		"event":      "holds.release",
		"bucket":     rec.Key.Bucket().Name(s.cfg.BucketPrefix),
		"unit_code":  rec.Key.Code,
		"blocked_by": rec.BlockedBy,
		"cause":      enums.HoldReleaseExpired,
	}
	if rec.BlockedAt != nil {
		fields["held_for_ms"] = now.Sub(*rec.BlockedAt).Milliseconds()
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "hold released")
}

func (s *Sweeper) logSweep(ctx context.Context, report Report, err error) {
	fields := map[string]any{
		"event":       "holds.sweep",
		"trigger":     report.Trigger,
		"scanned":     report.Scanned,
		"released":    report.ReleasedCount(),
		"duration_ms": report.Duration.Milliseconds(),
		"breaker":     s.breaker.state().String(),
	}
	for decision, n := range report.Decisions {
		if decision == DecisionRelease {
			continue
		}
		fields[string(decision)] = n
	}
	logCtx := s.logg.WithFields(ctx, fields)
	if err != nil {
		logCtx = s.logg.WithField(logCtx, "errors", len(multierr.Errors(err)))
		s.logg.Error(logCtx, "hold sweep finished with errors", err)
		return
	}
	s.logg.Info(logCtx, "hold sweep finished")
}

func storeUnavailable(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
