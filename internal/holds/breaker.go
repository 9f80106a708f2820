package holds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/eventbook-backend/pkg/config"
	"github.com/angelmondragon/eventbook-backend/pkg/logger"
	"github.com/angelmondragon/eventbook-backend/pkg/metrics"
)

const (
	defaultBreakerMaxFailures = 5
	defaultBreakerOpenTimeout = 30 * time.Second
)

// storeBreaker stops a sweep from hammering a store that is already failing.
// It trips after BreakerMaxFailures failures within one interval; reads and
// writes share it since they hit the same database. Precondition misses are
// normal outcomes and never count as failures.
type storeBreaker struct {
	cb *gobreaker.CircuitBreaker[interface{}]
}

func newStoreBreaker(cfg config.HoldsConfig, logg *logger.Logger, m *metrics.HoldSweepMetrics) *storeBreaker {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = defaultBreakerOpenTimeout
	}
	m.SetBreakerState(int(gobreaker.StateClosed))

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "holds-store",
		MaxRequests: 1,
		Interval:    openTimeout,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrPreconditionFailed) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.SetBreakerState(int(to))
			if logg == nil {
				return
			}
			ctx := logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			if to == gobreaker.StateOpen {
				logg.Warn(ctx, "holds store breaker opened")
				return
			}
			logg.Info(ctx, "holds store breaker state changed")
		},
	})
	return &storeBreaker{cb: cb}
}

// do runs fn through the breaker. Rejections are reported as ErrStoreUnavailable.
func (b *storeBreaker) do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

func (b *storeBreaker) state() gobreaker.State {
	return b.cb.State()
}
