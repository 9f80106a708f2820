// Package supervisor runs long-lived services under a suture tree so a
// crashed worker loop or HTTP listener is restarted with backoff instead of
// taking the process down.
package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/angelmondragon/eventbook-backend/pkg/config"
	"github.com/angelmondragon/eventbook-backend/pkg/logger"
)

const (
	defaultFailureThreshold = 5.0
	defaultFailureDecay     = 30.0
	defaultFailureBackoff   = 15 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
)

// Tree has two layers: workers (cron services, outbox publisher) and api
// (HTTP server). A restart storm in one layer does not back off the other.
type Tree struct {
	root    *suture.Supervisor
	workers *suture.Supervisor
	api     *suture.Supervisor
	cfg     config.SupervisorConfig
}

// New builds the tree. Zero config values fall back to suture's defaults.
func New(name string, cfg config.SupervisorConfig, logg *logger.Logger) (*Tree, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if name == "" {
		name = "eventbook"
	}
	cfg = withDefaults(cfg)

	handler := &sutureslog.Handler{Logger: logg.Slog()}
	rootSpec := spec(cfg)
	rootSpec.EventHook = handler.MustHook()

	root := suture.New(name, rootSpec)
	workers := suture.New("workers", spec(cfg))
	api := suture.New("api", spec(cfg))
	root.Add(workers)
	root.Add(api)

	return &Tree{root: root, workers: workers, api: api, cfg: cfg}, nil
}

func withDefaults(cfg config.SupervisorConfig) config.SupervisorConfig {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.FailureDecay <= 0 {
		cfg.FailureDecay = defaultFailureDecay
	}
	if cfg.FailureBackoff <= 0 {
		cfg.FailureBackoff = defaultFailureBackoff
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return cfg
}

func spec(cfg config.SupervisorConfig) suture.Spec {
	return suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
}

// AddWorker supervises a background loop.
func (t *Tree) AddWorker(svc suture.Service) suture.ServiceToken {
	return t.workers.Add(svc)
}

// AddAPI supervises a request-serving component.
func (t *Tree) AddAPI(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Config returns the effective settings after defaults.
func (t *Tree) Config() config.SupervisorConfig { return t.cfg }

// Serve blocks until ctx is canceled. A canceled context is a clean stop.
func (t *Tree) Serve(ctx context.Context) error {
	err := t.root.Serve(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// UnstoppedServiceReport lists services that ignored the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
