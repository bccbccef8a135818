package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orderflow/internal/obslog"
)

// Service is one long-running component a Runner manages: an HTTP listener,
// a background worker, anything with an explicit start/stop lifecycle.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// HealthChecker is an optional extension a Service can implement.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Runner starts a fixed set of services in order and stops them, in
// reverse order, once its context is cancelled or WaitForShutdownSignal
// fires.
type Runner struct {
	services        []Service
	log             *obslog.Logger
	shutdownTimeout time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithShutdownTimeout bounds how long Stop may take across all services
// combined. Default 10s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Runner) { r.shutdownTimeout = d }
}

func New(services []Service, opts ...Option) *Runner {
	r := &Runner{
		services:        services,
		log:             obslog.New("runner"),
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts every service in order, then blocks until ctx is cancelled or
// an OS shutdown signal arrives, at which point it stops every started
// service in reverse order within the shutdown timeout.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		WaitForShutdownSignal()
		r.log.Info("shutdown signal received")
		cancel()
	}()

	started := make([]Service, 0, len(r.services))
	for _, svc := range r.services {
		r.log.Info("starting %s", svc.Name())
		if err := svc.Start(ctx); err != nil {
			r.log.Error("start %s: %v", svc.Name(), err)
			r.stopAll(started)
			return fmt.Errorf("runner: start %s: %w", svc.Name(), err)
		}
		started = append(started, svc)
	}

	<-ctx.Done()
	r.log.Info("shutting down")
	return r.stopAll(started)
}

func (r *Runner) stopAll(services []Service) error {
	if len(services) == 0 {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(services))

	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		wg.Add(1)
		go func(svc Service) {
			defer wg.Done()
			r.log.Info("stopping %s", svc.Name())
			if err := svc.Stop(shutdownCtx); err != nil {
				errCh <- fmt.Errorf("stop %s: %w", svc.Name(), err)
			}
		}(svc)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(errCh)
		var errs []error
		for err := range errCh {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			return fmt.Errorf("runner: shutdown errors: %v", errs)
		}
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf("runner: shutdown timeout exceeded")
	}
}

// HealthCheck reports the first failing service implementing HealthChecker.
func (r *Runner) HealthCheck(ctx context.Context) error {
	for _, svc := range r.services {
		if hc, ok := svc.(HealthChecker); ok {
			if err := hc.HealthCheck(ctx); err != nil {
				return fmt.Errorf("runner: %s unhealthy: %w", svc.Name(), err)
			}
		}
	}
	return nil
}
