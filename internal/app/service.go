package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"atrSignalBot/internal/domain"
	"atrSignalBot/internal/metrics"
	"atrSignalBot/internal/ports"
	"atrSignalBot/internal/selection"
)

// ServiceConfig holds the refresh settings of the SignalService.
type ServiceConfig struct {
	Criteria        selection.Criteria
	RefreshSchedule string // robfig/cron expression, e.g. "@every 24h"
}

// SignalService refreshes the active parameter set on a schedule and keeps
// one evaluator running per selected pair.
type SignalService struct {
	cfg        ServiceConfig
	repo       ports.BacktestResultRepository
	supervisor *Supervisor
	metrics    *metrics.Metrics
	logger     ports.Logger
	now        func() time.Time

	params atomic.Pointer[domain.ParameterSet]
	paused atomic.Bool

	mu     sync.Mutex // Serializes refresh, pause and resume
	runCtx context.Context
	cron   *cron.Cron
}

// NewSignalService creates a new application service instance.
func NewSignalService(cfg ServiceConfig, repo ports.BacktestResultRepository, supervisor *Supervisor, m *metrics.Metrics, logger ports.Logger) (*SignalService, error) {
	if repo == nil || supervisor == nil || m == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for SignalService")
	}
	if cfg.RefreshSchedule == "" {
		cfg.RefreshSchedule = "@every 24h"
	}
	if _, err := cron.ParseStandard(cfg.RefreshSchedule); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w: %w", cfg.RefreshSchedule, ports.ErrConfigurationError, err)
	}

	s := &SignalService{
		cfg:        cfg,
		repo:       repo,
		supervisor: supervisor,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
	s.params.Store(&domain.ParameterSet{Parameters: []domain.TradeParameter{}})
	return s, nil
}

// Run starts the service and blocks until ctx is canceled or SIGINT/SIGTERM
// is received, then shuts down.
func (s *SignalService) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Shutdown()
	return nil
}

// Start runs a refresh immediately and schedules the following ones.
// A failing first refresh is logged; the schedule retries it.
func (s *SignalService) Start(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	s.logger.Info(ctx, "Starting Signal Service...", map[string]interface{}{"refreshSchedule": s.cfg.RefreshSchedule})

	if err := s.Refresh(ctx); err != nil {
		s.logger.Error(ctx, err, "Initial parameter refresh failed")
	}

	cl := cronLogger{ctx: ctx, logger: s.logger}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(s.cfg.RefreshSchedule, func() {
		if err := s.Refresh(ctx); err != nil {
			s.logger.Error(ctx, err, "Scheduled parameter refresh failed")
		}
	}); err != nil {
		return fmt.Errorf("register refresh job: %w", err)
	}
	c.Start()

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()
	return nil
}

// Shutdown stops the schedule and all evaluators.
func (s *SignalService) Shutdown() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	s.supervisor.Stop()
	s.metrics.EvaluatorsRunning.Set(0)
	s.logger.Info(context.Background(), "Signal Service stopped")
}

// Refresh recomputes the parameter set from the repository, publishes it and
// restarts the evaluators. On a repository failure the previous set keeps running.
func (s *SignalService) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	results, err := s.repo.FetchQualifyingResults(ctx, s.cfg.Criteria.Filter(now))
	if err != nil {
		s.metrics.ParameterRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("fetch backtest results: %w", err)
	}

	set := &domain.ParameterSet{
		Parameters: s.cfg.Criteria.Select(results, now),
		ComputedAt: now,
	}
	s.params.Store(set)
	s.metrics.ParameterRefreshes.WithLabelValues("ok").Inc()
	s.metrics.ActiveParameters.Set(float64(set.Len()))

	if set.Len() == 0 {
		s.logger.Info(ctx, "No trading today, trade parameters are empty.")
	} else {
		s.logger.Info(ctx, "Parameter set refreshed", map[string]interface{}{"pairs": set.Len(), "candidates": len(results)})
	}

	if s.paused.Load() {
		s.logger.Info(ctx, "Service paused, evaluators not started")
		return nil
	}
	s.supervisor.Replace(s.taskContext(ctx), set.Parameters)
	return nil
}

// Pause stops all evaluators until Resume. Refreshes keep updating the set.
func (s *SignalService) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused.Store(true)
	s.supervisor.Stop()
}

// Resume restarts evaluators for the current parameter set.
func (s *SignalService) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused.Load() {
		return nil
	}
	s.paused.Store(false)
	s.supervisor.Replace(s.taskContext(ctx), s.params.Load().Parameters)
	return nil
}

// Paused reports whether evaluation is paused.
func (s *SignalService) Paused() bool {
	return s.paused.Load()
}

// ActiveParameters returns the current immutable parameter set.
func (s *SignalService) ActiveParameters() *domain.ParameterSet {
	return s.params.Load()
}

// Evaluators returns the status of the supervised evaluators.
func (s *SignalService) Evaluators() []TaskStatus {
	return s.supervisor.Status()
}

// taskContext prefers the long-lived context from Start so evaluators
// outlive the request or command that spawned them. Callers hold s.mu.
func (s *SignalService) taskContext(ctx context.Context) context.Context {
	if s.runCtx != nil {
		return s.runCtx
	}
	return ctx
}

// cronLogger adapts ports.Logger to cron.Logger.
type cronLogger struct {
	ctx    context.Context
	logger ports.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(l.ctx, "cron: "+msg, kvFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(l.ctx, err, "cron: "+msg, kvFields(keysAndValues))
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
