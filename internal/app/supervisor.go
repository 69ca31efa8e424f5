package app

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"atrSignalBot/internal/domain"
	"atrSignalBot/internal/metrics"
	"atrSignalBot/internal/ports"
)

// Runner is a supervised evaluation task.
type Runner interface {
	Run(ctx context.Context) error
	State() State
}

// RunnerFactory builds the task for one parameter.
type RunnerFactory func(param domain.TradeParameter) (Runner, error)

// NewEvaluatorFactory returns a RunnerFactory producing Evaluators.
func NewEvaluatorFactory(cfg EvaluatorConfig, deps EvaluatorDeps) RunnerFactory {
	return func(param domain.TradeParameter) (Runner, error) {
		return NewEvaluator(param, cfg, deps)
	}
}

// TaskStatus describes one supervised task.
type TaskStatus struct {
	Param domain.TradeParameter `json:"param"`
	State string                `json:"state"`
	Error string                `json:"error,omitempty"`
}

type task struct {
	param  domain.TradeParameter
	runner Runner
	cancel context.CancelFunc
	done   chan struct{}
	err    error // Set before done is closed
}

// Supervisor runs one cancellable goroutine per parameter. A task that fails
// is logged and left stopped; its siblings keep running.
type Supervisor struct {
	factory RunnerFactory
	logger  ports.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	tasks map[domain.PairKey]*task
}

// NewSupervisor creates a supervisor with no running tasks.
func NewSupervisor(factory RunnerFactory, m *metrics.Metrics, logger ports.Logger) (*Supervisor, error) {
	if factory == nil || m == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for supervisor")
	}
	return &Supervisor{
		factory: factory,
		logger:  logger,
		metrics: m,
		tasks:   make(map[domain.PairKey]*task),
	}, nil
}

// Replace stops every running task, waits for them to exit and starts one
// task per parameter. Parameters whose task cannot be built are logged and skipped.
func (s *Supervisor) Replace(ctx context.Context, params []domain.TradeParameter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	for _, p := range params {
		key := p.Key()
		if _, dup := s.tasks[key]; dup {
			s.logger.Warn(ctx, "Duplicate parameter for pair, keeping first", map[string]interface{}{"pair": key.String()})
			continue
		}
		runner, err := s.factory(p)
		if err != nil {
			s.logger.Error(ctx, err, "Failed to build evaluator", map[string]interface{}{"pair": key.String()})
			continue
		}
		taskCtx, cancel := context.WithCancel(ctx)
		t := &task{param: p, runner: runner, cancel: cancel, done: make(chan struct{})}
		s.tasks[key] = t
		s.metrics.EvaluatorsRunning.Inc()
		go s.run(taskCtx, t)
	}
	s.logger.Info(ctx, "Evaluators started", map[string]interface{}{"count": len(s.tasks)})
}

func (s *Supervisor) run(ctx context.Context, t *task) {
	key := t.param.Key()
	defer close(t.done)
	defer s.metrics.EvaluatorsRunning.Dec()
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("evaluator %s panicked: %v", key, r)
			s.metrics.EvaluatorsTerminated.WithLabelValues(t.param.Symbol, t.param.Timeframe).Inc()
			s.logger.Error(ctx, t.err, "Evaluator panicked", map[string]interface{}{"pair": key.String()})
		}
	}()

	if err := t.runner.Run(ctx); err != nil {
		t.err = err
		s.metrics.EvaluatorsTerminated.WithLabelValues(t.param.Symbol, t.param.Timeframe).Inc()
		s.logger.Error(ctx, err, "Evaluator terminated; it stays stopped until the next refresh", map[string]interface{}{"pair": key.String()})
	}
}

// Stop cancels all tasks and waits for them to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Supervisor) stopLocked() {
	for _, t := range s.tasks {
		t.cancel()
	}
	for key, t := range s.tasks {
		<-t.done
		delete(s.tasks, key)
	}
}

// Status lists the supervised tasks ordered by symbol and timeframe.
func (s *Supervisor) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		st := TaskStatus{Param: t.param, State: t.runner.State().String()}
		select {
		case <-t.done:
			if t.err != nil {
				st.State = StateTerminated.String()
				st.Error = t.err.Error()
			}
		default:
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Param.Symbol != out[j].Param.Symbol {
			return out[i].Param.Symbol < out[j].Param.Symbol
		}
		return out[i].Param.Timeframe < out[j].Param.Timeframe
	})
	return out
}

// Running returns the number of tasks that have not exited.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tasks {
		select {
		case <-t.done:
		default:
			n++
		}
	}
	return n
}
