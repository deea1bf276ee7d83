package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/kubev2v/hypervisor-collector/internal/models"
	"github.com/kubev2v/hypervisor-collector/pkg/errors"
	"github.com/kubev2v/hypervisor-collector/pkg/scheduler"
)

const (
	DefaultWorkers        = 4
	DefaultBackendTimeout = 5 * time.Minute

	eventStart    = "start"
	eventComplete = "complete"
)

type SchedulerOption func(*CollectionScheduler)

func WithWorkers(n int) SchedulerOption {
	return func(s *CollectionScheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithBackendTimeout bounds each backend collection. Zero disables the bound.
func WithBackendTimeout(d time.Duration) SchedulerOption {
	return func(s *CollectionScheduler) {
		s.timeout = d
	}
}

func WithMetrics(m *Metrics) SchedulerOption {
	return func(s *CollectionScheduler) {
		s.metrics = m
	}
}

// CollectionScheduler collects every enabled backend of a configuration
// exactly once.
type CollectionScheduler struct {
	data     *models.ConfigData
	registry BackendRegistry
	workers  int
	timeout  time.Duration
	metrics  *Metrics

	runID   string
	machine *fsm.FSM
	results *ResultsAggregator
}

func NewCollectionScheduler(data *models.ConfigData, registry BackendRegistry, opts ...SchedulerOption) *CollectionScheduler {
	s := &CollectionScheduler{
		data:     data,
		registry: registry,
		workers:  DefaultWorkers,
		timeout:  DefaultBackendTimeout,
		runID:    uuid.NewString(),
		results:  NewResultsAggregator(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.machine = fsm.NewFSM(
		string(models.SchedulerStateIdle),
		fsm.Events{
			{Name: eventStart, Src: []string{string(models.SchedulerStateIdle)}, Dst: string(models.SchedulerStateRunning)},
			{Name: eventComplete, Src: []string{string(models.SchedulerStateRunning)}, Dst: string(models.SchedulerStateCompleted)},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				zap.S().Named("scheduler").Debugw("scheduler state transition", "run", s.runID, "from", e.Src, "to", e.Dst)
			},
		},
	)

	return s
}

func (s *CollectionScheduler) State() models.SchedulerState {
	return models.SchedulerState(s.machine.Current())
}

func (s *CollectionScheduler) RunID() string {
	return s.runID
}

// Run collects the enabled backends. Backend failures are recorded, never
// returned. On cancellation the unfinished backends are recorded as
// cancelled and the data collected so far is kept.
func (s *CollectionScheduler) Run(ctx context.Context) error {
	if s.data == nil || len(s.data.Backends) == 0 {
		return errors.Fatal(errors.SubsystemScheduler, errors.KindInvalidConfig, "no backends configured")
	}
	if s.registry == nil {
		return errors.Fatal(errors.SubsystemScheduler, errors.KindInvalidConfig, "no backend registry")
	}

	if err := s.machine.Event(context.WithoutCancel(ctx), eventStart); err != nil {
		return errors.Wrap(errors.SubsystemScheduler, errors.KindAlreadyRun, errors.SeverityFatal, err,
			"scheduler can only run once").WithContext("state", s.machine.Current())
	}

	start := time.Now()
	zap.S().Named("scheduler").Infow("starting collection run", "run", s.runID, "backends", len(s.data.Backends),
		"workers", s.workers, "backend_timeout", s.timeout)

	pool := scheduler.NewScheduler(s.workers)
	defer pool.Close()

	type job struct {
		index   int
		backend models.BackendSpec
		future  *models.Future[models.Result[any]]
	}

	var jobs []job
	for i, backend := range s.data.Backends {
		if !backend.Enabled {
			zap.S().Named("scheduler").Debugw("skipping disabled backend", "backend", backend.ID)
			continue
		}

		collector := NewHypervisorCollector(backend, s.registry, s.timeout)
		index := i
		future := pool.AddWorkContext(ctx, func(ctx context.Context) (any, error) {
			r := collector.Collect(ctx)
			s.record(index, r)
			return r, nil
		})
		jobs = append(jobs, job{index: i, backend: backend, future: future})
	}

	for _, j := range jobs {
		res, _ := j.future.Wait(context.Background())
		if _, ok := res.Data.(models.CollectionResult); ok {
			continue
		}
		// The job never produced a result: it was cancelled before a worker
		// picked it up, or the worker panicked.
		cause := res.Err
		if cause == nil {
			cause = context.Cause(ctx)
		}
		kind, msg := errors.KindCancelled, "collection cancelled"
		if ctx.Err() == nil {
			kind, msg = errors.KindCollectionFailed, "collection failed"
		}
		s.record(j.index, models.CollectionResult{
			Backend: j.backend,
			Err: errors.Wrap(errors.SubsystemGatherer, kind, errors.SeverityRecoverable, cause, "%s", msg).
				WithContext("backend_id", j.backend.ID).
				WithContext("type", j.backend.Type),
		})
	}

	s.results.Finalize()
	s.metrics.ObserveRun(time.Since(start))

	if err := s.machine.Event(context.WithoutCancel(ctx), eventComplete); err != nil {
		zap.S().Named("scheduler").Errorw("failed to complete run", "run", s.runID, "error", err)
	}

	zap.S().Named("scheduler").Infow("collection run completed", "run", s.runID,
		"succeeded", len(s.results.Hypervisors()),
		"failed", len(s.results.Failures()),
		"duration", time.Since(start))

	return nil
}

func (s *CollectionScheduler) record(index int, r models.CollectionResult) {
	s.results.Add(index, r)
	s.metrics.ObserveCollection(r)
}

// Hypervisors returns the successful collections in configuration order.
func (s *CollectionScheduler) Hypervisors() []models.HypervisorRecord {
	return s.results.Hypervisors()
}

// Failures returns the failed collections in configuration order.
func (s *CollectionScheduler) Failures() []models.CollectionFailure {
	return s.results.Failures()
}

func (s *CollectionScheduler) Results() []models.CollectionResult {
	return s.results.Results()
}

type aggregated struct {
	index       int
	result      models.CollectionResult
	collectedAt time.Time
}

// ResultsAggregator accumulates backend outcomes from concurrent workers.
type ResultsAggregator struct {
	mu      sync.Mutex
	entries []aggregated
}

func NewResultsAggregator() *ResultsAggregator {
	return &ResultsAggregator{}
}

// Add records the outcome of the backend at the given configuration index.
func (a *ResultsAggregator) Add(index int, r models.CollectionResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = append(a.entries, aggregated{index: index, result: r, collectedAt: time.Now()})
}

// Finalize orders the outcomes by configuration index.
func (a *ResultsAggregator) Finalize() {
	a.mu.Lock()
	defer a.mu.Unlock()

	sort.SliceStable(a.entries, func(i, j int) bool {
		return a.entries[i].index < a.entries[j].index
	})
}

func (a *ResultsAggregator) snapshot() []aggregated {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]aggregated, len(a.entries))
	copy(out, a.entries)
	return out
}

func (a *ResultsAggregator) Results() []models.CollectionResult {
	entries := a.snapshot()
	out := make([]models.CollectionResult, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.result)
	}
	return out
}

func (a *ResultsAggregator) Hypervisors() []models.HypervisorRecord {
	out := []models.HypervisorRecord{}
	for _, e := range a.snapshot() {
		if !e.result.Succeeded() {
			continue
		}
		out = append(out, models.HypervisorRecord{
			Backend:     e.result.Backend,
			Details:     e.result.Details,
			CollectedAt: e.collectedAt,
		})
	}
	return out
}

func (a *ResultsAggregator) Failures() []models.CollectionFailure {
	out := []models.CollectionFailure{}
	for _, e := range a.snapshot() {
		if e.result.Succeeded() {
			continue
		}
		out = append(out, models.CollectionFailure{
			BackendID:   e.result.Backend.ID,
			BackendType: e.result.Backend.Type,
			Message:     e.result.Err.Error(),
			Err:         e.result.Err,
		})
	}
	return out
}
