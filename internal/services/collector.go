package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/tiendc/go-deepcopy"
	"go.uber.org/zap"

	"github.com/kubev2v/hypervisor-collector/internal/models"
	"github.com/kubev2v/hypervisor-collector/pkg/errors"
)

// HypervisorCollector runs the gatherer of one backend.
type HypervisorCollector struct {
	backend  models.BackendSpec
	registry BackendRegistry
	timeout  time.Duration

	mu        sync.RWMutex
	state     models.CollectorState
	lastError error
}

func NewHypervisorCollector(backend models.BackendSpec, registry BackendRegistry, timeout time.Duration) *HypervisorCollector {
	return &HypervisorCollector{
		backend:  backend,
		registry: registry,
		timeout:  timeout,
		state:    models.CollectorStateReady,
	}
}

// GetStatus returns the current collector status.
func (c *HypervisorCollector) GetStatus() models.CollectorStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := models.CollectorStatus{
		BackendID: c.backend.ID,
		State:     c.state,
	}
	if c.lastError != nil {
		status.Error = c.lastError.Error()
	}
	return status
}

func (c *HypervisorCollector) setState(state models.CollectorState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	zap.S().Named("collector").Debugw("collector state transition", "backend", c.backend.ID, "from", c.state, "to", state)
	c.state = state
	if state != models.CollectorStateError {
		c.lastError = nil
	}
}

func (c *HypervisorCollector) setError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = models.CollectorStateError
	c.lastError = err
}

type collectOutcome struct {
	details models.HypervisorDetails
	err     error
}

// Collect instantiates the gatherer and collects the backend. It never
// blocks past the collector timeout or ctx, even if the gatherer does.
func (c *HypervisorCollector) Collect(ctx context.Context) models.CollectionResult {
	start := time.Now()
	result := models.CollectionResult{Backend: c.backend}

	details, err := c.collect(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		c.setError(err)
		result.Err = err
		zap.S().Named("collector").Errorw("collection failed", "backend", c.backend.ID, "type", c.backend.Type, "error", err)
		return result
	}

	c.setState(models.CollectorStateCollected)
	result.Details = details
	zap.S().Named("collector").Infow("collection completed", "backend", c.backend.ID, "type", c.backend.Type,
		"hosts", len(details), "duration", result.Duration)
	return result
}

func (c *HypervisorCollector) collect(ctx context.Context) (models.HypervisorDetails, error) {
	c.setState(models.CollectorStateConnecting)

	desc, ok := c.registry.Resolve(c.backend.Type)
	if !ok {
		return nil, c.fail(errors.Recoverable(errors.SubsystemScheduler, errors.KindUnknownBackendType,
			"unknown backend type %q", c.backend.Type))
	}

	var params map[string]any
	if err := deepcopy.Copy(&params, c.backend.Params); err != nil {
		return nil, c.fail(errors.Wrap(errors.SubsystemGatherer, errors.KindCollectionFailed, errors.SeverityRecoverable,
			err, "failed to copy parameters"))
	}

	gatherer, err := desc.New(params)
	if err != nil {
		return nil, c.fail(errors.Wrap(errors.SubsystemGatherer, errors.KindCollectionFailed, errors.SeverityRecoverable,
			err, "failed to create gatherer"))
	}

	c.setState(models.CollectorStateCollecting)
	zap.S().Named("collector").Infow("starting collection", "backend", c.backend.ID, "type", desc.Type)

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	defer cancel()

	done := make(chan collectOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- collectOutcome{err: fmt.Errorf("gatherer panicked: %v", r)}
			}
		}()
		details, err := gatherer.Collect(runCtx)
		done <- collectOutcome{details: details, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil {
			if out.details == nil {
				out.details = models.HypervisorDetails{}
			}
			return out.details, nil
		}
		if runCtx.Err() != nil {
			return nil, c.interrupted(ctx, out.err)
		}
		return nil, c.fail(errors.Wrap(errors.SubsystemGatherer, errors.KindCollectionFailed, errors.SeverityRecoverable,
			out.err, "collection failed"))
	case <-runCtx.Done():
		return nil, c.interrupted(ctx, runCtx.Err())
	}
}

// interrupted classifies a collection stopped by the parent context or by
// the collector timeout.
func (c *HypervisorCollector) interrupted(parent context.Context, cause error) *errors.Error {
	if parent.Err() != nil {
		return c.fail(errors.Wrap(errors.SubsystemGatherer, errors.KindCancelled, errors.SeverityRecoverable,
			parent.Err(), "collection cancelled"))
	}
	if cause == nil || !stderrors.Is(cause, context.DeadlineExceeded) {
		cause = context.DeadlineExceeded
	}
	return c.fail(errors.Wrap(errors.SubsystemGatherer, errors.KindTimeout, errors.SeverityRecoverable,
		cause, "collection timed out after %s", c.timeout))
}

func (c *HypervisorCollector) fail(e *errors.Error) *errors.Error {
	return e.WithContext("backend_id", c.backend.ID).WithContext("type", c.backend.Type)
}
