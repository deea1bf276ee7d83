package models

// SchedulerState represents the lifecycle of one collection run.
type SchedulerState string

const (
	// SchedulerStateIdle - created, Run not called yet
	SchedulerStateIdle SchedulerState = "idle"
	// SchedulerStateRunning - backends are being collected
	SchedulerStateRunning SchedulerState = "running"
	// SchedulerStateCompleted - every enabled backend reported; results are final
	SchedulerStateCompleted SchedulerState = "completed"
)

// CollectorState represents the progress of a single backend collection.
type CollectorState string

const (
	// CollectorStateReady - backend scheduled, nothing attempted
	CollectorStateReady CollectorState = "ready"
	// CollectorStateConnecting - gatherer being resolved and instantiated
	CollectorStateConnecting CollectorState = "connecting"
	// CollectorStateCollecting - gatherer running against the backend
	CollectorStateCollecting CollectorState = "collecting"
	// CollectorStateCollected - details collected
	CollectorStateCollected CollectorState = "collected"
	// CollectorStateError - resolving, instantiating or collecting failed
	CollectorStateError CollectorState = "error"
)

// CollectorStatus holds a backend collector state and metadata.
type CollectorStatus struct {
	BackendID string
	State     CollectorState
	Error     string
}
