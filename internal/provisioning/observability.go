package provisioning

import (
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/go-logr/logr"
)

// Observer defines the interface for structured observability during
// provisioning and rollback.
type Observer interface {
	// Event emits a structured event
	Event(event Event)

	// Progress reports progress through the workflow
	Progress(step string, current, total int)

	// WithFields returns a new Observer with additional context fields
	WithFields(fields map[string]string) Observer
}

// Event represents a structured provisioning event.
type Event struct {
	Type      EventType         `json:"type"`
	SpokeID   int               `json:"spoke_id"`
	Step      string            `json:"step,omitempty"`
	Resource  string            `json:"resource,omitempty"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// EventType represents the type of provisioning event.
type EventType string

const (
	// EventDeploymentStarted indicates a forward workflow has claimed a spoke.
	EventDeploymentStarted EventType = "deployment.started"
	// EventDeploymentCompleted indicates every step completed.
	EventDeploymentCompleted EventType = "deployment.completed"
	// EventDeploymentFailed indicates the workflow aborted at a step.
	EventDeploymentFailed EventType = "deployment.failed"

	// EventStepStarted indicates a workflow step has started.
	EventStepStarted EventType = "step.started"
	// EventStepCompleted indicates a workflow step completed successfully.
	EventStepCompleted EventType = "step.completed"
	// EventStepFailed indicates a workflow step failed.
	EventStepFailed EventType = "step.failed"

	// EventResourceCreating indicates a resource is being created.
	EventResourceCreating EventType = "resource.creating"
	// EventResourceCreated indicates a resource was created successfully.
	EventResourceCreated EventType = "resource.created"
	// EventResourceDeleting indicates a resource is being deleted.
	EventResourceDeleting EventType = "resource.deleting"
	// EventResourceDeleted indicates a resource was deleted successfully.
	EventResourceDeleted EventType = "resource.deleted"
	// EventResourceFailed indicates a create or delete failed.
	EventResourceFailed EventType = "resource.failed"
	// EventResourceOrphaned indicates a resource exists that no completed
	// step accounts for.
	EventResourceOrphaned EventType = "resource.orphaned"

	// EventRollbackStarted indicates teardown has started.
	EventRollbackStarted EventType = "rollback.started"
	// EventRollbackCompleted indicates every teardown step succeeded.
	EventRollbackCompleted EventType = "rollback.completed"
	// EventRollbackFailed indicates teardown finished with errors.
	EventRollbackFailed EventType = "rollback.failed"

	// EventProgress indicates progress in a long-running operation.
	EventProgress EventType = "progress"
)

// LogObserver implements Observer on a logr.Logger.
type LogObserver struct {
	log           logr.Logger
	contextFields map[string]string
}

// NewLogObserver creates an observer writing to log.
func NewLogObserver(log logr.Logger) *LogObserver {
	return &LogObserver{
		log:           log,
		contextFields: make(map[string]string),
	}
}

// Event implements Observer interface. Failures are logged as errors.
func (o *LogObserver) Event(event Event) {
	event = o.stamp(event)

	kv := []any{"type", string(event.Type), "spoke_id", event.SpokeID}
	if event.Step != "" {
		kv = append(kv, "step", event.Step)
	}
	if event.Resource != "" {
		kv = append(kv, "resource", event.Resource)
	}
	keys := make([]string, 0, len(event.Fields))
	for k := range event.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kv = append(kv, k, event.Fields[k])
	}

	switch event.Type {
	case EventStepFailed, EventDeploymentFailed, EventResourceFailed, EventRollbackFailed:
		o.log.Error(nil, event.Message, kv...)
	case EventProgress, EventResourceCreating, EventResourceDeleting:
		o.log.V(1).Info(event.Message, kv...)
	default:
		o.log.Info(event.Message, kv...)
	}
}

// Progress implements Observer interface.
func (o *LogObserver) Progress(step string, current, total int) {
	percentage := 0
	if total > 0 {
		percentage = (current * 100) / total
	}
	o.log.V(1).Info("progress", "step", step, "current", current, "total", total, "percent", percentage)
}

// WithFields implements Observer interface.
func (o *LogObserver) WithFields(fields map[string]string) Observer {
	return &LogObserver{
		log:           o.log,
		contextFields: mergeFields(o.contextFields, fields),
	}
}

// stamp fills the timestamp and context fields. Fields already set on the
// event win.
func (o *LogObserver) stamp(event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Fields = mergeFields(o.contextFields, event.Fields)
	return event
}

func mergeFields(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}

// MultiObserver forwards everything to each of its observers.
type MultiObserver []Observer

// NewMultiObserver drops nil entries.
func NewMultiObserver(observers ...Observer) MultiObserver {
	out := make(MultiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// Event implements Observer interface.
func (m MultiObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, o := range m {
		o.Event(event)
	}
}

// Progress implements Observer interface.
func (m MultiObserver) Progress(step string, current, total int) {
	for _, o := range m {
		o.Progress(step, current, total)
	}
}

// WithFields implements Observer interface.
func (m MultiObserver) WithFields(fields map[string]string) Observer {
	out := make(MultiObserver, len(m))
	for i, o := range m {
		out[i] = o.WithFields(fields)
	}
	return out
}

// Helper functions for common events

// LogStepStart logs a step start event.
func LogStepStart(observer Observer, spokeID int, step string) {
	observer.Event(Event{
		Type:    EventStepStarted,
		SpokeID: spokeID,
		Step:    step,
		Message: "starting",
	})
}

// LogStepComplete logs a step completion event.
func LogStepComplete(observer Observer, spokeID int, step string, duration time.Duration) {
	observer.Event(Event{
		Type:    EventStepCompleted,
		SpokeID: spokeID,
		Step:    step,
		Message: fmt.Sprintf("completed in %v", duration.Round(time.Millisecond)),
	})
}

// LogStepFailed logs a step failure event.
func LogStepFailed(observer Observer, spokeID int, step string, err error) {
	observer.Event(Event{
		Type:    EventStepFailed,
		SpokeID: spokeID,
		Step:    step,
		Message: fmt.Sprintf("failed: %v", err),
	})
}

// LogResourceCreated logs a successful resource creation event.
func LogResourceCreated(observer Observer, spokeID int, step, resourceType, resourceName, resourceID string) {
	observer.Event(Event{
		Type:     EventResourceCreated,
		SpokeID:  spokeID,
		Step:     step,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s created", resourceType),
		Fields: map[string]string{
			"type": resourceType,
			"id":   resourceID,
		},
	})
}

// LogResourceDeleting logs a resource deletion start event.
func LogResourceDeleting(observer Observer, spokeID int, step, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceDeleting,
		SpokeID:  spokeID,
		Step:     step,
		Resource: resourceName,
		Message:  fmt.Sprintf("deleting %s", resourceType),
		Fields: map[string]string{
			"type": resourceType,
		},
	})
}

// LogResourceDeleted logs a successful resource deletion event.
func LogResourceDeleted(observer Observer, spokeID int, step, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceDeleted,
		SpokeID:  spokeID,
		Step:     step,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s deleted", resourceType),
		Fields: map[string]string{
			"type": resourceType,
		},
	})
}
