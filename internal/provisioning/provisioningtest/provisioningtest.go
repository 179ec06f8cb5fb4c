// Package provisioningtest provides configuration and observers for tests
// of the provisioning packages.
package provisioningtest

import (
	"maps"
	"sync"
	"time"

	"github.com/imamik/hubspoke/internal/config"
	"github.com/imamik/hubspoke/internal/provisioning"
)

// Config returns the default configuration for the fake cloud with timeouts
// short enough for unit tests.
func Config() *config.Config {
	cfg := config.Default()
	cfg.Cloud = config.CloudFake
	cfg.Store.Backend = config.StoreMemory
	cfg.Timeouts = config.Timeouts{
		VMReady:          2 * time.Second,
		PollInterval:     time.Millisecond,
		Peering:          2 * time.Second,
		Delete:           time.Second,
		NICRetryAttempts: 5,
		NICRetryDelay:    time.Millisecond,
		Deployment:       10 * time.Second,
	}
	return cfg
}

// ProgressUpdate is one recorded Progress call.
type ProgressUpdate struct {
	Step    string
	Current int
	Total   int
}

type journal struct {
	mu       sync.Mutex
	events   []provisioning.Event
	progress []ProgressUpdate
}

// Recorder is a provisioning.Observer that keeps everything it is told.
// Recorders derived through WithFields share one journal.
type Recorder struct {
	j      *journal
	fields map[string]string
}

var _ provisioning.Observer = (*Recorder)(nil)

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{j: &journal{}}
}

// Event implements provisioning.Observer.
func (r *Recorder) Event(event provisioning.Event) {
	if len(r.fields) > 0 {
		merged := maps.Clone(r.fields)
		maps.Copy(merged, event.Fields)
		event.Fields = merged
	}
	r.j.mu.Lock()
	defer r.j.mu.Unlock()
	r.j.events = append(r.j.events, event)
}

// Progress implements provisioning.Observer.
func (r *Recorder) Progress(step string, current, total int) {
	r.j.mu.Lock()
	defer r.j.mu.Unlock()
	r.j.progress = append(r.j.progress, ProgressUpdate{Step: step, Current: current, Total: total})
}

// WithFields implements provisioning.Observer.
func (r *Recorder) WithFields(fields map[string]string) provisioning.Observer {
	merged := maps.Clone(r.fields)
	if merged == nil {
		merged = make(map[string]string, len(fields))
	}
	maps.Copy(merged, fields)
	return &Recorder{j: r.j, fields: merged}
}

// Events returns the recorded events in order.
func (r *Recorder) Events() []provisioning.Event {
	r.j.mu.Lock()
	defer r.j.mu.Unlock()
	return append([]provisioning.Event(nil), r.j.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t provisioning.EventType) []provisioning.Event {
	var out []provisioning.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Types returns the type of every recorded event, in order.
func (r *Recorder) Types() []provisioning.EventType {
	events := r.Events()
	out := make([]provisioning.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

// ProgressUpdates returns the recorded Progress calls in order.
func (r *Recorder) ProgressUpdates() []ProgressUpdate {
	r.j.mu.Lock()
	defer r.j.mu.Unlock()
	return append([]ProgressUpdate(nil), r.j.progress...)
}
