// Package nats publishes provisioning events to a NATS subject.
package nats

import (
	"encoding/json"
	"errors"
	"maps"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	natsio "github.com/nats-io/nats.go"

	"github.com/imamik/hubspoke/internal/provisioning"
)

// Conn is the part of *natsio.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher is a provisioning.Observer that publishes every event as JSON on
// "<subject>.<event type>". Publish failures are logged and never reach the
// workflow.
type Publisher struct {
	conn    Conn
	nc      *natsio.Conn
	subject string
	fields  map[string]string
	log     logr.Logger
}

var _ provisioning.Observer = (*Publisher)(nil)

// Connect dials url and returns a publisher for subject.
func Connect(url, subject string, log logr.Logger) (*Publisher, error) {
	if url == "" {
		return nil, errors.New("nats url is empty")
	}
	nc, err := natsio.Connect(url,
		natsio.Name("hubspoke"),
		natsio.MaxReconnects(-1),
		natsio.ReconnectWait(2*time.Second),
		natsio.DisconnectErrHandler(func(_ *natsio.Conn, err error) {
			if err != nil {
				log.Error(err, "nats disconnected")
			}
		}),
		natsio.ReconnectHandler(func(nc *natsio.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	p := NewPublisher(nc, subject, log)
	p.nc = nc
	return p, nil
}

// NewPublisher publishes through conn.
func NewPublisher(conn Conn, subject string, log logr.Logger) *Publisher {
	return &Publisher{conn: conn, subject: subject, log: log}
}

// Subject returns the subject an event of type t is published on.
func (p *Publisher) Subject(t provisioning.EventType) string {
	return p.subject + "." + string(t)
}

// Event implements provisioning.Observer.
func (p *Publisher) Event(event provisioning.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if len(p.fields) > 0 {
		merged := maps.Clone(p.fields)
		maps.Copy(merged, event.Fields)
		event.Fields = merged
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Error(err, "failed to encode event", "type", string(event.Type))
		return
	}
	if err := p.conn.Publish(p.Subject(event.Type), data); err != nil {
		p.log.Error(err, "failed to publish event", "type", string(event.Type), "spoke_id", event.SpokeID)
	}
}

// Progress implements provisioning.Observer.
func (p *Publisher) Progress(step string, current, total int) {
	p.Event(provisioning.Event{
		Type:    provisioning.EventProgress,
		Step:    step,
		Message: "progress",
		Fields: map[string]string{
			"current": strconv.Itoa(current),
			"total":   strconv.Itoa(total),
		},
	})
}

// WithFields implements provisioning.Observer.
func (p *Publisher) WithFields(fields map[string]string) provisioning.Observer {
	merged := maps.Clone(p.fields)
	if merged == nil {
		merged = make(map[string]string, len(fields))
	}
	maps.Copy(merged, fields)
	return &Publisher{conn: p.conn, nc: p.nc, subject: p.subject, fields: merged, log: p.log}
}

// Close flushes pending messages and closes a connection opened by Connect.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
