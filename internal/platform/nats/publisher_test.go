package nats

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hubspoke/internal/provisioning"
)

type message struct {
	subject string
	data    []byte
}

// MockConn records published messages.
type MockConn struct {
	mu       sync.Mutex
	messages []message
	err      error
}

func (m *MockConn) Publish(subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, message{subject: subject, data: data})
	return nil
}

func decode(t *testing.T, data []byte) provisioning.Event {
	t.Helper()
	var e provisioning.Event
	require.NoError(t, json.Unmarshal(data, &e))
	return e
}

func TestPublisher_Event(t *testing.T) {
	conn := &MockConn{}
	p := NewPublisher(conn, "hubspoke.deployments", logr.Discard())

	p.Event(provisioning.Event{
		Type:     provisioning.EventResourceCreated,
		SpokeID:  7,
		Step:     "create-nic",
		Resource: "vm-acme-spoke7-nic",
		Message:  "network interface created",
	})

	require.Len(t, conn.messages, 1)
	assert.Equal(t, "hubspoke.deployments.resource.created", conn.messages[0].subject)
	got := decode(t, conn.messages[0].data)
	assert.Equal(t, provisioning.EventResourceCreated, got.Type)
	assert.Equal(t, 7, got.SpokeID)
	assert.Equal(t, "vm-acme-spoke7-nic", got.Resource)
	assert.False(t, got.Timestamp.IsZero())
}

func TestPublisher_WithFields(t *testing.T) {
	conn := &MockConn{}
	p := NewPublisher(conn, "hs", logr.Discard())
	scoped := p.WithFields(map[string]string{"operation_id": "op-1"})

	scoped.Event(provisioning.Event{Type: provisioning.EventRollbackStarted, SpokeID: 1, Fields: map[string]string{"k": "v"}})
	p.Event(provisioning.Event{Type: provisioning.EventRollbackStarted, SpokeID: 1})

	require.Len(t, conn.messages, 2)
	first := decode(t, conn.messages[0].data)
	assert.Equal(t, map[string]string{"operation_id": "op-1", "k": "v"}, first.Fields)
	assert.Empty(t, decode(t, conn.messages[1].data).Fields)
}

func TestPublisher_Progress(t *testing.T) {
	conn := &MockConn{}
	p := NewPublisher(conn, "hs", logr.Discard())

	p.Progress("create-vm", 5, 11)

	require.Len(t, conn.messages, 1)
	assert.Equal(t, "hs.progress", conn.messages[0].subject)
	got := decode(t, conn.messages[0].data)
	assert.Equal(t, "create-vm", got.Step)
	assert.Equal(t, "5", got.Fields["current"])
	assert.Equal(t, "11", got.Fields["total"])
}

func TestPublisher_PublishErrorIsSwallowed(t *testing.T) {
	conn := &MockConn{err: errors.New("connection closed")}
	p := NewPublisher(conn, "hs", logr.Discard())

	assert.NotPanics(t, func() {
		p.Event(provisioning.Event{Type: provisioning.EventDeploymentFailed, SpokeID: 2})
	})
	assert.NoError(t, p.Close())
}

func TestConnect_EmptyURL(t *testing.T) {
	_, err := Connect("", "hs", logr.Discard())
	assert.Error(t, err)
}
