package bus

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/stewardlab/steward/pkg/models"
)

// Mirror republishes session events to a NATS subject so external
// observers can follow a run without access to the local store.
// Publishing is best effort: a failed publish is counted and logged
// but never blocks the session.
type Mirror struct {
	conn    *nats.Conn
	prefix  string
	failed  atomic.Uint64
	ownConn bool
}

// NewMirror connects to a NATS server and returns a mirror that
// publishes under "<prefix>.<session-id>.<event-kind>".
func NewMirror(url, prefix string) (*Mirror, error) {
	if prefix == "" {
		prefix = "steward.events"
	}
	conn, err := nats.Connect(url,
		nats.Name("steward-event-mirror"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect event mirror: %w", err)
	}
	return &Mirror{conn: conn, prefix: prefix, ownConn: true}, nil
}

// NewMirrorWithConn wraps an existing connection (mainly for testing).
func NewMirrorWithConn(conn *nats.Conn, prefix string) *Mirror {
	if prefix == "" {
		prefix = "steward.events"
	}
	return &Mirror{conn: conn, prefix: prefix}
}

// Publish sends one event. Errors are swallowed after counting so a
// flaky broker cannot stall the event log.
func (m *Mirror) Publish(e models.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	subject := fmt.Sprintf("%s.%s.%s", m.prefix, e.SessionID, e.Kind)
	if err := m.conn.Publish(subject, data); err != nil {
		count := m.failed.Add(1)
		if count%10 == 1 {
			log.Printf("[bus] WARNING: event mirror publish failed (total failed: %d): %v", count, err)
		}
	}
}

// FailedCount returns the number of publishes that have failed.
func (m *Mirror) FailedCount() uint64 {
	return m.failed.Load()
}

// Close flushes and closes the mirror's connection if the mirror
// owns it.
func (m *Mirror) Close() {
	if m.conn == nil || !m.ownConn {
		return
	}
	if err := m.conn.Drain(); err != nil {
		m.conn.Close()
	}
}
