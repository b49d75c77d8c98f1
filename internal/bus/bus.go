// Package bus provides the ordered session event log and fan-out.
package bus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stewardlab/steward/pkg/models"
)

// Journal persists events durably. Append returns only after the
// event is safe to replay.
type Journal interface {
	AppendEvent(ctx context.Context, e models.Event) error
}

// Publisher mirrors events to an external transport. *nats.Conn
// satisfies this interface directly.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Bus assigns session-local sequence numbers, persists events, and
// fans them out to subscribers. Within a session, sequence numbers
// are strictly increasing with no gaps: an event is numbered and
// journaled in one critical section, and a failed journal write
// consumes no number.
type Bus struct {
	// seqMu serializes sequence assignment, journaling, and fan-out.
	seqMu sync.Mutex
	// lastSeq maps session ID to the last assigned sequence number.
	lastSeq map[string]int64

	journal Journal
	mirror  *Mirror

	subMu   sync.RWMutex
	subs    map[int64]chan models.Event
	nextSub int64

	droppedCount atomic.Uint64
}

// New creates a bus. A nil journal keeps events in memory only,
// which is suitable for tests.
func New(journal Journal) *Bus {
	return &Bus{
		lastSeq: make(map[string]int64),
		journal: journal,
		subs:    make(map[int64]chan models.Event),
	}
}

// SetMirror attaches an external mirror. Mirrored publishes are best
// effort and never block or fail an append.
func (b *Bus) SetMirror(m *Mirror) {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	b.mirror = m
}

// Prime seeds the sequence counter for a session, used when resuming
// from a persisted event log.
func (b *Bus) Prime(sessionID string, lastSeq int64) {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	if lastSeq > b.lastSeq[sessionID] {
		b.lastSeq[sessionID] = lastSeq
	}
}

// LastSeq returns the last sequence number assigned for a session.
func (b *Bus) LastSeq(sessionID string) int64 {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	return b.lastSeq[sessionID]
}

// Append numbers the event, journals it, and delivers it to
// subscribers. It returns the stored event including its assigned
// sequence number. If journaling fails the sequence number is not
// consumed and no subscriber sees the event.
func (b *Bus) Append(ctx context.Context, e models.Event) (models.Event, error) {
	if e.SessionID == "" {
		return models.Event{}, fmt.Errorf("event has no session ID")
	}
	if !e.Kind.Valid() {
		return models.Event{}, fmt.Errorf("unknown event kind %q", e.Kind)
	}

	b.seqMu.Lock()
	defer b.seqMu.Unlock()

	e.Seq = b.lastSeq[e.SessionID] + 1
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	if b.journal != nil {
		if err := b.journal.AppendEvent(ctx, e); err != nil {
			return models.Event{}, fmt.Errorf("journal event %s seq %d: %w", e.Kind, e.Seq, err)
		}
	}
	b.lastSeq[e.SessionID] = e.Seq

	b.fanOut(e)
	if b.mirror != nil {
		b.mirror.Publish(e)
	}
	return e, nil
}

// fanOut delivers the event to every subscriber. Sends happen while
// seqMu is held, so each subscriber observes events in sequence
// order. A full subscriber gets a short grace period before the
// event is dropped for that subscriber only.
func (b *Bus) fanOut(e models.Event) {
	b.subMu.RLock()
	channels := make([]chan models.Event, 0, len(b.subs))
	for _, ch := range b.subs {
		channels = append(channels, ch)
	}
	b.subMu.RUnlock()

	for _, ch := range channels {
		select {
		case ch <- e:
			continue
		default:
		}

		// Channel full, give the receiver a chance to drain.
		select {
		case ch <- e:
		case <-time.After(100 * time.Millisecond):
			count := b.droppedCount.Add(1)
			if count%10 == 1 {
				log.Printf("[bus] WARNING: subscriber full, dropped event (total dropped: %d): kind=%s seq=%d", count, e.Kind, e.Seq)
			}
		}
	}
}

// Subscribe registers a new subscriber with the given buffer size and
// returns its channel plus a cancel function. Cancel closes the
// channel.
func (b *Bus) Subscribe(buffer int) (<-chan models.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan models.Event, buffer)

	b.subMu.Lock()
	b.nextSub++
	id := b.nextSub
	b.subs[id] = ch
	b.subMu.Unlock()

	cancel := func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// DroppedCount returns the total number of subscriber deliveries that
// have been dropped.
func (b *Bus) DroppedCount() uint64 {
	return b.droppedCount.Load()
}

// Close removes and closes all subscriber channels.
func (b *Bus) Close() {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
