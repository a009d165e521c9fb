// Package event carries the events the engine emits towards the
// application. Each account has its own emitter; the account manager
// merges them into a single stream.
package event

import "sync"

// Kind identifies the event type.
type Kind int

const (
	// KindInfo and friends are log-level events.
	KindInfo Kind = iota
	KindWarning
	KindError
	// KindMsgsChanged signals that messages changed. ChatID and MsgID
	// both zero mean "reload everything".
	KindMsgsChanged
	// KindChatEphemeralTimerModified signals a changed per-chat
	// ephemeral timer. Timer carries the new duration in seconds,
	// 0 when disabled.
	KindChatEphemeralTimerModified
)

// Event is a single event emitted by one account.
type Event struct {
	AccountID uint32
	Kind      Kind
	ChatID    uint32
	MsgID     uint32
	Timer     uint32
	Text      string
}

// Emitter is a bounded per-account event queue. Emitting never blocks
// the engine: when the buffer is full the oldest event is dropped.
type Emitter struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewEmitter creates an emitter with the given buffer size.
func NewEmitter(buf int) *Emitter {
	if buf <= 0 {
		buf = 256
	}
	return &Emitter{ch: make(chan Event, buf)}
}

// Emit queues an event, dropping the oldest one when the buffer is
// full. Emitting on a closed emitter is a no-op.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for {
		select {
		case e.ch <- ev:
			return
		default:
		}
		select {
		case <-e.ch:
		default:
		}
	}
}

// Recv blocks until an event is available. It returns false when the
// emitter is closed and drained.
func (e *Emitter) Recv() (Event, bool) {
	ev, ok := <-e.ch
	return ev, ok
}

// TryRecv returns a queued event without blocking.
func (e *Emitter) TryRecv() (Event, bool) {
	select {
	case ev, ok := <-e.ch:
		return ev, ok
	default:
		return Event{}, false
	}
}

// Close stops the emitter. Pending events can still be received.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}

// MergedEmitter multiplexes the event streams of several accounts
// into one. Ordering across sources is arbitrary.
type MergedEmitter struct {
	out  chan Event
	wg   sync.WaitGroup
	once sync.Once
}

// Merge starts forwarding from all given emitters. The merged stream
// ends when every source has been closed and drained.
func Merge(sources ...*Emitter) *MergedEmitter {
	m := &MergedEmitter{out: make(chan Event, 64)}
	for _, src := range sources {
		m.wg.Add(1)
		go func(src *Emitter) {
			defer m.wg.Done()
			for {
				ev, ok := src.Recv()
				if !ok {
					return
				}
				m.out <- ev
			}
		}(src)
	}
	go func() {
		m.wg.Wait()
		close(m.out)
	}()
	return m
}

// Recv blocks until an event from any source is available. It returns
// false when all sources are closed.
func (m *MergedEmitter) Recv() (Event, bool) {
	ev, ok := <-m.out
	return ev, ok
}
