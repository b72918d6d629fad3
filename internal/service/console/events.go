package console

import "sync"

// EventType names a kind of state change.
type EventType string

const (
	EventMessage EventType = "message"
	EventLoading EventType = "loading"
	EventStatus  EventType = "status"
	EventAudit   EventType = "audit"
)

// Event is published after each state change. Data holds a chat.Message for
// message events, a bool for loading events, a CallState for status events and
// an AuditView for audit events.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// subscriberBuffer is how many events a subscriber may lag before it starts
// missing them.
const subscriberBuffer = 32

type broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[int]chan Event)}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// publish never blocks: a full subscriber misses the event.
func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
