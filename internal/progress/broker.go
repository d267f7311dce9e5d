package progress

import "sync"

// Broker fans events out to subscribers. Progress events are dropped for a
// subscriber whose buffer is full; terminal events always get through.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: map[int]chan Event{}}
}

// Subscribe registers a buffered subscriber. The channel is closed after the
// terminal event, on Close, or when cancel is called.
func (b *Broker) Subscribe(size int) (<-chan Event, func()) {
	if size <= 0 {
		size = 1
	}
	ch := make(chan Event, size)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	return ch, func() { b.unsubscribe(id) }
}

func (b *Broker) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *Broker) Emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		if e.Terminal() {
			deliver(ch, e)
			continue
		}
		select {
		case ch <- e:
		default:
		}
	}
	if e.Terminal() {
		b.closeLocked()
	}
}

func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
}

func (b *Broker) closeLocked() {
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

// deliver makes room by discarding the oldest buffered event. The broker is
// the only sender, so the retry cannot block.
func deliver(ch chan Event, e Event) {
	for {
		select {
		case ch <- e:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
