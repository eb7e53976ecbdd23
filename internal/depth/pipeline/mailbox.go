package pipeline

import "sync"

// Mailbox is a bounded hand-off queue between the acquisition goroutine
// and consumers. Publish never blocks: when the mailbox is full the oldest
// unread item is evicted and counted as a drop. Poll and Latest never
// block either; an empty mailbox is not an error.
type Mailbox[T any] struct {
	mu        sync.Mutex
	buf       []T
	head      int // index of the oldest item
	n         int
	published uint64
	drops     uint64
}

// NewMailbox returns a mailbox holding at most capacity unread items.
// Capacities below 1 are raised to 1.
func NewMailbox[T any](capacity int) *Mailbox[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Mailbox[T]{buf: make([]T, capacity)}
}

// Cap returns the capacity.
func (m *Mailbox[T]) Cap() int { return len(m.buf) }

// Publish appends v and reports whether an unread item was evicted.
func (m *Mailbox[T]) Publish(v T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published++
	evicted := false
	if m.n == len(m.buf) {
		var zero T
		m.buf[m.head] = zero
		m.head = (m.head + 1) % len(m.buf)
		m.n--
		m.drops++
		evicted = true
	}
	m.buf[(m.head+m.n)%len(m.buf)] = v
	m.n++
	return evicted
}

// Poll removes and returns the oldest unread item.
func (m *Mailbox[T]) Poll() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if m.n == 0 {
		return zero, false
	}
	v := m.buf[m.head]
	m.buf[m.head] = zero
	m.head = (m.head + 1) % len(m.buf)
	m.n--
	return v, true
}

// Latest drains the mailbox and returns the newest item. Skipped items
// are not counted as drops: the consumer chose to skip them.
func (m *Mailbox[T]) Latest() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if m.n == 0 {
		return zero, false
	}
	v := m.buf[(m.head+m.n-1)%len(m.buf)]
	for i := range m.buf {
		m.buf[i] = zero
	}
	m.head, m.n = 0, 0
	return v, true
}

// Len returns the number of unread items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

// MailboxStats are lifetime counters of a mailbox.
type MailboxStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Unread    int    `json:"unread"`
}

// Stats returns the mailbox counters.
func (m *Mailbox[T]) Stats() MailboxStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MailboxStats{Published: m.published, Dropped: m.drops, Unread: m.n}
}
