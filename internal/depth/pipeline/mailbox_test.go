package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMailbox_DropOldest(t *testing.T) {
	m := NewMailbox[int](3)
	for i := 1; i <= 5; i++ {
		evicted := m.Publish(i)
		assert.Equal(t, i > 3, evicted, "publish %d", i)
	}
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, MailboxStats{Published: 5, Dropped: 2, Unread: 3}, m.Stats())

	for _, want := range []int{3, 4, 5} {
		v, ok := m.Poll()
		assert.True(t, ok)
		assert.Equal(t, want, v)
	}
	_, ok := m.Poll()
	assert.False(t, ok)
}

func TestMailbox_LatestDrains(t *testing.T) {
	m := NewMailbox[string](4)
	_, ok := m.Latest()
	assert.False(t, ok)

	m.Publish("a")
	m.Publish("b")
	m.Publish("c")
	v, ok := m.Latest()
	assert.True(t, ok)
	assert.Equal(t, "c", v)
	assert.Zero(t, m.Len())
	assert.Zero(t, m.Stats().Dropped)

	m.Publish("d")
	v, _ = m.Poll()
	assert.Equal(t, "d", v)
}

func TestMailbox_MinimumCapacity(t *testing.T) {
	m := NewMailbox[int](0)
	assert.Equal(t, 1, m.Cap())
	m.Publish(1)
	assert.True(t, m.Publish(2))
	v, _ := m.Poll()
	assert.Equal(t, 2, v)
}

func TestMailbox_ConcurrentProducerConsumer(t *testing.T) {
	m := NewMailbox[int](2)
	const n = 1000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			m.Publish(i)
		}
	}()

	last := -1
	received := 0
	for {
		v, ok := m.Poll()
		if ok {
			assert.Greater(t, v, last, "items must arrive in publish order")
			last = v
			received++
		}
		if last == n-1 {
			break
		}
	}
	wg.Wait()
	st := m.Stats()
	assert.Equal(t, uint64(n), st.Published)
	assert.Equal(t, uint64(received)+st.Dropped, st.Published)
}
