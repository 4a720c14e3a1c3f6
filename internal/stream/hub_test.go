package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastToAllSubscribers(t *testing.T) {
	h := NewHub[int](4)
	defer h.Close()

	a, cancelA := h.Subscribe()
	b, cancelB := h.Subscribe()
	defer cancelA()
	defer cancelB()

	h.Publish(1)
	h.Publish(2)

	assert.Equal(t, 1, <-a)
	assert.Equal(t, 2, <-a)
	assert.Equal(t, 1, <-b)
	assert.Equal(t, 2, <-b)
}

func TestHub_SlowSubscriberDropsOldest(t *testing.T) {
	h := NewHub[int](2)
	defer h.Close()

	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(1)
	h.Publish(2)
	h.Publish(3) // buffer full: 1 is dropped

	assert.Equal(t, 2, <-ch)
	assert.Equal(t, 3, <-ch)
}

func TestHub_CancelDetaches(t *testing.T) {
	h := NewHub[int](4)
	defer h.Close()

	ch, cancel := h.Subscribe()
	cancel()
	cancel() // safe twice

	_, open := <-ch
	assert.False(t, open)

	// publishing after cancel must not panic
	h.Publish(42)
}

func TestHub_CloseEndsSubscribers(t *testing.T) {
	h := NewHub[int](4)
	ch, _ := h.Subscribe()

	h.Publish(7)
	h.Close()

	v, open := <-ch
	require.True(t, open)
	assert.Equal(t, 7, v)

	_, open = <-ch
	assert.False(t, open)

	// subscribe after close yields a closed channel
	late, _ := h.Subscribe()
	_, open = <-late
	assert.False(t, open)

	h.Publish(8) // no-op
}
