package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		require.Fail(t, "timeout waiting for message")
	}
	var zero T
	return zero
}

func TestBroadcastToAllListeners(t *testing.T) {
	source := make(chan int)
	b := NewBroadcastServer("test", source)
	defer b.Close()

	l1 := b.Subscribe()
	l2 := b.Subscribe()

	go func() { source <- 42 }()
	assert.Equal(t, 42, receive(t, l1))
	assert.Equal(t, 42, receive(t, l2))
}

func TestCancelSubscriptionClosesChannel(t *testing.T) {
	source := make(chan string)
	b := NewBroadcastServer("test", source)
	defer b.Close()

	l1 := b.Subscribe()
	b.CancelSubscription(l1)
	_, ok := <-l1
	assert.False(t, ok)
}

func TestSlowListenerIsSkipped(t *testing.T) {
	source := make(chan int)
	b := NewBroadcastServer("test", source, WithSendTimeout[int](10*time.Millisecond))
	defer b.Close()

	slow := b.Subscribe()
	fast := b.Subscribe()
	go func() {
		source <- 1
		source <- 2
	}()
	// slow never reads, both messages are skipped for it
	assert.Equal(t, 1, receive(t, fast))
	assert.Equal(t, 2, receive(t, fast))
	bs, ok := b.(*broadcastServer[int])
	require.True(t, ok)
	assert.Equal(t, int64(2), bs.numSkip.Load())
	assert.Equal(t, int64(2), bs.numSnd.Load())
	assert.NotNil(t, slow)
}

func TestCloseSourceClosesListeners(t *testing.T) {
	source := make(chan int)
	b := NewBroadcastServer("test", source)
	l1 := b.Subscribe()
	close(source)
	_, ok := <-l1
	assert.False(t, ok)
	// subscribing after the server stopped yields a closed channel
	_, ok = <-b.Subscribe()
	assert.False(t, ok)
	b.Close()
}
