package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DeliversInOrder(t *testing.T) {
	q := NewQueue("test", nil)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, q.Enqueue(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	q.Close()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestQueue_EnqueueDoesNotBlockOnSlowConsumer(t *testing.T) {
	q := NewQueue("slow", nil)
	release := make(chan struct{})
	q.Enqueue(func() { <-release })

	start := time.Now()
	for i := 0; i < 1000; i++ {
		q.Enqueue(func() {})
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Greater(t, q.Len(), 0)

	close(release)
	q.Close()
	assert.Equal(t, 0, q.Len())
}

func TestQueue_RecoversFromPanics(t *testing.T) {
	q := NewQueue("panics", nil)

	ran := make(chan struct{})
	q.Enqueue(func() { panic("boom") })
	q.Enqueue(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job after panic was not delivered")
	}
	q.Close()
}

func TestQueue_RejectsAfterClose(t *testing.T) {
	q := NewQueue("closed", nil)
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(func() {}))

	open := NewQueue("nil", nil)
	defer open.Close()
	assert.False(t, open.Enqueue(nil))
}
