package ingestion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 10; i++ {
		require.True(t, q.Push(i))
	}
	assert.Equal(t, 10, q.Len())

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		item, ok := q.Pop(ctx)
		require.True(t, ok)
		assert.Equal(t, i, item)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewQueue[string]()

	done := make(chan string, 1)
	go func() {
		item, ok := q.Pop(context.Background())
		if ok {
			done <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.True(t, q.Push("hello"))

	select {
	case item := <-done:
		assert.Equal(t, "hello", item)
	case <-time.After(2 * time.Second):
		t.Fatal("pop never returned")
	}
}

func TestQueue_PopHonorsContext(t *testing.T) {
	q := NewQueue[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := q.Pop(ctx)
	assert.False(t, ok)
}

func TestQueue_CloseDrainsBufferedItems(t *testing.T) {
	q := NewQueue[int]()
	require.True(t, q.Push(1))
	require.True(t, q.Push(2))
	q.Close()

	// Pushes after close are rejected.
	assert.False(t, q.Push(3))

	ctx := context.Background()
	item, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, 1, item)

	item, ok = q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, 2, item)

	_, ok = q.Pop(ctx)
	assert.False(t, ok)
}

func TestQueue_CloseWakesBlockedPop(t *testing.T) {
	q := NewQueue[int]()

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("pop never returned after close")
	}
}

func TestQueue_ConcurrentPushers(t *testing.T) {
	q := NewQueue[int]()

	var wg sync.WaitGroup
	const pushers, perPusher = 8, 100
	for p := 0; p < pushers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPusher; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, pushers*perPusher, q.Len())

	ctx := context.Background()
	count := 0
	q.Close()
	for {
		if _, ok := q.Pop(ctx); !ok {
			break
		}
		count++
	}
	assert.Equal(t, pushers*perPusher, count)
}
