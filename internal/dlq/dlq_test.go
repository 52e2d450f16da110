package dlq

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopFIFOOrder(t *testing.T) {
	q := New()
	q.Push(Item{Channel: 0, Spectrum: "a"})
	q.Push(Item{Channel: 0, Spectrum: "b"})
	q.Push(Item{Channel: 0, Spectrum: "c"})

	for _, want := range []string{"a", "b", "c"} {
		item, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, item.Spectrum)
	}
	assert.Equal(t, 0, q.Len())
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New()
	done := make(chan Item, 1)
	go func() {
		item, ok := q.Pop()
		require.True(t, ok)
		done <- item
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(Item{Channel: 3})

	select {
	case item := <-done:
		assert.Equal(t, 3, item.Channel)
	case <-time.After(time.Second):
		t.Fatal("Pop never returned after Push")
	}
}

func TestCloseUnblocksWaitingConsumer(t *testing.T) {
	q := New()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop never returned after Close")
	}
}

func TestCloseDrainsRemainingItemsFirst(t *testing.T) {
	q := New()
	q.Push(Item{Channel: 1})
	q.Push(Item{Channel: 2})
	q.Close()

	item, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, item.Channel)

	item, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, item.Channel)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestConcurrentProducersSingleConsumer(t *testing.T) {
	q := New()
	const producers = 8
	const perProducer = 200

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(Item{Channel: p})
			}
		}(p)
	}

	received := 0
	go func() {
		wg.Wait()
		q.Close()
	}()
	for {
		_, ok := q.Pop()
		if !ok {
			break
		}
		received++
	}
	assert.Equal(t, producers*perProducer, received)
}
