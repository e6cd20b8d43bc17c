package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 100; i++ {
		q.Enqueue(i)
	}
	require.Equal(t, 100, q.Len())

	for i := 0; i < 100; i++ {
		v, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := New[string]()

	got := make(chan string, 1)
	go func() {
		v, err := q.Dequeue(context.Background())
		if err == nil {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("dequeue returned before enqueue")
	case <-time.After(50 * time.Millisecond):
	}

	q.Enqueue("job-1")

	select {
	case v := <-got:
		assert.Equal(t, "job-1", v)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake up")
	}
}

func TestDequeueCancellation(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		errCh <- err
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not observe cancellation")
	}
}

func TestConcurrentConsumersDrainEverything(t *testing.T) {
	q := New[int]()
	const n = 200

	results := make(chan int, n)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 4; i++ {
		go func() {
			for {
				v, err := q.Dequeue(ctx)
				if err != nil {
					return
				}
				results <- v
			}
		}()
	}

	for i := 0; i < n; i++ {
		q.Enqueue(i)
	}

	seen := map[int]bool{}
	for i := 0; i < n; i++ {
		select {
		case v := <-results:
			require.False(t, seen[v], "item %d delivered twice", v)
			seen[v] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only received %d of %d items", i, n)
		}
	}
}
