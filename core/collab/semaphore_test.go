package collab

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreBasic(t *testing.T) {
	s := NewSemaphore(2)
	ctx := context.Background()

	require.NoError(t, s.Acquire(ctx))
	require.NoError(t, s.Acquire(ctx))
	assert.Equal(t, 0, s.Available())

	s.Release()
	s.Release()
	assert.Equal(t, 2, s.Available())
}

func TestSemaphoreBlocksAtCapacity(t *testing.T) {
	s := NewSemaphore(1)
	ctx := context.Background()
	require.NoError(t, s.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		_ = s.Acquire(ctx)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block")
	case <-time.After(50 * time.Millisecond):
	}

	s.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by release")
	}
	s.Release()
}

func TestSemaphoreFIFO(t *testing.T) {
	s := NewSemaphore(1)
	ctx := context.Background()
	require.NoError(t, s.Acquire(ctx))

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	ready := make(chan struct{}, 3)

	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ready <- struct{}{}
			// Stagger so the waiter queue order matches i.
			time.Sleep(time.Duration(i) * 20 * time.Millisecond)
			require.NoError(t, s.Acquire(ctx))
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			s.Release()
		}(i)
	}

	for i := 0; i < 3; i++ {
		<-ready
	}
	time.Sleep(120 * time.Millisecond) // let all three queue up
	s.Release()
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, order, "waiters are released in arrival order")
}

func TestSemaphoreAcquireCanceled(t *testing.T) {
	s := NewSemaphore(1)
	require.NoError(t, s.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The canceled waiter must not leak a permit.
	s.Release()
	assert.Equal(t, 1, s.Available())
}
