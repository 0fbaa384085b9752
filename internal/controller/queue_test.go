package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask() *task {
	return &task{
		fn:    func(context.Context) error { return nil },
		reply: make(chan error, 1),
	}
}

func TestQueueFIFO(t *testing.T) {
	q := newTaskQueue()

	first, second := newTask(), newTask()
	require.True(t, q.Enqueue(first))
	require.True(t, q.Enqueue(second))
	assert.Equal(t, 2, q.Len())

	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Same(t, first, got)

	got, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Same(t, second, got)

	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestQueueSignalCoalesces(t *testing.T) {
	q := newTaskQueue()

	q.Enqueue(newTask())
	q.Enqueue(newTask())

	// Multiple enqueues collapse into one pending wakeup.
	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("signal should be drained")
	default:
	}
}

func TestQueueEnqueueAfterClose(t *testing.T) {
	q := newTaskQueue()
	q.Close()

	assert.False(t, q.Enqueue(newTask()))
}

func TestQueueCloseIdempotent(t *testing.T) {
	q := newTaskQueue()
	q.Close()
	q.Close() // must not panic on double close
}

func TestQueueDrainReleasesCallers(t *testing.T) {
	q := newTaskQueue()

	tk := newTask()
	require.True(t, q.Enqueue(tk))

	q.Close()
	q.drain()

	assert.ErrorIs(t, <-tk.reply, ErrStopped)
	assert.Equal(t, 0, q.Len())
}

func TestQueueClosed(t *testing.T) {
	q := newTaskQueue()
	assert.False(t, q.Closed())

	q.Close()
	assert.True(t, q.Closed())
}
