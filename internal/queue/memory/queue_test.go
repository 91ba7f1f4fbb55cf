package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/websearch/internal/crawler"
)

func item(id string) crawler.QueueItem {
	return crawler.QueueItem{Session: crawler.Session{ID: id, SeedURL: "https://a.test/", PageLimit: 1}}
}

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan crawler.QueueItem, 1)
	go func() {
		got, err := q.Dequeue(context.Background())
		if err == nil {
			result <- got
		}
	}()

	require.NoError(t, q.Enqueue(context.Background(), item("s1")))
	select {
	case got := <-result:
		require.Equal(t, "s1", got.Session.ID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueueTryEnqueueFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.TryEnqueue(item("s1")))
	require.Equal(t, 1, q.Len())
	require.ErrorIs(t, q.TryEnqueue(item("s2")), ErrQueueFull)
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewQueue(1).Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), item("primed")))
	require.EqualError(t, q.Enqueue(ctx, item("blocked")), "enqueue canceled: context canceled")
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.TryEnqueue(item("buffered")))
	q.Close()
	q.Close()

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "buffered", got.Session.ID)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrQueueClosed)
	require.ErrorIs(t, q.TryEnqueue(item("late")), ErrQueueClosed)
	require.ErrorIs(t, q.Enqueue(context.Background(), item("late")), ErrQueueClosed)
}

func TestQueueCloseReleasesBlockedEnqueue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.TryEnqueue(item("primed")))

	blocked := make(chan error, 1)
	go func() {
		blocked <- q.Enqueue(context.Background(), item("waiting"))
	}()

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close waited on a blocked producer")
	}
	select {
	case err := <-blocked:
		require.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked enqueue was not released by close")
	}

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "primed", got.Session.ID)
}
