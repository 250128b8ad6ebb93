package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastQueue() *InMemoryQueue {
	q := NewInMemoryQueue()
	q.Backoff = time.Millisecond
	return q
}

func TestPublishWithoutSubscribers(t *testing.T) {
	q := fastQueue()
	defer q.Close()

	err := q.Publish(context.Background(), "campaign_dispatch", []byte(`{}`))
	assert.Error(t, err)
}

func TestPublishDeliversPayload(t *testing.T) {
	q := fastQueue()
	defer q.Close()

	got := make(chan string, 1)
	require.NoError(t, q.Subscribe("campaign_dispatch", func(_ context.Context, payload []byte) error {
		got <- string(payload)
		return nil
	}))
	require.NoError(t, q.Publish(context.Background(), "campaign_dispatch", []byte(`{"campaign_id":"c1"}`)))

	select {
	case p := <-got:
		assert.Equal(t, `{"campaign_id":"c1"}`, p)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestRetriesUntilSuccess(t *testing.T) {
	q := fastQueue()
	defer q.Close()

	var calls int32
	require.NoError(t, q.Subscribe("t", func(context.Context, []byte) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))
	require.NoError(t, q.Publish(context.Background(), "t", nil))
	q.Wait()

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	q := fastQueue()
	q.MaxRetries = 2
	defer q.Close()

	var calls int32
	require.NoError(t, q.Subscribe("t", func(context.Context, []byte) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("always")
	}))
	require.NoError(t, q.Publish(context.Background(), "t", nil))
	q.Wait()

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGiveUpHookGetsLastError(t *testing.T) {
	q := fastQueue()
	q.MaxRetries = 1
	defer q.Close()

	var (
		gotPayload string
		gotErr     error
		hookCalls  int32
	)
	q.OnGiveUp("t", func(_ context.Context, payload []byte, err error) {
		atomic.AddInt32(&hookCalls, 1)
		gotPayload, gotErr = string(payload), err
	})
	require.NoError(t, q.Subscribe("t", func(context.Context, []byte) error {
		return errors.New("store down")
	}))
	require.NoError(t, q.Subscribe("ok", func(context.Context, []byte) error { return nil }))

	require.NoError(t, q.Publish(context.Background(), "t", []byte("job-1")))
	require.NoError(t, q.Publish(context.Background(), "ok", []byte("job-2")))
	q.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hookCalls), "only the exhausted job is reported")
	assert.Equal(t, "job-1", gotPayload)
	assert.EqualError(t, gotErr, "store down")
}

func TestDispatchQueueHasSingleActiveConsumer(t *testing.T) {
	assert.Equal(t, true, queueArgs()["x-single-active-consumer"])
}

func TestCloseCancelsHandlers(t *testing.T) {
	q := fastQueue()

	started := make(chan struct{})
	require.NoError(t, q.Subscribe("t", func(ctx context.Context, _ []byte) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, q.Publish(context.Background(), "t", nil))
	<-started

	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Publish(context.Background(), "t", nil), ErrClosed)
}

func TestHeaderInt(t *testing.T) {
	assert.Equal(t, 2, headerInt(int32(2)))
	assert.Equal(t, 5, headerInt(int64(5)))
	assert.Equal(t, 0, headerInt(nil))
	assert.Equal(t, 0, headerInt("3"))
}
