package achchan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetPreservesOrder(t *testing.T) {
	ch := Register("test-order", 4, 64)
	defer Unregister("test-order")

	for _, s := range []string{"one", "two", "three"} {
		status, err := ch.Put([]byte(s))
		require.NoError(t, err)
		assert.Equal(t, StatusOK, status)
	}

	for _, want := range []string{"one", "two", "three"} {
		buf := make([]byte, 64)
		res, err := ch.Get(context.Background(), buf, GetOptions{})
		require.NoError(t, err)
		assert.Equal(t, StatusOK, res.Status)
		assert.Equal(t, want, string(buf[:res.Size]))
	}
}

func TestPutOverflowDropsOldest(t *testing.T) {
	ch := Register("test-overflow", 2, 64)
	defer Unregister("test-overflow")

	_, _ = ch.Put([]byte("a"))
	_, _ = ch.Put([]byte("b"))
	status, err := ch.Put([]byte("c"))
	require.NoError(t, err)
	assert.Equal(t, StatusOverflow, status)

	buf := make([]byte, 64)
	res, err := ch.Get(context.Background(), buf, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "b", string(buf[:res.Size]))
}

func TestGetLastSkipsIntermediates(t *testing.T) {
	ch := Register("test-last", 4, 64)
	defer Unregister("test-last")

	_, _ = ch.Put([]byte("a"))
	_, _ = ch.Put([]byte("b"))
	_, _ = ch.Put([]byte("c"))

	buf := make([]byte, 64)
	res, err := ch.Get(context.Background(), buf, GetOptions{Last: true})
	require.NoError(t, err)
	assert.Equal(t, StatusMissedFrame, res.Status)
	assert.Equal(t, "c", string(buf[:res.Size]))
}

func TestGetWaitBlocksUntilPut(t *testing.T) {
	ch := Register("test-wait", 2, 64)
	defer Unregister("test-wait")

	done := make(chan Result, 1)
	go func() {
		buf := make([]byte, 64)
		res, _ := ch.Get(context.Background(), buf, GetOptions{Wait: true})
		done <- res
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := ch.Put([]byte("late"))
	require.NoError(t, err)

	select {
	case res := <-done:
		assert.Equal(t, StatusOK, res.Status)
	case <-time.After(time.Second):
		t.Fatal("Get never returned after Put")
	}
}

func TestGetWaitRespectsContextCancel(t *testing.T) {
	ch := Register("test-wait-cancel", 2, 64)
	defer Unregister("test-wait-cancel")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	buf := make([]byte, 64)
	_, err := ch.Get(ctx, buf, GetOptions{Wait: true})
	assert.Error(t, err)
}

func TestGetTooSmallBufferReportsOverflow(t *testing.T) {
	ch := Register("test-small-buf", 2, 64)
	defer Unregister("test-small-buf")

	_, _ = ch.Put([]byte("this is a longer payload"))
	buf := make([]byte, 4)
	res, err := ch.Get(context.Background(), buf, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusOverflow, res.Status)
	assert.Equal(t, len("this is a longer payload"), res.RequiredSize)
}

func TestCloseUnblocksWaiters(t *testing.T) {
	ch := Register("test-close", 2, 64)

	done := make(chan Result, 1)
	go func() {
		buf := make([]byte, 64)
		res, _ := ch.Get(context.Background(), buf, GetOptions{Wait: true})
		done <- res
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, ch.Close())

	select {
	case res := <-done:
		assert.Equal(t, StatusClosed, res.Status)
	case <-time.After(time.Second):
		t.Fatal("Get never unblocked after Close")
	}
}

func TestOpenUnknownChannel(t *testing.T) {
	_, err := Open("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}
