package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrySendTryReceive(t *testing.T) {
	c := New[int]()

	_, err := c.TryReceive()
	assert.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, c.TrySend(7))
	assert.ErrorIs(t, c.TrySend(8), ErrBusy)

	got, err := c.TryReceive()
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	_, err = c.TryReceive()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSingleSlotNoOverwrite(t *testing.T) {
	c := New[string]()
	require.NoError(t, c.TrySend("first"))
	require.ErrorIs(t, c.TrySend("second"), ErrBusy)

	got, err := c.TryReceive()
	require.NoError(t, err)
	assert.Equal(t, "first", got, "pending payload must not be overwritten")
}

func TestBlockingRendezvous(t *testing.T) {
	c := New[int]()
	ctx := context.Background()

	done := make(chan int, 1)
	go func() {
		v, err := c.Receive(ctx)
		if err != nil {
			t.Errorf("receive: %v", err)
		}
		done <- v
	}()

	require.NoError(t, c.Send(ctx, 42))
	select {
	case v := <-done:
		assert.Equal(t, 42, v)
	case <-time.After(5 * time.Second):
		t.Fatal("receiver never rendezvoused with sender")
	}
}

func TestReceiveHonorsContext(t *testing.T) {
	c := New[int]()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Receive(ctx)
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("receive did not unblock on cancellation")
	}
}

func TestSendHonorsContext(t *testing.T) {
	c := New[int]()
	require.NoError(t, c.TrySend(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := c.Send(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
