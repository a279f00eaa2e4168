package remote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartReturnsWhileBackendUnreachable(t *testing.T) {
	c := NewWSClient(WSConfig{
		URL:          "ws://127.0.0.1:1",
		DialTimeout:  100 * time.Millisecond,
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 20 * time.Millisecond,
	})
	defer c.Close()

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	// Start must not wait for the handshake; the panel API has to come up
	// even when the backend is down, with the dial loop healing in the
	// background.
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return while the backend was unreachable")
	}

	assert.ErrorIs(t, c.Send("upload:leads:start", "x"), ErrWSNotConnected)
}

func TestStartIsIdempotent(t *testing.T) {
	c := NewWSClient(WSConfig{
		URL:          "ws://127.0.0.1:1",
		DialTimeout:  100 * time.Millisecond,
		ReconnectMin: 10 * time.Millisecond,
	})
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Start(ctx))
}

func TestCloseStopsRedialLoop(t *testing.T) {
	c := NewWSClient(WSConfig{
		URL:          "ws://127.0.0.1:1",
		DialTimeout:  100 * time.Millisecond,
		ReconnectMin: 10 * time.Millisecond,
	})
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
