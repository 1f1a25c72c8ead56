package achd

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptLoopDispatchesConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sessions sync.WaitGroup
	handled := make(chan string, 1)
	go func() {
		_ = acceptLoop(ctx, testLogger(), 0, ln, func(ctx context.Context, conn net.Conn) error {
			buf := make([]byte, 5)
			n, _ := conn.Read(buf)
			handled <- string(buf[:n])
			return nil
		}, &sessions)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case got := <-handled:
		assert.Equal(t, "hello", got)
	case <-time.After(2 * time.Second):
		t.Fatal("session handler was never invoked")
	}
}

func TestDaemonShutsDownOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Daemon(ctx, testLogger(), DaemonConfig{
			Addr:         "127.0.0.1:0",
			DrainTimeout: 500 * time.Millisecond,
			SessionHandler: func(ctx context.Context, conn net.Conn) error {
				return nil
			},
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Daemon never returned after context cancel")
	}
}
