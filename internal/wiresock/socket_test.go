package wiresock

import (
	"context"
	"encoding/binary"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	el "github.com/nemo-mobile/sensorfw-go/internal/eventloop"
)

const testSampleSize = 13 // proximity: u64 + u32 + u8

func newTestLoop(t *testing.T) *el.Loop {
	t.Helper()
	loop, err := el.New()
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(context.Background())
	}()
	t.Cleanup(func() {
		_ = loop.Close()
		<-done
	})
	return loop
}

func listenUnix(t *testing.T) (net.Listener, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensord.sock")
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

func TestConn_HandshakeAndFrame(t *testing.T) {
	loop := newTestLoop(t)
	l, path := listenUnix(t)

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err == nil {
			serverConnCh <- conn
		}
	}()

	var mu sync.Mutex
	var samples [][]byte
	var connectedOnce bool
	var gotErr error
	connected := make(chan struct{})
	errCh := make(chan error, 1)

	c := Dial(loop, path, testSampleSize, 16,
		func() {
			mu.Lock()
			connectedOnce = true
			mu.Unlock()
			close(connected)
		},
		func(sample []byte) {
			cp := append([]byte(nil), sample...)
			mu.Lock()
			samples = append(samples, cp)
			mu.Unlock()
		},
		func(err error) {
			mu.Lock()
			gotErr = err
			mu.Unlock()
			select {
			case errCh <- err:
			default:
			}
		},
	)
	require.NoError(t, c.Connect(42))
	t.Cleanup(c.Close)

	var serverConn net.Conn
	select {
	case serverConn = <-serverConnCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted connection")
	}
	defer serverConn.Close()

	// Read the 4-byte session id handshake request.
	hsReq := make([]byte, 4)
	_, err := serverConn.Read(hsReq)
	require.NoError(t, err)
	require.Equal(t, int32(42), int32(binary.LittleEndian.Uint32(hsReq)))

	_, err = serverConn.Write([]byte{'\n'})
	require.NoError(t, err)

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("handshake never completed")
	}
	mu.Lock()
	require.True(t, connectedOnce)
	mu.Unlock()

	frame := make([]byte, 4+testSampleSize)
	binary.LittleEndian.PutUint32(frame[0:4], 1)
	binary.LittleEndian.PutUint64(frame[4:12], 1000)
	binary.LittleEndian.PutUint32(frame[12:16], 5)
	frame[16] = 1
	_, err = serverConn.Write(frame)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(samples) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NoError(t, gotErr)
	require.Equal(t, uint64(1000), binary.LittleEndian.Uint64(samples[0][0:8]))
	require.Equal(t, uint32(5), binary.LittleEndian.Uint32(samples[0][8:12]))
	require.Equal(t, byte(1), samples[0][12])
}

func TestConn_FrameGuardRejectsOutOfRangeCount(t *testing.T) {
	loop := newTestLoop(t)
	l, path := listenUnix(t)

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err == nil {
			serverConnCh <- conn
		}
	}()

	errCh := make(chan error, 1)
	c := Dial(loop, path, testSampleSize, 16,
		func() {},
		func(sample []byte) {},
		func(err error) { errCh <- err },
	)
	require.NoError(t, c.Connect(7))
	t.Cleanup(c.Close)

	var serverConn net.Conn
	select {
	case serverConn = <-serverConnCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted connection")
	}
	defer serverConn.Close()

	hsReq := make([]byte, 4)
	_, err := serverConn.Read(hsReq)
	require.NoError(t, err)
	_, err = serverConn.Write([]byte{'\n'})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	badFrame := make([]byte, 4)
	binary.LittleEndian.PutUint32(badFrame, 17) // spec.md §8 scenario 7
	_, err = serverConn.Write(badFrame)
	require.NoError(t, err)

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrProtocolViolation)
	case <-time.After(2 * time.Second):
		t.Fatal("expected protocol violation error")
	}
}
