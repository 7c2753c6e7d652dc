package sensorfw

import (
	"encoding/binary"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"

	"github.com/nemo-mobile/sensorfw-go/internal/dbuswire"
)

func listenUnixSensord(t *testing.T) (net.Listener, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensord.sock")
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

func stubManager(conn *fakeConn, plugins []string) {
	conn.object(dbuswire.ManagerObjectPath).on(dbuswire.ManagerInterface+".availableSensorPlugins", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{plugins}, nil
	})
	conn.object(dbuswire.ManagerObjectPath).on(dbuswire.ManagerInterface+".loadPlugin", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{true}, nil
	})
	conn.object(dbuswire.ManagerObjectPath).on(dbuswire.ManagerInterface+".requestSensor", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{int32(7)}, nil
	})
	conn.object(dbuswire.ManagerObjectPath).on(dbuswire.ManagerInterface+".releaseSensor", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{true}, nil
	})
}

func TestSensor_ConnectAndReadSample(t *testing.T) {
	l, path := listenUnixSensord(t)

	conn := withFakeBus(t, nil)
	stubManager(conn, []string{"proximitysensor"})
	conn.object(dbus.ObjectPath(Proximity.ObjectPath())).on("org.freedesktop.DBus.Properties.GetAll", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{map[string]dbus.Variant{}}, nil
	})

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			serverConnCh <- c
		}
	}()

	s := NewSensor(Proximity, WithSocketPath(path))
	defer s.Close()

	var serverConn net.Conn
	select {
	case serverConn = <-serverConnCh:
	case <-time.After(2 * time.Second):
		t.Fatal("sensord never accepted connection")
	}
	defer serverConn.Close()

	hsReq := make([]byte, 4)
	_, err := serverConn.Read(hsReq)
	require.NoError(t, err)
	require.Equal(t, int32(7), int32(binary.LittleEndian.Uint32(hsReq)))
	_, err = serverConn.Write([]byte{'\n'})
	require.NoError(t, err)

	require.Eventually(t, s.IsValid, 2*time.Second, 5*time.Millisecond)

	frame := make([]byte, 4+13)
	binary.LittleEndian.PutUint32(frame[0:4], 1)
	binary.LittleEndian.PutUint64(frame[4:12], 500)
	binary.LittleEndian.PutUint32(frame[12:16], 10)
	frame[16] = 1
	_, err = serverConn.Write(frame)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := s.Reading()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	reading, ok := s.Reading()
	require.True(t, ok)
	sample, ok := reading.Proximity()
	require.True(t, ok)
	require.True(t, sample.Near)
	require.Equal(t, uint32(10), sample.Distance)
}
