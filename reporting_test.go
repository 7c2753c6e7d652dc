package sensorfw

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"

	"github.com/nemo-mobile/sensorfw-go/internal/dbuswire"
)

// newReadySensor brings up a Sensor against a fake bus and a real Unix
// listener that completes the sample-socket handshake immediately,
// leaving the caller to drive the sensor object's method calls.
func newReadySensor(t *testing.T, kind SensorKind, configureObj func(obj *fakeObject)) (*Sensor, *fakeObject) {
	t.Helper()
	l, path := listenUnixSensord(t)

	conn := withFakeBus(t, nil)
	stubManager(conn, []string{kind.PluginName()})
	obj := conn.object(dbus.ObjectPath(kind.ObjectPath()))
	obj.on("org.freedesktop.DBus.Properties.GetAll", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{map[string]dbus.Variant{}}, nil
	})
	if configureObj != nil {
		configureObj(obj)
	}

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			serverConnCh <- c
		}
	}()

	s := NewSensor(kind, WithSocketPath(path))
	t.Cleanup(s.Close)

	var serverConn net.Conn
	select {
	case serverConn = <-serverConnCh:
	case <-time.After(2 * time.Second):
		t.Fatal("sensord never accepted connection")
	}
	t.Cleanup(func() { _ = serverConn.Close() })

	hsReq := make([]byte, 4)
	_, err := serverConn.Read(hsReq)
	require.NoError(t, err)
	_, err = serverConn.Write([]byte{'\n'})
	require.NoError(t, err)

	require.Eventually(t, s.IsValid, 2*time.Second, 5*time.Millisecond)
	return s, obj
}

func TestReporting_StartReconcilesDataRateAndOverride(t *testing.T) {
	var mu sync.Mutex
	var callOrder []string

	s, obj := newReadySensor(t, ALS, func(obj *fakeObject) {
		obj.on("local.ALSSensor.start", func(args []interface{}) ([]interface{}, error) {
			mu.Lock()
			callOrder = append(callOrder, "start")
			mu.Unlock()
			return nil, nil
		})
		obj.on("local.ALSSensor.setDataRate", func(args []interface{}) ([]interface{}, error) {
			mu.Lock()
			callOrder = append(callOrder, "setDataRate")
			mu.Unlock()
			require.Equal(t, 10.0, args[1])
			return nil, nil
		})
		obj.on("local.ALSSensor.setStandbyOverride", func(args []interface{}) ([]interface{}, error) {
			mu.Lock()
			callOrder = append(callOrder, "setStandbyOverride")
			mu.Unlock()
			require.Equal(t, true, args[1])
			return []interface{}{true}, nil
		})
	})

	s.SetDataRate(10.0)
	s.SetAlwaysOn(true)
	s.Start()

	require.Eventually(t, s.IsActive, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, callOrder, 3)
	require.Equal(t, "start", callOrder[0])
	require.ElementsMatch(t, []string{"setDataRate", "setStandbyOverride"}, callOrder[1:])
}

func TestReporting_OverrideFailureTolerated(t *testing.T) {
	s, _ := newReadySensor(t, ALS, func(obj *fakeObject) {
		obj.on("local.ALSSensor.start", func(args []interface{}) ([]interface{}, error) { return nil, nil })
		obj.on("local.ALSSensor.setDataRate", func(args []interface{}) ([]interface{}, error) { return nil, nil })
		obj.on("local.ALSSensor.setStandbyOverride", func(args []interface{}) ([]interface{}, error) {
			return []interface{}{false}, nil
		})
	})

	s.SetDataRate(5.0)
	s.SetAlwaysOn(true)
	s.Start()

	require.Eventually(t, s.IsActive, 2*time.Second, 5*time.Millisecond)
}

func TestReporting_StartThenStop(t *testing.T) {
	var stopCalled bool
	var mu sync.Mutex

	s, _ := newReadySensor(t, Humidity, func(obj *fakeObject) {
		obj.on("local.HumiditySensor.start", func(args []interface{}) ([]interface{}, error) { return nil, nil })
		obj.on("local.HumiditySensor.setDataRate", func(args []interface{}) ([]interface{}, error) { return nil, nil })
		obj.on("local.HumiditySensor.setStandbyOverride", func(args []interface{}) ([]interface{}, error) {
			return []interface{}{true}, nil
		})
		obj.on("local.HumiditySensor.stop", func(args []interface{}) ([]interface{}, error) {
			mu.Lock()
			stopCalled = true
			mu.Unlock()
			return nil, nil
		})
	})

	s.Start()
	require.Eventually(t, s.IsActive, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	require.Eventually(t, func() bool { return !s.IsActive() }, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.True(t, stopCalled)
}
