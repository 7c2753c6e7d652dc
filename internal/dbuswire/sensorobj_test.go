package dbuswire

import (
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"

	el "github.com/nemo-mobile/sensorfw-go/internal/eventloop"
)

func TestSetStandbyOverride_ToleratedRejection(t *testing.T) {
	loop, _ := newTestLoop(t)
	conn := newFakeConn()
	path := dbus.ObjectPath("/SensorManager/proximitysensor")
	conn.object(path).on("local.ProximitySensor.setStandbyOverride", func(args []interface{}) ([]interface{}, error) {
		return nil, errors.New("org.freedesktop.DBus.Error.NotSupported: not supported")
	})

	done := make(chan error, 1)
	ctl := el.NewAbortController()
	SetStandbyOverride(loop, conn, path, "local.ProximitySensor", 42, true, ctl.Signal(), func(applied bool, err error) {
		require.False(t, applied)
		done <- err
	})

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestGetAll(t *testing.T) {
	loop, _ := newTestLoop(t)
	conn := newFakeConn()
	path := dbus.ObjectPath("/SensorManager/proximitysensor")
	conn.object(path).on("org.freedesktop.DBus.Properties.GetAll", func(args []interface{}) ([]interface{}, error) {
		require.Equal(t, []interface{}{"local.ProximitySensor"}, args)
		return []interface{}{map[string]dbus.Variant{
			"interval": dbus.MakeVariant(uint32(100)),
		}}, nil
	})

	done := make(chan map[string]dbus.Variant, 1)
	ctl := el.NewAbortController()
	GetAll(loop, conn, path, "local.ProximitySensor", ctl.Signal(), func(props map[string]dbus.Variant, err error) {
		require.NoError(t, err)
		done <- props
	})

	select {
	case props := <-done:
		require.Contains(t, props, "interval")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestStartStop(t *testing.T) {
	loop, _ := newTestLoop(t)
	conn := newFakeConn()
	path := dbus.ObjectPath("/SensorManager/proximitysensor")
	obj := conn.object(path)
	var started, stopped bool
	obj.on("local.ProximitySensor.start", func(args []interface{}) ([]interface{}, error) {
		require.Equal(t, []interface{}{int32(42)}, args)
		started = true
		return nil, nil
	})
	obj.on("local.ProximitySensor.stop", func(args []interface{}) ([]interface{}, error) {
		stopped = true
		return nil, nil
	})

	ctl := el.NewAbortController()
	done := make(chan struct{}, 2)
	Start(loop, conn, path, "local.ProximitySensor", 42, ctl.Signal(), func(err error) {
		require.NoError(t, err)
		done <- struct{}{}
	})
	Stop(loop, conn, path, "local.ProximitySensor", 42, ctl.Signal(), func(err error) {
		require.NoError(t, err)
		done <- struct{}{}
	})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
	}
	require.True(t, started)
	require.True(t, stopped)
}
