package sensorfw

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nemo-mobile/sensorfw-go/internal/dbuswire"
)

func TestAcquirePlugin_LoadSuccess(t *testing.T) {
	conn := withFakeBus(t, nil)
	conn.object(dbuswire.ManagerObjectPath).on(dbuswire.ManagerInterface+".availableSensorPlugins", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{[]string{"proximitysensor"}}, nil
	})
	conn.object(dbuswire.ManagerObjectPath).on(dbuswire.ManagerInterface+".loadPlugin", func(args []interface{}) ([]interface{}, error) {
		require.Equal(t, []interface{}{"proximitysensor"}, args)
		return []interface{}{true}, nil
	})

	p, release := AcquirePlugin(Proximity)
	defer release()

	require.Eventually(t, p.IsValid, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, "proximitysensor", p.Name())
	require.Equal(t, "/SensorManager/proximitysensor", p.ObjectPath())
	require.Equal(t, "local.ProximitySensor", p.InterfaceName())
}

func TestAcquirePlugin_LoadFailureRetries(t *testing.T) {
	conn := withFakeBus(t, nil)
	conn.object(dbuswire.ManagerObjectPath).on(dbuswire.ManagerInterface+".availableSensorPlugins", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{[]string{"alssensor"}}, nil
	})
	var calls int
	conn.object(dbuswire.ManagerObjectPath).on(dbuswire.ManagerInterface+".loadPlugin", func(args []interface{}) ([]interface{}, error) {
		calls++
		if calls == 1 {
			return []interface{}{false}, nil
		}
		return []interface{}{true}, nil
	})

	p, release := AcquirePlugin(ALS, WithRetryDelay(20*time.Millisecond))
	defer release()

	require.Eventually(t, p.IsValid, 2*time.Second, 5*time.Millisecond)
	require.GreaterOrEqual(t, calls, 2)
}

func TestAcquirePlugin_SharedPerKind(t *testing.T) {
	withFakeBus(t, nil)

	p1, release1 := AcquirePlugin(Gyroscope)
	p2, release2 := AcquirePlugin(Gyroscope)
	require.Same(t, p1, p2)

	p3, release3 := AcquirePlugin(Compass)
	require.NotSame(t, p1, p3)

	release1()
	release2()
	release3()
}

func TestAcquirePlugin_InvalidKindPanics(t *testing.T) {
	require.Panics(t, func() {
		AcquirePlugin(SensorKind(999))
	})
}
