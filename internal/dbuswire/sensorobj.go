package dbuswire

import (
	"github.com/godbus/dbus/v5"

	el "github.com/nemo-mobile/sensorfw-go/internal/eventloop"
)

const propertiesInterface = "org.freedesktop.DBus.Properties"

// GetAll asynchronously calls Properties.GetAll(ifaceName) on the
// sensor object at objectPath.
func GetAll(loop *el.Loop, conn Conn, objectPath dbus.ObjectPath, ifaceName string, signal *el.AbortSignal, done func(props map[string]dbus.Variant, err error)) {
	obj := conn.Object("", objectPath)
	asyncCall(loop, signal, func() (any, error) {
		call := obj.Call(propertiesInterface+".GetAll", callFlags, ifaceName)
		var props map[string]dbus.Variant
		err := call.Err
		if err == nil {
			err = call.Store(&props)
		}
		return props, err
	}, func(res any, err error) {
		props, _ := res.(map[string]dbus.Variant)
		done(props, wrapErr(err))
	})
}

// Start asynchronously calls start(session_id) on the per-sensor
// interface at objectPath.
func Start(loop *el.Loop, conn Conn, objectPath dbus.ObjectPath, ifaceName string, sessionID int32, signal *el.AbortSignal, done func(err error)) {
	obj := conn.Object("", objectPath)
	asyncCall(loop, signal, func() (any, error) {
		call := obj.Call(ifaceName+".start", callFlags, sessionID)
		return nil, call.Err
	}, func(res any, err error) {
		done(wrapErr(err))
	})
}

// Stop asynchronously calls stop(session_id).
func Stop(loop *el.Loop, conn Conn, objectPath dbus.ObjectPath, ifaceName string, sessionID int32, signal *el.AbortSignal, done func(err error)) {
	obj := conn.Object("", objectPath)
	asyncCall(loop, signal, func() (any, error) {
		call := obj.Call(ifaceName+".stop", callFlags, sessionID)
		return nil, call.Err
	}, func(res any, err error) {
		done(wrapErr(err))
	})
}

// SetDataRate asynchronously calls setDataRate(session_id, hz).
func SetDataRate(loop *el.Loop, conn Conn, objectPath dbus.ObjectPath, ifaceName string, sessionID int32, hz float64, signal *el.AbortSignal, done func(err error)) {
	obj := conn.Object("", objectPath)
	asyncCall(loop, signal, func() (any, error) {
		call := obj.Call(ifaceName+".setDataRate", callFlags, sessionID, hz)
		return nil, call.Err
	}, func(res any, err error) {
		done(wrapErr(err))
	})
}

// SetStandbyOverride asynchronously calls setStandbyOverride(session_id,
// on) and delivers the daemon's applied-acknowledgement boolean. Per
// spec.md §4.4/§6.1, this call is absent on some sensors and its
// rejection is tolerated by the caller (Reporting), not by this
// wrapper: this function reports the error/result faithfully.
func SetStandbyOverride(loop *el.Loop, conn Conn, objectPath dbus.ObjectPath, ifaceName string, sessionID int32, on bool, signal *el.AbortSignal, done func(applied bool, err error)) {
	obj := conn.Object("", objectPath)
	asyncCall(loop, signal, func() (any, error) {
		call := obj.Call(ifaceName+".setStandbyOverride", callFlags, sessionID, on)
		var applied bool
		err := call.Err
		if err == nil {
			err = call.Store(&applied)
		}
		return applied, err
	}, func(res any, err error) {
		applied, _ := res.(bool)
		done(applied, wrapErr(err))
	})
}
