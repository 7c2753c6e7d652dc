// Package sensorfw is a client library for the sensord sensor daemon.
//
// It mediates between an application and a system sensor daemon that
// exposes sensors (proximity, ambient light, orientation, accelerometer,
// compass, gyroscope, lid, humidity, magnetometer, pressure, rotation,
// step counter, tap, temperature) over two transports: a D-Bus control
// channel on the system bus, and a unidirectional Unix domain stream
// socket carrying binary sample frames.
//
// # Architecture
//
// Four cooperating tiers, each exposing a Valid() observable that is
// true exactly when the tier's downstream invariants hold:
//
//   - [Service]: singleton owning the system-bus connection and the
//     daemon's name-owner watch.
//   - [Plugin]: one shared instance per [SensorKind], ensuring the
//     daemon has the matching server-side plugin loaded.
//   - [Sensor]: acquires a session, fetches properties, and decodes the
//     sample socket.
//   - [Reporting]: reconciles desired sample rate / enablement / standby
//     override against the daemon's acknowledged state.
//
// All tiers run on a single cooperative event loop (see internal
// package eventloop): state transitions, D-Bus call completions, and
// socket I/O callbacks all execute on that one goroutine. Losing
// validity in a tier invalidates everything downstream before any
// resource is torn down; regaining validity re-establishes the
// pipeline top-down without application involvement.
package sensorfw
