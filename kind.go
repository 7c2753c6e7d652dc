package sensorfw

import "fmt"

// SensorKind identifies one of the sensor types exposed by the daemon.
type SensorKind int

const (
	Proximity SensorKind = iota
	ALS
	Orientation
	Accelerometer
	Compass
	Gyroscope
	Lid
	Humidity
	Magnetometer
	Pressure
	Rotation
	Stepcounter
	Tap
	Temperature

	numSensorKinds
)

// kindInfo is the process-wide constant table for a SensorKind: its
// plugin name, D-Bus object/interface naming, and wire-sample size.
type kindInfo struct {
	pluginName string // argument to loadPlugin/requestSensor/releaseSensor
	ifaceName  string // local.<ifaceName>Sensor
	sampleSize int    // bytes per wire sample, see decode.go
}

var kindTable = [numSensorKinds]kindInfo{
	Proximity:     {"proximitysensor", "Proximity", proximitySampleSize},
	ALS:           {"alssensor", "ALS", scalarSampleSize},
	Orientation:   {"orientationsensor", "Orientation", orientationSampleSize},
	Accelerometer: {"accelerometersensor", "Accelerometer", xyzSampleSize},
	Compass:       {"compasssensor", "Compass", compassSampleSize},
	Gyroscope:     {"gyroscopesensor", "Gyroscope", xyzSampleSize},
	Lid:           {"lidsensor", "Lid", lidSampleSize},
	Humidity:      {"humiditysensor", "Humidity", scalarSampleSize},
	Magnetometer:  {"magnetometersensor", "Magnetometer", magnetometerSampleSize},
	Pressure:      {"pressuresensor", "Pressure", scalarSampleSize},
	Rotation:      {"rotationsensor", "Rotation", xyzSampleSize},
	Stepcounter:   {"stepcountersensor", "Stepcounter", scalarSampleSize},
	Tap:           {"tapsensor", "Tap", tapSampleSize},
	Temperature:   {"temperaturesensor", "Temperature", temperatureSampleSize},
}

// valid reports whether k is one of the fourteen known sensor kinds.
func (k SensorKind) valid() bool {
	return k >= Proximity && k < numSensorKinds
}

func (k SensorKind) info() kindInfo {
	if !k.valid() {
		panic(fmt.Sprintf("sensorfw: invalid SensorKind %d", int(k)))
	}
	return kindTable[k]
}

// PluginName returns the daemon-side plugin name for k, e.g. "proximitysensor".
// This is also the sensor's bus object name, its suffix on
// "/SensorManager/<name>".
func (k SensorKind) PluginName() string {
	return k.info().pluginName
}

// ObjectPath returns the per-sensor D-Bus object path for k.
func (k SensorKind) ObjectPath() string {
	return "/SensorManager/" + k.PluginName()
}

// InterfaceName returns the per-sensor D-Bus interface name for k, e.g.
// "local.ProximitySensor".
func (k SensorKind) InterfaceName() string {
	return "local." + k.info().ifaceName + "Sensor"
}

// SampleSize returns the fixed wire size, in bytes, of one sample record
// for k, per §6.3/§4.5 of the wire protocol.
func (k SensorKind) SampleSize() int {
	return k.info().sampleSize
}

func (k SensorKind) String() string {
	if !k.valid() {
		return fmt.Sprintf("SensorKind(%d)", int(k))
	}
	return kindTable[k].pluginName
}

// pluginNameToKind reverses SensorKind.PluginName, used when interpreting
// availableSensorPlugins results.
func pluginNameToKind(name string) (SensorKind, bool) {
	for k := Proximity; k < numSensorKinds; k++ {
		if kindTable[k].pluginName == name {
			return k, true
		}
	}
	return 0, false
}

// maxSampleSize is the largest wire-sample size across all kinds; used to
// size the sanity bound on frame parsing (§4.5: sizeof(u32) ≤ blk ≤
// sizeof(largest union variant)).
var maxSampleSize = func() int {
	m := 0
	for k := Proximity; k < numSensorKinds; k++ {
		if s := kindTable[k].sampleSize; s > m {
			m = s
		}
	}
	return m
}()
